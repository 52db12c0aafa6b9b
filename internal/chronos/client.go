// Package chronos ties chain reads, the account codec, the state cache and
// the program builders into the read and write paths used by the services.
package chronos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/auction"
	"github.com/coldbell/chronos/backend/internal/cache"
	"github.com/coldbell/chronos/backend/internal/chain"
	"github.com/coldbell/chronos/backend/internal/clock"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/logging"
	"github.com/coldbell/chronos/backend/internal/metrics"
	"github.com/coldbell/chronos/backend/internal/orderbook"
	"github.com/coldbell/chronos/backend/internal/programs"
	"github.com/coldbell/chronos/backend/internal/stats"
)

const (
	queryVaultExists  = "vault_exists"
	queryMarketExists = "market_exists"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAlreadyExists   = errors.New("account already exists")
)

type Options struct {
	CacheTTL  time.Duration
	Clock     clock.Clock
	Submitter chain.Submitter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type VaultInfo struct {
	Exists  bool
	Address solana.PublicKey
}

type MarketInfo struct {
	Exists  bool
	Address solana.PublicKey
}

// SharePreview is what a deposit or withdrawal would settle to at the
// vault's current share price. Priced is false before the first deposit,
// when shares mint one to one.
type SharePreview struct {
	Vault         solana.PublicKey
	Amount        uint64
	Shares        uint64
	PriceDeposits uint64
	PriceShares   uint64
	Priced        bool
}

type Client struct {
	reader    chain.Reader
	submitter chain.Submitter
	builder   *programs.Builder
	vaults    *cache.Cache[VaultInfo]
	markets   *cache.Cache[MarketInfo]
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(reader chain.Reader, ids programs.IDs, opts Options) *Client {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Client{
		reader:    reader,
		submitter: opts.Submitter,
		builder:   programs.NewBuilder(ids),
		vaults:    cache.New[VaultInfo](opts.CacheTTL, opts.Clock, opts.Metrics),
		markets:   cache.New[MarketInfo](opts.CacheTTL, opts.Clock, opts.Metrics),
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    logging.Component(opts.Logger, "chronos"),
	}
}

func (c *Client) Builder() *programs.Builder { return c.builder }

func (c *Client) programIDs() programs.IDs { return c.builder.IDs() }

// VaultExists is cached per wallet for the cache TTL.
func (c *Client) VaultExists(ctx context.Context, wallet solana.PublicKey) (VaultInfo, error) {
	key := cache.Key{Wallet: wallet.String(), Query: queryVaultExists}
	return c.vaults.GetOrFetch(ctx, key, func(ctx context.Context) (VaultInfo, error) {
		addr, _, err := programs.DeriveVaultPDA(c.programIDs().Vault, wallet)
		if err != nil {
			return VaultInfo{}, fmt.Errorf("derive vault PDA: %w", err)
		}
		data, err := c.reader.GetAccount(ctx, addr)
		if err != nil {
			return VaultInfo{}, err
		}
		return VaultInfo{Exists: data != nil, Address: addr}, nil
	})
}

// MarketExists reports whether authority has created its market. Cached
// like VaultExists.
func (c *Client) MarketExists(ctx context.Context, authority solana.PublicKey) (MarketInfo, error) {
	key := cache.Key{Wallet: authority.String(), Query: queryMarketExists}
	return c.markets.GetOrFetch(ctx, key, func(ctx context.Context) (MarketInfo, error) {
		addr, _, err := programs.DeriveMarketPDA(c.programIDs().DEX, authority)
		if err != nil {
			return MarketInfo{}, fmt.Errorf("derive market PDA: %w", err)
		}
		data, err := c.reader.GetAccount(ctx, addr)
		if err != nil {
			return MarketInfo{}, err
		}
		return MarketInfo{Exists: data != nil, Address: addr}, nil
	})
}

// Vault reads the vault owned by wallet. ok is false when it does not exist.
func (c *Client) Vault(ctx context.Context, wallet solana.PublicKey) (vault codec.Vault, ok bool, err error) {
	addr, _, err := programs.DeriveVaultPDA(c.programIDs().Vault, wallet)
	if err != nil {
		return codec.Vault{}, false, fmt.Errorf("derive vault PDA: %w", err)
	}
	data, err := c.reader.GetAccount(ctx, addr)
	if err != nil || data == nil {
		return codec.Vault{}, false, err
	}
	vault, err = codec.DecodeVault(addr, data)
	if err != nil {
		return codec.Vault{}, false, err
	}
	return vault, true, nil
}

func (c *Client) Position(ctx context.Context, vaultAuthority, user solana.PublicKey) (codec.UserPosition, bool, error) {
	vault, _, err := programs.DeriveVaultPDA(c.programIDs().Vault, vaultAuthority)
	if err != nil {
		return codec.UserPosition{}, false, fmt.Errorf("derive vault PDA: %w", err)
	}
	addr, _, err := programs.DeriveUserPositionPDA(c.programIDs().Vault, vault, user)
	if err != nil {
		return codec.UserPosition{}, false, fmt.Errorf("derive position PDA: %w", err)
	}
	data, err := c.reader.GetAccount(ctx, addr)
	if err != nil || data == nil {
		return codec.UserPosition{}, false, err
	}
	pos, err := codec.DecodeUserPosition(addr, vault, user, data)
	if err != nil {
		return codec.UserPosition{}, false, err
	}
	return pos, true, nil
}

// Positions reads the positions of users in one vault with a single batched
// request. Users without a position are left out; order follows users.
func (c *Client) Positions(ctx context.Context, vaultAuthority solana.PublicKey, users []solana.PublicKey) ([]codec.UserPosition, error) {
	if len(users) == 0 {
		return nil, nil
	}
	vault, _, err := programs.DeriveVaultPDA(c.programIDs().Vault, vaultAuthority)
	if err != nil {
		return nil, fmt.Errorf("derive vault PDA: %w", err)
	}
	addrs := make([]solana.PublicKey, len(users))
	for i, user := range users {
		addrs[i], _, err = programs.DeriveUserPositionPDA(c.programIDs().Vault, vault, user)
		if err != nil {
			return nil, fmt.Errorf("derive position PDA: %w", err)
		}
	}
	datas, err := c.reader.GetMultipleAccounts(ctx, addrs)
	if err != nil {
		return nil, err
	}
	out := make([]codec.UserPosition, 0, len(users))
	for i, data := range datas {
		if data == nil {
			continue
		}
		pos, err := codec.DecodeUserPosition(addrs[i], vault, users[i], data)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

// PreviewDeposit prices a deposit of amount into the wallet's vault.
func (c *Client) PreviewDeposit(ctx context.Context, wallet solana.PublicKey, amount uint64) (SharePreview, error) {
	v, err := c.mustVault(ctx, wallet)
	if err != nil {
		return SharePreview{}, err
	}
	shares, err := stats.SharesForDeposit(v, amount)
	if err != nil {
		return SharePreview{}, err
	}
	return newSharePreview(v, amount, shares), nil
}

// PreviewWithdraw prices redeeming shares from the wallet's vault.
func (c *Client) PreviewWithdraw(ctx context.Context, wallet solana.PublicKey, shares uint64) (SharePreview, error) {
	v, err := c.mustVault(ctx, wallet)
	if err != nil {
		return SharePreview{}, err
	}
	amount, err := stats.TokensForShares(v, shares)
	if err != nil {
		return SharePreview{}, err
	}
	return newSharePreview(v, amount, shares), nil
}

func (c *Client) mustVault(ctx context.Context, wallet solana.PublicKey) (codec.Vault, error) {
	v, ok, err := c.Vault(ctx, wallet)
	if err != nil {
		return codec.Vault{}, err
	}
	if !ok {
		return codec.Vault{}, fmt.Errorf("vault of %s: %w", wallet, ErrAccountNotFound)
	}
	return v, nil
}

func newSharePreview(v codec.Vault, amount, shares uint64) SharePreview {
	deposits, total, priced := v.SharePrice()
	return SharePreview{
		Vault:         v.Address,
		Amount:        amount,
		Shares:        shares,
		PriceDeposits: deposits,
		PriceShares:   total,
		Priced:        priced,
	}
}

func (c *Client) Market(ctx context.Context, address solana.PublicKey) (codec.Market, error) {
	data, err := c.reader.GetAccount(ctx, address)
	if err != nil {
		return codec.Market{}, err
	}
	if data == nil {
		return codec.Market{}, fmt.Errorf("market %s: %w", address, ErrAccountNotFound)
	}
	return codec.DecodeMarket(address, data)
}

func (c *Client) AllOrders(ctx context.Context) ([]codec.Order, error) {
	return scan(ctx, c, codec.KindOrder, c.programIDs().DEX, codec.DecodeOrder,
		chain.DataSize(codec.OrderSize))
}

func (c *Client) OrdersForMarket(ctx context.Context, market solana.PublicKey) ([]codec.Order, error) {
	return scan(ctx, c, codec.KindOrder, c.programIDs().DEX, codec.DecodeOrder,
		chain.DataSize(codec.OrderSize), chain.Memcmp(codec.OrderMarketOffset, market))
}

func (c *Client) OrdersForTrader(ctx context.Context, trader solana.PublicKey) ([]codec.Order, error) {
	return scan(ctx, c, codec.KindOrder, c.programIDs().DEX, codec.DecodeOrder,
		chain.DataSize(codec.OrderSize), chain.Memcmp(codec.OrderTraderOffset, trader))
}

func (c *Client) AllSlotNFTs(ctx context.Context) ([]codec.SlotNFT, error) {
	return scan(ctx, c, codec.KindSlotNFT, c.programIDs().Market, codec.DecodeSlotNFT,
		chain.DataSize(codec.SlotNFTSize))
}

func (c *Client) SlotNFTsByOwner(ctx context.Context, owner solana.PublicKey) ([]codec.SlotNFT, error) {
	return scan(ctx, c, codec.KindSlotNFT, c.programIDs().Market, codec.DecodeSlotNFT,
		chain.DataSize(codec.SlotNFTSize), chain.Memcmp(codec.SlotNFTOwnerOffset, owner))
}

func (c *Client) Auctions(ctx context.Context) ([]codec.Auction, error) {
	return scan(ctx, c, codec.KindAuction, c.programIDs().Market, codec.DecodeAuction,
		chain.DataSize(codec.AuctionSize))
}

func (c *Client) AllVaults(ctx context.Context) ([]codec.Vault, error) {
	disc := codec.AccountDiscriminator(codec.AccountNameVault)
	return scan(ctx, c, codec.KindVault, c.programIDs().Vault, codec.DecodeVault,
		chain.DataSize(codec.VaultAccountSize), chain.MemcmpBytes(0, disc[:]))
}

func (c *Client) OrderBook(ctx context.Context, market solana.PublicKey) (orderbook.Book, error) {
	orders, err := c.OrdersForMarket(ctx, market)
	if err != nil {
		return orderbook.Book{}, err
	}
	return orderbook.Project(orders), nil
}

func (c *Client) Auction(ctx context.Context, address solana.PublicKey) (codec.Auction, error) {
	data, err := c.reader.GetAccount(ctx, address)
	if err != nil {
		return codec.Auction{}, err
	}
	if data == nil {
		return codec.Auction{}, fmt.Errorf("auction %s: %w", address, ErrAccountNotFound)
	}
	return codec.DecodeAuction(address, data)
}

// AuctionPrice reads the auction and prices it at unix time now.
func (c *Client) AuctionPrice(ctx context.Context, address solana.PublicKey, now int64) (auction.Quote, error) {
	a, err := c.Auction(ctx, address)
	if err != nil {
		return auction.Quote{}, err
	}
	return auction.QuoteAt(a, now)
}

// scan decodes every account the filters select. Accounts that fail to
// decode are logged and skipped.
func scan[T any](
	ctx context.Context,
	c *Client,
	kind codec.Kind,
	programID solana.PublicKey,
	decode func(solana.PublicKey, []byte) (T, error),
	filters ...chain.Filter,
) ([]T, error) {
	accounts, err := c.reader.Scan(ctx, programID, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(accounts))
	for _, acc := range accounts {
		v, err := decode(acc.Address, acc.Data)
		if err != nil {
			c.metrics.DecodeFailures.WithLabelValues(kind.String()).Inc()
			c.logger.Warn("skip undecodable account", "kind", kind, "address", acc.Address, "size", len(acc.Data), "error", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
