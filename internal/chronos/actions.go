package chronos

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/cache"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
	"github.com/coldbell/chronos/backend/internal/programs"
)

var ErrReadOnly = errors.New("client has no submitter")

type Receipt struct {
	Signature solana.Signature
	Address   solana.PublicKey
}

func (c *Client) send(ctx context.Context, built programs.Built, err error) (Receipt, error) {
	if err != nil {
		return Receipt{}, err
	}
	if c.submitter == nil {
		return Receipt{}, ErrReadOnly
	}
	sig, err := c.submitter.Submit(ctx, built.Instruction)
	if err != nil {
		return Receipt{Signature: sig, Address: built.Address}, err
	}
	c.logger.Info("instruction confirmed", "signature", sig, "account", built.Address)
	return Receipt{Signature: sig, Address: built.Address}, nil
}

// InitializeVault creates the wallet's vault and drops the cached existence
// answer. It refuses when the vault is already there.
func (c *Client) InitializeVault(ctx context.Context, wallet solana.PublicKey, args codec.InitializeVaultArgs) (Receipt, error) {
	built, err := c.builder.InitializeVault(wallet, args)
	if err != nil {
		return Receipt{}, err
	}
	info, err := c.VaultExists(ctx, wallet)
	if err != nil {
		return Receipt{}, err
	}
	if info.Exists {
		return Receipt{Address: info.Address}, fmt.Errorf("vault %s: %w", info.Address, ErrAlreadyExists)
	}
	receipt, err := c.send(ctx, built, nil)
	c.vaults.Invalidate(cache.Key{Wallet: wallet.String(), Query: queryVaultExists})
	return receipt, err
}

// InitializeMarket creates authority's market unless it already exists.
func (c *Client) InitializeMarket(ctx context.Context, authority solana.PublicKey, args codec.InitializeMarketArgs) (Receipt, error) {
	built, err := c.builder.InitializeMarket(authority, args)
	if err != nil {
		return Receipt{}, err
	}
	info, err := c.MarketExists(ctx, authority)
	if err != nil {
		return Receipt{}, err
	}
	if info.Exists {
		return Receipt{Address: info.Address}, fmt.Errorf("market %s: %w", info.Address, ErrAlreadyExists)
	}
	receipt, err := c.send(ctx, built, nil)
	c.markets.Invalidate(cache.Key{Wallet: authority.String(), Query: queryMarketExists})
	return receipt, err
}

// InitializeOrchestrator creates the program-wide orchestrator account with
// authority paying.
func (c *Client) InitializeOrchestrator(ctx context.Context, authority solana.PublicKey) (Receipt, error) {
	built, err := c.builder.InitializeOrchestrator(authority)
	return c.send(ctx, built, err)
}

func (c *Client) Deposit(ctx context.Context, vaultAuthority, user, mint solana.PublicKey, amount uint64) (Receipt, error) {
	built, err := c.builder.Deposit(vaultAuthority, user, mint, codec.DepositArgs{Amount: amount})
	return c.send(ctx, built, err)
}

func (c *Client) Withdraw(ctx context.Context, vaultAuthority, user, mint solana.PublicKey, shares uint64) (Receipt, error) {
	built, err := c.builder.Withdraw(vaultAuthority, user, mint, codec.WithdrawArgs{Shares: shares})
	return c.send(ctx, built, err)
}

// PlaceOrder reads the market first; its current batch id seeds the order
// address.
func (c *Client) PlaceOrder(ctx context.Context, market, trader solana.PublicKey, args codec.PlaceOrderArgs) (Receipt, error) {
	m, err := c.Market(ctx, market)
	if err != nil {
		return Receipt{}, fmt.Errorf("load market: %w", err)
	}
	built, err := c.builder.PlaceOrder(market, m.CurrentBatchID, trader, args)
	return c.send(ctx, built, err)
}

func (c *Client) CancelOrder(ctx context.Context, order, trader solana.PublicKey) (Receipt, error) {
	built, err := c.builder.CancelOrder(order, trader)
	return c.send(ctx, built, err)
}

// MintSlotNFT only mints slots strictly in the future.
func (c *Client) MintSlotNFT(ctx context.Context, minter solana.PublicKey, args codec.MintSlotNFTArgs) (Receipt, error) {
	if now := c.clock.Now().Unix(); args.SlotTime <= now {
		return Receipt{}, errs.New(errs.KindInvalidArgument, minter.String(),
			"slot time %d is not after now %d", args.SlotTime, now)
	}
	built, err := c.builder.MintSlotNFT(minter, args)
	return c.send(ctx, built, err)
}

func (c *Client) CreateAuction(ctx context.Context, slotNFT, seller solana.PublicKey, args codec.CreateAuctionArgs) (Receipt, error) {
	built, err := c.builder.CreateAuction(slotNFT, seller, args)
	return c.send(ctx, built, err)
}

func (c *Client) PlaceBid(ctx context.Context, auctionAddr, bidder solana.PublicKey) (Receipt, error) {
	built, err := c.builder.PlaceBid(auctionAddr, bidder)
	return c.send(ctx, built, err)
}

func (c *Client) ReserveRaikuSlot(ctx context.Context, authority solana.PublicKey, args codec.ReserveRaikuSlotArgs) (Receipt, error) {
	built, err := c.builder.ReserveRaikuSlot(authority, args)
	return c.send(ctx, built, err)
}

func (c *Client) CreateExecutionBatch(ctx context.Context, authority solana.PublicKey, timestamp int64, size uint8) (Receipt, error) {
	built, err := c.builder.CreateExecutionBatch(authority, timestamp, codec.CreateExecutionBatchArgs{BatchSize: size})
	return c.send(ctx, built, err)
}
