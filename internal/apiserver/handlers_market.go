package apiserver

import (
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/coldbell/chronos/backend/internal/chronos"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
	"github.com/coldbell/chronos/backend/internal/indexer"
	"github.com/coldbell/chronos/backend/internal/stats"
	"github.com/coldbell/chronos/backend/internal/units"
)

const (
	defaultBookLevels = 20
	// maxPositionUsers is the getMultipleAccounts request limit.
	maxPositionUsers = 100
)

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   s.clock.Now().UnixMilli(),
	})
}

func (s *Service) handleIndexerStatus(w http.ResponseWriter, r *http.Request) {
	state, ok, err := s.store.SyncState(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"synced": ok,
		"state":  state,
	})
}

func (s *Service) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	market, err := pathKey(r, "market")
	if err != nil {
		s.respondError(w, err)
		return
	}
	levels, err := parseOptionalInt(r, "levels", defaultBookLevels)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if levels < 1 || levels > indexer.DepthSnapshotLevels*5 {
		s.respondError(w, invalid("levels", "levels must be between 1 and %d", indexer.DepthSnapshotLevels*5))
		return
	}

	book, err := s.chain.OrderBook(r.Context(), market)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newBookDTO(market.String(), book, levels))
}

func (s *Service) handleDepthHistory(w http.ResponseWriter, r *http.Request) {
	market, err := pathKey(r, "market")
	if err != nil {
		s.respondError(w, err)
		return
	}
	from, err := parseOptionalInt64(r, "from", 0)
	if err != nil {
		s.respondError(w, err)
		return
	}
	to, err := parseOptionalInt64(r, "to", 0)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if to > 0 && from > to {
		s.respondError(w, invalid("from", "from must not be after to"))
		return
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	snapshots, limit, offset, err := s.store.ListDepthHistory(r.Context(), indexer.DepthHistoryFilter{
		Market:   market.String(),
		FromUnix: from,
		ToUnix:   to,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	items := make([]depthSnapshotDTO, 0, len(snapshots))
	for _, snapshot := range snapshots {
		items = append(items, newDepthSnapshotDTO(snapshot))
	}
	s.respondJSON(w, http.StatusOK, listResponse[depthSnapshotDTO]{Items: items, Limit: limit, Offset: offset})
}

func (s *Service) handleOrders(w http.ResponseWriter, r *http.Request) {
	market, err := queryKey(r, "market")
	if err != nil {
		s.respondError(w, err)
		return
	}
	trader, err := queryKey(r, "trader")
	if err != nil {
		s.respondError(w, err)
		return
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	records, limit, offset, err := s.store.ListOrders(r.Context(), indexer.OrderFilter{
		Market: market,
		Trader: trader,
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	items := make([]orderDTO, 0, len(records))
	for _, record := range records {
		items = append(items, newOrderDTO(record))
	}
	s.respondJSON(w, http.StatusOK, listResponse[orderDTO]{Items: items, Limit: limit, Offset: offset})
}

func (s *Service) handleAuctions(w http.ResponseWriter, r *http.Request) {
	seller, err := queryKey(r, "seller")
	if err != nil {
		s.respondError(w, err)
		return
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	records, limit, offset, err := s.store.ListAuctions(r.Context(), indexer.AuctionFilter{
		Status: r.URL.Query().Get("status"),
		Seller: seller,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	items := make([]auctionDTO, 0, len(records))
	for _, record := range records {
		items = append(items, newAuctionDTO(record))
	}
	s.respondJSON(w, http.StatusOK, listResponse[auctionDTO]{Items: items, Limit: limit, Offset: offset})
}

// handleAuctionPrice quotes the live Dutch price. at is unix seconds and
// defaults to now.
func (s *Service) handleAuctionPrice(w http.ResponseWriter, r *http.Request) {
	address, err := pathKey(r, "address")
	if err != nil {
		s.respondError(w, err)
		return
	}
	at, err := parseOptionalInt64(r, "at", s.clock.Now().Unix())
	if err != nil {
		s.respondError(w, err)
		return
	}

	quote, err := s.chain.AuctionPrice(r.Context(), address, at)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newAuctionQuoteDTO(address.String(), at, quote))
}

func (s *Service) handleSlots(w http.ResponseWriter, r *http.Request) {
	owner, err := queryKey(r, "owner")
	if err != nil {
		s.respondError(w, err)
		return
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	items, limit, offset, err := s.store.ListSlotNFTs(r.Context(), indexer.SlotNFTFilter{
		Owner:  owner,
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	if items == nil {
		items = []indexer.SlotNFTRecord{}
	}
	s.respondJSON(w, http.StatusOK, listResponse[indexer.SlotNFTRecord]{Items: items, Limit: limit, Offset: offset})
}

func (s *Service) handleVaults(w http.ResponseWriter, r *http.Request) {
	authority, err := queryKey(r, "authority")
	if err != nil {
		s.respondError(w, err)
		return
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	records, limit, offset, err := s.store.ListVaults(r.Context(), indexer.VaultFilter{
		Authority: authority,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	items := make([]vaultDTO, 0, len(records))
	for _, record := range records {
		items = append(items, newVaultDTO(record))
	}
	s.respondJSON(w, http.StatusOK, listResponse[vaultDTO]{Items: items, Limit: limit, Offset: offset})
}

func (s *Service) handleVaultExists(w http.ResponseWriter, r *http.Request) {
	wallet, err := pathKey(r, "wallet")
	if err != nil {
		s.respondError(w, err)
		return
	}
	info, err := s.chain.VaultExists(r.Context(), wallet)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"wallet":  wallet.String(),
		"exists":  info.Exists,
		"address": info.Address.String(),
	})
}

func (s *Service) handleMarketExists(w http.ResponseWriter, r *http.Request) {
	authority, err := pathKey(r, "authority")
	if err != nil {
		s.respondError(w, err)
		return
	}
	info, err := s.chain.MarketExists(r.Context(), authority)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"authority": authority.String(),
		"exists":    info.Exists,
		"address":   info.Address.String(),
	})
}

// handleVaultPreview prices either ?deposit=<tokens> or ?withdraw=<shares>,
// both as decimals.
func (s *Service) handleVaultPreview(w http.ResponseWriter, r *http.Request) {
	wallet, err := pathKey(r, "wallet")
	if err != nil {
		s.respondError(w, err)
		return
	}
	deposit := strings.TrimSpace(r.URL.Query().Get("deposit"))
	withdraw := strings.TrimSpace(r.URL.Query().Get("withdraw"))
	if (deposit == "") == (withdraw == "") {
		s.respondError(w, invalid("deposit", "set exactly one of deposit or withdraw"))
		return
	}

	var preview chronos.SharePreview
	if deposit != "" {
		amount, perr := units.ParseLamports(deposit)
		if perr != nil {
			s.respondError(w, errs.Wrap(errs.KindInvalidArgument, deposit, perr, "invalid deposit"))
			return
		}
		preview, err = s.chain.PreviewDeposit(r.Context(), wallet, amount)
	} else {
		shares, perr := units.ParseScaled(withdraw, units.AmountDecimals)
		if perr != nil {
			s.respondError(w, errs.Wrap(errs.KindInvalidArgument, withdraw, perr, "invalid withdraw"))
			return
		}
		preview, err = s.chain.PreviewWithdraw(r.Context(), wallet, shares)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newSharePreviewDTO(preview))
}

// handlePositions reads ?users=a,b,c positions in the wallet's vault.
func (s *Service) handlePositions(w http.ResponseWriter, r *http.Request) {
	wallet, err := pathKey(r, "wallet")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var users []solana.PublicKey
	for _, raw := range strings.Split(r.URL.Query().Get("users"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		user, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			s.respondError(w, errs.Wrap(errs.KindInvalidArgument, raw, err, "invalid user"))
			return
		}
		users = append(users, user)
	}
	if len(users) == 0 || len(users) > maxPositionUsers {
		s.respondError(w, invalid("users", "users must list 1 to %d keys", maxPositionUsers))
		return
	}

	positions, err := s.chain.Positions(r.Context(), wallet, users)
	if err != nil {
		s.respondError(w, err)
		return
	}
	items := make([]positionDTO, 0, len(positions))
	for _, p := range positions {
		items = append(items, newPositionDTO(p))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleStats aggregates a live scan. kind is dex, market or vault.
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch kind := mux.Vars(r)["kind"]; kind {
	case "dex":
		orders, err := s.chain.AllOrders(ctx)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, newDEXStatsDTO(stats.DEX(orders)))

	case "market":
		var (
			slots    []codec.SlotNFT
			auctions []codec.Auction
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			slots, err = s.chain.AllSlotNFTs(gctx)
			return err
		})
		g.Go(func() (err error) {
			auctions, err = s.chain.Auctions(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, newMarketStatsDTO(stats.Market(slots, auctions)))

	case "vault":
		vaults, err := s.chain.AllVaults(ctx)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, newVaultStatsDTO(stats.Vault(vaults)))

	default:
		s.respondError(w, errs.New(errs.KindInvalidArgument, kind, "unknown stats kind, want dex, market or vault"))
	}
}
