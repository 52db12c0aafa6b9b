// Package indexer mirrors chronos program accounts into Postgres on a fixed
// poll interval.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coldbell/chronos/backend/internal/chain"
	"github.com/coldbell/chronos/backend/internal/chronos"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/config"
	"github.com/coldbell/chronos/backend/internal/logging"
	"github.com/coldbell/chronos/backend/internal/metrics"
	"github.com/coldbell/chronos/backend/internal/programs"
)

// Source is the set of program scans one sync pass reads.
type Source interface {
	AllOrders(ctx context.Context) ([]codec.Order, error)
	AllSlotNFTs(ctx context.Context) ([]codec.SlotNFT, error)
	Auctions(ctx context.Context) ([]codec.Auction, error)
	AllVaults(ctx context.Context) ([]codec.Vault, error)
}

type SlotReader interface {
	Slot(ctx context.Context) (uint64, error)
}

type Service struct {
	cfg     config.IndexerConfig
	source  Source
	slots   SlotReader
	store   *Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(cfg config.IndexerConfig, m *metrics.Metrics, logger *slog.Logger) (*Service, error) {
	rpc, err := chain.New(cfg.Chain, m, logger)
	if err != nil {
		return nil, fmt.Errorf("init chain client: %w", err)
	}
	store, err := NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	source := chronos.New(rpc, programs.IDs(cfg.Chain.Programs), chronos.Options{
		Metrics: m,
		Logger:  logger,
	})
	return NewService(cfg, source, rpc, store, m, logger), nil
}

// NewService assembles a service from already built parts.
func NewService(cfg config.IndexerConfig, source Source, slots SlotReader, store *Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		cfg:     cfg,
		source:  source,
		slots:   slots,
		store:   store,
		metrics: m,
		logger:  logging.Component(logger, "indexer"),
	}
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	s.logger.Info("indexer started",
		"rpc", s.cfg.Chain.RPCURL,
		"db_driver", "postgres",
		"commitment", s.cfg.Chain.Commitment,
		"poll_interval", s.cfg.PollInterval.String(),
	)

	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("initial sync failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("indexer stopped")
			return nil
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Error("sync failed", "err", err)
			}
		}
	}
}

type snapshot struct {
	slot     uint64
	orders   []codec.Order
	slotNFTs []codec.SlotNFT
	auctions []codec.Auction
	vaults   []codec.Vault
}

func (s snapshot) size() int {
	return len(s.orders) + len(s.slotNFTs) + len(s.auctions) + len(s.vaults)
}

// SyncOnce scans every account kind concurrently and writes the result in a
// single transaction. Nothing is written if any scan fails.
func (s *Service) SyncOnce(ctx context.Context) error {
	started := time.Now()

	snap, err := s.collect(ctx)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx *Tx) error {
		for _, o := range snap.orders {
			if err := s.store.UpsertOrderTx(ctx, tx, snap.slot, o); err != nil {
				return fmt.Errorf("upsert order %s: %w", o.Address, err)
			}
		}
		for _, n := range snap.slotNFTs {
			if err := s.store.UpsertSlotNFTTx(ctx, tx, snap.slot, n); err != nil {
				return fmt.Errorf("upsert slot nft %s: %w", n.Address, err)
			}
		}
		for _, a := range snap.auctions {
			if err := s.store.UpsertAuctionTx(ctx, tx, snap.slot, a); err != nil {
				return fmt.Errorf("upsert auction %s: %w", a.Address, err)
			}
		}
		for _, v := range snap.vaults {
			if err := s.store.UpsertVaultTx(ctx, tx, snap.slot, v); err != nil {
				return fmt.Errorf("upsert vault %s: %w", v.Address, err)
			}
		}
		for _, book := range BuildSnapshots(snap.orders, started.Unix(), snap.slot) {
			if err := s.store.UpsertOrderbookSnapshotTx(ctx, tx, book); err != nil {
				return fmt.Errorf("upsert orderbook snapshot %s: %w", book.Market, err)
			}
		}
		return s.store.UpsertSyncStateTx(ctx, tx, snap.slot, snap.size())
	})
	if err != nil {
		return err
	}

	s.metrics.SyncDuration.Observe(time.Since(started).Seconds())
	s.metrics.AccountsSynced.WithLabelValues(codec.KindOrder.String()).Add(float64(len(snap.orders)))
	s.metrics.AccountsSynced.WithLabelValues(codec.KindSlotNFT.String()).Add(float64(len(snap.slotNFTs)))
	s.metrics.AccountsSynced.WithLabelValues(codec.KindAuction.String()).Add(float64(len(snap.auctions)))
	s.metrics.AccountsSynced.WithLabelValues(codec.KindVault.String()).Add(float64(len(snap.vaults)))

	s.logger.Info("sync complete",
		"slot", snap.slot,
		"orders", len(snap.orders),
		"slot_nfts", len(snap.slotNFTs),
		"auctions", len(snap.auctions),
		"vaults", len(snap.vaults),
		"took", time.Since(started).String(),
	)
	return nil
}

func (s *Service) collect(ctx context.Context) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.slot, err = s.slots.Slot(gctx)
		return wrapScan("slot", err)
	})
	g.Go(func() (err error) {
		snap.orders, err = s.source.AllOrders(gctx)
		return wrapScan("orders", err)
	})
	g.Go(func() (err error) {
		snap.slotNFTs, err = s.source.AllSlotNFTs(gctx)
		return wrapScan("slot nfts", err)
	})
	g.Go(func() (err error) {
		snap.auctions, err = s.source.Auctions(gctx)
		return wrapScan("auctions", err)
	})
	g.Go(func() (err error) {
		snap.vaults, err = s.source.AllVaults(gctx)
		return wrapScan("vaults", err)
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func wrapScan(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("scan %s: %w", what, err)
}
