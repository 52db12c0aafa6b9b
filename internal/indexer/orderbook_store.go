package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/orderbook"
)

// DepthSnapshotLevels bounds the price levels kept per side in a snapshot.
const DepthSnapshotLevels = 20

const (
	orderbookSideBid = "bid"
	orderbookSideAsk = "ask"
)

type OrderbookLevel struct {
	Side     string `json:"side"`
	Level    int    `json:"level"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Orders   int    `json:"orders"`
}

type OrderbookSnapshot struct {
	Market       string           `json:"market"`
	SnapshotTime int64            `json:"snapshot_time"`
	Slot         uint64           `json:"slot"`
	BestBid      *string          `json:"best_bid,omitempty"`
	BestAsk      *string          `json:"best_ask,omitempty"`
	Spread       *string          `json:"spread,omitempty"`
	Levels       []OrderbookLevel `json:"levels"`
}

type DepthHistoryFilter struct {
	Market   string
	FromUnix int64
	ToUnix   int64
	Limit    int
	Offset   int
}

var orderbookSchema = []string{
	`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
		id BIGSERIAL PRIMARY KEY,
		market TEXT NOT NULL,
		snapshot_time BIGINT NOT NULL,
		slot BIGINT NOT NULL,
		best_bid TEXT,
		best_ask TEXT,
		spread TEXT,
		levels_json TEXT NOT NULL DEFAULT '[]',
		UNIQUE(market, snapshot_time)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_orderbook_snapshots_lookup
		ON orderbook_snapshots(market, snapshot_time DESC);`,
}

// BuildSnapshots projects orders into one depth snapshot per market.
// Markets are returned in address order.
func BuildSnapshots(orders []codec.Order, snapshotTime int64, slot uint64) []OrderbookSnapshot {
	markets := make(map[solana.PublicKey][]codec.Order)
	for _, o := range orders {
		markets[o.Market] = append(markets[o.Market], o)
	}

	out := make([]OrderbookSnapshot, 0, len(markets))
	for market, list := range markets {
		book := orderbook.Project(list)
		snap := OrderbookSnapshot{
			Market:       market.String(),
			SnapshotTime: snapshotTime,
			Slot:         slot,
		}
		if bid, ok := book.BestBid(); ok {
			snap.BestBid = ptr(formatU64(bid.Price))
		}
		if ask, ok := book.BestAsk(); ok {
			snap.BestAsk = ptr(formatU64(ask.Price))
		}
		if spread, ok := book.Spread(); ok {
			snap.Spread = ptr(formatU64(spread))
		}
		asks, bids := orderbook.Depth(book, DepthSnapshotLevels)
		snap.Levels = append(toLevels(orderbookSideBid, bids), toLevels(orderbookSideAsk, asks)...)
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b OrderbookSnapshot) int { return strings.Compare(a.Market, b.Market) })
	return out
}

func toLevels(side string, levels []orderbook.Level) []OrderbookLevel {
	out := make([]OrderbookLevel, 0, len(levels))
	for i, l := range levels {
		out = append(out, OrderbookLevel{
			Side:     side,
			Level:    i + 1,
			Price:    formatU64(l.Price),
			Quantity: formatU64(l.Quantity),
			Orders:   l.Orders,
		})
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func (s *Store) UpsertOrderbookSnapshotTx(ctx context.Context, tx *Tx, snapshot OrderbookSnapshot) error {
	levels := snapshot.Levels
	if levels == nil {
		levels = make([]OrderbookLevel, 0)
	}
	levelsJSON, err := json.Marshal(levels)
	if err != nil {
		return fmt.Errorf("marshal orderbook levels: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orderbook_snapshots (
			market, snapshot_time, slot, best_bid, best_ask, spread, levels_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market, snapshot_time) DO UPDATE SET
			slot = excluded.slot,
			best_bid = excluded.best_bid,
			best_ask = excluded.best_ask,
			spread = excluded.spread,
			levels_json = excluded.levels_json
	`,
		snapshot.Market,
		snapshot.SnapshotTime,
		int64(snapshot.Slot),
		snapshot.BestBid,
		snapshot.BestAsk,
		snapshot.Spread,
		string(levelsJSON),
	)
	return err
}

func (s *Store) ListDepthHistory(ctx context.Context, filter DepthHistoryFilter) ([]OrderbookSnapshot, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)

	clauses := []string{"market = ?"}
	args := []any{filter.Market}
	if filter.FromUnix > 0 {
		clauses = append(clauses, "snapshot_time >= ?")
		args = append(args, filter.FromUnix)
	}
	if filter.ToUnix > 0 {
		clauses = append(clauses, "snapshot_time <= ?")
		args = append(args, filter.ToUnix)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT market, snapshot_time, slot, best_bid, best_ask, spread, levels_json
		FROM orderbook_snapshots
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY snapshot_time DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	out := make([]OrderbookSnapshot, 0, limit)
	for rows.Next() {
		var item OrderbookSnapshot
		var slot int64
		var levelsJSON string
		if err := rows.Scan(
			&item.Market,
			&item.SnapshotTime,
			&slot,
			&item.BestBid,
			&item.BestAsk,
			&item.Spread,
			&levelsJSON,
		); err != nil {
			return nil, 0, 0, err
		}
		if strings.TrimSpace(levelsJSON) == "" {
			levelsJSON = "[]"
		}
		if err := json.Unmarshal([]byte(levelsJSON), &item.Levels); err != nil {
			return nil, 0, 0, fmt.Errorf("decode levels_json for %s@%d: %w", item.Market, item.SnapshotTime, err)
		}
		if item.Levels == nil {
			item.Levels = make([]OrderbookLevel, 0)
		}
		item.Slot = uint64(slot)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return out, limit, offset, nil
}
