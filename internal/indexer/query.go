package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type OrderFilter struct {
	Market string
	Trader string
	Status string
	Limit  int
	Offset int
}

type OrderRecord struct {
	Address             string `json:"address"`
	Market              string `json:"market"`
	Trader              string `json:"trader"`
	Side                string `json:"side"`
	Price               string `json:"price"`
	Amount              string `json:"amount"`
	FilledAmount        string `json:"filled_amount"`
	SlotReservationTime int64  `json:"slot_reservation_time"`
	Status              string `json:"status"`
	CreatedAt           int64  `json:"created_at"`
	BatchID             string `json:"batch_id"`
	Slot                uint64 `json:"slot"`
	UpdatedAt           int64  `json:"updated_at"`
}

type AuctionFilter struct {
	Status string
	Seller string
	Limit  int
	Offset int
}

type AuctionRecord struct {
	Address       string  `json:"address"`
	SlotNFT       string  `json:"slot_nft"`
	Seller        string  `json:"seller"`
	Winner        *string `json:"winner,omitempty"`
	StartingPrice string  `json:"starting_price"`
	ReservePrice  string  `json:"reserve_price"`
	CurrentPrice  string  `json:"current_price"`
	FinalPrice    string  `json:"final_price"`
	StartTime     int64   `json:"start_time"`
	EndTime       int64   `json:"end_time"`
	Status        string  `json:"status"`
	Slot          uint64  `json:"slot"`
	UpdatedAt     int64   `json:"updated_at"`
}

type SlotNFTFilter struct {
	Owner  string
	Status string
	Limit  int
	Offset int
}

type SlotNFTRecord struct {
	Address      string `json:"address"`
	Owner        string `json:"owner"`
	SlotTime     int64  `json:"slot_time"`
	Capacity     string `json:"capacity"`
	UsedCapacity string `json:"used_capacity"`
	Status       string `json:"status"`
	MintedAt     int64  `json:"minted_at"`
	Slot         uint64 `json:"slot"`
	UpdatedAt    int64  `json:"updated_at"`
}

type VaultFilter struct {
	Authority string
	Limit     int
	Offset    int
}

type ReservedSlotRecord struct {
	SlotTime   int64  `json:"slot_time"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	ReservedAt int64  `json:"reserved_at"`
}

type VaultRecord struct {
	Address            string               `json:"address"`
	Authority          string               `json:"authority"`
	StrategyType       string               `json:"strategy_type"`
	RiskLevel          int                  `json:"risk_level"`
	RebalanceFrequency int64                `json:"rebalance_frequency"`
	TotalDeposits      string               `json:"total_deposits"`
	TotalShares        string               `json:"total_shares"`
	LastRebalance      int64                `json:"last_rebalance"`
	ReservedSlots      []ReservedSlotRecord `json:"reserved_slots"`
	Slot               uint64               `json:"slot"`
	UpdatedAt          int64                `json:"updated_at"`
}

type SyncState struct {
	LastSlot  uint64 `json:"last_slot"`
	Accounts  int64  `json:"accounts"`
	UpdatedAt int64  `json:"updated_at"`
}

// where collects equality clauses for non-empty filter values.
type where struct {
	clauses []string
	args    []any
}

func (w *where) eq(column, value string) {
	if value == "" {
		return
	}
	w.clauses = append(w.clauses, column+" = ?")
	w.args = append(w.args, value)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return "1 = 1"
	}
	return strings.Join(w.clauses, " AND ")
}

func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]OrderRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	var w where
	w.eq("market", filter.Market)
	w.eq("trader", filter.Trader)
	w.eq("status", filter.Status)

	query := fmt.Sprintf(`
		SELECT
			address, market, trader, side, price, amount, filled_amount,
			slot_reservation_time, status, created_at, batch_id, slot, updated_at
		FROM orders
		WHERE %s
		ORDER BY created_at DESC, address ASC
		LIMIT ? OFFSET ?
	`, w.String())
	args := append(w.args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]OrderRecord, 0, limit)
	for rows.Next() {
		var item OrderRecord
		var slot int64
		if err := rows.Scan(
			&item.Address,
			&item.Market,
			&item.Trader,
			&item.Side,
			&item.Price,
			&item.Amount,
			&item.FilledAmount,
			&item.SlotReservationTime,
			&item.Status,
			&item.CreatedAt,
			&item.BatchID,
			&slot,
			&item.UpdatedAt,
		); err != nil {
			return nil, 0, 0, err
		}
		item.Slot = uint64(slot)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return items, limit, offset, nil
}

func (s *Store) ListAuctions(ctx context.Context, filter AuctionFilter) ([]AuctionRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	var w where
	w.eq("status", filter.Status)
	w.eq("seller", filter.Seller)

	query := fmt.Sprintf(`
		SELECT
			address, slot_nft, seller, winner, starting_price, reserve_price,
			current_price, final_price, start_time, end_time, status, slot, updated_at
		FROM auctions
		WHERE %s
		ORDER BY end_time ASC, address ASC
		LIMIT ? OFFSET ?
	`, w.String())
	args := append(w.args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]AuctionRecord, 0, limit)
	for rows.Next() {
		var item AuctionRecord
		var winner sql.NullString
		var slot int64
		if err := rows.Scan(
			&item.Address,
			&item.SlotNFT,
			&item.Seller,
			&winner,
			&item.StartingPrice,
			&item.ReservePrice,
			&item.CurrentPrice,
			&item.FinalPrice,
			&item.StartTime,
			&item.EndTime,
			&item.Status,
			&slot,
			&item.UpdatedAt,
		); err != nil {
			return nil, 0, 0, err
		}
		if winner.Valid {
			item.Winner = &winner.String
		}
		item.Slot = uint64(slot)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return items, limit, offset, nil
}

func (s *Store) ListSlotNFTs(ctx context.Context, filter SlotNFTFilter) ([]SlotNFTRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	var w where
	w.eq("owner", filter.Owner)
	w.eq("status", filter.Status)

	query := fmt.Sprintf(`
		SELECT
			address, owner, slot_time, capacity, used_capacity, status, minted_at, slot, updated_at
		FROM slot_nfts
		WHERE %s
		ORDER BY slot_time ASC, address ASC
		LIMIT ? OFFSET ?
	`, w.String())
	args := append(w.args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]SlotNFTRecord, 0, limit)
	for rows.Next() {
		var item SlotNFTRecord
		var slot int64
		if err := rows.Scan(
			&item.Address,
			&item.Owner,
			&item.SlotTime,
			&item.Capacity,
			&item.UsedCapacity,
			&item.Status,
			&item.MintedAt,
			&slot,
			&item.UpdatedAt,
		); err != nil {
			return nil, 0, 0, err
		}
		item.Slot = uint64(slot)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return items, limit, offset, nil
}

func (s *Store) ListVaults(ctx context.Context, filter VaultFilter) ([]VaultRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	var w where
	w.eq("authority", filter.Authority)

	query := fmt.Sprintf(`
		SELECT
			address, authority, strategy_type, risk_level, rebalance_frequency,
			total_deposits, total_shares, last_rebalance, reserved_slots_json, slot, updated_at
		FROM vaults
		WHERE %s
		ORDER BY address ASC
		LIMIT ? OFFSET ?
	`, w.String())
	args := append(w.args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]VaultRecord, 0, limit)
	for rows.Next() {
		var item VaultRecord
		var reserved string
		var slot int64
		if err := rows.Scan(
			&item.Address,
			&item.Authority,
			&item.StrategyType,
			&item.RiskLevel,
			&item.RebalanceFrequency,
			&item.TotalDeposits,
			&item.TotalShares,
			&item.LastRebalance,
			&reserved,
			&slot,
			&item.UpdatedAt,
		); err != nil {
			return nil, 0, 0, err
		}
		if err := json.Unmarshal([]byte(reserved), &item.ReservedSlots); err != nil {
			return nil, 0, 0, fmt.Errorf("vault %s reserved slots: %w", item.Address, err)
		}
		item.Slot = uint64(slot)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return items, limit, offset, nil
}

// SyncState reports the last completed sync. ok is false before the first.
func (s *Store) SyncState(ctx context.Context) (state SyncState, ok bool, err error) {
	var slot int64
	err = s.db.QueryRowContext(ctx, `
		SELECT last_slot, accounts, updated_at FROM sync_state WHERE id = 1
	`).Scan(&slot, &state.Accounts, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncState{}, false, nil
	}
	if err != nil {
		return SyncState{}, false, err
	}
	state.LastSlot = uint64(slot)
	return state, true, nil
}

func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
