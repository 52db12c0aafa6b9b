package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coldbell/chronos/backend/internal/codec"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *DB
}

type DB struct {
	raw *sql.DB
}

type Tx struct {
	raw *sql.Tx
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{raw: tx}, nil
}

func (db *DB) Close() error {
	return db.raw.Close()
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) Commit() error {
	return tx.raw.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.raw.Rollback()
}

// rebindPostgresPlaceholders turns '?' placeholders into $1..$n, leaving
// quoted literals alone.
func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}

// NewStore opens Postgres through the pgx driver and applies the schema.
func NewStore(dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewStoreWithDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithDB wraps an already open handle. The schema is not touched.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: &DB{raw: db}}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Amounts are u64 on chain and kept as TEXT so they never overflow BIGINT.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sync_state (
		id BIGINT PRIMARY KEY CHECK (id = 1),
		last_slot BIGINT NOT NULL,
		accounts BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS orders (
		address TEXT PRIMARY KEY,
		market TEXT NOT NULL,
		trader TEXT NOT NULL,
		side TEXT NOT NULL,
		price TEXT NOT NULL,
		amount TEXT NOT NULL,
		filled_amount TEXT NOT NULL,
		slot_reservation_time BIGINT NOT NULL,
		status TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		batch_id TEXT NOT NULL,
		slot BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_orders_market_status ON orders(market, status);`,
	`CREATE INDEX IF NOT EXISTS idx_orders_trader ON orders(trader, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS slot_nfts (
		address TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		slot_time BIGINT NOT NULL,
		capacity TEXT NOT NULL,
		used_capacity TEXT NOT NULL,
		status TEXT NOT NULL,
		minted_at BIGINT NOT NULL,
		slot BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_slot_nfts_owner ON slot_nfts(owner, slot_time);`,
	`CREATE TABLE IF NOT EXISTS auctions (
		address TEXT PRIMARY KEY,
		slot_nft TEXT NOT NULL,
		seller TEXT NOT NULL,
		winner TEXT,
		starting_price TEXT NOT NULL,
		reserve_price TEXT NOT NULL,
		current_price TEXT NOT NULL,
		final_price TEXT NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT NOT NULL,
		status TEXT NOT NULL,
		slot BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions(status, end_time);`,
	`CREATE TABLE IF NOT EXISTS vaults (
		address TEXT PRIMARY KEY,
		authority TEXT NOT NULL,
		strategy_type TEXT NOT NULL,
		risk_level INTEGER NOT NULL,
		rebalance_frequency BIGINT NOT NULL,
		total_deposits TEXT NOT NULL,
		total_shares TEXT NOT NULL,
		last_rebalance BIGINT NOT NULL,
		reserved_slots_json TEXT NOT NULL,
		slot BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_vaults_authority ON vaults(authority);`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range slices.Concat(schema, orderbookSchema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertSyncStateTx(ctx context.Context, tx *Tx, slot uint64, accounts int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_slot, accounts, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_slot = excluded.last_slot,
			accounts = excluded.accounts,
			updated_at = excluded.updated_at
	`, int64(slot), int64(accounts), time.Now().Unix())
	return err
}

func (s *Store) UpsertOrderTx(ctx context.Context, tx *Tx, slot uint64, order codec.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			address, market, trader, side, price, amount, filled_amount,
			slot_reservation_time, status, created_at, batch_id, slot, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			filled_amount = excluded.filled_amount,
			status = excluded.status,
			slot = excluded.slot,
			updated_at = excluded.updated_at
	`,
		order.Address.String(),
		order.Market.String(),
		order.Trader.String(),
		order.Side.String(),
		formatU64(order.Price),
		formatU64(order.Amount),
		formatU64(order.FilledAmount),
		order.SlotReservationTime,
		order.Status.String(),
		order.CreatedAt,
		formatU64(order.BatchID),
		int64(slot),
		time.Now().Unix(),
	)
	return err
}

func (s *Store) UpsertSlotNFTTx(ctx context.Context, tx *Tx, slot uint64, nft codec.SlotNFT) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO slot_nfts (
			address, owner, slot_time, capacity, used_capacity, status, minted_at, slot, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			owner = excluded.owner,
			used_capacity = excluded.used_capacity,
			status = excluded.status,
			slot = excluded.slot,
			updated_at = excluded.updated_at
	`,
		nft.Address.String(),
		nft.Owner.String(),
		nft.SlotTime,
		formatU64(nft.Capacity),
		formatU64(nft.UsedCapacity),
		nft.Status.String(),
		nft.MintedAt,
		int64(slot),
		time.Now().Unix(),
	)
	return err
}

func (s *Store) UpsertAuctionTx(ctx context.Context, tx *Tx, slot uint64, a codec.Auction) error {
	var winner sql.NullString
	if a.Winner != nil {
		winner = sql.NullString{String: a.Winner.String(), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO auctions (
			address, slot_nft, seller, winner, starting_price, reserve_price,
			current_price, final_price, start_time, end_time, status, slot, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			winner = excluded.winner,
			current_price = excluded.current_price,
			final_price = excluded.final_price,
			status = excluded.status,
			slot = excluded.slot,
			updated_at = excluded.updated_at
	`,
		a.Address.String(),
		a.SlotNFT.String(),
		a.Seller.String(),
		winner,
		formatU64(a.StartingPrice),
		formatU64(a.ReservePrice),
		formatU64(a.CurrentPrice),
		formatU64(a.FinalPrice),
		a.StartTime,
		a.EndTime,
		a.Status.String(),
		int64(slot),
		time.Now().Unix(),
	)
	return err
}

func (s *Store) UpsertVaultTx(ctx context.Context, tx *Tx, slot uint64, v codec.Vault) error {
	reserved := make([]ReservedSlotRecord, 0, len(v.ReservedSlots))
	for _, rs := range v.ReservedSlots {
		reserved = append(reserved, ReservedSlotRecord{
			SlotTime:   rs.SlotTime,
			Type:       rs.Type.String(),
			Status:     rs.Status.String(),
			ReservedAt: rs.ReservedAt,
		})
	}
	raw, err := json.Marshal(reserved)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vaults (
			address, authority, strategy_type, risk_level, rebalance_frequency,
			total_deposits, total_shares, last_rebalance, reserved_slots_json, slot, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			strategy_type = excluded.strategy_type,
			risk_level = excluded.risk_level,
			rebalance_frequency = excluded.rebalance_frequency,
			total_deposits = excluded.total_deposits,
			total_shares = excluded.total_shares,
			last_rebalance = excluded.last_rebalance,
			reserved_slots_json = excluded.reserved_slots_json,
			slot = excluded.slot,
			updated_at = excluded.updated_at
	`,
		v.Address.String(),
		v.Authority.String(),
		v.StrategyType.String(),
		int(v.RiskLevel),
		v.RebalanceFrequency,
		formatU64(v.TotalDeposits),
		formatU64(v.TotalShares),
		v.LastRebalance,
		string(raw),
		int64(slot),
		time.Now().Unix(),
	)
	return err
}

func formatU64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
