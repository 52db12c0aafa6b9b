package indexer

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/config"
)

type fakeSource struct {
	orders   []codec.Order
	slotNFTs []codec.SlotNFT
	auctions []codec.Auction
	vaults   []codec.Vault
	err      error
}

func (f *fakeSource) AllOrders(context.Context) ([]codec.Order, error) { return f.orders, nil }
func (f *fakeSource) AllSlotNFTs(context.Context) ([]codec.SlotNFT, error) {
	return f.slotNFTs, nil
}
func (f *fakeSource) Auctions(context.Context) ([]codec.Auction, error) { return f.auctions, f.err }
func (f *fakeSource) AllVaults(context.Context) ([]codec.Vault, error)  { return f.vaults, nil }

type fixedSlot uint64

func (s fixedSlot) Slot(context.Context) (uint64, error) { return uint64(s), nil }

func TestSyncOnceWritesOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	market := solana.NewWallet().PublicKey()
	src := &fakeSource{
		orders: []codec.Order{
			openOrder(market, codec.SideBuy, 1_000_000, 1),
			openOrder(market, codec.SideSell, 1_050_000, 1),
		},
		slotNFTs: []codec.SlotNFT{{Address: solana.NewWallet().PublicKey(), Owner: solana.NewWallet().PublicKey()}},
		vaults: []codec.Vault{{
			Address:       solana.NewWallet().PublicKey(),
			Authority:     solana.NewWallet().PublicKey(),
			ReservedSlots: []codec.ReservedSlot{{SlotTime: 5, Type: codec.ReservationJIT}},
		}},
	}
	svc := NewService(config.IndexerConfig{}, src, fixedSlot(321), store, nil, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slot_nfts")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vaults")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orderbook_snapshots")).
		WithArgs(market.String(), sqlmock.AnyArg(), int64(321), "1000000", "1050000", "50000", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sync_state")).
		WithArgs(int64(321), int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.SyncOnce(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncOnceScanFailureWritesNothing(t *testing.T) {
	store, mock := newMockStore(t)
	src := &fakeSource{err: context.DeadlineExceeded}
	svc := NewService(config.IndexerConfig{}, src, fixedSlot(1), store, nil, nil)

	err := svc.SyncOnce(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "scan auctions")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncOnceRollsBackOnWriteFailure(t *testing.T) {
	store, mock := newMockStore(t)
	src := &fakeSource{slotNFTs: []codec.SlotNFT{{Address: solana.NewWallet().PublicKey()}}}
	svc := NewService(config.IndexerConfig{}, src, fixedSlot(1), store, nil, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slot_nfts")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := svc.SyncOnce(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}
