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
)

func openOrder(market solana.PublicKey, side codec.Side, price, amount uint64) codec.Order {
	return codec.Order{
		Address: solana.NewWallet().PublicKey(),
		Market:  market,
		Trader:  solana.NewWallet().PublicKey(),
		Side:    side,
		Price:   price,
		Amount:  amount,
		Status:  codec.OrderStatusOpen,
	}
}

func TestBuildSnapshotsPerMarket(t *testing.T) {
	m1 := solana.NewWallet().PublicKey()
	m2 := solana.NewWallet().PublicKey()
	orders := []codec.Order{
		openOrder(m1, codec.SideSell, 1_100_000, 1),
		openOrder(m1, codec.SideSell, 1_050_000, 2),
		openOrder(m1, codec.SideBuy, 1_000_000, 3),
		openOrder(m2, codec.SideBuy, 500, 4),
	}

	snaps := BuildSnapshots(orders, 1_700_000_000, 77)
	require.Len(t, snaps, 2)
	assert.Less(t, snaps[0].Market, snaps[1].Market)

	var first OrderbookSnapshot
	for _, s := range snaps {
		if s.Market == m1.String() {
			first = s
		}
	}
	require.NotNil(t, first.BestBid)
	require.NotNil(t, first.BestAsk)
	require.NotNil(t, first.Spread)
	assert.Equal(t, "1000000", *first.BestBid)
	assert.Equal(t, "1050000", *first.BestAsk)
	assert.Equal(t, "50000", *first.Spread)
	assert.Equal(t, uint64(77), first.Slot)
	assert.Equal(t, []OrderbookLevel{
		{Side: "bid", Level: 1, Price: "1000000", Quantity: "3", Orders: 1},
		{Side: "ask", Level: 1, Price: "1050000", Quantity: "2", Orders: 1},
		{Side: "ask", Level: 2, Price: "1100000", Quantity: "1", Orders: 1},
	}, first.Levels)
}

func TestBuildSnapshotsOneSidedBookHasNoSpread(t *testing.T) {
	m := solana.NewWallet().PublicKey()
	snaps := BuildSnapshots([]codec.Order{openOrder(m, codec.SideBuy, 10, 1)}, 1, 1)
	require.Len(t, snaps, 1)
	assert.NotNil(t, snaps[0].BestBid)
	assert.Nil(t, snaps[0].BestAsk)
	assert.Nil(t, snaps[0].Spread)
}

func TestListDepthHistory(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"market", "snapshot_time", "slot", "best_bid", "best_ask", "spread", "levels_json",
	}).
		AddRow("m1", int64(20), int64(2), "10", "12", "2", `[{"side":"bid","level":1,"price":"10","quantity":"5","orders":1}]`).
		AddRow("m1", int64(10), int64(1), nil, nil, nil, "")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE market = $1 AND snapshot_time >= $2")).
		WithArgs("m1", int64(5), 50, 0).
		WillReturnRows(rows)

	items, _, _, err := store.ListDepthHistory(context.Background(), DepthHistoryFilter{Market: "m1", FromUnix: 5})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Spread)
	assert.Equal(t, "2", *items[0].Spread)
	assert.Len(t, items[0].Levels, 1)
	assert.Nil(t, items[1].BestBid)
	assert.Empty(t, items[1].Levels)
	require.NoError(t, mock.ExpectationsWereMet())
}
