package orderbook

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/codec"
)

func order(side codec.Side, price uint64, slotTime int64) codec.Order {
	return codec.Order{
		Address:             solana.NewWallet().PublicKey(),
		Side:                side,
		Price:               price,
		Amount:              1_000_000_000,
		SlotReservationTime: slotTime,
		Status:              codec.OrderStatusOpen,
	}
}

func TestProjectScenario(t *testing.T) {
	orders := []codec.Order{
		order(codec.SideSell, 1_100_000, 100),
		order(codec.SideSell, 1_050_000, 50),
		order(codec.SideBuy, 1_000_000, 10),
	}
	book := Project(orders)

	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, uint64(1_050_000), ask.Price)
	assert.Equal(t, int64(50), ask.SlotReservationTime)

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, uint64(1_000_000), bid.Price)
	assert.Equal(t, int64(10), bid.SlotReservationTime)

	spread, ok := book.Spread()
	require.True(t, ok)
	assert.Equal(t, uint64(50_000), spread)
}

func TestEqualPriceSortsByReservationTime(t *testing.T) {
	late := order(codec.SideBuy, 2_000_000, 300)
	early := order(codec.SideBuy, 2_000_000, 100)
	better := order(codec.SideBuy, 2_100_000, 900)

	book := Project([]codec.Order{late, early, better})
	require.Len(t, book.Bids, 3)
	assert.Equal(t, better.Address, book.Bids[0].Address)
	assert.Equal(t, early.Address, book.Bids[1].Address)
	assert.Equal(t, late.Address, book.Bids[2].Address)
}

func TestProjectSkipsNonOpenOrders(t *testing.T) {
	partial := order(codec.SideSell, 1, 1)
	partial.Status = codec.OrderStatusPartiallyFilled
	filled := order(codec.SideBuy, 1, 1)
	filled.Status = codec.OrderStatusFilled
	cancelled := order(codec.SideBuy, 1, 1)
	cancelled.Status = codec.OrderStatusCancelled

	book := Project([]codec.Order{partial, filled, cancelled})
	assert.Empty(t, book.Asks)
	assert.Empty(t, book.Bids)
	_, ok := book.Spread()
	assert.False(t, ok)
}

func TestSpreadUndefinedWithOneSide(t *testing.T) {
	book := Project([]codec.Order{order(codec.SideSell, 5, 1)})
	_, ok := book.Spread()
	assert.False(t, ok)
	_, ok = book.BestBid()
	assert.False(t, ok)
}

func TestCrossedBookSpreadIsZero(t *testing.T) {
	book := Project([]codec.Order{order(codec.SideSell, 90, 1), order(codec.SideBuy, 100, 1)})
	spread, ok := book.Spread()
	require.True(t, ok)
	assert.Zero(t, spread)
}

func TestProjectIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var orders []codec.Order
	for range 200 {
		side := codec.SideBuy
		if rng.IntN(2) == 1 {
			side = codec.SideSell
		}
		o := order(side, uint64(rng.IntN(20)+1)*10_000, int64(rng.IntN(50)))
		if rng.IntN(5) == 0 {
			o.Status = codec.OrderStatusFilled
		}
		orders = append(orders, o)
	}

	want := Project(orders)
	for range 10 {
		shuffled := slices.Clone(orders)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Project(shuffled))
	}

	for i := 1; i < len(want.Asks); i++ {
		prev, cur := want.Asks[i-1], want.Asks[i]
		require.LessOrEqual(t, prev.Price, cur.Price)
		if prev.Price == cur.Price {
			require.LessOrEqual(t, prev.SlotReservationTime, cur.SlotReservationTime)
		}
	}
	for i := 1; i < len(want.Bids); i++ {
		prev, cur := want.Bids[i-1], want.Bids[i]
		require.GreaterOrEqual(t, prev.Price, cur.Price)
		if prev.Price == cur.Price {
			require.LessOrEqual(t, prev.SlotReservationTime, cur.SlotReservationTime)
		}
	}
}

func TestProjectDoesNotAliasInput(t *testing.T) {
	orders := []codec.Order{order(codec.SideSell, 2, 1), order(codec.SideSell, 1, 1)}
	first := orders[0].Address
	book := Project(orders)
	book.Asks[0].Price = 999
	assert.Equal(t, first, orders[0].Address)
	assert.Equal(t, uint64(2), orders[0].Price)
	assert.Equal(t, uint64(1), orders[1].Price)
}

func TestByMarket(t *testing.T) {
	m1 := solana.NewWallet().PublicKey()
	m2 := solana.NewWallet().PublicKey()
	a := order(codec.SideBuy, 1, 1)
	a.Market = m1
	b := order(codec.SideBuy, 1, 1)
	b.Market = m2

	got := ByMarket([]codec.Order{a, b}, m1)
	require.Len(t, got, 1)
	assert.Equal(t, a.Address, got[0].Address)
}

func TestDepth(t *testing.T) {
	partFilled := order(codec.SideSell, 100, 2)
	partFilled.FilledAmount = 400_000_000
	book := Project([]codec.Order{
		order(codec.SideSell, 100, 1),
		partFilled,
		order(codec.SideSell, 110, 1),
		order(codec.SideSell, 120, 1),
		order(codec.SideBuy, 90, 1),
	})

	asks, bids := Depth(book, 2)
	require.Len(t, asks, 2)
	assert.Equal(t, Level{Price: 100, Quantity: 1_600_000_000, Orders: 2}, asks[0])
	assert.Equal(t, Level{Price: 110, Quantity: 1_000_000_000, Orders: 1}, asks[1])
	require.Len(t, bids, 1)

	all, _ := Depth(book, 0)
	assert.Len(t, all, 3)
}
