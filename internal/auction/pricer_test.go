package auction

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
)

func auction(start, reserve uint64, from, to int64) codec.Auction {
	return codec.Auction{
		Address:       solana.NewWallet().PublicKey(),
		StartingPrice: start,
		ReservePrice:  reserve,
		StartTime:     from,
		EndTime:       to,
	}
}

func TestPriceScenario(t *testing.T) {
	a := auction(5_000_000_000, 1_000_000_000, 0, 100)

	cases := map[int64]uint64{
		0:   5_000_000_000,
		50:  3_000_000_000,
		100: 1_000_000_000,
		150: 1_000_000_000,
	}
	for at, want := range cases {
		got, err := Price(a, at)
		require.NoError(t, err)
		assert.Equal(t, want, got, "t=%d", at)
	}
}

func TestPriceBeforeStart(t *testing.T) {
	a := auction(10, 1, 100, 200)
	_, err := Price(a, 99)
	assert.ErrorIs(t, err, errs.ErrAuctionNotStarted)
	assert.Equal(t, a.Address.String(), errs.SubjectOf(err))
}

func TestPriceRejectsInvalidRecords(t *testing.T) {
	_, err := Price(auction(10, 1, 100, 100), 100)
	assert.ErrorIs(t, err, errs.ErrMalformedAccount)
	_, err = Price(auction(1, 10, 0, 100), 50)
	assert.ErrorIs(t, err, errs.ErrMalformedAccount)
}

func TestPriceRoundsForSeller(t *testing.T) {
	// 7 over 3 seconds does not divide evenly
	a := auction(8, 1, 0, 3)
	want := []uint64{8, 5, 3, 1}
	for at, w := range want {
		got, err := Price(a, int64(at))
		require.NoError(t, err)
		assert.Equal(t, w, got, "t=%d", at)
	}
}

func TestPriceIsMonotoneAndBounded(t *testing.T) {
	a := auction(math.MaxUint64, 3, -1_000, 9_999)
	prev := uint64(math.MaxUint64)
	for at := a.StartTime; at <= a.EndTime; at += 7 {
		p, err := Price(a, at)
		require.NoError(t, err)
		require.LessOrEqual(t, p, prev)
		require.GreaterOrEqual(t, p, a.ReservePrice)
		require.LessOrEqual(t, p, a.StartingPrice)
		prev = p
	}
	end, err := Price(a, a.EndTime)
	require.NoError(t, err)
	assert.Equal(t, a.ReservePrice, end)
}

func TestFlatAuction(t *testing.T) {
	p, err := Price(auction(42, 42, 0, 10), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), p)
}

func TestQuoteAt(t *testing.T) {
	a := auction(5_000_000_000, 1_000_000_000, 1_000, 1_100)

	q, err := QuoteAt(a, 1_025)
	require.NoError(t, err)
	assert.Equal(t, Quote{Price: 4_000_000_000, Elapsed: 25, Remaining: 75}, q)

	q, err = QuoteAt(a, 2_000)
	require.NoError(t, err)
	assert.Equal(t, Quote{Price: 1_000_000_000, Elapsed: 100, Remaining: 0, Ended: true}, q)

	_, err = QuoteAt(a, 0)
	assert.ErrorIs(t, err, errs.ErrAuctionNotStarted)
}
