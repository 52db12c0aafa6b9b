package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/errs"
)

func TestDemandMultiplier(t *testing.T) {
	cases := []struct {
		offset time.Duration
		tenths uint64
		price  uint64
		demand DemandLevel
	}{
		{0, 25, 2_500_000, DemandCritical},
		{4999 * time.Millisecond, 25, 2_500_000, DemandCritical},
		{-4 * time.Second, 25, 2_500_000, DemandCritical},
		{5 * time.Second, 15, 1_500_000, DemandMedium},
		{29 * time.Second, 15, 1_500_000, DemandMedium},
		{30 * time.Second, 10, 1_000_000, DemandLow},
		{-time.Hour, 10, 1_000_000, DemandLow},
	}
	for _, tc := range cases {
		mult, price := SlotPriceAt(epoch, epoch.Add(tc.offset))
		assert.Equal(t, tc.tenths, mult, tc.offset.String())
		assert.Equal(t, tc.price, price, tc.offset.String())
		assert.Equal(t, tc.demand, DemandFor(mult), tc.offset.String())
	}
	assert.Equal(t, DemandHigh, DemandFor(16))
}

func TestSlotMarketPrices(t *testing.T) {
	s, _ := newTestScheduler(t)

	prices, err := s.SlotMarketPrices(epoch, epoch.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, prices, 6)
	for i, p := range prices {
		assert.Equal(t, epoch.Add(time.Duration(i)*SlotInterval), p.SlotTime)
		assert.Equal(t, uint64(2_500_000), p.PriceLamports)
		assert.Equal(t, uint64(700), p.AvailableCapacity)
	}

	again, err := s.SlotMarketPrices(epoch, epoch.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, prices, again)

	none, err := s.SlotMarketPrices(epoch, epoch.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.SlotMarketPrices(epoch, epoch.Add(MaxPriceSamples*SlotInterval))
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestRandomCapacityBounds(t *testing.T) {
	for range 1000 {
		c := RandomCapacity{}.Capacity(epoch)
		require.GreaterOrEqual(t, c, uint64(500))
		require.LessOrEqual(t, c, uint64(1499))
	}
}

func TestPreConfirmation(t *testing.T) {
	s, _ := newTestScheduler(t)
	pc := s.PreConfirmation("tx1")
	assert.Equal(t, "tx1", pc.TransactionID)
	assert.Equal(t, uint64(1_700_000_000_000/400), pc.SlotNumber)
	assert.Equal(t, uint16(999), pc.ConfidenceTenths)
	assert.Equal(t, 25*time.Millisecond, pc.EstimatedConfirmation)
}
