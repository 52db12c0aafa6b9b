package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/coldbell/chronos/backend/internal/errs"
)

const (
	SlotInterval      = 400 * time.Millisecond
	BasePriceLamports = 1_000_000
	MaxPriceSamples   = 10_000

	preConfirmationTenths = 999
	estimatedConfirmation = 25 * time.Millisecond
	baseSlotsReserved     = 1_234_567
)

type DemandLevel string

const (
	DemandLow      DemandLevel = "LOW"
	DemandMedium   DemandLevel = "MEDIUM"
	DemandHigh     DemandLevel = "HIGH"
	DemandCritical DemandLevel = "CRITICAL"
)

// CapacitySource reports free capacity for a slot. It is display data only
// and never feeds into a price.
type CapacitySource interface {
	Capacity(slotTime time.Time) uint64
}

// RandomCapacity returns a value in [500, 1499].
type RandomCapacity struct{}

func (RandomCapacity) Capacity(time.Time) uint64 {
	return 500 + rand.Uint64N(1000)
}

type SlotPrice struct {
	SlotTime time.Time
	// MultiplierTenths is the demand multiplier times ten.
	MultiplierTenths  uint64
	PriceLamports     uint64
	Demand            DemandLevel
	AvailableCapacity uint64
}

type PreConfirmation struct {
	TransactionID string
	SlotNumber    uint64
	Timestamp     time.Time
	// ConfidenceTenths is the confidence in tenths of a percent.
	ConfidenceTenths      uint16
	EstimatedConfirmation time.Duration
}

type NetworkStats struct {
	TotalSlotsReserved   uint64
	AverageConfirmation  time.Duration
	SuccessRateTenths    uint16
	CurrentCongestionPct uint8
	LocalReservations    int
}

// DemandMultiplierTenths is the step function of the distance between now
// and a slot.
func DemandMultiplierTenths(now, slotTime time.Time) uint64 {
	d := slotTime.Sub(now)
	if d < 0 {
		d = -d
	}
	switch {
	case d < 5*time.Second:
		return 25
	case d < 30*time.Second:
		return 15
	default:
		return 10
	}
}

func DemandFor(multiplierTenths uint64) DemandLevel {
	switch {
	case multiplierTenths > 20:
		return DemandCritical
	case multiplierTenths > 15:
		return DemandHigh
	case multiplierTenths > 12:
		return DemandMedium
	default:
		return DemandLow
	}
}

// SlotPriceAt prices one slot. It depends only on now and slotTime.
func SlotPriceAt(now, slotTime time.Time) (multiplierTenths, lamports uint64) {
	multiplierTenths = DemandMultiplierTenths(now, slotTime)
	return multiplierTenths, BasePriceLamports * multiplierTenths / 10
}

// SlotMarketPrices samples the slot market every SlotInterval across
// [start, end].
func (s *Scheduler) SlotMarketPrices(start, end time.Time) ([]SlotPrice, error) {
	if end.Before(start) {
		return nil, nil
	}
	if samples := end.Sub(start)/SlotInterval + 1; samples > MaxPriceSamples {
		return nil, errs.New(errs.KindInvalidArgument, "", "window holds %d samples, max %d", samples, MaxPriceSamples)
	}

	now := s.clock.Now()
	var out []SlotPrice
	for t := start; !t.After(end); t = t.Add(SlotInterval) {
		mult, price := SlotPriceAt(now, t)
		out = append(out, SlotPrice{
			SlotTime:          t,
			MultiplierTenths:  mult,
			PriceLamports:     price,
			Demand:            DemandFor(mult),
			AvailableCapacity: s.capacity.Capacity(t),
		})
	}
	return out, nil
}

func (s *Scheduler) PreConfirmation(txID string) PreConfirmation {
	now := s.clock.Now()
	return PreConfirmation{
		TransactionID:         txID,
		SlotNumber:            uint64(now.UnixMilli() / SlotInterval.Milliseconds()),
		Timestamp:             now,
		ConfidenceTenths:      preConfirmationTenths,
		EstimatedConfirmation: estimatedConfirmation,
	}
}

func (s *Scheduler) NetworkStats() NetworkStats {
	s.mu.Lock()
	reserved, live := s.reserved, len(s.reservations)
	s.mu.Unlock()
	return NetworkStats{
		TotalSlotsReserved:   baseSlotsReserved + reserved,
		AverageConfirmation:  estimatedConfirmation,
		SuccessRateTenths:    999,
		CurrentCongestionPct: 45,
		LocalReservations:    live,
	}
}
