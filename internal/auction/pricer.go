// Package auction prices Dutch auctions for slot NFTs.
package auction

import (
	"math/big"

	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
)

// Price returns the clearing price at unix time t. The linear decay is
// floored, so the result never exceeds the exact value and never drops
// below the reserve.
func Price(a codec.Auction, t int64) (uint64, error) {
	if err := validate(a); err != nil {
		return 0, err
	}
	if t < a.StartTime {
		return 0, errs.New(errs.KindAuctionNotStarted, a.Address.String(), "auction starts at %d, asked for %d", a.StartTime, t)
	}
	if t >= a.EndTime {
		return a.ReservePrice, nil
	}

	span := new(big.Int).Sub(big.NewInt(a.EndTime), big.NewInt(a.StartTime))
	left := new(big.Int).Sub(big.NewInt(a.EndTime), big.NewInt(t))
	drop := new(big.Int).SetUint64(a.StartingPrice - a.ReservePrice)

	above := drop.Mul(drop, left)
	above.Quo(above, span)
	return a.ReservePrice + above.Uint64(), nil
}

func validate(a codec.Auction) error {
	if a.EndTime <= a.StartTime {
		return errs.New(errs.KindMalformedAccount, a.Address.String(), "auction ends at %d, not after start %d", a.EndTime, a.StartTime)
	}
	if a.ReservePrice > a.StartingPrice {
		return errs.New(errs.KindMalformedAccount, a.Address.String(), "reserve %d above starting price %d", a.ReservePrice, a.StartingPrice)
	}
	return nil
}

type Quote struct {
	Price uint64
	// Elapsed and Remaining are seconds, clamped to the auction window.
	Elapsed   int64
	Remaining int64
	Ended     bool
}

// QuoteAt is Price plus the timing figures shown next to it.
func QuoteAt(a codec.Auction, t int64) (Quote, error) {
	price, err := Price(a, t)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Price: price, Elapsed: t - a.StartTime, Remaining: a.EndTime - t}
	if q.Remaining <= 0 {
		q.Elapsed = a.EndTime - a.StartTime
		q.Remaining = 0
		q.Ended = true
	}
	return q, nil
}
