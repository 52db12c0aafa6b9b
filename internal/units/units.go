// Package units converts fixed-point chain amounts to and from decimals for
// display. Nothing outside the presentation layer should compare decimals.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	PriceDecimals    = 6
	LamportsDecimals = 9
	// AmountDecimals is the scale of order amounts.
	AmountDecimals = 9
)

var maxU64 = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

// Scaled renders v with the given number of implied decimals.
func Scaled(v uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -decimals)
}

// ScaledBig is Scaled for aggregated sums.
func ScaledBig(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

func Price(v uint64) decimal.Decimal    { return Scaled(v, PriceDecimals) }
func Lamports(v uint64) decimal.Decimal { return Scaled(v, LamportsDecimals) }

func ParsePrice(s string) (uint64, error)    { return ParseScaled(s, PriceDecimals) }
func ParseLamports(s string) (uint64, error) { return ParseScaled(s, LamportsDecimals) }

// ParseScaled parses a decimal string into base units. Negative values,
// values past u64 and digits beyond the scale are rejected.
func ParseScaled(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse %q: negative amount", s)
	}
	base := d.Shift(decimals)
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("parse %q: more than %d decimals", s, decimals)
	}
	if base.GreaterThan(maxU64) {
		return 0, fmt.Errorf("parse %q: overflows u64", s)
	}
	return base.BigInt().Uint64(), nil
}

// Format renders base units with exactly decimals fraction digits.
func Format(v uint64, decimals int32) string {
	return Scaled(v, decimals).StringFixed(decimals)
}
