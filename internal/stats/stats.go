// Package stats aggregates decoded program accounts into the dashboard
// figures. All sums are exact integers in on-chain units.
package stats

import (
	"math/big"

	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
)

// QuoteVolumeDecimals is the scale of DEXStats.FilledVolume: a 6-decimal
// price times a 9-decimal amount.
const QuoteVolumeDecimals = 15

type DEXStats struct {
	TotalOrders  int
	ActiveOrders int
	FilledOrders int
	// FilledVolume is Σ price×filled over filled orders, scaled by 10^15.
	FilledVolume *big.Int
}

func DEX(orders []codec.Order) DEXStats {
	s := DEXStats{TotalOrders: len(orders), FilledVolume: new(big.Int)}
	var term big.Int
	for _, o := range orders {
		switch o.Status {
		case codec.OrderStatusOpen, codec.OrderStatusPartiallyFilled:
			s.ActiveOrders++
		case codec.OrderStatusFilled:
			s.FilledOrders++
			term.SetUint64(o.Price)
			term.Mul(&term, new(big.Int).SetUint64(o.FilledAmount))
			s.FilledVolume.Add(s.FilledVolume, &term)
		}
	}
	return s
}

type MarketStats struct {
	TotalSlotsMinted int
	ActiveLeases     int
	ActiveAuctions   int
	SoldAuctions     int
	// TradingVolume is Σ final price of sold auctions, in lamports.
	TradingVolume *big.Int
	// FloorPrice is the lowest reserve among active auctions.
	FloorPrice    uint64
	HasFloorPrice bool
}

func Market(slots []codec.SlotNFT, auctions []codec.Auction) MarketStats {
	s := MarketStats{TotalSlotsMinted: len(slots), TradingVolume: new(big.Int)}
	for _, slot := range slots {
		if slot.Status == codec.SlotStatusReserved {
			s.ActiveLeases++
		}
	}
	for _, a := range auctions {
		switch a.Status {
		case codec.AuctionStatusActive:
			s.ActiveAuctions++
			if !s.HasFloorPrice || a.ReservePrice < s.FloorPrice {
				s.FloorPrice = a.ReservePrice
				s.HasFloorPrice = true
			}
		case codec.AuctionStatusSold:
			s.SoldAuctions++
			s.TradingVolume.Add(s.TradingVolume, new(big.Int).SetUint64(a.FinalPrice))
		}
	}
	return s
}

type VaultStats struct {
	ActiveVaults int
	// TVL is Σ total deposits in token base units.
	TVL         *big.Int
	TotalShares *big.Int
	// ReservedSlots counts reserved slots still pending or confirmed.
	ReservedSlots int
}

func Vault(vaults []codec.Vault) VaultStats {
	s := VaultStats{ActiveVaults: len(vaults), TVL: new(big.Int), TotalShares: new(big.Int)}
	for _, v := range vaults {
		s.TVL.Add(s.TVL, new(big.Int).SetUint64(v.TotalDeposits))
		s.TotalShares.Add(s.TotalShares, new(big.Int).SetUint64(v.TotalShares))
		for _, slot := range v.ReservedSlots {
			if slot.Status == codec.VaultSlotPending || slot.Status == codec.VaultSlotConfirmed {
				s.ReservedSlots++
			}
		}
	}
	return s
}

// SharesForDeposit is the number of shares minted for amount. The first
// depositor gets shares one to one.
func SharesForDeposit(v codec.Vault, amount uint64) (uint64, error) {
	if v.TotalShares == 0 {
		return amount, nil
	}
	if v.TotalDeposits == 0 {
		return 0, errs.New(errs.KindMalformedAccount, v.Address.String(), "vault has %d shares and no deposits", v.TotalShares)
	}
	return mulDiv(v, amount, v.TotalShares, v.TotalDeposits)
}

// TokensForShares is the amount redeemed for shares.
func TokensForShares(v codec.Vault, shares uint64) (uint64, error) {
	if shares > v.TotalShares {
		return 0, errs.New(errs.KindInvalidArgument, v.Address.String(), "%d shares exceed vault total %d", shares, v.TotalShares)
	}
	if shares == 0 {
		return 0, nil
	}
	return mulDiv(v, shares, v.TotalDeposits, v.TotalShares)
}

func mulDiv(v codec.Vault, x, num, den uint64) (uint64, error) {
	r := new(big.Int).SetUint64(x)
	r.Mul(r, new(big.Int).SetUint64(num))
	r.Quo(r, new(big.Int).SetUint64(den))
	if !r.IsUint64() {
		return 0, errs.New(errs.KindInvalidArgument, v.Address.String(), "result %s overflows u64", r)
	}
	return r.Uint64(), nil
}
