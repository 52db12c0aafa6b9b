package stats

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
)

func TestDEX(t *testing.T) {
	orders := []codec.Order{
		{Status: codec.OrderStatusOpen, Price: 1_000_000, Amount: 5},
		{Status: codec.OrderStatusPartiallyFilled, Price: 1_000_000, Amount: 5, FilledAmount: 2},
		{Status: codec.OrderStatusFilled, Price: 1_500_000, Amount: 2_000_000_000, FilledAmount: 2_000_000_000},
		{Status: codec.OrderStatusFilled, Price: math.MaxUint64, Amount: math.MaxUint64, FilledAmount: math.MaxUint64},
		{Status: codec.OrderStatusCancelled, Price: 9, FilledAmount: 9},
	}
	s := DEX(orders)
	assert.Equal(t, 5, s.TotalOrders)
	assert.Equal(t, 2, s.ActiveOrders)
	assert.Equal(t, 2, s.FilledOrders)

	u64max := new(big.Int).SetUint64(math.MaxUint64)
	want := new(big.Int).Mul(u64max, u64max)
	want.Add(want, big.NewInt(3_000_000_000_000_000))
	assert.Zero(t, want.Cmp(s.FilledVolume), "got %s", s.FilledVolume)
}

func TestDEXEmpty(t *testing.T) {
	s := DEX(nil)
	assert.Zero(t, s.TotalOrders)
	assert.Zero(t, s.FilledVolume.Sign())
}

func TestMarket(t *testing.T) {
	slots := []codec.SlotNFT{
		{Status: codec.SlotStatusAvailable},
		{Status: codec.SlotStatusReserved},
		{Status: codec.SlotStatusReserved},
		{Status: codec.SlotStatusExpired},
	}
	auctions := []codec.Auction{
		{Status: codec.AuctionStatusActive, ReservePrice: 3_000},
		{Status: codec.AuctionStatusActive, ReservePrice: 2_000},
		{Status: codec.AuctionStatusSold, ReservePrice: 1, FinalPrice: 4_000},
		{Status: codec.AuctionStatusSold, FinalPrice: 6_000},
		{Status: codec.AuctionStatusCancelled, ReservePrice: 1},
	}
	s := Market(slots, auctions)
	assert.Equal(t, 4, s.TotalSlotsMinted)
	assert.Equal(t, 2, s.ActiveLeases)
	assert.Equal(t, 2, s.ActiveAuctions)
	assert.Equal(t, 2, s.SoldAuctions)
	assert.Equal(t, int64(10_000), s.TradingVolume.Int64())
	require.True(t, s.HasFloorPrice)
	assert.Equal(t, uint64(2_000), s.FloorPrice)

	none := Market(slots, nil)
	assert.False(t, none.HasFloorPrice)
}

func TestVault(t *testing.T) {
	vaults := []codec.Vault{
		{TotalDeposits: 1_000, TotalShares: 900, ReservedSlots: []codec.ReservedSlot{
			{Status: codec.VaultSlotPending},
			{Status: codec.VaultSlotExecuted},
		}},
		{TotalDeposits: 500, TotalShares: 500, ReservedSlots: []codec.ReservedSlot{
			{Status: codec.VaultSlotConfirmed},
		}},
	}
	s := Vault(vaults)
	assert.Equal(t, 2, s.ActiveVaults)
	assert.Equal(t, int64(1_500), s.TVL.Int64())
	assert.Equal(t, int64(1_400), s.TotalShares.Int64())
	assert.Equal(t, 2, s.ReservedSlots)
}

func TestShareMath(t *testing.T) {
	empty := codec.Vault{}
	shares, err := SharesForDeposit(empty, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), shares)

	v := codec.Vault{TotalDeposits: 2_000, TotalShares: 1_000}
	shares, err = SharesForDeposit(v, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), shares)

	tokens, err := TokensForShares(v, 250)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), tokens)

	_, err = TokensForShares(v, 1_001)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = SharesForDeposit(codec.Vault{TotalShares: 1}, 1)
	assert.ErrorIs(t, err, errs.ErrMalformedAccount)

	_, err = SharesForDeposit(codec.Vault{TotalShares: math.MaxUint64, TotalDeposits: 1}, 2)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}
