package apiserver

import (
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coldbell/chronos/backend/internal/auction"
	"github.com/coldbell/chronos/backend/internal/batch"
	"github.com/coldbell/chronos/backend/internal/chronos"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/indexer"
	"github.com/coldbell/chronos/backend/internal/orderbook"
	"github.com/coldbell/chronos/backend/internal/scheduler"
	"github.com/coldbell/chronos/backend/internal/stats"
	"github.com/coldbell/chronos/backend/internal/units"
)

// Amounts travel twice: as a display decimal and as the raw base-unit
// integer string.

type amount struct {
	Value string `json:"value"`
	Raw   string `json:"raw"`
}

func newAmount(v uint64, decimals int32) amount {
	return amount{Value: units.Format(v, decimals), Raw: strconv.FormatUint(v, 10)}
}

func newBigAmount(v *big.Int, decimals int32) amount {
	return amount{Value: units.ScaledBig(v, decimals).StringFixed(decimals), Raw: v.String()}
}

// rawAmount renders a stored base-unit string. Unparseable values pass
// through unscaled.
func rawAmount(raw string, decimals int32) amount {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return amount{Value: raw, Raw: raw}
	}
	return newAmount(v, decimals)
}

func optionalRawAmount(raw *string, decimals int32) *amount {
	if raw == nil {
		return nil
	}
	a := rawAmount(*raw, decimals)
	return &a
}

func unixMilli(t time.Time) int64 { return t.UnixMilli() }

func optionalMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

type orderDTO struct {
	Address             string `json:"address"`
	Market              string `json:"market"`
	Trader              string `json:"trader"`
	Side                string `json:"side"`
	Price               amount `json:"price"`
	Amount              amount `json:"amount"`
	FilledAmount        amount `json:"filled_amount"`
	SlotReservationTime int64  `json:"slot_reservation_time"`
	Status              string `json:"status"`
	CreatedAt           int64  `json:"created_at"`
	BatchID             string `json:"batch_id"`
	Slot                uint64 `json:"slot"`
}

func newOrderDTO(r indexer.OrderRecord) orderDTO {
	return orderDTO{
		Address:             r.Address,
		Market:              r.Market,
		Trader:              r.Trader,
		Side:                r.Side,
		Price:               rawAmount(r.Price, units.PriceDecimals),
		Amount:              rawAmount(r.Amount, units.AmountDecimals),
		FilledAmount:        rawAmount(r.FilledAmount, units.AmountDecimals),
		SlotReservationTime: r.SlotReservationTime,
		Status:              r.Status,
		CreatedAt:           r.CreatedAt,
		BatchID:             r.BatchID,
		Slot:                r.Slot,
	}
}

type auctionDTO struct {
	Address       string  `json:"address"`
	SlotNFT       string  `json:"slot_nft"`
	Seller        string  `json:"seller"`
	Winner        *string `json:"winner,omitempty"`
	StartingPrice amount  `json:"starting_price"`
	ReservePrice  amount  `json:"reserve_price"`
	CurrentPrice  amount  `json:"current_price"`
	FinalPrice    amount  `json:"final_price"`
	StartTime     int64   `json:"start_time"`
	EndTime       int64   `json:"end_time"`
	Status        string  `json:"status"`
	Slot          uint64  `json:"slot"`
}

func newAuctionDTO(r indexer.AuctionRecord) auctionDTO {
	return auctionDTO{
		Address:       r.Address,
		SlotNFT:       r.SlotNFT,
		Seller:        r.Seller,
		Winner:        r.Winner,
		StartingPrice: rawAmount(r.StartingPrice, units.LamportsDecimals),
		ReservePrice:  rawAmount(r.ReservePrice, units.LamportsDecimals),
		CurrentPrice:  rawAmount(r.CurrentPrice, units.LamportsDecimals),
		FinalPrice:    rawAmount(r.FinalPrice, units.LamportsDecimals),
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Status:        r.Status,
		Slot:          r.Slot,
	}
}

type vaultDTO struct {
	Address            string                       `json:"address"`
	Authority          string                       `json:"authority"`
	StrategyType       string                       `json:"strategy_type"`
	RiskLevel          int                          `json:"risk_level"`
	RebalanceFrequency int64                        `json:"rebalance_frequency"`
	TotalDeposits      amount                       `json:"total_deposits"`
	TotalShares        amount                       `json:"total_shares"`
	LastRebalance      int64                        `json:"last_rebalance"`
	ReservedSlots      []indexer.ReservedSlotRecord `json:"reserved_slots"`
}

func newVaultDTO(r indexer.VaultRecord) vaultDTO {
	return vaultDTO{
		Address:            r.Address,
		Authority:          r.Authority,
		StrategyType:       r.StrategyType,
		RiskLevel:          r.RiskLevel,
		RebalanceFrequency: r.RebalanceFrequency,
		TotalDeposits:      rawAmount(r.TotalDeposits, units.AmountDecimals),
		TotalShares:        rawAmount(r.TotalShares, units.AmountDecimals),
		LastRebalance:      r.LastRebalance,
		ReservedSlots:      r.ReservedSlots,
	}
}

type levelDTO struct {
	Price    amount `json:"price"`
	Quantity amount `json:"quantity"`
	Orders   int    `json:"orders"`
}

type bookDTO struct {
	Market  string     `json:"market"`
	BestBid *amount    `json:"best_bid"`
	BestAsk *amount    `json:"best_ask"`
	Spread  *amount    `json:"spread"`
	Bids    []levelDTO `json:"bids"`
	Asks    []levelDTO `json:"asks"`
}

func newBookDTO(market string, book orderbook.Book, levels int) bookDTO {
	out := bookDTO{Market: market}
	if bid, ok := book.BestBid(); ok {
		a := newAmount(bid.Price, units.PriceDecimals)
		out.BestBid = &a
	}
	if ask, ok := book.BestAsk(); ok {
		a := newAmount(ask.Price, units.PriceDecimals)
		out.BestAsk = &a
	}
	if spread, ok := book.Spread(); ok {
		a := newAmount(spread, units.PriceDecimals)
		out.Spread = &a
	}
	asks, bids := orderbook.Depth(book, levels)
	out.Asks = toLevelDTOs(asks)
	out.Bids = toLevelDTOs(bids)
	return out
}

func toLevelDTOs(levels []orderbook.Level) []levelDTO {
	out := make([]levelDTO, 0, len(levels))
	for _, l := range levels {
		out = append(out, levelDTO{
			Price:    newAmount(l.Price, units.PriceDecimals),
			Quantity: newAmount(l.Quantity, units.AmountDecimals),
			Orders:   l.Orders,
		})
	}
	return out
}

type depthSnapshotDTO struct {
	SnapshotTime int64                    `json:"snapshot_time"`
	Slot         uint64                   `json:"slot"`
	BestBid      *amount                  `json:"best_bid"`
	BestAsk      *amount                  `json:"best_ask"`
	Spread       *amount                  `json:"spread"`
	Levels       []indexer.OrderbookLevel `json:"levels"`
}

func newDepthSnapshotDTO(s indexer.OrderbookSnapshot) depthSnapshotDTO {
	return depthSnapshotDTO{
		SnapshotTime: s.SnapshotTime,
		Slot:         s.Slot,
		BestBid:      optionalRawAmount(s.BestBid, units.PriceDecimals),
		BestAsk:      optionalRawAmount(s.BestAsk, units.PriceDecimals),
		Spread:       optionalRawAmount(s.Spread, units.PriceDecimals),
		Levels:       s.Levels,
	}
}

type auctionQuoteDTO struct {
	Address   string `json:"address"`
	At        int64  `json:"at"`
	Price     amount `json:"price"`
	Elapsed   int64  `json:"elapsed"`
	Remaining int64  `json:"remaining"`
	Ended     bool   `json:"ended"`
}

func newAuctionQuoteDTO(address string, at int64, q auction.Quote) auctionQuoteDTO {
	return auctionQuoteDTO{
		Address:   address,
		At:        at,
		Price:     newAmount(q.Price, units.LamportsDecimals),
		Elapsed:   q.Elapsed,
		Remaining: q.Remaining,
		Ended:     q.Ended,
	}
}

type dexStatsDTO struct {
	TotalOrders  int    `json:"total_orders"`
	ActiveOrders int    `json:"active_orders"`
	FilledOrders int    `json:"filled_orders"`
	FilledVolume amount `json:"filled_volume"`
}

func newDEXStatsDTO(s stats.DEXStats) dexStatsDTO {
	return dexStatsDTO{
		TotalOrders:  s.TotalOrders,
		ActiveOrders: s.ActiveOrders,
		FilledOrders: s.FilledOrders,
		FilledVolume: newBigAmount(s.FilledVolume, stats.QuoteVolumeDecimals),
	}
}

type marketStatsDTO struct {
	TotalSlotsMinted int     `json:"total_slots_minted"`
	ActiveLeases     int     `json:"active_leases"`
	ActiveAuctions   int     `json:"active_auctions"`
	SoldAuctions     int     `json:"sold_auctions"`
	TradingVolume    amount  `json:"trading_volume"`
	FloorPrice       *amount `json:"floor_price"`
}

func newMarketStatsDTO(s stats.MarketStats) marketStatsDTO {
	out := marketStatsDTO{
		TotalSlotsMinted: s.TotalSlotsMinted,
		ActiveLeases:     s.ActiveLeases,
		ActiveAuctions:   s.ActiveAuctions,
		SoldAuctions:     s.SoldAuctions,
		TradingVolume:    newBigAmount(s.TradingVolume, units.LamportsDecimals),
	}
	if s.HasFloorPrice {
		a := newAmount(s.FloorPrice, units.LamportsDecimals)
		out.FloorPrice = &a
	}
	return out
}

type vaultStatsDTO struct {
	ActiveVaults  int    `json:"active_vaults"`
	TVL           amount `json:"tvl"`
	TotalShares   amount `json:"total_shares"`
	ReservedSlots int    `json:"reserved_slots"`
}

func newVaultStatsDTO(s stats.VaultStats) vaultStatsDTO {
	return vaultStatsDTO{
		ActiveVaults:  s.ActiveVaults,
		TVL:           newBigAmount(s.TVL, units.AmountDecimals),
		TotalShares:   newBigAmount(s.TotalShares, units.AmountDecimals),
		ReservedSlots: s.ReservedSlots,
	}
}

type reservationDTO struct {
	ID             string `json:"id"`
	SlotTime       int64  `json:"slot_time"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Priority       uint8  `json:"priority"`
	ConfirmationID string `json:"confirmation_id"`
	RequestedAt    int64  `json:"requested_at"`
	ConfirmedAt    *int64 `json:"confirmed_at,omitempty"`
	ExecutedAt     *int64 `json:"executed_at,omitempty"`
}

func newReservationDTO(r scheduler.Reservation) reservationDTO {
	return reservationDTO{
		ID:             r.ID,
		SlotTime:       unixMilli(r.SlotTime),
		Type:           r.Type.String(),
		Status:         string(r.Status),
		Priority:       r.Priority,
		ConfirmationID: r.ConfirmationID,
		RequestedAt:    unixMilli(r.RequestedAt),
		ConfirmedAt:    optionalMilli(r.ConfirmedAt),
		ExecutedAt:     optionalMilli(r.ExecutedAt),
	}
}

// tenths renders a value kept in tenths, e.g. 15 as "1.5".
func tenths(v int64) string {
	return decimal.New(v, -1).StringFixed(1)
}

type slotPriceDTO struct {
	SlotTime          int64  `json:"slot_time"`
	Multiplier        string `json:"multiplier"`
	Price             amount `json:"price"`
	Demand            string `json:"demand"`
	AvailableCapacity uint64 `json:"available_capacity"`
}

func newSlotPriceDTOs(prices []scheduler.SlotPrice) []slotPriceDTO {
	out := make([]slotPriceDTO, 0, len(prices))
	for _, p := range prices {
		out = append(out, slotPriceDTO{
			SlotTime:          unixMilli(p.SlotTime),
			Multiplier:        tenths(int64(p.MultiplierTenths)),
			Price:             newAmount(p.PriceLamports, units.LamportsDecimals),
			Demand:            string(p.Demand),
			AvailableCapacity: p.AvailableCapacity,
		})
	}
	return out
}

type preConfirmationDTO struct {
	TransactionID           string `json:"transaction_id"`
	SlotNumber              uint64 `json:"slot_number"`
	Timestamp               int64  `json:"timestamp"`
	ConfidencePct           string `json:"confidence_pct"`
	EstimatedConfirmationMs int64  `json:"estimated_confirmation_ms"`
}

func newPreConfirmationDTO(p scheduler.PreConfirmation) preConfirmationDTO {
	return preConfirmationDTO{
		TransactionID:           p.TransactionID,
		SlotNumber:              p.SlotNumber,
		Timestamp:               unixMilli(p.Timestamp),
		ConfidencePct:           tenths(int64(p.ConfidenceTenths)),
		EstimatedConfirmationMs: p.EstimatedConfirmation.Milliseconds(),
	}
}

type networkStatsDTO struct {
	TotalSlotsReserved    uint64 `json:"total_slots_reserved"`
	AverageConfirmationMs int64  `json:"average_confirmation_ms"`
	SuccessRatePct        string `json:"success_rate_pct"`
	CurrentCongestionPct  uint8  `json:"current_congestion_pct"`
	LocalReservations     int    `json:"local_reservations"`
}

func newNetworkStatsDTO(s scheduler.NetworkStats) networkStatsDTO {
	return networkStatsDTO{
		TotalSlotsReserved:    s.TotalSlotsReserved,
		AverageConfirmationMs: s.AverageConfirmation.Milliseconds(),
		SuccessRatePct:        tenths(int64(s.SuccessRateTenths)),
		CurrentCongestionPct:  s.CurrentCongestionPct,
		LocalReservations:     s.LocalReservations,
	}
}

type batchDTO struct {
	ID            string  `json:"id"`
	Creator       string  `json:"creator"`
	Size          uint8   `json:"size"`
	ExecutedCount uint8   `json:"executed_count"`
	Status        string  `json:"status"`
	CreatedAt     int64   `json:"created_at"`
	ExecutedAt    *int64  `json:"executed_at,omitempty"`
	ErrorCode     *uint16 `json:"error_code,omitempty"`
}

func newBatchDTO(b batch.Batch) batchDTO {
	return batchDTO{
		ID:            b.ID,
		Creator:       b.Creator.String(),
		Size:          b.Size,
		ExecutedCount: b.ExecutedCount,
		Status:        string(b.Status),
		CreatedAt:     unixMilli(b.CreatedAt),
		ExecutedAt:    optionalMilli(b.ExecutedAt),
		ErrorCode:     b.ErrorCode,
	}
}

type orchestratorStatsDTO struct {
	TotalBatches    uint64 `json:"total_batches"`
	TotalExecutions uint64 `json:"total_executions"`
	TotalFailures   uint64 `json:"total_failures"`
	SuccessRateBps  uint16 `json:"success_rate_bps"`
	SuccessRatePct  string `json:"success_rate_pct"`
}

func newOrchestratorStatsDTO(s batch.Stats) orchestratorStatsDTO {
	return orchestratorStatsDTO{
		TotalBatches:    s.TotalBatches,
		TotalExecutions: s.TotalExecutions,
		TotalFailures:   s.TotalFailures,
		SuccessRateBps:  s.SuccessRateBps,
		SuccessRatePct:  decimal.New(int64(s.SuccessRateBps), -2).StringFixed(2),
	}
}

// sharePreviewDTO leaves TokensPerShare null before the first deposit.
type sharePreviewDTO struct {
	Vault          string  `json:"vault"`
	Amount         amount  `json:"amount"`
	Shares         amount  `json:"shares"`
	TokensPerShare *string `json:"tokens_per_share"`
}

func newSharePreviewDTO(p chronos.SharePreview) sharePreviewDTO {
	out := sharePreviewDTO{
		Vault:  p.Vault.String(),
		Amount: newAmount(p.Amount, units.AmountDecimals),
		Shares: newAmount(p.Shares, units.AmountDecimals),
	}
	if p.Priced {
		price := decimal.NewFromBigInt(new(big.Int).SetUint64(p.PriceDeposits), 0).
			DivRound(decimal.NewFromBigInt(new(big.Int).SetUint64(p.PriceShares), 0), units.AmountDecimals).
			String()
		out.TokensPerShare = &price
	}
	return out
}

type positionDTO struct {
	Address         string `json:"address"`
	Vault           string `json:"vault"`
	User            string `json:"user"`
	Shares          amount `json:"shares"`
	DepositedAmount amount `json:"deposited_amount"`
}

func newPositionDTO(p codec.UserPosition) positionDTO {
	return positionDTO{
		Address:         p.Address.String(),
		Vault:           p.Vault.String(),
		User:            p.User.String(),
		Shares:          newAmount(p.Shares, units.AmountDecimals),
		DepositedAmount: newAmount(p.DepositedAmount, units.AmountDecimals),
	}
}

type receiptDTO struct {
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

func newReceiptDTO(r chronos.Receipt) receiptDTO {
	return receiptDTO{Signature: r.Signature.String(), Address: r.Address.String()}
}
