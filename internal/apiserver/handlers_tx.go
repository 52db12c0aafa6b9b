package apiserver

import (
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/chronos"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
	"github.com/coldbell/chronos/backend/internal/units"
)

// Transaction routes act as the server wallet. It signs and pays, and is the
// authority, trader, minter, seller or bidder of every instruction it sends.
// Decimal amounts are strings so no precision is lost in JSON.

type initializeMarketRequest struct {
	BaseMint  string `json:"base_mint" validate:"required"`
	QuoteMint string `json:"quote_mint" validate:"required"`
}

type initializeVaultRequest struct {
	Strategy           string `json:"strategy" validate:"required,oneof=YieldOptimization DeltaNeutral Arbitrage"`
	RiskLevel          uint8  `json:"risk_level" validate:"required,min=1,max=10"`
	RebalanceFrequency int64  `json:"rebalance_frequency" validate:"required,gt=0"`
}

type depositRequest struct {
	Mint   string `json:"mint" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}

type withdrawRequest struct {
	Mint   string `json:"mint" validate:"required"`
	Shares string `json:"shares" validate:"required"`
}

type placeOrderRequest struct {
	Market   string `json:"market" validate:"required"`
	Side     string `json:"side" validate:"required,oneof=Buy Sell"`
	Price    string `json:"price" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	SlotTime int64  `json:"slot_time" validate:"required,gt=0"`
}

type mintSlotRequest struct {
	SlotTime int64  `json:"slot_time" validate:"required,gt=0"`
	Capacity uint64 `json:"capacity" validate:"required,gt=0"`
}

type createAuctionRequest struct {
	SlotNFT         string `json:"slot_nft" validate:"required"`
	StartingPrice   string `json:"starting_price" validate:"required"`
	ReservePrice    string `json:"reserve_price" validate:"required"`
	DurationSeconds int64  `json:"duration_seconds" validate:"required,gt=0"`
}

type txReserveRequest struct {
	SlotTime int64  `json:"slot_time" validate:"required,gt=0"`
	Type     string `json:"type" validate:"required,oneof=AOT JIT"`
	Priority uint8  `json:"priority" validate:"required,min=1,max=10"`
}

type txBatchRequest struct {
	Size int `json:"size" validate:"required,min=1,max=10"`
}

func (s *Service) handleSigner(w http.ResponseWriter, _ *http.Request) {
	if s.writer == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"read_only": true})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"read_only": false, "signer": s.signer.String()})
}

func (s *Service) handleTxInitializeOrchestrator(w http.ResponseWriter, r *http.Request) {
	if !s.canWrite(w) {
		return
	}
	s.respondReceipt(w)(s.writer.InitializeOrchestrator(r.Context(), s.signer))
}

func (s *Service) handleTxInitializeMarket(w http.ResponseWriter, r *http.Request) {
	var req initializeMarketRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	base, err := parseKey(req.BaseMint, "base_mint")
	if err != nil {
		s.respondError(w, err)
		return
	}
	quote, err := parseKey(req.QuoteMint, "quote_mint")
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondReceipt(w)(s.writer.InitializeMarket(r.Context(), s.signer, codec.InitializeMarketArgs{BaseMint: base, QuoteMint: quote}))
}

func (s *Service) handleTxInitializeVault(w http.ResponseWriter, r *http.Request) {
	var req initializeVaultRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	args := codec.InitializeVaultArgs{RiskLevel: req.RiskLevel, RebalanceFrequency: req.RebalanceFrequency}
	for st := codec.StrategyYieldOptimization; st <= codec.StrategyArbitrage; st++ {
		if st.String() == req.Strategy {
			args.Strategy = st
		}
	}
	s.respondReceipt(w)(s.writer.InitializeVault(r.Context(), s.signer, args))
}

func (s *Service) handleTxDeposit(w http.ResponseWriter, r *http.Request) {
	vaultAuthority, err := pathKey(r, "wallet")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req depositRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	mint, err := parseKey(req.Mint, "mint")
	if err != nil {
		s.respondError(w, err)
		return
	}
	amount, err := parseDecimal(req.Amount, "amount", units.AmountDecimals)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondReceipt(w)(s.writer.Deposit(r.Context(), vaultAuthority, s.signer, mint, amount))
}

func (s *Service) handleTxWithdraw(w http.ResponseWriter, r *http.Request) {
	vaultAuthority, err := pathKey(r, "wallet")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req withdrawRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	mint, err := parseKey(req.Mint, "mint")
	if err != nil {
		s.respondError(w, err)
		return
	}
	shares, err := parseDecimal(req.Shares, "shares", units.AmountDecimals)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondReceipt(w)(s.writer.Withdraw(r.Context(), vaultAuthority, s.signer, mint, shares))
}

func (s *Service) handleTxPlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	market, err := parseKey(req.Market, "market")
	if err != nil {
		s.respondError(w, err)
		return
	}
	price, err := units.ParsePrice(req.Price)
	if err != nil {
		s.respondError(w, errs.Wrap(errs.KindInvalidArgument, req.Price, err, "invalid price"))
		return
	}
	amount, err := parseDecimal(req.Amount, "amount", units.AmountDecimals)
	if err != nil {
		s.respondError(w, err)
		return
	}
	side := codec.SideBuy
	if req.Side == codec.SideSell.String() {
		side = codec.SideSell
	}
	s.respondReceipt(w)(s.writer.PlaceOrder(r.Context(), market, s.signer, codec.PlaceOrderArgs{
		Side:     side,
		Price:    price,
		Amount:   amount,
		SlotTime: req.SlotTime,
	}))
}

func (s *Service) handleTxCancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := pathKey(r, "order")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if !s.canWrite(w) {
		return
	}
	s.respondReceipt(w)(s.writer.CancelOrder(r.Context(), order, s.signer))
}

func (s *Service) handleTxMintSlot(w http.ResponseWriter, r *http.Request) {
	var req mintSlotRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	s.respondReceipt(w)(s.writer.MintSlotNFT(r.Context(), s.signer, codec.MintSlotNFTArgs{
		SlotTime: req.SlotTime,
		Capacity: req.Capacity,
	}))
}

func (s *Service) handleTxCreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	slotNFT, err := parseKey(req.SlotNFT, "slot_nft")
	if err != nil {
		s.respondError(w, err)
		return
	}
	starting, err := units.ParseLamports(req.StartingPrice)
	if err != nil {
		s.respondError(w, errs.Wrap(errs.KindInvalidArgument, req.StartingPrice, err, "invalid starting_price"))
		return
	}
	reserve, err := units.ParseLamports(req.ReservePrice)
	if err != nil {
		s.respondError(w, errs.Wrap(errs.KindInvalidArgument, req.ReservePrice, err, "invalid reserve_price"))
		return
	}
	s.respondReceipt(w)(s.writer.CreateAuction(r.Context(), slotNFT, s.signer, codec.CreateAuctionArgs{
		StartingPrice:   starting,
		ReservePrice:    reserve,
		DurationSeconds: req.DurationSeconds,
	}))
}

func (s *Service) handleTxPlaceBid(w http.ResponseWriter, r *http.Request) {
	address, err := pathKey(r, "address")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if !s.canWrite(w) {
		return
	}
	s.respondReceipt(w)(s.writer.PlaceBid(r.Context(), address, s.signer))
}

func (s *Service) handleTxReserveSlot(w http.ResponseWriter, r *http.Request) {
	var req txReserveRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	kind := codec.ReservationAOT
	if req.Type == codec.ReservationJIT.String() {
		kind = codec.ReservationJIT
	}
	s.respondReceipt(w)(s.writer.ReserveRaikuSlot(r.Context(), s.signer, codec.ReserveRaikuSlotArgs{
		SlotTime:        req.SlotTime,
		ReservationType: kind,
		Priority:        req.Priority,
	}))
}

// handleTxCreateBatch seeds the batch address with the service clock, which
// must agree with the cluster clock when the transaction lands.
func (s *Service) handleTxCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req txBatchRequest
	if !s.decodeTx(w, r, &req) {
		return
	}
	s.respondReceipt(w)(s.writer.CreateExecutionBatch(r.Context(), s.signer, s.clock.Now().Unix(), uint8(req.Size)))
}

func (s *Service) canWrite(w http.ResponseWriter) bool {
	if s.writer == nil {
		s.respondError(w, chronos.ErrReadOnly)
		return false
	}
	return true
}

// decodeTx checks for a writer before touching the body.
func (s *Service) decodeTx(w http.ResponseWriter, r *http.Request, destination any) bool {
	if !s.canWrite(w) {
		return false
	}
	if err := s.decodeAndValidate(r, destination); err != nil {
		s.respondError(w, err)
		return false
	}
	return true
}

func (s *Service) respondReceipt(w http.ResponseWriter) func(chronos.Receipt, error) {
	return func(receipt chronos.Receipt, err error) {
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, newReceiptDTO(receipt))
	}
}

func parseKey(raw, field string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, errs.Wrap(errs.KindInvalidArgument, raw, err, "invalid %s", field)
	}
	return key, nil
}

func parseDecimal(raw, field string, decimals int32) (uint64, error) {
	v, err := units.ParseScaled(raw, decimals)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidArgument, raw, err, "invalid %s", field)
	}
	return v, nil
}
