package codec

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/errs"
)

const (
	InstructionInitializeVault      = "initialize_vault"
	InstructionDeposit              = "deposit"
	InstructionWithdraw             = "withdraw"
	InstructionInitializeMarket     = "initialize_market"
	InstructionPlaceOrder           = "place_order"
	InstructionCancelOrder          = "cancel_order"
	InstructionMintSlotNFT          = "mint_slot_nft"
	InstructionCreateAuction        = "create_auction"
	InstructionPlaceBid             = "place_bid"
	InstructionReserveRaikuSlot     = "reserve_raiku_slot"
	InstructionCreateExecutionBatch = "create_execution_batch"
	InstructionInitialize           = "initialize"
)

const (
	MinRiskLevel = 1
	MaxRiskLevel = 10
	MinPriority  = 1
	MaxPriority  = 10
	MinBatchSize = 1
	MaxBatchSize = 10
)

// InstructionArgs is the typed argument set of one program instruction.
type InstructionArgs interface {
	InstructionName() string
	Validate() error
	encode(w *fieldWriter)
}

type InitializeVaultArgs struct {
	Strategy           StrategyType
	RiskLevel          uint8
	RebalanceFrequency int64
}

type DepositArgs struct {
	Amount uint64
}

type WithdrawArgs struct {
	Shares uint64
}

type InitializeMarketArgs struct {
	BaseMint  solana.PublicKey
	QuoteMint solana.PublicKey
}

type PlaceOrderArgs struct {
	Side     Side
	Price    uint64
	Amount   uint64
	SlotTime int64
}

type CancelOrderArgs struct{}

type MintSlotNFTArgs struct {
	SlotTime int64
	Capacity uint64
}

type CreateAuctionArgs struct {
	StartingPrice   uint64
	ReservePrice    uint64
	DurationSeconds int64
}

type PlaceBidArgs struct{}

type ReserveRaikuSlotArgs struct {
	SlotTime        int64
	ReservationType ReservationType
	Priority        uint8
}

type CreateExecutionBatchArgs struct {
	BatchSize uint8
}

// InitializeOrchestratorArgs is the orchestrator's argument-less
// "initialize" instruction.
type InitializeOrchestratorArgs struct{}

func (InitializeVaultArgs) InstructionName() string        { return InstructionInitializeVault }
func (DepositArgs) InstructionName() string                { return InstructionDeposit }
func (WithdrawArgs) InstructionName() string               { return InstructionWithdraw }
func (InitializeMarketArgs) InstructionName() string       { return InstructionInitializeMarket }
func (PlaceOrderArgs) InstructionName() string             { return InstructionPlaceOrder }
func (CancelOrderArgs) InstructionName() string            { return InstructionCancelOrder }
func (MintSlotNFTArgs) InstructionName() string            { return InstructionMintSlotNFT }
func (CreateAuctionArgs) InstructionName() string          { return InstructionCreateAuction }
func (PlaceBidArgs) InstructionName() string               { return InstructionPlaceBid }
func (ReserveRaikuSlotArgs) InstructionName() string       { return InstructionReserveRaikuSlot }
func (CreateExecutionBatchArgs) InstructionName() string   { return InstructionCreateExecutionBatch }
func (InitializeOrchestratorArgs) InstructionName() string { return InstructionInitialize }

func invalidArg(name, format string, args ...any) error {
	return errs.New(errs.KindInvalidArgument, name, format, args...)
}

func (a InitializeVaultArgs) Validate() error {
	if a.Strategy > StrategyArbitrage {
		return invalidArg(InstructionInitializeVault, "strategy %d out of range", uint8(a.Strategy))
	}
	if a.RiskLevel < MinRiskLevel || a.RiskLevel > MaxRiskLevel {
		return invalidArg(InstructionInitializeVault, "risk level %d outside %d..%d", a.RiskLevel, MinRiskLevel, MaxRiskLevel)
	}
	if a.RebalanceFrequency <= 0 {
		return invalidArg(InstructionInitializeVault, "rebalance frequency must be > 0")
	}
	return nil
}

func (a DepositArgs) Validate() error {
	if a.Amount == 0 {
		return invalidArg(InstructionDeposit, "amount must be > 0")
	}
	return nil
}

func (a WithdrawArgs) Validate() error {
	if a.Shares == 0 {
		return invalidArg(InstructionWithdraw, "shares must be > 0")
	}
	return nil
}

func (a InitializeMarketArgs) Validate() error {
	if a.BaseMint.IsZero() || a.QuoteMint.IsZero() {
		return invalidArg(InstructionInitializeMarket, "base and quote mints are required")
	}
	if a.BaseMint.Equals(a.QuoteMint) {
		return invalidArg(InstructionInitializeMarket, "base and quote mints must differ")
	}
	return nil
}

func (a PlaceOrderArgs) Validate() error {
	if a.Side > SideSell {
		return invalidArg(InstructionPlaceOrder, "side %d out of range", uint8(a.Side))
	}
	if a.Price == 0 {
		return invalidArg(InstructionPlaceOrder, "price must be > 0")
	}
	if a.Amount == 0 {
		return invalidArg(InstructionPlaceOrder, "amount must be > 0")
	}
	return nil
}

func (CancelOrderArgs) Validate() error { return nil }

func (a MintSlotNFTArgs) Validate() error {
	if a.Capacity == 0 {
		return invalidArg(InstructionMintSlotNFT, "capacity must be > 0")
	}
	return nil
}

func (a CreateAuctionArgs) Validate() error {
	if a.ReservePrice == 0 {
		return invalidArg(InstructionCreateAuction, "reserve price must be > 0")
	}
	if a.StartingPrice < a.ReservePrice {
		return invalidArg(InstructionCreateAuction, "starting price %d below reserve %d", a.StartingPrice, a.ReservePrice)
	}
	if a.DurationSeconds <= 0 {
		return invalidArg(InstructionCreateAuction, "duration must be > 0")
	}
	return nil
}

func (PlaceBidArgs) Validate() error { return nil }

func (a ReserveRaikuSlotArgs) Validate() error {
	if a.ReservationType > ReservationJIT {
		return invalidArg(InstructionReserveRaikuSlot, "reservation type %d out of range", uint8(a.ReservationType))
	}
	if a.Priority < MinPriority || a.Priority > MaxPriority {
		return invalidArg(InstructionReserveRaikuSlot, "priority %d outside %d..%d", a.Priority, MinPriority, MaxPriority)
	}
	return nil
}

func (a CreateExecutionBatchArgs) Validate() error {
	if a.BatchSize < MinBatchSize || a.BatchSize > MaxBatchSize {
		return invalidArg(InstructionCreateExecutionBatch, "batch size %d outside %d..%d", a.BatchSize, MinBatchSize, MaxBatchSize)
	}
	return nil
}

func (InitializeOrchestratorArgs) Validate() error { return nil }

func (a InitializeVaultArgs) encode(w *fieldWriter) {
	w.u8(uint8(a.Strategy))
	w.u8(a.RiskLevel)
	w.i64(a.RebalanceFrequency)
}

func (a DepositArgs) encode(w *fieldWriter)  { w.u64(a.Amount) }
func (a WithdrawArgs) encode(w *fieldWriter) { w.u64(a.Shares) }

func (a InitializeMarketArgs) encode(w *fieldWriter) {
	w.pubkey(a.BaseMint)
	w.pubkey(a.QuoteMint)
}

func (a PlaceOrderArgs) encode(w *fieldWriter) {
	w.u8(uint8(a.Side))
	w.u64(a.Price)
	w.u64(a.Amount)
	w.i64(a.SlotTime)
}

func (CancelOrderArgs) encode(*fieldWriter) {}

func (a MintSlotNFTArgs) encode(w *fieldWriter) {
	w.i64(a.SlotTime)
	w.u64(a.Capacity)
}

func (a CreateAuctionArgs) encode(w *fieldWriter) {
	w.u64(a.StartingPrice)
	w.u64(a.ReservePrice)
	w.i64(a.DurationSeconds)
}

func (PlaceBidArgs) encode(*fieldWriter) {}

func (a ReserveRaikuSlotArgs) encode(w *fieldWriter) {
	w.i64(a.SlotTime)
	w.u8(uint8(a.ReservationType))
	w.u8(a.Priority)
}

func (a CreateExecutionBatchArgs) encode(w *fieldWriter) { w.u8(a.BatchSize) }

func (InitializeOrchestratorArgs) encode(*fieldWriter) {}

// EncodeInstruction validates args and returns discriminator||payload.
func EncodeInstruction(args InstructionArgs) ([]byte, error) {
	if args == nil {
		return nil, invalidArg("", "nil instruction args")
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	w := newFieldWriter(DiscriminatorSize + 64)
	disc := InstructionDiscriminator(args.InstructionName())
	w.raw(disc[:])
	args.encode(w)
	data, err := w.bytes()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", args.InstructionName(), err)
	}
	return data, nil
}

type instructionDecoder func(r *fieldReader) InstructionArgs

var instructionDecoders = map[[8]byte]struct {
	name   string
	decode instructionDecoder
}{}

func registerDecoder(name string, decode instructionDecoder) {
	instructionDecoders[InstructionDiscriminator(name)] = struct {
		name   string
		decode instructionDecoder
	}{name: name, decode: decode}
}

func init() {
	registerDecoder(InstructionInitializeVault, func(r *fieldReader) InstructionArgs {
		return InitializeVaultArgs{Strategy: StrategyType(r.u8()), RiskLevel: r.u8(), RebalanceFrequency: r.i64()}
	})
	registerDecoder(InstructionDeposit, func(r *fieldReader) InstructionArgs {
		return DepositArgs{Amount: r.u64()}
	})
	registerDecoder(InstructionWithdraw, func(r *fieldReader) InstructionArgs {
		return WithdrawArgs{Shares: r.u64()}
	})
	registerDecoder(InstructionInitializeMarket, func(r *fieldReader) InstructionArgs {
		return InitializeMarketArgs{BaseMint: r.pubkey(), QuoteMint: r.pubkey()}
	})
	registerDecoder(InstructionPlaceOrder, func(r *fieldReader) InstructionArgs {
		return PlaceOrderArgs{Side: Side(r.u8()), Price: r.u64(), Amount: r.u64(), SlotTime: r.i64()}
	})
	registerDecoder(InstructionCancelOrder, func(*fieldReader) InstructionArgs {
		return CancelOrderArgs{}
	})
	registerDecoder(InstructionMintSlotNFT, func(r *fieldReader) InstructionArgs {
		return MintSlotNFTArgs{SlotTime: r.i64(), Capacity: r.u64()}
	})
	registerDecoder(InstructionCreateAuction, func(r *fieldReader) InstructionArgs {
		return CreateAuctionArgs{StartingPrice: r.u64(), ReservePrice: r.u64(), DurationSeconds: r.i64()}
	})
	registerDecoder(InstructionPlaceBid, func(*fieldReader) InstructionArgs {
		return PlaceBidArgs{}
	})
	registerDecoder(InstructionReserveRaikuSlot, func(r *fieldReader) InstructionArgs {
		return ReserveRaikuSlotArgs{SlotTime: r.i64(), ReservationType: ReservationType(r.u8()), Priority: r.u8()}
	})
	registerDecoder(InstructionCreateExecutionBatch, func(r *fieldReader) InstructionArgs {
		return CreateExecutionBatchArgs{BatchSize: r.u8()}
	})
	registerDecoder(InstructionInitialize, func(*fieldReader) InstructionArgs {
		return InitializeOrchestratorArgs{}
	})
}

// DecodeInstruction is the inverse of EncodeInstruction. Trailing bytes and
// out-of-range values are rejected.
func DecodeInstruction(data []byte) (InstructionArgs, error) {
	if len(data) < DiscriminatorSize {
		return nil, invalidArg("", "instruction data is %d bytes, shorter than the discriminator", len(data))
	}
	var disc [8]byte
	copy(disc[:], data[:DiscriminatorSize])
	entry, ok := instructionDecoders[disc]
	if !ok {
		return nil, invalidArg("", "unknown instruction discriminator %x", disc)
	}

	r := newFieldReader(data)
	r.skip(DiscriminatorSize)
	args := entry.decode(r)
	if r.err != nil {
		return nil, errs.Wrap(errs.KindInvalidArgument, entry.name, r.err, "decode payload")
	}
	if rest := r.remaining(); rest != 0 {
		return nil, invalidArg(entry.name, "%d trailing bytes", rest)
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return args, nil
}
