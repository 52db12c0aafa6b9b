package codec

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/errs"
)

// Kind selects the decode function for a raw account buffer. Buffers are
// never classified by length alone.
type Kind uint8

const (
	KindOrder Kind = iota + 1
	KindSlotNFT
	KindAuction
	KindVault
	KindUserPosition
	KindMarket
)

func (k Kind) String() string {
	switch k {
	case KindOrder:
		return AccountNameOrder
	case KindSlotNFT:
		return AccountNameSlotNFT
	case KindAuction:
		return AccountNameAuction
	case KindVault:
		return AccountNameVault
	case KindUserPosition:
		return AccountNameUserPosition
	case KindMarket:
		return AccountNameMarket
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Fixed account sizes, discriminator included.
const (
	OrderSize        = 122
	SlotNFTSize      = 74
	AuctionSize      = 155
	UserPositionSize = 24
	MarketSize       = 121
)

// Offsets used by filtered scans.
const (
	OrderMarketOffset    = 8
	OrderTraderOffset    = 40
	SlotNFTOwnerOffset   = 8
	AuctionSellerOffset  = 40
	VaultAuthorityOffset = 8
)

type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

type OrderStatus uint8

const (
	OrderStatusOpen OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusOpen:
		return "Open"
	case OrderStatusPartiallyFilled:
		return "PartiallyFilled"
	case OrderStatusFilled:
		return "Filled"
	case OrderStatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("OrderStatus(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

type SlotStatus uint8

const (
	SlotStatusAvailable SlotStatus = iota
	SlotStatusReserved
	SlotStatusExecuted
	SlotStatusExpired
)

func (s SlotStatus) String() string {
	switch s {
	case SlotStatusAvailable:
		return "Available"
	case SlotStatusReserved:
		return "Reserved"
	case SlotStatusExecuted:
		return "Executed"
	case SlotStatusExpired:
		return "Expired"
	default:
		return fmt.Sprintf("SlotStatus(%d)", uint8(s))
	}
}

type AuctionStatus uint8

const (
	AuctionStatusActive AuctionStatus = iota
	AuctionStatusSold
	AuctionStatusCancelled
	AuctionStatusExpired
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionStatusActive:
		return "Active"
	case AuctionStatusSold:
		return "Sold"
	case AuctionStatusCancelled:
		return "Cancelled"
	case AuctionStatusExpired:
		return "Expired"
	default:
		return fmt.Sprintf("AuctionStatus(%d)", uint8(s))
	}
}

// Order is a DEX order. Price has 6 decimals, amounts 9.
type Order struct {
	Address             solana.PublicKey
	Market              solana.PublicKey
	Trader              solana.PublicKey
	Side                Side
	Price               uint64
	Amount              uint64
	FilledAmount        uint64
	SlotReservationTime int64
	Status              OrderStatus
	CreatedAt           int64
	BatchID             uint64
}

// Remaining is the unfilled quantity.
func (o Order) Remaining() uint64 {
	if o.FilledAmount >= o.Amount {
		return 0
	}
	return o.Amount - o.FilledAmount
}

type SlotNFT struct {
	Address      solana.PublicKey
	Owner        solana.PublicKey
	SlotTime     int64
	Capacity     uint64
	UsedCapacity uint64
	Status       SlotStatus
	MintedAt     int64
	Bump         uint8
}

type Auction struct {
	Address       solana.PublicKey
	SlotNFT       solana.PublicKey
	Seller        solana.PublicKey
	Winner        *solana.PublicKey
	StartingPrice uint64
	ReservePrice  uint64
	CurrentPrice  uint64
	FinalPrice    uint64
	StartTime     int64
	EndTime       int64
	Status        AuctionStatus
	Bump          uint8
}

// Decoded is implemented by every record Decode can return.
type Decoded interface {
	AccountKind() Kind
}

func (Order) AccountKind() Kind        { return KindOrder }
func (SlotNFT) AccountKind() Kind      { return KindSlotNFT }
func (Auction) AccountKind() Kind      { return KindAuction }
func (Vault) AccountKind() Kind        { return KindVault }
func (UserPosition) AccountKind() Kind { return KindUserPosition }
func (Market) AccountKind() Kind       { return KindMarket }

// Decode dispatches on the expected kind. UserPosition needs its vault and
// user, which are not stored in the account, so it must be decoded with
// DecodeUserPosition directly.
func Decode(kind Kind, address solana.PublicKey, data []byte) (Decoded, error) {
	switch kind {
	case KindOrder:
		return DecodeOrder(address, data)
	case KindSlotNFT:
		return DecodeSlotNFT(address, data)
	case KindAuction:
		return DecodeAuction(address, data)
	case KindVault:
		return DecodeVault(address, data)
	case KindMarket:
		return DecodeMarket(address, data)
	default:
		return nil, errs.New(errs.KindMalformedAccount, address.String(), "no decoder for %s", kind)
	}
}

func checkSize(kind Kind, address solana.PublicKey, data []byte, want int) error {
	if len(data) != want {
		return errs.New(errs.KindMalformedAccount, address.String(),
			"%s account is %d bytes, want %d", kind, len(data), want)
	}
	return nil
}

func malformed(kind Kind, address solana.PublicKey, format string, args ...any) error {
	return errs.New(errs.KindMalformedAccount, address.String(), kind.String()+": "+format, args...)
}

func DecodeOrder(address solana.PublicKey, data []byte) (Order, error) {
	if err := checkSize(KindOrder, address, data, OrderSize); err != nil {
		return Order{}, err
	}
	r := newFieldReader(data)
	r.skip(DiscriminatorSize)
	out := Order{
		Address: address,
		Market:  r.pubkey(),
		Trader:  r.pubkey(),
	}
	side := r.u8()
	out.Price = r.u64()
	out.Amount = r.u64()
	out.FilledAmount = r.u64()
	out.SlotReservationTime = r.i64()
	status := r.u8()
	out.CreatedAt = r.i64()
	out.BatchID = r.u64()
	if r.err != nil {
		return Order{}, errs.Wrap(errs.KindMalformedAccount, address.String(), r.err, "decode order")
	}
	if side > uint8(SideSell) {
		return Order{}, malformed(KindOrder, address, "side %d out of range", side)
	}
	if status > uint8(OrderStatusCancelled) {
		return Order{}, malformed(KindOrder, address, "status %d out of range", status)
	}
	out.Side = Side(side)
	out.Status = OrderStatus(status)
	return out, nil
}

func DecodeSlotNFT(address solana.PublicKey, data []byte) (SlotNFT, error) {
	if err := checkSize(KindSlotNFT, address, data, SlotNFTSize); err != nil {
		return SlotNFT{}, err
	}
	r := newFieldReader(data)
	r.skip(DiscriminatorSize)
	out := SlotNFT{
		Address:      address,
		Owner:        r.pubkey(),
		SlotTime:     r.i64(),
		Capacity:     r.u64(),
		UsedCapacity: r.u64(),
	}
	status := r.u8()
	out.MintedAt = r.i64()
	out.Bump = r.u8()
	if r.err != nil {
		return SlotNFT{}, errs.Wrap(errs.KindMalformedAccount, address.String(), r.err, "decode slot nft")
	}
	if status > uint8(SlotStatusExpired) {
		return SlotNFT{}, malformed(KindSlotNFT, address, "status %d out of range", status)
	}
	out.Status = SlotStatus(status)
	return out, nil
}

func DecodeAuction(address solana.PublicKey, data []byte) (Auction, error) {
	if err := checkSize(KindAuction, address, data, AuctionSize); err != nil {
		return Auction{}, err
	}
	r := newFieldReader(data)
	r.skip(DiscriminatorSize)
	out := Auction{
		Address: address,
		SlotNFT: r.pubkey(),
		Seller:  r.pubkey(),
	}
	hasWinner := r.u8()
	winner := r.pubkey()
	out.StartingPrice = r.u64()
	out.ReservePrice = r.u64()
	out.CurrentPrice = r.u64()
	out.FinalPrice = r.u64()
	out.StartTime = r.i64()
	out.EndTime = r.i64()
	status := r.u8()
	out.Bump = r.u8()
	if r.err != nil {
		return Auction{}, errs.Wrap(errs.KindMalformedAccount, address.String(), r.err, "decode auction")
	}
	switch hasWinner {
	case 0:
	case 1:
		out.Winner = &winner
	default:
		return Auction{}, malformed(KindAuction, address, "winner flag %d out of range", hasWinner)
	}
	if status > uint8(AuctionStatusExpired) {
		return Auction{}, malformed(KindAuction, address, "status %d out of range", status)
	}
	out.Status = AuctionStatus(status)
	return out, nil
}

// EncodeAccount produces the on-chain byte layout for o, discriminator
// included.
func (o Order) EncodeAccount() ([]byte, error) {
	w := newFieldWriter(OrderSize)
	disc := AccountDiscriminator(AccountNameOrder)
	w.raw(disc[:])
	w.pubkey(o.Market)
	w.pubkey(o.Trader)
	w.u8(uint8(o.Side))
	w.u64(o.Price)
	w.u64(o.Amount)
	w.u64(o.FilledAmount)
	w.i64(o.SlotReservationTime)
	w.u8(uint8(o.Status))
	w.i64(o.CreatedAt)
	w.u64(o.BatchID)
	return w.bytes()
}

func (s SlotNFT) EncodeAccount() ([]byte, error) {
	w := newFieldWriter(SlotNFTSize)
	disc := AccountDiscriminator(AccountNameSlotNFT)
	w.raw(disc[:])
	w.pubkey(s.Owner)
	w.i64(s.SlotTime)
	w.u64(s.Capacity)
	w.u64(s.UsedCapacity)
	w.u8(uint8(s.Status))
	w.i64(s.MintedAt)
	w.u8(s.Bump)
	return w.bytes()
}

func (a Auction) EncodeAccount() ([]byte, error) {
	w := newFieldWriter(AuctionSize)
	disc := AccountDiscriminator(AccountNameAuction)
	w.raw(disc[:])
	w.pubkey(a.SlotNFT)
	w.pubkey(a.Seller)
	if a.Winner != nil {
		w.bool(true)
		w.pubkey(*a.Winner)
	} else {
		w.bool(false)
		w.pubkey(solana.PublicKey{})
	}
	w.u64(a.StartingPrice)
	w.u64(a.ReservePrice)
	w.u64(a.CurrentPrice)
	w.u64(a.FinalPrice)
	w.i64(a.StartTime)
	w.i64(a.EndTime)
	w.u8(uint8(a.Status))
	w.u8(a.Bump)
	return w.bytes()
}
