package codec

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/errs"
)

// MaxReservedSlots is the capacity the vault program allocates for
// reserved_slots.
const MaxReservedSlots = 10

// vaultFixedSize covers everything before the reserved_slots vector items:
// discriminator, authority, strategy, risk, rebalance frequency, deposits,
// shares, last rebalance and the u32 vector length.
const vaultFixedSize = 8 + 32 + 1 + 1 + 8 + 8 + 8 + 8 + 4

const reservedSlotSize = 8 + 1 + 1 + 8

// VaultAccountSize is the allocated size of every vault account: the
// reserved_slots vector is sized for MaxReservedSlots and the unused tail
// after bump is zero padding.
const VaultAccountSize = vaultFixedSize + MaxReservedSlots*reservedSlotSize + 1

type StrategyType uint8

const (
	StrategyYieldOptimization StrategyType = iota
	StrategyDeltaNeutral
	StrategyArbitrage
)

func (s StrategyType) String() string {
	switch s {
	case StrategyYieldOptimization:
		return "YieldOptimization"
	case StrategyDeltaNeutral:
		return "DeltaNeutral"
	case StrategyArbitrage:
		return "Arbitrage"
	default:
		return fmt.Sprintf("StrategyType(%d)", uint8(s))
	}
}

type ReservationType uint8

const (
	ReservationAOT ReservationType = iota
	ReservationJIT
)

func (t ReservationType) String() string {
	switch t {
	case ReservationAOT:
		return "AOT"
	case ReservationJIT:
		return "JIT"
	default:
		return fmt.Sprintf("ReservationType(%d)", uint8(t))
	}
}

// VaultSlotStatus is the vault program's view of a reserved slot.
type VaultSlotStatus uint8

const (
	VaultSlotPending VaultSlotStatus = iota
	VaultSlotConfirmed
	VaultSlotExecuted
	VaultSlotFailed
)

func (s VaultSlotStatus) String() string {
	switch s {
	case VaultSlotPending:
		return "Pending"
	case VaultSlotConfirmed:
		return "Confirmed"
	case VaultSlotExecuted:
		return "Executed"
	case VaultSlotFailed:
		return "Failed"
	default:
		return fmt.Sprintf("VaultSlotStatus(%d)", uint8(s))
	}
}

type ReservedSlot struct {
	SlotTime   int64
	Type       ReservationType
	Status     VaultSlotStatus
	ReservedAt int64
}

type Vault struct {
	Address            solana.PublicKey
	Authority          solana.PublicKey
	StrategyType       StrategyType
	RiskLevel          uint8
	RebalanceFrequency int64
	TotalDeposits      uint64
	TotalShares        uint64
	LastRebalance      int64
	ReservedSlots      []ReservedSlot
	Bump               uint8
}

type UserPosition struct {
	Address         solana.PublicKey
	Vault           solana.PublicKey
	User            solana.PublicKey
	Shares          uint64
	DepositedAmount uint64
}

type Market struct {
	Address        solana.PublicKey
	Authority      solana.PublicKey
	BaseMint       solana.PublicKey
	QuoteMint      solana.PublicKey
	CurrentBatchID uint64
	TotalVolume    uint64
	Bump           uint8
}

// DecodeVault reads the borsh-encoded vault. The account is always
// VaultAccountSize bytes; anything after bump is ignored.
func DecodeVault(address solana.PublicKey, data []byte) (Vault, error) {
	if err := checkSize(KindVault, address, data, VaultAccountSize); err != nil {
		return Vault{}, err
	}
	r := newFieldReader(data)
	r.skip(DiscriminatorSize)
	out := Vault{
		Address:            address,
		Authority:          r.pubkey(),
		StrategyType:       StrategyType(r.u8()),
		RiskLevel:          r.u8(),
		RebalanceFrequency: r.i64(),
		TotalDeposits:      r.u64(),
		TotalShares:        r.u64(),
		LastRebalance:      r.i64(),
	}
	count := r.u32()
	if r.err != nil {
		return Vault{}, errs.Wrap(errs.KindMalformedAccount, address.String(), r.err, "decode vault")
	}
	if count > MaxReservedSlots {
		return Vault{}, malformed(KindVault, address, "reserved_slots length %d exceeds %d", count, MaxReservedSlots)
	}
	if out.StrategyType > StrategyArbitrage {
		return Vault{}, malformed(KindVault, address, "strategy %d out of range", out.StrategyType)
	}
	out.ReservedSlots = make([]ReservedSlot, 0, count)
	for i := uint32(0); i < count; i++ {
		slot := ReservedSlot{
			SlotTime:   r.i64(),
			Type:       ReservationType(r.u8()),
			Status:     VaultSlotStatus(r.u8()),
			ReservedAt: r.i64(),
		}
		if slot.Type > ReservationJIT || slot.Status > VaultSlotFailed {
			return Vault{}, malformed(KindVault, address, "reserved slot %d has invalid enum values", i)
		}
		out.ReservedSlots = append(out.ReservedSlots, slot)
	}
	out.Bump = r.u8()
	if r.err != nil {
		return Vault{}, errs.Wrap(errs.KindMalformedAccount, address.String(), r.err, "decode vault")
	}
	return out, nil
}

func (v Vault) EncodeAccount() ([]byte, error) {
	if len(v.ReservedSlots) > MaxReservedSlots {
		return nil, errs.New(errs.KindInvalidArgument, v.Address.String(),
			"reserved_slots length %d exceeds %d", len(v.ReservedSlots), MaxReservedSlots)
	}
	w := newFieldWriter(VaultAccountSize)
	disc := AccountDiscriminator(AccountNameVault)
	w.raw(disc[:])
	w.pubkey(v.Authority)
	w.u8(uint8(v.StrategyType))
	w.u8(v.RiskLevel)
	w.i64(v.RebalanceFrequency)
	w.u64(v.TotalDeposits)
	w.u64(v.TotalShares)
	w.i64(v.LastRebalance)
	w.u32(uint32(len(v.ReservedSlots)))
	for _, slot := range v.ReservedSlots {
		w.i64(slot.SlotTime)
		w.u8(uint8(slot.Type))
		w.u8(uint8(slot.Status))
		w.i64(slot.ReservedAt)
	}
	w.u8(v.Bump)
	w.pad(VaultAccountSize)
	return w.bytes()
}

// SharePrice returns deposits and shares as a ratio; ok is false before the
// first deposit.
func (v Vault) SharePrice() (deposits, shares uint64, ok bool) {
	if v.TotalShares == 0 {
		return 0, 0, false
	}
	return v.TotalDeposits, v.TotalShares, true
}

// DecodeUserPosition decodes a position account. Vault and user are not
// stored on-chain; they are the PDA seeds the caller derived the address from.
func DecodeUserPosition(address, vault, user solana.PublicKey, data []byte) (UserPosition, error) {
	if err := checkSize(KindUserPosition, address, data, UserPositionSize); err != nil {
		return UserPosition{}, err
	}
	r := newFieldReader(data)
	r.skip(DiscriminatorSize)
	out := UserPosition{
		Address:         address,
		Vault:           vault,
		User:            user,
		Shares:          r.u64(),
		DepositedAmount: r.u64(),
	}
	if r.err != nil {
		return UserPosition{}, errs.Wrap(errs.KindMalformedAccount, address.String(), r.err, "decode user position")
	}
	return out, nil
}

func (p UserPosition) EncodeAccount() ([]byte, error) {
	w := newFieldWriter(UserPositionSize)
	disc := AccountDiscriminator(AccountNameUserPosition)
	w.raw(disc[:])
	w.u64(p.Shares)
	w.u64(p.DepositedAmount)
	return w.bytes()
}

func DecodeMarket(address solana.PublicKey, data []byte) (Market, error) {
	if err := checkSize(KindMarket, address, data, MarketSize); err != nil {
		return Market{}, err
	}
	r := newFieldReader(data)
	r.skip(DiscriminatorSize)
	out := Market{
		Address:        address,
		Authority:      r.pubkey(),
		BaseMint:       r.pubkey(),
		QuoteMint:      r.pubkey(),
		CurrentBatchID: r.u64(),
		TotalVolume:    r.u64(),
		Bump:           r.u8(),
	}
	if r.err != nil {
		return Market{}, errs.Wrap(errs.KindMalformedAccount, address.String(), r.err, "decode market")
	}
	return out, nil
}

func (m Market) EncodeAccount() ([]byte, error) {
	w := newFieldWriter(MarketSize)
	disc := AccountDiscriminator(AccountNameMarket)
	w.raw(disc[:])
	w.pubkey(m.Authority)
	w.pubkey(m.BaseMint)
	w.pubkey(m.QuoteMint)
	w.u64(m.CurrentBatchID)
	w.u64(m.TotalVolume)
	w.u8(m.Bump)
	return w.bytes()
}
