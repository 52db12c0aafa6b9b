package programs

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
)

var (
	wallet = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	mint   = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

func TestPDAsAreDeterministic(t *testing.T) {
	first, bump1, err := DeriveVaultPDA(DevnetIDs.Vault, wallet)
	require.NoError(t, err)
	second, bump2, err := DeriveVaultPDA(DevnetIDs.Vault, wallet)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, bump1, bump2)
	assert.Equal(t, first, MustDeriveVaultPDA(DevnetIDs.Vault, wallet))

	other, _, err := DeriveVaultPDA(DevnetIDs.DEX, wallet)
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "program id is part of the derivation")

	o1, _, err := DeriveOrderPDA(DevnetIDs.DEX, mint, wallet, 1)
	require.NoError(t, err)
	o2, _, err := DeriveOrderPDA(DevnetIDs.DEX, mint, wallet, 2)
	require.NoError(t, err)
	assert.NotEqual(t, o1, o2, "batch id seeds the order address")
}

func TestOrchestratorAccountsMatchProgramSeeds(t *testing.T) {
	const slotTime int64 = 1_700_000_123
	const batchTS int64 = 1_700_000_100
	le := func(v int64) []byte {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return buf
	}
	program := DevnetIDs.Orchestrator

	wantOrchestrator, _, err := solana.FindProgramAddress([][]byte{[]byte("orchestrator")}, program)
	require.NoError(t, err)
	wantReservation, _, err := solana.FindProgramAddress([][]byte{[]byte("reservation"), wallet[:], le(slotTime)}, program)
	require.NoError(t, err)
	wantBatch, _, err := solana.FindProgramAddress([][]byte{[]byte("batch"), wallet[:], le(batchTS)}, program)
	require.NoError(t, err)

	b := NewBuilder(DevnetIDs)

	initialized, err := b.InitializeOrchestrator(wallet)
	require.NoError(t, err)
	assert.Equal(t, wantOrchestrator, initialized.Address)
	assert.Equal(t, wantOrchestrator, initialized.Instruction.Accounts()[0].PublicKey)

	reserve, err := b.ReserveRaikuSlot(wallet, codec.ReserveRaikuSlotArgs{
		SlotTime: slotTime, ReservationType: codec.ReservationAOT, Priority: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, wantReservation, reserve.Address)
	accounts := reserve.Instruction.Accounts()
	assert.Equal(t, wantOrchestrator, accounts[0].PublicKey)
	assert.Equal(t, wantReservation, accounts[1].PublicKey)
	assert.Equal(t, wallet, accounts[2].PublicKey)

	batch, err := b.CreateExecutionBatch(wallet, batchTS, codec.CreateExecutionBatchArgs{BatchSize: 4})
	require.NoError(t, err)
	assert.Equal(t, wantBatch, batch.Address)
	accounts = batch.Instruction.Accounts()
	assert.Equal(t, wantOrchestrator, accounts[0].PublicKey)
	assert.Equal(t, wantBatch, accounts[1].PublicKey)

	other := solana.MustPublicKeyFromBase58("EjG3EGtjpC9VtgrzuW6aJ55KcJuWF5buuvhF4S5B7EcP")
	shared, err := b.InitializeOrchestrator(other)
	require.NoError(t, err)
	assert.Equal(t, initialized.Address, shared.Address, "one orchestrator per program")
}

func TestPlaceOrderInstruction(t *testing.T) {
	b := NewBuilder(DevnetIDs)
	market, _, err := DeriveMarketPDA(DevnetIDs.DEX, wallet)
	require.NoError(t, err)

	built, err := b.PlaceOrder(market, 3, wallet, codec.PlaceOrderArgs{
		Side: codec.SideBuy, Price: 1_000_000, Amount: 1_000_000_000, SlotTime: 1_700_000_000,
	})
	require.NoError(t, err)

	wantOrder, _, err := DeriveOrderPDA(DevnetIDs.DEX, market, wallet, 3)
	require.NoError(t, err)
	assert.Equal(t, wantOrder, built.Address)
	assert.Equal(t, DevnetIDs.DEX, built.Instruction.ProgramID())

	accounts := built.Instruction.Accounts()
	require.Len(t, accounts, 4)
	assert.Equal(t, market, accounts[0].PublicKey)
	assert.False(t, accounts[0].IsWritable)
	assert.Equal(t, wantOrder, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsWritable)
	assert.Equal(t, wallet, accounts[2].PublicKey)
	assert.True(t, accounts[2].IsSigner)
	assert.Equal(t, solana.SystemProgramID, accounts[3].PublicKey)

	data, err := built.Instruction.Data()
	require.NoError(t, err)
	decoded, err := codec.DecodeInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, codec.PlaceOrderArgs{Side: codec.SideBuy, Price: 1_000_000, Amount: 1_000_000_000, SlotTime: 1_700_000_000}, decoded)
}

func TestDepositInstructionAccounts(t *testing.T) {
	b := NewBuilder(DevnetIDs)
	built, err := b.Deposit(wallet, wallet, mint, codec.DepositArgs{Amount: 5})
	require.NoError(t, err)

	vault := MustDeriveVaultPDA(DevnetIDs.Vault, wallet)
	position, _, err := DeriveUserPositionPDA(DevnetIDs.Vault, vault, wallet)
	require.NoError(t, err)
	userATA, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)

	accounts := built.Instruction.Accounts()
	require.Len(t, accounts, 7)
	assert.Equal(t, vault, accounts[0].PublicKey)
	assert.Equal(t, position, accounts[1].PublicKey)
	assert.Equal(t, userATA, accounts[3].PublicKey)
	assert.Equal(t, solana.TokenProgramID, accounts[5].PublicKey)
	assert.Equal(t, vault, built.Address)
}

func TestBuilderRejectsInvalidArgs(t *testing.T) {
	b := NewBuilder(DevnetIDs)

	_, err := b.CreateExecutionBatch(wallet, 1_700_000_000, codec.CreateExecutionBatchArgs{BatchSize: 11})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = b.ReserveRaikuSlot(wallet, codec.ReserveRaikuSlotArgs{SlotTime: 1, Priority: 0})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = b.InitializeVault(wallet, codec.InitializeVaultArgs{RiskLevel: 0, RebalanceFrequency: 60})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestArgumentlessInstructionsCarryOnlyDiscriminator(t *testing.T) {
	b := NewBuilder(DevnetIDs)
	for _, fn := range []func() (Built, error){
		func() (Built, error) { return b.CancelOrder(mint, wallet) },
		func() (Built, error) { return b.PlaceBid(mint, wallet) },
		func() (Built, error) { return b.InitializeOrchestrator(wallet) },
	} {
		built, err := fn()
		require.NoError(t, err)
		data, err := built.Instruction.Data()
		require.NoError(t, err)
		assert.Len(t, data, codec.DiscriminatorSize)
	}
}
