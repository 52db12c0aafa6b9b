package programs

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

func DeriveVaultPDA(vaultProgramID, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("vault"), authority.Bytes()}, vaultProgramID)
}

func DeriveUserPositionPDA(vaultProgramID, vault, user solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("position"), vault.Bytes(), user.Bytes()}, vaultProgramID)
}

func DeriveMarketPDA(dexProgramID, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("market"), authority.Bytes()}, dexProgramID)
}

func DeriveOrderPDA(dexProgramID, market, trader solana.PublicKey, batchID uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("order"), market.Bytes(), trader.Bytes(), u64LE(batchID)}, dexProgramID)
}

func DeriveSlotNFTPDA(marketProgramID, minter solana.PublicKey, slotTime int64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("slot_nft"), minter.Bytes(), i64LE(slotTime)}, marketProgramID)
}

func DeriveAuctionPDA(marketProgramID, slotNFT solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("auction"), slotNFT.Bytes()}, marketProgramID)
}

// DeriveOrchestratorPDA returns the program's single orchestrator account.
func DeriveOrchestratorPDA(orchestratorProgramID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("orchestrator")}, orchestratorProgramID)
}

func DeriveReservationPDA(orchestratorProgramID, requester solana.PublicKey, slotTime int64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte("reservation"), requester.Bytes(), i64LE(slotTime)},
		orchestratorProgramID,
	)
}

// DeriveBatchPDA is seeded with the cluster's unix timestamp at execution,
// so timestamp must match the block the transaction lands in.
func DeriveBatchPDA(orchestratorProgramID, creator solana.PublicKey, timestamp int64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte("batch"), creator.Bytes(), i64LE(timestamp)},
		orchestratorProgramID,
	)
}

func MustDeriveVaultPDA(vaultProgramID, authority solana.PublicKey) solana.PublicKey {
	pk, _, err := DeriveVaultPDA(vaultProgramID, authority)
	if err != nil {
		panic(fmt.Errorf("derive vault PDA: %w", err))
	}
	return pk
}

func u64LE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}

func i64LE(value int64) []byte {
	return u64LE(uint64(value))
}
