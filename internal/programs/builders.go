// Package programs builds instructions for the four chronos programs: vault,
// DEX, slot market and orchestrator.
package programs

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/codec"
)

// IDs holds the deployed program addresses.
type IDs struct {
	Vault        solana.PublicKey
	DEX          solana.PublicKey
	Market       solana.PublicKey
	Orchestrator solana.PublicKey
}

var DevnetIDs = IDs{
	Vault:        solana.MustPublicKeyFromBase58("EjG3EGtjpC9VtgrzuW6aJ55KcJuWF5buuvhF4S5B7EcP"),
	DEX:          solana.MustPublicKeyFromBase58("FstLfRbswUSasgad1grV8ZY5Bh79CcAUe32vRoqNvJo6"),
	Market:       solana.MustPublicKeyFromBase58("8nAaEjXuKs9NC8MRwiBgyNEiAcY8Ab5YJsAaxnt6JaXJ"),
	Orchestrator: solana.MustPublicKeyFromBase58("5NyVeVkzxmB2XkrR5EnrEfxNVe82mPWdzSEYH5FBoMgF"),
}

// Built is an instruction together with the primary account it creates or
// mutates.
type Built struct {
	Instruction solana.Instruction
	Address     solana.PublicKey
}

type Builder struct {
	ids IDs
}

func NewBuilder(ids IDs) *Builder {
	return &Builder{ids: ids}
}

func (b *Builder) IDs() IDs { return b.ids }

func (b *Builder) InitializeVault(authority solana.PublicKey, args codec.InitializeVaultArgs) (Built, error) {
	vault, _, err := DeriveVaultPDA(b.ids.Vault, authority)
	if err != nil {
		return Built{}, fmt.Errorf("derive vault PDA: %w", err)
	}
	return build(b.ids.Vault, vault, args, solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

func (b *Builder) Deposit(vaultAuthority, user, mint solana.PublicKey, args codec.DepositArgs) (Built, error) {
	accounts, vault, err := b.vaultTransferAccounts(vaultAuthority, user, mint)
	if err != nil {
		return Built{}, err
	}
	return build(b.ids.Vault, vault, args, accounts)
}

func (b *Builder) Withdraw(vaultAuthority, user, mint solana.PublicKey, args codec.WithdrawArgs) (Built, error) {
	accounts, vault, err := b.vaultTransferAccounts(vaultAuthority, user, mint)
	if err != nil {
		return Built{}, err
	}
	return build(b.ids.Vault, vault, args, accounts)
}

func (b *Builder) vaultTransferAccounts(vaultAuthority, user, mint solana.PublicKey) (solana.AccountMetaSlice, solana.PublicKey, error) {
	vault, _, err := DeriveVaultPDA(b.ids.Vault, vaultAuthority)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("derive vault PDA: %w", err)
	}
	position, _, err := DeriveUserPositionPDA(b.ids.Vault, vault, user)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("derive position PDA: %w", err)
	}
	userATA, _, err := solana.FindAssociatedTokenAddress(user, mint)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("derive user token account: %w", err)
	}
	vaultATA, _, err := solana.FindAssociatedTokenAddress(vault, mint)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("derive vault token account: %w", err)
	}
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(position, true, false),
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(userATA, true, false),
		solana.NewAccountMeta(vaultATA, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, vault, nil
}

func (b *Builder) InitializeMarket(authority solana.PublicKey, args codec.InitializeMarketArgs) (Built, error) {
	market, _, err := DeriveMarketPDA(b.ids.DEX, authority)
	if err != nil {
		return Built{}, fmt.Errorf("derive market PDA: %w", err)
	}
	return build(b.ids.DEX, market, args, solana.AccountMetaSlice{
		solana.NewAccountMeta(market, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

// PlaceOrder needs the market's current batch id, which seeds the order PDA.
func (b *Builder) PlaceOrder(market solana.PublicKey, currentBatchID uint64, trader solana.PublicKey, args codec.PlaceOrderArgs) (Built, error) {
	order, _, err := DeriveOrderPDA(b.ids.DEX, market, trader, currentBatchID)
	if err != nil {
		return Built{}, fmt.Errorf("derive order PDA: %w", err)
	}
	return build(b.ids.DEX, order, args, solana.AccountMetaSlice{
		solana.NewAccountMeta(market, false, false),
		solana.NewAccountMeta(order, true, false),
		solana.NewAccountMeta(trader, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

func (b *Builder) CancelOrder(order, trader solana.PublicKey) (Built, error) {
	return build(b.ids.DEX, order, codec.CancelOrderArgs{}, solana.AccountMetaSlice{
		solana.NewAccountMeta(order, true, false),
		solana.NewAccountMeta(trader, false, true),
	})
}

func (b *Builder) MintSlotNFT(minter solana.PublicKey, args codec.MintSlotNFTArgs) (Built, error) {
	slot, _, err := DeriveSlotNFTPDA(b.ids.Market, minter, args.SlotTime)
	if err != nil {
		return Built{}, fmt.Errorf("derive slot nft PDA: %w", err)
	}
	return build(b.ids.Market, slot, args, solana.AccountMetaSlice{
		solana.NewAccountMeta(slot, true, false),
		solana.NewAccountMeta(minter, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

func (b *Builder) CreateAuction(slotNFT, seller solana.PublicKey, args codec.CreateAuctionArgs) (Built, error) {
	auction, _, err := DeriveAuctionPDA(b.ids.Market, slotNFT)
	if err != nil {
		return Built{}, fmt.Errorf("derive auction PDA: %w", err)
	}
	return build(b.ids.Market, auction, args, solana.AccountMetaSlice{
		solana.NewAccountMeta(auction, true, false),
		solana.NewAccountMeta(slotNFT, false, false),
		solana.NewAccountMeta(seller, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

func (b *Builder) PlaceBid(auction, bidder solana.PublicKey) (Built, error) {
	return build(b.ids.Market, auction, codec.PlaceBidArgs{}, solana.AccountMetaSlice{
		solana.NewAccountMeta(auction, true, false),
		solana.NewAccountMeta(bidder, true, true),
	})
}

func (b *Builder) InitializeOrchestrator(authority solana.PublicKey) (Built, error) {
	orchestrator, _, err := DeriveOrchestratorPDA(b.ids.Orchestrator)
	if err != nil {
		return Built{}, fmt.Errorf("derive orchestrator PDA: %w", err)
	}
	return build(b.ids.Orchestrator, orchestrator, codec.InitializeOrchestratorArgs{}, solana.AccountMetaSlice{
		solana.NewAccountMeta(orchestrator, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

func (b *Builder) ReserveRaikuSlot(authority solana.PublicKey, args codec.ReserveRaikuSlotArgs) (Built, error) {
	orchestrator, _, err := DeriveOrchestratorPDA(b.ids.Orchestrator)
	if err != nil {
		return Built{}, fmt.Errorf("derive orchestrator PDA: %w", err)
	}
	reservation, _, err := DeriveReservationPDA(b.ids.Orchestrator, authority, args.SlotTime)
	if err != nil {
		return Built{}, fmt.Errorf("derive reservation PDA: %w", err)
	}
	return build(b.ids.Orchestrator, reservation, args, solana.AccountMetaSlice{
		solana.NewAccountMeta(orchestrator, true, false),
		solana.NewAccountMeta(reservation, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

// CreateExecutionBatch seeds the batch PDA with the caller's unix timestamp.
func (b *Builder) CreateExecutionBatch(authority solana.PublicKey, timestamp int64, args codec.CreateExecutionBatchArgs) (Built, error) {
	orchestrator, _, err := DeriveOrchestratorPDA(b.ids.Orchestrator)
	if err != nil {
		return Built{}, fmt.Errorf("derive orchestrator PDA: %w", err)
	}
	batch, _, err := DeriveBatchPDA(b.ids.Orchestrator, authority, timestamp)
	if err != nil {
		return Built{}, fmt.Errorf("derive batch PDA: %w", err)
	}
	return build(b.ids.Orchestrator, batch, args, solana.AccountMetaSlice{
		solana.NewAccountMeta(orchestrator, true, false),
		solana.NewAccountMeta(batch, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

func build(programID, address solana.PublicKey, args codec.InstructionArgs, accounts solana.AccountMetaSlice) (Built, error) {
	data, err := codec.EncodeInstruction(args)
	if err != nil {
		return Built{}, err
	}
	return Built{
		Instruction: solana.NewInstruction(programID, accounts, data),
		Address:     address,
	}, nil
}
