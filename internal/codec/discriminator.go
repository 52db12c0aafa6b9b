package codec

import "crypto/sha256"

// Account type names as declared by the on-chain programs. Anchor derives the
// account discriminator from these.
const (
	AccountNameOrder        = "Order"
	AccountNameSlotNFT      = "SlotNFT"
	AccountNameAuction      = "Auction"
	AccountNameVault        = "Vault"
	AccountNameUserPosition = "UserPosition"
	AccountNameMarket       = "Market"
)

func InstructionDiscriminator(name string) [8]byte {
	return anchorDiscriminator("global:" + name)
}

func AccountDiscriminator(name string) [8]byte {
	return anchorDiscriminator("account:" + name)
}

func anchorDiscriminator(preimage string) [8]byte {
	hash := sha256.Sum256([]byte(preimage))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}
