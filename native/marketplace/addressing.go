package marketplace

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lancechain/crypto"
)

// Address identifies any ledger account: an identity or a derived record.
type Address = [20]byte

// Seed tags. Each tag's seed tuple is unique per logical entity, so derived
// addresses never collide across record types.
const (
	SeedClient     = "client"
	SeedContractor = "contractor"
	SeedContract   = "contract"
	SeedProposal   = "proposal"
	SeedVault      = "vault"
)

var derivationDomain = []byte("lancechain/pda")

// DeriveAddress maps a tag and seed values to a deterministic address. The
// tag is NUL-terminated so ("ab", "c...") and ("a", "bc...") cannot alias.
func DeriveAddress(tag string, seeds ...[]byte) Address {
	parts := make([][]byte, 0, len(seeds)+3)
	parts = append(parts, derivationDomain, []byte(tag), []byte{0})
	parts = append(parts, seeds...)
	hash := ethcrypto.Keccak256(parts...)
	var out Address
	copy(out[:], hash[12:])
	return out
}

// CounterSeed encodes a sequence counter the way it enters a seed tuple:
// 8 bytes little-endian.
func CounterSeed(id uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, id)
	return buf
}

// ClientAddress returns the registry address of the client identity.
func ClientAddress(identity Address) Address {
	return DeriveAddress(SeedClient, identity[:])
}

// ContractorAddress returns the registry address of the contractor identity.
func ContractorAddress(identity Address) Address {
	return DeriveAddress(SeedContractor, identity[:])
}

// ContractAddress returns the address of contract id under a client registry.
func ContractAddress(clientAccount Address, contractID uint64) Address {
	return DeriveAddress(SeedContract, clientAccount[:], CounterSeed(contractID))
}

// ProposalAddress returns the address of proposal id under a contractor registry.
func ProposalAddress(contractorAccount Address, proposalID uint64) Address {
	return DeriveAddress(SeedProposal, contractorAccount[:], CounterSeed(proposalID))
}

// VaultAddress returns the custody account of a contract.
func VaultAddress(contract Address) Address {
	return DeriveAddress(SeedVault, contract[:])
}

// FormatAddress renders addr in bech32 form.
func FormatAddress(addr Address) string {
	return crypto.FromArray(addr).String()
}
