package marketplace

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	MaxTitleLength = 100
	MaxTopicLength = 500
)

// Space reserved per record type. Rent is charged on these sizes; the
// contract size assumes both strings at their limits and every optional
// present.
const (
	RegistrySpace = 8 + 20 + 8
	ContractSpace = 8 + 20 + 8 + (4 + MaxTitleLength) + (4 + MaxTopicLength) + 1 + (1 + 20) + (1 + 8) + (1 + 8)
	ProposalSpace = 8 + 20 + 8 + 20 + 8
	VaultSpace    = 8 + 20
)

// Fixed field offsets usable by memcmp scan filters.
const (
	OffsetDiscriminator      = 0
	OffsetRegistryOwner      = 8
	OffsetContractClient     = 8
	OffsetContractID         = 28
	OffsetProposalContractor = 8
	OffsetProposalID         = 28
	OffsetProposalContract   = 36
	OffsetProposalAmount     = 56
	OffsetVaultContract      = 8
)

// RecordKind names a persisted record type.
type RecordKind string

const (
	RecordClientRegistry     RecordKind = "ClientRegistry"
	RecordContractorRegistry RecordKind = "ContractorRegistry"
	RecordContract           RecordKind = "Contract"
	RecordProposal           RecordKind = "Proposal"
	RecordVault              RecordKind = "Vault"
)

// Discriminator returns the 8-byte tag that prefixes every record of kind.
func Discriminator(kind RecordKind) [8]byte {
	var out [8]byte
	copy(out[:], ethcrypto.Keccak256([]byte("record:"+string(kind))))
	return out
}

var (
	discClientRegistry     = Discriminator(RecordClientRegistry)
	discContractorRegistry = Discriminator(RecordContractorRegistry)
	discContract           = Discriminator(RecordContract)
	discProposal           = Discriminator(RecordProposal)
	discVault              = Discriminator(RecordVault)
)

// RecordKindOf identifies the record type stored in data by its
// discriminator.
func RecordKindOf(data []byte) (RecordKind, bool) {
	if len(data) < 8 {
		return "", false
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	switch disc {
	case discClientRegistry:
		return RecordClientRegistry, true
	case discContractorRegistry:
		return RecordContractorRegistry, true
	case discContract:
		return RecordContract, true
	case discProposal:
		return RecordProposal, true
	case discVault:
		return RecordVault, true
	default:
		return "", false
	}
}

// ContractStatus is the lifecycle stage of a contract.
type ContractStatus uint8

const (
	StatusOpened ContractStatus = iota
	StatusAccepted
	StatusClosed
)

func (s ContractStatus) Valid() bool {
	switch s {
	case StatusOpened, StatusAccepted, StatusClosed:
		return true
	default:
		return false
	}
}

func (s ContractStatus) String() string {
	switch s {
	case StatusOpened:
		return "opened"
	case StatusAccepted:
		return "accepted"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseContractStatus resolves the textual form produced by String.
func ParseContractStatus(s string) (ContractStatus, error) {
	switch s {
	case "opened":
		return StatusOpened, nil
	case "accepted":
		return StatusAccepted, nil
	case "closed":
		return StatusClosed, nil
	default:
		return 0, fmt.Errorf("unknown contract status %q", s)
	}
}

// ClientRegistry is the per-identity record that numbers a client's
// contracts.
type ClientRegistry struct {
	Owner          Address
	NextContractID uint64
}

func (r *ClientRegistry) Encode() []byte {
	w := newRecordEncoder(discClientRegistry, RegistrySpace)
	w.address(r.Owner)
	w.u64(r.NextContractID)
	return w.bytes()
}

func DecodeClientRegistry(data []byte) (*ClientRegistry, error) {
	d := newRecordDecoder(data, discClientRegistry, string(RecordClientRegistry))
	r := &ClientRegistry{Owner: d.address(), NextContractID: d.u64()}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return r, nil
}

// ContractorRegistry is the per-identity record that numbers a contractor's
// proposals.
type ContractorRegistry struct {
	Owner          Address
	NextProposalID uint64
}

func (r *ContractorRegistry) Encode() []byte {
	w := newRecordEncoder(discContractorRegistry, RegistrySpace)
	w.address(r.Owner)
	w.u64(r.NextProposalID)
	return w.bytes()
}

func DecodeContractorRegistry(data []byte) (*ContractorRegistry, error) {
	d := newRecordDecoder(data, discContractorRegistry, string(RecordContractorRegistry))
	r := &ContractorRegistry{Owner: d.address(), NextProposalID: d.u64()}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return r, nil
}

// Contract is a paid mission posted by a client. Contractor and Amount are
// set together when a proposal is chosen; Amount is cleared again once the
// payment has been claimed.
type Contract struct {
	Client             Address
	ContractID         uint64
	Title              string
	Topic              string
	Status             ContractStatus
	Contractor         *Address
	Amount             *uint64
	AcceptedProposalID *uint64
}

// Clone returns a deep copy of the contract.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Contractor != nil {
		v := *c.Contractor
		clone.Contractor = &v
	}
	if c.Amount != nil {
		v := *c.Amount
		clone.Amount = &v
	}
	if c.AcceptedProposalID != nil {
		v := *c.AcceptedProposalID
		clone.AcceptedProposalID = &v
	}
	return &clone
}

func (c *Contract) Encode() []byte {
	w := newRecordEncoder(discContract, ContractSpace)
	w.address(c.Client)
	w.u64(c.ContractID)
	w.str(c.Title)
	w.str(c.Topic)
	w.u8(uint8(c.Status))
	w.optAddress(c.Contractor)
	w.optU64(c.Amount)
	w.optU64(c.AcceptedProposalID)
	return w.bytes()
}

func DecodeContract(data []byte) (*Contract, error) {
	d := newRecordDecoder(data, discContract, string(RecordContract))
	c := &Contract{
		Client:     d.address(),
		ContractID: d.u64(),
		Title:      d.str(MaxTitleLength),
		Topic:      d.str(MaxTopicLength),
	}
	status := ContractStatus(d.u8())
	c.Contractor = d.optAddress()
	c.Amount = d.optU64()
	c.AcceptedProposalID = d.optU64()
	if err := d.finish(); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: contract status %d", ErrInvalidRecord, uint8(status))
	}
	c.Status = status
	return c, nil
}

// Proposal is a contractor's priced offer on a contract.
type Proposal struct {
	Contractor Address
	ProposalID uint64
	Contract   Address
	Amount     uint64
}

func (p *Proposal) Encode() []byte {
	w := newRecordEncoder(discProposal, ProposalSpace)
	w.address(p.Contractor)
	w.u64(p.ProposalID)
	w.address(p.Contract)
	w.u64(p.Amount)
	return w.bytes()
}

func DecodeProposal(data []byte) (*Proposal, error) {
	d := newRecordDecoder(data, discProposal, string(RecordProposal))
	p := &Proposal{
		Contractor: d.address(),
		ProposalID: d.u64(),
		Contract:   d.address(),
		Amount:     d.u64(),
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return p, nil
}

// Vault marks the custody account of a single contract.
type Vault struct {
	Contract Address
}

func (v *Vault) Encode() []byte {
	w := newRecordEncoder(discVault, VaultSpace)
	w.address(v.Contract)
	return w.bytes()
}

func DecodeVault(data []byte) (*Vault, error) {
	d := newRecordDecoder(data, discVault, string(RecordVault))
	v := &Vault{Contract: d.address()}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return v, nil
}
