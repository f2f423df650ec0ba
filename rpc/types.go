package rpc

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"lancechain/core/types"
	"lancechain/crypto"
	"lancechain/native/marketplace"
	"lancechain/services/indexer"
)

// AccountResult describes any ledger address.
type AccountResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
	Record  string `json:"record,omitempty"`
}

type RegistryResult struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	NextID  uint64 `json:"nextId"`
}

type ContractResult struct {
	Address            string  `json:"address"`
	Client             string  `json:"client"`
	ContractID         uint64  `json:"contractId"`
	Title              string  `json:"title"`
	Topic              string  `json:"topic"`
	Status             string  `json:"status"`
	Contractor         *string `json:"contractor,omitempty"`
	Amount             *string `json:"amount,omitempty"`
	AcceptedProposalID *uint64 `json:"acceptedProposalId,omitempty"`
}

type ProposalResult struct {
	Address    string `json:"address"`
	Contractor string `json:"contractor"`
	ProposalID uint64 `json:"proposalId"`
	Contract   string `json:"contract"`
	Amount     string `json:"amount"`
	Chosen     *bool  `json:"chosen,omitempty"`
}

type VaultResult struct {
	Address  string `json:"address"`
	Contract string `json:"contract"`
	Balance  string `json:"balance"`
}

type HeaderResult struct {
	Height    uint64 `json:"height"`
	Timestamp uint64 `json:"timestamp"`
	Hash      string `json:"hash"`
	PrevHash  string `json:"prevHash"`
	StateRoot string `json:"stateRoot"`
	TxHash    string `json:"txHash,omitempty"`
}

func formatAddress(addr [20]byte) string { return crypto.FromArray(addr).String() }

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func recordName(kind marketplace.RecordKind, ok bool) string {
	if !ok {
		return ""
	}
	switch kind {
	case marketplace.RecordClientRegistry:
		return "client"
	case marketplace.RecordContractorRegistry:
		return "contractor"
	case marketplace.RecordContract:
		return "contract"
	case marketplace.RecordProposal:
		return "proposal"
	case marketplace.RecordVault:
		return "vault"
	}
	return ""
}

func accountResult(addr [20]byte, acc *types.Account) AccountResult {
	kind, ok := marketplace.RecordKindOf(acc.Data)
	return AccountResult{
		Address: formatAddress(addr),
		Balance: formatBig(acc.Balance),
		Nonce:   acc.Nonce,
		Record:  recordName(kind, ok),
	}
}

func contractResult(addr [20]byte, c *marketplace.Contract) ContractResult {
	out := ContractResult{
		Address:    formatAddress(addr),
		Client:     formatAddress(c.Client),
		ContractID: c.ContractID,
		Title:      c.Title,
		Topic:      c.Topic,
		Status:     c.Status.String(),
	}
	if c.Contractor != nil {
		contractor := formatAddress(*c.Contractor)
		out.Contractor = &contractor
	}
	if c.Amount != nil {
		amount := strconv.FormatUint(*c.Amount, 10)
		out.Amount = &amount
	}
	if c.AcceptedProposalID != nil {
		id := *c.AcceptedProposalID
		out.AcceptedProposalID = &id
	}
	return out
}

func contractResultFromRow(row indexer.ContractRow) ContractResult {
	out := ContractResult{
		Address:            row.Address,
		Client:             row.Client,
		ContractID:         row.ContractID,
		Title:              row.Title,
		Topic:              row.Topic,
		Status:             row.Status,
		AcceptedProposalID: row.AcceptedProposalID,
	}
	if row.Contractor != "" {
		contractor := row.Contractor
		out.Contractor = &contractor
	}
	if row.Amount != "" {
		amount := row.Amount
		out.Amount = &amount
	}
	return out
}

func proposalResult(addr [20]byte, p *marketplace.Proposal) ProposalResult {
	return ProposalResult{
		Address:    formatAddress(addr),
		Contractor: formatAddress(p.Contractor),
		ProposalID: p.ProposalID,
		Contract:   formatAddress(p.Contract),
		Amount:     strconv.FormatUint(p.Amount, 10),
	}
}

func proposalResultFromRow(row indexer.ProposalRow) ProposalResult {
	chosen := row.Chosen
	return ProposalResult{
		Address:    row.Address,
		Contractor: row.Contractor,
		ProposalID: row.ProposalID,
		Contract:   row.Contract,
		Amount:     row.Amount,
		Chosen:     &chosen,
	}
}

func headerResult(h *types.BlockHeader) HeaderResult {
	hash, _ := h.Hash()
	out := HeaderResult{
		Height:    h.Height,
		Timestamp: h.Timestamp,
		Hash:      hexutil.Encode(hash),
		PrevHash:  hexutil.Encode(h.PrevHash),
		StateRoot: hexutil.Encode(h.StateRoot),
	}
	if len(h.TxHash) > 0 {
		out.TxHash = hexutil.Encode(h.TxHash)
	}
	return out
}
