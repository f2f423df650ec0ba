package core

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"lancechain/core/types"
	"lancechain/native/marketplace"
)

// ScanFilter matches records whose data holds Bytes at Offset.
type ScanFilter struct {
	Offset int
	Bytes  []byte
}

func (f ScanFilter) matches(data []byte) bool {
	if f.Offset < 0 || f.Offset+len(f.Bytes) > len(data) {
		return false
	}
	return bytes.Equal(data[f.Offset:f.Offset+len(f.Bytes)], f.Bytes)
}

// QueryRecord is a record account returned from a scan.
type QueryRecord struct {
	Address [20]byte
	Data    []byte
	Balance *big.Int
}

var errStopScan = errors.New("query: stop")

// ScanRecords walks every account holding a record of kind and returns those
// matching all filters, in address order. A limit of zero means unlimited.
func (sp *StateProcessor) ScanRecords(kind marketplace.RecordKind, filters []ScanFilter, limit int) ([]QueryRecord, error) {
	disc := marketplace.Discriminator(kind)
	all := append([]ScanFilter{{Offset: marketplace.OffsetDiscriminator, Bytes: disc[:]}}, filters...)
	var out []QueryRecord
	err := sp.Trie.Iterate(accountKeyPrefix, func(key, value []byte) error {
		acc := new(types.Account)
		if err := rlp.DecodeBytes(value, acc); err != nil {
			return err
		}
		if len(acc.Data) == 0 {
			return nil
		}
		for _, f := range all {
			if !f.matches(acc.Data) {
				return nil
			}
		}
		rec := QueryRecord{Data: acc.Data, Balance: acc.Balance}
		copy(rec.Address[:], key[len(accountKeyPrefix):])
		if rec.Balance == nil {
			rec.Balance = big.NewInt(0)
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return out, nil
}

// ContractFilter narrows ListContracts. Nil fields match everything.
type ContractFilter struct {
	Client *[20]byte
	Status *marketplace.ContractStatus
	Limit  int
}

// ContractEntry pairs a contract with its address.
type ContractEntry struct {
	Address  [20]byte
	Contract *marketplace.Contract
}

// ListContracts returns contracts matching filter. The client is matched by
// memcmp at its fixed offset; status sits after the variable-length strings
// so it is checked on the decoded record.
func (sp *StateProcessor) ListContracts(filter ContractFilter) ([]ContractEntry, error) {
	var filters []ScanFilter
	if filter.Client != nil {
		filters = append(filters, ScanFilter{Offset: marketplace.OffsetContractClient, Bytes: filter.Client[:]})
	}
	limit := filter.Limit
	if filter.Status != nil {
		limit = 0
	}
	records, err := sp.ScanRecords(marketplace.RecordContract, filters, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ContractEntry, 0, len(records))
	for _, rec := range records {
		c, err := marketplace.DecodeContract(rec.Data)
		if err != nil {
			return nil, err
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		out = append(out, ContractEntry{Address: rec.Address, Contract: c})
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// ProposalFilter narrows ListProposals. Nil fields match everything.
type ProposalFilter struct {
	Contract   *[20]byte
	Contractor *[20]byte
	Limit      int
}

// ProposalEntry pairs a proposal with its address.
type ProposalEntry struct {
	Address  [20]byte
	Proposal *marketplace.Proposal
}

// ListProposals returns proposals matching filter.
func (sp *StateProcessor) ListProposals(filter ProposalFilter) ([]ProposalEntry, error) {
	var filters []ScanFilter
	if filter.Contract != nil {
		filters = append(filters, ScanFilter{Offset: marketplace.OffsetProposalContract, Bytes: filter.Contract[:]})
	}
	if filter.Contractor != nil {
		filters = append(filters, ScanFilter{Offset: marketplace.OffsetProposalContractor, Bytes: filter.Contractor[:]})
	}
	records, err := sp.ScanRecords(marketplace.RecordProposal, filters, filter.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]ProposalEntry, 0, len(records))
	for _, rec := range records {
		p, err := marketplace.DecodeProposal(rec.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, ProposalEntry{Address: rec.Address, Proposal: p})
	}
	return out, nil
}

// LockedInVaults sums the balances of every vault that still owes a payment.
func (sp *StateProcessor) LockedInVaults() (*big.Int, error) {
	records, err := sp.ScanRecords(marketplace.RecordVault, nil, 0)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, rec := range records {
		total.Add(total, rec.Balance)
	}
	return total, nil
}
