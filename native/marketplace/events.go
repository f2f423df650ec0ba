package marketplace

import (
	"strconv"

	"lancechain/core/types"
)

const (
	EventTypeClientInitialized     = "market.client.initialized"
	EventTypeContractorInitialized = "market.contractor.initialized"
	EventTypeContractInitialized   = "market.contract.initialized"
	EventTypeProposalInitialized   = "market.proposal.initialized"
	EventTypeProposalUpdated       = "market.proposal.updated"
	EventTypeProposalChosen        = "market.proposal.chosen"
	EventTypeWorkDone              = "market.contract.work_done"
	EventTypePaymentClaimed        = "market.payment.claimed"
)

// EventTypes lists every event the marketplace emits.
var EventTypes = []string{
	EventTypeClientInitialized,
	EventTypeContractorInitialized,
	EventTypeContractInitialized,
	EventTypeProposalInitialized,
	EventTypeProposalUpdated,
	EventTypeProposalChosen,
	EventTypeWorkDone,
	EventTypePaymentClaimed,
}

func newEvent(eventType string, ts int64, attrs map[string]string) *types.Event {
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func formatU64(v uint64) string { return strconv.FormatUint(v, 10) }

// NewClientInitializedEvent reports a new client registry.
func NewClientInitializedEvent(account Address, owner Address, ts int64) *types.Event {
	return newEvent(EventTypeClientInitialized, ts, map[string]string{
		"account": FormatAddress(account),
		"owner":   FormatAddress(owner),
	})
}

// NewContractorInitializedEvent reports a new contractor registry.
func NewContractorInitializedEvent(account Address, owner Address, ts int64) *types.Event {
	return newEvent(EventTypeContractorInitialized, ts, map[string]string{
		"account": FormatAddress(account),
		"owner":   FormatAddress(owner),
	})
}

func NewContractInitializedEvent(addr Address, c *Contract, ts int64) *types.Event {
	return newEvent(EventTypeContractInitialized, ts, map[string]string{
		"contract":   FormatAddress(addr),
		"client":     FormatAddress(c.Client),
		"contractId": formatU64(c.ContractID),
		"title":      c.Title,
	})
}

func NewProposalInitializedEvent(addr Address, p *Proposal, ts int64) *types.Event {
	return newEvent(EventTypeProposalInitialized, ts, map[string]string{
		"proposal":   FormatAddress(addr),
		"contractor": FormatAddress(p.Contractor),
		"contract":   FormatAddress(p.Contract),
		"proposalId": formatU64(p.ProposalID),
		"amount":     formatU64(p.Amount),
	})
}

// NewProposalUpdatedEvent carries both the previous and the new amount.
func NewProposalUpdatedEvent(addr Address, p *Proposal, oldAmount uint64, ts int64) *types.Event {
	return newEvent(EventTypeProposalUpdated, ts, map[string]string{
		"proposal":  FormatAddress(addr),
		"contract":  FormatAddress(p.Contract),
		"oldAmount": formatU64(oldAmount),
		"newAmount": formatU64(p.Amount),
	})
}

func NewProposalChosenEvent(contract, proposal, vault Address, p *Proposal, ts int64) *types.Event {
	return newEvent(EventTypeProposalChosen, ts, map[string]string{
		"contract":   FormatAddress(contract),
		"proposal":   FormatAddress(proposal),
		"contractor": FormatAddress(p.Contractor),
		"vault":      FormatAddress(vault),
		"amount":     formatU64(p.Amount),
	})
}

func NewWorkDoneEvent(contract, contractor Address, ts int64) *types.Event {
	return newEvent(EventTypeWorkDone, ts, map[string]string{
		"contract":   FormatAddress(contract),
		"contractor": FormatAddress(contractor),
	})
}

// NewPaymentClaimedEvent reports the release of amount to the contractor
// identity and the return of the vault overhead to the client.
func NewPaymentClaimedEvent(contract, vault, recipient Address, amount uint64, refund string, ts int64) *types.Event {
	return newEvent(EventTypePaymentClaimed, ts, map[string]string{
		"contract":  FormatAddress(contract),
		"vault":     FormatAddress(vault),
		"recipient": FormatAddress(recipient),
		"amount":    formatU64(amount),
		"refund":    refund,
	})
}
