package types

// TransferPayload moves native units from the signer to To.
type TransferPayload struct {
	To     [20]byte
	Amount uint64
}

// InitializeContractPayload carries the arguments of initialize_contract.
type InitializeContractPayload struct {
	ClientAccount [20]byte
	Title         string
	Topic         string
}

// InitializeProposalPayload carries the arguments of initialize_proposal.
type InitializeProposalPayload struct {
	ContractorAccount [20]byte
	Contract          [20]byte
	Amount            uint64
}

// UpdateProposalPayload carries the arguments of update_proposal.
type UpdateProposalPayload struct {
	ContractorAccount [20]byte
	Proposal          [20]byte
	Contract          [20]byte
	Amount            uint64
}

// ChooseProposalPayload carries the arguments of choose_proposal.
type ChooseProposalPayload struct {
	ClientAccount     [20]byte
	Contract          [20]byte
	Proposal          [20]byte
	ContractorAccount [20]byte
}

// MarkWorkDonePayload carries the arguments of mark_work_done.
type MarkWorkDonePayload struct {
	ContractorAccount [20]byte
	Contract          [20]byte
}

// ClaimPaymentPayload carries the arguments of claim_payment. Contractor is
// the destination identity; ContractorAccount is its registry record.
type ClaimPaymentPayload struct {
	ClientAccount     [20]byte
	Contractor        [20]byte
	ContractorAccount [20]byte
	Contract          [20]byte
	Vault             [20]byte
}
