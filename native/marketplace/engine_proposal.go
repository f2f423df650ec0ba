package marketplace

// InitializeProposalAccounts names the accounts touched by InitializeProposal.
type InitializeProposalAccounts struct {
	Signer            Address
	ContractorAccount Address
	Contract          Address
}

// InitializeProposal files a priced offer on a contract under the signer's
// contractor registry. The contract may be in any status.
func (e *Engine) InitializeProposal(acc InitializeProposalAccounts, amount uint64) (Address, error) {
	b := e.newBatch()
	reg, err := b.contractorRegistry(acc.ContractorAccount)
	if err != nil {
		return Address{}, err
	}
	if reg.Owner != acc.Signer {
		return Address{}, wrap(ErrUnauthorizedAccount, "signer %s does not own contractor registry %s",
			FormatAddress(acc.Signer), FormatAddress(acc.ContractorAccount))
	}
	if _, err := b.contract(acc.Contract); err != nil {
		return Address{}, err
	}
	next, err := checkedIncrement(reg.NextProposalID)
	if err != nil {
		return Address{}, err
	}

	proposal := &Proposal{
		Contractor: acc.ContractorAccount,
		ProposalID: reg.NextProposalID,
		Contract:   acc.Contract,
		Amount:     amount,
	}
	addr := ProposalAddress(acc.ContractorAccount, reg.NextProposalID)
	if err := b.createRecord(acc.Signer, addr, proposal.Encode(), ProposalSpace); err != nil {
		return Address{}, err
	}
	reg.NextProposalID = next
	b.setData(acc.ContractorAccount, reg.Encode())

	if err := b.flush(); err != nil {
		return Address{}, err
	}
	e.emit(NewProposalInitializedEvent(addr, proposal, e.now()))
	return addr, nil
}

// UpdateProposalAccounts names the accounts touched by UpdateProposal.
type UpdateProposalAccounts struct {
	Signer            Address
	ContractorAccount Address
	Proposal          Address
	Contract          Address
}

// UpdateProposal replaces the amount of a proposal while its contract is
// still open. No other field changes.
func (e *Engine) UpdateProposal(acc UpdateProposalAccounts, amount uint64) error {
	b := e.newBatch()
	reg, err := b.contractorRegistry(acc.ContractorAccount)
	if err != nil {
		return err
	}
	if reg.Owner != acc.Signer {
		return wrap(ErrUnauthorizedAccount, "signer %s does not own contractor registry %s",
			FormatAddress(acc.Signer), FormatAddress(acc.ContractorAccount))
	}
	proposal, err := b.proposal(acc.Proposal)
	if err != nil {
		return err
	}
	if proposal.Contractor != acc.ContractorAccount {
		return wrap(ErrUnauthorizedAccount, "proposal %s belongs to %s",
			FormatAddress(acc.Proposal), FormatAddress(proposal.Contractor))
	}
	if proposal.Contract != acc.Contract {
		return wrap(ErrInvalidProposalForContract, "proposal %s targets %s",
			FormatAddress(acc.Proposal), FormatAddress(proposal.Contract))
	}
	contract, err := b.contract(acc.Contract)
	if err != nil {
		return err
	}
	if contract.Status != StatusOpened {
		return wrap(ErrProposalCannotBeUpdated, "contract %s is %s", FormatAddress(acc.Contract), contract.Status)
	}

	old := proposal.Amount
	proposal.Amount = amount
	b.setData(acc.Proposal, proposal.Encode())
	if err := b.flush(); err != nil {
		return err
	}
	e.emit(NewProposalUpdatedEvent(acc.Proposal, proposal, old, e.now()))
	return nil
}
