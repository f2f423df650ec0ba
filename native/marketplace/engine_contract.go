package marketplace

import "math/big"

// InitializeContractAccounts names the accounts touched by InitializeContract.
type InitializeContractAccounts struct {
	Signer        Address
	ClientAccount Address
}

// InitializeContract posts a new open contract under the signer's client
// registry and advances the registry counter.
func (e *Engine) InitializeContract(acc InitializeContractAccounts, title, topic string) (Address, error) {
	b := e.newBatch()
	reg, err := b.clientRegistry(acc.ClientAccount)
	if err != nil {
		return Address{}, err
	}
	if reg.Owner != acc.Signer {
		return Address{}, wrap(ErrUnauthorizedAccount, "signer %s does not own client registry %s",
			FormatAddress(acc.Signer), FormatAddress(acc.ClientAccount))
	}
	if len(title) > MaxTitleLength {
		return Address{}, wrap(ErrTitleTooLong, "%d bytes", len(title))
	}
	if len(topic) > MaxTopicLength {
		return Address{}, wrap(ErrTopicTooLong, "%d bytes", len(topic))
	}
	next, err := checkedIncrement(reg.NextContractID)
	if err != nil {
		return Address{}, err
	}

	contract := &Contract{
		Client:     acc.ClientAccount,
		ContractID: reg.NextContractID,
		Title:      title,
		Topic:      topic,
		Status:     StatusOpened,
	}
	addr := ContractAddress(acc.ClientAccount, reg.NextContractID)
	if err := b.createRecord(acc.Signer, addr, contract.Encode(), ContractSpace); err != nil {
		return Address{}, err
	}
	reg.NextContractID = next
	b.setData(acc.ClientAccount, reg.Encode())

	if err := b.flush(); err != nil {
		return Address{}, err
	}
	e.emit(NewContractInitializedEvent(addr, contract, e.now()))
	return addr, nil
}

// ChooseProposalAccounts names the accounts touched by ChooseProposal.
type ChooseProposalAccounts struct {
	Signer            Address
	ClientAccount     Address
	Contract          Address
	Proposal          Address
	ContractorAccount Address
}

// ChooseProposal accepts a proposal: the vault is created and funded with the
// proposal amount plus its own rent, and the contract moves to Accepted.
func (e *Engine) ChooseProposal(acc ChooseProposalAccounts) (Address, error) {
	b := e.newBatch()
	reg, err := b.clientRegistry(acc.ClientAccount)
	if err != nil {
		return Address{}, err
	}
	if reg.Owner != acc.Signer {
		return Address{}, wrap(ErrUnauthorizedAccount, "signer %s does not own client registry %s",
			FormatAddress(acc.Signer), FormatAddress(acc.ClientAccount))
	}
	contract, err := b.contract(acc.Contract)
	if err != nil {
		return Address{}, err
	}
	if contract.Client != acc.ClientAccount {
		return Address{}, wrap(ErrUnauthorizedAccount, "contract %s belongs to %s",
			FormatAddress(acc.Contract), FormatAddress(contract.Client))
	}
	proposal, err := b.proposal(acc.Proposal)
	if err != nil {
		return Address{}, err
	}
	if proposal.Contract != acc.Contract {
		return Address{}, wrap(ErrInvalidProposalForContract, "proposal %s targets %s",
			FormatAddress(acc.Proposal), FormatAddress(proposal.Contract))
	}
	if proposal.Contractor != acc.ContractorAccount {
		return Address{}, wrap(ErrInvalidContractorForProposal, "proposal %s belongs to %s",
			FormatAddress(acc.Proposal), FormatAddress(proposal.Contractor))
	}
	if contract.Status != StatusOpened {
		return Address{}, wrap(ErrContractNotOpened, "contract %s is %s", FormatAddress(acc.Contract), contract.Status)
	}

	vaultAddr := VaultAddress(acc.Contract)
	vaultAcc, err := b.get(vaultAddr)
	if err != nil {
		return Address{}, err
	}
	if len(vaultAcc.Data) > 0 {
		return Address{}, wrap(ErrAlreadyInitialized, "vault %s", FormatAddress(vaultAddr))
	}
	total, err := e.rent.escrowTotal(proposal.Amount)
	if err != nil {
		return Address{}, err
	}
	payer, err := b.get(acc.Signer)
	if err != nil {
		return Address{}, err
	}
	if payer.Balance.Cmp(total) < 0 {
		return Address{}, wrap(ErrInsufficientClientFunds, "need %s, have %s", total, payer.Balance)
	}

	payer.Balance = new(big.Int).Sub(payer.Balance, total)
	vaultAcc.Balance = new(big.Int).Add(vaultAcc.Balance, total)
	vaultAcc.Data = (&Vault{Contract: acc.Contract}).Encode()
	b.mark(acc.Signer)
	b.mark(vaultAddr)

	amount := proposal.Amount
	contractor := acc.ContractorAccount
	proposalID := proposal.ProposalID
	contract.Amount = &amount
	contract.Contractor = &contractor
	contract.AcceptedProposalID = &proposalID
	contract.Status = StatusAccepted
	b.setData(acc.Contract, contract.Encode())

	if err := b.flush(); err != nil {
		return Address{}, err
	}
	e.emit(NewProposalChosenEvent(acc.Contract, acc.Proposal, vaultAddr, proposal, e.now()))
	return vaultAddr, nil
}

// MarkWorkDoneAccounts names the accounts touched by MarkWorkDone.
type MarkWorkDoneAccounts struct {
	Signer            Address
	ContractorAccount Address
	Contract          Address
}

// MarkWorkDone is the contractor's attestation that an accepted contract is
// complete. It closes the contract; calling it again fails.
func (e *Engine) MarkWorkDone(acc MarkWorkDoneAccounts) error {
	b := e.newBatch()
	reg, err := b.contractorRegistry(acc.ContractorAccount)
	if err != nil {
		return err
	}
	if reg.Owner != acc.Signer {
		return wrap(ErrUnauthorizedAccount, "signer %s does not own contractor registry %s",
			FormatAddress(acc.Signer), FormatAddress(acc.ContractorAccount))
	}
	contract, err := b.contract(acc.Contract)
	if err != nil {
		return err
	}
	if contract.Contractor != nil && *contract.Contractor != acc.ContractorAccount {
		return wrap(ErrUnauthorizedAccount, "contract %s was awarded to %s",
			FormatAddress(acc.Contract), FormatAddress(*contract.Contractor))
	}
	if contract.Status != StatusAccepted {
		return wrap(ErrContractNotAccepted, "contract %s is %s", FormatAddress(acc.Contract), contract.Status)
	}

	contract.Status = StatusClosed
	b.setData(acc.Contract, contract.Encode())
	if err := b.flush(); err != nil {
		return err
	}
	e.emit(NewWorkDoneEvent(acc.Contract, acc.ContractorAccount, e.now()))
	return nil
}

// ClaimPaymentAccounts names the accounts touched by ClaimPayment. Contractor
// is the identity that receives the payment.
type ClaimPaymentAccounts struct {
	Signer            Address
	ClientAccount     Address
	Contractor        Address
	ContractorAccount Address
	Contract          Address
	Vault             Address
}

// ClaimPayment releases the escrowed amount to the contractor identity and
// returns the vault's remaining balance to the signing client. The vault
// ends empty and the contract's amount is cleared, so a second claim fails.
func (e *Engine) ClaimPayment(acc ClaimPaymentAccounts) error {
	b := e.newBatch()
	reg, err := b.clientRegistry(acc.ClientAccount)
	if err != nil {
		return err
	}
	if reg.Owner != acc.Signer {
		return wrap(ErrUnauthorizedAccount, "signer %s does not own client registry %s",
			FormatAddress(acc.Signer), FormatAddress(acc.ClientAccount))
	}
	contract, err := b.contract(acc.Contract)
	if err != nil {
		return err
	}
	if contract.Client != acc.ClientAccount {
		return wrap(ErrUnauthorizedAccount, "contract %s belongs to %s",
			FormatAddress(acc.Contract), FormatAddress(contract.Client))
	}
	contractorReg, err := b.contractorRegistry(acc.ContractorAccount)
	if err != nil {
		return err
	}
	if contractorReg.Owner != acc.Contractor {
		return wrap(ErrUnauthorizedAccount, "%s does not own contractor registry %s",
			FormatAddress(acc.Contractor), FormatAddress(acc.ContractorAccount))
	}
	if contract.Contractor != nil && *contract.Contractor != acc.ContractorAccount {
		return wrap(ErrInvalidContractorForContract, "contract %s was awarded to %s",
			FormatAddress(acc.Contract), FormatAddress(*contract.Contractor))
	}
	if acc.Vault != VaultAddress(acc.Contract) {
		return wrap(ErrInvalidVault, "%s", FormatAddress(acc.Vault))
	}
	if contract.Status != StatusClosed || contract.Amount == nil {
		return wrap(ErrContractNotClosed, "contract %s is %s", FormatAddress(acc.Contract), contract.Status)
	}
	amount := *contract.Amount
	if _, _, err := b.vault(acc.Vault); err != nil {
		return err
	}
	vaultAcc, err := b.get(acc.Vault)
	if err != nil {
		return err
	}
	payout := new(big.Int).SetUint64(amount)
	if vaultAcc.Balance.Cmp(payout) < 0 {
		return wrap(ErrInsufficientFunds, "vault %s holds %s, owes %s", FormatAddress(acc.Vault), vaultAcc.Balance, payout)
	}
	// Whatever the vault holds beyond the payout is the vault rent the client
	// deposited at choose time; it goes back to the client, not the
	// contractor.
	refund := new(big.Int).Sub(vaultAcc.Balance, payout)

	recipient, err := b.get(acc.Contractor)
	if err != nil {
		return err
	}
	recipient.Balance = new(big.Int).Add(recipient.Balance, payout)
	b.mark(acc.Contractor)
	client, err := b.get(acc.Signer)
	if err != nil {
		return err
	}
	client.Balance = new(big.Int).Add(client.Balance, refund)
	b.mark(acc.Signer)
	vaultAcc.Balance = new(big.Int)
	b.mark(acc.Vault)

	contract.Amount = nil
	b.setData(acc.Contract, contract.Encode())
	if err := b.flush(); err != nil {
		return err
	}
	e.emit(NewPaymentClaimedEvent(acc.Contract, acc.Vault, acc.Contractor, amount, refund.String(), e.now()))
	return nil
}
