package marketplace

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lancechain/core/events"
	"lancechain/core/types"
)

type mockState struct {
	accounts map[[20]byte]*types.Account
	puts     int
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[[20]byte]*types.Account)}
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	acc, ok := m.accounts[key]
	if !ok {
		return types.NewAccount(), nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = account.Clone()
	m.puts++
	return nil
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	acc := types.NewAccount()
	if existing, ok := m.accounts[addr]; ok {
		acc = existing
	}
	acc.Balance = new(big.Int).Add(acc.Balance, big.NewInt(amount))
	m.accounts[addr] = acc
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

// snapshot captures every account so tests can assert that a failed call
// left state untouched.
func (m *mockState) snapshot() map[[20]byte]*types.Account {
	out := make(map[[20]byte]*types.Account, len(m.accounts))
	for k, v := range m.accounts {
		out[k] = v.Clone()
	}
	return out
}

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, events.Unwrap(evt))
}

func (c *captureEmitter) last() *types.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

const testNow = int64(1_700_000_000)

func newTestEngine(t *testing.T) (*Engine, *mockState, *captureEmitter) {
	t.Helper()
	state := newMockState()
	emitter := &captureEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return testNow })
	return engine, state, emitter
}

func rent(t *testing.T, space uint64) int64 {
	t.Helper()
	v, err := DefaultRentParams().MinimumBalance(space)
	require.NoError(t, err)
	return v.Int64()
}

// marketFixture wires a funded client with an open contract and a funded
// contractor with a proposal on it.
type marketFixture struct {
	engine            *Engine
	state             *mockState
	emitter           *captureEmitter
	client            [20]byte
	contractor        [20]byte
	clientAccount     [20]byte
	contractorAccount [20]byte
	contract          [20]byte
	proposal          [20]byte
}

const (
	scenarioAmount  = 1_000_000_000
	clientFunding   = 10_000_000_000
	contractorFunds = 100_000_000
)

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	engine, state, emitter := newTestEngine(t)
	f := &marketFixture{
		engine:     engine,
		state:      state,
		emitter:    emitter,
		client:     newTestAddress(0xC1),
		contractor: newTestAddress(0xF1),
	}
	state.fund(f.client, clientFunding)
	state.fund(f.contractor, contractorFunds)

	var err error
	f.clientAccount, err = engine.InitializeClient(f.client)
	require.NoError(t, err)
	f.contractorAccount, err = engine.InitializeContractor(f.contractor)
	require.NoError(t, err)
	f.contract, err = engine.InitializeContract(InitializeContractAccounts{
		Signer:        f.client,
		ClientAccount: f.clientAccount,
	}, "Build a website", "Landing page with contact form")
	require.NoError(t, err)
	f.proposal, err = engine.InitializeProposal(InitializeProposalAccounts{
		Signer:            f.contractor,
		ContractorAccount: f.contractorAccount,
		Contract:          f.contract,
	}, scenarioAmount)
	require.NoError(t, err)
	return f
}

func (f *marketFixture) choose(t *testing.T) [20]byte {
	t.Helper()
	vault, err := f.engine.ChooseProposal(f.chooseAccounts())
	require.NoError(t, err)
	return vault
}

func (f *marketFixture) chooseAccounts() ChooseProposalAccounts {
	return ChooseProposalAccounts{
		Signer:            f.client,
		ClientAccount:     f.clientAccount,
		Contract:          f.contract,
		Proposal:          f.proposal,
		ContractorAccount: f.contractorAccount,
	}
}

func (f *marketFixture) doneAccounts() MarkWorkDoneAccounts {
	return MarkWorkDoneAccounts{Signer: f.contractor, ContractorAccount: f.contractorAccount, Contract: f.contract}
}

func (f *marketFixture) claimAccounts() ClaimPaymentAccounts {
	return ClaimPaymentAccounts{
		Signer:            f.client,
		ClientAccount:     f.clientAccount,
		Contractor:        f.contractor,
		ContractorAccount: f.contractorAccount,
		Contract:          f.contract,
		Vault:             VaultAddress(f.contract),
	}
}

func requireUnchanged(t *testing.T, state *mockState, before map[[20]byte]*types.Account) {
	t.Helper()
	require.Equal(t, len(before), len(state.accounts))
	for addr, acc := range before {
		got, ok := state.accounts[addr]
		require.True(t, ok)
		require.Equal(t, 0, acc.Balance.Cmp(got.Balance), "balance of %x changed", addr)
		require.Equal(t, acc.Data, got.Data, "data of %x changed", addr)
	}
}

func TestInitializeClientCreatesRegistry(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	signer := newTestAddress(0x01)
	state.fund(signer, 5_000_000)

	addr, err := engine.InitializeClient(signer)
	require.NoError(t, err)
	require.Equal(t, ClientAddress(signer), addr)

	reg, err := engine.ClientRegistry(addr)
	require.NoError(t, err)
	require.Equal(t, signer, reg.Owner)
	require.Zero(t, reg.NextContractID)

	require.Equal(t, big.NewInt(5_000_000-rent(t, RegistrySpace)), state.balance(signer))
	require.Equal(t, big.NewInt(rent(t, RegistrySpace)), state.balance(addr))

	evt := emitter.last()
	require.NotNil(t, evt)
	require.Equal(t, EventTypeClientInitialized, evt.Type)
	require.Equal(t, FormatAddress(signer), evt.Attributes["owner"])
	require.Equal(t, "1700000000", evt.Attributes["timestamp"])
}

func TestInitializeClientTwiceFails(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	signer := newTestAddress(0x02)
	state.fund(signer, 5_000_000)

	_, err := engine.InitializeClient(signer)
	require.NoError(t, err)
	before := state.snapshot()
	_, err = engine.InitializeClient(signer)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	requireUnchanged(t, state, before)
}

func TestInitializeRegistryRequiresRent(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	signer := newTestAddress(0x03)
	state.fund(signer, rent(t, RegistrySpace)-1)

	_, err := engine.InitializeClient(signer)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Equal(t, KindFunding, KindOf(err))
	_, err = engine.InitializeContractor(signer)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Empty(t, emitter.events)
	require.Zero(t, state.puts)
}

func TestClientAndContractorRegistriesAreIndependent(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	signer := newTestAddress(0x04)
	state.fund(signer, 10_000_000)

	clientAddr, err := engine.InitializeClient(signer)
	require.NoError(t, err)
	contractorAddr, err := engine.InitializeContractor(signer)
	require.NoError(t, err)
	require.NotEqual(t, clientAddr, contractorAddr)

	_, err = engine.ContractorRegistry(clientAddr)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestInitializeContractAssignsSequentialIDs(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	signer := newTestAddress(0x05)
	state.fund(signer, 1_000_000_000)
	clientAccount, err := engine.InitializeClient(signer)
	require.NoError(t, err)

	for i := uint64(0); i < 3; i++ {
		addr, err := engine.InitializeContract(InitializeContractAccounts{Signer: signer, ClientAccount: clientAccount}, "title", "topic")
		require.NoError(t, err)
		require.Equal(t, ContractAddress(clientAccount, i), addr)
		contract, err := engine.Contract(addr)
		require.NoError(t, err)
		require.Equal(t, i, contract.ContractID)
		require.Equal(t, StatusOpened, contract.Status)
		require.Nil(t, contract.Contractor)
		require.Nil(t, contract.Amount)
		require.Equal(t, clientAccount, contract.Client)
	}
	reg, err := engine.ClientRegistry(clientAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(3), reg.NextContractID)
}

func TestInitializeContractValidationOrder(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x06)
	intruder := newTestAddress(0x07)
	state.fund(owner, 1_000_000_000)
	state.fund(intruder, 1_000_000_000)
	clientAccount, err := engine.InitializeClient(owner)
	require.NoError(t, err)

	longTitle := strings.Repeat("t", MaxTitleLength+1)
	longTopic := strings.Repeat("p", MaxTopicLength+1)

	before := state.snapshot()
	_, err = engine.InitializeContract(InitializeContractAccounts{Signer: intruder, ClientAccount: clientAccount}, longTitle, longTopic)
	require.ErrorIs(t, err, ErrUnauthorizedAccount)

	_, err = engine.InitializeContract(InitializeContractAccounts{Signer: owner, ClientAccount: clientAccount}, longTitle, longTopic)
	require.ErrorIs(t, err, ErrTitleTooLong)
	require.Equal(t, uint32(6000), CodeOf(err))

	_, err = engine.InitializeContract(InitializeContractAccounts{Signer: owner, ClientAccount: clientAccount}, "ok", longTopic)
	require.ErrorIs(t, err, ErrTopicTooLong)
	requireUnchanged(t, state, before)

	reg, err := engine.ClientRegistry(clientAccount)
	require.NoError(t, err)
	require.Zero(t, reg.NextContractID)
}

func TestInitializeContractAcceptsBoundaryLengths(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x08)
	state.fund(owner, 1_000_000_000)
	clientAccount, err := engine.InitializeClient(owner)
	require.NoError(t, err)

	// Multi-byte runes count by encoded length.
	title := strings.Repeat("é", MaxTitleLength/2)
	topic := strings.Repeat("x", MaxTopicLength)
	addr, err := engine.InitializeContract(InitializeContractAccounts{Signer: owner, ClientAccount: clientAccount}, title, topic)
	require.NoError(t, err)
	contract, err := engine.Contract(addr)
	require.NoError(t, err)
	require.Equal(t, title, contract.Title)
	require.Equal(t, topic, contract.Topic)

	_, err = engine.InitializeContract(InitializeContractAccounts{Signer: owner, ClientAccount: clientAccount}, title+"a", "")
	require.ErrorIs(t, err, ErrTitleTooLong)
}

func TestInitializeContractRequiresRegistry(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	signer := newTestAddress(0x09)
	state.fund(signer, 1_000_000_000)

	_, err := engine.InitializeContract(InitializeContractAccounts{Signer: signer, ClientAccount: ClientAddress(signer)}, "a", "b")
	require.ErrorIs(t, err, ErrAccountNotInitialized)
}

func TestInitializeProposal(t *testing.T) {
	f := newMarketFixture(t)
	proposal, err := f.engine.Proposal(f.proposal)
	require.NoError(t, err)
	require.Equal(t, ProposalAddress(f.contractorAccount, 0), f.proposal)
	require.Equal(t, f.contractorAccount, proposal.Contractor)
	require.Equal(t, f.contract, proposal.Contract)
	require.Equal(t, uint64(scenarioAmount), proposal.Amount)
	require.Zero(t, proposal.ProposalID)

	// A zero-amount proposal is accepted and takes the next id.
	second, err := f.engine.InitializeProposal(InitializeProposalAccounts{
		Signer:            f.contractor,
		ContractorAccount: f.contractorAccount,
		Contract:          f.contract,
	}, 0)
	require.NoError(t, err)
	require.Equal(t, ProposalAddress(f.contractorAccount, 1), second)

	reg, err := f.engine.ContractorRegistry(f.contractorAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(2), reg.NextProposalID)
}

func TestInitializeProposalUnauthorized(t *testing.T) {
	f := newMarketFixture(t)
	before := f.state.snapshot()
	_, err := f.engine.InitializeProposal(InitializeProposalAccounts{
		Signer:            f.client,
		ContractorAccount: f.contractorAccount,
		Contract:          f.contract,
	}, 5)
	require.ErrorIs(t, err, ErrUnauthorizedAccount)
	require.Equal(t, KindAuthorization, KindOf(err))
	requireUnchanged(t, f.state, before)
}

func TestInitializeProposalRequiresContract(t *testing.T) {
	f := newMarketFixture(t)
	_, err := f.engine.InitializeProposal(InitializeProposalAccounts{
		Signer:            f.contractor,
		ContractorAccount: f.contractorAccount,
		Contract:          f.clientAccount,
	}, 5)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestInitializeProposalOnClosedContract(t *testing.T) {
	f := newMarketFixture(t)
	f.choose(t)
	require.NoError(t, f.engine.MarkWorkDone(f.doneAccounts()))

	_, err := f.engine.InitializeProposal(InitializeProposalAccounts{
		Signer:            f.contractor,
		ContractorAccount: f.contractorAccount,
		Contract:          f.contract,
	}, 7)
	require.NoError(t, err)
}

func TestUpdateProposal(t *testing.T) {
	f := newMarketFixture(t)
	err := f.engine.UpdateProposal(UpdateProposalAccounts{
		Signer:            f.contractor,
		ContractorAccount: f.contractorAccount,
		Proposal:          f.proposal,
		Contract:          f.contract,
	}, 42)
	require.NoError(t, err)

	proposal, err := f.engine.Proposal(f.proposal)
	require.NoError(t, err)
	require.Equal(t, uint64(42), proposal.Amount)
	require.Equal(t, f.contract, proposal.Contract)
	require.Zero(t, proposal.ProposalID)

	evt := f.emitter.last()
	require.Equal(t, EventTypeProposalUpdated, evt.Type)
	require.Equal(t, "1000000000", evt.Attributes["oldAmount"])
	require.Equal(t, "42", evt.Attributes["newAmount"])
}

func TestUpdateProposalValidationOrder(t *testing.T) {
	f := newMarketFixture(t)
	other := newTestAddress(0xF2)
	f.state.fund(other, contractorFunds)
	otherAccount, err := f.engine.InitializeContractor(other)
	require.NoError(t, err)
	secondContract, err := f.engine.InitializeContract(InitializeContractAccounts{Signer: f.client, ClientAccount: f.clientAccount}, "second", "")
	require.NoError(t, err)

	before := f.state.snapshot()
	err = f.engine.UpdateProposal(UpdateProposalAccounts{
		Signer:            other,
		ContractorAccount: f.contractorAccount,
		Proposal:          f.proposal,
		Contract:          secondContract,
	}, 1)
	require.ErrorIs(t, err, ErrUnauthorizedAccount)

	// Signing with one's own registry does not grant access to another's proposal.
	err = f.engine.UpdateProposal(UpdateProposalAccounts{
		Signer:            other,
		ContractorAccount: otherAccount,
		Proposal:          f.proposal,
		Contract:          f.contract,
	}, 1)
	require.ErrorIs(t, err, ErrUnauthorizedAccount)

	err = f.engine.UpdateProposal(UpdateProposalAccounts{
		Signer:            f.contractor,
		ContractorAccount: f.contractorAccount,
		Proposal:          f.proposal,
		Contract:          secondContract,
	}, 1)
	require.ErrorIs(t, err, ErrInvalidProposalForContract)
	requireUnchanged(t, f.state, before)
}

func TestUpdateProposalAfterAcceptanceFails(t *testing.T) {
	f := newMarketFixture(t)
	f.choose(t)
	before := f.state.snapshot()
	err := f.engine.UpdateProposal(UpdateProposalAccounts{
		Signer:            f.contractor,
		ContractorAccount: f.contractorAccount,
		Proposal:          f.proposal,
		Contract:          f.contract,
	}, 1)
	require.ErrorIs(t, err, ErrProposalCannotBeUpdated)
	require.Equal(t, KindState, KindOf(err))
	requireUnchanged(t, f.state, before)
}

func TestChooseProposalLocksFunds(t *testing.T) {
	f := newMarketFixture(t)
	clientBefore := f.state.balance(f.client)
	vault := f.choose(t)
	require.Equal(t, VaultAddress(f.contract), vault)

	overhead := rent(t, VaultSpace)
	require.Equal(t, big.NewInt(scenarioAmount+overhead), f.state.balance(vault))
	expected := new(big.Int).Sub(clientBefore, big.NewInt(scenarioAmount+overhead))
	require.Equal(t, expected, f.state.balance(f.client))

	contract, err := f.engine.Contract(f.contract)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, contract.Status)
	require.NotNil(t, contract.Amount)
	require.Equal(t, uint64(scenarioAmount), *contract.Amount)
	require.NotNil(t, contract.Contractor)
	require.Equal(t, f.contractorAccount, *contract.Contractor)
	require.NotNil(t, contract.AcceptedProposalID)
	require.Zero(t, *contract.AcceptedProposalID)

	record, balance, err := f.engine.Vault(vault)
	require.NoError(t, err)
	require.Equal(t, f.contract, record.Contract)
	require.Equal(t, big.NewInt(scenarioAmount+overhead), balance)

	evt := f.emitter.last()
	require.Equal(t, EventTypeProposalChosen, evt.Type)
	require.Equal(t, FormatAddress(vault), evt.Attributes["vault"])
}

func TestChooseProposalValidationOrder(t *testing.T) {
	f := newMarketFixture(t)
	intruder := newTestAddress(0x99)
	f.state.fund(intruder, clientFunding)
	intruderAccount, err := f.engine.InitializeClient(intruder)
	require.NoError(t, err)
	otherContract, err := f.engine.InitializeContract(InitializeContractAccounts{Signer: f.client, ClientAccount: f.clientAccount}, "other", "")
	require.NoError(t, err)
	otherContractor := newTestAddress(0xF3)
	f.state.fund(otherContractor, contractorFunds)
	otherContractorAccount, err := f.engine.InitializeContractor(otherContractor)
	require.NoError(t, err)

	before := f.state.snapshot()

	acc := f.chooseAccounts()
	acc.Signer = intruder
	_, err = f.engine.ChooseProposal(acc)
	require.ErrorIs(t, err, ErrUnauthorizedAccount)

	acc = f.chooseAccounts()
	acc.Signer = intruder
	acc.ClientAccount = intruderAccount
	_, err = f.engine.ChooseProposal(acc)
	require.ErrorIs(t, err, ErrUnauthorizedAccount)

	acc = f.chooseAccounts()
	acc.Contract = otherContract
	acc.ContractorAccount = otherContractorAccount
	_, err = f.engine.ChooseProposal(acc)
	require.ErrorIs(t, err, ErrInvalidProposalForContract)

	acc = f.chooseAccounts()
	acc.ContractorAccount = otherContractorAccount
	_, err = f.engine.ChooseProposal(acc)
	require.ErrorIs(t, err, ErrInvalidContractorForProposal)
	require.Equal(t, KindReferential, KindOf(err))

	requireUnchanged(t, f.state, before)
}

func TestChooseProposalTwiceFails(t *testing.T) {
	f := newMarketFixture(t)
	f.choose(t)
	before := f.state.snapshot()
	_, err := f.engine.ChooseProposal(f.chooseAccounts())
	require.ErrorIs(t, err, ErrContractNotOpened)
	requireUnchanged(t, f.state, before)
}

func TestChooseProposalInsufficientFunds(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	client := newTestAddress(0xC2)
	contractor := newTestAddress(0xF4)
	setup := rent(t, RegistrySpace) + rent(t, ContractSpace)
	state.fund(client, setup+scenarioAmount)
	state.fund(contractor, contractorFunds)

	clientAccount, err := engine.InitializeClient(client)
	require.NoError(t, err)
	contractorAccount, err := engine.InitializeContractor(contractor)
	require.NoError(t, err)
	contract, err := engine.InitializeContract(InitializeContractAccounts{Signer: client, ClientAccount: clientAccount}, "t", "")
	require.NoError(t, err)
	proposal, err := engine.InitializeProposal(InitializeProposalAccounts{
		Signer: contractor, ContractorAccount: contractorAccount, Contract: contract,
	}, scenarioAmount)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(scenarioAmount), state.balance(client))

	emitted := len(emitter.events)
	before := state.snapshot()
	_, err = engine.ChooseProposal(ChooseProposalAccounts{
		Signer:            client,
		ClientAccount:     clientAccount,
		Contract:          contract,
		Proposal:          proposal,
		ContractorAccount: contractorAccount,
	})
	require.ErrorIs(t, err, ErrInsufficientClientFunds)
	requireUnchanged(t, state, before)
	require.Len(t, emitter.events, emitted)

	c, err := engine.Contract(contract)
	require.NoError(t, err)
	require.Equal(t, StatusOpened, c.Status)
	require.Nil(t, c.Amount)
}

func TestMarkWorkDone(t *testing.T) {
	f := newMarketFixture(t)

	err := f.engine.MarkWorkDone(f.doneAccounts())
	require.ErrorIs(t, err, ErrContractNotAccepted)

	f.choose(t)
	require.NoError(t, f.engine.MarkWorkDone(f.doneAccounts()))
	contract, err := f.engine.Contract(f.contract)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, contract.Status)
	require.Equal(t, EventTypeWorkDone, f.emitter.last().Type)

	before := f.state.snapshot()
	err = f.engine.MarkWorkDone(f.doneAccounts())
	require.ErrorIs(t, err, ErrContractNotAccepted)
	requireUnchanged(t, f.state, before)
}

func TestMarkWorkDoneRejectsOtherContractor(t *testing.T) {
	f := newMarketFixture(t)
	other := newTestAddress(0xF5)
	f.state.fund(other, contractorFunds)
	otherAccount, err := f.engine.InitializeContractor(other)
	require.NoError(t, err)
	f.choose(t)

	err = f.engine.MarkWorkDone(MarkWorkDoneAccounts{Signer: other, ContractorAccount: f.contractorAccount, Contract: f.contract})
	require.ErrorIs(t, err, ErrUnauthorizedAccount)

	err = f.engine.MarkWorkDone(MarkWorkDoneAccounts{Signer: other, ContractorAccount: otherAccount, Contract: f.contract})
	require.ErrorIs(t, err, ErrUnauthorizedAccount)

	contract, err := f.engine.Contract(f.contract)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, contract.Status)
}

func TestClaimPaymentBeforeClose(t *testing.T) {
	f := newMarketFixture(t)
	err := f.engine.ClaimPayment(f.claimAccounts())
	require.ErrorIs(t, err, ErrContractNotClosed)

	f.choose(t)
	before := f.state.snapshot()
	err = f.engine.ClaimPayment(f.claimAccounts())
	require.ErrorIs(t, err, ErrContractNotClosed)
	requireUnchanged(t, f.state, before)
}

func TestClaimPaymentValidationOrder(t *testing.T) {
	f := newMarketFixture(t)
	other := newTestAddress(0xF6)
	f.state.fund(other, contractorFunds)
	otherAccount, err := f.engine.InitializeContractor(other)
	require.NoError(t, err)
	f.choose(t)
	require.NoError(t, f.engine.MarkWorkDone(f.doneAccounts()))
	before := f.state.snapshot()

	acc := f.claimAccounts()
	acc.Signer = f.contractor
	require.ErrorIs(t, f.engine.ClaimPayment(acc), ErrUnauthorizedAccount)

	// The payee must own the named contractor registry.
	acc = f.claimAccounts()
	acc.Contractor = other
	require.ErrorIs(t, f.engine.ClaimPayment(acc), ErrUnauthorizedAccount)

	acc = f.claimAccounts()
	acc.Contractor = other
	acc.ContractorAccount = otherAccount
	require.ErrorIs(t, f.engine.ClaimPayment(acc), ErrInvalidContractorForContract)

	acc = f.claimAccounts()
	acc.Vault = VaultAddress(f.proposal)
	require.ErrorIs(t, f.engine.ClaimPayment(acc), ErrInvalidVault)

	requireUnchanged(t, f.state, before)
}

func TestFullScenario(t *testing.T) {
	f := newMarketFixture(t)
	clientStart := f.state.balance(f.client)
	contractorStart := f.state.balance(f.contractor)

	vault := f.choose(t)
	require.NoError(t, f.engine.MarkWorkDone(f.doneAccounts()))
	require.NoError(t, f.engine.ClaimPayment(f.claimAccounts()))

	require.Equal(t, new(big.Int).Add(contractorStart, big.NewInt(scenarioAmount)), f.state.balance(f.contractor))
	require.Equal(t, new(big.Int).Sub(clientStart, big.NewInt(scenarioAmount)), f.state.balance(f.client))
	require.Zero(t, f.state.balance(vault).Sign())

	contract, err := f.engine.Contract(f.contract)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, contract.Status)
	require.Nil(t, contract.Amount)
	require.NotNil(t, contract.Contractor)

	evt := f.emitter.last()
	require.Equal(t, EventTypePaymentClaimed, evt.Type)
	require.Equal(t, "1000000000", evt.Attributes["amount"])
	require.Equal(t, big.NewInt(rent(t, VaultSpace)).String(), evt.Attributes["refund"])

	before := f.state.snapshot()
	err = f.engine.ClaimPayment(f.claimAccounts())
	require.ErrorIs(t, err, ErrContractNotClosed)
	requireUnchanged(t, f.state, before)
}

func TestClaimPaymentWhenClientIsContractor(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	self := newTestAddress(0x55)
	state.fund(self, clientFunding)

	clientAccount, err := engine.InitializeClient(self)
	require.NoError(t, err)
	contractorAccount, err := engine.InitializeContractor(self)
	require.NoError(t, err)
	contract, err := engine.InitializeContract(InitializeContractAccounts{Signer: self, ClientAccount: clientAccount}, "self", "")
	require.NoError(t, err)
	proposal, err := engine.InitializeProposal(InitializeProposalAccounts{Signer: self, ContractorAccount: contractorAccount, Contract: contract}, 500)
	require.NoError(t, err)
	start := state.balance(self)

	_, err = engine.ChooseProposal(ChooseProposalAccounts{
		Signer: self, ClientAccount: clientAccount, Contract: contract, Proposal: proposal, ContractorAccount: contractorAccount,
	})
	require.NoError(t, err)
	require.NoError(t, engine.MarkWorkDone(MarkWorkDoneAccounts{Signer: self, ContractorAccount: contractorAccount, Contract: contract}))
	require.NoError(t, engine.ClaimPayment(ClaimPaymentAccounts{
		Signer: self, ClientAccount: clientAccount, Contractor: self, ContractorAccount: contractorAccount,
		Contract: contract, Vault: VaultAddress(contract),
	}))
	require.Equal(t, start, state.balance(self))
}

func TestFailedOperationsEmitNothing(t *testing.T) {
	f := newMarketFixture(t)
	emitted := len(f.emitter.events)
	_, err := f.engine.InitializeContract(InitializeContractAccounts{Signer: f.contractor, ClientAccount: f.clientAccount}, "x", "y")
	require.Error(t, err)
	require.Error(t, f.engine.MarkWorkDone(f.doneAccounts()))
	require.Error(t, f.engine.ClaimPayment(f.claimAccounts()))
	require.Len(t, f.emitter.events, emitted)
}

func TestEngineWithoutState(t *testing.T) {
	engine := NewEngine()
	_, err := engine.InitializeClient(newTestAddress(0x01))
	require.True(t, errors.Is(err, errNilState))
}
