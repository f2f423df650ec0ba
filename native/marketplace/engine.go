package marketplace

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"lancechain/core/events"
	"lancechain/core/types"
)

var errNilState = errors.New("marketplace engine: state not configured")

type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine executes the marketplace operations against account state. Every
// handler validates all of its inputs before the first write, so a failed
// call leaves state untouched.
type Engine struct {
	state   engineState
	emitter events.Emitter
	rent    RentParams
	nowFn   func() int64
}

// NewEngine creates an engine with default rent parameters and a no-op
// emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		rent:    DefaultRentParams(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRentParams overrides the storage pricing.
func (e *Engine) SetRentParams(params RentParams) { e.rent = params }

// RentParams returns the storage pricing in effect.
func (e *Engine) RentParams() RentParams { return e.rent }

// SetNowFunc overrides the clock used for event timestamps. Passing nil
// restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(events.Payload{Evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// getAccount returns a private copy of the account at addr.
func (e *Engine) getAccount(addr Address) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return ensureAccount(acc.Clone()), nil
}

func (e *Engine) putAccount(addr Address, acc *types.Account) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.PutAccount(addr[:], acc)
}

// batch stages account mutations for a single handler. Accounts are loaded
// once and shared, so an address that plays two roles in one operation is
// debited and credited on the same copy. Nothing reaches state until flush.
type batch struct {
	engine   *Engine
	accounts map[Address]*types.Account
	touched  []Address
}

func (e *Engine) newBatch() *batch {
	return &batch{engine: e, accounts: make(map[Address]*types.Account)}
}

func (b *batch) get(addr Address) (*types.Account, error) {
	if acc, ok := b.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := b.engine.getAccount(addr)
	if err != nil {
		return nil, err
	}
	b.accounts[addr] = acc
	return acc, nil
}

// mark records addr as modified. The account must have been loaded via get.
func (b *batch) mark(addr Address) {
	for _, seen := range b.touched {
		if seen == addr {
			return
		}
	}
	b.touched = append(b.touched, addr)
}

func (b *batch) flush() error {
	for _, addr := range b.touched {
		if err := b.engine.putAccount(addr, b.accounts[addr]); err != nil {
			return err
		}
	}
	return nil
}

// createRecord stages the payer debit and the funded record account for a
// new record of the given space.
func (b *batch) createRecord(payer, addr Address, data []byte, space uint64) error {
	target, err := b.get(addr)
	if err != nil {
		return err
	}
	if len(target.Data) > 0 {
		return wrap(ErrAlreadyInitialized, "%s", FormatAddress(addr))
	}
	payerAcc, err := b.get(payer)
	if err != nil {
		return err
	}
	cost, err := b.engine.rent.MinimumBalance(space)
	if err != nil {
		return err
	}
	if payerAcc.Balance.Cmp(cost) < 0 {
		return wrap(ErrInsufficientFunds, "need %s, have %s", cost, payerAcc.Balance)
	}
	payerAcc.Balance = new(big.Int).Sub(payerAcc.Balance, cost)
	target.Balance = new(big.Int).Add(target.Balance, cost)
	target.Data = data
	b.mark(payer)
	b.mark(addr)
	return nil
}

// loadRecord returns the account at addr, failing with
// ErrAccountNotInitialized when no record is stored there.
func (b *batch) loadRecord(addr Address, kind RecordKind) (*types.Account, error) {
	acc, err := b.get(addr)
	if err != nil {
		return nil, err
	}
	if len(acc.Data) == 0 {
		return nil, wrap(ErrAccountNotInitialized, "%s %s", kind, FormatAddress(addr))
	}
	return acc, nil
}

func (b *batch) clientRegistry(addr Address) (*ClientRegistry, error) {
	acc, err := b.loadRecord(addr, RecordClientRegistry)
	if err != nil {
		return nil, err
	}
	return DecodeClientRegistry(acc.Data)
}

func (b *batch) contractorRegistry(addr Address) (*ContractorRegistry, error) {
	acc, err := b.loadRecord(addr, RecordContractorRegistry)
	if err != nil {
		return nil, err
	}
	return DecodeContractorRegistry(acc.Data)
}

func (b *batch) contract(addr Address) (*Contract, error) {
	acc, err := b.loadRecord(addr, RecordContract)
	if err != nil {
		return nil, err
	}
	return DecodeContract(acc.Data)
}

func (b *batch) proposal(addr Address) (*Proposal, error) {
	acc, err := b.loadRecord(addr, RecordProposal)
	if err != nil {
		return nil, err
	}
	return DecodeProposal(acc.Data)
}

func (b *batch) vault(addr Address) (*Vault, *big.Int, error) {
	acc, err := b.loadRecord(addr, RecordVault)
	if err != nil {
		return nil, nil, err
	}
	v, err := DecodeVault(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return v, new(big.Int).Set(acc.Balance), nil
}

// setData stages a re-encoded record at an already loaded address.
func (b *batch) setData(addr Address, data []byte) {
	b.accounts[addr].Data = data
	b.mark(addr)
}

// ClientRegistry returns the client registry stored at addr.
func (e *Engine) ClientRegistry(addr Address) (*ClientRegistry, error) {
	return e.newBatch().clientRegistry(addr)
}

// ContractorRegistry returns the contractor registry stored at addr.
func (e *Engine) ContractorRegistry(addr Address) (*ContractorRegistry, error) {
	return e.newBatch().contractorRegistry(addr)
}

// Contract returns the contract stored at addr.
func (e *Engine) Contract(addr Address) (*Contract, error) {
	return e.newBatch().contract(addr)
}

// Proposal returns the proposal stored at addr.
func (e *Engine) Proposal(addr Address) (*Proposal, error) {
	return e.newBatch().proposal(addr)
}

// Vault returns the vault record at addr together with its balance.
func (e *Engine) Vault(addr Address) (*Vault, *big.Int, error) {
	return e.newBatch().vault(addr)
}

func checkedIncrement(v uint64) (uint64, error) {
	if v == ^uint64(0) {
		return 0, fmt.Errorf("%w: counter exhausted", ErrArithmeticOverflow)
	}
	return v + 1, nil
}
