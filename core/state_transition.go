package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	coreerrors "lancechain/core/errors"
	"lancechain/core/events"
	"lancechain/core/types"
	"lancechain/native/marketplace"
	"lancechain/storage/trie"
)

var accountKeyPrefix = []byte("acct:")

func accountStateKey(addr []byte) []byte {
	key := make([]byte, 0, len(accountKeyPrefix)+len(addr))
	key = append(key, accountKeyPrefix...)
	return append(key, addr...)
}

// StateProcessor applies signed transactions to the account trie. Each
// transaction is all-or-nothing: on failure the trie and the pending event
// list are restored to their state before the call.
type StateProcessor struct {
	Trie          *trie.Trie
	Market        *marketplace.Engine
	chainID       uint64
	committedRoot common.Hash
	events        []types.Event
}

func NewStateProcessor(tr *trie.Trie, chainID uint64) *StateProcessor {
	sp := &StateProcessor{
		Trie:          tr,
		Market:        marketplace.NewEngine(),
		chainID:       chainID,
		committedRoot: tr.Root(),
	}
	sp.Market.SetState(sp)
	sp.Market.SetEmitter(stateProcessorEmitter{sp: sp})
	return sp
}

// ChainID returns the chain id transactions must carry.
func (sp *StateProcessor) ChainID() uint64 { return sp.chainID }

// SetNowFunc overrides the clock used for event timestamps.
func (sp *StateProcessor) SetNowFunc(now func() int64) { sp.Market.SetNowFunc(now) }

// CurrentRoot returns the last committed state root.
func (sp *StateProcessor) CurrentRoot() common.Hash {
	return sp.committedRoot
}

// PendingRoot returns the root of the trie including in-memory mutations.
func (sp *StateProcessor) PendingRoot() common.Hash {
	return sp.Trie.Hash()
}

// ResetToRoot discards any in-memory changes and reloads the trie at the
// provided root hash.
func (sp *StateProcessor) ResetToRoot(root common.Hash) error {
	if err := sp.Trie.Reset(root); err != nil {
		return err
	}
	sp.committedRoot = root
	sp.events = nil
	return nil
}

// Commit persists the current trie contents and returns the resulting state
// root.
func (sp *StateProcessor) Commit(blockNumber uint64) (common.Hash, error) {
	newRoot, err := sp.Trie.Commit(sp.committedRoot, blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	sp.committedRoot = newRoot
	return newRoot, nil
}

// ApplyTransaction verifies tx and executes it. The work happens on a copy of
// the trie which replaces the live trie only when every step succeeded.
func (sp *StateProcessor) ApplyTransaction(tx *types.Transaction) error {
	live := sp.Trie
	mark := len(sp.events)
	sp.Trie = live.Copy()
	if err := sp.applyTransaction(tx); err != nil {
		sp.Trie = live
		sp.events = sp.events[:mark]
		return err
	}
	return nil
}

func (sp *StateProcessor) applyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", coreerrors.ErrInvalidPayload)
	}
	if tx.ChainID != sp.chainID {
		return fmt.Errorf("%w: got %d, want %d", coreerrors.ErrInvalidChainID, tx.ChainID, sp.chainID)
	}
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: 0x%02x", coreerrors.ErrUnknownTxType, byte(tx.Type))
	}
	from, err := tx.From()
	if err != nil {
		return fmt.Errorf("%w: %v", coreerrors.ErrInvalidSignature, err)
	}
	sender, err := sp.getAccount(from)
	if err != nil {
		return err
	}
	if sender.Nonce != tx.Nonce {
		return fmt.Errorf("%w: got %d, want %d", coreerrors.ErrNonceMismatch, tx.Nonce, sender.Nonce)
	}

	var signer [20]byte
	copy(signer[:], from)
	if err := sp.dispatch(tx, signer); err != nil {
		return err
	}

	// Reload: the handler may have changed the sender's balance.
	sender, err = sp.getAccount(from)
	if err != nil {
		return err
	}
	sender.Nonce++
	return sp.setAccount(from, sender)
}

func (sp *StateProcessor) dispatch(tx *types.Transaction, signer [20]byte) error {
	switch tx.Type {
	case types.TxTypeTransfer:
		var p types.TransferPayload
		if err := decodePayload(tx, &p); err != nil {
			return err
		}
		return sp.applyTransfer(tx, signer, p)
	case types.TxTypeInitializeClient:
		_, err := sp.Market.InitializeClient(signer)
		return err
	case types.TxTypeInitializeContractor:
		_, err := sp.Market.InitializeContractor(signer)
		return err
	case types.TxTypeInitializeContract:
		var p types.InitializeContractPayload
		if err := decodePayload(tx, &p); err != nil {
			return err
		}
		_, err := sp.Market.InitializeContract(marketplace.InitializeContractAccounts{
			Signer:        signer,
			ClientAccount: p.ClientAccount,
		}, p.Title, p.Topic)
		return err
	case types.TxTypeInitializeProposal:
		var p types.InitializeProposalPayload
		if err := decodePayload(tx, &p); err != nil {
			return err
		}
		_, err := sp.Market.InitializeProposal(marketplace.InitializeProposalAccounts{
			Signer:            signer,
			ContractorAccount: p.ContractorAccount,
			Contract:          p.Contract,
		}, p.Amount)
		return err
	case types.TxTypeUpdateProposal:
		var p types.UpdateProposalPayload
		if err := decodePayload(tx, &p); err != nil {
			return err
		}
		return sp.Market.UpdateProposal(marketplace.UpdateProposalAccounts{
			Signer:            signer,
			ContractorAccount: p.ContractorAccount,
			Proposal:          p.Proposal,
			Contract:          p.Contract,
		}, p.Amount)
	case types.TxTypeChooseProposal:
		var p types.ChooseProposalPayload
		if err := decodePayload(tx, &p); err != nil {
			return err
		}
		_, err := sp.Market.ChooseProposal(marketplace.ChooseProposalAccounts{
			Signer:            signer,
			ClientAccount:     p.ClientAccount,
			Contract:          p.Contract,
			Proposal:          p.Proposal,
			ContractorAccount: p.ContractorAccount,
		})
		return err
	case types.TxTypeMarkWorkDone:
		var p types.MarkWorkDonePayload
		if err := decodePayload(tx, &p); err != nil {
			return err
		}
		return sp.Market.MarkWorkDone(marketplace.MarkWorkDoneAccounts{
			Signer:            signer,
			ContractorAccount: p.ContractorAccount,
			Contract:          p.Contract,
		})
	case types.TxTypeClaimPayment:
		var p types.ClaimPaymentPayload
		if err := decodePayload(tx, &p); err != nil {
			return err
		}
		return sp.Market.ClaimPayment(marketplace.ClaimPaymentAccounts{
			Signer:            signer,
			ClientAccount:     p.ClientAccount,
			Contractor:        p.Contractor,
			ContractorAccount: p.ContractorAccount,
			Contract:          p.Contract,
			Vault:             p.Vault,
		})
	}
	return fmt.Errorf("%w: %s", coreerrors.ErrUnknownTxType, tx.Type)
}

func decodePayload(tx *types.Transaction, out interface{}) error {
	if err := tx.DecodePayload(out); err != nil {
		return fmt.Errorf("%w: %v", coreerrors.ErrInvalidPayload, err)
	}
	return nil
}

// applyTransfer moves native units between identities. Record accounts are
// not valid destinations so custody balances only change through the
// marketplace handlers.
func (sp *StateProcessor) applyTransfer(tx *types.Transaction, from [20]byte, p types.TransferPayload) error {
	if p.Amount == 0 {
		return coreerrors.ErrZeroTransfer
	}
	fromAcc, err := sp.getAccount(from[:])
	if err != nil {
		return err
	}
	amount := new(big.Int).SetUint64(p.Amount)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", coreerrors.ErrInsufficientBalance, fromAcc.Balance, amount)
	}
	if from == p.To {
		return nil
	}
	toAcc, err := sp.getAccount(p.To[:])
	if err != nil {
		return err
	}
	if len(toAcc.Data) > 0 {
		return fmt.Errorf("%w: destination %x holds a record", coreerrors.ErrInvalidPayload, p.To)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := sp.setAccount(from[:], fromAcc); err != nil {
		return err
	}
	if err := sp.setAccount(p.To[:], toAcc); err != nil {
		return err
	}
	evt := events.Transfer{From: from, To: p.To, Amount: p.Amount}
	if hash, err := tx.Hash(); err == nil {
		copy(evt.TxHash[:], hash)
	}
	sp.AppendEvent(evt.Event())
	return nil
}

func (sp *StateProcessor) getAccount(addr []byte) (*types.Account, error) {
	raw, err := sp.Trie.Get(accountStateKey(addr))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return types.NewAccount(), nil
	}
	acc := new(types.Account)
	if err := rlp.DecodeBytes(raw, acc); err != nil {
		return nil, fmt.Errorf("decode account %x: %w", addr, err)
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

func (sp *StateProcessor) setAccount(addr []byte, account *types.Account) error {
	if account == nil {
		account = types.NewAccount()
	}
	key := accountStateKey(addr)
	if account.Nonce == 0 && !account.Exists() {
		return sp.Trie.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return sp.Trie.Update(key, encoded)
}

// GetAccount returns the account at addr, or an empty account when none is
// stored.
func (sp *StateProcessor) GetAccount(addr []byte) (*types.Account, error) { return sp.getAccount(addr) }

// PutAccount stores account at addr.
func (sp *StateProcessor) PutAccount(addr []byte, account *types.Account) error {
	return sp.setAccount(addr, account)
}

// Credit adds amount to the balance at addr. Used for genesis allocations.
func (sp *StateProcessor) Credit(addr []byte, amount *big.Int) error {
	acc, err := sp.getAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return sp.setAccount(addr, acc)
}

type stateProcessorEmitter struct {
	sp *StateProcessor
}

func (e stateProcessorEmitter) Emit(evt events.Event) {
	if e.sp == nil || evt == nil {
		return
	}
	e.sp.AppendEvent(events.Unwrap(evt))
}

func (sp *StateProcessor) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	sp.events = append(sp.events, evt.Clone())
}

// Events returns a copy of the events emitted since the last DrainEvents.
func (sp *StateProcessor) Events() []types.Event {
	out := make([]types.Event, len(sp.events))
	for i := range sp.events {
		out[i] = sp.events[i].Clone()
	}
	return out
}

// DrainEvents returns and clears the pending events.
func (sp *StateProcessor) DrainEvents() []types.Event {
	out := sp.events
	sp.events = nil
	return out
}
