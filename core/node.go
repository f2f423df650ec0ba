package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "lancechain/core/errors"
	"lancechain/core/events"
	"lancechain/core/genesis"
	"lancechain/core/receipts"
	"lancechain/core/types"
	"lancechain/crypto"
	"lancechain/native/marketplace"
	"lancechain/observability"
	"lancechain/observability/metrics"
	"lancechain/storage"
	"lancechain/storage/trie"
)

// CommitHook observes every accepted transaction after it has been sealed.
// Hook errors are logged and never roll back the transaction.
type CommitHook func(ctx context.Context, receipt *types.Receipt) error

// NodeConfig wires the optional collaborators of a Node.
type NodeConfig struct {
	ChainID  uint64
	Rent     marketplace.RentParams
	Genesis  *genesis.Spec
	Receipts *receipts.Store
	Logger   *slog.Logger
	// Clock supplies block timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// Node is the central controller, wiring all components together. It applies
// one transaction at a time and seals a header for every accepted one.
type Node struct {
	state    *StateProcessor
	chain    *Blockchain
	receipts *receipts.Store
	events   *events.Broadcaster
	hooks    []CommitHook
	tracer   trace.Tracer
	clock    func() time.Time
	logger   *slog.Logger
	stateMu  sync.Mutex

	// Post-commit delivery runs strictly in height order. delivered is the
	// height whose events and hooks have completed.
	deliverMu   sync.Mutex
	deliverCond *sync.Cond
	delivered   uint64
}

// NewNode opens the ledger stored in db. A fresh database is initialised from
// cfg.Genesis at height zero; an existing one resumes from its head.
func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("chain id must be positive")
	}
	if cfg.Genesis != nil && cfg.Genesis.ChainID != 0 && cfg.Genesis.ChainID != cfg.ChainID {
		return nil, fmt.Errorf("genesis chain id %d does not match configured %d", cfg.Genesis.ChainID, cfg.ChainID)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	chain, err := NewBlockchain(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if head := chain.Head(); head != nil {
		root = head.StateRoot
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, err
	}
	state := NewStateProcessor(stateTrie, cfg.ChainID)
	if cfg.Rent != (marketplace.RentParams{}) {
		state.Market.SetRentParams(cfg.Rent)
	}

	n := &Node{
		state:    state,
		chain:    chain,
		receipts: cfg.Receipts,
		events:   events.NewBroadcaster(),
		tracer:   otel.Tracer("lancechain/core"),
		clock:    clock,
		logger:   logger.With(slog.String("component", "node")),
	}
	if chain.Head() == nil {
		if err := n.applyGenesis(cfg.Genesis); err != nil {
			return nil, err
		}
	}
	n.deliverCond = sync.NewCond(&n.deliverMu)
	n.delivered = chain.GetHeight()
	metrics.Market().SetHeight(chain.GetHeight())
	return n, nil
}

func (n *Node) applyGenesis(spec *genesis.Spec) error {
	ts := n.clock().UTC()
	if spec != nil {
		if err := spec.Validate(); err != nil {
			return err
		}
		genesisTime, err := spec.Timestamp()
		if err != nil {
			return err
		}
		if !genesisTime.IsZero() {
			ts = genesisTime
		}
		allocs, err := spec.Allocations()
		if err != nil {
			return err
		}
		for _, alloc := range allocs {
			if alloc.Balance.Sign() == 0 {
				continue
			}
			if err := n.state.Credit(alloc.Address[:], alloc.Balance); err != nil {
				return fmt.Errorf("credit %s: %w", crypto.FromArray(alloc.Address), err)
			}
		}
	}
	root, err := n.state.Commit(0)
	if err != nil {
		return err
	}
	header := &types.BlockHeader{
		Height:    0,
		Timestamp: unixSeconds(ts),
		PrevHash:  []byte{},
		StateRoot: root.Bytes(),
	}
	if err := n.chain.InitGenesis(header); err != nil {
		return err
	}
	n.logger.Info("genesis initialised", slog.String("stateRoot", root.Hex()))
	return nil
}

// AddCommitHook registers hook to run after every accepted transaction.
func (n *Node) AddCommitHook(hook CommitHook) {
	if hook == nil {
		return
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.hooks = append(n.hooks, hook)
}

// SubmitTransaction verifies and applies tx. An accepted transaction is
// committed, sealed under a new header and receipted; a rejected one leaves
// the ledger untouched and its error is returned.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", coreerrors.ErrInvalidPayload)
	}
	ctx, span := n.tracer.Start(ctx, "node.SubmitTransaction", trace.WithAttributes(
		attribute.String("tx.type", tx.Type.String()),
		attribute.Int64("tx.nonce", int64(tx.Nonce)),
	))
	defer span.End()

	receipt, evts, err := n.apply(tx)
	if err != nil {
		metrics.Market().ObserveTransaction(tx.Type.String(), "rejected")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Debug("transaction rejected",
			slog.String("tx_type", tx.Type.String()),
			slog.String("error", err.Error()))
		return nil, err
	}
	metrics.Market().ObserveTransaction(tx.Type.String(), "accepted")
	span.SetAttributes(attribute.Int64("block.height", int64(receipt.Height)))

	n.deliver(ctx, receipt, evts)
	return receipt, nil
}

// deliver publishes events and runs commit hooks once every lower height has
// been delivered. It never holds stateMu, so hooks may query the node.
func (n *Node) deliver(ctx context.Context, receipt *types.Receipt, evts []types.Event) {
	n.deliverMu.Lock()
	for n.delivered+1 < receipt.Height {
		n.deliverCond.Wait()
	}
	n.deliverMu.Unlock()

	n.events.Publish(evts)
	observability.Events().Record(evts)
	n.runHooks(ctx, receipt)

	n.deliverMu.Lock()
	n.delivered = receipt.Height
	n.deliverCond.Broadcast()
	n.deliverMu.Unlock()
}

func (n *Node) apply(tx *types.Transaction) (*types.Receipt, []types.Event, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	head := n.chain.Head()
	now := unixSeconds(n.clock())
	if now < head.Timestamp {
		now = head.Timestamp
	}
	blockTime := int64(now)
	n.state.SetNowFunc(func() int64 { return blockTime })

	txHash, err := tx.Hash()
	if err != nil {
		return nil, nil, err
	}
	parent, err := head.Hash()
	if err != nil {
		return nil, nil, err
	}
	if err := n.state.ApplyTransaction(tx); err != nil {
		return nil, nil, err
	}
	evts := n.state.DrainEvents()

	height := head.Height + 1
	prevRoot := n.state.CurrentRoot()
	root, err := n.state.Commit(height)
	if err != nil {
		n.rollback(prevRoot)
		return nil, nil, fmt.Errorf("commit state: %w", err)
	}
	header := &types.BlockHeader{
		Height:    height,
		Timestamp: now,
		PrevHash:  parent,
		StateRoot: root.Bytes(),
		TxHash:    txHash,
	}
	if err := n.chain.AddHeader(header); err != nil {
		n.rollback(prevRoot)
		return nil, nil, fmt.Errorf("seal header: %w", err)
	}

	from, _ := tx.From()
	var signer [20]byte
	copy(signer[:], from)
	receipt := &types.Receipt{
		TxHash: hexutil.Encode(txHash),
		Type:   tx.Type.String(),
		Signer: crypto.FromArray(signer).String(),
		Nonce:  tx.Nonce,
		Height: height,
		Root:   root.Hex(),
		Events: evts,
	}
	if n.receipts != nil {
		if err := n.receipts.Put(receipt); err != nil {
			n.logger.Error("persist receipt failed",
				slog.String("tx_hash", receipt.TxHash),
				slog.String("error", err.Error()))
		}
	}

	m := metrics.Market()
	m.SetHeight(height)
	if tx.Type == types.TxTypeChooseProposal || tx.Type == types.TxTypeClaimPayment {
		if locked, err := n.state.LockedInVaults(); err == nil {
			m.SetLocked(locked)
		}
	}
	n.logger.Info("transaction applied",
		slog.String("tx_hash", receipt.TxHash),
		slog.String("tx_type", receipt.Type),
		slog.String("signer", receipt.Signer),
		slog.Uint64("height", height))
	return receipt, evts, nil
}

// unixSeconds clamps pre-epoch times to zero; header timestamps are unsigned.
func unixSeconds(t time.Time) uint64 {
	if s := t.Unix(); s > 0 {
		return uint64(s)
	}
	return 0
}

// rollback restores the trie to root after a failure past ApplyTransaction.
func (n *Node) rollback(root common.Hash) {
	if err := n.state.ResetToRoot(root); err != nil {
		n.logger.Error("rollback failed", slog.String("stateRoot", root.Hex()), slog.String("error", err.Error()))
	}
}

func (n *Node) runHooks(ctx context.Context, receipt *types.Receipt) {
	n.stateMu.Lock()
	hooks := append([]CommitHook(nil), n.hooks...)
	n.stateMu.Unlock()
	for _, hook := range hooks {
		if err := hook(ctx, receipt); err != nil {
			n.logger.Warn("commit hook failed",
				slog.String("tx_hash", receipt.TxHash),
				slog.String("error", err.Error()))
		}
	}
}

// Subscribe streams committed events. The cancel function releases the
// subscription and closes the channel.
func (n *Node) Subscribe(buffer int) (<-chan types.Event, func()) {
	return n.events.Subscribe(buffer)
}

func (n *Node) ChainID() uint64 { return n.state.ChainID() }

// RentParams returns the storage cost parameters in force.
func (n *Node) RentParams() marketplace.RentParams {
	return n.state.Market.RentParams()
}

// Head returns the latest sealed header.
func (n *Node) Head() *types.BlockHeader { return n.chain.Head() }

func (n *Node) GetHeight() uint64 { return n.chain.GetHeight() }

// GetHeader returns the header sealed at height.
func (n *Node) GetHeader(height uint64) (*types.BlockHeader, error) {
	header, err := n.chain.GetHeaderByHeight(height)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: block %d", coreerrors.ErrNotFound, height)
	}
	return header, err
}

func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.GetAccount(addr[:])
}

// Nonce returns the next nonce expected from addr.
func (n *Node) Nonce(addr [20]byte) (uint64, error) {
	acc, err := n.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

func (n *Node) ClientRegistry(addr [20]byte) (*marketplace.ClientRegistry, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Market.ClientRegistry(addr)
}

func (n *Node) ContractorRegistry(addr [20]byte) (*marketplace.ContractorRegistry, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Market.ContractorRegistry(addr)
}

func (n *Node) Contract(addr [20]byte) (*marketplace.Contract, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Market.Contract(addr)
}

func (n *Node) Proposal(addr [20]byte) (*marketplace.Proposal, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Market.Proposal(addr)
}

// Vault returns the vault record and the balance it holds.
func (n *Node) Vault(addr [20]byte) (*marketplace.Vault, *big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.Market.Vault(addr)
}

// ScanRecords exposes raw record scans with memcmp filters.
func (n *Node) ScanRecords(kind marketplace.RecordKind, filters []ScanFilter, limit int) ([]QueryRecord, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.ScanRecords(kind, filters, limit)
}

func (n *Node) ListContracts(filter ContractFilter) ([]ContractEntry, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.ListContracts(filter)
}

func (n *Node) ListProposals(filter ProposalFilter) ([]ProposalEntry, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.ListProposals(filter)
}

// Receipt returns the receipt of an accepted transaction.
func (n *Node) Receipt(txHash string) (*types.Receipt, error) {
	if n.receipts == nil {
		return nil, fmt.Errorf("%w: receipt store disabled", coreerrors.ErrNotFound)
	}
	receipt, err := n.receipts.Get(txHash)
	if errors.Is(err, receipts.ErrNotFound) {
		return nil, fmt.Errorf("%w: receipt %s", coreerrors.ErrNotFound, txHash)
	}
	return receipt, err
}
