package core

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"lancechain/core/genesis"
	"lancechain/core/receipts"
	"lancechain/core/types"
	"lancechain/crypto"
	"lancechain/native/marketplace"
	"lancechain/storage"
	"lancechain/storage/trie"
)

const testChainID = 4242

type testActor struct {
	key   *crypto.PrivateKey
	addr  [20]byte
	nonce uint64
}

func newTestActor(t *testing.T) *testActor {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &testActor{key: key, addr: key.PubKey().Address().Array()}
}

// signed builds a transaction at the actor's current nonce without advancing
// it.
func (a *testActor) signed(t *testing.T, txType types.TxType, payload interface{}) *types.Transaction {
	t.Helper()
	return signTx(t, a.key, testChainID, txType, a.nonce, payload)
}

func signTx(t *testing.T, key *crypto.PrivateKey, chainID uint64, txType types.TxType, nonce uint64, payload interface{}) *types.Transaction {
	t.Helper()
	tx, err := types.NewTransaction(chainID, txType, nonce, payload)
	if err != nil {
		t.Fatalf("build %s: %v", txType, err)
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		t.Fatalf("sign %s: %v", txType, err)
	}
	return tx
}

func newTestStateProcessor(t *testing.T) *StateProcessor {
	t.Helper()
	tr, err := trie.NewTrie(storage.NewMemDB(), nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	sp := NewStateProcessor(tr, testChainID)
	sp.SetNowFunc(func() int64 { return 1_700_000_000 })
	return sp
}

func credit(t *testing.T, sp *StateProcessor, addr [20]byte, amount int64) {
	t.Helper()
	if err := sp.Credit(addr[:], big.NewInt(amount)); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func balanceOf(t *testing.T, sp *StateProcessor, addr [20]byte) *big.Int {
	t.Helper()
	acc, err := sp.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}

func minimumBalance(t *testing.T, space uint64) int64 {
	t.Helper()
	v, err := marketplace.DefaultRentParams().MinimumBalance(space)
	if err != nil {
		t.Fatalf("minimum balance: %v", err)
	}
	return v.Int64()
}

func genesisFor(allocs map[[20]byte]int64) *genesis.Spec {
	spec := &genesis.Spec{
		GenesisTime: "2024-01-01T00:00:00Z",
		ChainID:     testChainID,
		Alloc:       make(map[string]string, len(allocs)),
	}
	for addr, amount := range allocs {
		spec.Alloc[crypto.FromArray(addr).String()] = big.NewInt(amount).String()
	}
	return spec
}

type testNode struct {
	*Node
	receipts *receipts.Store
	clock    time.Time
}

func newTestNode(t *testing.T, db storage.Database, spec *genesis.Spec) *testNode {
	t.Helper()
	store, err := receipts.Open(filepath.Join(t.TempDir(), "receipts.db"), nil)
	if err != nil {
		t.Fatalf("open receipts: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	tn := &testNode{receipts: store, clock: time.Unix(1_704_067_300, 0)}
	node, err := NewNode(db, NodeConfig{
		ChainID:  testChainID,
		Genesis:  spec,
		Receipts: store,
		Clock: func() time.Time {
			tn.clock = tn.clock.Add(time.Second)
			return tn.clock
		},
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	tn.Node = node
	return tn
}

// submit applies a transaction from actor and fails the test on rejection.
func (n *testNode) submit(t *testing.T, actor *testActor, txType types.TxType, payload interface{}) *types.Receipt {
	t.Helper()
	receipt, err := n.SubmitTransaction(context.Background(), actor.signed(t, txType, payload))
	if err != nil {
		t.Fatalf("%s rejected: %v", txType, err)
	}
	actor.nonce++
	return receipt
}

func (n *testNode) reject(t *testing.T, actor *testActor, txType types.TxType, payload interface{}) error {
	t.Helper()
	receipt, err := n.SubmitTransaction(context.Background(), actor.signed(t, txType, payload))
	if err == nil {
		t.Fatalf("%s unexpectedly accepted at height %d", txType, receipt.Height)
	}
	return err
}

func (n *testNode) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	acc, err := n.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}
