package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"lancechain/core/types"
	"lancechain/storage"
)

var (
	headKey        = []byte("head")
	blockKeyPrefix = []byte("block:")
)

func blockKey(height uint64) []byte {
	key := make([]byte, len(blockKeyPrefix)+8)
	copy(key, blockKeyPrefix)
	binary.BigEndian.PutUint64(key[len(blockKeyPrefix):], height)
	return key
}

// Blockchain tracks the sealed headers. Each header commits one accepted
// transaction and links to its parent by hash.
type Blockchain struct {
	db   storage.Database
	head *types.BlockHeader
	mu   sync.RWMutex
}

// NewBlockchain loads the chain head from db. A fresh database yields a chain
// with no head; InitGenesis must be called before AddHeader.
func NewBlockchain(db storage.Database) (*Blockchain, error) {
	bc := &Blockchain{db: db}
	raw, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return bc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load head: %w", err)
	}
	head := new(types.BlockHeader)
	if err := json.Unmarshal(raw, head); err != nil {
		return nil, fmt.Errorf("decode head: %w", err)
	}
	bc.head = head
	return bc, nil
}

// InitGenesis stores the height-zero header.
func (bc *Blockchain) InitGenesis(header *types.BlockHeader) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.head != nil {
		return fmt.Errorf("genesis already initialised at height %d", bc.head.Height)
	}
	if header.Height != 0 {
		return fmt.Errorf("genesis height must be 0, got %d", header.Height)
	}
	return bc.store(header)
}

// AddHeader appends header to the chain after checking it extends the head.
func (bc *Blockchain) AddHeader(header *types.BlockHeader) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.head == nil {
		return fmt.Errorf("chain has no genesis")
	}
	if header.Height != bc.head.Height+1 {
		return fmt.Errorf("header height %d does not extend head %d", header.Height, bc.head.Height)
	}
	parent, err := bc.head.Hash()
	if err != nil {
		return err
	}
	if !bytes.Equal(header.PrevHash, parent) {
		return fmt.Errorf("header prevhash mismatch")
	}
	return bc.store(header)
}

func (bc *Blockchain) store(header *types.BlockHeader) error {
	encoded, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if err := bc.db.Put(blockKey(header.Height), encoded); err != nil {
		return err
	}
	if err := bc.db.Put(headKey, encoded); err != nil {
		return err
	}
	bc.head = header.Clone()
	return nil
}

// Head returns a copy of the current head, or nil before genesis.
func (bc *Blockchain) Head() *types.BlockHeader {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.head.Clone()
}

// GetHeight returns the head height, zero before genesis.
func (bc *Blockchain) GetHeight() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.head == nil {
		return 0
	}
	return bc.head.Height
}

// GetHeaderByHeight retrieves a sealed header.
func (bc *Blockchain) GetHeaderByHeight(height uint64) (*types.BlockHeader, error) {
	raw, err := bc.db.Get(blockKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("block at height %d: %w", height, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	header := new(types.BlockHeader)
	if err := json.Unmarshal(raw, header); err != nil {
		return nil, err
	}
	return header, nil
}
