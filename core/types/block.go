package types

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockHeader commits a single accepted transaction. The node seals one
// header per transaction so every accepted operation has its own state root.
type BlockHeader struct {
	Height    uint64 `json:"height"`
	Timestamp uint64 `json:"timestamp"`
	PrevHash  []byte `json:"prevHash"`
	StateRoot []byte `json:"stateRoot"`
	TxHash    []byte `json:"txHash"`
}

// Hash returns the keccak256 hash of the RLP-encoded header.
func (h *BlockHeader) Hash() ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(h)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// Clone returns a deep copy of the header.
func (h *BlockHeader) Clone() *BlockHeader {
	if h == nil {
		return nil
	}
	return &BlockHeader{
		Height:    h.Height,
		Timestamp: h.Timestamp,
		PrevHash:  append([]byte(nil), h.PrevHash...),
		StateRoot: append([]byte(nil), h.StateRoot...),
		TxHash:    append([]byte(nil), h.TxHash...),
	}
}
