package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeTransfer             TxType = 0x01 // Native unit transfer between identities
	TxTypeInitializeClient     TxType = 0x10
	TxTypeInitializeContractor TxType = 0x11
	TxTypeInitializeContract   TxType = 0x12
	TxTypeInitializeProposal   TxType = 0x13
	TxTypeUpdateProposal       TxType = 0x14
	TxTypeChooseProposal       TxType = 0x15
	TxTypeMarkWorkDone         TxType = 0x16
	TxTypeClaimPayment         TxType = 0x17
)

var txTypeNames = map[TxType]string{
	TxTypeTransfer:             "transfer",
	TxTypeInitializeClient:     "initialize_client",
	TxTypeInitializeContractor: "initialize_contractor",
	TxTypeInitializeContract:   "initialize_contract",
	TxTypeInitializeProposal:   "initialize_proposal",
	TxTypeUpdateProposal:       "update_proposal",
	TxTypeChooseProposal:       "choose_proposal",
	TxTypeMarkWorkDone:         "mark_work_done",
	TxTypeClaimPayment:         "claim_payment",
}

// String returns the snake_case operation name of the type.
func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

// Valid reports whether the type is one the processor understands.
func (t TxType) Valid() bool {
	_, ok := txTypeNames[t]
	return ok
}

// ParseTxType resolves an operation name to its type.
func ParseTxType(name string) (TxType, bool) {
	for t, n := range txTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

var (
	errMissingSignature = errors.New("transaction: missing signature")
	errInvalidV         = errors.New("transaction: invalid recovery id")
)

// Transaction is a signed request to apply exactly one operation. Payload
// carries the RLP-encoded argument struct for Type.
type Transaction struct {
	ChainID uint64        `json:"chainId"`
	Type    TxType        `json:"type"`
	Nonce   uint64        `json:"nonce"`
	Payload hexutil.Bytes `json:"payload"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from []byte
}

// NewTransaction encodes payload and returns an unsigned transaction.
// A nil payload produces an empty payload.
func NewTransaction(chainID uint64, txType TxType, nonce uint64, payload interface{}) (*Transaction, error) {
	tx := &Transaction{ChainID: chainID, Type: txType, Nonce: nonce}
	if payload != nil {
		encoded, err := rlp.EncodeToBytes(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", txType, err)
		}
		tx.Payload = encoded
	}
	return tx, nil
}

// DecodePayload decodes the RLP payload into out.
func (tx *Transaction) DecodePayload(out interface{}) error {
	if len(tx.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", tx.Type)
	}
	if err := rlp.DecodeBytes(tx.Payload, out); err != nil {
		return fmt.Errorf("%s: decode payload: %w", tx.Type, err)
	}
	return nil
}

// Hash returns keccak256 over the RLP encoding of the unsigned fields.
func (tx *Transaction) Hash() ([]byte, error) {
	txData := struct {
		ChainID uint64
		Type    TxType
		Nonce   uint64
		Payload []byte
	}{tx.ChainID, tx.Type, tx.Nonce, tx.Payload}

	b, err := rlp.EncodeToBytes(txData)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(b), nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the signer's address from the signature.
func (tx *Transaction) From() ([]byte, error) {
	if tx.from != nil {
		return tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return nil, errMissingSignature
	}
	if !tx.V.IsUint64() || (tx.V.Uint64() != 27 && tx.V.Uint64() != 28) {
		return nil, errInvalidV
	}
	if len(tx.R.Bytes()) > 32 || len(tx.S.Bytes()) > 32 {
		return nil, errMissingSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(tx.R.Bytes()):32], tx.R.Bytes())
	copy(sig[64-len(tx.S.Bytes()):64], tx.S.Bytes())
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	tx.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	return tx.from, nil
}
