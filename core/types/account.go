package types

import "math/big"

// Account is the ledger entry stored under every address. Identities only
// carry a balance and nonce; record accounts additionally hold their encoded
// record in Data.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
	Data    []byte   `json:"data,omitempty"`
}

// NewAccount returns an empty account with a zero balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Exists reports whether the account holds funds or data. An address that
// has never been written, or was fully drained and carries no record, does
// not exist.
func (a *Account) Exists() bool {
	if a == nil {
		return false
	}
	if len(a.Data) > 0 {
		return true
	}
	return a.Balance != nil && a.Balance.Sign() > 0
}

// Clone returns a deep copy so callers can mutate it without affecting the
// stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	if len(a.Data) > 0 {
		clone.Data = append([]byte(nil), a.Data...)
	}
	return clone
}
