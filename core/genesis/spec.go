package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"
)

// Spec describes the initial ledger: the chain id, the genesis time and the
// native unit balances credited before the first transaction.
type Spec struct {
	GenesisTime string            `json:"genesisTime"`
	ChainID     uint64            `json:"chainId"`
	Alloc       map[string]string `json:"alloc"` // bech32 address -> decimal balance
}

// Allocation is a resolved genesis credit.
type Allocation struct {
	Address [20]byte
	Balance *big.Int
}

// LoadSpec reads a JSON genesis file. Unknown fields are rejected.
func LoadSpec(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	spec := new(Spec)
	if err := dec.Decode(spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Validate checks the time format, every address and every balance.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if _, err := s.Timestamp(); err != nil {
		return err
	}
	_, err := s.Allocations()
	return err
}

// Timestamp parses GenesisTime (RFC 3339). An empty value yields the zero
// time.
func (s *Spec) Timestamp() (time.Time, error) {
	trimmed := strings.TrimSpace(s.GenesisTime)
	if trimmed == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("genesisTime: %w", err)
	}
	return ts.UTC(), nil
}

// Allocations resolves Alloc, sorted by address so application order is
// deterministic.
func (s *Spec) Allocations() ([]Allocation, error) {
	out := make([]Allocation, 0, len(s.Alloc))
	seen := make(map[[20]byte]bool, len(s.Alloc))
	for addrStr, balanceStr := range s.Alloc {
		addr, err := ParseBech32Account(addrStr)
		if err != nil {
			return nil, fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		if seen[addr] {
			return nil, fmt.Errorf("alloc %q: duplicate address", addrStr)
		}
		seen[addr] = true
		balance, ok := new(big.Int).SetString(strings.TrimSpace(balanceStr), 10)
		if !ok || balance.Sign() < 0 {
			return nil, fmt.Errorf("alloc %q: invalid balance %q", addrStr, balanceStr)
		}
		out = append(out, Allocation{Address: addr, Balance: balance})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}
