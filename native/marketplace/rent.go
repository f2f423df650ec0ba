package marketplace

import (
	"math/big"

	"github.com/holiman/uint256"
)

const (
	DefaultAccountOverhead = 128
	DefaultUnitsPerByte    = 6960
)

// RentParams prices the storage a record occupies. Every account holding a
// record must carry at least MinimumBalance(space) native units.
type RentParams struct {
	AccountOverhead uint64
	UnitsPerByte    uint64
}

// DefaultRentParams returns the network defaults.
func DefaultRentParams() RentParams {
	return RentParams{AccountOverhead: DefaultAccountOverhead, UnitsPerByte: DefaultUnitsPerByte}
}

// MinimumBalance returns (overhead + space) * unitsPerByte.
func (p RentParams) MinimumBalance(space uint64) (*big.Int, error) {
	total, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(p.AccountOverhead), uint256.NewInt(space))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	total, overflow = total.MulOverflow(total, uint256.NewInt(p.UnitsPerByte))
	if overflow || !total.IsUint64() {
		return nil, ErrArithmeticOverflow
	}
	return total.ToBig(), nil
}

// escrowTotal returns amount plus the vault's own rent, the sum a client
// must hold to accept a proposal.
func (p RentParams) escrowTotal(amount uint64) (*big.Int, error) {
	overhead, err := p.MinimumBalance(VaultSpace)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(amount), uint256.MustFromBig(overhead))
	if overflow || !sum.IsUint64() {
		return nil, ErrArithmeticOverflow
	}
	return sum.ToBig(), nil
}
