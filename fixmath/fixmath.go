// Package fixmath implements the deterministic integer arithmetic primitives
// shared by every pricing formula: checked multiply-then-divide with a full
// 256-bit intermediate, explicit rounding modes, rational comparison without
// division and checked exponentiation. Balances are modelled as non-negative
// integers bounded to 128 bits; any operation that would overflow that bound
// reports an error instead of saturating.
package fixmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("fixmath: arithmetic overflow")
	ErrDivisionByZero = errors.New("fixmath: division by zero")
	ErrNegative       = errors.New("fixmath: negative operand")
)

// Rounding selects the direction applied to an inexact division result.
type Rounding int

const (
	// Down truncates toward zero.
	Down Rounding = iota
	// Up rounds away from zero whenever a remainder exists.
	Up
	// Nearest rounds half away from zero.
	Nearest
)

// BalanceBits bounds every balance to the 128-bit range used across the pool
// state model.
const BalanceBits = 128

func checkOperand(x *big.Int) error {
	if x == nil || x.Sign() < 0 {
		return ErrNegative
	}
	if x.BitLen() > BalanceBits {
		return ErrOverflow
	}
	return nil
}

// MulDiv computes a*b/den with a 256-bit intermediate product so that two full
// 128-bit operands never lose precision before the division. The result must
// fit back into 128 bits.
func MulDiv(a, b, den *big.Int, rounding Rounding) (*big.Int, error) {
	for _, op := range []*big.Int{a, b, den} {
		if err := checkOperand(op); err != nil {
			return nil, err
		}
	}
	if den.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	x, _ := uint256.FromBig(a)
	y, _ := uint256.FromBig(b)
	d, _ := uint256.FromBig(den)

	quo, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	rem := new(uint256.Int).MulMod(x, y, d)

	bump := false
	switch rounding {
	case Up:
		bump = !rem.IsZero()
	case Nearest:
		doubled := new(uint256.Int)
		if _, carry := doubled.AddOverflow(rem, rem); !carry {
			bump = doubled.Cmp(d) >= 0
		} else {
			bump = true
		}
	}
	if bump {
		if _, carry := quo.AddOverflow(quo, uint256.NewInt(1)); carry {
			return nil, ErrOverflow
		}
	}
	result := quo.ToBig()
	if result.BitLen() > BalanceBits {
		return nil, ErrOverflow
	}
	return result, nil
}

// BigMulDiv computes a*b/den over unbounded non-negative integers. It exists
// for formulas whose intermediate cross products legitimately exceed 256 bits
// (rational price differences applied to balances); the final result is still
// required to fit the balance range.
func BigMulDiv(a, b, den *big.Int, rounding Rounding) (*big.Int, error) {
	for _, op := range []*big.Int{a, b, den} {
		if op == nil || op.Sign() < 0 {
			return nil, ErrNegative
		}
	}
	if den.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, den, new(big.Int))
	bump := false
	switch rounding {
	case Up:
		bump = rem.Sign() != 0
	case Nearest:
		bump = new(big.Int).Lsh(rem, 1).Cmp(den) >= 0
	}
	if bump {
		quo.Add(quo, big.NewInt(1))
	}
	if quo.BitLen() > BalanceBits {
		return nil, ErrOverflow
	}
	return quo, nil
}

// CheckedAdd returns a+b, failing when the sum leaves the 128-bit range.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	if err := checkOperand(a); err != nil {
		return nil, err
	}
	if err := checkOperand(b); err != nil {
		return nil, err
	}
	sum := new(big.Int).Add(a, b)
	if sum.BitLen() > BalanceBits {
		return nil, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b, failing when b exceeds a.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	if err := checkOperand(a); err != nil {
		return nil, err
	}
	if err := checkOperand(b); err != nil {
		return nil, err
	}
	if a.Cmp(b) < 0 {
		return nil, ErrOverflow
	}
	return new(big.Int).Sub(a, b), nil
}

// CheckedPow returns base**exp, failing when the result leaves the 128-bit
// range. Exponentiation is by squaring; exp is deliberately small everywhere
// this is used (stableswap n**n terms).
func CheckedPow(base *big.Int, exp uint64) (*big.Int, error) {
	if err := checkOperand(base); err != nil {
		return nil, err
	}
	result := big.NewInt(1)
	factor := new(big.Int).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, factor)
			if result.BitLen() > BalanceBits {
				return nil, ErrOverflow
			}
		}
		exp >>= 1
		if exp > 0 {
			factor.Mul(factor, factor)
			if factor.BitLen() > 2*BalanceBits {
				return nil, ErrOverflow
			}
		}
	}
	return result, nil
}
