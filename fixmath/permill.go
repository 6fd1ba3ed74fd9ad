package fixmath

import "math/big"

// PermillDenominator is the scale used for fee rates and fractional limits:
// one permill unit is one part per million.
const PermillDenominator = 1_000_000

// Permill is a fraction expressed in parts per million. It is the wire format
// for fee rates and circuit-breaker limits.
type Permill uint32

var permillDen = big.NewInt(PermillDenominator)

// IsValid reports whether the fraction does not exceed 100%.
func (p Permill) IsValid() bool {
	return uint32(p) <= PermillDenominator
}

// IsZero reports whether the fraction is zero.
func (p Permill) IsZero() bool { return p == 0 }

func (p Permill) bigNum() *big.Int {
	return big.NewInt(int64(p))
}

// Mul returns x*p rounded down. Used when the fraction determines an allowance
// that must not be overstated.
func (p Permill) Mul(x *big.Int) (*big.Int, error) {
	return MulDiv(x, p.bigNum(), permillDen, Down)
}

// MulCeil returns x*p rounded up. Fee amounts always round up so the rounding
// favours the pool rather than the trader.
func (p Permill) MulCeil(x *big.Int) (*big.Int, error) {
	return MulDiv(x, p.bigNum(), permillDen, Up)
}

// Complement returns 1 - p.
func (p Permill) Complement() Permill {
	if !p.IsValid() {
		return 0
	}
	return Permill(PermillDenominator - uint32(p))
}

// DivByComplementCeil returns x/(1-p) rounded up: the gross amount that nets x
// after the fee p is deducted from it.
func (p Permill) DivByComplementCeil(x *big.Int) (*big.Int, error) {
	comp := p.Complement()
	if comp.IsZero() {
		return nil, ErrDivisionByZero
	}
	return MulDiv(x, permillDen, comp.bigNum(), Up)
}
