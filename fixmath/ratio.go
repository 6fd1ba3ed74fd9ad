package fixmath

import "math/big"

// Ratio is an exact non-negative rational number. It is used wherever a price
// must be carried without rounding, most importantly the entry price frozen
// into a liquidity position. Comparison is by cross multiplication so no
// precision is lost to division.
type Ratio struct {
	Num *big.Int
	Den *big.Int
}

// NewRatio builds a ratio from the supplied numerator and denominator. Callers
// must guarantee den > 0; a zero denominator ratio is invalid everywhere.
func NewRatio(num, den *big.Int) Ratio {
	return Ratio{Num: new(big.Int).Set(num), Den: new(big.Int).Set(den)}
}

// IsValid reports whether the ratio has a positive denominator and a
// non-negative numerator.
func (r Ratio) IsValid() bool {
	return r.Den != nil && r.Den.Sign() > 0 && r.Num != nil && r.Num.Sign() >= 0
}

// IsZero reports whether the ratio equals zero.
func (r Ratio) IsZero() bool {
	return r.Num == nil || r.Num.Sign() == 0
}

// Cmp compares r against other by cross multiplication: -1 when r < other,
// 0 when equal, +1 when r > other.
func (r Ratio) Cmp(other Ratio) int {
	left := new(big.Int).Mul(r.Num, other.Den)
	right := new(big.Int).Mul(other.Num, r.Den)
	return left.Cmp(right)
}

// Mul applies the ratio to a balance with the requested rounding.
func (r Ratio) Mul(x *big.Int, rounding Rounding) (*big.Int, error) {
	return MulDiv(x, r.Num, r.Den, rounding)
}

// Inverse returns den/num. Fails the validity check downstream when num is
// zero, mirroring division by zero.
func (r Ratio) Inverse() Ratio {
	return Ratio{Num: new(big.Int).Set(r.Den), Den: new(big.Int).Set(r.Num)}
}
