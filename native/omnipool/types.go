package omnipool

import (
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
)

// Tradability is the per-asset operation bitmask. A zero value freezes the
// asset entirely.
type Tradability uint8

const (
	// CanSell allows the asset to be sold into the pool.
	CanSell Tradability = 1 << iota
	// CanBuy allows the asset to be bought out of the pool.
	CanBuy
	// CanAddLiquidity allows liquidity provision in the asset.
	CanAddLiquidity
	// CanRemoveLiquidity allows withdrawing liquidity positions in the asset.
	CanRemoveLiquidity
)

// TradabilityDefault enables every operation.
const TradabilityDefault = CanSell | CanBuy | CanAddLiquidity | CanRemoveLiquidity

// Frozen reports whether all operations are disabled.
func (t Tradability) Frozen() bool { return t == 0 }

// Contains reports whether every flag in mask is enabled.
func (t Tradability) Contains(mask Tradability) bool { return t&mask == mask }

// WeightCapDenominator scales the per-asset weight cap: a cap of
// 1e18 means the asset may back up to 100% of the total hub reserve.
var WeightCapDenominator = new(big.Int).SetUint64(1_000_000_000_000_000_000)

// AssetState is the pool-side record of one listed asset.
type AssetState struct {
	// Reserve is the balance of the asset held by the pool.
	Reserve *big.Int
	// HubReserve is the amount of hub asset notionally backing the asset.
	HubReserve *big.Int
	// Shares is the total number of liquidity shares issued for the asset.
	Shares *big.Int
	// ProtocolShares is the portion of Shares owned by the protocol itself.
	ProtocolShares *big.Int
	// Cap bounds the fraction of the total hub reserve this asset may
	// represent, scaled by WeightCapDenominator.
	Cap *big.Int
	// Tradable holds the operation bitmask.
	Tradable Tradability
}

// Clone returns a deep copy so calculations never alias live state.
func (s *AssetState) Clone() *AssetState {
	return &AssetState{
		Reserve:        new(big.Int).Set(s.Reserve),
		HubReserve:     new(big.Int).Set(s.HubReserve),
		Shares:         new(big.Int).Set(s.Shares),
		ProtocolShares: new(big.Int).Set(s.ProtocolShares),
		Cap:            new(big.Int).Set(s.Cap),
		Tradable:       s.Tradable,
	}
}

// Price returns the spot price of the asset denominated in hub asset, i.e.
// hubReserve/reserve.
func (s *AssetState) Price() fixmath.Ratio {
	return fixmath.NewRatio(s.HubReserve, s.Reserve)
}

// Valid reports whether the state satisfies the structural invariant of an
// active asset: both reserves nonzero and shares covering protocol shares.
func (s *AssetState) Valid() bool {
	if s.Reserve == nil || s.HubReserve == nil || s.Shares == nil || s.ProtocolShares == nil {
		return false
	}
	if s.Reserve.Sign() <= 0 || s.HubReserve.Sign() <= 0 {
		return false
	}
	return s.Shares.Cmp(s.ProtocolShares) >= 0
}

// SignedBalance is a signed-magnitude accounting value. It tracks the hub
// asset imbalance: the systemic surplus (positive) or deficit (negative) of
// hub asset relative to a fully backed pool.
type SignedBalance struct {
	Value    *big.Int
	Negative bool
}

func ZeroSignedBalance() *SignedBalance {
	return &SignedBalance{Value: big.NewInt(0)}
}

func (s *SignedBalance) Clone() *SignedBalance {
	return &SignedBalance{Value: new(big.Int).Set(s.Value), Negative: s.Negative}
}

// IsZero reports whether the balance equals zero regardless of sign flag.
func (s *SignedBalance) IsZero() bool { return s.Value.Sign() == 0 }

// Add moves the balance toward positive by x.
func (s *SignedBalance) Add(x *big.Int) error {
	if x.Sign() < 0 {
		return fixmath.ErrNegative
	}
	if !s.Negative {
		sum, err := fixmath.CheckedAdd(s.Value, x)
		if err != nil {
			return err
		}
		s.Value = sum
		return nil
	}
	if s.Value.Cmp(x) >= 0 {
		s.Value = new(big.Int).Sub(s.Value, x)
		if s.Value.Sign() == 0 {
			s.Negative = false
		}
		return nil
	}
	s.Value = new(big.Int).Sub(x, s.Value)
	s.Negative = false
	return nil
}

// Sub moves the balance toward negative by x.
func (s *SignedBalance) Sub(x *big.Int) error {
	if x.Sign() < 0 {
		return fixmath.ErrNegative
	}
	if s.Negative {
		sum, err := fixmath.CheckedAdd(s.Value, x)
		if err != nil {
			return err
		}
		s.Value = sum
		return nil
	}
	if s.Value.Cmp(x) >= 0 {
		s.Value = new(big.Int).Sub(s.Value, x)
		return nil
	}
	s.Value = new(big.Int).Sub(x, s.Value)
	s.Negative = true
	return nil
}

// Scale multiplies the magnitude by num/den, truncating toward zero. The sign
// is preserved; scaling never flips a deficit into a surplus.
func (s *SignedBalance) Scale(num, den *big.Int) error {
	scaled, err := fixmath.MulDiv(s.Value, num, den, fixmath.Down)
	if err != nil {
		return err
	}
	s.Value = scaled
	if s.Value.Sign() == 0 {
		s.Negative = false
	}
	return nil
}

// Position is a liquidity provider's frozen entry into the pool. Positions are
// transferable (NFT-like): ownership moves with TransferPosition and the
// record is destroyed once all shares are withdrawn.
type Position struct {
	ID      uint64
	Owner   crypto.Address
	AssetID types.AssetID
	// Amount is the reserve amount deposited at entry.
	Amount *big.Int
	// Shares is the number of shares the position still owns.
	Shares *big.Int
	// Price is the hubReserve/reserve spot price frozen at entry.
	Price fixmath.Ratio
}
