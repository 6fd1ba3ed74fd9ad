package common

import (
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
)

// AssetInfo carries the realized reserve deltas of one pool-side asset to
// downstream subscribers (oracles, reward accounting, limiters).
type AssetInfo struct {
	AssetID          types.AssetID
	ReserveBefore    *big.Int
	ReserveAfter     *big.Int
	HubReserveBefore *big.Int
	HubReserveAfter  *big.Int
}

// Hooks is the adapter notified after every committed state transition. A hook
// error aborts the whole transition, so implementations must only fail on
// conditions that genuinely invalidate the trade.
type Hooks interface {
	OnLiquidityChanged(info AssetInfo) error
	OnTrade(in, out AssetInfo) error
	// OnTradeFee offers the taken fee to the adapter (e.g. referral or
	// staking rewards) and returns the portion it consumed. The remainder
	// stays with the pool.
	OnTradeFee(account crypto.Address, asset types.AssetID, amount *big.Int) (*big.Int, error)
}

// NoopHooks satisfies Hooks while doing nothing.
type NoopHooks struct{}

func (NoopHooks) OnLiquidityChanged(AssetInfo) error { return nil }
func (NoopHooks) OnTrade(AssetInfo, AssetInfo) error { return nil }
func (NoopHooks) OnTradeFee(crypto.Address, types.AssetID, *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

// Oracle supplies the externally observed volume and liquidity figures used to
// derive dynamic fee rates and limiter baselines.
type Oracle interface {
	AssetVolume(asset types.AssetID) (amountIn, amountOut *big.Int, err error)
	AssetLiquidity(asset types.AssetID) (*big.Int, error)
	Price(assetA, assetB types.AssetID) (fixmath.Ratio, error)
}
