package common

import (
	"math/big"

	"omnidex/core/types"
)

// Limiter is the per-block circuit breaker consulted before pool state
// changes are committed. Reserves are passed as observed before the change so
// the limiter can express caps as fractions of the pre-trade depth.
type Limiter interface {
	EnsureTradeVolumeLimit(assetIn types.AssetID, reserveInBefore, amountIn *big.Int, assetOut types.AssetID, reserveOutBefore, amountOut *big.Int) error
	EnsureAddLiquidityLimit(asset types.AssetID, reserveBefore, amount *big.Int) error
	EnsureRemoveLiquidityLimit(asset types.AssetID, reserveBefore, amount *big.Int) error
}
