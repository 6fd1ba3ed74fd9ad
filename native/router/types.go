package router

import (
	"errors"
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
)

// ErrNotSupported signals that an executor cannot price the requested pair in
// the requested pool kind. The router distinguishes it from hard failures so
// it can report PoolNotSupported instead of aborting with an internal error.
var ErrNotSupported = errors.New("router: pool not supported for pair")

// PoolKindTag discriminates the pool families a trade can route through.
type PoolKindTag uint8

const (
	KindOmnipool PoolKindTag = iota
	KindStableswap
	KindXYK
)

func (t PoolKindTag) String() string {
	switch t {
	case KindOmnipool:
		return "omnipool"
	case KindStableswap:
		return "stableswap"
	case KindXYK:
		return "xyk"
	default:
		return "unknown"
	}
}

// PoolKind is the tagged pool reference carried by a route hop. PoolID is only
// meaningful for stableswap pools, which are keyed by their share asset.
type PoolKind struct {
	Tag    PoolKindTag
	PoolID types.AssetID
}

func OmnipoolKind() PoolKind { return PoolKind{Tag: KindOmnipool} }

func StableswapKind(poolID types.AssetID) PoolKind {
	return PoolKind{Tag: KindStableswap, PoolID: poolID}
}

func XYKKind() PoolKind { return PoolKind{Tag: KindXYK} }

// Trade is one hop of a route: swap AssetIn for AssetOut inside Pool. Trades
// are ephemeral; they exist only while a route is calculated and executed.
type Trade struct {
	Pool     PoolKind
	AssetIn  types.AssetID
	AssetOut types.AssetID
}

// AmountInAndOut pairs the resolved amounts of one hop.
type AmountInAndOut struct {
	AmountIn  *big.Int
	AmountOut *big.Int
}

// TradeExecutor is the capability contract every pool kind exposes to the
// router. Calculate methods are pure quotes; Execute methods move funds and
// mutate pool state. Implementations return ErrNotSupported when the pool kind
// or pair is outside their domain so the router can dispatch generically.
type TradeExecutor interface {
	CalculateSell(pool PoolKind, assetIn, assetOut types.AssetID, amountIn *big.Int) (*big.Int, error)
	CalculateBuy(pool PoolKind, assetIn, assetOut types.AssetID, amountOut *big.Int) (*big.Int, error)
	ExecuteSell(who crypto.Address, pool PoolKind, assetIn, assetOut types.AssetID, amountIn, minAmountOut *big.Int) error
	ExecuteBuy(who crypto.Address, pool PoolKind, assetIn, assetOut types.AssetID, amountOut, maxAmountIn *big.Int) error
	// LiquidityDepth reports the tradable liquidity of asset within the
	// pool, used to size probe trades for route comparison.
	LiquidityDepth(pool PoolKind, asset types.AssetID, pairedWith types.AssetID) (*big.Int, error)
}
