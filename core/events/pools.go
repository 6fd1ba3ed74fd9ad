package events

import (
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
)

const (
	TypeStableswapPoolCreated      = "stableswap.poolCreated"
	TypeStableswapSellExecuted     = "stableswap.sellExecuted"
	TypeStableswapBuyExecuted      = "stableswap.buyExecuted"
	TypeStableswapLiquidityAdded   = "stableswap.liquidityAdded"
	TypeStableswapLiquidityRemoved = "stableswap.liquidityRemoved"
	TypeXYKPoolCreated             = "xyk.poolCreated"
	TypeXYKSellExecuted            = "xyk.sellExecuted"
	TypeXYKBuyExecuted             = "xyk.buyExecuted"
	TypeXYKLiquidityAdded          = "xyk.liquidityAdded"
	TypeXYKLiquidityRemoved        = "xyk.liquidityRemoved"
)

type StableswapPoolCreated struct {
	PoolID        types.AssetID
	Assets        []types.AssetID
	Amplification uint64
}

func (StableswapPoolCreated) EventType() string { return TypeStableswapPoolCreated }

type StableswapSellExecuted struct {
	Who       crypto.Address
	PoolID    types.AssetID
	AssetIn   types.AssetID
	AssetOut  types.AssetID
	AmountIn  *big.Int
	AmountOut *big.Int
	FeeAmount *big.Int
}

func (StableswapSellExecuted) EventType() string { return TypeStableswapSellExecuted }

type StableswapBuyExecuted struct {
	Who       crypto.Address
	PoolID    types.AssetID
	AssetIn   types.AssetID
	AssetOut  types.AssetID
	AmountIn  *big.Int
	AmountOut *big.Int
	FeeAmount *big.Int
}

func (StableswapBuyExecuted) EventType() string { return TypeStableswapBuyExecuted }

type StableswapLiquidityAdded struct {
	Who    crypto.Address
	PoolID types.AssetID
	Shares *big.Int
}

func (StableswapLiquidityAdded) EventType() string { return TypeStableswapLiquidityAdded }

type StableswapLiquidityRemoved struct {
	Who    crypto.Address
	PoolID types.AssetID
	Shares *big.Int
}

func (StableswapLiquidityRemoved) EventType() string { return TypeStableswapLiquidityRemoved }

type XYKPoolCreated struct {
	Who    crypto.Address
	AssetA types.AssetID
	AssetB types.AssetID
}

func (XYKPoolCreated) EventType() string { return TypeXYKPoolCreated }

type XYKSellExecuted struct {
	Who       crypto.Address
	AssetIn   types.AssetID
	AssetOut  types.AssetID
	AmountIn  *big.Int
	AmountOut *big.Int
	FeeAmount *big.Int
}

func (XYKSellExecuted) EventType() string { return TypeXYKSellExecuted }

type XYKBuyExecuted struct {
	Who       crypto.Address
	AssetIn   types.AssetID
	AssetOut  types.AssetID
	AmountIn  *big.Int
	AmountOut *big.Int
	FeeAmount *big.Int
}

func (XYKBuyExecuted) EventType() string { return TypeXYKBuyExecuted }

type XYKLiquidityAdded struct {
	Who    crypto.Address
	AssetA types.AssetID
	AssetB types.AssetID
	Shares *big.Int
}

func (XYKLiquidityAdded) EventType() string { return TypeXYKLiquidityAdded }

type XYKLiquidityRemoved struct {
	Who    crypto.Address
	AssetA types.AssetID
	AssetB types.AssetID
	Shares *big.Int
}

func (XYKLiquidityRemoved) EventType() string { return TypeXYKLiquidityRemoved }
