package stableswap

import (
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/native/router"
)

// Executor adapts the engine to the router's trade execution capability. The
// route hop carries the pool id (the share asset) selecting the pool.
type Executor struct {
	engine *Engine
}

func NewExecutor(engine *Engine) *Executor {
	return &Executor{engine: engine}
}

var _ router.TradeExecutor = (*Executor)(nil)

func (x *Executor) supports(pool router.PoolKind) bool {
	return pool.Tag == router.KindStableswap
}

func (x *Executor) CalculateSell(pool router.PoolKind, assetIn, assetOut types.AssetID, amountIn *big.Int) (*big.Int, error) {
	if !x.supports(pool) {
		return nil, router.ErrNotSupported
	}
	return x.engine.QuoteSell(pool.PoolID, assetIn, assetOut, amountIn)
}

func (x *Executor) CalculateBuy(pool router.PoolKind, assetIn, assetOut types.AssetID, amountOut *big.Int) (*big.Int, error) {
	if !x.supports(pool) {
		return nil, router.ErrNotSupported
	}
	return x.engine.QuoteBuy(pool.PoolID, assetIn, assetOut, amountOut)
}

func (x *Executor) ExecuteSell(who crypto.Address, pool router.PoolKind, assetIn, assetOut types.AssetID, amountIn, minAmountOut *big.Int) error {
	if !x.supports(pool) {
		return router.ErrNotSupported
	}
	_, err := x.engine.Sell(who, pool.PoolID, assetIn, assetOut, amountIn, minAmountOut)
	return err
}

func (x *Executor) ExecuteBuy(who crypto.Address, pool router.PoolKind, assetIn, assetOut types.AssetID, amountOut, maxAmountIn *big.Int) error {
	if !x.supports(pool) {
		return router.ErrNotSupported
	}
	_, err := x.engine.Buy(who, pool.PoolID, assetIn, assetOut, amountOut, maxAmountIn)
	return err
}

func (x *Executor) LiquidityDepth(pool router.PoolKind, asset types.AssetID, pairedWith types.AssetID) (*big.Int, error) {
	if !x.supports(pool) {
		return nil, router.ErrNotSupported
	}
	return x.engine.LiquidityDepth(pool.PoolID, asset)
}
