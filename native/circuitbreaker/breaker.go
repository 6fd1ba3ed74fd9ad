package circuitbreaker

import (
	"errors"
	"fmt"
	"math/big"

	"omnidex/core/types"
	"omnidex/native/common"
	"omnidex/observability/metrics"
)

// Limits are expressed in basis points of the reserve observed at the asset's
// first touch within the block. A zero limit disables the corresponding check.
const LimitDenominator = 10_000

const (
	DefaultTradeVolumeLimit     uint32 = 5_000
	DefaultAddLiquidityLimit    uint32 = 500
	DefaultRemoveLiquidityLimit uint32 = 500
)

var (
	ErrInvalidLimit                = errors.New("circuitbreaker: limit exceeds denominator")
	ErrOutflowLimitReached         = errors.New("circuitbreaker: token outflow limit per block reached")
	ErrInfluxLimitReached          = errors.New("circuitbreaker: token influx limit per block reached")
	ErrAddLiquidityLimitReached    = errors.New("circuitbreaker: add liquidity limit per block reached")
	ErrRemoveLiquidityLimitReached = errors.New("circuitbreaker: remove liquidity limit per block reached")
)

// Params carries the global default limits and the assets exempt from volume
// tracking (the hub asset trades on every route leg and would otherwise trip
// the breaker on ordinary flow).
type Params struct {
	TradeVolumeLimit     uint32
	AddLiquidityLimit    uint32
	RemoveLiquidityLimit uint32
	ExemptAssets         []types.AssetID
}

func DefaultParams() Params {
	return Params{
		TradeVolumeLimit:     DefaultTradeVolumeLimit,
		AddLiquidityLimit:    DefaultAddLiquidityLimit,
		RemoveLiquidityLimit: DefaultRemoveLiquidityLimit,
		ExemptAssets:         []types.AssetID{1},
	}
}

func (p Params) Validate() error {
	if p.TradeVolumeLimit > LimitDenominator ||
		p.AddLiquidityLimit > LimitDenominator ||
		p.RemoveLiquidityLimit > LimitDenominator {
		return ErrInvalidLimit
	}
	return nil
}

func (p Params) exempt(asset types.AssetID) bool {
	for _, candidate := range p.ExemptAssets {
		if candidate == asset {
			return true
		}
	}
	return false
}

// Breaker accumulates per-asset flow within a block and rejects operations
// that push the net change past the configured fraction of the pre-change
// reserve. OnFinalize clears all accumulators.
type Breaker struct {
	state   *State
	params  Params
	metrics *metrics.AMMMetrics
}

var _ common.Limiter = (*Breaker)(nil)

func NewBreaker(state *State, params Params) *Breaker {
	return &Breaker{state: state, params: params}
}

func (b *Breaker) SetMetrics(m *metrics.AMMMetrics) { b.metrics = m }

// SetTradeVolumeLimit overrides the volume limit for one asset.
func (b *Breaker) SetTradeVolumeLimit(asset types.AssetID, limit uint32) error {
	if limit > LimitDenominator {
		return ErrInvalidLimit
	}
	return b.state.PutLimit(limitTrade, asset, limit)
}

// SetAddLiquidityLimit overrides the add-liquidity limit for one asset.
func (b *Breaker) SetAddLiquidityLimit(asset types.AssetID, limit uint32) error {
	if limit > LimitDenominator {
		return ErrInvalidLimit
	}
	return b.state.PutLimit(limitAdd, asset, limit)
}

// SetRemoveLiquidityLimit overrides the remove-liquidity limit for one asset.
func (b *Breaker) SetRemoveLiquidityLimit(asset types.AssetID, limit uint32) error {
	if limit > LimitDenominator {
		return ErrInvalidLimit
	}
	return b.state.PutLimit(limitRemove, asset, limit)
}

func (b *Breaker) limitFor(kind limitKind, asset types.AssetID, fallback uint32) (uint32, error) {
	limit, ok, err := b.state.GetLimit(kind, asset)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback, nil
	}
	return limit, nil
}

// allowance computes limit/10000 of the base reserve.
func allowance(base *big.Int, limit uint32) *big.Int {
	out := new(big.Int).Mul(base, big.NewInt(int64(limit)))
	return out.Div(out, big.NewInt(LimitDenominator))
}

func (b *Breaker) reject(kind string, err error) error {
	b.metrics.IncLimiterRejection(kind)
	return err
}

func (b *Breaker) trackVolume(asset types.AssetID, reserveBefore, in, out *big.Int) error {
	limit, err := b.limitFor(limitTrade, asset, b.params.TradeVolumeLimit)
	if err != nil {
		return err
	}
	if limit == 0 {
		return nil
	}
	record, err := b.state.Volume(asset)
	if err != nil {
		return err
	}
	if record == nil {
		record = &VolumeRecord{
			BaseReserve: new(big.Int).Set(reserveBefore),
			In:          big.NewInt(0),
			Out:         big.NewInt(0),
		}
	}
	record.In = new(big.Int).Add(record.In, in)
	record.Out = new(big.Int).Add(record.Out, out)
	bound := allowance(record.BaseReserve, limit)
	net := new(big.Int).Sub(record.Out, record.In)
	if net.Sign() > 0 && net.Cmp(bound) > 0 {
		return b.reject("volume", fmt.Errorf("%w: asset %d", ErrOutflowLimitReached, asset))
	}
	if net.Sign() < 0 && new(big.Int).Neg(net).Cmp(bound) > 0 {
		return b.reject("volume", fmt.Errorf("%w: asset %d", ErrInfluxLimitReached, asset))
	}
	return b.state.PutVolume(asset, record)
}

// EnsureTradeVolumeLimit records one trade's flow on both assets and rejects
// it when either asset's net per-block flow leaves its band.
func (b *Breaker) EnsureTradeVolumeLimit(assetIn types.AssetID, reserveInBefore, amountIn *big.Int, assetOut types.AssetID, reserveOutBefore, amountOut *big.Int) error {
	if !b.params.exempt(assetIn) && reserveInBefore != nil {
		if err := b.trackVolume(assetIn, reserveInBefore, amountIn, big.NewInt(0)); err != nil {
			return err
		}
	}
	if !b.params.exempt(assetOut) && reserveOutBefore != nil {
		if err := b.trackVolume(assetOut, reserveOutBefore, big.NewInt(0), amountOut); err != nil {
			return err
		}
	}
	return nil
}

func (b *Breaker) trackLiquidity(kind limitKind, asset types.AssetID, reserveBefore, amount *big.Int, fallback uint32, failure error, metric string) error {
	limit, err := b.limitFor(kind, asset, fallback)
	if err != nil {
		return err
	}
	if limit == 0 {
		return nil
	}
	record, err := b.state.Liquidity(kind, asset)
	if err != nil {
		return err
	}
	if record == nil {
		record = &LiquidityRecord{
			BaseReserve: new(big.Int).Set(reserveBefore),
			Accumulated: big.NewInt(0),
		}
	}
	record.Accumulated = new(big.Int).Add(record.Accumulated, amount)
	if record.Accumulated.Cmp(allowance(record.BaseReserve, limit)) > 0 {
		return b.reject(metric, fmt.Errorf("%w: asset %d", failure, asset))
	}
	return b.state.PutLiquidity(kind, asset, record)
}

func (b *Breaker) EnsureAddLiquidityLimit(asset types.AssetID, reserveBefore, amount *big.Int) error {
	if b.params.exempt(asset) {
		return nil
	}
	return b.trackLiquidity(limitAdd, asset, reserveBefore, amount,
		b.params.AddLiquidityLimit, ErrAddLiquidityLimitReached, "liquidity_add")
}

func (b *Breaker) EnsureRemoveLiquidityLimit(asset types.AssetID, reserveBefore, amount *big.Int) error {
	if b.params.exempt(asset) {
		return nil
	}
	return b.trackLiquidity(limitRemove, asset, reserveBefore, amount,
		b.params.RemoveLiquidityLimit, ErrRemoveLiquidityLimitReached, "liquidity_remove")
}

// OnFinalize clears every accumulator touched during the block. Limit
// overrides persist across blocks.
func (b *Breaker) OnFinalize(height uint64) error {
	return b.state.ClearAccumulators()
}
