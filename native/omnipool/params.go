package omnipool

import (
	"fmt"
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
)

const (
	// DefaultAssetFee is 0.25% taken from the trade output.
	DefaultAssetFee = fixmath.Permill(2_500)
	// DefaultProtocolFee is 0.05% taken from the hub leg.
	DefaultProtocolFee = fixmath.Permill(500)
	// DefaultMaxInRatio bounds a single trade's input to reserve/3.
	DefaultMaxInRatio = 3
	// DefaultMaxOutRatio bounds a single trade's output to reserve/3.
	DefaultMaxOutRatio = 3
)

// Params are the engine's runtime parameters. Fee rates are injected per trade
// through a FeeSource; the values here are the static fallback.
type Params struct {
	// HubAssetID identifies the settlement asset all trades route through.
	HubAssetID types.AssetID
	// AssetFee is deducted from the output amount and retained in the reserve.
	AssetFee fixmath.Permill
	// ProtocolFee is deducted from the hub leg of every trade.
	ProtocolFee fixmath.Permill
	// MinTradingLimit is the smallest accepted trade amount.
	MinTradingLimit *big.Int
	// MinPoolLiquidity is the smallest accepted initial or remaining reserve.
	MinPoolLiquidity *big.Int
	// MaxInRatio caps amountIn at reserveIn/MaxInRatio.
	MaxInRatio uint64
	// MaxOutRatio caps amountOut at reserveOut/MaxOutRatio.
	MaxOutRatio uint64
	// FeeCollector receives the protocol fee remainder left after imbalance
	// paydown and unconsumed hook offers.
	FeeCollector crypto.Address
}

// DefaultParams returns the parameter set used when no configuration is
// supplied.
func DefaultParams() Params {
	return Params{
		HubAssetID:       1,
		AssetFee:         DefaultAssetFee,
		ProtocolFee:      DefaultProtocolFee,
		MinTradingLimit:  big.NewInt(1_000),
		MinPoolLiquidity: big.NewInt(1_000_000),
		MaxInRatio:       DefaultMaxInRatio,
		MaxOutRatio:      DefaultMaxOutRatio,
		FeeCollector:     crypto.ModuleAddress("omnipool/fees"),
	}
}

// Normalise fills zero values with defaults and validates the fee rates.
func (p *Params) Normalise() error {
	defaults := DefaultParams()
	if p.HubAssetID == 0 {
		p.HubAssetID = defaults.HubAssetID
	}
	if !p.AssetFee.IsValid() {
		return fmt.Errorf("omnipool: asset fee out of range: %d", p.AssetFee)
	}
	if !p.ProtocolFee.IsValid() {
		return fmt.Errorf("omnipool: protocol fee out of range: %d", p.ProtocolFee)
	}
	if p.MinTradingLimit == nil || p.MinTradingLimit.Sign() <= 0 {
		p.MinTradingLimit = defaults.MinTradingLimit
	}
	if p.MinPoolLiquidity == nil || p.MinPoolLiquidity.Sign() <= 0 {
		p.MinPoolLiquidity = defaults.MinPoolLiquidity
	}
	if p.MaxInRatio == 0 {
		p.MaxInRatio = defaults.MaxInRatio
	}
	if p.MaxOutRatio == 0 {
		p.MaxOutRatio = defaults.MaxOutRatio
	}
	if p.FeeCollector.IsZero() {
		p.FeeCollector = defaults.FeeCollector
	}
	return nil
}

// FeeSource supplies per-asset trade fee rates. The engine treats rates as an
// injected policy; DynamicFees derives them from oracle figures and the static
// Params act as the fallback source.
type FeeSource interface {
	TradeFees(asset types.AssetID) (assetFee, protocolFee fixmath.Permill)
}

type staticFees struct {
	assetFee    fixmath.Permill
	protocolFee fixmath.Permill
}

func (f staticFees) TradeFees(types.AssetID) (fixmath.Permill, fixmath.Permill) {
	return f.assetFee, f.protocolFee
}
