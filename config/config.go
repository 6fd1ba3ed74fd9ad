package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/BurntSushi/toml"

	"omnidex/core/types"
	"omnidex/fixmath"
	"omnidex/native/circuitbreaker"
	"omnidex/native/omnipool"
	"omnidex/native/router"
)

// Config is the runtime configuration loaded from a TOML file. Zero values are
// replaced with defaults by Normalise.
type Config struct {
	DataDir     string `toml:"DataDir"`
	Service     string `toml:"Service"`
	Environment string `toml:"Environment"`

	Logging        LoggingConfig        `toml:"Logging"`
	Omnipool       OmnipoolConfig       `toml:"Omnipool"`
	Router         RouterConfig         `toml:"Router"`
	CircuitBreaker CircuitBreakerConfig `toml:"CircuitBreaker"`
}

type LoggingConfig struct {
	Filename   string `toml:"Filename"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type OmnipoolConfig struct {
	HubAssetID         uint64 `toml:"HubAssetID"`
	AssetFeePermill    uint32 `toml:"AssetFeePermill"`
	ProtocolFeePermill uint32 `toml:"ProtocolFeePermill"`
	MinTradingLimit    string `toml:"MinTradingLimit"`
	MinPoolLiquidity   string `toml:"MinPoolLiquidity"`
	MaxInRatio         uint64 `toml:"MaxInRatio"`
	MaxOutRatio        uint64 `toml:"MaxOutRatio"`
}

type RouterConfig struct {
	MaxNumberOfTrades int    `toml:"MaxNumberOfTrades"`
	UpdateFeeAsset    uint64 `toml:"UpdateFeeAsset"`
	UpdateFee         string `toml:"UpdateFee"`
}

type CircuitBreakerConfig struct {
	TradeVolumeLimitBps     uint32   `toml:"TradeVolumeLimitBps"`
	AddLiquidityLimitBps    uint32   `toml:"AddLiquidityLimitBps"`
	RemoveLiquidityLimitBps uint32   `toml:"RemoveLiquidityLimitBps"`
	ExemptAssets            []uint64 `toml:"ExemptAssets"`
}

// Load reads the configuration file at path. A missing file yields the default
// configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.Normalise()
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalise()
	return cfg, nil
}

// Normalise fills zero values with defaults.
func (c *Config) Normalise() {
	if c.DataDir == "" {
		c.DataDir = "./omnidex-data"
	}
	if c.Service == "" {
		c.Service = "omnidex"
	}
	pool := omnipool.DefaultParams()
	if c.Omnipool.HubAssetID == 0 {
		c.Omnipool.HubAssetID = uint64(pool.HubAssetID)
	}
	if c.Omnipool.MinTradingLimit == "" {
		c.Omnipool.MinTradingLimit = pool.MinTradingLimit.String()
	}
	if c.Omnipool.MinPoolLiquidity == "" {
		c.Omnipool.MinPoolLiquidity = pool.MinPoolLiquidity.String()
	}
	if c.Omnipool.MaxInRatio == 0 {
		c.Omnipool.MaxInRatio = pool.MaxInRatio
	}
	if c.Omnipool.MaxOutRatio == 0 {
		c.Omnipool.MaxOutRatio = pool.MaxOutRatio
	}
	if c.Router.MaxNumberOfTrades == 0 {
		c.Router.MaxNumberOfTrades = router.DefaultMaxNumberOfTrades
	}
	if c.Router.UpdateFee == "" {
		c.Router.UpdateFee = "0"
	}
	if c.Router.UpdateFeeAsset == 0 {
		c.Router.UpdateFeeAsset = c.Omnipool.HubAssetID
	}
	breaker := circuitbreaker.DefaultParams()
	if c.CircuitBreaker.TradeVolumeLimitBps == 0 {
		c.CircuitBreaker.TradeVolumeLimitBps = breaker.TradeVolumeLimit
	}
	if c.CircuitBreaker.AddLiquidityLimitBps == 0 {
		c.CircuitBreaker.AddLiquidityLimitBps = breaker.AddLiquidityLimit
	}
	if c.CircuitBreaker.RemoveLiquidityLimitBps == 0 {
		c.CircuitBreaker.RemoveLiquidityLimitBps = breaker.RemoveLiquidityLimit
	}
	if c.CircuitBreaker.ExemptAssets == nil {
		c.CircuitBreaker.ExemptAssets = []uint64{c.Omnipool.HubAssetID}
	}
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: %s is not a non-negative decimal: %q", field, value)
	}
	return amount, nil
}

// OmnipoolParams converts the section into engine parameters.
func (c *Config) OmnipoolParams() (omnipool.Params, error) {
	minTrade, err := parseAmount("Omnipool.MinTradingLimit", c.Omnipool.MinTradingLimit)
	if err != nil {
		return omnipool.Params{}, err
	}
	minLiquidity, err := parseAmount("Omnipool.MinPoolLiquidity", c.Omnipool.MinPoolLiquidity)
	if err != nil {
		return omnipool.Params{}, err
	}
	params := omnipool.Params{
		HubAssetID:       types.AssetID(c.Omnipool.HubAssetID),
		AssetFee:         fixmath.Permill(c.Omnipool.AssetFeePermill),
		ProtocolFee:      fixmath.Permill(c.Omnipool.ProtocolFeePermill),
		MinTradingLimit:  minTrade,
		MinPoolLiquidity: minLiquidity,
		MaxInRatio:       c.Omnipool.MaxInRatio,
		MaxOutRatio:      c.Omnipool.MaxOutRatio,
	}
	if err := params.Normalise(); err != nil {
		return omnipool.Params{}, err
	}
	return params, nil
}

// RouterParams converts the section into engine parameters.
func (c *Config) RouterParams() (router.Params, error) {
	fee, err := parseAmount("Router.UpdateFee", c.Router.UpdateFee)
	if err != nil {
		return router.Params{}, err
	}
	params := router.Params{
		MaxNumberOfTrades: c.Router.MaxNumberOfTrades,
		UpdateFeeAsset:    types.AssetID(c.Router.UpdateFeeAsset),
		UpdateFee:         fee,
	}
	return params.Normalise(), nil
}

// BreakerParams converts the section into circuit breaker parameters.
func (c *Config) BreakerParams() (circuitbreaker.Params, error) {
	exempt := make([]types.AssetID, len(c.CircuitBreaker.ExemptAssets))
	for i, asset := range c.CircuitBreaker.ExemptAssets {
		exempt[i] = types.AssetID(asset)
	}
	params := circuitbreaker.Params{
		TradeVolumeLimit:     c.CircuitBreaker.TradeVolumeLimitBps,
		AddLiquidityLimit:    c.CircuitBreaker.AddLiquidityLimitBps,
		RemoveLiquidityLimit: c.CircuitBreaker.RemoveLiquidityLimitBps,
		ExemptAssets:         exempt,
	}
	if err := params.Validate(); err != nil {
		return circuitbreaker.Params{}, err
	}
	return params, nil
}
