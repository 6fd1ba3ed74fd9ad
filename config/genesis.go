package config

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// Genesis describes the pools seeded at chain start. Amounts are decimal
// strings in base units.
type Genesis struct {
	HubAsset   uint64              `yaml:"hubAsset"`
	Omnipool   []GenesisAsset      `yaml:"omnipool"`
	Stableswap []GenesisStablePool `yaml:"stableswap"`
	XYK        []GenesisPair       `yaml:"xyk"`
}

type GenesisAsset struct {
	ID       uint64 `yaml:"id"`
	Reserve  string `yaml:"reserve"`
	PriceNum uint64 `yaml:"priceNum"`
	PriceDen uint64 `yaml:"priceDen"`
	// Cap is the 1e18-scaled hub weight cap; empty means uncapped.
	Cap      string `yaml:"cap,omitempty"`
	Tradable uint8  `yaml:"tradable,omitempty"`
}

type GenesisStablePool struct {
	ShareAsset    uint64   `yaml:"shareAsset"`
	Amplification uint64   `yaml:"amplification"`
	FeePermill    uint32   `yaml:"feePermill"`
	Assets        []uint64 `yaml:"assets"`
	Reserves      []string `yaml:"reserves"`
}

type GenesisPair struct {
	AssetA     uint64 `yaml:"assetA"`
	AssetB     uint64 `yaml:"assetB"`
	ReserveA   string `yaml:"reserveA"`
	ReserveB   string `yaml:"reserveB"`
	FeePermill uint32 `yaml:"feePermill"`
}

// LoadGenesis reads and validates a YAML genesis pool description.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	genesis := &Genesis{}
	if err := yaml.Unmarshal(raw, genesis); err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	if err := genesis.Validate(); err != nil {
		return nil, err
	}
	return genesis, nil
}

func (g *Genesis) Validate() error {
	if g.HubAsset == 0 {
		return fmt.Errorf("genesis: hubAsset must be set")
	}
	seen := map[uint64]bool{}
	for _, asset := range g.Omnipool {
		if asset.ID == 0 || asset.ID == g.HubAsset {
			return fmt.Errorf("genesis: omnipool asset id %d invalid", asset.ID)
		}
		if seen[asset.ID] {
			return fmt.Errorf("genesis: omnipool asset %d listed twice", asset.ID)
		}
		seen[asset.ID] = true
		if _, err := parseAmount("omnipool reserve", asset.Reserve); err != nil {
			return err
		}
		if asset.PriceNum == 0 || asset.PriceDen == 0 {
			return fmt.Errorf("genesis: omnipool asset %d price must be positive", asset.ID)
		}
		if asset.Cap != "" {
			if _, err := parseAmount("omnipool cap", asset.Cap); err != nil {
				return err
			}
		}
	}
	for _, pool := range g.Stableswap {
		if pool.ShareAsset == 0 {
			return fmt.Errorf("genesis: stableswap share asset must be set")
		}
		if len(pool.Assets) != len(pool.Reserves) {
			return fmt.Errorf("genesis: stableswap pool %d has %d assets but %d reserves",
				pool.ShareAsset, len(pool.Assets), len(pool.Reserves))
		}
		for _, reserve := range pool.Reserves {
			if _, err := parseAmount("stableswap reserve", reserve); err != nil {
				return err
			}
		}
	}
	for _, pair := range g.XYK {
		if pair.AssetA == pair.AssetB {
			return fmt.Errorf("genesis: xyk pair %d/%d has identical assets", pair.AssetA, pair.AssetB)
		}
		if _, err := parseAmount("xyk reserveA", pair.ReserveA); err != nil {
			return err
		}
		if _, err := parseAmount("xyk reserveB", pair.ReserveB); err != nil {
			return err
		}
	}
	return nil
}

// Amount parses a genesis amount string. Validate has already checked the
// format for fields it covers.
func Amount(value string) (*big.Int, error) {
	return parseAmount("amount", value)
}
