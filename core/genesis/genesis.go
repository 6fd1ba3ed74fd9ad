package genesis

import (
	"fmt"
	"math/big"

	"omnidex/config"
	"omnidex/core/ledger"
	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
	"omnidex/native/omnipool"
	"omnidex/native/stableswap"
	"omnidex/native/xyk"
)

// Authority is the protocol account that holds genesis deposits while the
// pools are created. It ends every Apply with a zero balance.
var Authority = crypto.ModuleAddress("genesis")

// Runtime bundles the collaborators genesis application writes into.
type Runtime struct {
	Ledger     *ledger.Ledger
	Registry   *ledger.Registry
	Omnipool   *omnipool.Engine
	Stableswap *stableswap.Engine
	XYK        *xyk.Engine
}

// Apply seeds the runtime state from a validated genesis description: assets
// are registered, reserves minted, and every listed pool created.
func Apply(spec *config.Genesis, rt Runtime) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := registerAssets(spec, rt.Registry); err != nil {
		return err
	}
	if err := applyOmnipool(spec, rt); err != nil {
		return err
	}
	if err := applyStableswap(spec, rt); err != nil {
		return err
	}
	return applyXYK(spec, rt)
}

func registerAssets(spec *config.Genesis, registry *ledger.Registry) error {
	if registry == nil {
		return nil
	}
	register := func(id uint64) error {
		asset := types.AssetID(id)
		if registry.Exists(asset) {
			return nil
		}
		return registry.Register(asset, ledger.AssetMetadata{Decimals: 12, Sufficient: true})
	}
	if err := register(spec.HubAsset); err != nil {
		return err
	}
	for _, asset := range spec.Omnipool {
		if err := register(asset.ID); err != nil {
			return err
		}
	}
	for _, pool := range spec.Stableswap {
		if err := register(pool.ShareAsset); err != nil {
			return err
		}
		for _, asset := range pool.Assets {
			if err := register(asset); err != nil {
				return err
			}
		}
	}
	for _, pair := range spec.XYK {
		if err := register(pair.AssetA); err != nil {
			return err
		}
		if err := register(pair.AssetB); err != nil {
			return err
		}
	}
	return nil
}

func applyOmnipool(spec *config.Genesis, rt Runtime) error {
	if rt.Omnipool == nil {
		return nil
	}
	for _, asset := range spec.Omnipool {
		reserve, err := config.Amount(asset.Reserve)
		if err != nil {
			return err
		}
		id := types.AssetID(asset.ID)
		if err := rt.Ledger.Mint(omnipool.PoolAccount, id, reserve); err != nil {
			return fmt.Errorf("genesis: fund omnipool asset %d: %w", asset.ID, err)
		}
		price := fixmath.NewRatio(
			new(big.Int).SetUint64(asset.PriceNum),
			new(big.Int).SetUint64(asset.PriceDen),
		)
		var cap *big.Int
		if asset.Cap != "" {
			if cap, err = config.Amount(asset.Cap); err != nil {
				return err
			}
		}
		if err := rt.Omnipool.AddToken(id, price, cap); err != nil {
			return fmt.Errorf("genesis: add omnipool asset %d: %w", asset.ID, err)
		}
		if asset.Tradable != 0 {
			if err := rt.Omnipool.SetAssetTradableState(id, omnipool.Tradability(asset.Tradable)); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyStableswap(spec *config.Genesis, rt Runtime) error {
	if rt.Stableswap == nil {
		return nil
	}
	for _, pool := range spec.Stableswap {
		assets := make([]types.AssetID, len(pool.Assets))
		amounts := make([]*big.Int, len(pool.Reserves))
		for i, id := range pool.Assets {
			assets[i] = types.AssetID(id)
			amount, err := config.Amount(pool.Reserves[i])
			if err != nil {
				return err
			}
			if err := rt.Ledger.Mint(Authority, assets[i], amount); err != nil {
				return err
			}
			amounts[i] = amount
		}
		err := rt.Stableswap.CreatePool(
			Authority, types.AssetID(pool.ShareAsset),
			assets, pool.Amplification, fixmath.Permill(pool.FeePermill), amounts,
		)
		if err != nil {
			return fmt.Errorf("genesis: create stableswap pool %d: %w", pool.ShareAsset, err)
		}
	}
	return nil
}

func applyXYK(spec *config.Genesis, rt Runtime) error {
	if rt.XYK == nil {
		return nil
	}
	for _, pair := range spec.XYK {
		reserveA, err := config.Amount(pair.ReserveA)
		if err != nil {
			return err
		}
		reserveB, err := config.Amount(pair.ReserveB)
		if err != nil {
			return err
		}
		assetA, assetB := types.AssetID(pair.AssetA), types.AssetID(pair.AssetB)
		if err := rt.Ledger.Mint(Authority, assetA, reserveA); err != nil {
			return err
		}
		if err := rt.Ledger.Mint(Authority, assetB, reserveB); err != nil {
			return err
		}
		err = rt.XYK.CreatePool(Authority, assetA, reserveA, assetB, reserveB, fixmath.Permill(pair.FeePermill))
		if err != nil {
			return fmt.Errorf("genesis: create xyk pair %d/%d: %w", pair.AssetA, pair.AssetB, err)
		}
	}
	return nil
}
