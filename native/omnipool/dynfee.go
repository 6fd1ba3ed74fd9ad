package omnipool

import (
	"math/big"

	"omnidex/core/types"
	"omnidex/fixmath"
	"omnidex/native/common"
)

// DynamicFees derives per-asset fee rates from oracle volume and liquidity
// figures. The rate grows linearly with the fraction of liquidity traded,
// clamped between the configured floor and ceiling. Any oracle failure falls
// back to the floor so a broken oracle can never block trading.
type DynamicFees struct {
	oracle common.Oracle

	MinAssetFee    fixmath.Permill
	MaxAssetFee    fixmath.Permill
	MinProtocolFee fixmath.Permill
	MaxProtocolFee fixmath.Permill
}

func NewDynamicFees(oracle common.Oracle, params Params) *DynamicFees {
	return &DynamicFees{
		oracle:         oracle,
		MinAssetFee:    params.AssetFee,
		MaxAssetFee:    fixmath.Permill(50_000),
		MinProtocolFee: params.ProtocolFee,
		MaxProtocolFee: fixmath.Permill(10_000),
	}
}

func (d *DynamicFees) TradeFees(asset types.AssetID) (fixmath.Permill, fixmath.Permill) {
	load := d.volumeShare(asset)
	return scaleFee(d.MinAssetFee, d.MaxAssetFee, load), scaleFee(d.MinProtocolFee, d.MaxProtocolFee, load)
}

// volumeShare returns the traded fraction of liquidity in permill, capped at
// one.
func (d *DynamicFees) volumeShare(asset types.AssetID) fixmath.Permill {
	if d.oracle == nil {
		return 0
	}
	in, out, err := d.oracle.AssetVolume(asset)
	if err != nil {
		return 0
	}
	liquidity, err := d.oracle.AssetLiquidity(asset)
	if err != nil || liquidity == nil || liquidity.Sign() == 0 {
		return 0
	}
	volume := new(big.Int).Add(in, out)
	share, err := fixmath.BigMulDiv(volume, big.NewInt(fixmath.PermillDenominator), liquidity, fixmath.Down)
	if err != nil || share.Cmp(big.NewInt(fixmath.PermillDenominator)) > 0 {
		return fixmath.Permill(fixmath.PermillDenominator)
	}
	return fixmath.Permill(share.Uint64())
}

func scaleFee(min, max fixmath.Permill, load fixmath.Permill) fixmath.Permill {
	if max <= min {
		return min
	}
	span := uint64(max - min)
	return min + fixmath.Permill(span*uint64(load)/fixmath.PermillDenominator)
}
