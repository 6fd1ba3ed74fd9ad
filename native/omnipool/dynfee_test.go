package omnipool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"omnidex/core/types"
	"omnidex/fixmath"
)

type stubOracle struct {
	in        *big.Int
	out       *big.Int
	liquidity *big.Int
	err       error
}

func (o stubOracle) AssetVolume(types.AssetID) (*big.Int, *big.Int, error) {
	return o.in, o.out, o.err
}

func (o stubOracle) AssetLiquidity(types.AssetID) (*big.Int, error) {
	return o.liquidity, o.err
}

func (o stubOracle) Price(types.AssetID, types.AssetID) (fixmath.Ratio, error) {
	return fixmath.Ratio{}, o.err
}

func TestDynamicFeesFloorWhenIdle(t *testing.T) {
	fees := NewDynamicFees(stubOracle{
		in:        big.NewInt(0),
		out:       big.NewInt(0),
		liquidity: big.NewInt(1_000_000),
	}, DefaultParams())

	assetFee, protocolFee := fees.TradeFees(types.AssetID(2))
	require.Equal(t, DefaultAssetFee, assetFee)
	require.Equal(t, DefaultProtocolFee, protocolFee)
}

func TestDynamicFeesScaleWithVolume(t *testing.T) {
	fees := NewDynamicFees(stubOracle{
		in:        big.NewInt(200_000),
		out:       big.NewInt(300_000),
		liquidity: big.NewInt(1_000_000),
	}, DefaultParams())

	assetFee, protocolFee := fees.TradeFees(types.AssetID(2))
	require.Equal(t, fixmath.Permill(26_250), assetFee)
	require.Equal(t, fixmath.Permill(5_250), protocolFee)
}

func TestDynamicFeesCapAtCeiling(t *testing.T) {
	fees := NewDynamicFees(stubOracle{
		in:        big.NewInt(900_000),
		out:       big.NewInt(900_000),
		liquidity: big.NewInt(1_000_000),
	}, DefaultParams())

	assetFee, protocolFee := fees.TradeFees(types.AssetID(2))
	require.Equal(t, fees.MaxAssetFee, assetFee)
	require.Equal(t, fees.MaxProtocolFee, protocolFee)
}

func TestDynamicFeesOracleFailureFallsBack(t *testing.T) {
	fees := NewDynamicFees(stubOracle{err: errors.New("oracle offline")}, DefaultParams())

	assetFee, protocolFee := fees.TradeFees(types.AssetID(2))
	require.Equal(t, DefaultAssetFee, assetFee)
	require.Equal(t, DefaultProtocolFee, protocolFee)
}

func TestDynamicFeesNilOracle(t *testing.T) {
	fees := NewDynamicFees(nil, DefaultParams())

	assetFee, protocolFee := fees.TradeFees(types.AssetID(2))
	require.Equal(t, DefaultAssetFee, assetFee)
	require.Equal(t, DefaultProtocolFee, protocolFee)
}
