package genesis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"omnidex/config"
	"omnidex/core/ledger"
	"omnidex/core/state"
	"omnidex/core/types"
	"omnidex/native/omnipool"
	"omnidex/native/stableswap"
	"omnidex/native/xyk"
	"omnidex/storage"
)

func testRuntime(t *testing.T) Runtime {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	led := ledger.New(mgr)
	registry := ledger.NewRegistry(mgr)

	pool, err := omnipool.NewEngine(omnipool.NewState(mgr), led, omnipool.DefaultParams())
	require.NoError(t, err)
	pool.SetRegistry(registry)
	pool.SetTxRunner(mgr)

	stable := stableswap.NewEngine(stableswap.NewState(mgr), led)
	stable.SetTxRunner(mgr)

	pairs := xyk.NewEngine(xyk.NewState(mgr), led)
	pairs.SetTxRunner(mgr)

	return Runtime{
		Ledger:     led,
		Registry:   registry,
		Omnipool:   pool,
		Stableswap: stable,
		XYK:        pairs,
	}
}

func testSpec() *config.Genesis {
	return &config.Genesis{
		HubAsset: 1,
		Omnipool: []config.GenesisAsset{
			{ID: 3, Reserve: "3000000000000000", PriceNum: 1, PriceDen: 1},
			{ID: 4, Reserve: "4000000000000000", PriceNum: 1, PriceDen: 1, Cap: "600000000000000000"},
		},
		Stableswap: []config.GenesisStablePool{
			{
				ShareAsset:    100,
				Amplification: 100,
				FeePermill:    2500,
				Assets:        []uint64{10, 11},
				Reserves:      []string{"1000000000000000", "1000000000000000"},
			},
		},
		XYK: []config.GenesisPair{
			{AssetA: 20, AssetB: 21, ReserveA: "1000000000000000", ReserveB: "500000000000000", FeePermill: 3000},
		},
	}
}

func TestApplySeedsAllPools(t *testing.T) {
	rt := testRuntime(t)
	require.NoError(t, Apply(testSpec(), rt))

	depth, err := rt.Omnipool.LiquidityDepth(types.AssetID(3))
	require.NoError(t, err)
	require.Equal(t, "3000000000000000", depth.String())

	asset, err := rt.Omnipool.State().GetAsset(types.AssetID(4))
	require.NoError(t, err)
	require.Equal(t, "600000000000000000", asset.Cap.String())

	stableDepth, err := rt.Stableswap.LiquidityDepth(types.AssetID(100), types.AssetID(10))
	require.NoError(t, err)
	require.Equal(t, "1000000000000000", stableDepth.String())

	pairDepth, err := rt.XYK.LiquidityDepth(types.AssetID(20), types.AssetID(21))
	require.NoError(t, err)
	require.Equal(t, "1000000000000000", pairDepth.String())

	require.True(t, rt.Registry.Exists(types.AssetID(1)))
	require.True(t, rt.Registry.Exists(types.AssetID(21)))
}

func TestApplyLeavesAuthorityEmpty(t *testing.T) {
	rt := testRuntime(t)
	require.NoError(t, Apply(testSpec(), rt))

	for _, asset := range []types.AssetID{10, 11, 20, 21} {
		balance, err := rt.Ledger.FreeBalance(Authority, asset)
		require.NoError(t, err)
		require.Equal(t, int64(0), balance.Int64())
	}
}

func TestApplyRejectsInvalidSpec(t *testing.T) {
	rt := testRuntime(t)
	spec := testSpec()
	spec.HubAsset = 0
	require.Error(t, Apply(spec, rt))
}

func TestApplyFailsOnDuplicatePool(t *testing.T) {
	rt := testRuntime(t)
	require.NoError(t, Apply(testSpec(), rt))

	spec := &config.Genesis{
		HubAsset: 1,
		XYK: []config.GenesisPair{
			{AssetA: 20, AssetB: 21, ReserveA: "10", ReserveB: "10"},
		},
	}
	err := Apply(spec, rt)
	require.ErrorIs(t, err, xyk.ErrPoolExists)
}
