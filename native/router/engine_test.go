package router

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"omnidex/core/events"
	"omnidex/core/ledger"
	"omnidex/core/state"
	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/storage"
)

const (
	asset1 types.AssetID = 1
	asset2 types.AssetID = 2
	asset3 types.AssetID = 3
)

func e12(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000))
}

func testAddr(tag byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = tag
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

// rateExecutor settles trades at a fixed num/den exchange rate against a sink
// account. shortPay makes it deliver one unit less than quoted, exercising the
// conservation check; quoteErr makes every quote fail, standing in for a pool
// that does not list the pair.
type rateExecutor struct {
	ledger   *ledger.Ledger
	sink     crypto.Address
	num      int64
	den      int64
	depth    *big.Int
	shortPay bool
	quoteErr error
}

var _ TradeExecutor = (*rateExecutor)(nil)

func (m *rateExecutor) CalculateSell(pool PoolKind, assetIn, assetOut types.AssetID, amountIn *big.Int) (*big.Int, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(m.num))
	return out.Div(out, big.NewInt(m.den)), nil
}

func (m *rateExecutor) CalculateBuy(pool PoolKind, assetIn, assetOut types.AssetID, amountOut *big.Int) (*big.Int, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	in := new(big.Int).Mul(amountOut, big.NewInt(m.den))
	in.Add(in, big.NewInt(m.num-1))
	return in.Div(in, big.NewInt(m.num)), nil
}

func (m *rateExecutor) ExecuteSell(who crypto.Address, pool PoolKind, assetIn, assetOut types.AssetID, amountIn, minAmountOut *big.Int) error {
	out, err := m.CalculateSell(pool, assetIn, assetOut, amountIn)
	if err != nil {
		return err
	}
	if m.shortPay {
		out = new(big.Int).Sub(out, big.NewInt(1))
	}
	if err := m.ledger.Transfer(who, m.sink, assetIn, amountIn); err != nil {
		return err
	}
	return m.ledger.Mint(who, assetOut, out)
}

func (m *rateExecutor) ExecuteBuy(who crypto.Address, pool PoolKind, assetIn, assetOut types.AssetID, amountOut, maxAmountIn *big.Int) error {
	in, err := m.CalculateBuy(pool, assetIn, assetOut, amountOut)
	if err != nil {
		return err
	}
	if err := m.ledger.Transfer(who, m.sink, assetIn, in); err != nil {
		return err
	}
	return m.ledger.Mint(who, assetOut, amountOut)
}

func (m *rateExecutor) LiquidityDepth(pool PoolKind, asset types.AssetID, pairedWith types.AssetID) (*big.Int, error) {
	return new(big.Int).Set(m.depth), nil
}

type testEnv struct {
	t        *testing.T
	engine   *Engine
	ledger   *ledger.Ledger
	events   *events.Recorder
	trader   crypto.Address
	params   Params
	omnipool *rateExecutor
	xyk      *rateExecutor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	led := ledger.New(mgr)
	params := DefaultParams()
	params.UpdateFee = big.NewInt(1000)
	engine := NewEngine(NewState(mgr), led, params)
	engine.SetTxRunner(mgr)
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)

	sink := crypto.ModuleAddress("test/pool")
	omni := &rateExecutor{ledger: led, sink: sink, num: 2, den: 1, depth: e12(100)}
	xyk := &rateExecutor{ledger: led, sink: sink, num: 3, den: 1, depth: e12(100)}
	engine.RegisterExecutor(KindOmnipool, omni)
	engine.RegisterExecutor(KindXYK, xyk)

	return &testEnv{
		t:        t,
		engine:   engine,
		ledger:   led,
		events:   recorder,
		trader:   testAddr(0x07),
		params:   params,
		omnipool: omni,
		xyk:      xyk,
	}
}

func (env *testEnv) balance(asset types.AssetID) *big.Int {
	env.t.Helper()
	b, err := env.ledger.FreeBalance(env.trader, asset)
	require.NoError(env.t, err)
	return b
}

func twoHopRoute() []Trade {
	return []Trade{
		{Pool: OmnipoolKind(), AssetIn: asset1, AssetOut: asset2},
		{Pool: XYKKind(), AssetIn: asset2, AssetOut: asset3},
	}
}

func TestSellExecutesMultiHopRoute(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Mint(env.trader, asset1, e12(10)))

	amountOut, err := env.engine.Sell(env.trader, asset1, asset3, e12(10), nil, twoHopRoute())
	require.NoError(t, err)
	require.Equal(t, e12(60), amountOut)

	require.Equal(t, int64(0), env.balance(asset1).Int64())
	require.Equal(t, int64(0), env.balance(asset2).Int64())
	require.Equal(t, e12(60), env.balance(asset3))

	require.Len(t, env.events.Events, 1)
	executed, ok := env.events.Events[0].(events.RouteExecuted)
	require.True(t, ok)
	require.Equal(t, e12(60), executed.AmountOut)
}

func TestBuyComputesAmountsInReverse(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Mint(env.trader, asset1, e12(10)))

	amountIn, err := env.engine.Buy(env.trader, asset1, asset3, e12(60), e12(10), twoHopRoute())
	require.NoError(t, err)
	require.Equal(t, e12(10), amountIn)

	require.Equal(t, int64(0), env.balance(asset1).Int64())
	require.Equal(t, e12(60), env.balance(asset3))
}

func TestSellDefaultsToDirectOmnipoolRoute(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Mint(env.trader, asset1, e12(10)))

	route, err := env.engine.GetRoute(asset1, asset3)
	require.NoError(t, err)
	require.Len(t, route, 1)
	require.Equal(t, KindOmnipool, route[0].Pool.Tag)

	amountOut, err := env.engine.Sell(env.trader, asset1, asset3, e12(10), nil, nil)
	require.NoError(t, err)
	require.Equal(t, e12(20), amountOut)
}

func TestRouteValidation(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Mint(env.trader, asset1, e12(10)))

	wrongEntry := []Trade{{Pool: OmnipoolKind(), AssetIn: asset2, AssetOut: asset3}}
	_, err := env.engine.Sell(env.trader, asset1, asset3, e12(1), nil, wrongEntry)
	require.ErrorIs(t, err, ErrInvalidRoute)

	broken := []Trade{
		{Pool: OmnipoolKind(), AssetIn: asset1, AssetOut: asset2},
		{Pool: XYKKind(), AssetIn: asset1, AssetOut: asset3},
	}
	_, err = env.engine.Sell(env.trader, asset1, asset3, e12(1), nil, broken)
	require.ErrorIs(t, err, ErrInvalidRoute)

	long := make([]Trade, 6)
	for i := range long {
		long[i] = Trade{
			Pool:     OmnipoolKind(),
			AssetIn:  types.AssetID(i + 1),
			AssetOut: types.AssetID(i + 2),
		}
	}
	_, err = env.engine.Sell(env.trader, asset1, types.AssetID(7), e12(1), nil, long)
	require.ErrorIs(t, err, ErrInvalidRouteLength)
}

func TestSellSlippageBound(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Mint(env.trader, asset1, e12(10)))

	tooMuch := new(big.Int).Add(e12(60), big.NewInt(1))
	_, err := env.engine.Sell(env.trader, asset1, asset3, e12(10), tooMuch, twoHopRoute())
	require.ErrorIs(t, err, ErrTradingLimitReached)
	require.Equal(t, e12(10), env.balance(asset1))
}

func TestShortPayingPoolAbortsRoute(t *testing.T) {
	env := newTestEnv(t)
	env.xyk.shortPay = true
	require.NoError(t, env.ledger.Mint(env.trader, asset1, e12(10)))

	_, err := env.engine.Sell(env.trader, asset1, asset3, e12(10), nil, twoHopRoute())
	require.ErrorIs(t, err, ErrInvalidRouteExecution)

	// The first hop already settled when the second diverged; the whole route
	// must roll back.
	require.Equal(t, e12(10), env.balance(asset1))
	require.Equal(t, int64(0), env.balance(asset2).Int64())
	require.Equal(t, int64(0), env.balance(asset3).Int64())
}

func TestUnregisteredPoolKindRejected(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Mint(env.trader, asset1, e12(1)))

	route := []Trade{{Pool: StableswapKind(poolShare), AssetIn: asset1, AssetOut: asset3}}
	_, err := env.engine.Sell(env.trader, asset1, asset3, e12(1), nil, route)
	require.ErrorIs(t, err, ErrPoolNotRegistered)
}

const poolShare types.AssetID = 50

func TestSetRouteFreeWhenDominating(t *testing.T) {
	env := newTestEnv(t)
	proposed := []Trade{{Pool: XYKKind(), AssetIn: asset1, AssetOut: asset3}}

	require.NoError(t, env.engine.SetRoute(env.trader, asset1, asset3, proposed))

	route, err := env.engine.GetRoute(asset1, asset3)
	require.NoError(t, err)
	require.Len(t, route, 1)
	require.Equal(t, KindXYK, route[0].Pool.Tag)

	collected, err := env.ledger.FreeBalance(env.params.FeeCollector, env.params.UpdateFeeAsset)
	require.NoError(t, err)
	require.Equal(t, int64(0), collected.Int64())

	updated, ok := env.events.Events[len(env.events.Events)-1].(events.RouteUpdated)
	require.True(t, ok)
	require.False(t, updated.Paid)
}

func TestSetRouteChargedWhenNotDominating(t *testing.T) {
	env := newTestEnv(t)
	half := &rateExecutor{ledger: env.ledger, sink: crypto.ModuleAddress("test/pool"), num: 1, den: 2, depth: e12(100)}
	env.engine.RegisterExecutor(KindStableswap, half)
	require.NoError(t, env.ledger.Mint(env.trader, env.params.UpdateFeeAsset, big.NewInt(1000)))

	proposed := []Trade{{Pool: StableswapKind(poolShare), AssetIn: asset1, AssetOut: asset3}}
	require.NoError(t, env.engine.SetRoute(env.trader, asset1, asset3, proposed))

	collected, err := env.ledger.FreeBalance(env.params.FeeCollector, env.params.UpdateFeeAsset)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), collected)

	updated, ok := env.events.Events[len(env.events.Events)-1].(events.RouteUpdated)
	require.True(t, ok)
	require.True(t, updated.Paid)
}

func TestSetRouteRejectsUnquotablePair(t *testing.T) {
	env := newTestEnv(t)
	env.xyk.quoteErr = errors.New("pair not listed")
	require.NoError(t, env.ledger.Mint(env.trader, env.params.UpdateFeeAsset, big.NewInt(1000)))

	proposed := []Trade{{Pool: XYKKind(), AssetIn: asset1, AssetOut: asset3}}
	err := env.engine.SetRoute(env.trader, asset1, asset3, proposed)
	require.ErrorIs(t, err, ErrInvalidRoute)

	// Nothing was cached and no fee was taken.
	route, err := env.engine.GetRoute(asset1, asset3)
	require.NoError(t, err)
	require.Len(t, route, 1)
	require.Equal(t, KindOmnipool, route[0].Pool.Tag)

	collected, err := env.ledger.FreeBalance(env.params.FeeCollector, env.params.UpdateFeeAsset)
	require.NoError(t, err)
	require.Equal(t, int64(0), collected.Int64())
}

func TestStoredRouteServesReverseDirection(t *testing.T) {
	env := newTestEnv(t)
	proposed := []Trade{
		{Pool: XYKKind(), AssetIn: asset1, AssetOut: asset2},
		{Pool: XYKKind(), AssetIn: asset2, AssetOut: asset3},
	}
	require.NoError(t, env.engine.SetRoute(env.trader, asset1, asset3, proposed))

	route, err := env.engine.GetRoute(asset3, asset1)
	require.NoError(t, err)
	require.Len(t, route, 2)
	require.Equal(t, asset3, route[0].AssetIn)
	require.Equal(t, asset2, route[0].AssetOut)
	require.Equal(t, asset1, route[1].AssetOut)
}

func TestCorruptedRouteFallsBackToDefault(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	led := ledger.New(mgr)
	engine := NewEngine(NewState(mgr), led, DefaultParams())
	engine.RegisterExecutor(KindOmnipool, &rateExecutor{ledger: led, sink: testAddr(0x09), num: 1, den: 1, depth: e12(1)})

	tampered := routeRecord{
		Hops:     []tradeRecord{{Tag: uint8(KindXYK), AssetIn: uint64(asset1), AssetOut: uint64(asset3)}},
		Checksum: []byte{0xde, 0xad},
	}
	require.NoError(t, mgr.KVPut(routeKey(asset1, asset3), tampered))

	_, _, err := NewState(mgr).GetRoute(asset1, asset3)
	require.ErrorIs(t, err, ErrRouteCorrupted)

	route, err := engine.GetRoute(asset1, asset3)
	require.NoError(t, err)
	require.Len(t, route, 1)
	require.Equal(t, KindOmnipool, route[0].Pool.Tag)
}
