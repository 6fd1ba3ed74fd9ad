package omnipool

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
	"omnidex/fixmath"
	"omnidex/native/common"
	"omnidex/storage"
)

const (
	hubAsset types.AssetID = 1
	asset3   types.AssetID = 3
	asset4   types.AssetID = 4
)

func testAddr(tag byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = tag
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

type testEnv struct {
	t      *testing.T
	engine *Engine
	ledger *ledger.Ledger
	mgr    *state.Manager
	events *events.Recorder
	trader crypto.Address
	lp     crypto.Address
}

func newTestEnv(t *testing.T, assetFee, protocolFee fixmath.Permill) *testEnv {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	led := ledger.New(mgr)
	params := DefaultParams()
	params.AssetFee = assetFee
	params.ProtocolFee = protocolFee
	engine, err := NewEngine(NewState(mgr), led, params)
	require.NoError(t, err)
	engine.SetTxRunner(mgr)
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	return &testEnv{
		t:      t,
		engine: engine,
		ledger: led,
		mgr:    mgr,
		events: recorder,
		trader: testAddr(0x01),
		lp:     testAddr(0x02),
	}
}

func (env *testEnv) addToken(asset types.AssetID, reserve *big.Int) {
	env.t.Helper()
	require.NoError(env.t, env.ledger.Mint(PoolAccount, asset, reserve))
	price := fixmath.NewRatio(big.NewInt(1), big.NewInt(1))
	require.NoError(env.t, env.engine.AddToken(asset, price, nil))
}

func (env *testEnv) fund(who crypto.Address, asset types.AssetID, amount *big.Int) {
	env.t.Helper()
	require.NoError(env.t, env.ledger.Mint(who, asset, amount))
}

func (env *testEnv) balance(who crypto.Address, asset types.AssetID) *big.Int {
	env.t.Helper()
	balance, err := env.ledger.FreeBalance(who, asset)
	require.NoError(env.t, err)
	return balance
}

// hubBacking asserts the pool account's hub balance equals the sum of all
// subpool hub reserves, the core accounting identity.
func (env *testEnv) hubBacking() {
	env.t.Helper()
	assets, err := env.engine.State().ListAssets()
	require.NoError(env.t, err)
	sum := big.NewInt(0)
	for _, id := range assets {
		st, err := env.engine.State().GetAsset(id)
		require.NoError(env.t, err)
		sum.Add(sum, st.HubReserve)
	}
	require.Equal(env.t, sum.String(), env.balance(PoolAccount, hubAsset).String())
}

func TestBuyMatchesObservedFixture(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, asset3, e12(1000))

	amountIn, err := env.engine.Buy(env.trader, asset3, asset4, e12(100), nil)
	require.NoError(t, err)
	require.Equal(t, "106194690265488", amountIn.String())

	require.Equal(t, new(big.Int).Sub(e12(1000), amountIn), env.balance(env.trader, asset3))
	require.Equal(t, e12(100), env.balance(env.trader, asset4))

	st3, err := env.engine.State().GetAsset(asset3)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(e12(3000), amountIn), st3.Reserve)
	st4, err := env.engine.State().GetAsset(asset4)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Sub(e12(4000), e12(100)), st4.Reserve)
	env.hubBacking()
}

func TestSellDeliversQuotedAmount(t *testing.T) {
	env := newTestEnv(t, 2_500, 500)
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, asset3, e12(100))

	quoted, err := env.engine.QuoteSell(asset3, asset4, e12(100))
	require.NoError(t, err)

	amountOut, err := env.engine.Sell(env.trader, asset3, asset4, e12(100), quoted)
	require.NoError(t, err)
	require.Equal(t, quoted, amountOut)
	require.Equal(t, amountOut, env.balance(env.trader, asset4))
	require.Equal(t, "0", env.balance(env.trader, asset3).String())

	require.Len(t, env.events.Events, 3) // two token listings, one sell
	sell, ok := env.events.Events[2].(events.OmnipoolSellExecuted)
	require.True(t, ok)
	require.Equal(t, amountOut, sell.AmountOut)
	env.hubBacking()
}

func TestSellSlippageBound(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, asset3, e12(100))

	quoted, err := env.engine.QuoteSell(asset3, asset4, e12(100))
	require.NoError(t, err)
	tooMuch := new(big.Int).Add(quoted, big.NewInt(1))

	_, err = env.engine.Sell(env.trader, asset3, asset4, e12(100), tooMuch)
	require.ErrorIs(t, err, ErrTradingLimitReached)
	require.Equal(t, e12(100), env.balance(env.trader, asset3))
}

func TestFailingHookRollsBackTrade(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, asset3, e12(100))
	env.engine.SetHooks(failingHooks{})

	_, err := env.engine.Sell(env.trader, asset3, asset4, e12(100), nil)
	require.ErrorIs(t, err, errHookRefused)

	// Transfers had already run when the hook fired; all rolled back.
	require.Equal(t, e12(100), env.balance(env.trader, asset3))
	require.Equal(t, "0", env.balance(env.trader, asset4).String())
	st3, err := env.engine.State().GetAsset(asset3)
	require.NoError(t, err)
	require.Equal(t, e12(3000), st3.Reserve)
}

var errHookRefused = errors.New("hook refused")

type failingHooks struct {
	common.NoopHooks
}

func (failingHooks) OnTrade(common.AssetInfo, common.AssetInfo) error { return errHookRefused }

func TestTradabilityFlags(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, asset3, e12(100))

	require.NoError(t, env.engine.SetAssetTradableState(asset4, CanSell|CanAddLiquidity|CanRemoveLiquidity))

	_, err := env.engine.Sell(env.trader, asset3, asset4, e12(100), nil)
	require.ErrorIs(t, err, ErrNotAllowed)
	_, err = env.engine.Buy(env.trader, asset3, asset4, e12(1), nil)
	require.ErrorIs(t, err, ErrNotAllowed)

	require.NoError(t, env.engine.SetAssetTradableState(asset4, TradabilityDefault))
	_, err = env.engine.Sell(env.trader, asset3, asset4, e12(100), nil)
	require.NoError(t, err)
}

func TestBuyingHubAssetForbidden(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.fund(env.trader, asset3, e12(100))

	_, err := env.engine.Sell(env.trader, asset3, hubAsset, e12(100), nil)
	require.ErrorIs(t, err, ErrNotAllowed)
	_, err = env.engine.Buy(env.trader, asset3, hubAsset, e12(1), nil)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestSellHubAssetMovesImbalance(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, hubAsset, e12(100))

	amountOut, err := env.engine.Sell(env.trader, hubAsset, asset4, e12(100), nil)
	require.NoError(t, err)
	require.True(t, amountOut.Sign() > 0)

	imbalance, err := env.engine.State().Imbalance()
	require.NoError(t, err)
	require.True(t, imbalance.Negative)
	require.Equal(t, e12(100), imbalance.Value)

	st4, err := env.engine.State().GetAsset(asset4)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(e12(4000), e12(100)), st4.HubReserve)
	env.hubBacking()
}

func TestProtocolFeePaysDownImbalance(t *testing.T) {
	env := newTestEnv(t, 0, 100_000) // 10% protocol fee
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, hubAsset, e12(1))
	env.fund(env.trader, asset3, e12(200))

	_, err := env.engine.Sell(env.trader, hubAsset, asset4, e12(1), nil)
	require.NoError(t, err)

	// The hub fee of the next trade exceeds the deficit and clears it.
	_, err = env.engine.Sell(env.trader, asset3, asset4, e12(100), nil)
	require.NoError(t, err)

	imbalance, err := env.engine.State().Imbalance()
	require.NoError(t, err)
	require.True(t, imbalance.IsZero())
	env.hubBacking()
}

func TestMaxInRatioBound(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, asset3, e12(2000))

	_, err := env.engine.Sell(env.trader, asset3, asset4, e12(1500), nil)
	require.ErrorIs(t, err, ErrMaxInRatioExceeded)
}

func TestAddRemoveLiquidityRoundTrip(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.fund(env.lp, asset3, e12(100))

	positionID, shares, err := env.engine.AddLiquidity(env.lp, asset3, e12(100))
	require.NoError(t, err)
	require.Equal(t, e12(100), shares)
	require.Equal(t, "0", env.balance(env.lp, asset3).String())
	env.hubBacking()

	amount, hubAmount, err := env.engine.RemoveLiquidity(env.lp, positionID, shares)
	require.NoError(t, err)
	require.Equal(t, e12(100), amount)
	require.Equal(t, "0", hubAmount.String())
	require.Equal(t, e12(100), env.balance(env.lp, asset3))

	_, err = env.engine.State().GetPosition(positionID)
	require.ErrorIs(t, err, ErrPositionNotFound)
	env.hubBacking()
}

func TestRemoveLiquidityAfterPriceDrop(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.lp, asset4, e12(100))
	env.fund(env.trader, asset4, e12(1000))

	positionID, shares, err := env.engine.AddLiquidity(env.lp, asset4, e12(100))
	require.NoError(t, err)

	// Selling asset4 into the pool lowers its spot price below the entry.
	_, err = env.engine.Sell(env.trader, asset4, asset3, e12(500), nil)
	require.NoError(t, err)

	amount, _, err := env.engine.RemoveLiquidity(env.lp, positionID, shares)
	require.NoError(t, err)

	st4, err := env.engine.State().GetAsset(asset4)
	require.NoError(t, err)
	require.True(t, st4.ProtocolShares.Sign() > 0, "protocol retained no shares after price drop")
	require.True(t, amount.Cmp(e12(100)) < 0, "payout not reduced by divergence adjustment")
	env.hubBacking()
}

func TestWeightCapBlocksLiquidity(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))

	// List asset4 capped at 60% of total hub liquidity.
	cap := new(big.Int).Div(new(big.Int).Mul(WeightCapDenominator, big.NewInt(60)), big.NewInt(100))
	require.NoError(t, env.ledger.Mint(PoolAccount, asset4, e12(4000)))
	require.NoError(t, env.engine.AddToken(asset4, fixmath.NewRatio(big.NewInt(1), big.NewInt(1)), cap))

	env.fund(env.lp, asset4, e12(2000))
	_, _, err := env.engine.AddLiquidity(env.lp, asset4, e12(2000))
	require.ErrorIs(t, err, ErrWeightCapExceeded)

	_, _, err = env.engine.AddLiquidity(env.lp, asset4, e12(100))
	require.NoError(t, err)
}

func TestTransferPosition(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.fund(env.lp, asset3, e12(100))

	positionID, shares, err := env.engine.AddLiquidity(env.lp, asset3, e12(100))
	require.NoError(t, err)

	require.ErrorIs(t, env.engine.TransferPosition(env.trader, env.lp, positionID), ErrForbidden)
	require.NoError(t, env.engine.TransferPosition(env.lp, env.trader, positionID))

	_, _, err = env.engine.RemoveLiquidity(env.lp, positionID, shares)
	require.ErrorIs(t, err, ErrForbidden)
	_, _, err = env.engine.RemoveLiquidity(env.trader, positionID, shares)
	require.NoError(t, err)
}

func TestAddTokenValidation(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	price := fixmath.NewRatio(big.NewInt(1), big.NewInt(1))

	require.ErrorIs(t, env.engine.AddToken(hubAsset, price, nil), ErrNotAllowed)
	require.ErrorIs(t, env.engine.AddToken(asset3, price, nil), ErrMissingPoolLiquidity)

	env.addToken(asset3, e12(3000))
	require.ErrorIs(t, env.engine.AddToken(asset3, price, nil), ErrAssetAlreadyAdded)

	require.NoError(t, env.ledger.Mint(PoolAccount, asset4, e12(10)))
	zero := fixmath.NewRatio(big.NewInt(0), big.NewInt(1))
	require.ErrorIs(t, env.engine.AddToken(asset4, zero, nil), ErrInvalidInitialPrice)
}

func TestRefundRefusedAsset(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	require.NoError(t, env.ledger.Mint(PoolAccount, asset4, e12(10)))

	require.ErrorIs(t, env.engine.RefundRefusedAsset(asset3, env.trader), ErrAssetAlreadyAdded)
	require.NoError(t, env.engine.RefundRefusedAsset(asset4, env.trader))
	require.Equal(t, e12(10), env.balance(env.trader, asset4))
}

func TestPausedModuleRejectsOperations(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.addToken(asset3, e12(3000))
	env.addToken(asset4, e12(4000))
	env.fund(env.trader, asset3, e12(100))
	env.engine.SetPauses(pausedView{})

	_, err := env.engine.Sell(env.trader, asset3, asset4, e12(100), nil)
	require.ErrorIs(t, err, common.ErrModulePaused)
}

type pausedView struct{}

func (pausedView) IsPaused(string) bool { return true }
