package xyk

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"omnidex/core/ledger"
	"omnidex/core/state"
	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
	"omnidex/storage"
)

const (
	assetDOT types.AssetID = 20
	assetUSD types.AssetID = 21
)

func e12(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000))
}

func testAddr(tag byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = tag
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

type testEnv struct {
	t      *testing.T
	engine *Engine
	ledger *ledger.Ledger
	lp     crypto.Address
	trader crypto.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	led := ledger.New(mgr)
	engine := NewEngine(NewState(mgr), led)
	engine.SetTxRunner(mgr)
	return &testEnv{
		t:      t,
		engine: engine,
		ledger: led,
		lp:     testAddr(0x01),
		trader: testAddr(0x02),
	}
}

func (env *testEnv) createPool(amountDOT, amountUSD *big.Int, fee fixmath.Permill) {
	env.t.Helper()
	require.NoError(env.t, env.ledger.Mint(env.lp, assetDOT, amountDOT))
	require.NoError(env.t, env.ledger.Mint(env.lp, assetUSD, amountUSD))
	err := env.engine.CreatePool(env.lp, assetDOT, amountDOT, assetUSD, amountUSD, fee)
	require.NoError(env.t, err)
}

func (env *testEnv) invariant() *big.Int {
	env.t.Helper()
	account := PoolAccount(assetDOT, assetUSD)
	dot, err := env.ledger.FreeBalance(account, assetDOT)
	require.NoError(env.t, err)
	usd, err := env.ledger.FreeBalance(account, assetUSD)
	require.NoError(env.t, err)
	return new(big.Int).Mul(dot, usd)
}

func TestCreatePoolSeedsReservesAndShares(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(500), 0)

	depth, err := env.engine.LiquidityDepth(assetDOT, assetUSD)
	require.NoError(t, err)
	require.Equal(t, e12(1000), depth)

	pool, err := env.engine.state.GetPool(assetUSD, assetDOT)
	require.NoError(t, err)
	require.Equal(t, assetDOT, pool.AssetA)
	require.Equal(t, e12(1000), pool.TotalShares)

	held, err := env.engine.state.Shares(assetDOT, assetUSD, env.lp)
	require.NoError(t, err)
	require.Equal(t, e12(1000), held)
}

func TestCreatePoolValidation(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.CreatePool(env.lp, assetDOT, e12(1), assetDOT, e12(1), 0)
	require.ErrorIs(t, err, ErrSameAsset)

	err = env.engine.CreatePool(env.lp, assetDOT, big.NewInt(0), assetUSD, e12(1), 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	env.createPool(e12(1000), e12(500), 0)
	require.NoError(t, env.ledger.Mint(env.lp, assetDOT, e12(1)))
	require.NoError(t, env.ledger.Mint(env.lp, assetUSD, e12(1)))
	err = env.engine.CreatePool(env.lp, assetUSD, e12(1), assetDOT, e12(1), 0)
	require.ErrorIs(t, err, ErrPoolExists)
}

func TestSellMatchesConstantProduct(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(500), 0)
	require.NoError(t, env.ledger.Mint(env.trader, assetDOT, e12(100)))

	amountOut, err := env.engine.Sell(env.trader, assetDOT, assetUSD, e12(100), nil)
	require.NoError(t, err)
	// 500e12 * 100e12 / 1100e12 rounded down.
	require.Equal(t, "45454545454545", amountOut.String())

	balance, err := env.ledger.FreeBalance(env.trader, assetUSD)
	require.NoError(t, err)
	require.Equal(t, amountOut, balance)
}

func TestSellPreservesInvariant(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(500), 2_500)
	require.NoError(t, env.ledger.Mint(env.trader, assetDOT, e12(100)))

	before := env.invariant()
	_, err := env.engine.Sell(env.trader, assetDOT, assetUSD, e12(100), nil)
	require.NoError(t, err)
	after := env.invariant()

	require.True(t, after.Cmp(before) >= 0, "invariant shrank: %s -> %s", before, after)
}

func TestBuyChargesQuotedInput(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(1000), 2_500)
	require.NoError(t, env.ledger.Mint(env.trader, assetDOT, e12(200)))

	quoted, err := env.engine.QuoteBuy(assetDOT, assetUSD, e12(100))
	require.NoError(t, err)

	amountIn, err := env.engine.Buy(env.trader, assetDOT, assetUSD, e12(100), quoted)
	require.NoError(t, err)
	require.Equal(t, quoted, amountIn)

	usd, err := env.ledger.FreeBalance(env.trader, assetUSD)
	require.NoError(t, err)
	require.Equal(t, e12(100), usd)
}

func TestSellBuyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(1000), 0)

	quotedOut, err := env.engine.QuoteSell(assetDOT, assetUSD, e12(25))
	require.NoError(t, err)
	quotedIn, err := env.engine.QuoteBuy(assetDOT, assetUSD, quotedOut)
	require.NoError(t, err)

	diff := new(big.Int).Sub(quotedIn, e12(25))
	require.True(t, diff.CmpAbs(big.NewInt(3)) <= 0, "round-trip dust too large: %s", diff)
}

func TestSellSlippageBound(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(1000), 0)
	require.NoError(t, env.ledger.Mint(env.trader, assetDOT, e12(10)))

	quoted, err := env.engine.QuoteSell(assetDOT, assetUSD, e12(10))
	require.NoError(t, err)
	tooMuch := new(big.Int).Add(quoted, big.NewInt(1))

	_, err = env.engine.Sell(env.trader, assetDOT, assetUSD, e12(10), tooMuch)
	require.ErrorIs(t, err, ErrTradingLimitReached)

	balance, err := env.ledger.FreeBalance(env.trader, assetDOT)
	require.NoError(t, err)
	require.Equal(t, e12(10), balance)
}

func TestBuyRejectsDrainedReserve(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(500), 0)

	_, err := env.engine.QuoteBuy(assetDOT, assetUSD, e12(500))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestAddRemoveLiquidityRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(500), 0)
	require.NoError(t, env.ledger.Mint(env.trader, assetDOT, e12(100)))
	require.NoError(t, env.ledger.Mint(env.trader, assetUSD, e12(50)))

	shares, err := env.engine.AddLiquidity(env.trader, assetDOT, e12(100), assetUSD)
	require.NoError(t, err)
	require.Equal(t, e12(100), shares)

	amountA, amountB, err := env.engine.RemoveLiquidity(env.trader, assetDOT, assetUSD, shares)
	require.NoError(t, err)
	require.Equal(t, e12(100), amountA)
	require.Equal(t, e12(50), amountB)

	held, err := env.engine.state.Shares(assetDOT, assetUSD, env.trader)
	require.NoError(t, err)
	require.Equal(t, int64(0), held.Int64())
}

func TestRemoveLiquidityRequiresShares(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(500), 0)

	_, _, err := env.engine.RemoveLiquidity(env.trader, assetDOT, assetUSD, e12(1))
	require.ErrorIs(t, err, ErrInsufficientShares)
}

func TestTradeRejectsUnknownPair(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(e12(1000), e12(500), 0)

	_, err := env.engine.QuoteSell(assetDOT, types.AssetID(99), e12(1))
	require.ErrorIs(t, err, ErrPoolNotFound)
}
