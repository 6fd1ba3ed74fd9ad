package router

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"omnidex/core/events"
	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/native/common"
	"omnidex/observability/metrics"
)

const moduleName = "router"

// DefaultMaxNumberOfTrades bounds route length in hops.
const DefaultMaxNumberOfTrades = 5

var (
	ErrInvalidAmount         = errors.New("router: invalid amount")
	ErrSameAsset             = errors.New("router: asset in and asset out are identical")
	ErrInvalidRouteLength    = errors.New("router: route length out of bounds")
	ErrInvalidRoute          = errors.New("router: route does not connect asset in to asset out")
	ErrPoolNotRegistered     = errors.New("router: no executor registered for pool kind")
	ErrTradingLimitReached   = errors.New("router: trading limit reached")
	ErrInvalidRouteExecution = errors.New("router: executed amounts diverged from calculation")
)

// Params carries the router's runtime parameters.
type Params struct {
	MaxNumberOfTrades int
	// UpdateFee is charged in UpdateFeeAsset for SetRoute calls whose proposed
	// route does not strictly dominate the incumbent.
	UpdateFeeAsset types.AssetID
	UpdateFee      *big.Int
	FeeCollector   crypto.Address
}

func DefaultParams() Params {
	return Params{
		MaxNumberOfTrades: DefaultMaxNumberOfTrades,
		UpdateFeeAsset:    1,
		UpdateFee:         big.NewInt(0),
		FeeCollector:      crypto.ModuleAddress("router/fees"),
	}
}

func (p Params) Normalise() Params {
	if p.MaxNumberOfTrades <= 0 {
		p.MaxNumberOfTrades = DefaultMaxNumberOfTrades
	}
	if p.UpdateFee == nil {
		p.UpdateFee = big.NewInt(0)
	}
	if p.FeeCollector.IsZero() {
		p.FeeCollector = crypto.ModuleAddress("router/fees")
	}
	return p
}

// Engine resolves and executes multi-hop trade routes across the registered
// pool kinds.
type Engine struct {
	state     *State
	ledger    common.Ledger
	executors map[PoolKindTag]TradeExecutor
	emitter   events.Emitter
	pauses    common.PauseView
	tx        common.TxRunner
	logger    *slog.Logger
	metrics   *metrics.AMMMetrics
	params    Params
}

func NewEngine(state *State, ledger common.Ledger, params Params) *Engine {
	return &Engine{
		state:     state,
		ledger:    ledger,
		executors: make(map[PoolKindTag]TradeExecutor),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		params:    params.Normalise(),
	}
}

func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }
func (e *Engine) SetTxRunner(tx common.TxRunner)    { e.tx = tx }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		e.emitter = emitter
	}
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger.With("component", moduleName)
	}
}

func (e *Engine) SetMetrics(m *metrics.AMMMetrics) { e.metrics = m }

// RegisterExecutor binds a pool kind to the executor that prices and settles
// its trades. Later registrations for the same kind replace earlier ones.
func (e *Engine) RegisterExecutor(tag PoolKindTag, executor TradeExecutor) {
	e.executors[tag] = executor
}

func (e *Engine) executor(tag PoolKindTag) (TradeExecutor, error) {
	executor, ok := e.executors[tag]
	if !ok {
		return nil, ErrPoolNotRegistered
	}
	return executor, nil
}

func (e *Engine) run(fn func() error) error {
	if e.tx == nil {
		return fn()
	}
	return e.tx.WithTransaction(fn)
}

func (e *Engine) validateRoute(assetIn, assetOut types.AssetID, route []Trade) error {
	if len(route) == 0 || len(route) > e.params.MaxNumberOfTrades {
		return ErrInvalidRouteLength
	}
	if route[0].AssetIn != assetIn || route[len(route)-1].AssetOut != assetOut {
		return ErrInvalidRoute
	}
	for i, hop := range route {
		if hop.AssetIn == hop.AssetOut {
			return ErrInvalidRoute
		}
		if i > 0 && route[i-1].AssetOut != hop.AssetIn {
			return ErrInvalidRoute
		}
	}
	return nil
}

// resolveRoute returns the route to trade assetIn for assetOut: the explicit
// route when given, otherwise the stored route, otherwise a direct omnipool
// hop. A corrupted stored route falls back to the default.
func (e *Engine) resolveRoute(assetIn, assetOut types.AssetID, route []Trade) ([]Trade, error) {
	if len(route) > 0 {
		return route, nil
	}
	stored, ok, err := e.state.GetRoute(assetIn, assetOut)
	if err != nil && !errors.Is(err, ErrRouteCorrupted) {
		return nil, err
	}
	if errors.Is(err, ErrRouteCorrupted) {
		e.logger.Error("stored route corrupted, using direct default",
			"assetIn", assetIn, "assetOut", assetOut)
		e.metrics.IncInvariantFailure(moduleName)
		ok = false
	}
	if ok {
		return stored, nil
	}
	return []Trade{{Pool: OmnipoolKind(), AssetIn: assetIn, AssetOut: assetOut}}, nil
}

// GetRoute reports the route Sell and Buy would use for the pair when no
// explicit route is passed.
func (e *Engine) GetRoute(assetIn, assetOut types.AssetID) ([]Trade, error) {
	if assetIn == assetOut {
		return nil, ErrSameAsset
	}
	return e.resolveRoute(assetIn, assetOut, nil)
}

func (e *Engine) calculateSellAmounts(route []Trade, amountIn *big.Int) ([]AmountInAndOut, error) {
	amounts := make([]AmountInAndOut, len(route))
	in := amountIn
	for i, hop := range route {
		executor, err := e.executor(hop.Pool.Tag)
		if err != nil {
			return nil, err
		}
		out, err := executor.CalculateSell(hop.Pool, hop.AssetIn, hop.AssetOut, in)
		if err != nil {
			return nil, err
		}
		amounts[i] = AmountInAndOut{AmountIn: in, AmountOut: out}
		in = out
	}
	return amounts, nil
}

func (e *Engine) calculateBuyAmounts(route []Trade, amountOut *big.Int) ([]AmountInAndOut, error) {
	amounts := make([]AmountInAndOut, len(route))
	out := amountOut
	for i := len(route) - 1; i >= 0; i-- {
		hop := route[i]
		executor, err := e.executor(hop.Pool.Tag)
		if err != nil {
			return nil, err
		}
		in, err := executor.CalculateBuy(hop.Pool, hop.AssetIn, hop.AssetOut, out)
		if err != nil {
			return nil, err
		}
		amounts[i] = AmountInAndOut{AmountIn: in, AmountOut: out}
		out = in
	}
	return amounts, nil
}

// executeHop settles one hop and asserts the trader's ledger moved by exactly
// the precomputed amounts. Any divergence aborts the route.
func (e *Engine) executeHop(who crypto.Address, hop Trade, amounts AmountInAndOut, buy bool) error {
	executor, err := e.executor(hop.Pool.Tag)
	if err != nil {
		return err
	}
	inBefore, err := e.ledger.ReducibleBalance(who, hop.AssetIn)
	if err != nil {
		return err
	}
	outBefore, err := e.ledger.ReducibleBalance(who, hop.AssetOut)
	if err != nil {
		return err
	}
	if buy {
		err = executor.ExecuteBuy(who, hop.Pool, hop.AssetIn, hop.AssetOut, amounts.AmountOut, amounts.AmountIn)
	} else {
		err = executor.ExecuteSell(who, hop.Pool, hop.AssetIn, hop.AssetOut, amounts.AmountIn, amounts.AmountOut)
	}
	if err != nil {
		return err
	}
	inAfter, err := e.ledger.ReducibleBalance(who, hop.AssetIn)
	if err != nil {
		return err
	}
	outAfter, err := e.ledger.ReducibleBalance(who, hop.AssetOut)
	if err != nil {
		return err
	}
	spent := new(big.Int).Sub(inBefore, inAfter)
	received := new(big.Int).Sub(outAfter, outBefore)
	if spent.Cmp(amounts.AmountIn) != 0 || received.Cmp(amounts.AmountOut) != 0 {
		e.logger.Error("route hop settled off-calculation",
			"pool", hop.Pool.Tag.String(),
			"assetIn", hop.AssetIn,
			"assetOut", hop.AssetOut,
			"expectedIn", amounts.AmountIn.String(),
			"spent", spent.String(),
			"expectedOut", amounts.AmountOut.String(),
			"received", received.String())
		e.metrics.IncInvariantFailure(moduleName)
		return ErrInvalidRouteExecution
	}
	e.metrics.ObserveTrade(hop.Pool.Tag.String(), direction(buy))
	return nil
}

func direction(buy bool) string {
	if buy {
		return "buy"
	}
	return "sell"
}

// Sell trades amountIn of assetIn along the route, delivering at least
// minAmountOut of assetOut. Passing a nil route uses the stored or default
// route for the pair.
func (e *Engine) Sell(who crypto.Address, assetIn, assetOut types.AssetID, amountIn, minAmountOut *big.Int, route []Trade) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amountOut *big.Int
	err := e.run(func() error {
		if amountIn == nil || amountIn.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if assetIn == assetOut {
			return ErrSameAsset
		}
		route, err := e.resolveRoute(assetIn, assetOut, route)
		if err != nil {
			return err
		}
		if err := e.validateRoute(assetIn, assetOut, route); err != nil {
			return err
		}
		amounts, err := e.calculateSellAmounts(route, amountIn)
		if err != nil {
			return err
		}
		final := amounts[len(amounts)-1].AmountOut
		if minAmountOut != nil && final.Cmp(minAmountOut) < 0 {
			return ErrTradingLimitReached
		}
		for i, hop := range route {
			if err := e.executeHop(who, hop, amounts[i], false); err != nil {
				return err
			}
		}
		e.metrics.ObserveRouteLength(len(route))
		e.emitter.Emit(events.RouteExecuted{
			Who:       who,
			AssetIn:   assetIn,
			AssetOut:  assetOut,
			AmountIn:  amountIn,
			AmountOut: final,
		})
		amountOut = final
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

// Buy trades assetIn along the route for exactly amountOut of assetOut,
// spending at most maxAmountIn. Amounts are computed hop by hop in reverse,
// then the hops settle in forward order.
func (e *Engine) Buy(who crypto.Address, assetIn, assetOut types.AssetID, amountOut, maxAmountIn *big.Int, route []Trade) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amountIn *big.Int
	err := e.run(func() error {
		if amountOut == nil || amountOut.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if assetIn == assetOut {
			return ErrSameAsset
		}
		route, err := e.resolveRoute(assetIn, assetOut, route)
		if err != nil {
			return err
		}
		if err := e.validateRoute(assetIn, assetOut, route); err != nil {
			return err
		}
		amounts, err := e.calculateBuyAmounts(route, amountOut)
		if err != nil {
			return err
		}
		first := amounts[0].AmountIn
		if maxAmountIn != nil && first.Cmp(maxAmountIn) > 0 {
			return ErrTradingLimitReached
		}
		for i, hop := range route {
			if err := e.executeHop(who, hop, amounts[i], true); err != nil {
				return err
			}
		}
		e.metrics.ObserveRouteLength(len(route))
		e.emitter.Emit(events.RouteExecuted{
			Who:       who,
			AssetIn:   assetIn,
			AssetOut:  assetOut,
			AmountIn:  first,
			AmountOut: amountOut,
		})
		amountIn = first
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountIn, nil
}

// probeAmount sizes the comparison trades used by SetRoute at one percent of
// the proposed route's entry-pool depth.
func (e *Engine) probeAmount(route []Trade) (*big.Int, error) {
	first := route[0]
	executor, err := e.executor(first.Pool.Tag)
	if err != nil {
		return nil, err
	}
	depth, err := executor.LiquidityDepth(first.Pool, first.AssetIn, first.AssetOut)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Div(depth, big.NewInt(100)), nil
}

// dominates reports whether the already-quoted proposed route beats the
// incumbent on both probe trades: strictly more out for the same in, and
// strictly less in for the same out. Incumbents that fail to quote are always
// dominated.
func (e *Engine) dominates(proposedOut, proposedIn []AmountInAndOut, incumbent []Trade, probe *big.Int) bool {
	oldOut, err := e.calculateSellAmounts(incumbent, probe)
	if err != nil {
		return true
	}
	oldIn, err := e.calculateBuyAmounts(incumbent, probe)
	if err != nil {
		return true
	}
	better := proposedOut[len(proposedOut)-1].AmountOut.Cmp(oldOut[len(oldOut)-1].AmountOut) > 0
	cheaper := proposedIn[0].AmountIn.Cmp(oldIn[0].AmountIn) < 0
	return better && cheaper
}

// SetRoute stores a preferred route for the pair. The proposed route must
// quote both probe trades; a route over pools that cannot price the pair is
// rejected rather than cached. The update is free when the proposed route
// strictly dominates the incumbent on 1%-of-depth probe trades; otherwise the
// caller pays the route update fee.
func (e *Engine) SetRoute(who crypto.Address, assetIn, assetOut types.AssetID, route []Trade) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.run(func() error {
		if assetIn == assetOut {
			return ErrSameAsset
		}
		if err := e.validateRoute(assetIn, assetOut, route); err != nil {
			return err
		}
		for _, hop := range route {
			if _, err := e.executor(hop.Pool.Tag); err != nil {
				return err
			}
		}
		incumbent, err := e.resolveRoute(assetIn, assetOut, nil)
		if err != nil {
			return err
		}
		probe, err := e.probeAmount(route)
		if err != nil {
			return err
		}
		if probe.Sign() <= 0 {
			return fmt.Errorf("%w: entry pool too shallow to probe", ErrInvalidRoute)
		}
		proposedOut, err := e.calculateSellAmounts(route, probe)
		if err != nil {
			return fmt.Errorf("%w: proposed route failed to quote: %v", ErrInvalidRoute, err)
		}
		proposedIn, err := e.calculateBuyAmounts(route, probe)
		if err != nil {
			return fmt.Errorf("%w: proposed route failed to quote: %v", ErrInvalidRoute, err)
		}
		paid := false
		if !e.dominates(proposedOut, proposedIn, incumbent, probe) {
			if e.params.UpdateFee.Sign() > 0 {
				if err := e.ledger.Transfer(who, e.params.FeeCollector, e.params.UpdateFeeAsset, e.params.UpdateFee); err != nil {
					return err
				}
			}
			paid = true
		}
		if err := e.state.PutRoute(assetIn, assetOut, route); err != nil {
			return err
		}
		e.metrics.IncRouteUpdate(paid)
		e.emitter.Emit(events.RouteUpdated{
			AssetIn:  assetIn,
			AssetOut: assetOut,
			Hops:     uint32(len(route)),
			Paid:     paid,
		})
		return nil
	})
}
