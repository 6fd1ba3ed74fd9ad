package omnipool

import (
	"math/big"

	"omnidex/core/events"
	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
	"omnidex/native/common"
)

const moduleName = "omnipool"

// PoolAccount is the protocol-owned account holding every pool reserve,
// including the hub asset backing.
var PoolAccount = crypto.ModuleAddress(moduleName)

// Engine orchestrates the omnipool state transitions. Every public operation
// runs inside an all-or-nothing transaction: validation, invariant math,
// limiter checks and ledger movements either all commit or none do.
type Engine struct {
	state    *State
	ledger   common.Ledger
	registry common.Registry
	hooks    common.Hooks
	limiter  common.Limiter
	emitter  events.Emitter
	fees     FeeSource
	pauses   common.PauseView
	tx       common.TxRunner
	params   Params
}

// NewEngine wires the engine against its collaborators. Hooks, emitter and
// fee source default to inert implementations; registry, limiter, pause view
// and transaction runner are optional.
func NewEngine(state *State, ledger common.Ledger, params Params) (*Engine, error) {
	if err := params.Normalise(); err != nil {
		return nil, err
	}
	return &Engine{
		state:   state,
		ledger:  ledger,
		hooks:   common.NoopHooks{},
		emitter: events.NoopEmitter{},
		fees:    staticFees{assetFee: params.AssetFee, protocolFee: params.ProtocolFee},
		params:  params,
	}, nil
}

func (e *Engine) SetRegistry(registry common.Registry)  { e.registry = registry }
func (e *Engine) SetLimiter(limiter common.Limiter)     { e.limiter = limiter }
func (e *Engine) SetPauses(pauses common.PauseView)     { e.pauses = pauses }
func (e *Engine) SetTxRunner(tx common.TxRunner)        { e.tx = tx }
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		e.emitter = emitter
	}
}
func (e *Engine) SetHooks(hooks common.Hooks) {
	if hooks != nil {
		e.hooks = hooks
	}
}
func (e *Engine) SetFeeSource(fees FeeSource) {
	if fees != nil {
		e.fees = fees
	}
}

// HubAssetID returns the settlement asset id.
func (e *Engine) HubAssetID() types.AssetID { return e.params.HubAssetID }

// State exposes the typed pool state accessor for read paths (queries, tests).
func (e *Engine) State() *State { return e.state }

func (e *Engine) run(fn func() error) error {
	if e.tx == nil {
		return fn()
	}
	return e.tx.WithTransaction(fn)
}

type tradeOp uint8

const (
	opSell tradeOp = iota
	opBuy
)

// tradePlan is a fully priced trade awaiting limiter checks and application.
type tradePlan struct {
	assetIn   types.AssetID
	assetOut  types.AssetID
	change    *TradeStateChange
	inBefore  *AssetState
	outBefore *AssetState
}

func ratioExceeded(amount *big.Int, ratio uint64, reserve *big.Int) bool {
	scaled := new(big.Int).Mul(amount, new(big.Int).SetUint64(ratio))
	return scaled.Cmp(reserve) > 0
}

func (e *Engine) previewSell(assetIn, assetOut types.AssetID, amountIn *big.Int) (*tradePlan, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if assetIn == assetOut {
		return nil, ErrSameAsset
	}
	if assetOut == e.params.HubAssetID {
		return nil, ErrNotAllowed
	}
	if amountIn.Cmp(e.params.MinTradingLimit) < 0 {
		return nil, ErrInvalidAmount
	}
	assetFee, protocolFee := e.fees.TradeFees(assetOut)

	if assetIn == e.params.HubAssetID {
		out, err := e.state.GetAsset(assetOut)
		if err != nil {
			return nil, err
		}
		if !out.Tradable.Contains(CanBuy) {
			return nil, ErrNotAllowed
		}
		if ratioExceeded(amountIn, e.params.MaxInRatio, out.HubReserve) {
			return nil, ErrMaxInRatioExceeded
		}
		change, err := calculateSellHubStateChanges(out, amountIn, assetFee)
		if err != nil {
			return nil, err
		}
		if ratioExceeded(change.AmountOut, e.params.MaxOutRatio, out.Reserve) {
			return nil, ErrMaxOutRatioExceeded
		}
		return &tradePlan{assetIn: assetIn, assetOut: assetOut, change: change, outBefore: out}, nil
	}

	in, err := e.state.GetAsset(assetIn)
	if err != nil {
		return nil, err
	}
	if !in.Tradable.Contains(CanSell) {
		return nil, ErrNotAllowed
	}
	out, err := e.state.GetAsset(assetOut)
	if err != nil {
		return nil, err
	}
	if !out.Tradable.Contains(CanBuy) {
		return nil, ErrNotAllowed
	}
	if ratioExceeded(amountIn, e.params.MaxInRatio, in.Reserve) {
		return nil, ErrMaxInRatioExceeded
	}
	change, err := calculateSellStateChanges(in, out, amountIn, assetFee, protocolFee)
	if err != nil {
		return nil, err
	}
	if ratioExceeded(change.AmountOut, e.params.MaxOutRatio, out.Reserve) {
		return nil, ErrMaxOutRatioExceeded
	}
	return &tradePlan{assetIn: assetIn, assetOut: assetOut, change: change, inBefore: in, outBefore: out}, nil
}

func (e *Engine) previewBuy(assetIn, assetOut types.AssetID, amountOut *big.Int) (*tradePlan, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if assetIn == assetOut {
		return nil, ErrSameAsset
	}
	if assetOut == e.params.HubAssetID {
		return nil, ErrNotAllowed
	}
	if amountOut.Cmp(e.params.MinTradingLimit) < 0 {
		return nil, ErrInvalidAmount
	}
	assetFee, protocolFee := e.fees.TradeFees(assetOut)

	if assetIn == e.params.HubAssetID {
		out, err := e.state.GetAsset(assetOut)
		if err != nil {
			return nil, err
		}
		if !out.Tradable.Contains(CanBuy) {
			return nil, ErrNotAllowed
		}
		if ratioExceeded(amountOut, e.params.MaxOutRatio, out.Reserve) {
			return nil, ErrMaxOutRatioExceeded
		}
		change, err := calculateBuyForHubStateChanges(out, amountOut, assetFee)
		if err != nil {
			return nil, err
		}
		if ratioExceeded(change.AmountIn, e.params.MaxInRatio, out.HubReserve) {
			return nil, ErrMaxInRatioExceeded
		}
		return &tradePlan{assetIn: assetIn, assetOut: assetOut, change: change, outBefore: out}, nil
	}

	in, err := e.state.GetAsset(assetIn)
	if err != nil {
		return nil, err
	}
	if !in.Tradable.Contains(CanSell) {
		return nil, ErrNotAllowed
	}
	out, err := e.state.GetAsset(assetOut)
	if err != nil {
		return nil, err
	}
	if !out.Tradable.Contains(CanBuy) {
		return nil, ErrNotAllowed
	}
	if ratioExceeded(amountOut, e.params.MaxOutRatio, out.Reserve) {
		return nil, ErrMaxOutRatioExceeded
	}
	change, err := calculateBuyStateChanges(in, out, amountOut, assetFee, protocolFee)
	if err != nil {
		return nil, err
	}
	if ratioExceeded(change.AmountIn, e.params.MaxInRatio, in.Reserve) {
		return nil, ErrMaxInRatioExceeded
	}
	return &tradePlan{assetIn: assetIn, assetOut: assetOut, change: change, inBefore: in, outBefore: out}, nil
}

// QuoteSell prices a sell without touching state.
func (e *Engine) QuoteSell(assetIn, assetOut types.AssetID, amountIn *big.Int) (*big.Int, error) {
	plan, err := e.previewSell(assetIn, assetOut, amountIn)
	if err != nil {
		return nil, err
	}
	return plan.change.AmountOut, nil
}

// QuoteBuy prices a buy without touching state.
func (e *Engine) QuoteBuy(assetIn, assetOut types.AssetID, amountOut *big.Int) (*big.Int, error) {
	plan, err := e.previewBuy(assetIn, assetOut, amountOut)
	if err != nil {
		return nil, err
	}
	return plan.change.AmountIn, nil
}

// Sell trades amountIn of assetIn for assetOut through the hub, enforcing the
// caller's minBuyAmount slippage bound. Returns the delivered output amount.
func (e *Engine) Sell(who crypto.Address, assetIn, assetOut types.AssetID, amountIn, minBuyAmount *big.Int) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amountOut *big.Int
	err := e.run(func() error {
		plan, err := e.previewSell(assetIn, assetOut, amountIn)
		if err != nil {
			return err
		}
		if minBuyAmount != nil && plan.change.AmountOut.Cmp(minBuyAmount) < 0 {
			return ErrTradingLimitReached
		}
		if err := e.checkTradeLimit(plan); err != nil {
			return err
		}
		if err := e.applyTrade(who, plan, opSell); err != nil {
			return err
		}
		amountOut = plan.change.AmountOut
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

// Buy trades assetIn for exactly amountOut of assetOut, enforcing the caller's
// maxSellAmount slippage bound. Returns the charged input amount.
func (e *Engine) Buy(who crypto.Address, assetIn, assetOut types.AssetID, amountOut, maxSellAmount *big.Int) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amountIn *big.Int
	err := e.run(func() error {
		plan, err := e.previewBuy(assetIn, assetOut, amountOut)
		if err != nil {
			return err
		}
		if maxSellAmount != nil && plan.change.AmountIn.Cmp(maxSellAmount) > 0 {
			return ErrTradingLimitReached
		}
		if err := e.checkTradeLimit(plan); err != nil {
			return err
		}
		if err := e.applyTrade(who, plan, opBuy); err != nil {
			return err
		}
		amountIn = plan.change.AmountIn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountIn, nil
}

func (e *Engine) checkTradeLimit(plan *tradePlan) error {
	if e.limiter == nil {
		return nil
	}
	reserveIn := plan.outBefore.HubReserve
	if plan.inBefore != nil {
		reserveIn = plan.inBefore.Reserve
	}
	return e.limiter.EnsureTradeVolumeLimit(
		plan.assetIn, reserveIn, plan.change.AmountIn,
		plan.assetOut, plan.outBefore.Reserve, plan.change.AmountOut,
	)
}

func (e *Engine) applyTrade(who crypto.Address, plan *tradePlan, op tradeOp) error {
	change := plan.change
	hub := e.params.HubAssetID

	hubTotalBefore, err := e.ledger.FreeBalance(PoolAccount, hub)
	if err != nil {
		return err
	}

	if err := e.ledger.Transfer(who, PoolAccount, plan.assetIn, change.AmountIn); err != nil {
		return err
	}
	if err := e.ledger.Transfer(PoolAccount, who, plan.assetOut, change.AmountOut); err != nil {
		return err
	}

	// Offer the asset fee to the hook; the consumed portion leaves the
	// reserve for the fee collector, the rest stays with the LPs.
	if change.AssetFee.Sign() > 0 {
		consumed, err := e.hooks.OnTradeFee(who, plan.assetOut, change.AssetFee)
		if err != nil {
			return err
		}
		if consumed != nil && consumed.Sign() > 0 {
			if consumed.Cmp(change.AssetFee) > 0 {
				consumed = change.AssetFee
			}
			if err := e.ledger.Transfer(PoolAccount, e.params.FeeCollector, plan.assetOut, consumed); err != nil {
				return err
			}
			change.NewOut.Reserve = new(big.Int).Sub(change.NewOut.Reserve, consumed)
			if change.NewOut.Reserve.Sign() <= 0 {
				return ErrInsufficientLiquidity
			}
		}
	}

	if change.ProtocolFee.Sign() > 0 {
		if err := e.settleProtocolFee(who, change.ProtocolFee); err != nil {
			return err
		}
	}

	// Trades paying in hub asset grow the target subpool's backing without a
	// matching decrease elsewhere, so the weight cap and the imbalance both
	// move here.
	if plan.inBefore == nil {
		if exceedsWeightCap(plan.outBefore.Cap, plan.outBefore.HubReserve, change.HubOut, hubTotalBefore) {
			return ErrWeightCapExceeded
		}
		imbalance, err := e.state.Imbalance()
		if err != nil {
			return err
		}
		if err := imbalance.Sub(change.HubOut); err != nil {
			return err
		}
		if err := e.state.SetImbalance(imbalance); err != nil {
			return err
		}
	}

	if change.NewIn != nil {
		if err := e.state.PutAsset(plan.assetIn, change.NewIn); err != nil {
			return err
		}
	}
	if err := e.state.PutAsset(plan.assetOut, change.NewOut); err != nil {
		return err
	}

	infoOut := common.AssetInfo{
		AssetID:          plan.assetOut,
		ReserveBefore:    plan.outBefore.Reserve,
		ReserveAfter:     change.NewOut.Reserve,
		HubReserveBefore: plan.outBefore.HubReserve,
		HubReserveAfter:  change.NewOut.HubReserve,
	}
	infoIn := common.AssetInfo{AssetID: plan.assetIn}
	if plan.inBefore != nil {
		infoIn.ReserveBefore = plan.inBefore.Reserve
		infoIn.ReserveAfter = change.NewIn.Reserve
		infoIn.HubReserveBefore = plan.inBefore.HubReserve
		infoIn.HubReserveAfter = change.NewIn.HubReserve
	} else {
		hubTotalAfter, err := e.ledger.FreeBalance(PoolAccount, hub)
		if err != nil {
			return err
		}
		infoIn.ReserveBefore = hubTotalBefore
		infoIn.ReserveAfter = hubTotalAfter
		infoIn.HubReserveBefore = hubTotalBefore
		infoIn.HubReserveAfter = hubTotalAfter
	}
	if err := e.hooks.OnTrade(infoIn, infoOut); err != nil {
		return err
	}

	switch op {
	case opSell:
		e.emitter.Emit(events.OmnipoolSellExecuted{
			Who:       who,
			AssetIn:   plan.assetIn,
			AssetOut:  plan.assetOut,
			AmountIn:  change.AmountIn,
			AmountOut: change.AmountOut,
			FeeAmount: change.AssetFee,
		})
	case opBuy:
		e.emitter.Emit(events.OmnipoolBuyExecuted{
			Who:       who,
			AssetIn:   plan.assetIn,
			AssetOut:  plan.assetOut,
			AmountIn:  change.AmountIn,
			AmountOut: change.AmountOut,
			FeeAmount: change.AssetFee,
		})
	}
	return nil
}

// settleProtocolFee pays a negative imbalance down with the hub fee, offers
// the remainder to the fee hook and burns whatever neither consumed.
func (e *Engine) settleProtocolFee(who crypto.Address, fee *big.Int) error {
	hub := e.params.HubAssetID
	imbalance, err := e.state.Imbalance()
	if err != nil {
		return err
	}
	paydown := big.NewInt(0)
	if imbalance.Negative {
		paydown = new(big.Int).Set(imbalance.Value)
		if paydown.Cmp(fee) > 0 {
			paydown = new(big.Int).Set(fee)
		}
	}
	if paydown.Sign() > 0 {
		if err := imbalance.Add(paydown); err != nil {
			return err
		}
		if err := e.ledger.Burn(PoolAccount, hub, paydown); err != nil {
			return err
		}
	}
	if err := e.state.SetImbalance(imbalance); err != nil {
		return err
	}
	remainder := new(big.Int).Sub(fee, paydown)
	if remainder.Sign() == 0 {
		return nil
	}
	consumed, err := e.hooks.OnTradeFee(who, hub, remainder)
	if err != nil {
		return err
	}
	if consumed == nil {
		consumed = big.NewInt(0)
	} else if consumed.Cmp(remainder) > 0 {
		consumed = remainder
	}
	if consumed.Sign() > 0 {
		if err := e.ledger.Transfer(PoolAccount, e.params.FeeCollector, hub, consumed); err != nil {
			return err
		}
	}
	if rest := new(big.Int).Sub(remainder, consumed); rest.Sign() > 0 {
		if err := e.ledger.Burn(PoolAccount, hub, rest); err != nil {
			return err
		}
	}
	return nil
}

// AddLiquidity deposits amount of asset and mints a position frozen at the
// current spot price. Returns the position id and the minted shares.
func (e *Engine) AddLiquidity(who crypto.Address, asset types.AssetID, amount *big.Int) (uint64, *big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return 0, nil, err
	}
	var (
		positionID uint64
		shares     *big.Int
	)
	err := e.run(func() error {
		if amount == nil || amount.Sign() <= 0 || amount.Cmp(e.params.MinPoolLiquidity) < 0 {
			return ErrInvalidAmount
		}
		st, err := e.state.GetAsset(asset)
		if err != nil {
			return err
		}
		if !st.Tradable.Contains(CanAddLiquidity) {
			return ErrNotAllowed
		}
		change, err := calculateAddLiquidityStateChanges(st, amount)
		if err != nil {
			return err
		}
		hubTotalBefore, err := e.ledger.FreeBalance(PoolAccount, e.params.HubAssetID)
		if err != nil {
			return err
		}
		if exceedsWeightCap(st.Cap, st.HubReserve, change.HubDelta, hubTotalBefore) {
			return ErrWeightCapExceeded
		}
		if e.limiter != nil {
			if err := e.limiter.EnsureAddLiquidityLimit(asset, st.Reserve, amount); err != nil {
				return err
			}
		}
		if err := e.ledger.Transfer(who, PoolAccount, asset, amount); err != nil {
			return err
		}
		if err := e.ledger.Mint(PoolAccount, e.params.HubAssetID, change.HubDelta); err != nil {
			return err
		}
		if err := e.scaleImbalance(hubTotalBefore, change.HubDelta, false); err != nil {
			return err
		}
		id, err := e.state.NextPositionID()
		if err != nil {
			return err
		}
		position := &Position{
			ID:      id,
			Owner:   who,
			AssetID: asset,
			Amount:  new(big.Int).Set(amount),
			Shares:  change.Shares,
			Price:   st.Price(),
		}
		if err := e.state.PutPosition(position); err != nil {
			return err
		}
		if err := e.state.PutAsset(asset, change.NewState); err != nil {
			return err
		}
		if err := e.hooks.OnLiquidityChanged(common.AssetInfo{
			AssetID:          asset,
			ReserveBefore:    st.Reserve,
			ReserveAfter:     change.NewState.Reserve,
			HubReserveBefore: st.HubReserve,
			HubReserveAfter:  change.NewState.HubReserve,
		}); err != nil {
			return err
		}
		e.emitter.Emit(events.OmnipoolLiquidityAdded{
			Who:        who,
			AssetID:    asset,
			Amount:     amount,
			Shares:     change.Shares,
			PositionID: id,
		})
		positionID = id
		shares = change.Shares
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return positionID, shares, nil
}

// RemoveLiquidity burns sharesRemoved of the position and pays out the
// provider, applying the price-divergence adjustment. Returns the reserve and
// hub payouts.
func (e *Engine) RemoveLiquidity(who crypto.Address, positionID uint64, sharesRemoved *big.Int) (*big.Int, *big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	var amount, hubAmount *big.Int
	err := e.run(func() error {
		if sharesRemoved == nil || sharesRemoved.Sign() <= 0 {
			return ErrInvalidAmount
		}
		position, err := e.state.GetPosition(positionID)
		if err != nil {
			return err
		}
		if !position.Owner.Equal(who) {
			return ErrForbidden
		}
		if sharesRemoved.Cmp(position.Shares) > 0 {
			return ErrInsufficientShares
		}
		st, err := e.state.GetAsset(position.AssetID)
		if err != nil {
			return err
		}
		if !st.Tradable.Contains(CanRemoveLiquidity) {
			return ErrNotAllowed
		}
		change, err := calculateRemoveLiquidityStateChanges(st, sharesRemoved, position)
		if err != nil {
			return err
		}
		if e.limiter != nil {
			if err := e.limiter.EnsureRemoveLiquidityLimit(position.AssetID, st.Reserve, change.Amount); err != nil {
				return err
			}
		}
		hubTotalBefore, err := e.ledger.FreeBalance(PoolAccount, e.params.HubAssetID)
		if err != nil {
			return err
		}
		if err := e.scaleImbalance(hubTotalBefore, change.HubDelta, true); err != nil {
			return err
		}
		if err := e.ledger.Transfer(PoolAccount, who, position.AssetID, change.Amount); err != nil {
			return err
		}
		if change.HubAmount.Sign() > 0 {
			if err := e.ledger.Transfer(PoolAccount, who, e.params.HubAssetID, change.HubAmount); err != nil {
				return err
			}
		}
		if burned := new(big.Int).Sub(change.HubDelta, change.HubAmount); burned.Sign() > 0 {
			if err := e.ledger.Burn(PoolAccount, e.params.HubAssetID, burned); err != nil {
				return err
			}
		}
		removedAmount, err := fixmath.MulDiv(position.Amount, sharesRemoved, position.Shares, fixmath.Down)
		if err != nil {
			return err
		}
		position.Shares = new(big.Int).Sub(position.Shares, sharesRemoved)
		position.Amount = new(big.Int).Sub(position.Amount, removedAmount)
		if position.Shares.Sign() == 0 {
			if err := e.state.DeletePosition(positionID); err != nil {
				return err
			}
		} else if err := e.state.PutPosition(position); err != nil {
			return err
		}
		if err := e.state.PutAsset(position.AssetID, change.NewState); err != nil {
			return err
		}
		if err := e.hooks.OnLiquidityChanged(common.AssetInfo{
			AssetID:          position.AssetID,
			ReserveBefore:    st.Reserve,
			ReserveAfter:     change.NewState.Reserve,
			HubReserveBefore: st.HubReserve,
			HubReserveAfter:  change.NewState.HubReserve,
		}); err != nil {
			return err
		}
		e.emitter.Emit(events.OmnipoolLiquidityRemoved{
			Who:          who,
			AssetID:      position.AssetID,
			PositionID:   positionID,
			SharesBurned: change.SharesBurned,
			Amount:       change.Amount,
			HubAmount:    change.HubAmount,
		})
		amount = change.Amount
		hubAmount = change.HubAmount
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amount, hubAmount, nil
}

// scaleImbalance rescales the stored imbalance proportionally with the total
// hub reserve change caused by a liquidity operation.
func (e *Engine) scaleImbalance(hubTotalBefore, delta *big.Int, removal bool) error {
	if hubTotalBefore.Sign() == 0 {
		return nil
	}
	imbalance, err := e.state.Imbalance()
	if err != nil {
		return err
	}
	if imbalance.IsZero() {
		return nil
	}
	after := new(big.Int)
	if removal {
		after.Sub(hubTotalBefore, delta)
	} else {
		after.Add(hubTotalBefore, delta)
	}
	if after.Sign() < 0 {
		return fixmath.ErrOverflow
	}
	if err := imbalance.Scale(after, hubTotalBefore); err != nil {
		return err
	}
	return e.state.SetImbalance(imbalance)
}

// AddToken lists a new asset. The pool account must already hold the initial
// reserve; it is deposited as protocol-owned liquidity and the hub backing is
// minted at the supplied listing price.
func (e *Engine) AddToken(asset types.AssetID, initialPrice fixmath.Ratio, cap *big.Int) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.run(func() error {
		if asset == e.params.HubAssetID {
			return ErrNotAllowed
		}
		if e.registry != nil && !e.registry.Exists(asset) {
			return ErrAssetNotRegistered
		}
		exists, err := e.state.HasAsset(asset)
		if err != nil {
			return err
		}
		if exists {
			return ErrAssetAlreadyAdded
		}
		if !initialPrice.IsValid() || initialPrice.IsZero() {
			return ErrInvalidInitialPrice
		}
		reserve, err := e.ledger.FreeBalance(PoolAccount, asset)
		if err != nil {
			return err
		}
		if reserve.Cmp(e.params.MinPoolLiquidity) < 0 {
			return ErrMissingPoolLiquidity
		}
		hubReserve, err := initialPrice.Mul(reserve, fixmath.Down)
		if err != nil {
			return err
		}
		if hubReserve.Sign() <= 0 {
			return ErrInvalidInitialPrice
		}
		if cap == nil || cap.Sign() == 0 {
			cap = new(big.Int).Set(WeightCapDenominator)
		}
		hubTotalBefore, err := e.ledger.FreeBalance(PoolAccount, e.params.HubAssetID)
		if err != nil {
			return err
		}
		if exceedsWeightCap(cap, big.NewInt(0), hubReserve, hubTotalBefore) {
			return ErrWeightCapExceeded
		}
		if err := e.ledger.Mint(PoolAccount, e.params.HubAssetID, hubReserve); err != nil {
			return err
		}
		if err := e.scaleImbalance(hubTotalBefore, hubReserve, false); err != nil {
			return err
		}
		st := &AssetState{
			Reserve:        reserve,
			HubReserve:     hubReserve,
			Shares:         new(big.Int).Set(reserve),
			ProtocolShares: new(big.Int).Set(reserve),
			Cap:            new(big.Int).Set(cap),
			Tradable:       TradabilityDefault,
		}
		if err := e.state.PutAsset(asset, st); err != nil {
			return err
		}
		if err := e.state.IndexAsset(asset); err != nil {
			return err
		}
		if err := e.hooks.OnLiquidityChanged(common.AssetInfo{
			AssetID:          asset,
			ReserveBefore:    big.NewInt(0),
			ReserveAfter:     reserve,
			HubReserveBefore: big.NewInt(0),
			HubReserveAfter:  hubReserve,
		}); err != nil {
			return err
		}
		e.emitter.Emit(events.OmnipoolTokenAdded{
			AssetID:        asset,
			InitialReserve: reserve,
			InitialShares:  st.Shares,
		})
		return nil
	})
}

// RefundRefusedAsset returns the pool account's holding of an unlisted asset
// to the recipient, undoing a deposit whose listing was refused.
func (e *Engine) RefundRefusedAsset(asset types.AssetID, recipient crypto.Address) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.run(func() error {
		if asset == e.params.HubAssetID {
			return ErrNotAllowed
		}
		exists, err := e.state.HasAsset(asset)
		if err != nil {
			return err
		}
		if exists {
			return ErrAssetAlreadyAdded
		}
		balance, err := e.ledger.FreeBalance(PoolAccount, asset)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return ErrInvalidAmount
		}
		return e.ledger.Transfer(PoolAccount, recipient, asset, balance)
	})
}

// SetAssetTradableState replaces the asset's operation bitmask.
func (e *Engine) SetAssetTradableState(asset types.AssetID, flags Tradability) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.run(func() error {
		if flags&^TradabilityDefault != 0 {
			return ErrNotAllowed
		}
		st, err := e.state.GetAsset(asset)
		if err != nil {
			return err
		}
		st.Tradable = flags
		return e.state.PutAsset(asset, st)
	})
}

// TransferPosition moves position ownership between accounts.
func (e *Engine) TransferPosition(from, to crypto.Address, positionID uint64) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.run(func() error {
		if to.IsZero() {
			return ErrForbidden
		}
		position, err := e.state.GetPosition(positionID)
		if err != nil {
			return err
		}
		if !position.Owner.Equal(from) {
			return ErrForbidden
		}
		position.Owner = to
		if err := e.state.PutPosition(position); err != nil {
			return err
		}
		e.emitter.Emit(events.OmnipoolPositionTransferred{
			PositionID: positionID,
			From:       from,
			To:         to,
		})
		return nil
	})
}

// LiquidityDepth reports the tradable depth of an asset: its pool reserve, or
// the total hub balance for the hub asset.
func (e *Engine) LiquidityDepth(asset types.AssetID) (*big.Int, error) {
	if asset == e.params.HubAssetID {
		return e.ledger.FreeBalance(PoolAccount, asset)
	}
	st, err := e.state.GetAsset(asset)
	if err != nil {
		return nil, err
	}
	return st.Reserve, nil
}
