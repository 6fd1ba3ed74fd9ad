package omnipool

import (
	"math/big"

	"omnidex/fixmath"
)

// TradeStateChange carries the deltas computed for a two-leg (or single-leg
// hub) trade before they are applied. NewIn/NewOut are nil when the hub asset
// occupies that leg.
type TradeStateChange struct {
	NewIn  *AssetState
	NewOut *AssetState
	// AmountIn is the asset-in amount the trader pays.
	AmountIn *big.Int
	// AmountOut is the asset-out amount the trader receives, net of fees.
	AmountOut *big.Int
	// HubIn is the hub amount leaving the in-asset subpool.
	HubIn *big.Int
	// HubOut is the hub amount entering the out-asset subpool.
	HubOut *big.Int
	// ProtocolFee is the hub-denominated fee, HubIn-HubOut.
	ProtocolFee *big.Int
	// AssetFee is the out-asset fee retained in the out reserve.
	AssetFee *big.Int
}

// LiquidityStateChange carries the deltas of an add-liquidity operation.
type LiquidityStateChange struct {
	NewState *AssetState
	// Shares minted to the provider.
	Shares *big.Int
	// HubDelta is the hub amount minted into the subpool backing.
	HubDelta *big.Int
}

// RemoveLiquidityStateChange carries the deltas of a remove-liquidity
// operation including the price-divergence adjustment.
type RemoveLiquidityStateChange struct {
	NewState *AssetState
	// Amount is the reserve payout to the provider.
	Amount *big.Int
	// HubAmount is the additional hub payout to the provider when the price
	// moved above the entry price.
	HubAmount *big.Int
	// HubDelta is the total hub amount leaving the subpool backing.
	HubDelta *big.Int
	// SharesRetained is the share portion transferred to the protocol when
	// the price moved below the entry price.
	SharesRetained *big.Int
	// SharesBurned is the share portion actually destroyed.
	SharesBurned *big.Int
}

// calculateSellStateChanges prices a sell of amountIn of the in asset for the
// out asset through the hub. The hub amount freed from the in subpool is
// rounded down, the protocol fee is rounded up against it, and the delivered
// output is rounded down, so every rounding favors the pool.
func calculateSellStateChanges(in, out *AssetState, amountIn *big.Int, assetFee, protocolFee fixmath.Permill) (*TradeStateChange, error) {
	newInReserve, err := fixmath.CheckedAdd(in.Reserve, amountIn)
	if err != nil {
		return nil, err
	}
	hubIn, err := fixmath.MulDiv(in.HubReserve, amountIn, newInReserve, fixmath.Down)
	if err != nil {
		return nil, err
	}
	fee, err := protocolFee.MulCeil(hubIn)
	if err != nil {
		return nil, err
	}
	hubOut := new(big.Int).Sub(hubIn, fee)
	if hubOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	newOutHub, err := fixmath.CheckedAdd(out.HubReserve, hubOut)
	if err != nil {
		return nil, err
	}
	outGross, err := fixmath.MulDiv(out.Reserve, hubOut, newOutHub, fixmath.Down)
	if err != nil {
		return nil, err
	}
	outFee, err := assetFee.MulCeil(outGross)
	if err != nil {
		return nil, err
	}
	amountOut := new(big.Int).Sub(outGross, outFee)
	if amountOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	newIn := in.Clone()
	newIn.Reserve = newInReserve
	newIn.HubReserve = new(big.Int).Sub(in.HubReserve, hubIn)
	newOut := out.Clone()
	newOut.Reserve = new(big.Int).Sub(out.Reserve, amountOut)
	newOut.HubReserve = newOutHub
	if newOut.Reserve.Sign() <= 0 || newIn.HubReserve.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return &TradeStateChange{
		NewIn:       newIn,
		NewOut:      newOut,
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   amountOut,
		HubIn:       hubIn,
		HubOut:      hubOut,
		ProtocolFee: fee,
		AssetFee:    outFee,
	}, nil
}

// calculateBuyStateChanges prices a buy of amountOut of the out asset paid in
// the in asset. The required amounts on the paying side are rounded up at
// every step, the mirror of the sell rounding.
func calculateBuyStateChanges(in, out *AssetState, amountOut *big.Int, assetFee, protocolFee fixmath.Permill) (*TradeStateChange, error) {
	outGross, err := assetFee.DivByComplementCeil(amountOut)
	if err != nil {
		return nil, err
	}
	if outGross.Cmp(out.Reserve) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	outRemainder := new(big.Int).Sub(out.Reserve, outGross)
	hubOut, err := fixmath.MulDiv(out.HubReserve, outGross, outRemainder, fixmath.Up)
	if err != nil {
		return nil, err
	}
	hubIn, err := protocolFee.DivByComplementCeil(hubOut)
	if err != nil {
		return nil, err
	}
	if hubIn.Cmp(in.HubReserve) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	hubRemainder := new(big.Int).Sub(in.HubReserve, hubIn)
	amountIn, err := fixmath.MulDiv(in.Reserve, hubIn, hubRemainder, fixmath.Up)
	if err != nil {
		return nil, err
	}
	newIn := in.Clone()
	newIn.Reserve, err = fixmath.CheckedAdd(in.Reserve, amountIn)
	if err != nil {
		return nil, err
	}
	newIn.HubReserve = hubRemainder
	newOut := out.Clone()
	newOut.Reserve = new(big.Int).Sub(out.Reserve, amountOut)
	newOut.HubReserve, err = fixmath.CheckedAdd(out.HubReserve, hubOut)
	if err != nil {
		return nil, err
	}
	if newOut.Reserve.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return &TradeStateChange{
		NewIn:       newIn,
		NewOut:      newOut,
		AmountIn:    amountIn,
		AmountOut:   new(big.Int).Set(amountOut),
		HubIn:       hubIn,
		HubOut:      hubOut,
		ProtocolFee: new(big.Int).Sub(hubIn, hubOut),
		AssetFee:    new(big.Int).Sub(outGross, amountOut),
	}, nil
}

// calculateSellHubStateChanges prices a sell of the hub asset itself for the
// out asset. Single leg, no protocol fee.
func calculateSellHubStateChanges(out *AssetState, amountIn *big.Int, assetFee fixmath.Permill) (*TradeStateChange, error) {
	newOutHub, err := fixmath.CheckedAdd(out.HubReserve, amountIn)
	if err != nil {
		return nil, err
	}
	outGross, err := fixmath.MulDiv(out.Reserve, amountIn, newOutHub, fixmath.Down)
	if err != nil {
		return nil, err
	}
	outFee, err := assetFee.MulCeil(outGross)
	if err != nil {
		return nil, err
	}
	amountOut := new(big.Int).Sub(outGross, outFee)
	if amountOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	newOut := out.Clone()
	newOut.Reserve = new(big.Int).Sub(out.Reserve, amountOut)
	newOut.HubReserve = newOutHub
	if newOut.Reserve.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return &TradeStateChange{
		NewOut:      newOut,
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   amountOut,
		HubIn:       big.NewInt(0),
		HubOut:      new(big.Int).Set(amountIn),
		ProtocolFee: big.NewInt(0),
		AssetFee:    outFee,
	}, nil
}

// calculateBuyForHubStateChanges prices a buy of the out asset paid directly
// in the hub asset. The hub input is rounded up.
func calculateBuyForHubStateChanges(out *AssetState, amountOut *big.Int, assetFee fixmath.Permill) (*TradeStateChange, error) {
	outGross, err := assetFee.DivByComplementCeil(amountOut)
	if err != nil {
		return nil, err
	}
	if outGross.Cmp(out.Reserve) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	outRemainder := new(big.Int).Sub(out.Reserve, outGross)
	hubIn, err := fixmath.MulDiv(out.HubReserve, outGross, outRemainder, fixmath.Up)
	if err != nil {
		return nil, err
	}
	newOut := out.Clone()
	newOut.Reserve = new(big.Int).Sub(out.Reserve, amountOut)
	newOut.HubReserve, err = fixmath.CheckedAdd(out.HubReserve, hubIn)
	if err != nil {
		return nil, err
	}
	if newOut.Reserve.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return &TradeStateChange{
		NewOut:      newOut,
		AmountIn:    hubIn,
		AmountOut:   new(big.Int).Set(amountOut),
		HubIn:       big.NewInt(0),
		HubOut:      new(big.Int).Set(hubIn),
		ProtocolFee: big.NewInt(0),
		AssetFee:    new(big.Int).Sub(outGross, amountOut),
	}, nil
}

// calculateAddLiquidityStateChanges computes the hub backing and shares minted
// for a reserve deposit. Shares round down so the provider never receives more
// than the proportional claim.
func calculateAddLiquidityStateChanges(state *AssetState, amount *big.Int) (*LiquidityStateChange, error) {
	hubDelta, err := fixmath.MulDiv(state.HubReserve, amount, state.Reserve, fixmath.Down)
	if err != nil {
		return nil, err
	}
	shares, err := fixmath.MulDiv(state.Shares, amount, state.Reserve, fixmath.Down)
	if err != nil {
		return nil, err
	}
	if shares.Sign() <= 0 || hubDelta.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	newState := state.Clone()
	if newState.Reserve, err = fixmath.CheckedAdd(state.Reserve, amount); err != nil {
		return nil, err
	}
	if newState.HubReserve, err = fixmath.CheckedAdd(state.HubReserve, hubDelta); err != nil {
		return nil, err
	}
	if newState.Shares, err = fixmath.CheckedAdd(state.Shares, shares); err != nil {
		return nil, err
	}
	return &LiquidityStateChange{NewState: newState, Shares: shares, HubDelta: hubDelta}, nil
}

// calculateRemoveLiquidityStateChanges computes the withdrawal payout for
// burning sharesRemoved of the given position. When the spot price moved below
// the entry price the protocol retains a share portion; when it moved above,
// the provider additionally receives hub asset. The payout never exceeds the
// proportional claim on current reserves.
func calculateRemoveLiquidityStateChanges(state *AssetState, sharesRemoved *big.Int, position *Position) (*RemoveLiquidityStateChange, error) {
	current := state.Price()
	entry := position.Price
	if !entry.IsValid() || entry.IsZero() {
		return nil, ErrInvalidInitialPrice
	}

	// Cross products of the two prices: entry = na/da, current = nc/dc.
	entryCross := new(big.Int).Mul(entry.Num, current.Den)
	currentCross := new(big.Int).Mul(current.Num, entry.Den)
	crossSum := new(big.Int).Add(entryCross, currentCross)

	retained := big.NewInt(0)
	if currentCross.Cmp(entryCross) < 0 {
		diff := new(big.Int).Sub(entryCross, currentCross)
		var err error
		retained, err = fixmath.BigMulDiv(sharesRemoved, diff, crossSum, fixmath.Up)
		if err != nil {
			return nil, err
		}
	}
	sharesBurned := new(big.Int).Sub(sharesRemoved, retained)
	if sharesBurned.Sign() <= 0 {
		return nil, ErrInsufficientShares
	}

	amount, err := fixmath.MulDiv(state.Reserve, sharesBurned, state.Shares, fixmath.Down)
	if err != nil {
		return nil, err
	}
	hubDelta, err := fixmath.MulDiv(state.HubReserve, sharesBurned, state.Shares, fixmath.Down)
	if err != nil {
		return nil, err
	}

	hubAmount := big.NewInt(0)
	if currentCross.Cmp(entryCross) > 0 {
		diff := new(big.Int).Sub(currentCross, entryCross)
		// amount * pc * (pc-pa)/(pc+pa), carried as one rational product.
		num := new(big.Int).Mul(current.Num, diff)
		den := new(big.Int).Mul(current.Den, crossSum)
		hubAmount, err = fixmath.BigMulDiv(amount, num, den, fixmath.Down)
		if err != nil {
			return nil, err
		}
		if hubAmount.Cmp(hubDelta) > 0 {
			hubAmount = new(big.Int).Set(hubDelta)
		}
	}

	newState := state.Clone()
	newState.Reserve = new(big.Int).Sub(state.Reserve, amount)
	newState.HubReserve = new(big.Int).Sub(state.HubReserve, hubDelta)
	newState.Shares = new(big.Int).Sub(state.Shares, sharesBurned)
	if retained.Sign() > 0 {
		if newState.ProtocolShares, err = fixmath.CheckedAdd(state.ProtocolShares, retained); err != nil {
			return nil, err
		}
	}
	if newState.Reserve.Sign() <= 0 || newState.HubReserve.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return &RemoveLiquidityStateChange{
		NewState:       newState,
		Amount:         amount,
		HubAmount:      hubAmount,
		HubDelta:       hubDelta,
		SharesRetained: retained,
		SharesBurned:   sharesBurned,
	}, nil
}

// exceedsWeightCap reports whether growing the asset's hub reserve by deltaQ
// would push it above its permitted fraction of the total hub reserve.
func exceedsWeightCap(cap, hubReserve, deltaQ, totalHub *big.Int) bool {
	if cap == nil || cap.Sign() == 0 {
		return false
	}
	grown := new(big.Int).Add(hubReserve, deltaQ)
	left := new(big.Int).Mul(grown, WeightCapDenominator)
	right := new(big.Int).Mul(cap, new(big.Int).Add(totalHub, deltaQ))
	return left.Cmp(right) > 0
}
