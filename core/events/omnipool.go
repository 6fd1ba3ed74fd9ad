package events

import (
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
)

const (
	TypeOmnipoolSellExecuted     = "omnipool.sellExecuted"
	TypeOmnipoolBuyExecuted      = "omnipool.buyExecuted"
	TypeOmnipoolLiquidityAdded   = "omnipool.liquidityAdded"
	TypeOmnipoolLiquidityRemoved = "omnipool.liquidityRemoved"
	TypeOmnipoolTokenAdded       = "omnipool.tokenAdded"
	TypeOmnipoolPositionMoved    = "omnipool.positionTransferred"
)

type OmnipoolSellExecuted struct {
	Who       crypto.Address
	AssetIn   types.AssetID
	AssetOut  types.AssetID
	AmountIn  *big.Int
	AmountOut *big.Int
	FeeAmount *big.Int
}

func (OmnipoolSellExecuted) EventType() string { return TypeOmnipoolSellExecuted }

func (e OmnipoolSellExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeOmnipoolSellExecuted,
		Attributes: map[string]string{
			"who":       e.Who.String(),
			"assetIn":   e.AssetIn.String(),
			"assetOut":  e.AssetOut.String(),
			"amountIn":  bigString(e.AmountIn),
			"amountOut": bigString(e.AmountOut),
			"fee":       bigString(e.FeeAmount),
		},
	}
}

type OmnipoolBuyExecuted struct {
	Who       crypto.Address
	AssetIn   types.AssetID
	AssetOut  types.AssetID
	AmountIn  *big.Int
	AmountOut *big.Int
	FeeAmount *big.Int
}

func (OmnipoolBuyExecuted) EventType() string { return TypeOmnipoolBuyExecuted }

func (e OmnipoolBuyExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeOmnipoolBuyExecuted,
		Attributes: map[string]string{
			"who":       e.Who.String(),
			"assetIn":   e.AssetIn.String(),
			"assetOut":  e.AssetOut.String(),
			"amountIn":  bigString(e.AmountIn),
			"amountOut": bigString(e.AmountOut),
			"fee":       bigString(e.FeeAmount),
		},
	}
}

type OmnipoolLiquidityAdded struct {
	Who        crypto.Address
	AssetID    types.AssetID
	Amount     *big.Int
	Shares     *big.Int
	PositionID uint64
}

func (OmnipoolLiquidityAdded) EventType() string { return TypeOmnipoolLiquidityAdded }

type OmnipoolLiquidityRemoved struct {
	Who          crypto.Address
	AssetID      types.AssetID
	PositionID   uint64
	SharesBurned *big.Int
	Amount       *big.Int
	HubAmount    *big.Int
}

func (OmnipoolLiquidityRemoved) EventType() string { return TypeOmnipoolLiquidityRemoved }

type OmnipoolTokenAdded struct {
	AssetID        types.AssetID
	InitialReserve *big.Int
	InitialShares  *big.Int
}

func (OmnipoolTokenAdded) EventType() string { return TypeOmnipoolTokenAdded }

type OmnipoolPositionTransferred struct {
	PositionID uint64
	From       crypto.Address
	To         crypto.Address
}

func (OmnipoolPositionTransferred) EventType() string { return TypeOmnipoolPositionMoved }

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
