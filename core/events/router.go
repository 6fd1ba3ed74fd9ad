package events

import (
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
)

const (
	TypeRouteExecuted = "router.routeExecuted"
	TypeRouteUpdated  = "router.routeUpdated"
)

type RouteExecuted struct {
	Who       crypto.Address
	AssetIn   types.AssetID
	AssetOut  types.AssetID
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (RouteExecuted) EventType() string { return TypeRouteExecuted }

func (e RouteExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeRouteExecuted,
		Attributes: map[string]string{
			"who":       e.Who.String(),
			"assetIn":   e.AssetIn.String(),
			"assetOut":  e.AssetOut.String(),
			"amountIn":  bigString(e.AmountIn),
			"amountOut": bigString(e.AmountOut),
		},
	}
}

type RouteUpdated struct {
	AssetIn  types.AssetID
	AssetOut types.AssetID
	Hops     uint32
	// Paid records whether the caller was charged for the update. Updates
	// that strictly dominate the cached route are free.
	Paid bool
}

func (RouteUpdated) EventType() string { return TypeRouteUpdated }
