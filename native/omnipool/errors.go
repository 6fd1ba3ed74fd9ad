package omnipool

import "errors"

var (
	// ErrAssetNotFound is returned when the asset has no pool state.
	ErrAssetNotFound = errors.New("omnipool: asset not found")
	// ErrAssetAlreadyAdded is returned when AddToken targets a listed asset.
	ErrAssetAlreadyAdded = errors.New("omnipool: asset already added")
	// ErrAssetNotRegistered is returned when the registry does not know the asset.
	ErrAssetNotRegistered = errors.New("omnipool: asset not registered")
	// ErrNotAllowed is returned for operations disabled by tradability flags
	// and for buying the hub asset, which can only ever be sold into the pool.
	ErrNotAllowed = errors.New("omnipool: operation not allowed")
	// ErrInvalidAmount is returned for zero or sub-minimum trade amounts.
	ErrInvalidAmount = errors.New("omnipool: invalid amount")
	// ErrInsufficientLiquidity is returned when a trade would drain a reserve.
	ErrInsufficientLiquidity = errors.New("omnipool: insufficient liquidity")
	// ErrTradingLimitReached is returned when the realized amount violates the
	// caller's slippage bound.
	ErrTradingLimitReached = errors.New("omnipool: trading limit reached")
	// ErrMaxInRatioExceeded bounds a single trade's input to a fraction of the
	// reserve.
	ErrMaxInRatioExceeded = errors.New("omnipool: max in ratio exceeded")
	// ErrMaxOutRatioExceeded bounds a single trade's output to a fraction of
	// the reserve.
	ErrMaxOutRatioExceeded = errors.New("omnipool: max out ratio exceeded")
	// ErrWeightCapExceeded is returned when added liquidity would push the
	// asset above its share of the total hub reserve.
	ErrWeightCapExceeded = errors.New("omnipool: asset weight cap exceeded")
	// ErrPositionNotFound is returned for unknown position ids.
	ErrPositionNotFound = errors.New("omnipool: position not found")
	// ErrForbidden is returned when the caller does not own the position.
	ErrForbidden = errors.New("omnipool: position not owned by caller")
	// ErrInsufficientShares is returned when a withdrawal exceeds the shares
	// held by the position.
	ErrInsufficientShares = errors.New("omnipool: insufficient shares")
	// ErrInvalidInitialPrice rejects non-positive listing prices.
	ErrInvalidInitialPrice = errors.New("omnipool: invalid initial price")
	// ErrMissingPoolLiquidity rejects listings below the liquidity floor.
	ErrMissingPoolLiquidity = errors.New("omnipool: insufficient initial pool liquidity")
	// ErrSameAsset rejects trades where both legs name the same asset.
	ErrSameAsset = errors.New("omnipool: asset in and asset out are identical")
)
