package common

import (
	"errors"
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
)

var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Ledger abstracts the multi-currency balance collaborator. The AMM engines
// never track account balances themselves; they compute intended deltas and
// instruct the ledger to move funds.
type Ledger interface {
	Transfer(from, to crypto.Address, asset types.AssetID, amount *big.Int) error
	Mint(to crypto.Address, asset types.AssetID, amount *big.Int) error
	Burn(from crypto.Address, asset types.AssetID, amount *big.Int) error
	FreeBalance(addr crypto.Address, asset types.AssetID) (*big.Int, error)
	// ReducibleBalance is the portion of the free balance the account may
	// actually spend. The reference ledger has no locks so the two agree,
	// but the router only ever trusts ReducibleBalance.
	ReducibleBalance(addr crypto.Address, asset types.AssetID) (*big.Int, error)
}

// Registry exposes read-only asset metadata lookups.
type Registry interface {
	Exists(asset types.AssetID) bool
	Decimals(asset types.AssetID) (uint8, bool)
	IsSufficient(asset types.AssetID) bool
}
