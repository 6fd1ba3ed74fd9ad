package ledger

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
	nativecommon "omnidex/native/common"
)

// Storage abstracts the subset of state manager functionality required by the
// ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var balancePrefix = []byte("ledger/balance/")

// Ledger is the reference state-backed multi-currency balance implementation.
// It participates in the state manager's transaction overlay, so balance moves
// roll back together with pool state.
type Ledger struct {
	store Storage
}

func New(store Storage) *Ledger {
	return &Ledger{store: store}
}

type balanceRecord struct {
	Amount *big.Int
}

func balanceKey(addr crypto.Address, asset types.AssetID) []byte {
	suffix := addr.Bytes()
	key := make([]byte, 0, len(balancePrefix)+8+1+len(suffix))
	key = append(key, balancePrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(asset))
	key = append(key, '/')
	key = append(key, suffix...)
	return key
}

func (l *Ledger) balance(addr crypto.Address, asset types.AssetID) (*big.Int, error) {
	var record balanceRecord
	ok, err := l.store.KVGet(balanceKey(addr, asset), &record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return record.Amount, nil
}

func (l *Ledger) setBalance(addr crypto.Address, asset types.AssetID, amount *big.Int) error {
	return l.store.KVPut(balanceKey(addr, asset), balanceRecord{Amount: amount})
}

// FreeBalance returns the full balance held by the account.
func (l *Ledger) FreeBalance(addr crypto.Address, asset types.AssetID) (*big.Int, error) {
	return l.balance(addr, asset)
}

// ReducibleBalance returns the spendable balance. The reference ledger has no
// locking, so this equals the free balance.
func (l *Ledger) ReducibleBalance(addr crypto.Address, asset types.AssetID) (*big.Int, error) {
	return l.balance(addr, asset)
}

// Transfer moves amount of asset between two accounts.
func (l *Ledger) Transfer(from, to crypto.Address, asset types.AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := l.balance(from, asset)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return nativecommon.ErrInsufficientBalance
	}
	toBalance, err := l.balance(to, asset)
	if err != nil {
		return err
	}
	newTo, err := fixmath.CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	if err := l.setBalance(from, asset, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.setBalance(to, asset, newTo)
}

// Mint credits newly issued units of asset to the account.
func (l *Ledger) Mint(to crypto.Address, asset types.AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: mint amount must be non-negative")
	}
	balance, err := l.balance(to, asset)
	if err != nil {
		return err
	}
	updated, err := fixmath.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	return l.setBalance(to, asset, updated)
}

// Burn destroys units of asset held by the account.
func (l *Ledger) Burn(from crypto.Address, asset types.AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: burn amount must be non-negative")
	}
	balance, err := l.balance(from, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return nativecommon.ErrInsufficientBalance
	}
	return l.setBalance(from, asset, new(big.Int).Sub(balance, amount))
}
