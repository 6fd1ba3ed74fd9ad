package circuitbreaker

import (
	"fmt"
	"math/big"

	"omnidex/core/types"
)

type limitKind uint8

const (
	limitTrade limitKind = iota
	limitAdd
	limitRemove
)

func (k limitKind) String() string {
	switch k {
	case limitTrade:
		return "trade"
	case limitAdd:
		return "add"
	case limitRemove:
		return "remove"
	default:
		return "unknown"
	}
}

func volumeKey(asset types.AssetID) []byte {
	return []byte(fmt.Sprintf("circuitbreaker/volume/%d", asset))
}

func liquidityKey(kind limitKind, asset types.AssetID) []byte {
	return []byte(fmt.Sprintf("circuitbreaker/liquidity/%s/%d", kind, asset))
}

func limitKey(kind limitKind, asset types.AssetID) []byte {
	return []byte(fmt.Sprintf("circuitbreaker/limit/%s/%d", kind, asset))
}

var touchedKey = []byte("circuitbreaker/touched")

// VolumeRecord accumulates one asset's trade flow within the current block.
// BaseReserve is the reserve observed when the asset was first touched.
type VolumeRecord struct {
	BaseReserve *big.Int
	In          *big.Int
	Out         *big.Int
}

// LiquidityRecord accumulates one asset's liquidity change within the current
// block.
type LiquidityRecord struct {
	BaseReserve *big.Int
	Accumulated *big.Int
}

type limitRecord struct {
	Limit uint32
}

// touchedRecord indexes the accumulator keys written during the block so
// OnFinalize can clear them without a range scan.
type touchedRecord struct {
	Keys [][]byte
}

// Storage abstracts the subset of state manager functionality the breaker
// needs.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type State struct {
	store Storage
}

func NewState(store Storage) *State {
	return &State{store: store}
}

func (s *State) Volume(asset types.AssetID) (*VolumeRecord, error) {
	var record VolumeRecord
	ok, err := s.store.KVGet(volumeKey(asset), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *State) PutVolume(asset types.AssetID, record *VolumeRecord) error {
	key := volumeKey(asset)
	if err := s.touch(key); err != nil {
		return err
	}
	return s.store.KVPut(key, record)
}

func (s *State) Liquidity(kind limitKind, asset types.AssetID) (*LiquidityRecord, error) {
	var record LiquidityRecord
	ok, err := s.store.KVGet(liquidityKey(kind, asset), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *State) PutLiquidity(kind limitKind, asset types.AssetID, record *LiquidityRecord) error {
	key := liquidityKey(kind, asset)
	if err := s.touch(key); err != nil {
		return err
	}
	return s.store.KVPut(key, record)
}

func (s *State) GetLimit(kind limitKind, asset types.AssetID) (uint32, bool, error) {
	var record limitRecord
	ok, err := s.store.KVGet(limitKey(kind, asset), &record)
	if err != nil || !ok {
		return 0, false, err
	}
	return record.Limit, true, nil
}

func (s *State) PutLimit(kind limitKind, asset types.AssetID, limit uint32) error {
	return s.store.KVPut(limitKey(kind, asset), limitRecord{Limit: limit})
}

func (s *State) touch(key []byte) error {
	var touched touchedRecord
	if _, err := s.store.KVGet(touchedKey, &touched); err != nil {
		return err
	}
	for _, existing := range touched.Keys {
		if string(existing) == string(key) {
			return nil
		}
	}
	touched.Keys = append(touched.Keys, key)
	return s.store.KVPut(touchedKey, touched)
}

// ClearAccumulators deletes every accumulator written since the last clear.
func (s *State) ClearAccumulators() error {
	var touched touchedRecord
	ok, err := s.store.KVGet(touchedKey, &touched)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	for _, key := range touched.Keys {
		if err := s.store.KVDelete(key); err != nil {
			return err
		}
	}
	return s.store.KVDelete(touchedKey)
}
