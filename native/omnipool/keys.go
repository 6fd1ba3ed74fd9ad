package omnipool

import (
	"encoding/binary"
	"math/big"

	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
)

// Storage abstracts the subset of state manager functionality required by the
// pool state model.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	assetPrefix    = []byte("omnipool/asset/")
	assetIndexKey  = []byte("omnipool/assets")
	imbalanceKey   = []byte("omnipool/imbalance")
	positionPrefix = []byte("omnipool/position/")
	positionSeqKey = []byte("omnipool/position/seq")
)

func assetKey(asset types.AssetID) []byte {
	key := make([]byte, 0, len(assetPrefix)+8)
	key = append(key, assetPrefix...)
	return binary.BigEndian.AppendUint64(key, uint64(asset))
}

func positionKey(id uint64) []byte {
	key := make([]byte, 0, len(positionPrefix)+8)
	key = append(key, positionPrefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

// State is the typed accessor for all omnipool records. Every value is RLP
// encoded by the underlying store, so records only carry RLP-friendly fields.
type State struct {
	store Storage
}

func NewState(store Storage) *State {
	return &State{store: store}
}

type assetRecord struct {
	Reserve        *big.Int
	HubReserve     *big.Int
	Shares         *big.Int
	ProtocolShares *big.Int
	Cap            *big.Int
	Tradable       uint8
}

type imbalanceRecord struct {
	Value    *big.Int
	Negative bool
}

type positionRecord struct {
	OwnerPrefix string
	Owner       []byte
	AssetID     uint64
	Amount      *big.Int
	Shares      *big.Int
	PriceNum    *big.Int
	PriceDen    *big.Int
}

type assetIndexRecord struct {
	Assets []uint64
}

type seqRecord struct {
	Next uint64
}

// GetAsset loads the pool-side state of one asset.
func (s *State) GetAsset(asset types.AssetID) (*AssetState, error) {
	var record assetRecord
	ok, err := s.store.KVGet(assetKey(asset), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	return &AssetState{
		Reserve:        record.Reserve,
		HubReserve:     record.HubReserve,
		Shares:         record.Shares,
		ProtocolShares: record.ProtocolShares,
		Cap:            record.Cap,
		Tradable:       Tradability(record.Tradable),
	}, nil
}

// HasAsset reports whether the asset is listed.
func (s *State) HasAsset(asset types.AssetID) (bool, error) {
	return s.store.KVGet(assetKey(asset), nil)
}

// PutAsset stores the pool-side state of one asset.
func (s *State) PutAsset(asset types.AssetID, state *AssetState) error {
	record := assetRecord{
		Reserve:        state.Reserve,
		HubReserve:     state.HubReserve,
		Shares:         state.Shares,
		ProtocolShares: state.ProtocolShares,
		Cap:            state.Cap,
		Tradable:       uint8(state.Tradable),
	}
	return s.store.KVPut(assetKey(asset), record)
}

// RemoveAsset deletes the asset record and drops it from the listing index.
func (s *State) RemoveAsset(asset types.AssetID) error {
	if err := s.store.KVDelete(assetKey(asset)); err != nil {
		return err
	}
	listed, err := s.ListAssets()
	if err != nil {
		return err
	}
	filtered := make([]uint64, 0, len(listed))
	for _, id := range listed {
		if id != asset {
			filtered = append(filtered, uint64(id))
		}
	}
	return s.store.KVPut(assetIndexKey, assetIndexRecord{Assets: filtered})
}

// ListAssets returns every listed asset id in listing order.
func (s *State) ListAssets() ([]types.AssetID, error) {
	var record assetIndexRecord
	if _, err := s.store.KVGet(assetIndexKey, &record); err != nil {
		return nil, err
	}
	assets := make([]types.AssetID, len(record.Assets))
	for i, id := range record.Assets {
		assets[i] = types.AssetID(id)
	}
	return assets, nil
}

// IndexAsset appends the asset to the listing index.
func (s *State) IndexAsset(asset types.AssetID) error {
	var record assetIndexRecord
	if _, err := s.store.KVGet(assetIndexKey, &record); err != nil {
		return err
	}
	record.Assets = append(record.Assets, uint64(asset))
	return s.store.KVPut(assetIndexKey, record)
}

// Imbalance loads the hub asset imbalance, zero when unset.
func (s *State) Imbalance() (*SignedBalance, error) {
	var record imbalanceRecord
	ok, err := s.store.KVGet(imbalanceKey, &record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Value == nil {
		return ZeroSignedBalance(), nil
	}
	return &SignedBalance{Value: record.Value, Negative: record.Negative}, nil
}

// SetImbalance stores the hub asset imbalance.
func (s *State) SetImbalance(imbalance *SignedBalance) error {
	return s.store.KVPut(imbalanceKey, imbalanceRecord{Value: imbalance.Value, Negative: imbalance.Negative})
}

// NextPositionID allocates the next position id from the stored sequence.
func (s *State) NextPositionID() (uint64, error) {
	var record seqRecord
	if _, err := s.store.KVGet(positionSeqKey, &record); err != nil {
		return 0, err
	}
	record.Next++
	if err := s.store.KVPut(positionSeqKey, record); err != nil {
		return 0, err
	}
	return record.Next, nil
}

// GetPosition loads a liquidity position by id.
func (s *State) GetPosition(id uint64) (*Position, error) {
	var record positionRecord
	ok, err := s.store.KVGet(positionKey(id), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPositionNotFound
	}
	return &Position{
		ID:      id,
		Owner:   crypto.NewAddress(crypto.AddressPrefix(record.OwnerPrefix), record.Owner),
		AssetID: types.AssetID(record.AssetID),
		Amount:  record.Amount,
		Shares:  record.Shares,
		Price:   fixmath.Ratio{Num: record.PriceNum, Den: record.PriceDen},
	}, nil
}

// PutPosition stores a liquidity position.
func (s *State) PutPosition(position *Position) error {
	record := positionRecord{
		OwnerPrefix: string(position.Owner.Prefix()),
		Owner:       position.Owner.Bytes(),
		AssetID:     uint64(position.AssetID),
		Amount:      position.Amount,
		Shares:      position.Shares,
		PriceNum:    position.Price.Num,
		PriceDen:    position.Price.Den,
	}
	return s.store.KVPut(positionKey(position.ID), record)
}

// DeletePosition destroys a position record after full withdrawal.
func (s *State) DeletePosition(id uint64) error {
	return s.store.KVDelete(positionKey(id))
}
