package ledger

import (
	"encoding/binary"

	"omnidex/core/types"
)

var registryPrefix = []byte("ledger/registry/")

// AssetMetadata describes a registered asset.
type AssetMetadata struct {
	Symbol     string
	Decimals   uint8
	Sufficient bool
}

// Registry is the reference state-backed asset registry. The AMM engines treat
// it as a read-only collaborator; registration happens at genesis wiring.
type Registry struct {
	store Storage
}

func NewRegistry(store Storage) *Registry {
	return &Registry{store: store}
}

func registryKey(asset types.AssetID) []byte {
	key := make([]byte, 0, len(registryPrefix)+8)
	key = append(key, registryPrefix...)
	return binary.BigEndian.AppendUint64(key, uint64(asset))
}

// Register stores metadata for the asset, overwriting any previous entry.
func (r *Registry) Register(asset types.AssetID, meta AssetMetadata) error {
	return r.store.KVPut(registryKey(asset), meta)
}

func (r *Registry) lookup(asset types.AssetID) (AssetMetadata, bool) {
	var meta AssetMetadata
	ok, err := r.store.KVGet(registryKey(asset), &meta)
	if err != nil || !ok {
		return AssetMetadata{}, false
	}
	return meta, true
}

func (r *Registry) Exists(asset types.AssetID) bool {
	_, ok := r.lookup(asset)
	return ok
}

func (r *Registry) Decimals(asset types.AssetID) (uint8, bool) {
	meta, ok := r.lookup(asset)
	if !ok {
		return 0, false
	}
	return meta.Decimals, true
}

func (r *Registry) IsSufficient(asset types.AssetID) bool {
	meta, ok := r.lookup(asset)
	return ok && meta.Sufficient
}
