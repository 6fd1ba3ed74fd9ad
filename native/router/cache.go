package router

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"lukechampine.com/blake3"

	"omnidex/core/types"
)

// ErrRouteCorrupted signals that a stored route failed its checksum. The route
// is treated as absent so callers fall back to the direct default.
var ErrRouteCorrupted = errors.New("router: stored route checksum mismatch")

// routeKey addresses the stored route for an asset pair. Routes are stored once
// per unordered pair, oriented from the lower asset id to the higher.
func routeKey(a, b types.AssetID) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("router/route/%d/%d", a, b))
}

type tradeRecord struct {
	Tag      uint8
	PoolID   uint64
	AssetIn  uint64
	AssetOut uint64
}

type routeRecord struct {
	Hops     []tradeRecord
	Checksum []byte
}

// routeChecksum hashes the hop content so tampered or partially written routes
// are detected on read.
func routeChecksum(hops []Trade) []byte {
	var buf bytes.Buffer
	scratch := make([]byte, 8)
	for _, hop := range hops {
		buf.WriteByte(byte(hop.Pool.Tag))
		binary.BigEndian.PutUint64(scratch, uint64(hop.Pool.PoolID))
		buf.Write(scratch)
		binary.BigEndian.PutUint64(scratch, uint64(hop.AssetIn))
		buf.Write(scratch)
		binary.BigEndian.PutUint64(scratch, uint64(hop.AssetOut))
		buf.Write(scratch)
	}
	sum := blake3.Sum256(buf.Bytes())
	return sum[:]
}

// Storage abstracts the subset of state manager functionality the route cache
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

// GetRoute loads the stored route for the pair oriented assetIn to assetOut.
// The second return is false when no route is stored.
func (s *State) GetRoute(assetIn, assetOut types.AssetID) ([]Trade, bool, error) {
	var record routeRecord
	ok, err := s.store.KVGet(routeKey(assetIn, assetOut), &record)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	hops := make([]Trade, len(record.Hops))
	for i, hop := range record.Hops {
		hops[i] = Trade{
			Pool:     PoolKind{Tag: PoolKindTag(hop.Tag), PoolID: types.AssetID(hop.PoolID)},
			AssetIn:  types.AssetID(hop.AssetIn),
			AssetOut: types.AssetID(hop.AssetOut),
		}
	}
	if !bytes.Equal(record.Checksum, routeChecksum(hops)) {
		return nil, false, ErrRouteCorrupted
	}
	if assetOut < assetIn {
		hops = reverseRoute(hops)
	}
	return hops, true, nil
}

// PutRoute stores the route under the normalised pair key. The route must be
// oriented assetIn to assetOut; it is reversed before storage when needed.
func (s *State) PutRoute(assetIn, assetOut types.AssetID, route []Trade) error {
	if assetOut < assetIn {
		route = reverseRoute(route)
	}
	hops := make([]tradeRecord, len(route))
	for i, hop := range route {
		hops[i] = tradeRecord{
			Tag:      uint8(hop.Pool.Tag),
			PoolID:   uint64(hop.Pool.PoolID),
			AssetIn:  uint64(hop.AssetIn),
			AssetOut: uint64(hop.AssetOut),
		}
	}
	return s.store.KVPut(routeKey(assetIn, assetOut), routeRecord{
		Hops:     hops,
		Checksum: routeChecksum(route),
	})
}

// reverseRoute flips a route to price the opposite direction. Every supported
// pool kind trades symmetrically so the same hops apply in reverse order with
// the legs swapped.
func reverseRoute(route []Trade) []Trade {
	reversed := make([]Trade, len(route))
	for i, hop := range route {
		reversed[len(route)-1-i] = Trade{
			Pool:     hop.Pool,
			AssetIn:  hop.AssetOut,
			AssetOut: hop.AssetIn,
		}
	}
	return reversed
}
