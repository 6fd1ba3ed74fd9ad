package state

import (
	"fmt"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"omnidex/storage"
)

// Manager provides typed access to the runtime key-value state. Values are RLP
// encoded and keys are hashed with keccak256 before hitting the backing store.
//
// The manager supports nested transactions: Begin pushes a fresh overlay that
// captures every write, Commit folds the overlay into its parent (or the
// database when it is the outermost one) and Rollback discards it. Reads always
// observe the newest overlay first, so an operation sees its own uncommitted
// writes. The manager is single-writer by design; callers must not mutate state
// concurrently.
type Manager struct {
	db       storage.Database
	overlays []map[string]*entry
}

type entry struct {
	value   []byte
	deleted bool
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return gethcrypto.Keccak256(key)
}

// Begin opens a new transaction overlay.
func (m *Manager) Begin() {
	m.overlays = append(m.overlays, make(map[string]*entry))
}

// Commit folds the newest overlay into its parent, or flushes it to the backing
// database when no parent transaction exists.
func (m *Manager) Commit() error {
	n := len(m.overlays)
	if n == 0 {
		return fmt.Errorf("state: commit without begin")
	}
	top := m.overlays[n-1]
	m.overlays = m.overlays[:n-1]
	if n > 1 {
		parent := m.overlays[n-2]
		for k, e := range top {
			parent[k] = e
		}
		return nil
	}
	for k, e := range top {
		if e.deleted {
			if err := m.db.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := m.db.Put([]byte(k), e.value); err != nil {
			return err
		}
	}
	return nil
}

// Rollback discards the newest overlay and every write staged in it.
func (m *Manager) Rollback() {
	if n := len(m.overlays); n > 0 {
		m.overlays = m.overlays[:n-1]
	}
}

// WithTransaction runs fn inside a transaction. Any error (or panic) discards
// every state write performed by fn; success commits them atomically.
func (m *Manager) WithTransaction(fn func() error) (err error) {
	m.Begin()
	defer func() {
		if r := recover(); r != nil {
			m.Rollback()
			panic(r)
		}
		if err != nil {
			m.Rollback()
			return
		}
		err = m.Commit()
	}()
	err = fn()
	return err
}

// InTransaction reports whether at least one overlay is open.
func (m *Manager) InTransaction() bool {
	return len(m.overlays) > 0
}

func (m *Manager) rawGet(hashed []byte) ([]byte, bool, error) {
	k := string(hashed)
	for i := len(m.overlays) - 1; i >= 0; i-- {
		if e, ok := m.overlays[i][k]; ok {
			if e.deleted {
				return nil, false, nil
			}
			return e.value, true, nil
		}
	}
	data, err := m.db.Get(hashed)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, len(data) > 0, nil
}

func (m *Manager) rawPut(hashed, value []byte) error {
	if n := len(m.overlays); n > 0 {
		m.overlays[n-1][string(hashed)] = &entry{value: value}
		return nil
	}
	return m.db.Put(hashed, value)
}

func (m *Manager) rawDelete(hashed []byte) error {
	if n := len(m.overlays); n > 0 {
		m.overlays[n-1][string(hashed)] = &entry{deleted: true}
		return nil
	}
	return m.db.Delete(hashed)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.rawPut(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.rawGet(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key, if any.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.rawDelete(kvKey(key))
}
