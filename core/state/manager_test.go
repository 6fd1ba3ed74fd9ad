package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"omnidex/storage"
)

type record struct {
	Value uint64
}

func TestManagerRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.NoError(t, m.KVPut([]byte("test/key"), record{Value: 7}))

	var out record
	ok, err := m.KVGet([]byte("test/key"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), out.Value)

	ok, err = m.KVGet([]byte("test/missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerDelete(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.NoError(t, m.KVPut([]byte("k"), record{Value: 1}))
	require.NoError(t, m.KVDelete([]byte("k")))

	ok, err := m.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.KVPut([]byte("k"), record{Value: 1}))

	errBoom := errors.New("boom")
	err := m.WithTransaction(func() error {
		if err := m.KVPut([]byte("k"), record{Value: 2}); err != nil {
			return err
		}
		if err := m.KVPut([]byte("k2"), record{Value: 3}); err != nil {
			return err
		}
		var out record
		ok, err := m.KVGet([]byte("k"), &out)
		if err != nil || !ok || out.Value != 2 {
			t.Fatalf("expected staged write to be visible, got ok=%v value=%+v err=%v", ok, out, err)
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	var out record
	ok, err := m.KVGet([]byte("k"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), out.Value)

	ok, err = m.KVGet([]byte("k2"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNestedTransactions(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	err := m.WithTransaction(func() error {
		if err := m.KVPut([]byte("outer"), record{Value: 1}); err != nil {
			return err
		}
		inner := m.WithTransaction(func() error {
			if err := m.KVPut([]byte("inner"), record{Value: 2}); err != nil {
				return err
			}
			return errors.New("inner failure")
		})
		require.Error(t, inner)
		return nil
	})
	require.NoError(t, err)

	ok, err := m.KVGet([]byte("outer"), nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.KVGet([]byte("inner"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTransactionDeleteVisibility(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.KVPut([]byte("k"), record{Value: 9}))

	err := m.WithTransaction(func() error {
		if err := m.KVDelete([]byte("k")); err != nil {
			return err
		}
		ok, err := m.KVGet([]byte("k"), nil)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	ok, err := m.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}
