// Package storetest holds the conformance suite every storage.Store
// implementation is run against.
package storetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/remotehand/storage"
)

// Run exercises store with the common suite. The store is closed at the end.
func Run(t *testing.T, store storage.Store) {
	t.Helper()

	t.Run("GetDefaultWhenMissing", func(t *testing.T) {
		v, err := store.Get("missing", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", v)

		ok, err := store.Has("missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetThenGet", func(t *testing.T) {
		require.NoError(t, store.Set(storage.KeyPassword, "abc123"))

		ok, err := store.Has(storage.KeyPassword)
		require.NoError(t, err)
		assert.True(t, ok)

		v, err := store.Get(storage.KeyPassword, "genonbeta")
		require.NoError(t, err)
		assert.Equal(t, "abc123", v)
	})

	t.Run("EmptyValueIsPresent", func(t *testing.T) {
		require.NoError(t, store.Set(storage.KeyDeviceName, ""))
		ok, err := store.Has(storage.KeyDeviceName)
		require.NoError(t, err)
		assert.True(t, ok)

		v, err := store.Get(storage.KeyDeviceName, "model")
		require.NoError(t, err)
		assert.Equal(t, "", v)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set("k", "one"))
		require.NoError(t, store.Set("k", "two"))
		v, err := store.Get("k", "")
		require.NoError(t, err)
		assert.Equal(t, "two", v)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set("gone", "x"))
		require.NoError(t, store.Delete("gone"))
		ok, err := store.Has("gone")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, store.Delete("gone"), storage.ErrNotFound)
	})

	t.Run("Closed", func(t *testing.T) {
		require.NoError(t, store.Close())
		_, err := store.Has(storage.KeyPassword)
		assert.ErrorIs(t, err, storage.ErrClosed)
		assert.ErrorIs(t, store.Set("k", "v"), storage.ErrClosed)
	})
}
