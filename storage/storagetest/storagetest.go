// Package storagetest holds the behavioural checks every storage.Store backend must pass.
package storagetest

import (
	"context"
	"testing"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/storage"
	"github.com/stretchr/testify/require"
)

// Run exercises a fresh store built by newStore for every subtest
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		key := storage.Key("tenant-1", "device.db")
		require.NoError(t, s.Put(ctx, key, []byte("v1")))

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, []byte("v1"), got)

		require.NoError(t, s.Put(ctx, key, []byte("v2")))
		got, err = s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), got)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, storage.Key("tenant-1", "missing"))
		require.Error(t, err)
		require.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("list is prefix scoped and sorted", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, storage.Key("t1", "b.db"), []byte("b")))
		require.NoError(t, s.Put(ctx, storage.Key("t1", "a.db"), []byte("a")))
		require.NoError(t, s.Put(ctx, storage.Key("t1", "nested/c.db"), []byte("c")))
		require.NoError(t, s.Put(ctx, storage.Key("t10", "a.db"), []byte("other")))

		keys, err := s.ListKeys(ctx, storage.TenantPrefix("t1"))
		require.NoError(t, err)
		require.Equal(t, []string{
			"session/t1/a.db",
			"session/t1/b.db",
			"session/t1/nested/c.db",
		}, keys)

		keys, err = s.ListKeys(ctx, storage.TenantPrefix("nobody"))
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("delete single key leaves siblings", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, storage.Key("t1", "device.db"), []byte("db")))
		require.NoError(t, s.Put(ctx, storage.Key("t1", "device.db-wal"), []byte("wal")))

		require.NoError(t, s.Delete(ctx, storage.Key("t1", "device.db")))
		require.NoError(t, s.Delete(ctx, storage.Key("t1", "device.db")))

		keys, err := s.ListKeys(ctx, storage.TenantPrefix("t1"))
		require.NoError(t, err)
		require.Equal(t, []string{"session/t1/device.db-wal"}, keys)
	})

	t.Run("delete all is idempotent and scoped", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, storage.Key("t1", "a"), []byte("a")))
		require.NoError(t, s.Put(ctx, storage.Key("t1", "x/b"), []byte("b")))
		require.NoError(t, s.Put(ctx, storage.Key("t2", "a"), []byte("keep")))

		require.NoError(t, s.DeleteAll(ctx, storage.TenantPrefix("t1")))
		require.NoError(t, s.DeleteAll(ctx, storage.TenantPrefix("t1")))

		keys, err := s.ListKeys(ctx, storage.TenantPrefix("t1"))
		require.NoError(t, err)
		require.Empty(t, keys)

		got, err := s.Get(ctx, storage.Key("t2", "a"))
		require.NoError(t, err)
		require.Equal(t, []byte("keep"), got)
	})

	t.Run("binary payloads round trip", func(t *testing.T) {
		s := newStore(t)
		payload := []byte{0x00, 0xff, 0x10, 0x00, 'S', 'Q', 'L'}
		key := storage.Key("t1", "device.db")
		require.NoError(t, s.Put(ctx, key, payload))
		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, payload, got)
	})
}
