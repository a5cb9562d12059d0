package gormstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/wa-session-gateway/storage"
	"github.com/jrsteele09/wa-session-gateway/storage/gormstore"
	"github.com/jrsteele09/wa-session-gateway/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *gormstore.Store {
	t.Helper()
	s, err := gormstore.New(gormstore.DriverSQLite, filepath.Join(t.TempDir(), "nested", "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newSQLiteStore(t)
	})
}

func TestPrefixWildcardsAreLiteral(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "session/a_b/x", []byte("1")))
	require.NoError(t, s.Put(ctx, "session/aXb/x", []byte("2")))
	require.NoError(t, s.Put(ctx, "session/a%/x", []byte("3")))

	keys, err := s.ListKeys(ctx, "session/a_b/")
	require.NoError(t, err)
	require.Equal(t, []string{"session/a_b/x"}, keys)

	keys, err = s.ListKeys(ctx, "session/a%/")
	require.NoError(t, err)
	require.Equal(t, []string{"session/a%/x"}, keys)
}

func TestReopenKeepsBlobs(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "blobs.db")
	ctx := context.Background()

	s, err := gormstore.New(gormstore.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, storage.Key("t1", "device.db"), []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = gormstore.New(gormstore.DriverSQLite, dsn)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, storage.Key("t1", "device.db"))
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}

func TestOpenGormRejectsUnknownDriver(t *testing.T) {
	_, err := gormstore.OpenGorm("oracle", "dsn")
	require.Error(t, err)

	_, err = gormstore.OpenGorm(gormstore.DriverPostgres, "")
	require.Error(t, err)
}
