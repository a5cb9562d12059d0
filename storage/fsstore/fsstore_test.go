package fsstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/wa-session-gateway/storage"
	"github.com/jrsteele09/wa-session-gateway/storage/fsstore"
	"github.com/jrsteele09/wa-session-gateway/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := fsstore.New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestLayoutOnDisk(t *testing.T) {
	root := t.TempDir()
	s, err := fsstore.New(root)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, storage.Key("t1", "device.db"), []byte("db")))

	data, err := os.ReadFile(filepath.Join(root, "session", "t1", "device.db"))
	require.NoError(t, err)
	require.Equal(t, []byte("db"), data)

	require.NoError(t, s.DeleteAll(ctx, storage.TenantPrefix("t1")))
	_, err = os.Stat(filepath.Join(root, "session", "t1"))
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(root)
	require.NoError(t, err)
}

func TestIgnoresStrayTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := fsstore.New(root)
	require.NoError(t, err)

	dir := filepath.Join(root, "session", "t1")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-blob-123"), []byte("partial"), 0o600))

	keys, err := s.ListKeys(context.Background(), storage.TenantPrefix("t1"))
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestRejectsEmptyRoot(t *testing.T) {
	_, err := fsstore.New(" ")
	require.Error(t, err)
}
