package persistence_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/persistence"
	"github.com/jrsteele09/wa-session-gateway/storage"
	"github.com/jrsteele09/wa-session-gateway/storage/repofakes"
	"github.com/jrsteele09/wa-session-gateway/waclient/clientfakes"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	store *repofakes.FakeStore
	sync  *persistence.Synchronizer
	root  string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	root := t.TempDir()
	store := repofakes.NewFakeStore()
	return &testFixture{
		store: store,
		sync:  persistence.New(store, root, persistence.WithSettle(20*time.Millisecond, 200*time.Millisecond)),
		root:  root,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestCredentialDir(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, filepath.Join(f.root, "tenant-1"), f.sync.CredentialDir("tenant-1"))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing stored is not an error", func(t *testing.T) {
		f := setupTestFixture(t)
		res, err := f.sync.Restore(ctx, "t1")
		require.NoError(t, err)
		require.False(t, res.Restored)

		res, err = f.sync.Restore(ctx, "t1")
		require.NoError(t, err)
		require.False(t, res.Restored)

		_, err = os.Stat(f.sync.CredentialDir("t1"))
		require.True(t, os.IsNotExist(err))
	})

	t.Run("writes stored files into the credential dir", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Put(ctx, storage.Key("t1", "device.db"), []byte("db")))
		require.NoError(t, f.store.Put(ctx, storage.Key("t1", "keys/identity"), []byte("id")))

		stale := filepath.Join(f.sync.CredentialDir("t1"), "stale.db")
		writeFile(t, stale, "old")

		res, err := f.sync.Restore(ctx, "t1")
		require.NoError(t, err)
		require.True(t, res.Restored)
		require.Equal(t, 2, res.Files)

		data, err := os.ReadFile(filepath.Join(f.sync.CredentialDir("t1"), "device.db"))
		require.NoError(t, err)
		require.Equal(t, "db", string(data))
		data, err = os.ReadFile(filepath.Join(f.sync.CredentialDir("t1"), "keys", "identity"))
		require.NoError(t, err)
		require.Equal(t, "id", string(data))

		_, err = os.Stat(stale)
		require.True(t, os.IsNotExist(err))

		res, err = f.sync.Restore(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, 2, res.Files)
	})

	t.Run("failure part way clears the credential dir", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Put(ctx, storage.Key("t1", "device.db"), []byte("db")))
		require.NoError(t, f.store.Put(ctx, storage.Key("t1", "keys/identity"), []byte("id")))
		f.store.FailOnKey(repofakes.OpGet, storage.Key("t1", "keys/identity"), errors.New("offline"))

		dir := f.sync.CredentialDir("t1")
		writeFile(t, filepath.Join(dir, "keys", "identity"), "previous session")

		_, err := f.sync.Restore(ctx, "t1")
		require.True(t, errors.Is(err, errors.ErrStorageUnavailable))
		_, err = os.Stat(dir)
		require.True(t, os.IsNotExist(err))

		f.store.FailOnKey(repofakes.OpGet, storage.Key("t1", "keys/identity"), nil)
		res, err := f.sync.Restore(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, 2, res.Files)
	})

	t.Run("storage failure is returned", func(t *testing.T) {
		f := setupTestFixture(t)
		f.store.FailOn(repofakes.OpListKeys, errors.New("offline"))
		_, err := f.sync.Restore(ctx, "t1")
		require.True(t, errors.Is(err, errors.ErrStorageUnavailable))
	})
}

func TestPersist(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads after flush and prunes orphans", func(t *testing.T) {
		f := setupTestFixture(t)
		dir := f.sync.CredentialDir("t1")
		writeFile(t, filepath.Join(dir, "device.db"), "db")
		writeFile(t, filepath.Join(dir, "device.db-shm"), "shm")
		writeFile(t, filepath.Join(dir, "device.db.lock"), "")
		require.NoError(t, f.store.Put(ctx, storage.Key("t1", "gone.db"), []byte("orphan")))

		client := clientfakes.NewFakeClient("t1", dir)
		client.OnFlush(func() error {
			return os.WriteFile(filepath.Join(dir, "device.db-wal"), []byte("wal"), 0o600)
		})

		res, err := f.sync.Persist(ctx, "t1", client)
		require.NoError(t, err)
		require.Equal(t, 1, client.Flushes())
		require.Equal(t, 2, res.Uploaded)
		require.Equal(t, 1, res.Pruned)

		keys, err := f.store.ListKeys(ctx, storage.TenantPrefix("t1"))
		require.NoError(t, err)
		require.Equal(t, []string{"session/t1/device.db", "session/t1/device.db-wal"}, keys)
	})

	t.Run("waits for writes to settle", func(t *testing.T) {
		f := setupTestFixture(t)
		dir := f.sync.CredentialDir("t1")
		writeFile(t, filepath.Join(dir, "device.db"), "v1")

		go func() {
			time.Sleep(5 * time.Millisecond)
			_ = os.WriteFile(filepath.Join(dir, "device.db"), []byte("v2"), 0o600)
		}()

		_, err := f.sync.Persist(ctx, "t1", nil)
		require.NoError(t, err)

		data, err := f.store.Get(ctx, storage.Key("t1", "device.db"))
		require.NoError(t, err)
		require.Equal(t, "v2", string(data))
	})

	t.Run("missing credential dir", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.sync.Persist(ctx, "nobody", nil)
		require.Error(t, err)
	})

	t.Run("upload failure is surfaced", func(t *testing.T) {
		f := setupTestFixture(t)
		writeFile(t, filepath.Join(f.sync.CredentialDir("t1"), "device.db"), "db")
		f.store.FailOn(repofakes.OpPut, errors.New("offline"))

		_, err := f.sync.Persist(ctx, "t1", nil)
		require.True(t, errors.Is(err, errors.ErrStorageUnavailable))
	})

	t.Run("round trip through restore", func(t *testing.T) {
		f := setupTestFixture(t)
		dir := f.sync.CredentialDir("t1")
		writeFile(t, filepath.Join(dir, "device.db"), "paired")

		_, err := f.sync.Persist(ctx, "t1", nil)
		require.NoError(t, err)
		require.NoError(t, os.RemoveAll(dir))

		res, err := f.sync.Restore(ctx, "t1")
		require.NoError(t, err)
		require.True(t, res.Restored)
		data, err := os.ReadFile(filepath.Join(dir, "device.db"))
		require.NoError(t, err)
		require.Equal(t, "paired", string(data))
	})
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	dir := f.sync.CredentialDir("t1")
	writeFile(t, filepath.Join(dir, "device.db"), "db")
	require.NoError(t, f.store.Put(ctx, storage.Key("t1", "device.db"), []byte("db")))
	require.NoError(t, f.store.Put(ctx, storage.Key("t2", "device.db"), []byte("other")))

	require.NoError(t, f.sync.Purge(ctx, "t1"))
	require.NoError(t, f.sync.Purge(ctx, "t1"))

	_, err := f.store.Get(ctx, storage.Key("t1", "device.db"))
	require.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	_, err = f.store.Get(ctx, storage.Key("t2", "device.db"))
	require.NoError(t, err)

	f.store.FailOn(repofakes.OpDeleteAll, errors.New("offline"))
	require.True(t, errors.Is(f.sync.Purge(ctx, "t1"), errors.ErrStorageUnavailable))
}
