package whatsmeowclient_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/wa-session-gateway/waclient/whatsmeowclient"
	"github.com/stretchr/testify/require"
)

func TestDeviceStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	build := whatsmeowclient.NewFactory("")
	client, err := build(ctx, "tenant-1", dir)
	require.NoError(t, err)

	flusher, ok := client.(interface{ Flush(context.Context) error })
	require.True(t, ok)
	require.NoError(t, flusher.Flush(ctx))

	_, err = os.Stat(filepath.Join(dir, whatsmeowclient.DefaultDBName))
	require.NoError(t, err)

	require.NoError(t, client.Destroy())
	require.NoError(t, client.Destroy())

	_, open := <-client.Events()
	require.False(t, open)
}

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := whatsmeowclient.NewZerologLogger(&buf)
	logger.Sub("Client").Warnf("retrying %d", 3)
	require.Contains(t, buf.String(), `"module":"Client"`)
	require.Contains(t, buf.String(), "retrying 3")
}
