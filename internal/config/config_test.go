package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New(viper.New())

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, 20*time.Second, c.GetQRTTL())
	require.Equal(t, 15*time.Second, c.GetQRTimeout())
	require.Equal(t, 2*time.Second, c.GetPersistSettle())
	require.Equal(t, 10*time.Second, c.GetPersistMaxSettle())
	require.Equal(t, 4, c.GetBulkConcurrency())
	require.Equal(t, config.BackendMemory, c.GetStorageBackend())
	require.False(t, c.GetRequireAuth())
	require.Empty(t, c.GetAllowedOrigins())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "prod")
	t.Setenv("QR_TTL", "45s")
	t.Setenv("BULK_CONCURRENCY", "16")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("API_JWT_SECRET", "shh")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	c := config.New(viper.New())

	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "PROD", c.GetEnv())
	require.Equal(t, 45*time.Second, c.GetQRTTL())
	require.Equal(t, 16, c.GetBulkConcurrency())
	require.Equal(t, config.BackendS3, c.GetStorageBackend())
	require.True(t, c.GetRequireAuth())

	origins := c.GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://a.example.com"))
	require.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	require.Equal(t, "https://a.example.com, https://b.example.com", origins.String())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("QR_TIMEOUT: 3s\nSTORAGE_BACKEND: fs\n"), 0o644))

	v := viper.New()
	require.NoError(t, config.LoadFile(v, path))
	c := config.New(v)

	require.Equal(t, 3*time.Second, c.GetQRTimeout())
	require.Equal(t, config.BackendFS, c.GetStorageBackend())

	require.NoError(t, config.LoadFile(viper.New(), ""))
}
