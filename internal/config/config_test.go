package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	cfg, err := LoadFile(Default(), filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigwatch.toml")
	contents := `
port = 9090
log_level = "debug"
poll_interval_seconds = 10
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadFile(Default(), path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, Default().MetricsBroadcastInterval, cfg.MetricsBroadcastInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("PORT", "4242")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("POLL_INTERVAL", "500ms")

	cfg, err := LoadEnv(Default())
	require.NoError(t, err)
	assert.Equal(t, 4242, cfg.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
}

func TestLoadEnvRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	_, err := LoadEnv(Default())
	assert.Error(t, err)
}

func TestLoadLayersFileBeneathEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigwatch.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = 8000\n"), 0o644))
	t.Setenv("PORT", "9000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
}

func TestDefaultConfigPath(t *testing.T) {
	assert.Equal(t, "/tmp/gt/rigwatch.toml", DefaultConfigPath("/tmp/gt"))
}
