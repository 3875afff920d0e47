package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("CONFIG_ENV", "unit")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "alloy", cfg.Voice)
	assert.Equal(t, 8000, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 20*time.Second, cfg.OpenTimeout)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 2*time.Second, cfg.StatsInterval)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := "port: 9999\nvoice: verse\nsample_rate: 16000\ntool_timeout: 5s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.unit.yaml"), []byte(yaml), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "unit")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "verse", cfg.Voice)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, "gpt-4o-realtime-preview-2024-10-01", cfg.Model)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
}
