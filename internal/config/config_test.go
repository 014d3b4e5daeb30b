package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "data/tax_rules.json", cfg.Rules.Path)
	assert.Equal(t, 1, cfg.Referral.Budget)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Interval)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
referral:
  budget: 2
monitor:
  enabled: false
  interval: 1m
  startup_delay: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Referral.Budget)
	assert.False(t, cfg.Monitor.Enabled)
	assert.Equal(t, time.Minute, cfg.Monitor.Interval)
	// Untouched sections keep their defaults.
	assert.Equal(t, "finsight.db", cfg.Store.DatabasePath)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	t.Setenv("FINSIGHT_ADDR", ":7777")
	t.Setenv("FINSIGHT_DB", "/tmp/override.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DatabasePath)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("referral:\n  budget: -1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
