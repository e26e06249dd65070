package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/marksync/internal/bookmark"
)

// isolate points HOME at a temp dir so the user's real config is never read.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".marksync", "marksync.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(home, ".marksync", "spool"), cfg.Native.SpoolDir)
	assert.Equal(t, 200*time.Millisecond, cfg.Queue.Debounce())
	assert.Equal(t, 100*time.Millisecond, cfg.Queue.SyncDelay())
	assert.True(t, cfg.Sync.Enabled)
	assert.False(t, cfg.Sync.Toolbar)
	assert.Empty(t, cfg.Sync.Unsupported())
	assert.Equal(t, 8787, cfg.Dashboard.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "", cfg.Log.File)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "marksync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[queue]
debounce_ms = 500

[sync]
toolbar = true
unsupported_containers = ["mobile", "[xbs] Menu"]
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.Debounce())
	assert.True(t, cfg.Sync.Toolbar)
	assert.Equal(t, []bookmark.Container{bookmark.ContainerMobile, bookmark.ContainerMenu}, cfg.Sync.Unsupported())
	assert.Equal(t, 100, cfg.Queue.SyncDelayMs, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "marksync.toml")
	require.NoError(t, os.WriteFile(path, []byte("[queue]\ndebounce_ms = 500\n"), 0644))
	t.Setenv("MARKSYNC_QUEUE_DEBOUNCE_MS", "50")
	t.Setenv("MARKSYNC_DASHBOARD_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Queue.DebounceMs)
	assert.True(t, cfg.Dashboard.Enabled)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_ReadsDefaultPath(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".marksync"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".marksync", "config.toml"), []byte("[log]\nlevel = \"debug\"\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown container", func(c *Config) { c.Sync.UnsupportedContainers = []string{"sidebar"} }},
		{"negative debounce", func(c *Config) { c.Queue.DebounceMs = -1 }},
		{"negative sync delay", func(c *Config) { c.Queue.SyncDelayMs = -1 }},
		{"port out of range", func(c *Config) { c.Dashboard.Port = 70000 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	require.NoError(t, WriteDefault(path))
	fromFile, err := Load(path)
	require.NoError(t, err)
	builtin, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, fromFile.Sync.UnsupportedContainers)
	fromFile.Sync.UnsupportedContainers, builtin.Sync.UnsupportedContainers = nil, nil
	assert.Equal(t, builtin, fromFile)

	assert.Error(t, WriteDefault(path), "existing files are not overwritten")
}
