// Package config loads marksync settings from a TOML file, MARKSYNC_*
// environment variables and built-in defaults, in increasing order of
// precedence: defaults < file < environment.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/steveyegge/marksync/internal/bookmark"
)

// EnvPrefix prefixes environment overrides, e.g. MARKSYNC_QUEUE_DEBOUNCE_MS.
const EnvPrefix = "MARKSYNC"

// Config is the full marksync configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Native    NativeConfig    `mapstructure:"native" toml:"native"`
	Queue     QueueConfig     `mapstructure:"queue" toml:"queue"`
	Sync      SyncConfig      `mapstructure:"sync" toml:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard"`
	Log       LogConfig       `mapstructure:"log" toml:"log"`
}

// DatabaseConfig locates the sqlite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// NativeConfig locates the files shared with the host shim.
type NativeConfig struct {
	TreeFile string `mapstructure:"tree_file" toml:"tree_file"`
	SpoolDir string `mapstructure:"spool_dir" toml:"spool_dir"`
}

// QueueConfig tunes the native event queue.
type QueueConfig struct {
	DebounceMs  int `mapstructure:"debounce_ms" toml:"debounce_ms"`
	SyncDelayMs int `mapstructure:"sync_delay_ms" toml:"sync_delay_ms"`
}

// Debounce returns the debounce interval.
func (q QueueConfig) Debounce() time.Duration {
	return time.Duration(q.DebounceMs) * time.Millisecond
}

// SyncDelay returns the delay between a drain and container reordering.
func (q QueueConfig) SyncDelay() time.Duration {
	return time.Duration(q.SyncDelayMs) * time.Millisecond
}

// SyncConfig holds sync behaviour switches.
type SyncConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
	Toolbar bool `mapstructure:"toolbar" toml:"toolbar"`
	// UnsupportedContainers lists containers the host cannot hold as root
	// folders, by title ("[xbs] Mobile") or short name ("mobile").
	UnsupportedContainers []string `mapstructure:"unsupported_containers" toml:"unsupported_containers"`
}

// Unsupported returns UnsupportedContainers as containers. Call Validate
// first.
func (s SyncConfig) Unsupported() []bookmark.Container {
	out := make([]bookmark.Container, 0, len(s.UnsupportedContainers))
	for _, title := range s.UnsupportedContainers {
		if c, ok := parseContainer(title); ok {
			out = append(out, c)
		}
	}
	return out
}

func parseContainer(name string) (bookmark.Container, bool) {
	if c, ok := bookmark.ContainerForTitle(name); ok {
		return c, true
	}
	for _, c := range bookmark.Containers {
		if strings.EqualFold(strings.TrimPrefix(string(c), "[xbs] "), strings.TrimSpace(name)) {
			return c, true
		}
	}
	return "", false
}

// DashboardConfig configures the websocket dashboard.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
	Port    int  `mapstructure:"port" toml:"port"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level" toml:"level"`
	JSON       bool   `mapstructure:"json" toml:"json"`
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.marksync/marksync.db")

	v.SetDefault("native.tree_file", "~/.marksync/native-tree.json")
	v.SetDefault("native.spool_dir", "~/.marksync/spool")

	v.SetDefault("queue.debounce_ms", 200)
	v.SetDefault("queue.sync_delay_ms", 100)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.toolbar", false)
	v.SetDefault("sync.unsupported_containers", []string{})

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8787)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// DefaultPath returns ~/.marksync/config.toml.
func DefaultPath() string {
	return expandHome("~/.marksync/config.toml")
}

// New returns a viper instance with defaults and environment binding. When
// path is set the file is read; a missing explicit file is an error. With an
// empty path the default file is read if it exists.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if _, err := os.Stat(path); err != nil {
			return v, nil
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return v, nil
}

// Load reads the configuration, expands ~ in paths and validates it.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Native.TreeFile = expandHome(cfg.Native.TreeFile)
	cfg.Native.SpoolDir = expandHome(cfg.Native.SpoolDir)
	cfg.Log.File = expandHome(cfg.Log.File)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	for _, title := range c.Sync.UnsupportedContainers {
		if _, ok := parseContainer(title); !ok {
			return errors.Newf("sync.unsupported_containers: unknown container %q", title)
		}
	}
	if c.Queue.DebounceMs < 0 {
		return errors.Newf("queue.debounce_ms must not be negative, got %d", c.Queue.DebounceMs)
	}
	if c.Queue.SyncDelayMs < 0 {
		return errors.Newf("queue.sync_delay_ms must not be negative, got %d", c.Queue.SyncDelayMs)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return errors.Newf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	return nil
}

// Default returns the built-in configuration with unexpanded paths.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

const defaultHeader = `# marksync configuration.
# Every key can be overridden with an environment variable, e.g.
# MARKSYNC_QUEUE_DEBOUNCE_MS=500 or MARKSYNC_SYNC_TOOLBAR=true.

`

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to create config file")
	}
	defer f.Close()

	if _, err := f.WriteString(defaultHeader); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
