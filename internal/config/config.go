// Package config handles configuration loading, validation, and management
// for unilang.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"unilang/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete application configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Enabled turns shortcut conversion on or off without stopping capture.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ShowPopup and PopupDurationMs are read by the external popup
	// collaborator. The engine only carries them.
	ShowPopup       bool `toml:"show_popup" json:"show_popup" yaml:"show_popup"`
	PopupDurationMs int  `toml:"popup_duration_ms" json:"popup_duration_ms" yaml:"popup_duration_ms"`

	Engine    EngineConfig    `toml:"engine" json:"engine" yaml:"engine"`
	Shortcuts ShortcutsConfig `toml:"shortcuts" json:"shortcuts" yaml:"shortcuts"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Stats     StatsConfig     `toml:"stats" json:"stats" yaml:"stats"`
}

// EngineConfig tunes trigger detection and replacement.
type EngineConfig struct {
	// BufferSize is the number of recent characters the matcher retains.
	BufferSize int `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size"`

	// SettleDelayMs is the pause between erasing and inserting.
	SettleDelayMs int `toml:"settle_delay_ms" json:"settle_delay_ms" yaml:"settle_delay_ms"`
}

// ShortcutsConfig locates the user's shortcut overlay.
type ShortcutsConfig struct {
	// Path is a JSON file merged over the built-in table. Empty means the
	// built-in table only.
	Path string `toml:"path" json:"path" yaml:"path"`

	// Watch reloads Path when it changes.
	Watch bool `toml:"watch" json:"watch" yaml:"watch"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format (text, json).
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination (stdout, stderr, file, both).
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`

	// LogContent writes typed text into debug logs. Off by default.
	LogContent bool `toml:"log_content" json:"log_content" yaml:"log_content"`
}

// StatsConfig controls the optional usage database.
type StatsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// QueueSize bounds pending records. Records beyond it are dropped.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`

	// TopN is the default row count for `unilang stats`.
	TopN int `toml:"top_n" json:"top_n" yaml:"top_n"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	paths := GetDefaultPaths()
	return &Config{
		Version:         Version,
		Enabled:         true,
		ShowPopup:       false,
		PopupDurationMs: 1000,
		Engine: EngineConfig{
			BufferSize:    32,
			SettleDelayMs: 50,
		},
		Shortcuts: ShortcutsConfig{
			Path:  paths.ShortcutsFile,
			Watch: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Stats: StatsConfig{
			Enabled:   false,
			Path:      paths.StatsFile,
			QueueSize: 256,
			TopN:      20,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = DefaultConfig()
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// loadConfigFromFile decodes path over the defaults.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		// Comments and trailing commas are accepted.
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	default:
		return autoDetectAndParse(data, cfg)
	}
	return nil
}

// autoDetectAndParse tries each format in turn for files without a known
// extension.
func autoDetectAndParse(data []byte, cfg *Config) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err == nil {
			return nil
		}
	}
	if _, err := toml.Decode(string(data), cfg); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	return fmt.Errorf("unable to detect config format")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// SettleDelay returns the engine settle delay as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Engine.SettleDelayMs) * time.Millisecond
}

// ShortcutsPath returns the overlay path with ~ expanded.
func (c *Config) ShortcutsPath() string {
	return ExpandPath(c.Shortcuts.Path)
}

// StatsPath returns the usage database path with ~ expanded.
func (c *Config) StatsPath() string {
	return ExpandPath(c.Stats.Path)
}

// EnsureDirectories creates the directories that configured files live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.ShortcutsPath())}
	if c.Stats.Enabled {
		dirs = append(dirs, filepath.Dir(c.StatsPath()))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(ExpandPath(c.Logging.FilePath)))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies UNILANG_* environment variables. Malformed
// numeric or boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v, ok := envBool("UNILANG_ENABLED"); ok {
		c.Enabled = v
	}
	if v, ok := envInt("UNILANG_BUFFER_SIZE"); ok {
		c.Engine.BufferSize = v
	}
	if v, ok := envInt("UNILANG_SETTLE_DELAY_MS"); ok {
		c.Engine.SettleDelayMs = v
	}
	if v := os.Getenv("UNILANG_SHORTCUTS_PATH"); v != "" {
		c.Shortcuts.Path = v
	}
	if v := os.Getenv("UNILANG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("UNILANG_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("UNILANG_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
		if c.Logging.Output == "stderr" || c.Logging.Output == "stdout" {
			c.Logging.Output = "file"
		}
	}
	if v, ok := envBool("UNILANG_LOG_CONTENT"); ok {
		c.Logging.LogContent = v
	}
	if v, ok := envBool("UNILANG_STATS_ENABLED"); ok {
		c.Stats.Enabled = v
	}
	if v := os.Getenv("UNILANG_STATS_PATH"); v != "" {
		c.Stats.Path = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// LoggerConfig converts the logging section for logging.New. Invalid level
// or format strings fall back to the logging defaults; Validate reports them.
func (c *Config) LoggerConfig() *logging.Config {
	lc := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = lvl
	}
	if f, err := logging.ParseFormat(c.Logging.Format); err == nil {
		lc.Format = f
	}
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	if c.Logging.FilePath != "" {
		lc.FilePath = ExpandPath(c.Logging.FilePath)
	}
	lc.MaxSize = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAge = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	lc.LogContent = c.Logging.LogContent
	return lc
}
