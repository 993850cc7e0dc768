package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"unilang/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("UNILANG_CONFIG_DIR", t.TempDir())

	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if !cfg.Enabled {
		t.Error("expected enabled by default")
	}
	if cfg.ShowPopup {
		t.Error("expected popup off by default")
	}
	if cfg.PopupDurationMs != 1000 {
		t.Errorf("expected popup duration 1000, got %d", cfg.PopupDurationMs)
	}
	if cfg.Engine.BufferSize != 32 {
		t.Errorf("expected buffer size 32, got %d", cfg.Engine.BufferSize)
	}
	if cfg.SettleDelay() != 50*time.Millisecond {
		t.Errorf("expected settle delay 50ms, got %v", cfg.SettleDelay())
	}
	if cfg.Stats.Enabled {
		t.Error("expected stats off by default")
	}
	if !strings.HasSuffix(cfg.Shortcuts.Path, "shortcuts.json") {
		t.Errorf("unexpected shortcuts path: %s", cfg.Shortcuts.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UNILANG_CONFIG_DIR", dir)

	path := ConfigPath()
	if path != filepath.Join(dir, "config.toml") {
		t.Errorf("unexpected config path: %s", path)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.BufferSize != 32 {
		t.Errorf("expected default buffer size, got %d", cfg.Engine.BufferSize)
	}
}

func TestLoadTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
enabled = false
show_popup = true

[engine]
buffer_size = 64
settle_delay_ms = 20

[shortcuts]
path = "/custom/shortcuts.json"
watch = false

[stats]
enabled = true
path = "/custom/usage.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Enabled {
		t.Error("expected enabled = false")
	}
	if !cfg.ShowPopup {
		t.Error("expected show_popup = true")
	}
	if cfg.Engine.BufferSize != 64 {
		t.Errorf("expected buffer size 64, got %d", cfg.Engine.BufferSize)
	}
	if cfg.Engine.SettleDelayMs != 20 {
		t.Errorf("expected settle delay 20, got %d", cfg.Engine.SettleDelayMs)
	}
	if cfg.Shortcuts.Path != "/custom/shortcuts.json" || cfg.Shortcuts.Watch {
		t.Errorf("unexpected shortcuts section: %+v", cfg.Shortcuts)
	}
	if !cfg.Stats.Enabled || cfg.Stats.Path != "/custom/usage.db" {
		t.Errorf("unexpected stats section: %+v", cfg.Stats)
	}
	// Unset values keep their defaults.
	if cfg.PopupDurationMs != 1000 {
		t.Errorf("expected default popup duration, got %d", cfg.PopupDurationMs)
	}
	if cfg.Stats.TopN != 20 {
		t.Errorf("expected default top_n, got %d", cfg.Stats.TopN)
	}
}

func TestLoadJSONWithComments(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	content := `{
  // tuned for a slow remote desktop
  "engine": {"settle_delay_ms": 120,},
  "logging": {"level": "debug"}
}`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.SettleDelayMs != 120 {
		t.Errorf("expected settle delay 120, got %d", cfg.Engine.SettleDelayMs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
popup_duration_ms: 2500
engine:
  buffer_size: 16
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PopupDurationMs != 2500 {
		t.Errorf("expected popup duration 2500, got %d", cfg.PopupDurationMs)
	}
	if cfg.Engine.BufferSize != 16 {
		t.Errorf("expected buffer size 16, got %d", cfg.Engine.BufferSize)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("this is not valid toml {{{"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UNILANG_ENABLED", "false")
	t.Setenv("UNILANG_BUFFER_SIZE", "48")
	t.Setenv("UNILANG_SETTLE_DELAY_MS", "not-a-number")
	t.Setenv("UNILANG_LOG_LEVEL", "debug")
	t.Setenv("UNILANG_LOG_PATH", "/var/log/unilang.log")
	t.Setenv("UNILANG_STATS_ENABLED", "1")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Enabled {
		t.Error("UNILANG_ENABLED not applied")
	}
	if cfg.Engine.BufferSize != 48 {
		t.Errorf("expected buffer size 48, got %d", cfg.Engine.BufferSize)
	}
	if cfg.Engine.SettleDelayMs != 50 {
		t.Errorf("malformed override should be ignored, got %d", cfg.Engine.SettleDelayMs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "file" || cfg.Logging.FilePath != "/var/log/unilang.log" {
		t.Errorf("expected file output, got %s %s", cfg.Logging.Output, cfg.Logging.FilePath)
	}
	if !cfg.Stats.Enabled {
		t.Error("UNILANG_STATS_ENABLED not applied")
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"buffer too small", func(c *Config) { c.Engine.BufferSize = 4 }, "engine.buffer_size"},
		{"buffer too large", func(c *Config) { c.Engine.BufferSize = 1024 }, "engine.buffer_size"},
		{"negative settle", func(c *Config) { c.Engine.SettleDelayMs = -1 }, "engine.settle_delay_ms"},
		{"settle too long", func(c *Config) { c.Engine.SettleDelayMs = 500 }, "engine.settle_delay_ms"},
		{"popup negative", func(c *Config) { c.PopupDurationMs = -5 }, "popup_duration_ms"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"file without path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"stats queue", func(c *Config) { c.Stats.Enabled = true; c.Stats.QueueSize = 0 }, "stats.queue_size"},
		{"future version", func(c *Config) { c.Version = Version + 1 }, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestValidateWarningOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shortcuts.Path = ""
	cfg.Shortcuts.Watch = true

	// A watch with no overlay is tolerated.
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	for _, ext := range SupportedConfigFormats() {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config"+ext)

			cfg := DefaultConfig()
			cfg.Enabled = false
			cfg.Engine.BufferSize = 100
			cfg.Stats.TopN = 7

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("expected 0600, got %v", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Enabled || loaded.Engine.BufferSize != 100 || loaded.Stats.TopN != 7 {
				t.Errorf("round trip mismatch: %+v", loaded)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected file to be created")
	}
	if cfg == nil || !cfg.Enabled {
		t.Error("expected default config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "# unilang configuration") {
		t.Errorf("missing header in %q", data)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected existing file to be reused")
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[engine]\nbuffer_size = 2\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err == nil {
		t.Fatal("expected validation error")
	}
	if l.Config() != nil {
		t.Error("invalid config must not be installed")
	}
}

func TestLoaderWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("enabled = true\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan [2]bool, 1)
	l.OnChange(func(old, cur *Config) {
		select {
		case changed <- [2]bool{old.Enabled, cur.Enabled}:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("enabled = false\n"), 0600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case got := <-changed:
		if !got[0] || got[1] {
			t.Errorf("expected enabled true -> false, got %v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change not observed")
	}
	if l.Config().Enabled {
		t.Error("loader still serves the old config")
	}
}

func TestLoaderWatchKeepsConfigOnBadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("enabled = true\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("enabled = {{{\n"), 0600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case err := <-l.Errors():
		if err == nil {
			t.Error("expected reload error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload error not reported")
	}
	if !l.Config().Enabled {
		t.Error("bad write replaced the config")
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = "/tmp/u.log"
	cfg.Logging.LogContent = true

	lc := cfg.LoggerConfig()
	if lc.Level != logging.LevelWarn {
		t.Errorf("expected warn, got %v", lc.Level)
	}
	if lc.Format != logging.FormatJSON {
		t.Errorf("expected JSON format")
	}
	if lc.Output != "file" || lc.FilePath != "/tmp/u.log" {
		t.Errorf("unexpected output %s %s", lc.Output, lc.FilePath)
	}
	if !lc.LogContent {
		t.Error("expected LogContent")
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	if got := ExpandPath("~/x/y.json"); got != filepath.Join("/home/tester", "x", "y.json") {
		t.Errorf("unexpected expansion: %s", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %s", got)
	}
}
