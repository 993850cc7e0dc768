package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

const appName = "unilang"

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/unilang/
//   - Linux:   $XDG_CONFIG_HOME/unilang/ or ~/.config/unilang/
//   - Windows: %APPDATA%\unilang\
func PlatformConfigDir() string {
	if dir := os.Getenv("UNILANG_CONFIG_DIR"); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "windows":
		return windowsRoaming()
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
		return filepath.Join(homeDir(), ".config", appName)
	}
}

// PlatformDataDir returns the platform-specific data directory. The usage
// database lives here.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/unilang/
//   - Linux:   $XDG_DATA_HOME/unilang/ or ~/.local/share/unilang/
//   - Windows: %APPDATA%\unilang\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "windows":
		return windowsRoaming()
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
		return filepath.Join(homeDir(), ".local", "share", appName)
	}
}

// PlatformRuntimeDir returns the directory for the instance lock.
func PlatformRuntimeDir() string {
	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName)
		}
		return filepath.Join(homeDir(), "AppData", "Local", appName)
	case "darwin":
		return filepath.Join(os.TempDir(), appName+"-"+strconv.Itoa(os.Getuid()))
	default:
		// XDG_RUNTIME_DIR is usually /run/user/$UID
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
		return filepath.Join(os.TempDir(), appName+"-"+strconv.Itoa(os.Getuid()))
	}
}

func windowsRoaming() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appName)
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", appName)
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// DefaultPaths groups the files unilang reads and writes by default.
type DefaultPaths struct {
	ConfigDir  string
	DataDir    string
	RuntimeDir string

	ConfigFile    string
	ShortcutsFile string
	StatsFile     string
	LockFile      string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	configDir := PlatformConfigDir()
	dataDir := PlatformDataDir()
	runtimeDir := PlatformRuntimeDir()

	return &DefaultPaths{
		ConfigDir:  configDir,
		DataDir:    dataDir,
		RuntimeDir: runtimeDir,

		ConfigFile:    filepath.Join(configDir, "config.toml"),
		ShortcutsFile: filepath.Join(configDir, "shortcuts.json"),
		StatsFile:     filepath.Join(dataDir, "usage.db"),
		LockFile:      filepath.Join(runtimeDir, "unilang.lock"),
	}
}

// SupportedConfigFormats lists the file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{".toml", ".json", ".yaml", ".yml"}
}

// FindConfigFile looks for config.<ext> in the platform config directory and
// returns the first that exists, or the TOML path if none does.
func FindConfigFile() string {
	dir := PlatformConfigDir()
	for _, ext := range SupportedConfigFormats() {
		p := filepath.Join(dir, "config"+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, "config.toml")
}

// ExpandPath replaces a leading ~/ with the user's home directory.
func ExpandPath(path string) string {
	if len(path) >= 2 && path[0] == '~' && (path[1] == '/' || path[1] == '\\') {
		if home := homeDir(); home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
