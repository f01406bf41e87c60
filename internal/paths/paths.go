// Package paths resolves where devcatalog keeps its configuration and its
// catalog database.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "devcatalog"

// ConfigFileName is the configuration file inside the config directory.
const ConfigFileName = "config.yaml"

// Environment variables overriding the directories.
const (
	EnvConfigDir = "DEVCATALOG_CONFIG_DIR"
	EnvDataDir   = "DEVCATALOG_DATA_DIR"
)

// platformDir holds platform lookups that tests replace.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $env/devcatalog, or ~/fallback/devcatalog when env is
// unset. It is the Linux layout.
func xdgDir(env string, fallback ...string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...), nil
}

// userDir returns the per-user application directory of macOS
// (~/Library/Application Support) and Windows (%APPDATA%).
func userDir() (string, error) {
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// DefaultConfigDir returns the platform configuration directory:
// $XDG_CONFIG_HOME/devcatalog (or ~/.config/devcatalog) on Linux and the
// user application directory elsewhere.
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	return userDir()
}

// DefaultDataDir returns the platform data directory:
// $XDG_DATA_HOME/devcatalog (or ~/.local/share/devcatalog) on Linux and the
// user application directory elsewhere.
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
	return userDir()
}

// ResolveConfigDir picks the configuration directory: flag, then
// DEVCATALOG_CONFIG_DIR, then the platform default. Results are absolute.
func ResolveConfigDir(flag string) (string, error) {
	for _, dir := range []string{flag, os.Getenv(EnvConfigDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks the data directory: flag, then DEVCATALOG_DATA_DIR,
// then the data_dir value of config.yaml, then the platform default. A
// relative config value is taken relative to configDir, other relative
// values relative to the working directory.
func ResolveDataDir(flag, configDir, configValue string) (string, error) {
	for _, dir := range []string{flag, os.Getenv(EnvDataDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	if configValue != "" {
		if !filepath.IsAbs(configValue) && configDir != "" {
			configValue = filepath.Join(configDir, configValue)
		}
		return filepath.Abs(configValue)
	}
	return DefaultDataDir()
}

// ConfigFile returns the path of config.yaml in dir.
func ConfigFile(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}
