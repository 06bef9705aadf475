// Package paths resolves the on-disk locations colony reads and writes.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const appName = "colony"

const (
	// ConfigDirEnv overrides the persistence directory when the executable's
	// own directory cannot be used.
	ConfigDirEnv = "COLONY_CONFIGDIR"

	// CatalogFileName is the JSON catalog inside the persistence directory.
	CatalogFileName = "colony_launcher_configuration.json"
	// JournalFileName is the sqlite journal inside the persistence directory.
	JournalFileName = "colony_journal.db"
)

// executable is swapped in tests.
var executable = os.Executable

func configRoot() (string, error) {
	return rootWithFallback("XDG_CONFIG_HOME", os.UserConfigDir, ".config")
}

func stateRoot() (string, error) {
	noOSDefault := func() (string, error) {
		return "", fmt.Errorf("no OS state directory function")
	}

	return rootWithFallback("XDG_STATE_HOME", noOSDefault, filepath.Join(".local", "state"))
}

func cacheRoot() (string, error) {
	return rootWithFallback("XDG_CACHE_HOME", os.UserCacheDir, ".cache")
}

func rootWithFallback(xdgEnv string, osFn func() (string, error), fallbackDir string) (string, error) {
	// Priority 1: Explicit XDG env var (cross-platform).
	if xdg := os.Getenv(xdgEnv); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName), nil
	}

	// Priority 2: OS-specific default (macOS ~/Library/..., Windows %AppData%, Linux ~/.config).
	root, err := osFn()
	if err == nil && root != "" {
		return filepath.Join(root, appName), nil
	}

	// Priority 3: Home-dir fallback.
	home, homeErr := os.UserHomeDir()
	if homeErr == nil && home != "" {
		return filepath.Join(home, fallbackDir, appName), nil
	}

	if err != nil {
		return "", err
	}

	return "", fmt.Errorf("resolve user home directory")
}

// ConfigRoot returns the user config root directory for colony.
func ConfigRoot() (string, error) {
	return configRoot()
}

// StateRoot returns the user state root directory for colony.
func StateRoot() (string, error) {
	return stateRoot()
}

// CacheRoot returns the user cache root directory for colony.
func CacheRoot() (string, error) {
	return cacheRoot()
}

// PersistenceDir returns the directory holding the catalog and the journal.
//
// Resolution order: an explicit override, the executable's own directory when
// it is writable, $COLONY_CONFIGDIR, then the user state root. The directory
// is created if missing.
func PersistenceDir(override string) (string, error) {
	if override != "" {
		return ensureDir(override)
	}

	if exe, err := executable(); err == nil {
		if resolved, evalErr := filepath.EvalSymlinks(exe); evalErr == nil {
			exe = resolved
		}

		if dir := filepath.Dir(exe); writable(dir) {
			return dir, nil
		}
	}

	if env := os.Getenv(ConfigDirEnv); env != "" {
		return ensureDir(env)
	}

	root, err := stateRoot()
	if err != nil {
		return "", err
	}

	return ensureDir(root)
}

// CatalogFile returns the catalog path inside dir.
func CatalogFile(dir string) string {
	return filepath.Join(dir, CatalogFileName)
}

// JournalFile returns the journal path inside dir.
func JournalFile(dir string) string {
	return filepath.Join(dir, JournalFileName)
}

// LogsDir returns the default log directory for colony.
func LogsDir() (string, error) {
	root, err := stateRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, "logs"), nil
}

// DefaultLogFile returns the default log file path for colony.
func DefaultLogFile() (string, error) {
	logsDir, err := LogsDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(logsDir, "colony.log"), nil
}

// HistoryDir returns the default job transcript directory.
func HistoryDir() (string, error) {
	root, err := stateRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, "history"), nil
}

// DownloadsDir returns the cache directory for partially downloaded files.
func DownloadsDir() (string, error) {
	root, err := cacheRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, "downloads"), nil
}

func ensureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", abs, err)
	}

	return abs, nil
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".colony-probe-*")
	if err != nil {
		return false
	}

	name := f.Name()
	closeErr := f.Close()
	removeErr := os.Remove(name)

	return errors.Join(closeErr, removeErr) == nil
}
