package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tgrag.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgrag")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// HistoryDBPath returns the local job history database path.
func HistoryDBPath(name string) string {
	return filepath.Join(Dir(name), "history.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the console log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "tgrag.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
