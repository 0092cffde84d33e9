// Package paths centralizes where fishlog keeps its on-disk state. Everything
// lives under ~/.fishlog, partitioned by profile so a shared machine can hold
// several boats' worth of data.
package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.fishlog.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fishlog")
}

// Dir returns the profile-specific directory.
func Dir(profile string) string {
	return filepath.Join(BaseDir(), "profiles", profile)
}

// LockPath returns the lock file path for a profile.
func LockPath(profile string) string {
	return filepath.Join(Dir(profile), "LOCK")
}

// DBPath returns the fishlog.db path for a profile.
func DBPath(profile string) string {
	return filepath.Join(Dir(profile), "fishlog.db")
}

// LogDir returns the log directory for a profile.
func LogDir(profile string) string {
	return filepath.Join(Dir(profile), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(profile string) string {
	return filepath.Join(LogDir(profile), "fishlogd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(profile string) error {
	dirs := []string{
		Dir(profile),
		LogDir(profile),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
