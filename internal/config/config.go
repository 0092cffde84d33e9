// Package config reads and writes the global ~/.fishlog/config.toml.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Telemetry configures the NMEA feed connection.
type Telemetry struct {
	Address     string `toml:"address"`
	Port        int    `toml:"port"`
	Simulated   bool   `toml:"simulated"`
	Autoconnect bool   `toml:"autoconnect"`
}

// Remote configures the shared backend.
type Remote struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// Sync tunes reconciliation passes.
type Sync struct {
	DuplicateEpsilon float64 `toml:"duplicate_epsilon"`
	CallTimeoutSec   int     `toml:"call_timeout_sec"`
}

// Config represents the global config file. An empty UserID means the app
// runs under the anonymous local identity.
type Config struct {
	DefaultProfile string    `toml:"default_profile"`
	UserID         string    `toml:"user_id"`
	Telemetry      Telemetry `toml:"telemetry"`
	Remote         Remote    `toml:"remote"`
	Sync           Sync      `toml:"sync"`
}

// Default returns the config used when no file exists yet.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Telemetry: Telemetry{
			Address: "localhost",
			Port:    10110,
		},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from the given path, falling back to defaults
// when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
