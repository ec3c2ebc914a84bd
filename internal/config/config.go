// Package config resolves the application configuration. Settings live
// in a TOML file under the user's config directory; a default file is
// written on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

const (
	appName        = "feedsync"
	configFileName = "feedsync.toml"
	defaultDBName  = "feedsync.db"
)

// Config holds all settings read from the config file.
type Config struct {
	// DatabasePath is the resolved SQLite database location.
	DatabasePath string `toml:"database_path"`
}

// DefaultConfigPath returns the standard config file location,
// ~/.config/feedsync/feedsync.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName, configFileName), nil
}

// DefaultDatabasePath returns the standard database location,
// ~/.local/share/feedsync/feedsync.db.
func DefaultDatabasePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName, defaultDBName), nil
}

// Load reads the config file at pathOverride, or the default location
// when pathOverride is empty. A missing file is created with defaults.
func Load(pathOverride string) (*Config, error) {
	path := pathOverride
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); err == nil {
		var cfg Config
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.DatabasePath == "" {
			cfg.DatabasePath, err = DefaultDatabasePath()
			if err != nil {
				return nil, err
			}
		}
		return &cfg, nil
	}

	cfg, err := defaultConfig()
	if err != nil {
		return nil, err
	}

	// First run: persist the defaults so the user has a file to edit.
	if err := writeConfig(path, cfg); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write default config file")
	}
	return cfg, nil
}

func defaultConfig() (*Config, error) {
	dbPath, err := DefaultDatabasePath()
	if err != nil {
		return nil, err
	}
	return &Config{DatabasePath: dbPath}, nil
}

func writeConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
