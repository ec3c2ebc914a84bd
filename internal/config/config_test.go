package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExistingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`database_path = "/tmp/custom/feeds.db"`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom/feeds.db", cfg.DatabasePath)
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "feedsync.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DatabasePath)

	// First run persists the defaults for the user to edit.
	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DatabasePath, reloaded.DatabasePath)
}

func TestLoadFillsMissingDatabasePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DatabasePath)
}

func TestLoadMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedsync.toml")
	require.NoError(t, os.WriteFile(path, []byte("database_path = ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
