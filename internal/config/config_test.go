// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/grimoire/grimoire.db
cache:
  capacity: 256
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/grimoire/grimoire.db", cfg.Database.Path)
	assert.Equal(t, "/var/lib/grimoire/grimoire.db.transient", cfg.Database.TransientPath)
	assert.Equal(t, 256, cfg.Cache.Capacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("GRIMOIRE_TEST_DB", "/tmp/expanded.db")

	path := writeConfig(t, `
database:
  path: ${GRIMOIRE_TEST_DB}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/expanded.db", cfg.Database.Path)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: grimoire.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Cache.Capacity)
	assert.Equal(t, "grimoire.db.transient", cfg.Database.TransientPath)
}

func TestLoad_MissingPath(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ""
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "database.path is required")
}

func TestLoad_BadFormat(t *testing.T) {
	path := writeConfig(t, `
database:
  path: grimoire.db
logging:
  format: xml
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "logging.format")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
