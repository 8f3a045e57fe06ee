package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/config"
)

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoform.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":"9000","dslDir":"schema","dbUrl":"sqlite:app.db"}`), 0o644))
	t.Setenv("AUTOFORM_PORT", "9100")
	t.Setenv("AUTOFORM_AUTO_MIGRATE", "yes")

	cfg, err := config.Load(path, []string{"-forms", "overlays"})
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "schema", cfg.DSLDir)
	assert.Equal(t, "overlays", cfg.FormsDir)
	assert.True(t, cfg.AutoMigrate)

	b, err := cfg.Backend()
	require.NoError(t, err)
	assert.Equal(t, config.SQLite, b)
	assert.Equal(t, "app.db", cfg.SQLiteDSN())

	cfg, err = config.Load(filepath.Join(dir, "missing.json"), []string{"-config", path, "-port", "7000"})
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "schema", cfg.DSLDir)
}

func TestLoadRejects(t *testing.T) {
	_, err := config.Load("", []string{"-db", "mysql://x"})
	assert.ErrorContains(t, err, "unsupported dbUrl")

	_, err = config.Load("", []string{"-introspect", "true"})
	assert.ErrorContains(t, err, "introspect requires")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	b, _ := cfg.Backend()
	assert.Equal(t, config.Memory, b)
	assert.Equal(t, "8080", cfg.Port)
}
