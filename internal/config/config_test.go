package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStoreHasRequiredKeys(t *testing.T) {
	s := DefaultStore()
	assert.Equal(t, "8765", s.GetString("daemon.port"))
	assert.Equal(t, 180, s.GetInt("memory.half_life_days", 0))
	assert.Equal(t, []string{"docshot", "session_context", "calibration"}[0], s.GetList("context_plugins")[0])
}

func TestLoadYAMLFlattensNestedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  port: 9999\nmemory:\n  half_life_days: 90\n"), 0o644))

	s := DefaultStore()
	require.NoError(t, s.LoadYAML(path))
	assert.Equal(t, "9999", s.GetString("daemon.port"))
	assert.Equal(t, 90, s.GetInt("memory.half_life_days", 0))
}

func TestLoadTOMLOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	tomlPath := filepath.Join(dir, ".membria.toml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("daemon:\n  port: 1111\n"), 0o644))
	require.NoError(t, os.WriteFile(tomlPath, []byte("[daemon]\nport = 2222\n"), 0o644))

	s, err := Load(yamlPath, tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "2222", s.GetString("daemon.port"))
}

func TestApplyEnvOverridesTakesPrecedence(t *testing.T) {
	t.Setenv("MEMBRIA_DAEMON_PORT", "3333")
	s := DefaultStore()
	s.ApplyEnv()
	assert.Equal(t, "3333", s.GetString("daemon.port"))
}

func TestGetBoolFallback(t *testing.T) {
	s := DefaultStore()
	assert.False(t, s.GetBool("memory.allow_hard_delete", true))
	s.Set("memory.allow_hard_delete", "true")
	assert.True(t, s.GetBool("memory.allow_hard_delete", false))
}
