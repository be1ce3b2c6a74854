package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oakensoul/aida/internal/memento"
)

func writeConfig(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
memento_root: /tmp/aida-mementos
log:
  level: debug
  format: console
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/aida-mementos", cfg.MementoRoot)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.MementoRoot)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestStoreRoot(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, memento.DefaultRoot("/home/u"), cfg.StoreRoot("/home/u"))

	cfg.MementoRoot = "/data/records"
	assert.Equal(t, "/data/records", cfg.StoreRoot("/home/u"))
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n", 0o600)

	t.Setenv("AIDA_LOG_LEVEL", "debug")
	t.Setenv("AIDA_MEMENTO_ROOT", "/tmp/from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/from-env", cfg.MementoRoot)
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	path := writeConfig(t, "log:\n  level: info\n", 0o644)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsecurePermissions)
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	path := writeConfig(t, "log:\n  level: shouting\n", 0o600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}

func TestLoadRejectsInvalidFormat(t *testing.T) {
	path := writeConfig(t, "log:\n  format: xml\n", 0o600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

func TestTransformEnv(t *testing.T) {
	assert.Equal(t, "memento_root", transformEnv("AIDA_MEMENTO_ROOT"))
	assert.Equal(t, "log.level", transformEnv("AIDA_LOG_LEVEL"))
	assert.Equal(t, "log.format", transformEnv("AIDA_LOG_FORMAT"))
}

func TestLoggingConfig(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "debug", Format: "console"}}
	lc := cfg.LoggingConfig()
	assert.Equal(t, zapcore.DebugLevel, lc.Level)
	assert.Equal(t, "console", lc.Format)
	assert.True(t, lc.Redaction.Enabled)
}
