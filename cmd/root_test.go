package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, false, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "file", "ventas.xlsx")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "ventas.xlsx", entry["file"])

	buf.Reset()
	logger, err = newLogger(config.LoggingConfig{Level: "error", Format: "text"}, true, &buf)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), -4))

	_, err = newLogger(config.LoggingConfig{Level: "loud"}, false, &buf)
	assert.ErrorContains(t, err, "logging.level")
}

func TestLoadConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := loadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, config.PolicyFallback, cfg.Currency.Policy)

	_, err = loadConfig(missing, true)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("currency: {policy: strict}\n"), 0o644))
	cfg, err = loadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, config.PolicyStrict, cfg.Currency.Policy)
}

func TestLoadEnv(t *testing.T) {
	require.NoError(t, loadEnv(""))
	require.NoError(t, loadEnv(filepath.Join(t.TempDir(), ".env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FRADMA_TEST_ENV_VALUE=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("FRADMA_TEST_ENV_VALUE") })

	require.NoError(t, loadEnv(path))
	assert.Equal(t, "from-file", os.Getenv("FRADMA_TEST_ENV_VALUE"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Fradma Dashboard")
	assert.Contains(t, out.String(), "Version:    "+Version)
}
