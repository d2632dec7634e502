package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "traffic.db", cfg.Store.SQLitePath)
	assert.Equal(t, 12, cfg.Store.FreshCutoffDay)
	assert.Equal(t, 35, cfg.Store.MaxAgeDays)
	assert.Equal(t, 45, cfg.Store.PrevMonthMaxAgeDays)
	assert.Equal(t, 24, cfg.Store.RetentionMonths)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30, cfg.Browser.ReadyTimeoutSecs)
	assert.InDelta(t, 0.5, cfg.Browser.ReadyFraction, 0.001)
	assert.Equal(t, 10, cfg.Batch.SubBatchSize)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/traffic
  fresh_cutoff_day: 15
browser:
  headless: false
  ready_timeout_secs: 90
batch:
  max_concurrent: 5
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/traffic", cfg.Store.DatabaseURL)
	assert.Equal(t, 15, cfg.Store.FreshCutoffDay)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 90, cfg.Browser.ReadyTimeoutSecs)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep defaults.
	assert.Equal(t, 10, cfg.Batch.SubBatchSize)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NotNil(t, zap.L())

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	assert.Error(t, err)
}

func TestBrowserConfigDurations(t *testing.T) {
	b := BrowserConfig{NavTimeoutSecs: 60, ReadyTimeoutSecs: 30, PollMillis: 250}
	assert.Equal(t, "1m0s", b.NavTimeout().String())
	assert.Equal(t, "30s", b.ReadyTimeout().String())
	assert.Equal(t, "250ms", b.PollInterval().String())
}
