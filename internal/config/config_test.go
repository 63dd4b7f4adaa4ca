package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TAILRISK_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 60*time.Second, cfg.SolveTimeout)
	assert.Equal(t, 0.95, cfg.DefaultAlpha)
	assert.Empty(t, cfg.ReoptimizeSchedule)
	assert.Equal(t, 1000, cfg.ScenarioCount)
	assert.Equal(t, 252, cfg.LookbackPeriods)
	assert.False(t, cfg.Export.Enabled)
	assert.Equal(t, "us-east-1", cfg.Export.Region)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TAILRISK_DATA_DIR", t.TempDir())
	t.Setenv("TAILRISK_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("SOLVE_TIMEOUT_SECONDS", "5")
	t.Setenv("DEFAULT_ALPHA", "0.99")
	t.Setenv("SCENARIO_COUNT", "500")
	t.Setenv("LOOKBACK_PERIODS", "60")
	t.Setenv("REOPTIMIZE_SCHEDULE", "0 0 6 * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 5*time.Second, cfg.SolveTimeout)
	assert.Equal(t, 0.99, cfg.DefaultAlpha)
	assert.Equal(t, 500, cfg.ScenarioCount)
	assert.Equal(t, 60, cfg.LookbackPeriods)
	assert.Equal(t, "0 0 6 * * *", cfg.ReoptimizeSchedule)
}

func TestLoad_ExportConfig(t *testing.T) {
	t.Setenv("TAILRISK_DATA_DIR", t.TempDir())
	t.Setenv("EXPORT_ENABLED", "true")
	t.Setenv("EXPORT_S3_BUCKET", "artifacts")
	t.Setenv("EXPORT_S3_REGION", "eu-west-1")
	t.Setenv("EXPORT_S3_ENDPOINT", "http://localhost:9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Export.Enabled)
	assert.Equal(t, "artifacts", cfg.Export.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Export.Region)
	assert.Equal(t, "http://localhost:9000", cfg.Export.Endpoint)
}

func TestLoad_ExportEnabledWithoutBucket(t *testing.T) {
	t.Setenv("TAILRISK_DATA_DIR", t.TempDir())
	t.Setenv("EXPORT_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXPORT_S3_BUCKET")
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("TAILRISK_DATA_DIR", t.TempDir())
	t.Setenv("TAILRISK_PORT", "not-a-port")
	t.Setenv("DEV_MODE", "sure")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DataDir:         t.TempDir(),
			Port:            8001,
			SolveTimeout:    time.Minute,
			DefaultAlpha:    0.95,
			LookbackPeriods: 252,
			Export:          &ExportConfig{},
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"alpha at one", func(c *Config) { c.DefaultAlpha = 1.0 }},
		{"zero timeout", func(c *Config) { c.SolveTimeout = 0 }},
		{"lookback too short", func(c *Config) { c.LookbackPeriods = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_DBPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TAILRISK_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.HistoryDBPath(), "history.db")
	assert.Contains(t, cfg.ArtifactsDBPath(), "artifacts.db")
}
