package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/errors"
)

func TestLoadWritesTemplateAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "config.toml"))
	assert.NoError(t, statErr)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.Store.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Analytics.EntryWindow)
	assert.Equal(t, 10, cfg.Patterns.OvertradingPerHour)
	assert.InDelta(t, 0.4, cfg.Analytics.RiskWeight, 1e-9)
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[store]
driver = "postgres"
dsn = "postgres://localhost/ledger"

[patterns]
overtrading_per_hour = 3
revenge_cooldown = "5m"

[patterns.correlation_groups]
tech = ["AAPL", "MSFT"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Patterns.OvertradingPerHour)
	assert.Equal(t, 5*time.Minute, cfg.Patterns.RevengeCooldown)
	assert.Equal(t, "tech", cfg.Patterns.CorrelationGroup("msft"))
	assert.Equal(t, "", cfg.Patterns.CorrelationGroup("XOM"))
	// untouched sections keep defaults
	assert.Equal(t, 3, cfg.Analytics.MinTicks)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEDGER_DB_DSN", "/tmp/override.db")
	t.Setenv("LEDGER_HTTP_ADDR", ":9999")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DSN)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Store.DSN = "" }},
		{"bad feed", func(c *Config) { c.Feed.Source = "kafka" }},
		{"zero min ticks", func(c *Config) { c.Analytics.MinTicks = 0 }},
		{"negative commission", func(c *Config) { c.Analytics.CommissionRate = -1 }},
		{"severity order", func(c *Config) { c.Analytics.SeverityHighPct = 0.5 }},
		{"zero weights", func(c *Config) {
			c.Analytics.EntryWeight, c.Analytics.ExitWeight, c.Analytics.RiskWeight = 0, 0, 0
		}},
		{"overtrading threshold", func(c *Config) { c.Patterns.OvertradingPerHour = 0 }},
		{"no workers", func(c *Config) { c.Workers.Analytics = 0 }},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
		})
	}
}
