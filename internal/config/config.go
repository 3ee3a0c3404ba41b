// Package config provides configuration management for the paper ledger.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"paper-ledger/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Events    EventsConfig    `mapstructure:"events"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Gate      GateConfig      `mapstructure:"gate"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Patterns  PatternsConfig  `mapstructure:"patterns"`
	Workers   WorkersConfig   `mapstructure:"workers"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite, postgres
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// FeedConfig configures the price feed.
type FeedConfig struct {
	Source        string `mapstructure:"source"` // store, redis, memory
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	HistoryLimit  int64  `mapstructure:"history_limit"`
	HubBuffer     int    `mapstructure:"hub_buffer"`
	// Breaker settings apply to the redis feed only.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// EventsConfig configures the optional NATS bridge.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// GateConfig configures the qualification gate.
type GateConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	RequiredModules int  `mapstructure:"required_modules"`
	MinSimulations  int  `mapstructure:"min_simulations"`
}

// AnalyticsConfig holds the trade analytics thresholds.
type AnalyticsConfig struct {
	MinTicks            int           `mapstructure:"min_ticks"`
	EntryWindow         time.Duration `mapstructure:"entry_window"`
	PostExitWindow      time.Duration `mapstructure:"post_exit_window"`
	OptimalTolerancePct float64       `mapstructure:"optimal_tolerance_pct"`
	VolatileThreshold   float64       `mapstructure:"volatile_threshold"`
	TrendConsistency    float64       `mapstructure:"trend_consistency"`
	RiskBudgetPct       float64       `mapstructure:"risk_budget_pct"`
	CommissionPerTrade  float64       `mapstructure:"commission_per_trade"`
	CommissionRate      float64       `mapstructure:"commission_rate"`
	MinGain             float64       `mapstructure:"min_gain"`
	MinGainPct          float64       `mapstructure:"min_gain_pct"`
	SeverityMediumPct   float64       `mapstructure:"severity_medium_pct"`
	SeverityHighPct     float64       `mapstructure:"severity_high_pct"`
	EntryWeight         float64       `mapstructure:"entry_weight"`
	ExitWeight          float64       `mapstructure:"exit_weight"`
	RiskWeight          float64       `mapstructure:"risk_weight"`
}

// PatternsConfig holds the behavioral pattern thresholds.
type PatternsConfig struct {
	Window             time.Duration       `mapstructure:"window"`
	OvertradingPerHour int                 `mapstructure:"overtrading_per_hour"`
	RevengeCooldown    time.Duration       `mapstructure:"revenge_cooldown"`
	FOMOMovePct        float64             `mapstructure:"fomo_move_pct"`
	FOMOLookback       time.Duration       `mapstructure:"fomo_lookback"`
	CorrelationGroups  map[string][]string `mapstructure:"correlation_groups"`
}

// WorkersConfig configures the analytics worker pool.
type WorkersConfig struct {
	Analytics         int           `mapstructure:"analytics"`
	QueueSize         int           `mapstructure:"queue_size"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RepriceInterval   time.Duration `mapstructure:"reprice_interval"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/paper-ledger"
	}
	return filepath.Join(home, ".config", "paper-ledger")
}

// Path returns the config file path inside configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	// Defaults are static; decoding them cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by the template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", filepath.Join(configDir, "ledger.db"))
	v.SetDefault("store.max_open_conns", 10)

	v.SetDefault("feed.source", "store")
	v.SetDefault("feed.redis_addr", "localhost:6379")
	v.SetDefault("feed.redis_db", 0)
	v.SetDefault("feed.history_limit", 100000)
	v.SetDefault("feed.hub_buffer", 1000)
	v.SetDefault("feed.breaker_failures", 5)
	v.SetDefault("feed.breaker_cooldown", "30s")

	v.SetDefault("events.subject_prefix", "ledger")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "ledger.log"))
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", filepath.Join(configDir, "audit"))
	v.SetDefault("audit.max_size", 50)
	v.SetDefault("audit.max_backups", 30)
	v.SetDefault("audit.max_age", 365)

	v.SetDefault("gate.enabled", true)
	v.SetDefault("gate.required_modules", 3)
	v.SetDefault("gate.min_simulations", 0)

	v.SetDefault("analytics.min_ticks", 3)
	v.SetDefault("analytics.entry_window", "5m")
	v.SetDefault("analytics.post_exit_window", "30m")
	v.SetDefault("analytics.optimal_tolerance_pct", 0.25)
	v.SetDefault("analytics.volatile_threshold", 0.5)
	v.SetDefault("analytics.trend_consistency", 0.6)
	v.SetDefault("analytics.risk_budget_pct", 2.0)
	v.SetDefault("analytics.commission_per_trade", 1.0)
	v.SetDefault("analytics.commission_rate", 0.0005)
	v.SetDefault("analytics.min_gain", 1.0)
	v.SetDefault("analytics.min_gain_pct", 0.1)
	v.SetDefault("analytics.severity_medium_pct", 1.0)
	v.SetDefault("analytics.severity_high_pct", 3.0)
	v.SetDefault("analytics.entry_weight", 0.3)
	v.SetDefault("analytics.exit_weight", 0.3)
	v.SetDefault("analytics.risk_weight", 0.4)

	v.SetDefault("patterns.window", "24h")
	v.SetDefault("patterns.overtrading_per_hour", 10)
	v.SetDefault("patterns.revenge_cooldown", "15m")
	v.SetDefault("patterns.fomo_move_pct", 2.0)
	v.SetDefault("patterns.fomo_lookback", "15m")

	v.SetDefault("workers.analytics", 4)
	v.SetDefault("workers.queue_size", 256)
	v.SetDefault("workers.retry_attempts", 3)
	v.SetDefault("workers.retry_initial_delay", "200ms")
	v.SetDefault("workers.reprice_interval", "0s")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEDGER_DB_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("LEDGER_DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("LEDGER_REDIS_ADDR"); v != "" {
		cfg.Feed.RedisAddr = v
	}
	if v := os.Getenv("LEDGER_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("LEDGER_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return invalid("store.driver must be 'sqlite' or 'postgres', got %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return invalid("store.dsn is required")
	}

	switch c.Feed.Source {
	case "store", "redis", "memory":
	default:
		return invalid("feed.source must be 'store', 'redis' or 'memory', got %q", c.Feed.Source)
	}
	if c.Feed.Source == "redis" && c.Feed.RedisAddr == "" {
		return invalid("feed.redis_addr is required for the redis feed")
	}

	if c.Gate.RequiredModules < 0 || c.Gate.MinSimulations < 0 {
		return invalid("gate thresholds must be non-negative")
	}

	a := c.Analytics
	if a.MinTicks < 1 {
		return invalid("analytics.min_ticks must be at least 1")
	}
	if a.EntryWindow <= 0 || a.PostExitWindow < 0 {
		return invalid("analytics windows must be positive")
	}
	if a.CommissionPerTrade < 0 || a.CommissionRate < 0 {
		return invalid("analytics commission must be non-negative")
	}
	if a.RiskBudgetPct <= 0 {
		return invalid("analytics.risk_budget_pct must be positive")
	}
	if a.SeverityHighPct < a.SeverityMediumPct {
		return invalid("analytics.severity_high_pct must be >= severity_medium_pct")
	}
	if a.EntryWeight < 0 || a.ExitWeight < 0 || a.RiskWeight < 0 || a.EntryWeight+a.ExitWeight+a.RiskWeight == 0 {
		return invalid("analytics score weights must be non-negative and not all zero")
	}

	p := c.Patterns
	if p.OvertradingPerHour < 1 {
		return invalid("patterns.overtrading_per_hour must be at least 1")
	}
	if p.Window <= 0 || p.RevengeCooldown < 0 || p.FOMOLookback < 0 {
		return invalid("pattern windows must be non-negative")
	}

	if c.Workers.Analytics < 1 {
		return invalid("workers.analytics must be at least 1")
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(errors.ErrConfigInvalid, format, args...)
}

// CorrelationGroup returns the group name containing symbol, or "".
func (p PatternsConfig) CorrelationGroup(symbol string) string {
	for name, members := range p.CorrelationGroups {
		for _, m := range members {
			if strings.EqualFold(m, symbol) {
				return name
			}
		}
	}
	return ""
}
