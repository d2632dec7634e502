package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the snapshot database backend and freshness rules.
type StoreConfig struct {
	Driver              string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL         string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath          string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	FreshCutoffDay      int    `yaml:"fresh_cutoff_day" mapstructure:"fresh_cutoff_day"`
	MaxAgeDays          int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	PrevMonthMaxAgeDays int    `yaml:"prev_month_max_age_days" mapstructure:"prev_month_max_age_days"`
	RetentionMonths     int    `yaml:"retention_months" mapstructure:"retention_months"`
}

// BrowserConfig configures the shared rendering process and page readiness.
type BrowserConfig struct {
	URLTemplate      string  `yaml:"url_template" mapstructure:"url_template"`
	Headless         bool    `yaml:"headless" mapstructure:"headless"`
	NavTimeoutSecs   int     `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	ReadyTimeoutSecs int     `yaml:"ready_timeout_secs" mapstructure:"ready_timeout_secs"`
	PollMillis       int     `yaml:"poll_millis" mapstructure:"poll_millis"`
	ReadyFraction    float64 `yaml:"ready_fraction" mapstructure:"ready_fraction"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// NavTimeout returns the navigation timeout as a duration.
func (b BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(b.NavTimeoutSecs) * time.Second
}

// ReadyTimeout returns the readiness-polling timeout as a duration.
func (b BrowserConfig) ReadyTimeout() time.Duration {
	return time.Duration(b.ReadyTimeoutSecs) * time.Second
}

// PollInterval returns the readiness poll interval as a duration.
func (b BrowserConfig) PollInterval() time.Duration {
	return time.Duration(b.PollMillis) * time.Millisecond
}

// BatchConfig configures the wave scheduler.
type BatchConfig struct {
	SubBatchSize   int `yaml:"sub_batch_size" mapstructure:"sub_batch_size"` // upstream hard limit
	MaxConcurrent  int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	WaveDelaySecs  int `yaml:"wave_delay_secs" mapstructure:"wave_delay_secs"`
	SubBatchBudget int `yaml:"sub_batch_budget_secs" mapstructure:"sub_batch_budget_secs"`
}

// WaveDelay returns the inter-wave delay as a duration.
func (b BatchConfig) WaveDelay() time.Duration {
	return time.Duration(b.WaveDelaySecs) * time.Second
}

// SubBatchTimeout returns the per-sub-batch time budget as a duration.
func (b BatchConfig) SubBatchTimeout() time.Duration {
	return time.Duration(b.SubBatchBudget) * time.Second
}

// RetryConfig configures synchronous and background retry behavior.
type RetryConfig struct {
	MaxAttempts          int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMillis int `yaml:"initial_backoff_millis" mapstructure:"initial_backoff_millis"`
	MaxBackoffSecs       int `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	BackgroundGraceSecs  int `yaml:"background_grace_secs" mapstructure:"background_grace_secs"`
	BackgroundAttempts   int `yaml:"background_attempts" mapstructure:"background_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRAFFIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "traffic.db")
	v.SetDefault("store.fresh_cutoff_day", 12)
	v.SetDefault("store.max_age_days", 35)
	v.SetDefault("store.prev_month_max_age_days", 45)
	v.SetDefault("store.retention_months", 24)
	v.SetDefault("browser.url_template", "https://traffic.example.com/compare?domains=%s")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_secs", 60)
	v.SetDefault("browser.ready_timeout_secs", 30)
	v.SetDefault("browser.poll_millis", 500)
	v.SetDefault("browser.ready_fraction", 0.5)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("batch.sub_batch_size", 10)
	v.SetDefault("batch.max_concurrent", 3)
	v.SetDefault("batch.wave_delay_secs", 2)
	v.SetDefault("batch.sub_batch_budget_secs", 120)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_millis", 2000)
	v.SetDefault("retry.max_backoff_secs", 30)
	v.SetDefault("retry.background_grace_secs", 300)
	v.SetDefault("retry.background_attempts", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
