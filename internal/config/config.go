// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Nansen   NansenConfig   `mapstructure:"nansen"`
	Kraken   KrakenConfig   `mapstructure:"kraken"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// NansenConfig holds the flow-data provider configuration
type NansenConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	MaxPages       int           `mapstructure:"max_pages"`
	RecordsPerPage int           `mapstructure:"records_per_page"`
	SMFilters      []string      `mapstructure:"sm_filters"`
}

// KrakenConfig holds the price provider configuration
type KrakenConfig struct {
	APIURL     string        `mapstructure:"api_url"`
	Pair       string        `mapstructure:"pair"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// StrategyConfig holds the scoring and classification thresholds
type StrategyConfig struct {
	RollSpanShort int `mapstructure:"roll_span_short"`
	RollSpanLong  int `mapstructure:"roll_span_long"`
	MinPeriods    int `mapstructure:"min_periods"`

	ZScoreLongThreshold float64 `mapstructure:"zscore_long_threshold"`
	ZScoreFlatThreshold float64 `mapstructure:"zscore_flat_threshold"`
	PriceFlatThreshold  float64 `mapstructure:"price_flat_threshold"`

	// Net flow onto exchanges above this USD amount vetoes a LONG.
	// Positive flow means funds moving onto exchanges. Tune per deployment.
	MajorExchangeInflowUSD float64 `mapstructure:"major_exchange_inflow_usd"`

	// WindowUnit selects the price-return lookback unit:
	// "observations" or "days".
	WindowUnit string `mapstructure:"window_unit"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	MaxSignals int    `mapstructure:"max_signals"`
}

// ScheduleConfig selects one-shot (cron) or daemon operation
type ScheduleConfig struct {
	Daemon   bool          `mapstructure:"daemon"`
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("ETHSIGNAL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Nansen defaults
	v.SetDefault("nansen.api_url", "https://api.nansen.ai/api/beta")
	v.SetDefault("nansen.timeout", "30s")
	v.SetDefault("nansen.max_retries", 3)
	v.SetDefault("nansen.retry_delay_base", "1s")
	v.SetDefault("nansen.max_pages", 5)
	v.SetDefault("nansen.records_per_page", 100)
	v.SetDefault("nansen.sm_filters", []string{"180D Smart Trader", "Fund", "Smart Trader"})

	// Kraken defaults
	v.SetDefault("kraken.api_url", "https://api.kraken.com")
	v.SetDefault("kraken.pair", "XETHZUSD")
	v.SetDefault("kraken.timeout", "15s")
	v.SetDefault("kraken.max_retries", 3)

	// Strategy defaults
	v.SetDefault("strategy.roll_span_short", 7)
	v.SetDefault("strategy.roll_span_long", 30)
	v.SetDefault("strategy.min_periods", 3)
	v.SetDefault("strategy.zscore_long_threshold", 1.5)
	v.SetDefault("strategy.zscore_flat_threshold", 0.0)
	v.SetDefault("strategy.price_flat_threshold", 0.0)
	v.SetDefault("strategy.major_exchange_inflow_usd", 0.0)
	v.SetDefault("strategy.window_unit", "observations")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/ethsignal.db")
	v.SetDefault("storage.max_signals", 1000)

	// Schedule defaults
	v.SetDefault("schedule.daemon", false)
	v.SetDefault("schedule.interval", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Nansen config
	if c.Nansen.APIURL == "" {
		return fmt.Errorf("nansen.api_url is required")
	}
	if c.Nansen.APIKey == "" {
		return fmt.Errorf("nansen.api_key is required")
	}
	if c.Nansen.MaxPages < 1 {
		return fmt.Errorf("nansen.max_pages must be at least 1")
	}
	if c.Nansen.RecordsPerPage < 1 || c.Nansen.RecordsPerPage > 1000 {
		return fmt.Errorf("nansen.records_per_page must be between 1 and 1000")
	}

	// Validate Kraken config
	if c.Kraken.APIURL == "" {
		return fmt.Errorf("kraken.api_url is required")
	}
	if c.Kraken.Pair == "" {
		return fmt.Errorf("kraken.pair is required")
	}

	// Validate Strategy config
	if c.Strategy.RollSpanShort < 1 {
		return fmt.Errorf("strategy.roll_span_short must be at least 1")
	}
	if c.Strategy.RollSpanLong < c.Strategy.RollSpanShort {
		return fmt.Errorf("strategy.roll_span_long must be >= strategy.roll_span_short")
	}
	if c.Strategy.MinPeriods < 2 {
		return fmt.Errorf("strategy.min_periods must be at least 2")
	}
	if c.Strategy.MajorExchangeInflowUSD < 0 {
		return fmt.Errorf("strategy.major_exchange_inflow_usd must not be negative")
	}
	if c.Strategy.WindowUnit != "observations" && c.Strategy.WindowUnit != "days" {
		return fmt.Errorf("strategy.window_unit must be one of: observations, days")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxSignals < 1 {
		return fmt.Errorf("storage.max_signals must be at least 1")
	}

	// Validate Schedule config
	if c.Schedule.Daemon && c.Schedule.Interval < 1*time.Minute {
		return fmt.Errorf("schedule.interval must be at least 1 minute in daemon mode")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, console")
	}

	return nil
}
