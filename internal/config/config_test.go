package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Nansen: NansenConfig{
			APIURL:         "https://api.nansen.ai/api/beta",
			APIKey:         "test-key",
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RetryDelayBase: time.Second,
			MaxPages:       5,
			RecordsPerPage: 100,
		},
		Kraken: KrakenConfig{
			APIURL:     "https://api.kraken.com",
			Pair:       "XETHZUSD",
			Timeout:    15 * time.Second,
			MaxRetries: 3,
		},
		Strategy: StrategyConfig{
			RollSpanShort:       7,
			RollSpanLong:        30,
			MinPeriods:          3,
			ZScoreLongThreshold: 1.5,
			WindowUnit:          "observations",
		},
		Storage: StorageConfig{
			DBPath:     "./data/test.db",
			MaxSignals: 100,
		},
		Schedule: ScheduleConfig{
			Daemon:   false,
			Interval: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
nansen:
  api_key: "test-key"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Nansen.APIURL != "https://api.nansen.ai/api/beta" {
		t.Errorf("nansen.api_url = %q, want default", cfg.Nansen.APIURL)
	}
	if cfg.Kraken.Pair != "XETHZUSD" {
		t.Errorf("kraken.pair = %q, want XETHZUSD", cfg.Kraken.Pair)
	}
	if cfg.Strategy.RollSpanShort != 7 || cfg.Strategy.RollSpanLong != 30 {
		t.Errorf("rolling spans = %d/%d, want 7/30", cfg.Strategy.RollSpanShort, cfg.Strategy.RollSpanLong)
	}
	if cfg.Strategy.ZScoreLongThreshold != 1.5 {
		t.Errorf("zscore_long_threshold = %f, want 1.5", cfg.Strategy.ZScoreLongThreshold)
	}
	if cfg.Strategy.WindowUnit != "observations" {
		t.Errorf("window_unit = %q, want observations", cfg.Strategy.WindowUnit)
	}
	if cfg.Schedule.Daemon {
		t.Error("daemon should default to false")
	}
	if cfg.Storage.MaxSignals != 1000 {
		t.Errorf("max_signals = %d, want 1000", cfg.Storage.MaxSignals)
	}
	if len(cfg.Nansen.SMFilters) == 0 {
		t.Error("sm_filters should have a non-empty default")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
nansen:
  api_key: "test-key"
  max_pages: 10
strategy:
  roll_span_short: 5
  zscore_long_threshold: 2.0
  window_unit: "days"
schedule:
  daemon: true
  interval: "6h"
logging:
  level: "debug"
  format: "console"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Nansen.MaxPages != 10 {
		t.Errorf("max_pages = %d, want 10", cfg.Nansen.MaxPages)
	}
	if cfg.Strategy.RollSpanShort != 5 {
		t.Errorf("roll_span_short = %d, want 5", cfg.Strategy.RollSpanShort)
	}
	if cfg.Strategy.ZScoreLongThreshold != 2.0 {
		t.Errorf("zscore_long_threshold = %f, want 2.0", cfg.Strategy.ZScoreLongThreshold)
	}
	if cfg.Strategy.WindowUnit != "days" {
		t.Errorf("window_unit = %q, want days", cfg.Strategy.WindowUnit)
	}
	if !cfg.Schedule.Daemon || cfg.Schedule.Interval != 6*time.Hour {
		t.Errorf("schedule = %+v, want daemon with 6h interval", cfg.Schedule)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("logging = %+v, want debug/console", cfg.Logging)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing nansen api key", func(c *Config) { c.Nansen.APIKey = "" }, true},
		{"missing nansen api url", func(c *Config) { c.Nansen.APIURL = "" }, true},
		{"zero max pages", func(c *Config) { c.Nansen.MaxPages = 0 }, true},
		{"records per page too large", func(c *Config) { c.Nansen.RecordsPerPage = 2000 }, true},
		{"missing kraken pair", func(c *Config) { c.Kraken.Pair = "" }, true},
		{"zero short span", func(c *Config) { c.Strategy.RollSpanShort = 0 }, true},
		{"long span below short span", func(c *Config) {
			c.Strategy.RollSpanShort = 30
			c.Strategy.RollSpanLong = 7
		}, true},
		{"min periods below two", func(c *Config) { c.Strategy.MinPeriods = 1 }, true},
		{"negative inflow threshold", func(c *Config) { c.Strategy.MajorExchangeInflowUSD = -1 }, true},
		{"bad window unit", func(c *Config) { c.Strategy.WindowUnit = "weeks" }, true},
		{"telegram enabled without token", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.ChatID = "123"
		}, true},
		{"telegram enabled without chat id", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "token"
		}, true},
		{"telegram complete", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "token"
			c.Telegram.ChatID = "123"
		}, false},
		{"missing db path", func(c *Config) { c.Storage.DBPath = "" }, true},
		{"zero max signals", func(c *Config) { c.Storage.MaxSignals = 0 }, true},
		{"daemon interval too short", func(c *Config) {
			c.Schedule.Daemon = true
			c.Schedule.Interval = 10 * time.Second
		}, true},
		{"short interval fine when not daemon", func(c *Config) {
			c.Schedule.Daemon = false
			c.Schedule.Interval = 10 * time.Second
		}, false},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
