// Package config loads application configuration from an optional YAML
// file, then environment variables, then defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"equity-calendar/internal/calendar"
	"equity-calendar/internal/model"
)

// Config holds all application configuration.
type Config struct {
	// Infrastructure
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"` // empty disables the tail cache
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	MetricsAddr   string `yaml:"metrics_addr"`

	// Feed
	FeedURL string `yaml:"feed_url"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Symbols is a comma-separated list of symbols to convert; empty means
	// every symbol with stored daily candles.
	Symbols string `yaml:"symbols"`

	// Intervals is a comma-separated list of conversion targets, e.g. "1w,1M".
	Intervals string `yaml:"intervals"`

	// ConvertCron is the six-field cron spec of the nightly conversion.
	ConvertCron string `yaml:"convert_cron"`

	// CalendarRules is a YAML calendar rules file; empty uses the built-in
	// US equities rules.
	CalendarRules string `yaml:"calendar_rules"`

	// Close detection
	CloseStableFor time.Duration `yaml:"close_stable_for"`
	CloseMaxGrace  time.Duration `yaml:"close_max_grace"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SQLitePath:     "data/candles.db",
		RedisAddr:      "localhost:6379",
		MetricsAddr:    ":9090",
		FeedURL:        "ws://localhost:9001/ws",
		LogLevel:       "info",
		LogFormat:      "json",
		Intervals:      "1w,1M,1Q,1y",
		ConvertCron:    "0 30 18 * * 1-5",
		CloseStableFor: 30 * time.Second,
		CloseMaxGrace:  5 * time.Minute,
	}
}

// Load reads path (skipped when empty) over the defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	setEnv(&c.SQLitePath, "SQLITE_PATH")
	setEnv(&c.RedisAddr, "REDIS_ADDR")
	setEnv(&c.RedisPassword, "REDIS_PASSWORD")
	setEnv(&c.MetricsAddr, "METRICS_ADDR")
	setEnv(&c.FeedURL, "FEED_URL")
	setEnv(&c.LogLevel, "LOG_LEVEL")
	setEnv(&c.LogFormat, "LOG_FORMAT")
	setEnv(&c.Symbols, "SYMBOLS")
	setEnv(&c.Intervals, "INTERVALS")
	setEnv(&c.ConvertCron, "CONVERT_CRON")
	setEnv(&c.CalendarRules, "CALENDAR_RULES")

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		} else {
			slog.Warn("config: ignoring invalid REDIS_DB", "value", v)
		}
	}
	for key, dst := range map[string]*time.Duration{
		"CLOSE_STABLE_FOR": &c.CloseStableFor,
		"CLOSE_MAX_GRACE":  &c.CloseMaxGrace,
	} {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			} else {
				slog.Warn("config: ignoring invalid duration", "key", key, "value", v)
			}
		}
	}
}

// ParseIntervals parses Intervals, skipping invalid or daily entries.
func (c *Config) ParseIntervals() []model.Interval {
	var out []model.Interval
	seen := make(map[model.Interval]bool)
	for _, p := range splitList(c.Intervals) {
		iv, err := model.ParseInterval(p)
		if err != nil || iv == model.Daily {
			slog.Warn("config: skipping invalid interval", "value", p)
			continue
		}
		if !seen[iv] {
			seen[iv] = true
			out = append(out, iv)
		}
	}
	return out
}

// ParseSymbols returns the upper-cased symbol list.
func (c *Config) ParseSymbols() []string {
	parts := splitList(c.Symbols)
	for i, p := range parts {
		parts[i] = strings.ToUpper(p)
	}
	return parts
}

// CalendarRulesOrDefault loads CalendarRules, or returns the US equities rules.
func (c *Config) CalendarRulesOrDefault() (calendar.Rules, error) {
	if c.CalendarRules == "" {
		return calendar.USEquities(), nil
	}
	return calendar.LoadRules(c.CalendarRules)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
