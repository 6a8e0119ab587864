// Package common provides shared utilities for Sift
package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Sift
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Gateway     GatewayConfig `toml:"gateway"`
	Screen      ScreenConfig  `toml:"screen"`
	Logging     LoggingConfig `toml:"logging"`
}

// IsProduction reports whether the server is running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// GatewayConfig holds market data gateway client configuration
type GatewayConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the HTTP timeout duration
func (c *GatewayConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ScreenConfig holds screening pipeline tunables.
type ScreenConfig struct {
	DefaultIndex          string `toml:"default_index"`
	Benchmark             string `toml:"benchmark"` // benchmark symbol for slope comparison
	CacheTTL              string `toml:"cache_ttl"`
	CacheCapacity         int    `toml:"cache_capacity"`
	RateLimitMax          int    `toml:"rate_limit_max"` // admitted scans per window, per screen
	RateLimitWindow       string `toml:"rate_limit_window"`
	QuoteBatchSize        int    `toml:"quote_batch_size"`
	QuoteBatchConcurrency int    `toml:"quote_batch_concurrency"`
	HistoryConcurrency    int    `toml:"history_concurrency"`
	EstimateConcurrency   int    `toml:"estimate_concurrency"`
	EstimatePeriods       int    `toml:"estimate_periods"`
	FetchTimeout          string `toml:"fetch_timeout"` // per external call, any stage
	WarmCron              string `toml:"warm_cron"`     // empty disables the warm-scan scheduler
	WarmLookbackDays      int    `toml:"warm_lookback_days"`
}

// GetCacheTTL parses and returns the result cache TTL
func (c *ScreenConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetRateLimitWindow parses and returns the fixed rate-limit window
func (c *ScreenConfig) GetRateLimitWindow() time.Duration {
	d, err := time.ParseDuration(c.RateLimitWindow)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetFetchTimeout parses and returns the per-fetch timeout
func (c *ScreenConfig) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil {
		return 8 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Gateway: GatewayConfig{
			BaseURL:   "https://financialmodelingprep.com/api/v3",
			RateLimit: 10,
			Timeout:   "30s",
		},
		Screen: ScreenConfig{
			DefaultIndex:          "sp500",
			Benchmark:             "SPY",
			CacheTTL:              "30m",
			CacheCapacity:         5,
			RateLimitMax:          5,
			RateLimitWindow:       "10m",
			QuoteBatchSize:        50,
			QuoteBatchConcurrency: 3,
			HistoryConcurrency:    10,
			EstimateConcurrency:   5,
			EstimatePeriods:       4,
			FetchTimeout:          "8s",
			WarmCron:              "", // off unless configured
			WarmLookbackDays:      90,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SIFT_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("SIFT_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("SIFT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("SIFT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if url := os.Getenv("SIFT_GATEWAY_URL"); url != "" {
		config.Gateway.BaseURL = url
	}

	if key := os.Getenv("SIFT_GATEWAY_API_KEY"); key != "" {
		config.Gateway.APIKey = key
	}
	if key := os.Getenv("FMP_API_KEY"); key != "" && config.Gateway.APIKey == "" {
		config.Gateway.APIKey = key
	}

	if spec := os.Getenv("SIFT_WARM_CRON"); spec != "" {
		config.Screen.WarmCron = spec
	}
}
