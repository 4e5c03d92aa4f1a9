// Package common provides shared utilities for Fundback
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Fundback
type Config struct {
	Environment string         `toml:"environment"`
	Storage     StorageConfig  `toml:"storage"`
	Clients     ClientsConfig  `toml:"clients"`
	Logging     LoggingConfig  `toml:"logging"`
	Backtest    BacktestConfig `toml:"backtest"`
}

// StorageConfig holds path configuration for the 3 storage areas.
type StorageConfig struct {
	Funds   AreaConfig `toml:"funds"`   // Fund NAV history + fees (file-based JSON)
	Runs    AreaConfig `toml:"runs"`    // Backtest run index (BadgerHold)
	Results AreaConfig `toml:"results"` // Per-run output directories (CSV, report, chart)
}

// AreaConfig holds path configuration for a storage area.
type AreaConfig struct {
	Path string `toml:"path"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Eastmoney EastmoneyConfig `toml:"eastmoney"`
}

// EastmoneyConfig holds eastmoney fund API configuration
type EastmoneyConfig struct {
	BaseURL    string `toml:"base_url"`
	FeeBaseURL string `toml:"fee_base_url"`
	RateLimit  int    `toml:"rate_limit"`
	Timeout    string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EastmoneyConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// BacktestConfig holds default backtest parameters used when the CLI flags
// are not supplied.
type BacktestConfig struct {
	Amount    float64 `toml:"amount"`
	Frequency string  `toml:"frequency"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Funds:   AreaConfig{Path: "data/funds"},
			Runs:    AreaConfig{Path: "data/runs"},
			Results: AreaConfig{Path: "results"},
		},
		Clients: ClientsConfig{
			Eastmoney: EastmoneyConfig{
				BaseURL:    "http://fund.eastmoney.com/f10/F10DataApi.aspx",
				FeeBaseURL: "http://fundf10.eastmoney.com",
				RateLimit:  5,
				Timeout:    "30s",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Backtest: BacktestConfig{
			Amount:    1000,
			Frequency: "monthly",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
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
	if env := os.Getenv("FUNDBACK_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("FUNDBACK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("FUNDBACK_DATA_PATH"); path != "" {
		config.Storage.Funds.Path = filepath.Join(path, "funds")
		config.Storage.Runs.Path = filepath.Join(path, "runs")
	}

	if path := os.Getenv("FUNDBACK_RESULTS_PATH"); path != "" {
		config.Storage.Results.Path = path
	}

	if url := os.Getenv("EASTMONEY_BASE_URL"); url != "" {
		config.Clients.Eastmoney.BaseURL = url
	}

	if limit := os.Getenv("EASTMONEY_RATE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			config.Clients.Eastmoney.RateLimit = n
		}
	}
}

// ResolveStoragePaths makes relative storage paths absolute against baseDir.
func (c *Config) ResolveStoragePaths(baseDir string) {
	for _, area := range []*AreaConfig{&c.Storage.Funds, &c.Storage.Runs, &c.Storage.Results} {
		if area.Path != "" && !filepath.IsAbs(area.Path) {
			area.Path = filepath.Join(baseDir, area.Path)
		}
	}
}
