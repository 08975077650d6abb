package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for klinevault.
type Config struct {
	Source  Source       `yaml:"source"`
	Gather  GatherConfig `yaml:"gather"`
	Output  Output       `yaml:"output"`
	Logging Logging      `yaml:"logging"`
}

// Source describes the public archive repository.
type Source struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// GatherConfig controls the fetch-extract-parse worker pool.
type GatherConfig struct {
	Workers         int           `yaml:"workers"`
	FetchRetries    int           `yaml:"fetch_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	ParseRetryDelay time.Duration `yaml:"parse_retry_delay"`
	MaxProbeDays    int           `yaml:"max_probe_days"`
	TempDir         string        `yaml:"temp_dir"`
	KeepTemp        bool          `yaml:"keep_temp"`
}

// Output controls where and how the merged dataset is written.
type Output struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// Logging configures the application logger.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

const (
	DefaultBaseURL         = "https://data.binance.vision"
	DefaultTimeout         = 60 * time.Second
	DefaultWorkers         = 40
	MaxWorkers             = 64
	DefaultRetryDelay      = time.Second
	DefaultParseRetryDelay = 2 * time.Second
	DefaultMaxProbeDays    = 3650
	DefaultFormat          = "csv"
)

// Default returns a Config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = DefaultBaseURL
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = DefaultTimeout
	}
	if c.Gather.Workers == 0 {
		c.Gather.Workers = DefaultWorkers
	}
	if c.Gather.RetryDelay == 0 {
		c.Gather.RetryDelay = DefaultRetryDelay
	}
	if c.Gather.ParseRetryDelay == 0 {
		c.Gather.ParseRetryDelay = DefaultParseRetryDelay
	}
	if c.Gather.MaxProbeDays == 0 {
		c.Gather.MaxProbeDays = DefaultMaxProbeDays
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Output.Format == "" {
		c.Output.Format = DefaultFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Source.BaseURL, "http://") && !strings.HasPrefix(c.Source.BaseURL, "https://") {
		return fmt.Errorf("%w: source.base_url %q must be an http(s) URL", ErrInvalid, c.Source.BaseURL)
	}
	if c.Gather.Workers < 1 || c.Gather.Workers > MaxWorkers {
		return fmt.Errorf("%w: gather.workers must be in [1, %d], got %d", ErrInvalid, MaxWorkers, c.Gather.Workers)
	}
	if c.Gather.FetchRetries < 0 {
		return fmt.Errorf("%w: gather.fetch_retries must be >= 0", ErrInvalid)
	}
	if c.Gather.MaxProbeDays < 1 {
		return fmt.Errorf("%w: gather.max_probe_days must be >= 1", ErrInvalid)
	}
	switch c.Output.Format {
	case "csv", "parquet", "sqlite":
	default:
		return fmt.Errorf("%w: output.format %q (want csv, parquet or sqlite)", ErrInvalid, c.Output.Format)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, expands ${VAR}
// references, applies environment variable overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load but falls back to defaults (plus env
// overrides) when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return finish(&Config{})
	}
	return Load(path)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KLINEVAULT_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}

	if v := os.Getenv("KLINEVAULT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gather.Workers = n
		}
	}

	if v := os.Getenv("KLINEVAULT_TEMP_DIR"); v != "" {
		cfg.Gather.TempDir = v
	}

	if v := os.Getenv("KLINEVAULT_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
