// Package config handles configuration loading and validation for the
// demo CLI. The parallelization core itself takes no dependency on this
// package: it consumes an already-built ExecutorSpec.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the demo CLI's configuration.
type Config struct {
	// Exec holds the defaults handed to the executor builder.
	Exec ExecConfig `yaml:"exec"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log"`

	// Metrics holds optional Prometheus exposition settings.
	Metrics MetricsConfig `yaml:"metrics"`
}

// ExecConfig mirrors the tunable fields of an ExecutorSpec (§3).
type ExecConfig struct {
	BatchSize          int    `envconfig:"RICEEXEC_BATCH_SIZE" yaml:"batch_size"`
	SegmentSize        int    `envconfig:"RICEEXEC_SEGMENT_SIZE" yaml:"segment_size"`
	ProgressSymbol     string `envconfig:"RICEEXEC_PROGRESS_SYMBOL" yaml:"progress_symbol"`
	NumberOfProcesses  int    `envconfig:"RICEEXEC_PROCESSES" yaml:"number_of_processes"` // 0 = let the planner choose
	ItemsPerSecond     int    `envconfig:"RICEEXEC_ITEMS_PER_SEC" yaml:"items_per_second"` // 0 = unthrottled
	WorkingDirectory   string `envconfig:"RICEEXEC_WORKDIR" yaml:"working_directory"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RICEEXEC_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RICEEXEC_LOG_FORMAT" yaml:"format"`
}

// MetricsConfig holds optional Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `envconfig:"RICEEXEC_METRICS_ENABLED" yaml:"enabled"`
	Addr    string `envconfig:"RICEEXEC_METRICS_ADDR" yaml:"addr"`
}

// Load loads configuration from environment variables and an optional
// config file, applying defaults first and environment last.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Exec = ExecConfig{
		BatchSize:      10,
		SegmentSize:    50,
		ProgressSymbol: ".",
	}
	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
	cfg.Metrics = MetricsConfig{
		Enabled: false,
		Addr:    "127.0.0.1:9091",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Exec.BatchSize < 1 {
		errs = append(errs, "exec.batch_size must be positive")
	}
	if c.Exec.SegmentSize < 1 {
		errs = append(errs, "exec.segment_size must be positive")
	}
	if len([]rune(c.Exec.ProgressSymbol)) != 1 {
		errs = append(errs, "exec.progress_symbol must be exactly one character")
	}
	if c.Exec.NumberOfProcesses < 0 {
		errs = append(errs, "exec.number_of_processes must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
