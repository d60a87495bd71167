// Package config handles TOML runtime configuration for converge.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	AWS       AWSConfig       `toml:"aws"`
	Log       LogConfig       `toml:"log"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	OTEL      OTELConfig      `toml:"otel"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Journal   JournalConfig   `toml:"journal"`
	History   HistoryConfig   `toml:"history"`
	Policy    PolicyConfig    `toml:"policy"`
}

// AWSConfig holds AWS credential and region settings.
// Invocation parameters may override both.
type AWSConfig struct {
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

// ReconcileConfig holds reconcile timing.
type ReconcileConfig struct {
	PollIntervalStr string `toml:"poll_interval"`
	DrainTimeoutStr string `toml:"drain_timeout"`
	PollInterval    time.Duration
	DrainTimeout    time.Duration
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string       `toml:"endpoint"`
	Insecure    bool         `toml:"insecure"`
	ServiceName string       `toml:"service_name"`
	Traces      TracesConfig `toml:"traces"`
	Metrics     OTLPMetrics  `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// OTLPMetrics toggles OTLP metric export.
type OTLPMetrics struct {
	Enabled bool `toml:"enabled"`
}

// MetricsConfig holds Prometheus export settings for a single run.
type MetricsConfig struct {
	Textfile    string `toml:"textfile"`
	Pushgateway string `toml:"pushgateway"`
	Job         string `toml:"job"`
}

// JournalConfig holds the audit journal location. Empty disables it.
type JournalConfig struct {
	Dir string `toml:"dir"`
}

// HistoryConfig holds the history database location. Empty disables it.
// Keep bounds the number of retained runs; 0 keeps everything.
type HistoryConfig struct {
	Path string `toml:"path"`
	Keep int64  `toml:"keep"`
}

// PolicyConfig holds the guardrail policy directory. Empty disables it.
type PolicyConfig struct {
	Dir string `toml:"dir"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	_ = parseDurations(cfg)
	return cfg
}

// Load reads and parses a TOML config file. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Reconcile.PollIntervalStr == "" {
		cfg.Reconcile.PollIntervalStr = "10s"
	}
	if cfg.Reconcile.DrainTimeoutStr == "" {
		cfg.Reconcile.DrainTimeoutStr = "10m"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "converge"
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "converge"
	}
}

func parseDurations(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Reconcile.PollIntervalStr)
	if err != nil {
		return fmt.Errorf("parse poll_interval %q: %w", cfg.Reconcile.PollIntervalStr, err)
	}
	cfg.Reconcile.PollInterval = d

	d, err = time.ParseDuration(cfg.Reconcile.DrainTimeoutStr)
	if err != nil {
		return fmt.Errorf("parse drain_timeout %q: %w", cfg.Reconcile.DrainTimeoutStr, err)
	}
	cfg.Reconcile.DrainTimeout = d
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.Reconcile.PollInterval <= 0 {
		return fmt.Errorf("reconcile: poll_interval must be positive (got %s)", c.Reconcile.PollInterval)
	}
	if c.Reconcile.DrainTimeout < 0 {
		return fmt.Errorf("reconcile: drain_timeout must not be negative (got %s)", c.Reconcile.DrainTimeout)
	}
	if c.History.Keep < 0 {
		return fmt.Errorf("history: keep must not be negative (got %d)", c.History.Keep)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log: format must be console or json (got %q)", c.Log.Format)
	}
	return nil
}
