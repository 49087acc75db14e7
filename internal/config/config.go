// Package config defines the immutable application configuration. It is
// decoded once at process start and validated before any traffic is served;
// there is no runtime reconfiguration of quotas.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig contains database configuration for the libsql audit store
type StoreConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
}

// TierConfig is one tier's quota as configured.
type TierConfig struct {
	Limit  int           `mapstructure:"limit" yaml:"limit"`
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// RateLimitConfig contains the per-tier quotas and sweeper settings.
type RateLimitConfig struct {
	Tiers         map[string]TierConfig `mapstructure:"tiers" yaml:"tiers"`
	SweepInterval time.Duration         `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// AuditConfig controls the best-effort decision audit trail.
type AuditConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level.
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format).
	// Metrics are also proxied at /metrics on the main HTTP port.
	Port int `mapstructure:"port" yaml:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Validate checks the configuration before the process starts serving.
// Invalid tiers or durations are startup failures, not runtime surprises.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}

	if len(c.RateLimit.Tiers) == 0 {
		return fmt.Errorf("rate_limit.tiers must define at least one tier")
	}
	for name, tier := range c.RateLimit.Tiers {
		if name == "" {
			return fmt.Errorf("rate_limit.tiers contains an empty tier name")
		}
		if tier.Limit <= 0 {
			return fmt.Errorf("rate_limit.tiers.%s.limit must be positive, got %d", name, tier.Limit)
		}
		if tier.Window <= 0 {
			return fmt.Errorf("rate_limit.tiers.%s.window must be positive, got %s", name, tier.Window)
		}
	}

	if c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("rate_limit.sweep_interval must be positive, got %s", c.RateLimit.SweepInterval)
	}

	if c.Audit.Enabled && c.Audit.Retention < 0 {
		return fmt.Errorf("audit.retention must not be negative, got %s", c.Audit.Retention)
	}

	return nil
}
