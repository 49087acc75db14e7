package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "localhost", Port: 8080},
		RateLimit: RateLimitConfig{
			Tiers: map[string]TierConfig{
				"tier1": {Limit: 60, Window: time.Minute},
			},
			SweepInterval: 5 * time.Minute,
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 70000 },
		},
		{
			name:   "no tiers",
			mutate: func(c *Config) { c.RateLimit.Tiers = nil },
		},
		{
			name: "non-positive tier limit",
			mutate: func(c *Config) {
				c.RateLimit.Tiers["tier1"] = TierConfig{Limit: 0, Window: time.Minute}
			},
		},
		{
			name: "non-positive tier window",
			mutate: func(c *Config) {
				c.RateLimit.Tiers["tier1"] = TierConfig{Limit: 60, Window: 0}
			},
		},
		{
			name:   "non-positive sweep interval",
			mutate: func(c *Config) { c.RateLimit.SweepInterval = 0 },
		},
		{
			name: "negative audit retention",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.Retention = -time.Hour
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDecodesDurationsAndTiers(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("server.host", "localhost")
	viper.Set("server.port", 8080)
	viper.Set("store.path", "/tmp/tollgate-test.db")
	viper.Set("rate_limit.sweep_interval", "5m")
	viper.Set("rate_limit.tiers.tier1.limit", 60)
	viper.Set("rate_limit.tiers.tier1.window", "60s")
	viper.Set("rate_limit.tiers.tier2.limit", 120)
	viper.Set("rate_limit.tiers.tier2.window", "60s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.SweepInterval)
	require.Len(t, cfg.RateLimit.Tiers, 2)
	assert.Equal(t, 60, cfg.RateLimit.Tiers["tier1"].Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Tiers["tier1"].Window)
	assert.Equal(t, 120, cfg.RateLimit.Tiers["tier2"].Limit)

	assert.Same(t, cfg, GetConfig())
}

func TestLoadRejectsInvalidTier(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("rate_limit.sweep_interval", "5m")
	viper.Set("rate_limit.tiers.tier1.limit", -1)
	viper.Set("rate_limit.tiers.tier1.window", "60s")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaultsStorePath(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("rate_limit.sweep_interval", "5m")
	viper.Set("rate_limit.tiers.tier1.limit", 60)
	viper.Set("rate_limit.tiers.tier1.window", "60s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Store.Path)
}
