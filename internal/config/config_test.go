package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Analytics.ForecastHorizon)
	assert.Equal(t, 1.5, cfg.Analytics.Threshold)
	assert.Equal(t, "@every 30m", cfg.Scheduler.WarmSpec)
	assert.True(t, cfg.Dataset.FallbackEnabled)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("ANALYTICS_OUTLIER_CONTAMINATION", "0.2")
	t.Setenv("CACHE_LOCAL_TTL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("REDIS_ENABLED", "not-a-bool")

	cfg := Load()

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 0.2, cfg.Analytics.Contamination)
	assert.Equal(t, 5*time.Minute, cfg.Cache.LocalTTL)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Cache.RedisEnabled)
	assert.Equal(t, "0.0.0.0:9100", cfg.Address())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero horizon", func(c *Config) { c.Analytics.ForecastHorizon = 0 }},
		{"threshold too high", func(c *Config) { c.Analytics.Threshold = 5 }},
		{"contamination too low", func(c *Config) { c.Analytics.Contamination = 0.001 }},
		{"zero clusters", func(c *Config) { c.Analytics.Clusters = 0 }},
		{"redis without address", func(c *Config) { c.Cache.RedisEnabled = true; c.Cache.RedisAddr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
