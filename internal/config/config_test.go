package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaultsLoadAndValidate(t *testing.T) {
	cfg := loadDefaults(t)

	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)

	require.Len(t, cfg.Services, 3)
	require.Equal(t, "http://localhost:8002", cfg.Services["blacklist"])

	require.Equal(t, 50, cfg.RateLimit.Tiers["anonymous"].Limit)
	require.Equal(t, time.Hour, cfg.RateLimit.Tiers["anonymous"].Window)
	require.Equal(t, 1000, cfg.RateLimit.Tiers["user"].Limit)
	require.Equal(t, 10000, cfg.RateLimit.Tiers["admin"].Limit)

	require.Equal(t, time.Minute, cfg.Cache.TTLs["default"])
	require.Equal(t, 5*time.Minute, cfg.Cache.TTLs["statistics"])
	require.Equal(t, 1024, cfg.Cache.MaxEntries)

	require.Equal(t, 3*time.Second, cfg.Health.ProbeTimeout)
	require.Equal(t, 15*time.Second, cfg.Health.Interval)
	require.Equal(t, 30*time.Second, cfg.Health.Grace)
	require.Equal(t, "/health", cfg.Health.Path)

	require.Equal(t, 10*time.Second, cfg.Proxy.Timeout)
	require.Equal(t, "memory", cfg.Stats.Backend)
	require.Equal(t, "info", cfg.Logging.Level)
	require.True(t, cfg.Metrics.Enabled)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GATEWAY_SERVER_PORT", "9999")
	t.Setenv("GATEWAY_AUTH_SECRET", "from-env")

	v := viper.New()
	SetDefaults(v)
	BindEnv(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Auth.Secret)
}

func TestValidateRejectsEmptyTopology(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Services = nil
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadAddress(t *testing.T) {
	cfg := loadDefaults(t)

	cfg.Services["blacklist"] = "not a url"
	require.Error(t, cfg.Validate())

	cfg.Services["blacklist"] = "localhost:8002"
	require.Error(t, cfg.Validate(), "scheme-less address must be rejected")

	cfg.Services["blacklist"] = "http://blacklist.internal:8002"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadTierPolicy(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.RateLimit.Tiers["anonymous"] = TierLimit{Limit: 0, Window: time.Hour}
	require.Error(t, cfg.Validate())

	cfg = loadDefaults(t)
	cfg.RateLimit.Tiers["anonymous"] = TierLimit{Limit: 50, Window: 0}
	require.Error(t, cfg.Validate())
}

func TestValidateStatsBackend(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Stats.Backend = "cassandra"
	require.Error(t, cfg.Validate())

	cfg.Stats.Backend = "redis"
	cfg.Stats.Redis.Addr = ""
	require.Error(t, cfg.Validate())

	cfg.Stats.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())
}
