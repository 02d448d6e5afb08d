package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for configuration environment variables, e.g.
// GATEWAY_SERVICES_BLACKLIST or GATEWAY_AUTH_SECRET.
const EnvPrefix = "GATEWAY"

// SetDefaults installs the default configuration values on a viper instance.
// The route table's cache categories and the three-tier admission policy are
// defined here; environment variables and an optional config file override
// them.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Backend topology: one base address per service.
	v.SetDefault("services.collection", "http://localhost:8001")
	v.SetDefault("services.blacklist", "http://localhost:8002")
	v.SetDefault("services.analytics", "http://localhost:8003")

	// Auth defaults
	v.SetDefault("auth.secret", "")

	// Admission defaults: anonymous traffic gets the tightest limit.
	v.SetDefault("rate_limit.tiers.anonymous.limit", 50)
	v.SetDefault("rate_limit.tiers.anonymous.window", "1h")
	v.SetDefault("rate_limit.tiers.user.limit", 1000)
	v.SetDefault("rate_limit.tiers.user.window", "1h")
	v.SetDefault("rate_limit.tiers.admin.limit", 10000)
	v.SetDefault("rate_limit.tiers.admin.window", "1h")
	v.SetDefault("rate_limit.idle_ttl", "2h")

	// Cache defaults: short TTL for live data, longer for aggregates.
	v.SetDefault("cache.ttls.default", "1m")
	v.SetDefault("cache.ttls.statistics", "5m")
	v.SetDefault("cache.max_entries", 1024)

	// Registry probe defaults
	v.SetDefault("health.interval", "15s")
	v.SetDefault("health.probe_timeout", "3s")
	v.SetDefault("health.grace", "30s")
	v.SetDefault("health.path", "/health")

	// Proxy defaults
	v.SetDefault("proxy.timeout", "10s")

	// Admission stats defaults
	v.SetDefault("stats.backend", "memory")
	v.SetDefault("stats.redis.addr", "")
	v.SetDefault("stats.redis.password", "")
	v.SetDefault("stats.redis.db", 0)
	v.SetDefault("stats.redis.prefix", "gateway:admission")
	v.SetDefault("stats.redis.ttl", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
}

// Load unmarshals and validates the configuration from a prepared viper
// instance.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// BindEnv wires environment variable lookups with the GATEWAY_ prefix and
// dot-to-underscore key mapping.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
