// Package config provides the gateway's startup configuration: static
// backend topology, tier rate limits, cache TTLs, auth secret and server
// settings. Topology is read once at startup; there is no hot reload.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Services  map[string]string        `mapstructure:"services"`
	Auth      AuthConfig               `mapstructure:"auth"`
	RateLimit RateLimitConfig          `mapstructure:"rate_limit"`
	Cache     CacheConfig              `mapstructure:"cache"`
	Health    HealthConfig             `mapstructure:"health"`
	Proxy     ProxyConfig              `mapstructure:"proxy"`
	Stats     StatsConfig              `mapstructure:"stats"`
	Logging   LoggingConfig            `mapstructure:"logging"`
	Metrics   MetricsConfig            `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig contains the bearer-token verification settings.
type AuthConfig struct {
	// Secret is the shared HMAC secret tokens are verified against.
	Secret string `mapstructure:"secret"`
}

// TierLimit is one tier's admission policy.
type TierLimit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitConfig contains per-tier admission policies.
type RateLimitConfig struct {
	Tiers   map[string]TierLimit `mapstructure:"tiers"`
	IdleTTL time.Duration        `mapstructure:"idle_ttl"`
}

// CacheConfig contains response-cache settings.
type CacheConfig struct {
	// TTLs maps cache category to entry lifetime.
	TTLs map[string]time.Duration `mapstructure:"ttls"`

	// MaxEntries caps each category's entry count defensively.
	MaxEntries int `mapstructure:"max_entries"`
}

// HealthConfig contains registry probe settings.
type HealthConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	Grace        time.Duration `mapstructure:"grace"`
	Path         string        `mapstructure:"path"`
}

// ProxyConfig contains forwarding settings.
type ProxyConfig struct {
	// Timeout bounds each upstream call unless a route overrides it.
	Timeout time.Duration `mapstructure:"timeout"`
}

// StatsConfig selects the admission statistics backend.
type StatsConfig struct {
	// Backend is "memory" or "redis".
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains the optional Redis stats backend settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus exposure settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Validate checks the configuration for the defects that must be fatal at
// startup rather than at request time.
func (c *Config) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no backend services configured")
	}
	for name, address := range c.Services {
		parsed, err := url.Parse(address)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("service %s has invalid address %q", name, address)
		}
	}

	for tier, limit := range c.RateLimit.Tiers {
		if limit.Limit <= 0 {
			return fmt.Errorf("rate limit for tier %s must be positive", tier)
		}
		if limit.Window <= 0 {
			return fmt.Errorf("rate window for tier %s must be positive", tier)
		}
	}

	if c.Stats.Backend != "" && c.Stats.Backend != "memory" && c.Stats.Backend != "redis" {
		return fmt.Errorf("unknown stats backend %q", c.Stats.Backend)
	}
	if c.Stats.Backend == "redis" && c.Stats.Redis.Addr == "" {
		return fmt.Errorf("stats backend redis requires stats.redis.addr")
	}

	return nil
}
