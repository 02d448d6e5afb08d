package admission

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore persists admission statistics in Redis hashes. Totals are
// cumulative; per-route counters carry a TTL so an idle deployment does not
// accumulate keys forever.
type RedisStatsStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStatsOption configures a RedisStatsStore.
type RedisStatsOption func(*RedisStatsStore)

// WithStatsPrefix overrides the key prefix.
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithStatsTTL overrides the per-route key TTL.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// NewRedisStatsStore builds a stats store on an existing Redis client.
func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "gateway:admission",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements StatsStore.
func (s *RedisStatsStore) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	route := strings.TrimSpace(ev.Method + " " + ev.Path)
	if route != "" {
		routeKey := s.prefix + ":route:" + route
		pipe.HIncrBy(ctx, routeKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, routeKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot implements StatsStore. Only totals are read back; per-route
// counters stay in Redis for external tooling.
func (s *RedisStatsStore) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	if s == nil || s.rdb == nil {
		return StatsSnapshot{}, nil
	}

	fields, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return StatsSnapshot{}, err
	}

	var snap StatsSnapshot
	if v, err := strconv.ParseInt(fields["allowed"], 10, 64); err == nil {
		snap.Total.Allowed = v
	}
	if v, err := strconv.ParseInt(fields["denied"], 10, 64); err == nil {
		snap.Total.Denied = v
	}
	return snap, nil
}
