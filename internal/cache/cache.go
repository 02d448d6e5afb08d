// Package cache implements the TTL-keyed response cache for proxied GET
// responses, partitioned by category with per-category TTLs. The cache never
// decides cacheability; the proxy engine only offers it idempotent GETs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCategory is used when a route names no cache category of its own.
const DefaultCategory = "default"

// Entry is one cached upstream response. Entries are overwritten wholesale,
// never mutated in place.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Cache is the response cache. Each category gets its own capped LRU so a
// burst in one category cannot evict another's entries. The key space is
// bounded by the fixed route set; the per-category cap is defensive.
type Cache struct {
	buckets    map[string]*lru.Cache[string, Entry]
	ttls       map[string]time.Duration
	defaultTTL time.Duration
	clock      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

// New builds a cache with one bucket per configured category plus the
// default bucket. maxEntries caps each bucket; non-positive values fall back
// to a small defensive cap.
func New(ttls map[string]time.Duration, maxEntries int, opts ...Option) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 256
	}

	c := &Cache{
		buckets:    make(map[string]*lru.Cache[string, Entry], len(ttls)+1),
		ttls:       make(map[string]time.Duration, len(ttls)),
		defaultTTL: time.Minute,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}

	for category, ttl := range ttls {
		if ttl <= 0 {
			continue
		}
		c.ttls[category] = ttl
		if category == DefaultCategory {
			c.defaultTTL = ttl
		}
		bucket, err := lru.New[string, Entry](maxEntries)
		if err != nil {
			return nil, err
		}
		c.buckets[category] = bucket
	}

	if _, ok := c.buckets[DefaultCategory]; !ok {
		bucket, err := lru.New[string, Entry](maxEntries)
		if err != nil {
			return nil, err
		}
		c.buckets[DefaultCategory] = bucket
		c.ttls[DefaultCategory] = c.defaultTTL
	}

	return c, nil
}

// Get returns the entry stored under key in the given category, treating an
// entry past its category TTL as absent and evicting it.
func (c *Cache) Get(key, category string) (Entry, bool) {
	bucket, ttl := c.bucket(category)

	entry, ok := bucket.Get(key)
	if !ok {
		return Entry{}, false
	}

	if c.clock().Sub(entry.StoredAt) > ttl {
		bucket.Remove(key)
		return Entry{}, false
	}
	return entry, true
}

// Set unconditionally overwrites the entry under key, stamping it with the
// current time.
func (c *Cache) Set(key, category string, status int, header http.Header, body []byte) {
	bucket, _ := c.bucket(category)
	bucket.Add(key, Entry{
		Status:   status,
		Header:   header.Clone(),
		Body:     body,
		StoredAt: c.clock(),
	})
}

// Clear drops every entry in every category and reports how many were
// removed.
func (c *Cache) Clear() int {
	removed := 0
	for _, bucket := range c.buckets {
		removed += bucket.Len()
		bucket.Purge()
	}
	return removed
}

// Len reports the total number of live entries across categories. Expired
// entries that have not been read since expiry still count; they are evicted
// lazily on Get.
func (c *Cache) Len() int {
	total := 0
	for _, bucket := range c.buckets {
		total += bucket.Len()
	}
	return total
}

// TTL reports the effective TTL for a category.
func (c *Cache) TTL(category string) time.Duration {
	if ttl, ok := c.ttls[category]; ok {
		return ttl
	}
	return c.defaultTTL
}

func (c *Cache) bucket(category string) (*lru.Cache[string, Entry], time.Duration) {
	if bucket, ok := c.buckets[category]; ok {
		return bucket, c.ttls[category]
	}
	return c.buckets[DefaultCategory], c.defaultTTL
}

// Key derives the deterministic, tier-insensitive cache key for a request.
// Query parameters are canonicalized so equivalent URLs share an entry.
func Key(path, rawQuery string) string {
	canonical := path
	if rawQuery != "" {
		if values, err := url.ParseQuery(rawQuery); err == nil {
			canonical += "?" + values.Encode()
		} else {
			canonical += "?" + rawQuery
		}
	}

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
