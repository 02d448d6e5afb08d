// Package proxy implements the forwarding engine: cache lookup, registry
// lookup, bounded upstream call, and outcome mapping. The engine performs no
// retries anywhere; retry policy belongs to the caller, because blind
// gateway-level retries would amplify load on a struggling backend.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/threatwatch/gateway/internal/auth"
	"github.com/threatwatch/gateway/internal/cache"
	gwerrors "github.com/threatwatch/gateway/internal/errors"
	"github.com/threatwatch/gateway/internal/observability"
	"github.com/threatwatch/gateway/internal/registry"
)

// maxBodyBytes bounds how much of an upstream response the gateway buffers.
const maxBodyBytes = 8 << 20

// Route is the fixed forwarding policy bound to one external route.
type Route struct {
	Service       string
	RequiredTier  auth.Tier
	Cacheable     bool
	CacheCategory string
	Timeout       time.Duration
}

// Request carries the caller's request into the engine.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Result carries the upstream (or cached) outcome back to the router.
type Result struct {
	Status          int
	Header          http.Header
	Body            []byte
	ServedFromCache bool
}

// Engine forwards calls to healthy backends.
type Engine struct {
	registry *registry.Registry
	cache    *cache.Cache
	client   *http.Client

	defaultTimeout time.Duration
	logger         *zap.Logger
	metrics        *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultTimeout sets the upstream timeout used when a route names none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = d }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches upstream and cache metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithHTTPClient overrides the upstream client, for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.client = client }
}

// NewEngine builds a proxy engine over the given registry and cache.
func NewEngine(reg *registry.Registry, respCache *cache.Cache, opts ...Option) *Engine {
	e := &Engine{
		registry:       reg,
		cache:          respCache,
		client:         &http.Client{},
		defaultTimeout: 10 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Forward executes one proxied call:
//
//  1. On a cacheable GET, try the response cache first.
//  2. Resolve the service; fail fast with ServiceUnavailable if unhealthy.
//  3. Forward with the route's timeout; populate the cache on a cacheable
//     200.
//  4. Map transport failures to the gateway taxonomy; pass non-2xx upstream
//     responses through unchanged, status and body intact.
func (e *Engine) Forward(ctx context.Context, route Route, req Request, identity auth.Identity) (*Result, error) {
	cacheKey := ""
	cacheable := route.Cacheable && req.Method == http.MethodGet
	category := route.CacheCategory
	if category == "" {
		category = cache.DefaultCategory
	}

	if cacheable {
		cacheKey = cache.Key(req.Path, req.RawQuery)
		if entry, ok := e.cache.Get(cacheKey, category); ok {
			e.metrics.RecordCacheHit(category)
			return &Result{
				Status:          entry.Status,
				Header:          entry.Header.Clone(),
				Body:            entry.Body,
				ServedFromCache: true,
			}, nil
		}
		e.metrics.RecordCacheMiss(category)
	}

	e.registry.EnsureFresh(ctx)

	address, err := e.registry.Resolve(route.Service)
	if err != nil {
		return nil, err
	}
	if !e.registry.IsHealthy(route.Service) {
		return nil, gwerrors.NewServiceUnavailable(route.Service)
	}

	timeout := route.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.call(callCtx, address, route, req, identity)
	if err != nil {
		return nil, e.mapError(route.Service, err)
	}

	if cacheable && result.Status == http.StatusOK {
		e.cache.Set(cacheKey, category, result.Status, result.Header, result.Body)
	}
	return result, nil
}

func (e *Engine) call(ctx context.Context, address string, route Route, req Request, identity auth.Identity) (*Result, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	upstream, err := http.NewRequestWithContext(ctx, req.Method, address+req.Path, body)
	if err != nil {
		return nil, err
	}
	upstream.URL.RawQuery = req.RawQuery

	copyHeader(upstream.Header, req.Header)
	// The resolved identity travels with the call so backends can apply
	// their own authorization without re-verifying the token.
	upstream.Header.Set("X-Client-Id", identity.ClientID)
	upstream.Header.Set("X-Client-Tier", string(identity.Tier))

	start := time.Now()
	resp, err := e.client.Do(upstream)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	e.metrics.RecordUpstream(route.Service, resp.StatusCode, time.Since(start))
	e.logger.Debug("proxied upstream call",
		zap.String("service", route.Service),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return &Result{
		Status: resp.StatusCode,
		Header: filterHeader(resp.Header),
		Body:   respBody,
	}, nil
}

// mapError translates transport failures into the gateway taxonomy:
// timeouts become UpstreamTimeout, connection failures ServiceUnavailable,
// anything else UpstreamError.
func (e *Engine) mapError(service string, err error) error {
	e.logger.Warn("upstream call failed",
		zap.String("service", service),
		zap.Error(err))

	if errors.Is(err, context.DeadlineExceeded) {
		return gwerrors.NewUpstreamTimeout(service)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return gwerrors.NewUpstreamTimeout(service)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return gwerrors.NewServiceUnavailable(service)
	}
	return gwerrors.NewUpstreamError(service)
}

// hop-by-hop headers stripped in both directions.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	for _, key := range hopHeaders {
		dst.Del(key)
	}
	// The gateway verified (or degraded) the credential; it is not
	// replayed upstream.
	dst.Del("Authorization")
}

func filterHeader(src http.Header) http.Header {
	out := src.Clone()
	for _, key := range hopHeaders {
		out.Del(key)
	}
	return out
}
