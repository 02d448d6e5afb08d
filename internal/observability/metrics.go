package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the gateway. A nil *Metrics is
// valid and records nothing, so components can be constructed without
// observability in tests.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	upstreamTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	rateLimited *prometheus.CounterVec

	serviceUp *prometheus.GaugeVec
}

// NewMetrics builds a metrics set on a fresh registry with the standard Go
// and process collectors attached.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests handled by the gateway.",
		}, []string{"method", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request latency at the gateway.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_requests_total",
			Help: "Requests forwarded to backend services.",
		}, []string{"service", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_duration_seconds",
			Help:    "Backend call latency as observed by the proxy engine.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Response cache hits.",
		}, []string{"category"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Response cache misses.",
		}, []string{"category"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by admission control.",
		}, []string{"tier"}),
		serviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_service_up",
			Help: "Backend health as seen by the latest probe sweep (1 healthy, 0 unhealthy).",
		}, []string{"service"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.upstreamTotal,
		m.upstreamDuration,
		m.cacheHits,
		m.cacheMisses,
		m.rateLimited,
		m.serviceUp,
	)

	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one handled gateway request.
func (m *Metrics) RecordRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordUpstream records one forwarded backend call.
func (m *Metrics) RecordUpstream(service string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
	m.upstreamDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCacheHit records a response served from the cache.
func (m *Metrics) RecordCacheHit(category string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(category).Inc()
}

// RecordCacheMiss records a cache lookup that fell through to the backend.
func (m *Metrics) RecordCacheMiss(category string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(category).Inc()
}

// RecordRateLimited records an admission rejection for a tier.
func (m *Metrics) RecordRateLimited(tier string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(tier).Inc()
}

// SetServiceUp reflects a probe result in the health gauge.
func (m *Metrics) SetServiceUp(service string, healthy bool) {
	if m == nil {
		return
	}
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.serviceUp.WithLabelValues(service).Set(value)
}
