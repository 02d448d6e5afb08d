package server

import (
	"github.com/threatwatch/gateway/internal/auth"
	"github.com/threatwatch/gateway/internal/proxy"
	"github.com/threatwatch/gateway/internal/server/handlers"
)

// Backend service names, matching the static topology configuration.
const (
	serviceCollection = "collection"
	serviceBlacklist  = "blacklist"
	serviceAnalytics  = "analytics"
)

// registerRoutes binds every external route to its policy tuple. The table
// is the single place where service, cache category and required tier come
// together.
func (s *Server) registerRoutes() {
	gw := s.gateway

	// Gateway-local endpoints
	s.router.Get("/health", handlers.Health(s.registry, s.version.Version))
	s.router.Get("/version", handlers.Version(s.version))
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	// Blacklist service: public, cached
	s.router.Get("/api/v1/blacklist/active", gw.Handle(proxy.Route{
		Service:   serviceBlacklist,
		Cacheable: true,
	}))
	s.router.Get("/api/v1/blacklist/fortigate", gw.Handle(proxy.Route{
		Service:   serviceBlacklist,
		Cacheable: true,
	}))
	s.router.Get("/api/v1/blacklist/statistics", gw.Handle(proxy.Route{
		Service:       serviceBlacklist,
		Cacheable:     true,
		CacheCategory: "statistics",
	}))

	// Collection service
	s.router.Get("/api/v1/collection/status", gw.Handle(proxy.Route{
		Service:   serviceCollection,
		Cacheable: true,
	}))
	s.router.Post("/api/v1/collection/trigger", gw.Handle(proxy.Route{
		Service:      serviceCollection,
		RequiredTier: auth.TierUser,
	}))
	s.router.Put("/api/v1/collection/sources/{source}/enable", gw.Handle(proxy.Route{
		Service:      serviceCollection,
		RequiredTier: auth.TierUser,
	}))

	// Analytics service: trend data cached, realtime never
	s.router.Get("/api/v1/analytics/trends", gw.Handle(proxy.Route{
		Service:       serviceAnalytics,
		Cacheable:     true,
		CacheCategory: "statistics",
	}))
	s.router.Get("/api/v1/analytics/geographic", gw.Handle(proxy.Route{
		Service:       serviceAnalytics,
		Cacheable:     true,
		CacheCategory: "statistics",
	}))
	s.router.Get("/api/v1/analytics/threat-types", gw.Handle(proxy.Route{
		Service:       serviceAnalytics,
		Cacheable:     true,
		CacheCategory: "statistics",
	}))
	s.router.Get("/api/v1/analytics/realtime", gw.Handle(proxy.Route{
		Service: serviceAnalytics,
	}))

	// Admin surface: local handlers behind the same policy chain
	s.router.Get("/admin/services", gw.Protect(auth.TierAdmin,
		handlers.AdminServices(s.registry)))
	s.router.Post("/admin/cache/clear", gw.Protect(auth.TierAdmin,
		handlers.AdminCacheClear(s.cache)))
	s.router.Get("/admin/metrics", gw.Protect(auth.TierAdmin,
		handlers.AdminMetrics(s.stats, s.limiter, s.cache, s.registry)))
}
