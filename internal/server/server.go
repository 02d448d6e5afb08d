// Package server is the gateway's HTTP surface: the chi router, the
// middleware stack and the route policy table.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/threatwatch/gateway/internal/admission"
	"github.com/threatwatch/gateway/internal/cache"
	"github.com/threatwatch/gateway/internal/config"
	gwerrors "github.com/threatwatch/gateway/internal/errors"
	"github.com/threatwatch/gateway/internal/observability"
	"github.com/threatwatch/gateway/internal/registry"
	"github.com/threatwatch/gateway/internal/server/handlers"
	servermw "github.com/threatwatch/gateway/internal/server/middleware"
)

// Deps are the long-lived components the server routes requests through.
// They are constructed once at process start and injected here; the server
// owns none of their state.
type Deps struct {
	Gateway  *Gateway
	Registry *registry.Registry
	Limiter  *admission.Limiter
	Stats    admission.StatsStore
	Cache    *cache.Cache
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Version  handlers.VersionInfo
}

// Server is the gateway HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	logger *zap.Logger

	gateway  *Gateway
	registry *registry.Registry
	limiter  *admission.Limiter
	stats    admission.StatsStore
	cache    *cache.Cache
	metrics  *observability.Metrics
	version  handlers.VersionInfo
}

// New builds the server with the standard middleware chain and the full
// route table.
func New(cfg config.ServerConfig, deps Deps) *Server {
	r := chi.NewRouter()

	// Middleware order: RealIP first so rate limiting keys on the right
	// address, then correlation, then logging/metrics, recovery outermost.
	r.Use(chimw.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.Logging(deps.Logger, deps.Metrics))
	r.Use(servermw.Recovery(deps.Logger))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		gwerrors.RespondWithError(w, gwerrors.NewNotFound())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		gwerrors.RespondWithError(w, gwerrors.NewMethodNotAllowed())
	})

	s := &Server{
		router:   r,
		cfg:      cfg,
		logger:   deps.Logger,
		gateway:  deps.Gateway,
		registry: deps.Registry,
		limiter:  deps.Limiter,
		stats:    deps.Stats,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		version:  deps.Version,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	s.registerRoutes()
	return s
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
