package server

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/threatwatch/gateway/internal/admission"
	"github.com/threatwatch/gateway/internal/auth"
	gwerrors "github.com/threatwatch/gateway/internal/errors"
	"github.com/threatwatch/gateway/internal/observability"
	"github.com/threatwatch/gateway/internal/proxy"
)

// maxRequestBody bounds how much of a caller's body the gateway buffers
// before forwarding.
const maxRequestBody = 4 << 20

// Gateway executes the per-route policy chain: auth resolution, tier check,
// admission control, then the proxy engine. Unauthenticated or unauthorized
// traffic is rejected before it can consume quota.
type Gateway struct {
	resolver *auth.Resolver
	limiter  *admission.Limiter
	stats    admission.StatsStore
	engine   *proxy.Engine
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewGateway wires the policy chain components together.
func NewGateway(
	resolver *auth.Resolver,
	limiter *admission.Limiter,
	stats admission.StatsStore,
	engine *proxy.Engine,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		resolver: resolver,
		limiter:  limiter,
		stats:    stats,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handle binds a proxied route to its policy chain.
func (g *Gateway) Handle(route proxy.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := g.admit(w, r, route.RequiredTier)
		if !ok {
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			gwerrors.RespondWithError(w, gwerrors.NewInternal())
			return
		}

		result, err := g.engine.Forward(r.Context(), route, proxy.Request{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header,
			Body:     body,
		}, identity)
		if err != nil {
			gwerrors.RespondWithError(w, err)
			return
		}

		writeResult(w, result)
	}
}

// Protect runs the auth, tier and admission steps in front of a local
// (non-proxied) handler, used by the admin surface.
func (g *Gateway) Protect(tier auth.Tier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.admit(w, r, tier); !ok {
			return
		}
		next(w, r)
	}
}

// admit executes auth resolution, the tier gate and admission control, and
// writes the rejection itself when a step fails.
func (g *Gateway) admit(w http.ResponseWriter, r *http.Request, required auth.Tier) (auth.Identity, bool) {
	identity := g.resolver.Resolve(r.Header.Get("Authorization"))

	if required != "" && required != auth.TierAnonymous {
		if identity.Tier == auth.TierAnonymous {
			gwerrors.RespondWithError(w, gwerrors.NewAuthRequired())
			return identity, false
		}
		if !identity.Tier.AtLeast(required) {
			gwerrors.RespondWithError(w, gwerrors.NewForbidden())
			return identity, false
		}
	}

	clientID := clientKey(identity, r)
	allowed := g.limiter.Allow(clientID, identity.Tier)
	g.recordStats(r, clientID, identity.Tier, allowed)

	if !allowed {
		g.metrics.RecordRateLimited(string(identity.Tier))
		gwerrors.RespondWithError(w, gwerrors.NewRateLimited())
		return identity, false
	}
	return identity, true
}

// recordStats is best-effort: a stats failure must never fail the request.
func (g *Gateway) recordStats(r *http.Request, clientID string, tier auth.Tier, allowed bool) {
	if g.stats == nil {
		return
	}
	err := g.stats.Record(r.Context(), admission.StatsEvent{
		ClientID: clientID,
		Tier:     string(tier),
		Allowed:  allowed,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       time.Now().UTC(),
	})
	if err != nil {
		g.logger.Debug("admission stats record failed", zap.Error(err))
	}
}

// clientKey picks the rate-window key: the verified client ID when one
// exists, otherwise the caller's address so anonymous clients are counted
// individually.
func clientKey(identity auth.Identity, r *http.Request) string {
	if identity.Tier != auth.TierAnonymous && identity.ClientID != "" {
		return identity.ClientID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeResult(w http.ResponseWriter, result *proxy.Result) {
	for key, values := range result.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	if result.ServedFromCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Body)))
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)
}
