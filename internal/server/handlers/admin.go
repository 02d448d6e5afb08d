package handlers

import (
	"net/http"

	"github.com/threatwatch/gateway/internal/admission"
	"github.com/threatwatch/gateway/internal/cache"
	"github.com/threatwatch/gateway/internal/registry"
)

// AdminServices lists the registry's latest per-service snapshot.
func AdminServices(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"services": reg.Snapshot(),
		})
	}
}

// AdminCacheClear drops every cached response and reports how many entries
// were removed.
func AdminCacheClear(respCache *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed := respCache.Clear()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "cache cleared",
			"entries_removed": removed,
		})
	}
}

// adminMetricsResponse is the JSON counters view for operators; Prometheus
// text format lives at /metrics.
type adminMetricsResponse struct {
	Admission admission.StatsSnapshot `json:"admission"`
	Cache     cacheMetrics            `json:"cache"`
	Clients   int                     `json:"tracked_clients"`
	Services  serviceMetrics          `json:"services"`
}

type cacheMetrics struct {
	Entries int `json:"entries"`
}

type serviceMetrics struct {
	Healthy int `json:"healthy"`
	Total   int `json:"total"`
}

// AdminMetrics surfaces the gateway's own counters: admission decisions,
// cache occupancy and the healthy set.
func AdminMetrics(
	stats admission.StatsStore,
	limiter *admission.Limiter,
	respCache *cache.Cache,
	reg *registry.Registry,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := stats.Snapshot(r.Context())
		if err != nil {
			// Stats backends fail soft; an empty snapshot beats a 5xx.
			snapshot = admission.StatsSnapshot{}
		}

		services := reg.Snapshot()
		healthy := 0
		for _, svc := range services {
			if svc.Healthy {
				healthy++
			}
		}

		writeJSON(w, http.StatusOK, adminMetricsResponse{
			Admission: snapshot,
			Cache:     cacheMetrics{Entries: respCache.Len()},
			Clients:   limiter.Tracked(),
			Services:  serviceMetrics{Healthy: healthy, Total: len(services)},
		})
	}
}
