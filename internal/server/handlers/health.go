// Package handlers contains the gateway's locally served endpoints: health,
// version and the admin surface. Everything else is proxied.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/threatwatch/gateway/internal/registry"
)

// ServiceHealth is one backend's entry in the health response.
type ServiceHealth struct {
	Healthy     bool      `json:"healthy"`
	Address     string    `json:"address"`
	LastChecked time.Time `json:"last_checked"`
}

// HealthResponse is the aggregate gateway health view.
type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
}

// Health reports the gateway's own liveness plus the backend healthy set
// from the latest registry snapshot. The gateway itself is "degraded", not
// down, while backends are unhealthy, so this endpoint always returns 200
// as long as the process serves.
func Health(reg *registry.Registry, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := reg.Snapshot()

		services := make(map[string]ServiceHealth, len(snapshot))
		status := "healthy"
		for name, svc := range snapshot {
			services[name] = ServiceHealth{
				Healthy:     svc.Healthy,
				Address:     svc.Address,
				LastChecked: svc.LastChecked,
			}
			if !svc.Healthy {
				status = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    status,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Services:  services,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
