package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threatwatch/gateway/internal/registry"
)

func TestHealthDegradedWhenBackendDown(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(up.Close)

	reg := registry.New(map[string]string{
		"blacklist":  up.URL,
		"collection": "http://localhost:1",
	})
	reg.Sweep(context.Background())

	rec := httptest.NewRecorder()
	Health(reg, "1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Gateway liveness is not backend health: still 200, marked degraded.
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, "1.2.3", body.Version)
	require.True(t, body.Services["blacklist"].Healthy)
	require.False(t, body.Services["collection"].Healthy)
	require.NotEmpty(t, body.Timestamp)
}

func TestHealthAllUp(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(up.Close)

	reg := registry.New(map[string]string{"blacklist": up.URL})
	reg.Sweep(context.Background())

	rec := httptest.NewRecorder()
	Health(reg, "1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body.Status)
}
