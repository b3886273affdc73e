package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossmarket/internal/config"
	"crossmarket/internal/eventstudy"
	"crossmarket/internal/marketdata"
	"crossmarket/internal/services"
)

type failingBaskets struct{}

func (failingBaskets) Baskets(ctx context.Context) ([]eventstudy.Basket, error) {
	return nil, errors.New("yaml: line 3: did not find expected key")
}

func healthRouter(t *testing.T, paths config.PathsConfig, baskets marketdata.BasketProvider) chi.Router {
	t.Helper()
	h := NewHealthHandler(services.NewHealthService("v1.0.0-test", "2025-06-26", paths, baskets, nil), nil)
	r := chi.NewRouter()
	r.Mount("/api/health", h.Routes())
	r.Get("/api/version", h.Version)
	return r
}

func TestHealthHandler(t *testing.T) {
	dir := t.TempDir()
	paths := config.PathsConfig{DataDir: dir, OutputDir: filepath.Join(dir, "output")}
	router := healthRouter(t, paths, nil)

	tests := []struct {
		name       string
		endpoint   string
		wantStatus int
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name:       "health",
			endpoint:   "/api/health",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, services.StatusOK, body["status"])
				assert.Equal(t, "v1.0.0-test", body["version"])
			},
		},
		{
			name:       "live",
			endpoint:   "/api/health/live",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, services.StatusAlive, body["status"])
				assert.Contains(t, body, "runtime")
			},
		},
		{
			name:       "ready",
			endpoint:   "/api/health/ready",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, services.StatusReady, body["status"])
			},
		},
		{
			name:       "version",
			endpoint:   "/api/version",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, config.AppName, body["name"])
				assert.Equal(t, "2025-06-26", body["build_time"])
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.endpoint, nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			tt.check(t, body)
		})
	}
}

func TestHealthHandler_NotReady(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		paths   config.PathsConfig
		baskets marketdata.BasketProvider
		service string
	}{
		{
			name:    "missing data directory",
			paths:   config.PathsConfig{DataDir: filepath.Join(dir, "missing"), OutputDir: dir},
			service: "data",
		},
		{
			name:    "invalid baskets",
			paths:   config.PathsConfig{DataDir: dir, OutputDir: dir},
			baskets: failingBaskets{},
			service: "baskets",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthRouter(t, tt.paths, tt.baskets).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))

			require.Equal(t, http.StatusServiceUnavailable, rec.Code)
			var body services.HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, services.StatusNotReady, body.Status)
			assert.Equal(t, services.StatusNotReady, body.Services[tt.service].Status)
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "analysis_runs_total", Help: "runs"})
	registry.MustRegister(counter)
	counter.Inc()

	h := NewMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "analysis_runs_total 1"))

	assert.NotNil(t, NewMetricsHandler(nil).handler)
}
