package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler serves the Prometheus scrape endpoint
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler wraps the exporter's scrape handler; nil falls back to
// the default registry
func NewMetricsHandler(h http.Handler) *MetricsHandler {
	if h == nil {
		h = promhttp.Handler()
	}
	return &MetricsHandler{handler: h}
}

// ServeHTTP handles GET /metrics
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
