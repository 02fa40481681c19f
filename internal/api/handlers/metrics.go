package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/metrics"
)

// MetricsHandler serves a JSON snapshot of the trading collectors, a
// lighter-weight companion to the raw Prometheus scrape endpoint for
// callers that just want a status page.
type MetricsHandler struct {
	metrics *metrics.TradingMetrics
	logger  zerolog.Logger
}

func NewMetricsHandler(m *metrics.TradingMetrics, logger zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{metrics: m, logger: logger}
}

func (h *MetricsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}
