package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/circuitbreaker"
)

// HealthHandler reports basic liveness plus the state of any registered
// circuit breakers. Liveness itself has no dependency on the dispatcher
// or portfolio: a live process always answers /health, even mid-pause
// or mid-stop.
type HealthHandler struct {
	breakers *circuitbreaker.Manager
	logger   zerolog.Logger
}

func NewHealthHandler(breakers *circuitbreaker.Manager, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{breakers: breakers, logger: logger}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if h.breakers != nil {
		resp["circuit_breakers"] = h.breakers.GetAllMetrics()
	}
	writeJSON(w, http.StatusOK, resp)
}
