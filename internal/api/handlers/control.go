package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/dispatcher"
)

// ControlHandler toggles the dispatcher's pause flag and should-stop
// hook — the one cross-thread object the run loop exposes. All three
// routes (pause, resume, stop) are mutating and sit behind auth
// middleware.
type ControlHandler struct {
	dispatcher *dispatcher.Dispatcher
	logger     zerolog.Logger
}

func NewControlHandler(d *dispatcher.Dispatcher, logger zerolog.Logger) *ControlHandler {
	return &ControlHandler{dispatcher: d, logger: logger}
}

func (h *ControlHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Pause()
	h.logger.Info().Msg("dispatcher paused via control API")
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "paused"})
}

func (h *ControlHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Resume()
	h.logger.Info().Msg("dispatcher resumed via control API")
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "resumed"})
}

func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Stop()
	h.logger.Info().Msg("dispatcher stop requested via control API")
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "stopping"})
}
