package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/portfolio"
)

// PortfolioHandler serves a read-only snapshot of the live portfolio
// manager. It never mutates state — the dispatcher's run loop remains
// the only writer.
type PortfolioHandler struct {
	portfolio *portfolio.Manager
	logger    zerolog.Logger
}

func NewPortfolioHandler(pf *portfolio.Manager, logger zerolog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: pf, logger: logger}
}

type portfolioSummaryResponse struct {
	TotalValue      float64 `json:"total_value"`
	Cash            float64 `json:"cash"`
	ActivePositions int     `json:"active_positions"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	RealizedPnL     float64 `json:"realized_pnl"`
	GrossExposure   float64 `json:"gross_exposure"`
	NetExposure     float64 `json:"net_exposure"`
	FillCount       int64   `json:"fill_count"`
	OrderCount      int64   `json:"order_count"`
	RejectCount     int64   `json:"reject_count"`
}

func (h *PortfolioHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	m := h.portfolio.ComputeMetrics()
	writeJSON(w, http.StatusOK, portfolioSummaryResponse{
		TotalValue:      h.portfolio.GetTotalValue(),
		Cash:            h.portfolio.Cash(),
		ActivePositions: m.ActivePositions,
		UnrealizedPnL:   m.UnrealizedPnL,
		RealizedPnL:     m.RealizedPnL,
		GrossExposure:   m.GrossExposure,
		NetExposure:     m.NetExposure,
		FillCount:       m.FillCount,
		OrderCount:      m.OrderCount,
		RejectCount:     m.RejectCount,
	})
}
