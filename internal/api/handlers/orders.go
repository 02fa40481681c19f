package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/execution"
)

// OrdersHandler serves read-only order lookups against the execution
// engine's order store. No create/cancel routes: order placement is
// strategy-driven, not an external API surface.
type OrdersHandler struct {
	engine *execution.Engine
	logger zerolog.Logger
}

func NewOrdersHandler(engine *execution.Engine, logger zerolog.Logger) *OrdersHandler {
	return &OrdersHandler{engine: engine, logger: logger}
}

type orderResponse struct {
	ID            uint64  `json:"id"`
	ClientOrderID string  `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Quantity      int64   `json:"quantity"`
	Price         float64 `json:"price"`
	FilledQty     int64   `json:"filled_qty"`
	AvgPrice      float64 `json:"avg_price"`
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "orderId")
	id, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "orderId must be a positive integer")
		return
	}

	state := h.engine.GetOrder(id)
	if state == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		ID:            state.Order.ID,
		ClientOrderID: state.Order.ClientOrderID,
		Symbol:        state.Order.Symbol,
		Side:          string(state.Order.Side),
		Type:          string(state.Order.Type),
		Quantity:      state.Order.Quantity,
		Price:         state.Order.Price,
		FilledQty:     state.FilledQty,
		AvgPrice:      state.AvgPrice,
	})
}
