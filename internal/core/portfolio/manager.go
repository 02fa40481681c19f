// Package portfolio owns position and cash accounting for a fixed
// symbol universe: the pre-trade risk gate (can_execute), VWAP
// cost-basis position updates on fill, and the realized/unrealized P&L
// and exposure metrics the rest of the engine reads.
package portfolio

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/internal/core/risk"
	"github.com/darkskele/quantengine/pkg/types"
)

// Error kinds returned by the validated operations. These are
// programmer errors — an out-of-range symbol id, a non-finite price, or
// a zero quantity indicates a caller bug, not a market condition — and
// the dispatcher's default error policy rethrows them.
var (
	ErrOutOfRange      = errors.New("portfolio: symbol_id out of range")
	ErrInvalidPrice    = errors.New("portfolio: invalid price")
	ErrInvalidQuantity = errors.New("portfolio: invalid quantity")
)

// Position is a single symbol's open position: signed quantity, VWAP
// cost basis, and the realized P&L attributed to that symbol alone.
type Position struct {
	Quantity    int64
	AvgCost     float64
	RealizedPnL float64
	LastPrice   float64
}

// Metrics is the snapshot compute_metrics produces.
type Metrics struct {
	ActivePositions int
	UnrealizedPnL   float64
	GrossExposure   float64
	NetExposure     float64
	RealizedPnL     float64
	FillCount       int64
	OrderCount      int64
	RejectCount     int64
}

// Manager is the portfolio's single owner of cash and position state.
// It is not safe for concurrent use except for SymbolID, whose index is
// fixed at construction and which callers outside the single-threaded
// dispatcher may read.
type Manager struct {
	logger zerolog.Logger

	symbols    []string
	symbolID   map[string]int
	limits     []risk.Limits
	positions  []Position
	pendingQty []int64
	active     []bool

	cash             float64
	realizedPnLTotal float64
	fillCount        int64
	orderCount       int64
	rejectCount      int64

	orderSeq atomic.Uint64
}

// New builds a manager over the given symbol universe. symbols and
// limits must be the same length; that length is N, the dense id
// range [0, N) every operation indexes into.
func New(symbols []string, limits []risk.Limits, initialCash float64, logger zerolog.Logger) *Manager {
	if len(limits) != len(symbols) {
		panic("portfolio: symbols and limits must have equal length")
	}
	index := make(map[string]int, len(symbols))
	for i, s := range symbols {
		index[s] = i
	}
	return &Manager{
		logger:     logger.With().Str("component", "portfolio").Logger(),
		symbols:    symbols,
		symbolID:   index,
		limits:     limits,
		positions:  make([]Position, len(symbols)),
		pendingQty: make([]int64, len(symbols)),
		active:     make([]bool, len(symbols)),
		cash:       initialCash,
	}
}

// SymbolID looks up the dense id for a symbol, or false if unknown.
func (m *Manager) SymbolID(symbol string) (int, bool) {
	id, ok := m.symbolID[symbol]
	return id, ok
}

func (m *Manager) validate(symbolID int, signedQty int64, price float64) error {
	if symbolID < 0 || symbolID >= len(m.symbols) {
		return ErrOutOfRange
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return ErrInvalidPrice
	}
	if signedQty == 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// CanExecute applies the four pre-trade risk checks. symbolID must
// already be range-checked by the caller.
func (m *Manager) CanExecute(symbolID int, signedQty int64, price float64) bool {
	lim := m.limits[symbolID]
	if abs64(signedQty) > lim.MaxOrderSize {
		return false
	}
	resultingQty := m.positions[symbolID].Quantity + m.pendingQty[symbolID] + signedQty
	if abs64(resultingQty) > lim.MaxPositions {
		return false
	}
	if math.Abs(float64(resultingQty))*price > lim.MaxNotional {
		return false
	}
	if signedQty > 0 && float64(signedQty)*price > m.cash {
		return false
	}
	return true
}

// OnSignal is the pre-trade risk gate. On rejection it increments the
// reject count and returns (0, nil) without pushing anything. On
// acceptance it reserves pending_quantity, allocates a monotonically
// increasing order id, pushes an Order event onto queue, and returns
// the allocated id.
func (m *Manager) OnSignal(symbolID int, signedQty int64, price float64, timestampMs int64, queue *events.Queue) (uint64, error) {
	if err := m.validate(symbolID, signedQty, price); err != nil {
		return 0, err
	}
	if !m.CanExecute(symbolID, signedQty, price) {
		m.rejectCount++
		return 0, nil
	}

	m.pendingQty[symbolID] += signedQty
	id := m.orderSeq.Add(1)

	side := types.Buy
	qty := signedQty
	if signedQty < 0 {
		side = types.Sell
		qty = -signedQty
	}
	queue.Push(events.NewOrder(events.OrderEvent{
		ID:            id,
		ClientOrderID: uuid.NewString(),
		Symbol:        m.symbols[symbolID],
		Side:          side,
		Quantity:      qty,
		Price:         price,
		Type:          types.Market,
		SubmittedAt:   timestampMs,
	}))
	m.orderCount++
	return id, nil
}

// OnFill applies a fill: releases the reservation made at signal time,
// updates the position (4.4.3's add/reduce/flip algorithm), settles
// cash, and refreshes the active-position bitmap for the symbol.
func (m *Manager) OnFill(symbolID int, signedQty int64, price float64) error {
	if err := m.validate(symbolID, signedQty, price); err != nil {
		return err
	}

	m.pendingQty[symbolID] -= signedQty
	m.applyPositionUpdate(symbolID, signedQty, price)
	m.cash -= float64(signedQty) * price
	m.fillCount++
	m.active[symbolID] = m.positions[symbolID].Quantity != 0
	return nil
}

// OnCancel releases the pending-quantity reservation a cancelled order
// had made; it does not touch position or cash.
func (m *Manager) OnCancel(symbolID int, signedQty int64) error {
	if symbolID < 0 || symbolID >= len(m.symbols) {
		return ErrOutOfRange
	}
	m.pendingQty[symbolID] -= signedQty
	return nil
}

// OnMarketData validates and records the latest price for a symbol.
func (m *Manager) OnMarketData(symbolID int, price float64) error {
	if symbolID < 0 || symbolID >= len(m.symbols) {
		return ErrOutOfRange
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return ErrInvalidPrice
	}
	m.positions[symbolID].LastPrice = price
	return nil
}

// applyPositionUpdate implements the add/reduce/flip cost-basis
// algorithm. old and signedQty share sign (or old is flat): weighted
// average cost basis extends. They oppose and the fill is smaller or
// equal in magnitude: the closed portion realizes P&L, cost basis is
// unchanged unless the position closes flat. They oppose and the fill
// is larger in magnitude: the whole old position closes, realizing P&L
// on it, and the new leg opens at the fill price as its cost basis.
func (m *Manager) applyPositionUpdate(symbolID int, signedQty int64, price float64) {
	pos := &m.positions[symbolID]
	old := pos.Quantity
	newQty := old + signedQty

	switch {
	case old == 0 || sameSign(old, signedQty):
		pos.AvgCost = (float64(old)*pos.AvgCost + float64(signedQty)*price) / float64(newQty)

	case abs64(signedQty) <= abs64(old):
		closedQty := abs64(signedQty)
		realized := float64(closedQty) * (price - pos.AvgCost) * float64(sign(old))
		pos.RealizedPnL += realized
		m.realizedPnLTotal += realized
		if newQty == 0 {
			pos.AvgCost = 0
		}

	default: // flip
		closedQty := abs64(old)
		realized := float64(closedQty) * (price - pos.AvgCost) * float64(sign(old))
		pos.RealizedPnL += realized
		m.realizedPnLTotal += realized
		pos.AvgCost = price
	}

	pos.Quantity = newQty
}

// ComputeMetrics walks the active-position bitmap and accumulates
// per-position unrealized P&L and exposure, combined with the
// portfolio-level realized P&L and fill count totals.
func (m *Manager) ComputeMetrics() Metrics {
	metrics := Metrics{
		RealizedPnL: m.realizedPnLTotal,
		FillCount:   m.fillCount,
		OrderCount:  m.orderCount,
		RejectCount: m.rejectCount,
	}
	for id, isActive := range m.active {
		if !isActive {
			continue
		}
		pos := m.positions[id]
		metrics.ActivePositions++
		metrics.UnrealizedPnL += float64(pos.Quantity) * (pos.LastPrice - pos.AvgCost)
		exposure := float64(pos.Quantity) * pos.LastPrice
		metrics.GrossExposure += math.Abs(exposure)
		metrics.NetExposure += exposure
	}
	return metrics
}

// GetTotalValue returns cash plus the mark-to-market value of every
// active position.
func (m *Manager) GetTotalValue() float64 {
	total := m.cash
	for id, isActive := range m.active {
		if !isActive {
			continue
		}
		pos := m.positions[id]
		total += float64(pos.Quantity) * pos.LastPrice
	}
	return total
}

// Cash returns the current cash balance.
func (m *Manager) Cash() float64 {
	return m.cash
}

// Position returns a copy of the current state for symbolID.
func (m *Manager) Position(symbolID int) Position {
	return m.positions[symbolID]
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

func sameSign(a, b int64) bool {
	return (a > 0) == (b > 0)
}
