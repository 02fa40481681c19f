// Package metrics exposes the engine's Prometheus instrumentation:
// HTTP surface metrics (via the middleware in middleware.go) and
// trading metrics fed by the dispatcher and portfolio manager.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TradingMetrics is the process-wide metric registry. One instance is
// constructed at startup and threaded through the HTTP middleware, the
// dispatcher, and anywhere else a component reports a measurement.
type TradingMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LoopLatency *prometheus.HistogramVec
	TicksTotal  prometheus.Counter
	FillsTotal  prometheus.Counter
	RejectsTotal prometheus.Counter

	UnrealizedPnL prometheus.Gauge
	RealizedPnL   prometheus.Gauge
	GrossExposure prometheus.Gauge
	NetExposure   prometheus.Gauge
}

// NewTradingMetrics registers every collector against reg and returns
// the populated struct.
func NewTradingMetrics(reg prometheus.Registerer) *TradingMetrics {
	m := &TradingMetrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantengine_http_requests_total",
			Help: "Total HTTP requests served by the control/status API.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantengine_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		LoopLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantengine_dispatch_loop_latency_seconds",
			Help:    "Wall-clock time to process a single dispatcher iteration.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_ticks_total",
			Help: "Total market ticks processed by the dispatcher.",
		}),
		FillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_fills_total",
			Help: "Total fills emitted by the execution engine.",
		}),
		RejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantengine_rejects_total",
			Help: "Total orders rejected by the portfolio risk gate.",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantengine_unrealized_pnl",
			Help: "Mark-to-market unrealized P&L across all tracked symbols.",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantengine_realized_pnl",
			Help: "Cumulative realized P&L across all tracked symbols.",
		}),
		GrossExposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantengine_gross_exposure",
			Help: "Sum of absolute position notional across all tracked symbols.",
		}),
		NetExposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantengine_net_exposure",
			Help: "Sum of signed position notional across all tracked symbols.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.LoopLatency, m.TicksTotal, m.FillsTotal, m.RejectsTotal,
		m.UnrealizedPnL, m.RealizedPnL, m.GrossExposure, m.NetExposure,
	)
	return m
}

// ObserveLoopLatency satisfies dispatcher.MetricsSink.
func (m *TradingMetrics) ObserveLoopLatency(d time.Duration) {
	m.LoopLatency.WithLabelValues().Observe(d.Seconds())
}

// ObserveTick satisfies dispatcher.MetricsSink.
func (m *TradingMetrics) ObserveTick() {
	m.TicksTotal.Inc()
}

// ObserveFill increments the fill counter. Not part of
// dispatcher.MetricsSink; called directly wherever a fill is applied.
func (m *TradingMetrics) ObserveFill() {
	m.FillsTotal.Inc()
}

// ObserveReject increments the reject counter.
func (m *TradingMetrics) ObserveReject() {
	m.RejectsTotal.Inc()
}

// SetPortfolioGauges updates the P&L and exposure gauges from a
// portfolio.Metrics snapshot. Accepts bare float64s rather than the
// portfolio package's type to avoid a cyclic import.
func (m *TradingMetrics) SetPortfolioGauges(unrealizedPnL, realizedPnL, grossExposure, netExposure float64) {
	m.UnrealizedPnL.Set(unrealizedPnL)
	m.RealizedPnL.Set(realizedPnL)
	m.GrossExposure.Set(grossExposure)
	m.NetExposure.Set(netExposure)
}

// Snapshot is a point-in-time read of the trading collectors, for a
// status endpoint that would rather return JSON than scrape-format
// text.
type Snapshot struct {
	TicksTotal    float64 `json:"ticks_total"`
	FillsTotal    float64 `json:"fills_total"`
	RejectsTotal  float64 `json:"rejects_total"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	GrossExposure float64 `json:"gross_exposure"`
	NetExposure   float64 `json:"net_exposure"`
}

func counterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	_ = c.Write(&out)
	return out.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var out dto.Metric
	_ = g.Write(&out)
	return out.GetGauge().GetValue()
}

// Snapshot reads the current value of every trading collector.
func (m *TradingMetrics) Snapshot() Snapshot {
	return Snapshot{
		TicksTotal:    counterValue(m.TicksTotal),
		FillsTotal:    counterValue(m.FillsTotal),
		RejectsTotal:  counterValue(m.RejectsTotal),
		UnrealizedPnL: gaugeValue(m.UnrealizedPnL),
		RealizedPnL:   gaugeValue(m.RealizedPnL),
		GrossExposure: gaugeValue(m.GrossExposure),
		NetExposure:   gaugeValue(m.NetExposure),
	}
}
