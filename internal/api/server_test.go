package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/auth"
	"github.com/darkskele/quantengine/internal/circuitbreaker"
	"github.com/darkskele/quantengine/internal/config"
	"github.com/darkskele/quantengine/internal/core/dispatcher"
	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/internal/core/matching"
	"github.com/darkskele/quantengine/internal/core/orderbook"
	"github.com/darkskele/quantengine/internal/core/portfolio"
	"github.com/darkskele/quantengine/internal/core/risk"
	"github.com/darkskele/quantengine/internal/metrics"
	"github.com/darkskele/quantengine/pkg/types"
)

type noopSource struct{}

func (noopSource) Next() (types.Tick, bool) { return types.Tick{}, false }

type noopStrategy struct{}

func (noopStrategy) OnMarket(events.MarketEvent, *events.Queue)  {}
func (noopStrategy) OnSignal(events.SignalEvent, *events.Queue) {}
func (noopStrategy) OnCancel(events.CancelEvent)                {}

func newTestServer(t *testing.T) (*Server, Deps) {
	t.Helper()
	logger := zerolog.Nop()

	pf := portfolio.New([]string{"AAPL"}, []risk.Limits{risk.DefaultLimits()}, 100000, logger)
	store := orderbook.New(128)
	matcher := matching.NewSimMatcher(store, logger)
	d := dispatcher.New(noopSource{}, matcher, noopStrategy{}, pf, 16, logger)

	reg := prometheus.NewRegistry()
	m := metrics.NewTradingMetrics(reg)

	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	authSvc := auth.NewService("operator", hash, "secret", time.Minute, logger)

	breakerMgr := circuitbreaker.NewManager(logger)
	breakerMgr.GetOrCreate("audit_ledger", circuitbreaker.DefaultDatabaseConfig())

	deps := Deps{Dispatcher: d, Portfolio: pf, Engine: matcher.Engine, Metrics: m, Auth: authSvc, Breakers: breakerMgr}
	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, deps, logger)
	return srv, deps
}

func TestHealthReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	breakers, ok := body["circuit_breakers"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected circuit_breakers in response, got %v", body)
	}
	if _, ok := breakers["audit_ledger"]; !ok {
		t.Fatalf("expected audit_ledger breaker in response, got %v", breakers)
	}
}

func TestPortfolioSummaryReturnsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/portfolio/summary", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["total_value"].(float64) != 100000 {
		t.Fatalf("total_value = %v", body["total_value"])
	}
}

func TestOrderLookupMissingOrderReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestControlRouteRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/control/pause", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestControlRouteAcceptsValidToken(t *testing.T) {
	srv, deps := newTestServer(t)

	token, err := deps.Auth.Authenticate("operator", "pw")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/control/pause", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !deps.Dispatcher.Paused() {
		t.Fatal("expected the dispatcher to be paused")
	}
}

func TestLoginReturnsTokenForValidCredentials(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "operator", "password": "pw"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
