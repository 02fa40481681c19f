// Package api is the engine's control/status HTTP surface: read-only
// health/metrics/portfolio/order endpoints, plus three JWT-protected
// mutating routes (pause, resume, stop) that toggle the dispatcher's
// pause flag and should-stop hook. It runs on its own goroutine; it never touches
// order-store or portfolio state directly, only reading snapshots or,
// for /control/*, flipping the one cross-thread flag the dispatcher
// exposes.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/api/handlers"
	"github.com/darkskele/quantengine/internal/auth"
	"github.com/darkskele/quantengine/internal/circuitbreaker"
	"github.com/darkskele/quantengine/internal/config"
	"github.com/darkskele/quantengine/internal/core/dispatcher"
	"github.com/darkskele/quantengine/internal/core/execution"
	"github.com/darkskele/quantengine/internal/core/portfolio"
	"github.com/darkskele/quantengine/internal/metrics"
)

// Deps bundles the engine components the API surface reads from or
// (for Dispatcher, via control routes only) signals.
type Deps struct {
	Dispatcher *dispatcher.Dispatcher
	Portfolio  *portfolio.Manager
	Engine     *execution.Engine
	Metrics    *metrics.TradingMetrics
	Auth       *auth.Service
	Breakers   *circuitbreaker.Manager
}

// Server wraps the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger zerolog.Logger
}

// NewServer builds the router and wraps it in an *http.Server per cfg.
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(metrics.HTTPMetricsMiddleware(deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(deps.Breakers, logger)
	metricsHandler := handlers.NewMetricsHandler(deps.Metrics, logger)
	portfolioHandler := handlers.NewPortfolioHandler(deps.Portfolio, logger)
	ordersHandler := handlers.NewOrdersHandler(deps.Engine, logger)
	authHandler := handlers.NewAuthHandler(deps.Auth, logger)
	controlHandler := handlers.NewControlHandler(deps.Dispatcher, logger)

	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/metrics/snapshot", metricsHandler.GetSnapshot)
	r.Get("/portfolio/summary", portfolioHandler.GetSummary)
	r.Get("/orders/{orderId}", ordersHandler.GetOrder)

	r.Post("/auth/login", authHandler.Login)

	r.Route("/control", func(r chi.Router) {
		r.Use(RequireAuth(deps.Auth))
		r.Post("/pause", controlHandler.Pause)
		r.Post("/resume", controlHandler.Resume)
		r.Post("/stop", controlHandler.Stop)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{router: r, server: httpServer, logger: logger}
}

// Start serves until Shutdown is called, or blocks forever otherwise.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting control API")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down control API")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// LoggingMiddleware logs HTTP requests via zerolog.
func LoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
