// Command engine is the entry point: it loads configuration, wires the
// dispatcher and its collaborators, optionally starts the audit ledger
// and control/status API, and runs until a termination signal arrives
// or the market source drains.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/api"
	"github.com/darkskele/quantengine/internal/audit"
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
	"github.com/darkskele/quantengine/internal/source"
	"github.com/darkskele/quantengine/internal/strategy"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var exitCode int
	defer func() { os.Exit(exitCode) }()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
	}
}

func run() error {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("QE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("quantengine starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	symbols := make([]string, len(cfg.Symbols))
	limits := make([]risk.Limits, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		symbols[i] = s.Symbol
		limits[i] = risk.Limits{
			MaxOrderSize: s.MaxOrderSize,
			MaxPositions: s.MaxPositions,
			MaxNotional:  s.MaxNotional,
		}
	}

	pf := portfolio.New(symbols, limits, cfg.Portfolio.InitialCash, logger)
	store := orderbook.New(1024)
	matcher := matching.NewSimMatcher(store, logger)

	strat := strategy.NewMovingAverageCrossover("moving_avg_crossover", 5, 20, 10, pf, logger)

	src, closeSrc, err := buildSource(cfg.Source, symbols)
	if err != nil {
		return fmt.Errorf("build market source: %w", err)
	}
	if closeSrc != nil {
		defer closeSrc()
	}

	reg := prometheus.DefaultRegisterer
	tradingMetrics := metrics.NewTradingMetrics(reg)
	logger.Info().Msg("prometheus metrics registered")

	breakerMgr := circuitbreaker.NewManager(logger)

	var ledger *audit.Ledger
	if cfg.Database.Enabled {
		pgCfg, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
		if err != nil {
			return fmt.Errorf("parse database config: %w", err)
		}
		if cfg.Database.MaxConns > 0 {
			pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		}
		if cfg.Database.MinConns > 0 {
			pgCfg.MinConns = int32(cfg.Database.MinConns)
		}
		if cfg.Database.MaxConnLife > 0 {
			pgCfg.MaxConnLifetime = cfg.Database.MaxConnLife
		}

		pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("connect to audit database: %w", err)
		}
		defer pool.Close()

		breaker := breakerMgr.GetOrCreate("audit_ledger", circuitbreaker.DefaultDatabaseConfig())
		ledger = audit.NewLedger(pool, breaker, logger)
		if err := ledger.InitSchema(ctx); err != nil {
			return fmt.Errorf("init audit schema: %w", err)
		}
		defer ledger.Close()
		logger.Info().Msg("audit ledger connected")
	}

	d := dispatcher.New(src, matcher, strat, pf, cfg.Dispatcher.QueueHint, logger)
	d.Metrics = &loopMetrics{trading: tradingMetrics, portfolio: pf}
	d.OnFill = func(f events.FillEvent) {
		tradingMetrics.ObserveFill()
		if ledger != nil {
			ledger.RecordFill(f)
		}
	}
	d.OnCancel = func(c events.CancelEvent) {
		if ledger != nil {
			ledger.RecordCancel(c)
		}
	}
	if cfg.Dispatcher.NoEventBackoff > 0 {
		d.HandleNoEvent = func() bool {
			time.Sleep(cfg.Dispatcher.NoEventBackoff)
			return true
		}
	}

	var srv *api.Server
	if cfg.Server.Enabled {
		authSvc := auth.NewService(cfg.Auth.Username, cfg.Auth.PasswordHash, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)
		deps := api.Deps{
			Dispatcher: d,
			Portfolio:  pf,
			Engine:     matcher.Engine,
			Metrics:    tradingMetrics,
			Auth:       authSvc,
			Breakers:   breakerMgr,
		}
		srv = api.NewServer(cfg.Server, deps, logger)

		serverErrCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil {
				serverErrCh <- err
			}
		}()
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("control API started")

		go func() {
			select {
			case err := <-serverErrCh:
				logger.Error().Err(err).Msg("control API failed")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- d.Run()
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		d.Stop()
	case err := <-runErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("dispatcher exited with error")
		} else {
			logger.Info().Msg("dispatcher exited, market source drained")
		}
	case <-ctx.Done():
		d.Stop()
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error shutting down control API")
		}
	}

	logger.Info().Msg("quantengine stopped")
	return nil
}

// buildSource constructs the configured MarketSource. The returned
// closer is non-nil only for sources that hold an open file handle.
func buildSource(cfg config.SourceConfig, symbols []string) (dispatcher.MarketSource, func(), error) {
	switch cfg.Kind {
	case "file":
		fs, err := source.OpenFileSource(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil
	case "synthetic":
		return source.NewSyntheticSource(cfg.Seed, symbols, cfg.StartPrice, cfg.Volatility, cfg.TickMs, cfg.Ticks), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// loopMetrics adapts metrics.TradingMetrics to dispatcher.MetricsSink
// and additionally samples the portfolio's cumulative counters and
// gauges once per iteration, since RejectCount and the P&L/exposure
// figures are only ever visible through portfolio.ComputeMetrics — the
// dispatcher has no per-event hook for a risk rejection, unlike fills
// and cancels.
type loopMetrics struct {
	trading     *metrics.TradingMetrics
	portfolio   *portfolio.Manager
	lastRejects int64
}

func (l *loopMetrics) ObserveLoopLatency(d time.Duration) {
	l.trading.ObserveLoopLatency(d)

	snap := l.portfolio.ComputeMetrics()
	l.trading.SetPortfolioGauges(snap.UnrealizedPnL, snap.RealizedPnL, snap.GrossExposure, snap.NetExposure)

	if delta := snap.RejectCount - l.lastRejects; delta > 0 {
		for i := int64(0); i < delta; i++ {
			l.trading.ObserveReject()
		}
		l.lastRejects = snap.RejectCount
	}
}

func (l *loopMetrics) ObserveTick() {
	l.trading.ObserveTick()
}

// setupLogger builds the process-wide logger per cfg: pretty console
// output for local runs, line-delimited JSON otherwise.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger.With().Str("component", "engine").Logger()
}
