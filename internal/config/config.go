// Package config defines all configuration for the engine. Config is
// loaded from a YAML file (default: configs/config.yaml) with secrets
// overridable via QE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML
// file structure.
type Config struct {
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Symbols    []SymbolConfig   `mapstructure:"symbols"`
	Portfolio  PortfolioConfig  `mapstructure:"portfolio"`
	Source     SourceConfig     `mapstructure:"source"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DispatcherConfig tunes the run loop.
//
//   - QueueHint: initial capacity hint for the event queue.
//   - NoEventBackoff: how long the engine sleeps after the source
//     reports no tick, before polling it again. Zero ends the run the
//     first time the source reports no tick; any positive value keeps
//     the loop polling indefinitely, including after a file or
//     synthetic source is exhausted.
type DispatcherConfig struct {
	QueueHint      int           `mapstructure:"queue_hint"`
	NoEventBackoff time.Duration `mapstructure:"no_event_backoff"`
}

// SymbolConfig carries one symbol's per-symbol risk limits.
type SymbolConfig struct {
	Symbol       string  `mapstructure:"symbol"`
	MaxOrderSize int64   `mapstructure:"max_order_size"`
	MaxPositions int64   `mapstructure:"max_positions"`
	MaxNotional  float64 `mapstructure:"max_notional"`
}

// PortfolioConfig seeds the portfolio manager.
type PortfolioConfig struct {
	InitialCash float64 `mapstructure:"initial_cash"`
}

// SourceConfig selects and configures the MarketSource.
//
//   - Kind is "file" or "synthetic".
//   - Path is the CSV path when Kind is "file".
//   - Seed/StartPrice/Volatility/TickMs/Ticks configure a synthetic
//     source and are ignored for "file".
type SourceConfig struct {
	Kind       string  `mapstructure:"kind"`
	Path       string  `mapstructure:"path"`
	Seed       int64   `mapstructure:"seed"`
	StartPrice float64 `mapstructure:"start_price"`
	Volatility float64 `mapstructure:"volatility"`
	TickMs     int64   `mapstructure:"tick_ms"`
	Ticks      int     `mapstructure:"ticks"`
}

// DatabaseConfig describes the audit ledger's Postgres/TimescaleDB
// connection. Enabled lets an operator run the engine with no
// persistence at all (the default for local backtests).
type DatabaseConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Database    string        `mapstructure:"database"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	SSLMode     string        `mapstructure:"ssl_mode"`
	MaxConns    int           `mapstructure:"max_conns"`
	MinConns    int           `mapstructure:"min_conns"`
	MaxConnLife time.Duration `mapstructure:"max_conn_life"`
}

// ConnectionString builds a libpq-style DSN for pgxpool.ParseConfig.
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// ServerConfig controls the control/status HTTP API.
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// AuthConfig holds the single-operator credential and JWT signing key
// gating the server's mutating control routes.
type AuthConfig struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: QE_DATABASE_PASSWORD, QE_AUTH_JWT_SECRET,
// QE_AUTH_PASSWORD_HASH.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("QE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if pw := os.Getenv("QE_DATABASE_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}
	if secret := os.Getenv("QE_AUTH_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if hash := os.Getenv("QE_AUTH_PASSWORD_HASH"); hash != "" {
		cfg.Auth.PasswordHash = hash
	}

	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols: at least one symbol must be configured")
	}
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbols: symbol name is required")
		}
		if s.MaxOrderSize <= 0 {
			return fmt.Errorf("symbols.%s.max_order_size must be > 0", s.Symbol)
		}
		if s.MaxPositions <= 0 {
			return fmt.Errorf("symbols.%s.max_positions must be > 0", s.Symbol)
		}
		if s.MaxNotional <= 0 {
			return fmt.Errorf("symbols.%s.max_notional must be > 0", s.Symbol)
		}
	}
	if c.Portfolio.InitialCash <= 0 {
		return fmt.Errorf("portfolio.initial_cash must be > 0")
	}
	switch c.Source.Kind {
	case "file":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required when source.kind is file")
		}
	case "synthetic":
		if c.Source.Ticks <= 0 {
			return fmt.Errorf("source.ticks must be > 0 when source.kind is synthetic")
		}
	default:
		return fmt.Errorf("source.kind must be file or synthetic, got %q", c.Source.Kind)
	}
	if c.Server.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required when server.enabled is true")
		}
		if c.Auth.PasswordHash == "" {
			return fmt.Errorf("auth.password_hash is required when server.enabled is true")
		}
	}
	return nil
}
