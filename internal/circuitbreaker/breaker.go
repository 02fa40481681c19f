package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrOpen is returned by Execute when the circuit is open (or half-open
// and already at its probe limit) and the call was rejected outright.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// State is one of the three classic circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config parameterizes a single breaker. Name and Logger are normally
// set by Manager.GetOrCreate rather than the caller.
type Config struct {
	MaxFailures int
	Timeout     time.Duration
	MaxRequests int
	Name        string
	Logger      zerolog.Logger
}

// CircuitBreaker wraps calls to a flaky dependency (the audit database,
// an external API) so repeated failures stop hammering it: after
// MaxFailures consecutive failures the circuit opens and rejects calls
// for Timeout, then allows up to MaxRequests probes through in the
// half-open state before closing again.
type CircuitBreaker struct {
	mu     sync.Mutex
	config Config

	state               State
	failures            int
	openedAt            time.Time
	halfOpenRequests    int
	halfOpenSuccesses   int
}

// New constructs a breaker, applying sane defaults for any zero field.
func New(config Config) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Execute runs fn if the circuit allows it, recording the outcome.
// Returns ErrOpen without calling fn if the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.config.Timeout {
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenRequests = 0
		cb.halfOpenSuccesses = 0
		cb.config.Logger.Info().Str("breaker", cb.config.Name).Msg("circuit half-open, probing")
		cb.halfOpenRequests++
		return nil

	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxRequests {
			return ErrOpen
		}
		cb.halfOpenRequests++
		return nil

	default:
		return nil
	}
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
			cb.trip()
		}
		return
	}

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.config.MaxRequests {
			cb.close()
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.config.Logger.Warn().Str("breaker", cb.config.Name).Msg("circuit opened")
}

func (cb *CircuitBreaker) close() {
	cb.state = StateClosed
	cb.failures = 0
	cb.config.Logger.Info().Str("breaker", cb.config.Name).Msg("circuit closed")
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetMetrics returns a snapshot suitable for a status endpoint.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"state":    cb.state.String(),
		"failures": cb.failures,
	}
}
