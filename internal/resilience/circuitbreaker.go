// Package resilience provides the circuit breaker and failover primitives
// that sit between the session core and its external collaborators (the
// telephony endpoint, chat backends).
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker
// has tripped and the cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Probes
	// succeeding closes the breaker; any probe failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [CircuitBreaker].
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Threshold is the number of consecutive failures that trips the
	// breaker. Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30s.
	Cooldown time.Duration

	// ProbeBudget is the number of half-open probe calls allowed before
	// the breaker decides. Default: 3.
	ProbeBudget int

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// CircuitBreaker is a three-state breaker protecting a single collaborator.
type CircuitBreaker struct {
	name        string
	threshold   int
	cooldown    time.Duration
	probeBudget int
	log         *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	trippedAt   time.Time
	probeCalls  int
	probeFailed bool
}

// NewCircuitBreaker creates a breaker, filling zero config fields with
// defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		threshold:   cfg.Threshold,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
		log:         cfg.Logger,
		state:       StateClosed,
	}
}

// Execute runs fn when the breaker allows it. While open it returns
// [ErrCircuitOpen] without calling fn; in half-open only the probe budget
// gets through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.trippedAt) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeCalls = 0
		cb.probeFailed = false
		cb.log.Info("circuit breaker probing", "name", cb.name)

	case StateHalfOpen:
		if cb.probeCalls >= cb.probeBudget {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	probing := cb.state == StateHalfOpen
	if probing {
		cb.probeCalls++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure(probing)
	} else {
		cb.onSuccess(probing)
	}
	return err
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(probing bool) {
	cb.trippedAt = time.Now()

	if probing {
		cb.probeFailed = true
		cb.state = StateOpen
		cb.failures = cb.threshold
		cb.log.Warn("circuit breaker re-opened after failed probe", "name", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = StateOpen
		cb.log.Warn("circuit breaker opened",
			"name", cb.name, "consecutive_failures", cb.failures)
	}
}

// onSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(probing bool) {
	if probing {
		if !cb.probeFailed && cb.probeCalls >= cb.probeBudget {
			cb.state = StateClosed
			cb.failures = 0
			cb.probeCalls = 0
			cb.log.Info("circuit breaker closed after successful probes", "name", cb.name)
		}
		return
	}
	cb.failures = 0
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports half-open; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.trippedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probeCalls = 0
	cb.probeFailed = false
	cb.log.Info("circuit breaker reset", "name", cb.name)
}
