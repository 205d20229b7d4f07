package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or
// sits behind an open breaker.
var ErrAllFailed = errors.New("all backends failed")

// FallbackConfig configures the per-entry breaker a [FallbackGroup] creates.
type FallbackConfig struct {
	Breaker BreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback backends of the
// same type. Each backend gets its own breaker; a failing or tripped
// primary is bypassed in favour of the next healthy entry.
//
// FallbackGroup is safe for concurrent use after registration; AddFallback
// must not race with Execute.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.entries = append(g.entries, g.newEntry(primaryName, primary))
	return g
}

// AddFallback appends a backend. Entries are tried in registration order.
func (g *FallbackGroup[T]) AddFallback(name string, fallback T) {
	g.entries = append(g.entries, g.newEntry(name, fallback))
}

func (g *FallbackGroup[T]) newEntry(name string, value T) fallbackEntry[T] {
	bc := g.cfg.Breaker
	bc.Name = name
	return fallbackEntry[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)}
}

// Execute tries fn against each entry until one succeeds. Entries with an
// open breaker are skipped. Returns [ErrAllFailed] wrapping the last error
// when nothing succeeds.
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry until one succeeds and
// returns its result. A package-level function because Go has no
// method-level type parameters.
func ExecuteWithResult[T any, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		entry := &g.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(entry.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend with open breaker", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
