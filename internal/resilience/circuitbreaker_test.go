package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test"})
	if cb.threshold != 5 {
		t.Errorf("threshold = %d, want 5", cb.threshold)
	}
	if cb.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", cb.cooldown)
	}
	if cb.probeBudget != 3 {
		t.Errorf("probeBudget = %d, want 3", cb.probeBudget)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ClosedAllowsCalls(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", Threshold: 3})
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:      "test",
		Threshold: 3,
		Cooldown:  time.Hour,
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errTest })
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", Threshold: 3, Cooldown: time.Hour})

	_ = cb.Execute(func() error { return errTest })
	_ = cb.Execute(func() error { return errTest })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errTest })
	_ = cb.Execute(func() error { return errTest })

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after interleaved success", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:        "test",
		Threshold:   1,
		Cooldown:    time.Millisecond,
		ProbeBudget: 2,
	})

	_ = cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(5 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", cb.State())
	}

	// Probe budget of successful calls closes the breaker.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after probes", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:        "test",
		Threshold:   1,
		Cooldown:    time.Millisecond,
		ProbeBudget: 3,
	})

	_ = cb.Execute(func() error { return errTest })
	time.Sleep(5 * time.Millisecond)

	_ = cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: time.Hour})

	_ = cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("call after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
