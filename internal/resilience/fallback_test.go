package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asynclabs/syncd/pkg/provider/chat"
)

func TestFallbackGroup_PrimarySucceeds(t *testing.T) {
	g := NewFallbackGroup("primary", "primary", FallbackConfig{})
	g.AddFallback("secondary", "secondary")

	var used string
	err := g.Execute(func(v string) error { used = v; return nil })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "primary" {
		t.Errorf("used = %q, want primary", used)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	g := NewFallbackGroup("a", "a", FallbackConfig{})
	g.AddFallback("b", "b")
	g.AddFallback("c", "c")

	var tried []string
	err := g.Execute(func(v string) error {
		tried = append(tried, v)
		if v != "c" {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tried) != 3 || tried[0] != "a" || tried[1] != "b" || tried[2] != "c" {
		t.Errorf("tried = %v, want [a b c]", tried)
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	g := NewFallbackGroup("a", "a", FallbackConfig{})
	g.AddFallback("b", "b")

	err := g.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	g := NewFallbackGroup("a", "a", FallbackConfig{
		Breaker: BreakerConfig{Threshold: 1, Cooldown: time.Hour},
	})
	g.AddFallback("b", "b")

	// Trip the primary's breaker.
	_ = g.Execute(func(v string) error {
		if v == "a" {
			return errTest
		}
		return nil
	})

	var tried []string
	err := g.Execute(func(v string) error { tried = append(tried, v); return nil })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tried) != 1 || tried[0] != "b" {
		t.Errorf("tried = %v, want [b] with primary skipped", tried)
	}
}

func TestExecuteWithResult(t *testing.T) {
	g := NewFallbackGroup(1, "one", FallbackConfig{})
	g.AddFallback("two", 2)

	got, err := ExecuteWithResult(g, func(v int) (string, error) {
		if v == 1 {
			return "", errTest
		}
		return "from-two", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "from-two" {
		t.Errorf("got %q, want from-two", got)
	}
}

type stubChat struct {
	text string
	err  error
}

func (s *stubChat) Complete(context.Context, chat.Request) (*chat.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &chat.Response{Text: s.text}, nil
}

func TestChatFallback_FailsOver(t *testing.T) {
	f := NewChatFallback(&stubChat{err: errTest}, "primary", FallbackConfig{})
	f.AddFallback("backup", &stubChat{text: "olá"})

	resp, err := f.Complete(context.Background(), chat.Request{Message: "oi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "olá" {
		t.Errorf("Text = %q, want olá", resp.Text)
	}
}

func TestChatFallback_AllFail(t *testing.T) {
	f := NewChatFallback(&stubChat{err: errTest}, "primary", FallbackConfig{})
	if _, err := f.Complete(context.Background(), chat.Request{Message: "oi"}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
