package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asynclabs/syncd/internal/app"
	"github.com/asynclabs/syncd/internal/config"
	"github.com/asynclabs/syncd/pkg/provider/chat"
	"github.com/asynclabs/syncd/pkg/provider/live"
)

type stubLive struct{}

func (stubLive) Connect(_ context.Context, _ live.SessionConfig, _ live.Callbacks) (live.SessionHandle, error) {
	return nil, errors.New("stub live provider")
}

type stubChat struct{}

func (stubChat) Complete(_ context.Context, _ chat.Request) (*chat.Response, error) {
	return &chat.Response{Text: "ok"}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func TestNew_DefaultsToMemoryDirectory(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), &app.Providers{Chat: stubChat{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.Orchestrator() != nil {
		t.Error("orchestrator should be nil without a live provider")
	}
}

func TestNew_OrchestratorWithLiveProvider(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), &app.Providers{Live: stubLive{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.Orchestrator() == nil {
		t.Fatal("orchestrator is nil with a live provider configured")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), &app.Providers{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the listener a moment, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestShutdown_IsIdempotent(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), &app.Providers{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for range 3 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}
}
