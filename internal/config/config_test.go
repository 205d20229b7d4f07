package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/asynclabs/syncd/internal/config"
	"github.com/asynclabs/syncd/pkg/provider/chat"
	"github.com/asynclabs/syncd/pkg/provider/live"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		want  bool
	}{
		{config.LogDebug, true},
		{config.LogInfo, true},
		{config.LogWarn, true},
		{config.LogError, true},
		{config.LogLevel(""), false},
		{config.LogLevel("trace"), false},
		{config.LogLevel("INFO"), false},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestPersonaConfig_Instruction(t *testing.T) {
	t.Parallel()

	var p config.PersonaConfig
	if got := p.Instruction(); got != config.DefaultPersona {
		t.Errorf("empty persona should fall back to DefaultPersona, got %q", got)
	}
	if !strings.Contains(config.DefaultPersona, "Async+") {
		t.Error("DefaultPersona should name the assistant")
	}
	if !strings.Contains(config.DefaultPersona, `"action"`) {
		t.Error("DefaultPersona should document the action payload convention")
	}

	p.SystemInstruction = "custom"
	if got := p.Instruction(); got != "custom" {
		t.Errorf("Instruction() = %q, want %q", got, "custom")
	}
}

type stubLive struct{}

func (stubLive) Connect(_ context.Context, _ live.SessionConfig, _ live.Callbacks) (live.SessionHandle, error) {
	return nil, errors.New("stub")
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateLive(config.ProviderEntry{Name: "gemini"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
	if _, err := reg.CreateChat(config.ProviderEntry{Name: "openai"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}

	var gotLive config.ProviderEntry
	reg.RegisterLive("gemini", func(e config.ProviderEntry) (live.Provider, error) {
		gotLive = e
		return stubLive{}, nil
	})
	reg.RegisterChat("openai", func(e config.ProviderEntry) (chat.Provider, error) {
		return nil, errors.New("boom")
	})

	p, err := reg.CreateLive(config.ProviderEntry{Name: "gemini", APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLive returned nil provider")
	}
	if gotLive.APIKey != "k" || gotLive.Model != "m" {
		t.Errorf("factory received %+v, want api_key=k model=m", gotLive)
	}

	// Factory errors propagate.
	if _, err := reg.CreateChat(config.ProviderEntry{Name: "openai"}); err == nil {
		t.Fatal("expected factory error, got nil")
	}
}
