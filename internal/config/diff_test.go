package config_test

import (
	"testing"
	"time"

	"github.com/asynclabs/syncd/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.LogLevel = config.LogInfo
	cfg.Persona.SystemInstruction = "You are a test assistant."
	cfg.Dialing.DefaultCountryCode = "55"
	cfg.Command.WhatsAppDelay = 2 * time.Second
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.PersonaChanged || d.DialingChanged || d.DelaysChanged {
		t.Errorf("unrelated fields flagged: %+v", d)
	}
}

func TestDiff_Persona(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Persona.SystemInstruction = "You are a different assistant."

	d := config.Diff(old, new)
	if !d.PersonaChanged {
		t.Fatal("PersonaChanged = false, want true")
	}
	if d.NewPersona != "You are a different assistant." {
		t.Errorf("NewPersona = %q", d.NewPersona)
	}
}

func TestDiff_PersonaDefaultEquivalence(t *testing.T) {
	t.Parallel()
	// Clearing an explicit instruction that already matched the default is
	// not a change: the effective instruction is identical.
	old := baseConfig()
	old.Persona.SystemInstruction = config.DefaultPersona
	new := baseConfig()
	new.Persona.SystemInstruction = ""

	d := config.Diff(old, new)
	if d.PersonaChanged {
		t.Error("PersonaChanged = true for equivalent effective instructions")
	}
}

func TestDiff_Dialing(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Dialing.FuzzyLookup = true

	d := config.Diff(old, new)
	if !d.DialingChanged {
		t.Fatal("DialingChanged = false, want true")
	}
	if !d.NewDialing.FuzzyLookup {
		t.Error("NewDialing.FuzzyLookup = false, want true")
	}
}

func TestDiff_Delays(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Command.CallUpsellDelay = 5 * time.Second

	d := config.Diff(old, new)
	if !d.DelaysChanged {
		t.Fatal("DelaysChanged = false, want true")
	}
	if d.NewDelays.CallUpsellDelay != 5*time.Second {
		t.Errorf("NewDelays.CallUpsellDelay = %v, want 5s", d.NewDelays.CallUpsellDelay)
	}
}
