package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live": {"gemini"},
	"chat": {"openai", "gemini"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when server.tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when server.tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("live", cfg.Live.Name)
	validateProviderName("chat", cfg.Chat.Name)
	for _, fb := range cfg.Chat.Fallbacks {
		validateProviderName("chat", fb.Name)
	}

	// Provider availability warnings
	if cfg.Live.Name != "" && cfg.Live.APIKey == "" {
		slog.Warn("live provider is configured without an api_key; voice sessions will fail to connect", "provider", cfg.Live.Name)
	}
	if cfg.Chat.Name != "" && cfg.Chat.APIKey == "" {
		slog.Warn("chat provider is configured without an api_key; text chat will fail", "provider", cfg.Chat.Name)
	}
	for i, fb := range cfg.Chat.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("chat.fallbacks[%d].name is required", i))
		}
	}

	// Contacts availability
	if cfg.Contacts.PostgresDSN == "" {
		slog.Warn("contacts.postgres_dsn is empty; using the in-memory directory with seed contacts")
	}

	// Dialing policy
	if cc := cfg.Dialing.DefaultCountryCode; cc != "" {
		for _, r := range cc {
			if r < '0' || r > '9' {
				errs = append(errs, fmt.Errorf("dialing.default_country_code %q must contain digits only", cc))
				break
			}
		}
	}

	// Command pacing
	if cfg.Command.WhatsAppDelay < 0 {
		errs = append(errs, fmt.Errorf("command.whatsapp_delay %v must not be negative", cfg.Command.WhatsAppDelay))
	}
	if cfg.Command.CallConnectDelay < 0 {
		errs = append(errs, fmt.Errorf("command.call_connect_delay %v must not be negative", cfg.Command.CallConnectDelay))
	}
	if cfg.Command.CallUpsellDelay < 0 {
		errs = append(errs, fmt.Errorf("command.call_upsell_delay %v must not be negative", cfg.Command.CallUpsellDelay))
	}

	// Telephony endpoint sanity
	if ep := cfg.Telephony.Endpoint; ep != "" {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			errs = append(errs, fmt.Errorf("telephony.endpoint %q must be an http(s) URL", ep))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
