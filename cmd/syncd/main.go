// Command syncd is the main entry point for the syncd voice assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynclabs/syncd/internal/app"
	"github.com/asynclabs/syncd/internal/config"
	"github.com/asynclabs/syncd/internal/observe"
	"github.com/asynclabs/syncd/internal/resilience"
	"github.com/asynclabs/syncd/pkg/provider/chat"
	oaichat "github.com/asynclabs/syncd/pkg/provider/chat/openai"
	"github.com/asynclabs/syncd/pkg/provider/live"
	geminilive "github.com/asynclabs/syncd/pkg/provider/live/gemini"
)

// geminiOpenAIBaseURL is Gemini's OpenAI-compatible completion endpoint,
// used when the chat provider is "gemini".
const geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "syncd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "syncd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("syncd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "syncd",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Config file watcher ───────────────────────────────────────────────────
	// Hot-reloads the log level; other safe-to-reload fields are surfaced so
	// the operator knows a restart is needed.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.PersonaChanged || d.DialingChanged || d.DelaysChanged {
			slog.Warn("persona/dialing/command config changed; restart to apply")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLive("gemini", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	reg.RegisterChat("openai", func(entry config.ProviderEntry) (chat.Provider, error) {
		var opts []oaichat.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaichat.WithBaseURL(entry.BaseURL))
		}
		return oaichat.New(entry.APIKey, entry.Model, opts...)
	})

	// Gemini's completion API speaks the OpenAI wire format; the same client
	// serves both with a different base URL.
	reg.RegisterChat("gemini", func(entry config.ProviderEntry) (chat.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = geminiOpenAIBaseURL
		}
		return oaichat.New(entry.APIKey, entry.Model, oaichat.WithBaseURL(baseURL))
	})
}

// buildProviders instantiates the configured live and chat providers. The
// chat provider is wrapped in a failover group when fallbacks are listed.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Live.Name; name != "" {
		p, err := reg.CreateLive(cfg.Live)
		if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", name, err)
		}
		ps.Live = p
		slog.Info("provider created", "kind", "live", "name", name, "model", cfg.Live.Model)
	}

	if name := cfg.Chat.Name; name != "" {
		primary, err := reg.CreateChat(cfg.Chat.ProviderEntry)
		if err != nil {
			return nil, fmt.Errorf("create chat provider %q: %w", name, err)
		}
		ps.Chat = primary
		slog.Info("provider created", "kind", "chat", "name", name, "model", cfg.Chat.Model)

		if len(cfg.Chat.Fallbacks) > 0 {
			group := resilience.NewChatFallback(primary, name, resilience.FallbackConfig{
				Breaker: resilience.BreakerConfig{Name: "chat"},
			})
			for _, fb := range cfg.Chat.Fallbacks {
				p, err := reg.CreateChat(fb)
				if err != nil {
					return nil, fmt.Errorf("create chat fallback %q: %w", fb.Name, err)
				}
				group.AddFallback(fb.Name, p)
				slog.Info("provider created", "kind", "chat-fallback", "name", fb.Name, "model", fb.Model)
			}
			ps.Chat = group
		}
	}

	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
