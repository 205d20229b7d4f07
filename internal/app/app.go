// Package app wires all syncd subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithDirectory,
// WithInputDevice, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/asynclabs/syncd/internal/command"
	"github.com/asynclabs/syncd/internal/config"
	"github.com/asynclabs/syncd/internal/contacts"
	"github.com/asynclabs/syncd/internal/health"
	"github.com/asynclabs/syncd/internal/httpapi"
	"github.com/asynclabs/syncd/internal/observe"
	"github.com/asynclabs/syncd/internal/session"
	"github.com/asynclabs/syncd/internal/telephony"
	"github.com/asynclabs/syncd/internal/turn"
	"github.com/asynclabs/syncd/pkg/audio"
	"github.com/asynclabs/syncd/pkg/provider/chat"
	"github.com/asynclabs/syncd/pkg/provider/live"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Live live.Provider
	Chat chat.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	directory    contacts.Directory
	resolver     *contacts.Resolver
	dispatcher   *command.Dispatcher
	orchestrator *session.Orchestrator
	server       *http.Server

	// Injection points with pipe-based defaults.
	device    audio.InputDevice
	output    audio.Output
	presenter command.Presenter
	opener    command.URLOpener
	observer  session.Observer

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDirectory injects a contact directory instead of creating one from
// config.
func WithDirectory(d contacts.Directory) Option {
	return func(a *App) { a.directory = d }
}

// WithInputDevice injects the microphone device. Defaults to a raw s16le
// stream on stdin (arecord | syncd).
func WithInputDevice(d audio.InputDevice) Option {
	return func(a *App) { a.device = d }
}

// WithOutput injects the playback backend. Defaults to a paced raw PCM
// stream on stdout (syncd | aplay).
func WithOutput(o audio.Output) Option {
	return func(a *App) { a.output = o }
}

// WithPresenter injects the UI presentation sink for command side effects.
func WithPresenter(p command.Presenter) Option {
	return func(a *App) { a.presenter = p }
}

// WithURLOpener injects the deep-link opener.
func WithURLOpener(o command.URLOpener) Option {
	return func(a *App) { a.opener = o }
}

// WithSessionObserver injects the state observer for UI layers.
func WithSessionObserver(obs session.Observer) Option {
	return func(a *App) { a.observer = obs }
}

// WithMetrics injects a metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.device == nil {
		a.device = &audio.ReaderDevice{R: os.Stdin}
	}
	if a.output == nil {
		a.output = audio.NewStreamOutput(os.Stdout)
	}
	if a.presenter == nil {
		a.presenter = logPresenter{}
	}
	if a.opener == nil {
		a.opener = logOpener{}
	}

	if err := a.initContacts(ctx); err != nil {
		return nil, fmt.Errorf("app: init contacts: %w", err)
	}
	if err := a.initDispatch(); err != nil {
		return nil, fmt.Errorf("app: init dispatch: %w", err)
	}
	a.initOrchestrator()
	a.initServer()

	return a, nil
}

// initContacts sets up the contact directory: PostgreSQL when a DSN is
// configured, the in-memory seed directory otherwise.
func (a *App) initContacts(ctx context.Context) error {
	if a.directory == nil {
		dsn := a.cfg.Contacts.PostgresDSN
		if dsn == "" {
			a.directory = contacts.NewMemoryDirectory(contacts.DefaultContacts())
			slog.Info("contact directory: in-memory seed")
		} else {
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			dir := contacts.NewPostgresDirectory(pool)
			if err := dir.Migrate(ctx); err != nil {
				pool.Close()
				return fmt.Errorf("migrate contacts schema: %w", err)
			}
			if err := dir.Seed(ctx, contacts.DefaultContacts()); err != nil {
				pool.Close()
				return fmt.Errorf("seed contacts: %w", err)
			}
			a.directory = dir
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
			slog.Info("contact directory: postgres")
		}
	}

	a.resolver = contacts.NewResolver(a.directory,
		contacts.WithFuzzyFallback(a.cfg.Dialing.FuzzyLookup))
	return nil
}

// initDispatch builds the command dispatcher, attaching the telephony client
// when an endpoint is configured.
func (a *App) initDispatch() error {
	dispOpts := []command.DispatcherOption{
		command.WithDelays(a.delays()),
		command.WithResultHook(func(action, outcome string) {
			a.metrics.RecordCommandDispatch(context.Background(), action, outcome)
		}),
	}

	if ep := a.cfg.Telephony.Endpoint; ep != "" {
		client, err := telephony.NewClient(ep)
		if err != nil {
			return fmt.Errorf("telephony client: %w", err)
		}
		dispOpts = append(dispOpts, command.WithDialer(meteredDialer{
			next:    client,
			metrics: a.metrics,
		}))
		slog.Info("telephony endpoint configured", "endpoint", ep)
	}

	a.dispatcher = command.NewDispatcher(a.resolver, a.presenter, a.opener,
		command.NumberPolicy{DefaultCountryCode: a.cfg.Dialing.DefaultCountryCode},
		dispOpts...)
	return nil
}

// delays maps the config pacing onto the dispatcher's, keeping the stock
// value for any field left at zero.
func (a *App) delays() command.Delays {
	d := command.DefaultDelays()
	if v := a.cfg.Command.WhatsAppDelay; v > 0 {
		d.WhatsApp = v
	}
	if v := a.cfg.Command.CallConnectDelay; v > 0 {
		d.CallConnect = v
	}
	if v := a.cfg.Command.CallUpsellDelay; v > 0 {
		d.CallUpsell = v
	}
	return d
}

// initOrchestrator builds the voice session orchestrator when a live
// provider is configured.
func (a *App) initOrchestrator() {
	if a.providers.Live == nil {
		slog.Warn("no live provider configured; voice sessions disabled")
		return
	}

	obs := a.observer
	userAppState := obs.OnAppState
	var gaugeMu sync.Mutex
	var sessionUp bool
	obs.OnAppState = func(s session.AppState) {
		active := s == session.AppActive
		gaugeMu.Lock()
		changed := active != sessionUp
		sessionUp = active
		gaugeMu.Unlock()
		if changed {
			if active {
				a.metrics.ActiveSessions.Add(context.Background(), 1)
			} else {
				a.metrics.ActiveSessions.Add(context.Background(), -1)
			}
		}
		if userAppState != nil {
			userAppState(s)
		}
	}

	a.orchestrator = session.NewOrchestrator(
		a.providers.Live, a.device, a.output, a.dispatcher,
		session.Config{
			Instructions: a.cfg.Persona.Instruction(),
			Voice:        a.cfg.Live.Voice,
		},
		session.WithObserver(obs),
		session.WithHooks(session.Hooks{
			OnDroppedFrame: func() {
				a.metrics.DroppedFrames.Add(context.Background(), 1)
			},
			OnTurn: func(t turn.Turn) {
				a.metrics.RecordTurn(context.Background(), t.Interrupted)
			},
			OnSessionError: func(stage string) {
				a.metrics.RecordSessionError(context.Background(), stage)
			},
		}),
	)
}

// initServer assembles the HTTP API and the http.Server around it.
func (a *App) initServer() {
	srvOpts := []httpapi.ServerOption{
		httpapi.WithPersona(a.cfg.Persona.Instruction()),
		httpapi.WithMetrics(a.metrics),
		httpapi.WithDispatcher(a.dispatcher),
		httpapi.WithHealth(health.New(a.readinessCheckers()...)),
	}
	if a.providers.Chat != nil {
		srvOpts = append(srvOpts, httpapi.WithChatProvider(a.providers.Chat))
	}
	if a.orchestrator != nil {
		srvOpts = append(srvOpts, httpapi.WithSessionController(a.orchestrator))
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(srvOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// readinessCheckers builds the health checks for configured dependencies.
func (a *App) readinessCheckers() []health.Checker {
	var checks []health.Checker
	if dir, ok := a.directory.(*contacts.PostgresDirectory); ok {
		checks = append(checks, health.Checker{
			Name: "contacts",
			Check: func(ctx context.Context) error {
				_, err := dir.List(ctx)
				return err
			},
		})
	}
	return checks
}

// Run serves HTTP until ctx is cancelled, then drains in-flight work.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.server.Addr)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown tears everything down in order: the voice session first, then
// pending command side effects, then subsystem closers. It respects the
// context deadline: remaining closers are skipped when ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.orchestrator != nil {
			a.orchestrator.Stop()
		}
		a.dispatcher.Wait()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Orchestrator returns the voice session orchestrator, or nil when no live
// provider is configured.
func (a *App) Orchestrator() *session.Orchestrator {
	return a.orchestrator
}

// meteredDialer wraps a dialer with the telephony dial counter.
type meteredDialer struct {
	next    command.Dialer
	metrics *observe.Metrics
}

func (m meteredDialer) Dial(ctx context.Context, to, message string) (command.DialResult, error) {
	res, err := m.next.Dial(ctx, to, message)
	if err == nil {
		m.metrics.RecordTelephonyDial(ctx, res.Mode)
	}
	return res, err
}

// logPresenter is the default presentation sink for headless deployments:
// every signal becomes a structured log line a UI process can tail.
type logPresenter struct{}

func (logPresenter) ShowCalling(contact string) {
	slog.Info("presentation: calling", "contact", contact)
}

func (logPresenter) ShowCallConnected(contact string, simulated bool) {
	slog.Info("presentation: call connected", "contact", contact, "simulated", simulated)
}

func (logPresenter) EndCall() {
	slog.Info("presentation: call ended")
}

func (logPresenter) ShowPremiumUpsell(feature string) {
	slog.Info("presentation: premium upsell", "feature", feature)
}

func (logPresenter) NavigateToContacts() {
	slog.Info("presentation: navigate to contacts")
}

// logOpener logs deep links instead of opening them. Deployments with a
// device surface inject a real opener.
type logOpener struct{}

func (logOpener) Open(_ context.Context, url string) error {
	slog.Info("open link", "url", url)
	return nil
}
