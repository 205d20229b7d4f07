package command

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/asynclabs/syncd/internal/contacts"
)

// Presenter receives user-facing presentation signals from command side
// effects. The HTTP layer or an embedding UI implements it; nothing in the
// dispatcher renders.
type Presenter interface {
	// ShowCalling announces that a call to contact is being placed.
	ShowCalling(contact string)
	// ShowCallConnected announces a connected call. simulated reports
	// whether a real telephony leg exists.
	ShowCallConnected(contact string, simulated bool)
	// EndCall dismisses the call presentation.
	EndCall()
	// ShowPremiumUpsell announces that feature requires the premium plan.
	ShowPremiumUpsell(feature string)
	// NavigateToContacts steers the user to the contact management screen,
	// used when a spoken name resolves to nothing.
	NavigateToContacts()
}

// URLOpener opens deep links on the user's device.
type URLOpener interface {
	Open(ctx context.Context, url string) error
}

// Telephony dial modes.
const (
	ModeReal       = "real"
	ModeSimulation = "simulation"
)

// DialResult is the outcome of a telephony dispatch.
type DialResult struct {
	Mode string
	SID  string
}

// Dialer places outbound calls through an external telephony collaborator.
type Dialer interface {
	Dial(ctx context.Context, to, message string) (DialResult, error)
}

// PremiumCallFeature names the autonomous-call feature in upsell
// presentations.
const PremiumCallFeature = "Ligação Autônoma IA"

// Delays configures the pacing of command side effects.
type Delays struct {
	// WhatsApp holds the deep-link open back so the spoken confirmation
	// is not cut off by an app switch.
	WhatsApp time.Duration
	// CallConnect is the time between the calling and connected
	// presentations in the simulated progression.
	CallConnect time.Duration
	// CallUpsell is the time the simulated connected state stays up
	// before the premium upsell replaces it.
	CallUpsell time.Duration
}

// DefaultDelays returns the stock pacing.
func DefaultDelays() Delays {
	return Delays{
		WhatsApp:    2 * time.Second,
		CallConnect: 2500 * time.Millisecond,
		CallUpsell:  3 * time.Second,
	}
}

// Dispatcher executes extracted Actions. All side effects run on their own
// goroutines so a dispatch never blocks the event loop that recognized the
// command; cancelling the dispatch context aborts pending timers.
type Dispatcher struct {
	resolver  *contacts.Resolver
	presenter Presenter
	opener    URLOpener
	dialer    Dialer // nil when no telephony collaborator is configured
	policy    NumberPolicy
	delays    Delays
	log       *slog.Logger

	onResult func(action, outcome string)

	wg sync.WaitGroup
}

// DispatcherOption is a functional option for Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDialer attaches a telephony collaborator for real call attempts.
func WithDialer(d Dialer) DispatcherOption {
	return func(dp *Dispatcher) { dp.dialer = d }
}

// WithDelays overrides the side-effect pacing.
func WithDelays(d Delays) DispatcherOption {
	return func(dp *Dispatcher) { dp.delays = d }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(dp *Dispatcher) { dp.log = l }
}

// WithResultHook registers a callback invoked once per dispatch with the
// action name and outcome label. Used for metrics.
func WithResultHook(fn func(action, outcome string)) DispatcherOption {
	return func(dp *Dispatcher) { dp.onResult = fn }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(resolver *contacts.Resolver, presenter Presenter, opener URLOpener, policy NumberPolicy, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resolver:  resolver,
		presenter: presenter,
		opener:    opener,
		policy:    policy,
		delays:    DefaultDelays(),
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch executes cmd. Unknown actions are logged and ignored. The
// returned error covers only synchronous failures such as contact lookup;
// delayed effects report through the result hook.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Action) error {
	switch cmd.Action {
	case ActionWhatsApp:
		return d.dispatchWhatsApp(ctx, cmd)
	case ActionCall:
		d.dispatchCall(ctx, cmd)
		return nil
	default:
		d.log.Warn("command: ignoring unknown action", "action", cmd.Action)
		d.result(cmd.Action, "unknown")
		return nil
	}
}

// Wait blocks until all in-flight side effects have finished. Intended for
// shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) result(action, outcome string) {
	if d.onResult != nil {
		d.onResult(action, outcome)
	}
}

func (d *Dispatcher) dispatchWhatsApp(ctx context.Context, cmd Action) error {
	contact, ok, err := d.resolver.Lookup(ctx, cmd.Contact)
	if err != nil {
		d.result(cmd.Action, "lookup_error")
		return fmt.Errorf("command: resolve %q: %w", cmd.Contact, err)
	}
	if !ok {
		d.log.Warn("command: contact not found", "contact", cmd.Contact)
		d.presenter.NavigateToContacts()
		d.result(cmd.Action, "contact_not_found")
		return nil
	}

	number := contact.WhatsApp
	if number == "" {
		number = contact.Phone
	}
	digits := d.policy.Digits(number)
	if digits == "" {
		d.log.Warn("command: contact has no usable number", "contact", contact.Name)
		d.presenter.NavigateToContacts()
		d.result(cmd.Action, "no_number")
		return nil
	}

	link := fmt.Sprintf("https://wa.me/%s?text=%s", digits, url.QueryEscape(cmd.Message))
	d.log.Info("command: opening whatsapp", "contact", contact.Name)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if !sleepCtx(ctx, d.delays.WhatsApp) {
			d.result(cmd.Action, "cancelled")
			return
		}
		if err := d.opener.Open(ctx, link); err != nil {
			d.log.Error("command: open whatsapp link", "err", err)
			d.result(cmd.Action, "open_error")
			return
		}
		d.result(cmd.Action, "opened")
	}()
	return nil
}

// dispatchCall shows the calling state immediately, attempts a real
// telephony leg when a dialer exists, and otherwise runs the simulated
// progression ending in the premium upsell. A missing or non-real telephony
// result never degrades to a silent no-op.
func (d *Dispatcher) dispatchCall(ctx context.Context, cmd Action) {
	d.presenter.ShowCalling(cmd.Contact)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if d.dialer != nil {
			if res, err := d.tryRealCall(ctx, cmd); err == nil && res.Mode == ModeReal {
				d.presenter.ShowCallConnected(cmd.Contact, false)
				d.result(cmd.Action, "real")
				return
			}
		}

		if !sleepCtx(ctx, d.delays.CallConnect) {
			d.presenter.EndCall()
			d.result(cmd.Action, "cancelled")
			return
		}
		d.presenter.ShowCallConnected(cmd.Contact, true)

		if !sleepCtx(ctx, d.delays.CallUpsell) {
			d.presenter.EndCall()
			d.result(cmd.Action, "cancelled")
			return
		}
		d.presenter.EndCall()
		d.presenter.ShowPremiumUpsell(PremiumCallFeature)
		d.result(cmd.Action, "simulated")
	}()
}

func (d *Dispatcher) tryRealCall(ctx context.Context, cmd Action) (DialResult, error) {
	contact, ok, err := d.resolver.Lookup(ctx, cmd.Contact)
	if err != nil || !ok {
		return DialResult{}, fmt.Errorf("command: no dialable contact for %q", cmd.Contact)
	}
	to := d.policy.Normalize(contact.Phone)
	if to == "" {
		return DialResult{}, fmt.Errorf("command: contact %q has no phone", contact.Name)
	}

	res, err := d.dialer.Dial(ctx, to, cmd.Context)
	if err != nil {
		d.log.Warn("command: telephony dispatch failed, falling back to simulation", "err", err)
		return DialResult{}, err
	}
	return res, nil
}

// sleepCtx waits for Delay or context cancellation. It reports whether the
// full delay elapsed.
func sleepCtx(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
