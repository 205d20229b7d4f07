package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/asynclabs/syncd/internal/turn"
	"github.com/asynclabs/syncd/pkg/audio"
	"github.com/asynclabs/syncd/pkg/provider/live"
)

// ErrSessionActive is returned by Start when a session is already open.
// Use [Orchestrator.Toggle] for the stop-then-start behaviour.
var ErrSessionActive = errors.New("session: already active")

// Hooks are optional instrumentation points. All fields may be nil.
type Hooks struct {
	// OnDroppedFrame fires once per capture frame dropped because the
	// transport was not ready.
	OnDroppedFrame func()

	// OnTurn fires once per flushed turn.
	OnTurn func(t turn.Turn)

	// OnSessionError fires with a short stage label when a session fails
	// ("connect", "capture", "transport").
	OnSessionError func(stage string)
}

// Config carries the per-session parameters the orchestrator forwards to the
// live provider and the capture pipeline.
type Config struct {
	// Instructions is the system prompt sent at connect time.
	Instructions string

	// Voice optionally selects a prebuilt synthesis voice.
	Voice string

	// Capture holds the microphone constraints. Zero value selects
	// [audio.DefaultCaptureConfig].
	Capture audio.CaptureConfig
}

// Orchestrator drives the voice session state machine. It owns at most one
// [VoiceSessionContext] at a time; Start, Stop, and Toggle uphold the
// single-session invariant under one mutex.
type Orchestrator struct {
	provider   live.Provider
	device     audio.InputDevice
	output     audio.Output
	dispatcher turn.Dispatcher
	cfg        Config
	obs        Observer
	hooks      Hooks
	log        *slog.Logger

	mu       sync.Mutex
	app      AppState
	voice    VoiceState
	starting bool
	current  *VoiceSessionContext
}

// OrchestratorOption configures an [Orchestrator].
type OrchestratorOption func(*Orchestrator)

// WithObserver registers the UI observer.
func WithObserver(obs Observer) OrchestratorOption {
	return func(o *Orchestrator) { o.obs = obs }
}

// WithHooks registers instrumentation hooks.
func WithHooks(h Hooks) OrchestratorOption {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = l }
}

// NewOrchestrator creates an orchestrator in the sleeping state.
// dispatcher may be nil; extracted commands are then logged and dropped by
// the aggregator.
func NewOrchestrator(provider live.Provider, device audio.InputDevice, output audio.Output, dispatcher turn.Dispatcher, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	if cfg.Capture == (audio.CaptureConfig{}) {
		cfg.Capture = audio.DefaultCaptureConfig()
	}
	o := &Orchestrator{
		provider:   provider,
		device:     device,
		output:     output,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        slog.Default(),
		app:        AppSleeping,
		voice:      VoiceIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current application and voice states.
func (o *Orchestrator) State() (AppState, VoiceState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.app, o.voice
}

// Toggle starts a session when sleeping and stops the running one when
// active.
func (o *Orchestrator) Toggle(ctx context.Context) error {
	o.mu.Lock()
	active := o.current != nil || o.starting
	o.mu.Unlock()

	if active {
		o.Stop()
		return nil
	}
	return o.Start(ctx)
}

// Start opens a new voice session: microphone stream, live connection,
// capture framer, playback scheduler, and the turn aggregation chain. Any
// failure releases what was acquired and falls back to sleeping with a
// user-visible error. Returns [ErrSessionActive] when a session is already
// open.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.current != nil || o.starting {
		o.mu.Unlock()
		return ErrSessionActive
	}
	// Claim the session slot before releasing the mutex so a concurrent
	// Start cannot slip past the nil check while this one is connecting.
	o.starting = true
	o.app = AppActive
	o.voice = VoiceThinking
	o.mu.Unlock()
	o.notifyApp(AppActive)
	o.notifyVoice(VoiceThinking)

	sess, err := o.openSession(ctx)
	if err != nil {
		o.mu.Lock()
		o.starting = false
		wasActive := o.app == AppActive
		o.app = AppSleeping
		o.voice = VoiceIdle
		o.mu.Unlock()
		if wasActive {
			o.notifyApp(AppSleeping)
			o.notifyVoice(VoiceIdle)
		}
		o.notifyError(err)
		return err
	}

	o.mu.Lock()
	o.starting = false
	if o.app != AppActive {
		// Stop raced the connect. The session was never registered, so
		// tear it down here instead of leaving a live connection behind.
		o.mu.Unlock()
		sess.Dispose()
		return nil
	}
	o.current = sess
	o.mu.Unlock()
	o.log.Info("session started")
	return nil
}

// Stop tears down the current session, if any. Safe to call when sleeping
// and safe to call concurrently with a remote close.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	sess := o.current
	o.current = nil
	wasActive := o.app == AppActive
	o.app = AppSleeping
	o.voice = VoiceIdle
	o.mu.Unlock()

	if sess != nil {
		sess.Dispose()
		o.log.Info("session stopped")
	}
	// Observers see each transition once. A Stop while already sleeping
	// (shutdown always calls Stop) must not emit a second sleeping event,
	// or downstream gauges drift.
	if wasActive {
		o.notifyApp(AppSleeping)
		o.notifyVoice(VoiceIdle)
	}
}

// openSession acquires everything a session needs in dependency order:
// microphone first, then the live connection, then the capture framer that
// bridges the two. On any error the partial acquisitions are released before
// returning.
func (o *Orchestrator) openSession(ctx context.Context) (*VoiceSessionContext, error) {
	src, err := o.device.Open(ctx, o.cfg.Capture)
	if err != nil {
		o.sessionError("capture")
		return nil, fmt.Errorf("session: open microphone: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	scheduler := audio.NewScheduler(o.output, audio.WithStateHooks(
		func() { o.setVoice(VoiceSpeaking) },
		func() { o.setVoice(VoiceIdle) },
		o.sessionOpen,
	))
	agg := turn.NewAggregator(turn.Sink{
		OnListening: func() { o.setVoice(VoiceListening) },
		OnSpeaking:  func() { o.setVoice(VoiceSpeaking) },
		OnInterrupt: scheduler.StopAll,
		OnTurn: func(t turn.Turn) {
			if o.hooks.OnTurn != nil {
				o.hooks.OnTurn(t)
			}
		},
	}, o.dispatcher, turn.WithLogger(o.log))

	sess := &VoiceSessionContext{
		scheduler: scheduler,
		agg:       agg,
		cancel:    cancel,
		log:       o.log,
	}

	handle, err := o.provider.Connect(ctx, live.SessionConfig{
		Instructions: o.cfg.Instructions,
		Voice:        o.cfg.Voice,
	}, live.Callbacks{
		OnOpen: func() { o.setVoice(VoiceIdle) },
		OnMessage: func(ev live.ServerEvent) {
			o.routeEvent(sessCtx, sess, ev)
		},
		OnError: func(err error) {
			o.log.Error("session transport error", "err", err)
			o.sessionError("transport")
			o.notifyError(err)
		},
		OnClose: func() {
			// Remote close tears the session down. Runs off the receive
			// goroutine so Dispose never waits on itself.
			go o.stopIfCurrent(sess)
		},
	})
	if err != nil {
		cancel()
		_ = src.Close()
		o.sessionError("connect")
		return nil, fmt.Errorf("session: connect: %w", err)
	}

	sess.handle = handle
	sess.capture = audio.StartCapture(src, handle, o.cfg.Capture.FrameSize,
		audio.WithDropHook(o.hooks.OnDroppedFrame))
	return sess, nil
}

// routeEvent fans one decoded server event into the aggregation and playback
// chains. Event field order mirrors the wire order: transcripts, audio, then
// control flags.
func (o *Orchestrator) routeEvent(ctx context.Context, sess *VoiceSessionContext, ev live.ServerEvent) {
	if ev.InputTranscription != "" {
		sess.agg.UserDelta(ev.InputTranscription)
	}
	if ev.OutputTranscription != "" {
		sess.agg.ModelDelta(ev.OutputTranscription)
	}
	if len(ev.Audio) > 0 {
		buf, err := audio.DecodeSamples(ev.Audio, audio.OutputSampleRate, 1)
		if err != nil {
			o.log.Warn("session: bad audio chunk", "err", err)
		} else if err := sess.scheduler.Enqueue(buf); err != nil {
			o.log.Warn("session: enqueue playback", "err", err)
		}
	}
	if ev.Interrupted {
		sess.agg.Interrupt()
	}
	if ev.TurnComplete {
		sess.agg.Complete(ctx)
	}
}

// stopIfCurrent stops the orchestrator only if sess is still the live
// session. A stale remote-close racing a newer session must not kill it.
func (o *Orchestrator) stopIfCurrent(sess *VoiceSessionContext) {
	o.mu.Lock()
	isCurrent := o.current == sess
	o.mu.Unlock()
	if isCurrent {
		o.Stop()
	} else {
		sess.Dispose()
	}
}

// sessionOpen reports whether a session is currently open. Gates the
// scheduler's idle transition so draining playback mid-session does not
// flicker the state.
func (o *Orchestrator) sessionOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

func (o *Orchestrator) setVoice(v VoiceState) {
	o.mu.Lock()
	if o.voice == v || o.app != AppActive {
		o.mu.Unlock()
		return
	}
	o.voice = v
	o.mu.Unlock()
	o.notifyVoice(v)
}

func (o *Orchestrator) sessionError(stage string) {
	if o.hooks.OnSessionError != nil {
		o.hooks.OnSessionError(stage)
	}
}

func (o *Orchestrator) notifyApp(s AppState) {
	if o.obs.OnAppState != nil {
		o.obs.OnAppState(s)
	}
}

func (o *Orchestrator) notifyVoice(v VoiceState) {
	if o.obs.OnVoiceState != nil {
		o.obs.OnVoiceState(v)
	}
}

func (o *Orchestrator) notifyError(err error) {
	if o.obs.OnError != nil {
		o.obs.OnError(err)
	}
}

// VoiceSessionContext owns every handle one session acquired. Dispose walks
// them in fixed order: transport first (stops inbound events), then the
// capture framer and its source tracks, then playback, then the transcript
// buffers. Idempotent; transport close errors are logged and swallowed.
type VoiceSessionContext struct {
	handle    live.SessionHandle
	capture   *audio.Capture
	scheduler *audio.Scheduler
	agg       *turn.Aggregator
	cancel    context.CancelFunc
	log       *slog.Logger

	disposeOnce sync.Once
}

// Dispose releases all session resources. Safe to call more than once and
// from multiple teardown triggers (explicit stop, remote close, error path).
func (v *VoiceSessionContext) Dispose() {
	v.disposeOnce.Do(func() {
		if v.handle != nil {
			if err := v.handle.Close(); err != nil {
				v.log.Warn("session close error", "err", err)
			}
		}
		if v.capture != nil {
			_ = v.capture.Close()
		}
		v.scheduler.StopAll()
		v.agg.Reset()
		v.cancel()
	})
}
