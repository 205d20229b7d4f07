// Package turn reconstructs discrete conversational turns from the stream
// of partial-transcript events a live session produces.
package turn

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/asynclabs/syncd/internal/command"
)

// Turn is one completed conversational exchange.
type Turn struct {
	ID        string
	UserText  string
	ModelText string
	// Interrupted marks a turn that was cut short by barge-in. Interrupted
	// turns carry whatever text had accumulated and never yield a command.
	Interrupted bool
}

// Sink receives aggregator outputs.
type Sink struct {
	// OnListening fires on each user transcript delta.
	OnListening func()
	// OnSpeaking fires on each model transcript delta.
	OnSpeaking func()
	// OnTurn fires once per flushed turn, completed or interrupted.
	OnTurn func(Turn)
	// OnInterrupt fires on barge-in, before the flush. Callers hard-stop
	// playback here.
	OnInterrupt func()
}

// Dispatcher dispatches extracted commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Action) error
}

// Aggregator buffers transcript deltas and flushes them on turn boundaries.
// The extraction rule: a completed turn gets exactly one command-extraction
// attempt against the model buffer; an interrupted turn gets none.
type Aggregator struct {
	sink       Sink
	dispatcher Dispatcher
	log        *slog.Logger

	mu    sync.Mutex
	user  strings.Builder
	model strings.Builder
}

// Option is a functional option for Aggregator.
type Option func(*Aggregator)

// WithLogger sets the aggregator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// NewAggregator creates an Aggregator. dispatcher may be nil, in which case
// extracted commands are logged and dropped.
func NewAggregator(sink Sink, dispatcher Dispatcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		sink:       sink,
		dispatcher: dispatcher,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// UserDelta appends a user transcript fragment.
func (a *Aggregator) UserDelta(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	a.user.WriteString(text)
	a.mu.Unlock()
	if a.sink.OnListening != nil {
		a.sink.OnListening()
	}
}

// ModelDelta appends a model transcript fragment.
func (a *Aggregator) ModelDelta(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	a.model.WriteString(text)
	a.mu.Unlock()
	if a.sink.OnSpeaking != nil {
		a.sink.OnSpeaking()
	}
}

// Complete closes the current turn: runs the single command-extraction
// attempt against the model buffer, dispatches any command, then flushes
// both buffers.
func (a *Aggregator) Complete(ctx context.Context) {
	userText, modelText := a.flush()

	if cmd, ok := command.Extract(modelText); ok {
		a.log.Info("turn: command recognized", "action", cmd.Action, "contact", cmd.Contact)
		if a.dispatcher != nil {
			if err := a.dispatcher.Dispatch(ctx, cmd); err != nil {
				a.log.Error("turn: command dispatch", "err", err)
			}
		}
	}

	if a.sink.OnTurn != nil {
		a.sink.OnTurn(Turn{
			ID:        uuid.NewString(),
			UserText:  userText,
			ModelText: modelText,
		})
	}
}

// Interrupt handles barge-in: playback is hard-stopped via the sink and the
// buffers are flushed without any extraction attempt.
func (a *Aggregator) Interrupt() {
	if a.sink.OnInterrupt != nil {
		a.sink.OnInterrupt()
	}

	userText, modelText := a.flush()
	if a.sink.OnTurn != nil {
		a.sink.OnTurn(Turn{
			ID:          uuid.NewString(),
			UserText:    userText,
			ModelText:   modelText,
			Interrupted: true,
		})
	}
}

// Reset clears both buffers without emitting a turn. Used on session
// teardown.
func (a *Aggregator) Reset() {
	a.flush()
}

func (a *Aggregator) flush() (userText, modelText string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	userText = a.user.String()
	modelText = a.model.String()
	a.user.Reset()
	a.model.Reset()
	return userText, modelText
}
