// Package live defines the Provider interface for bidirectional voice
// streaming backends.
//
// A live provider wraps a realtime conversational endpoint that accepts raw
// audio input and returns synthesised audio output plus running transcripts
// in a single stateful session. The rest of the system never reads the wire
// protocol: everything arrives through the [Callbacks] registered at connect
// time, and everything leaves through [SessionHandle.SendFrame].
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"

	"github.com/asynclabs/syncd/pkg/audio"
)

// ServerEvent is one decoded event from the streaming endpoint. Exactly the
// fields relevant to the pipeline are surfaced; provider-specific framing
// stays inside the implementation package.
type ServerEvent struct {
	// InputTranscription is a partial transcript delta of the user's speech
	// as recognised by the model. Empty when absent.
	InputTranscription string

	// OutputTranscription is a partial transcript delta of the model's
	// spoken reply. Empty when absent.
	OutputTranscription string

	// TurnComplete signals that the model finished its current turn.
	TurnComplete bool

	// Interrupted signals barge-in: the user spoke while the model's audio
	// was still playing. Buffered playback should be cancelled immediately.
	Interrupted bool

	// Audio is a decoded synthesised audio chunk (raw s16le PCM at the
	// session's output rate). Nil when the event carries no audio.
	Audio []byte
}

// Callbacks are the lifecycle hooks surfaced to the session orchestrator.
// They are invoked from the session's internal receive goroutine; handlers
// must not block and must not call SessionHandle methods that could
// deadlock against the receive loop.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(ev ServerEvent)
	OnError   func(err error)
	OnClose   func()
}

// SessionConfig is the one-time connect configuration.
type SessionConfig struct {
	// Instructions is the system-level prompt: persona, behaviour rules,
	// and the action-command protocol appendix.
	Instructions string

	// Voice optionally selects a prebuilt voice by provider-specific ID.
	Voice string
}

// SessionHandle is an open live session. SendFrame must return quickly; a
// handle that is closed or still resolving rejects the frame, which the
// capture pipeline then drops (audio is real-time, stale frames are
// worthless). Close is idempotent and must never panic out of cleanup code.
type SessionHandle interface {
	audio.FrameSink

	// Close requests graceful shutdown and releases all resources.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live streaming backend.
type Provider interface {
	// Connect establishes a new session. The callbacks become live before
	// Connect returns; OnOpen fires once the endpoint acknowledges setup.
	// The caller owns the handle and must call Close.
	Connect(ctx context.Context, cfg SessionConfig, cb Callbacks) (SessionHandle, error)
}
