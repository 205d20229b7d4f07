// Package session owns the voice session lifecycle: the application and
// voice state machines, the orchestrator that starts and stops sessions, and
// the teardown context that releases every handle a session acquired.
package session

// AppState is the coarse application state. The assistant is either asleep
// (no session, no audio) or active (one live session open).
type AppState string

const (
	AppSleeping AppState = "sleeping"
	AppActive   AppState = "active"
)

// VoiceState is the fine-grained conversational state surfaced to UI layers.
type VoiceState string

const (
	VoiceIdle      VoiceState = "idle"
	VoiceListening VoiceState = "listening"
	VoiceSpeaking  VoiceState = "speaking"
	// VoiceThinking covers the connect window: a session has been requested
	// but the endpoint has not acknowledged setup yet.
	VoiceThinking VoiceState = "thinking"
)

// Observer receives state transitions and user-visible errors. Callbacks are
// invoked outside the orchestrator's lock and may be nil.
type Observer struct {
	OnAppState   func(AppState)
	OnVoiceState func(VoiceState)
	OnError      func(error)
}
