// Package httpapi exposes the text-chat surface, the call simulation
// endpoint, session control, and the operational endpoints (health,
// metrics) over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asynclabs/syncd/internal/command"
	"github.com/asynclabs/syncd/internal/health"
	"github.com/asynclabs/syncd/internal/observe"
	"github.com/asynclabs/syncd/internal/session"
	"github.com/asynclabs/syncd/pkg/provider/chat"
)

// Dispatcher dispatches action commands extracted from chat replies.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Action) error
}

// SessionController is the subset of the orchestrator the API needs.
type SessionController interface {
	Toggle(ctx context.Context) error
	State() (session.AppState, session.VoiceState)
}

// Server routes the public API. Construct with [NewServer], mount via
// [Server.Handler].
type Server struct {
	chat       chat.Provider
	dispatcher Dispatcher
	sessions   SessionController
	persona    string
	metrics    *observe.Metrics
	health     *health.Handler
	log        *slog.Logger
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithChatProvider wires the text-chat backend. Without one, POST /api/chat
// answers 503.
func WithChatProvider(p chat.Provider) ServerOption {
	return func(s *Server) { s.chat = p }
}

// WithDispatcher wires command dispatch for chat replies.
func WithDispatcher(d Dispatcher) ServerOption {
	return func(s *Server) { s.dispatcher = d }
}

// WithSessionController wires the voice session toggle endpoint.
func WithSessionController(c SessionController) ServerOption {
	return func(s *Server) { s.sessions = c }
}

// WithPersona sets the system instruction used for chat completions.
func WithPersona(instruction string) ServerOption {
	return func(s *Server) { s.persona = instruction }
}

// WithHealth sets the health handler. Defaults to one with no readiness
// checkers.
func WithHealth(h *health.Handler) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance used by the middleware and the chat
// latency histogram.
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer creates a Server with the given options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		log: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the fully routed handler: API endpoints wrapped in the
// observability middleware, plus health and Prometheus scrape endpoints.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", s.handleChat)
	api.HandleFunc("POST /api/call", s.handleCall)
	api.HandleFunc("POST /api/session/toggle", s.handleSessionToggle)
	api.HandleFunc("GET /api/session", s.handleSessionState)

	root := http.NewServeMux()
	root.Handle("/api/", observe.Middleware(s.metrics)(api))
	root.Handle("/metrics", promhttp.Handler())
	s.health.Register(root)
	return root
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Text string `json:"text"`
}

// handleChat runs one text completion with the configured persona, extracts
// and dispatches an embedded action command, and returns the reply with the
// fenced block stripped. An empty remainder yields an empty text field: the
// command was the whole reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat backend not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	start := time.Now()
	resp, err := s.chat.Complete(r.Context(), chat.Request{
		SystemPrompt: s.persona,
		Message:      req.Message,
	})
	s.metrics.ChatDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error("chat completion failed", "err", err)
		writeError(w, http.StatusBadGateway, "chat backend error")
		return
	}

	if cmd, ok := command.Extract(resp.Text); ok && s.dispatcher != nil {
		// The dispatcher's side effects outlive this request: net/http
		// cancels r.Context() the moment the handler returns, which would
		// abort the delayed deep-link open and the call progression.
		if err := s.dispatcher.Dispatch(context.WithoutCancel(r.Context()), cmd); err != nil {
			s.log.Error("chat command dispatch", "err", err)
		}
	}

	writeJSON(w, http.StatusOK, chatResponse{Text: command.Strip(resp.Text)})
}

type callRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type callResponse struct {
	Mode string `json:"mode"`
	SID  string `json:"sid,omitempty"`
}

// handleCall is the built-in simulation implementation of the telephony
// contract. Deployments with a real upstream point telephony.endpoint at it
// instead; the request and response shapes are identical.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	sid := "SIM-" + uuid.NewString()
	s.metrics.RecordTelephonyDial(r.Context(), command.ModeSimulation)
	s.log.Info("simulated call", "to", req.To, "sid", sid)
	writeJSON(w, http.StatusOK, callResponse{Mode: command.ModeSimulation, SID: sid})
}

type sessionStateResponse struct {
	App   session.AppState   `json:"app"`
	Voice session.VoiceState `json:"voice"`
}

func (s *Server) handleSessionToggle(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "voice sessions not configured")
		return
	}
	if err := s.sessions.Toggle(r.Context()); err != nil {
		s.log.Error("session toggle failed", "err", err)
		writeError(w, http.StatusBadGateway, "session toggle failed")
		return
	}
	app, voice := s.sessions.State()
	writeJSON(w, http.StatusOK, sessionStateResponse{App: app, Voice: voice})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "voice sessions not configured")
		return
	}
	app, voice := s.sessions.State()
	writeJSON(w, http.StatusOK, sessionStateResponse{App: app, Voice: voice})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
