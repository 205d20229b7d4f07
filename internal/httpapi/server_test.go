package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asynclabs/syncd/internal/command"
	"github.com/asynclabs/syncd/internal/contacts"
	"github.com/asynclabs/syncd/internal/httpapi"
	"github.com/asynclabs/syncd/internal/session"
	"github.com/asynclabs/syncd/pkg/provider/chat"
)

// stubChat returns a canned reply or a canned error.
type stubChat struct {
	reply string
	err   error

	mu   sync.Mutex
	last chat.Request
}

func (s *stubChat) Complete(_ context.Context, req chat.Request) (*chat.Response, error) {
	s.mu.Lock()
	s.last = req
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &chat.Response{Text: s.reply}, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	cmds []command.Action
}

func (d *recordingDispatcher) Dispatch(_ context.Context, cmd command.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
	return nil
}

type fakeController struct {
	mu     sync.Mutex
	active bool
	err    error
}

func (c *fakeController) Toggle(_ context.Context) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.active = !c.active
	c.mu.Unlock()
	return nil
}

func (c *fakeController) State() (session.AppState, session.VoiceState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return session.AppActive, session.VoiceIdle
	}
	return session.AppSleeping, session.VoiceIdle
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestChat_RoundTripWithCommand(t *testing.T) {
	t.Parallel()
	backend := &stubChat{reply: "Ok! Vou mandar.\n```json\n{\"action\": \"whatsapp\", \"contact\": \"Cris\", \"message\": \"oi\"}\n```"}
	disp := &recordingDispatcher{}
	srv := httpapi.NewServer(
		httpapi.WithChatProvider(backend),
		httpapi.WithDispatcher(disp),
		httpapi.WithPersona("You are a test assistant."),
	)
	h := srv.Handler()

	rec := postJSON(t, h, "/api/chat", `{"message": "manda oi pra Cris"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}

	resp := decodeBody[map[string]string](t, rec)
	if resp["text"] != "Ok! Vou mandar." {
		t.Errorf("text = %q, want fence stripped", resp["text"])
	}

	backend.mu.Lock()
	if backend.last.SystemPrompt != "You are a test assistant." {
		t.Errorf("system prompt = %q", backend.last.SystemPrompt)
	}
	if backend.last.Message != "manda oi pra Cris" {
		t.Errorf("message = %q", backend.last.Message)
	}
	backend.mu.Unlock()

	disp.mu.Lock()
	defer disp.mu.Unlock()
	if len(disp.cmds) != 1 {
		t.Fatalf("dispatched %d commands, want 1", len(disp.cmds))
	}
	if disp.cmds[0].Action != command.ActionWhatsApp || disp.cmds[0].Contact != "Cris" {
		t.Errorf("dispatched %+v", disp.cmds[0])
	}
}

// nopPresenter absorbs presentation signals.
type nopPresenter struct{}

func (nopPresenter) ShowCalling(string)             {}
func (nopPresenter) ShowCallConnected(string, bool) {}
func (nopPresenter) EndCall()                       {}
func (nopPresenter) ShowPremiumUpsell(string)       {}
func (nopPresenter) NavigateToContacts()            {}

type recordingOpener struct {
	mu   sync.Mutex
	urls []string
}

func (o *recordingOpener) Open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

func (o *recordingOpener) opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

func TestChat_CommandDispatchOutlivesRequest(t *testing.T) {
	t.Parallel()
	backend := &stubChat{reply: "Ok! Vou mandar.\n```json\n{\"action\": \"whatsapp\", \"contact\": \"Cris\", \"message\": \"oi\"}\n```"}

	// Real dispatcher: the deep-link open fires on a delayed goroutine,
	// after net/http has already cancelled the request context.
	opener := &recordingOpener{}
	resolver := contacts.NewResolver(contacts.NewMemoryDirectory(contacts.DefaultContacts()))
	disp := command.NewDispatcher(resolver, nopPresenter{}, opener,
		command.NumberPolicy{DefaultCountryCode: "55"},
		command.WithDelays(command.Delays{
			WhatsApp:    10 * time.Millisecond,
			CallConnect: time.Millisecond,
			CallUpsell:  time.Millisecond,
		}))

	srv := httpapi.NewServer(httpapi.WithChatProvider(backend), httpapi.WithDispatcher(disp))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message": "manda oi pra Cris"}`))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	disp.Wait()
	urls := opener.opened()
	if len(urls) != 1 {
		t.Fatalf("opened %d links after the request finished, want 1", len(urls))
	}
	if !strings.Contains(urls[0], "wa.me/") {
		t.Errorf("opened %q, want a wa.me link", urls[0])
	}
}

func TestChat_CommandOnlyReplyYieldsEmptyText(t *testing.T) {
	t.Parallel()
	backend := &stubChat{reply: "```json\n{\"action\": \"call\", \"contact\": \"Filho\"}\n```"}
	disp := &recordingDispatcher{}
	srv := httpapi.NewServer(httpapi.WithChatProvider(backend), httpapi.WithDispatcher(disp))

	rec := postJSON(t, srv.Handler(), "/api/chat", `{"message": "liga pro Filho"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[map[string]string](t, rec)
	if resp["text"] != "" {
		t.Errorf("text = %q, want empty", resp["text"])
	}
}

func TestChat_Validation(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer(httpapi.WithChatProvider(&stubChat{reply: "hi"}))
	h := srv.Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty message", `{"message": "  "}`, http.StatusBadRequest},
		{"invalid json", `{"message": `, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/chat", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestChat_NoBackend(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer()
	rec := postJSON(t, srv.Handler(), "/api/chat", `{"message": "hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestChat_BackendError(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer(httpapi.WithChatProvider(&stubChat{err: errors.New("rate limited")}))
	rec := postJSON(t, srv.Handler(), "/api/chat", `{"message": "hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestCall_Simulation(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer()
	rec := postJSON(t, srv.Handler(), "/api/call", `{"to": "+5511999999999", "message": "oi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[map[string]string](t, rec)
	if resp["mode"] != "simulation" {
		t.Errorf("mode = %q, want simulation", resp["mode"])
	}
	if !strings.HasPrefix(resp["sid"], "SIM-") {
		t.Errorf("sid = %q, want SIM- prefix", resp["sid"])
	}
}

func TestCall_RequiresTo(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer()
	rec := postJSON(t, srv.Handler(), "/api/call", `{"message": "oi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSessionToggleAndState(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{}
	srv := httpapi.NewServer(httpapi.WithSessionController(ctl))
	h := srv.Handler()

	rec := postJSON(t, h, "/api/session/toggle", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[map[string]string](t, rec)
	if resp["app"] != "active" {
		t.Errorf("app = %q, want active after toggle", resp["app"])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	get := httptest.NewRecorder()
	h.ServeHTTP(get, req)
	if get.Code != http.StatusOK {
		t.Fatalf("GET status = %d", get.Code)
	}
	state := decodeBody[map[string]string](t, get)
	if state["app"] != "active" {
		t.Errorf("app = %q, want active", state["app"])
	}
}

func TestSessionToggle_NotConfigured(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer()
	rec := postJSON(t, srv.Handler(), "/api/session/toggle", `{}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer()
	h := srv.Handler()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
