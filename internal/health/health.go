// Package health serves the liveness and readiness probes.
//
//   - /healthz reports liveness: a process that can answer HTTP is alive.
//   - /readyz reports readiness: 200 only when every registered [Checker]
//     passes. The server registers one checker per configured backing
//     service, such as "contacts" for the Postgres directory. Whether a
//     voice session is open never affects readiness.
//
// Bodies are JSON with a top-level "status" ("ok" or "fail") and a
// "checks" map keyed by checker name.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness check. A backing service that
// cannot answer within this window counts as down.
const probeTimeout = 5 * time.Second

// Checker probes one backing service.
type Checker struct {
	// Name keys this check's entry in the response, e.g. "contacts".
	Name string

	// Check returns nil when the service is healthy. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

// run evaluates the check under the probe timeout and returns its response
// entry and pass/fail.
func (c Checker) run(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := c.Check(ctx); err != nil {
		return "fail: " + err.Error(), false
	}
	return "ok", true
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction time, so it is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers, in order, on
// each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 200 only when every registered checker passes, 503 with
// the failing entries otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		entry, ok := c.run(r.Context())
		res.Checks[c.Name] = entry
		if !ok {
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
