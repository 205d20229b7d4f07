// Package telephony dispatches outbound calls through the external call
// endpoint. The endpoint decides whether a real carrier leg exists; the
// client only reports the resulting mode back to the command dispatcher.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/asynclabs/syncd/internal/command"
	"github.com/asynclabs/syncd/internal/resilience"
)

var _ command.Dialer = (*Client)(nil)

// Client calls the telephony collaborator endpoint. A circuit breaker wraps
// every dispatch so a dead endpoint degrades to the simulated call flow
// instead of stalling each command on a fresh timeout.
type Client struct {
	endpoint string
	http     *http.Client
	breaker  *resilience.CircuitBreaker
	log      *slog.Logger
}

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// NewClient creates a Client for the given endpoint URL.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("telephony: endpoint must not be empty")
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:     "telephony",
			Cooldown: time.Minute,
			Logger:   c.log,
		})
	}
	return c, nil
}

type dialRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type dialResponse struct {
	Mode string `json:"mode"`
	SID  string `json:"sid,omitempty"`
}

// Dial implements command.Dialer. It posts {to, message} to the endpoint
// and returns the reported mode and call SID.
func (c *Client) Dial(ctx context.Context, to, message string) (command.DialResult, error) {
	var result command.DialResult
	err := c.breaker.Execute(func() error {
		res, err := c.dial(ctx, to, message)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func (c *Client) dial(ctx context.Context, to, message string) (command.DialResult, error) {
	body, err := json.Marshal(dialRequest{To: to, Message: message})
	if err != nil {
		return command.DialResult{}, fmt.Errorf("telephony: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return command.DialResult{}, fmt.Errorf("telephony: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return command.DialResult{}, fmt.Errorf("telephony: dispatch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return command.DialResult{}, fmt.Errorf("telephony: endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var dr dialResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return command.DialResult{}, fmt.Errorf("telephony: decode response: %w", err)
	}
	if dr.Mode != command.ModeReal && dr.Mode != command.ModeSimulation {
		return command.DialResult{}, fmt.Errorf("telephony: unknown mode %q", dr.Mode)
	}

	c.log.Info("telephony: call dispatched", "to", to, "mode", dr.Mode, "sid", dr.SID)
	return command.DialResult{Mode: dr.Mode, SID: dr.SID}, nil
}
