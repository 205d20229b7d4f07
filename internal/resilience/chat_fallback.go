package resilience

import (
	"context"

	"github.com/asynclabs/syncd/pkg/provider/chat"
)

// ChatFallback implements [chat.Provider] with automatic failover across
// multiple completion backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback
// is tried.
type ChatFallback struct {
	group *FallbackGroup[chat.Provider]
}

var _ chat.Provider = (*ChatFallback)(nil)

// NewChatFallback creates a [ChatFallback] with primary as the preferred
// backend.
func NewChatFallback(primary chat.Provider, primaryName string, cfg FallbackConfig) *ChatFallback {
	return &ChatFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional completion backend.
func (f *ChatFallback) AddFallback(name string, provider chat.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy backend and returns its
// response.
func (f *ChatFallback) Complete(ctx context.Context, req chat.Request) (*chat.Response, error) {
	return ExecuteWithResult(f.group, func(p chat.Provider) (*chat.Response, error) {
		return p.Complete(ctx, req)
	})
}
