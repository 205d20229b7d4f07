package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asynclabs/syncd/pkg/provider/chat"
	"github.com/asynclabs/syncd/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	live map[string]func(ProviderEntry) (live.Provider, error)
	chat map[string]func(ProviderEntry) (chat.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live: make(map[string]func(ProviderEntry) (live.Provider, error)),
		chat: make(map[string]func(ProviderEntry) (chat.Provider, error)),
	}
}

// RegisterLive registers a live voice provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterChat registers a chat provider factory under name.
func (r *Registry) RegisterChat(name string, factory func(ProviderEntry) (chat.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[name] = factory
}

// CreateLive instantiates a live provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateChat instantiates a chat provider using the factory registered under entry.Name.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Provider, error) {
	r.mu.RLock()
	factory, ok := r.chat[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: chat/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
