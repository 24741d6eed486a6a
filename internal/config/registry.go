package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pwmlive/pwmlive/internal/board"
	"github.com/pwmlive/pwmlive/pkg/audio"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: not registered")

// BackendFactory builds an audio backend. A nil backend with a nil error
// means the session runs without local devices.
type BackendFactory func(AudioConfig) (audio.Backend, error)

// PublisherFactory builds a board command publisher.
type PublisherFactory func(BoardConfig) (board.Publisher, error)

// Registry maps audio backend and board publisher names to their
// constructors. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	backends   map[string]BackendFactory
	publishers map[string]PublisherFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		backends:   make(map[string]BackendFactory),
		publishers: make(map[string]PublisherFactory),
	}
}

// RegisterBackend registers an audio backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterBackend(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// RegisterPublisher registers a board publisher factory under name.
func (r *Registry) RegisterPublisher(name string, factory PublisherFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[name] = factory
}

// CreateBackend instantiates the backend registered under cfg.Backend.
// Returns [ErrNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateBackend(cfg AudioConfig) (audio.Backend, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreatePublisher instantiates the publisher registered under cfg.Publisher.
func (r *Registry) CreatePublisher(cfg BoardConfig) (board.Publisher, error) {
	r.mu.RLock()
	factory, ok := r.publishers[cfg.Publisher]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: publisher/%q", ErrNotRegistered, cfg.Publisher)
	}
	return factory(cfg)
}

// Backends returns the registered backend names in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Publishers returns the registered publisher names in sorted order.
func (r *Registry) Publishers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
