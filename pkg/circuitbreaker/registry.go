package circuitbreaker

import (
	"sync"
)

// Registry manages circuit breakers for multiple dependencies.
// Breakers are created lazily on first access and shared by all callers
// of the same dependency. State is process-local: each worker process
// makes its own open/closed decision.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry creates a new registry. cfg is the default config for
// breakers requested without an explicit one.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		config:   cfg,
	}
}

// Get returns the circuit breaker for a name, creating one with the
// registry default config if needed.
func (r *Registry) Get(name string) *Breaker {
	return r.GetWithConfig(name, r.config)
}

// GetWithConfig returns the circuit breaker for a name, creating one with
// cfg if it does not exist yet. An existing breaker keeps its original
// config.
func (r *Registry) GetWithConfig(name string, cfg Config) *Breaker {
	r.mu.RLock()
	b, exists := r.breakers[name]
	r.mu.RUnlock()

	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists = r.breakers[name]; exists {
		return b
	}

	b = New(name, cfg)
	r.breakers[name] = b
	return b
}

// Stats returns snapshots for all breakers, keyed by name.
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]Stats, len(r.breakers))
	for name, b := range r.breakers {
		stats[name] = b.Stats()
	}
	return stats
}

// OpenCount returns the number of breakers currently open.
func (r *Registry) OpenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, b := range r.breakers {
		if b.State() == Open {
			n++
		}
	}
	return n
}

// Reset resets all breakers to closed.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}

// ResetBreaker resets a single breaker by name. Returns false if the name
// is unknown.
func (r *Registry) ResetBreaker(name string) bool {
	r.mu.RLock()
	b, exists := r.breakers[name]
	r.mu.RUnlock()

	if !exists {
		return false
	}
	b.Reset()
	return true
}
