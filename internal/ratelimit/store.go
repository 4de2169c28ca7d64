package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the shared counter backend. Implementations must make
// Incr atomic; the limiter issues exactly one increment per admission
// check.
type CounterStore interface {
	// Incr increments key and returns the new count, setting the TTL on
	// first touch.
	Incr(key string, ttl time.Duration) int64
	// Get returns the current count, zero when absent or expired.
	Get(key string) int64
}

type counterEntry struct {
	count    int64
	expires  time.Time
	lastSeen time.Time
}

// MemoryStore is a process-local CounterStore. Expiry is handled by TTL
// on read plus a periodic sweep that drops identifiers idle for over an
// hour, bounding memory.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counterEntry
	now      func() time.Time
}

const (
	sweepInterval = 5 * time.Minute
	idleExpiry    = time.Hour
)

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]counterEntry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Incr(key string, ttl time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.counters[key]
	if !ok || now.After(entry.expires) {
		entry = counterEntry{expires: now.Add(ttl)}
	}
	entry.count++
	entry.lastSeen = now
	s.counters[key] = entry
	return entry.count
}

func (s *MemoryStore) Get(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if !ok || s.now().After(entry.expires) {
		return 0
	}
	return entry.count
}

// Sweep drops entries idle for longer than idleExpiry and returns how
// many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.counters {
		if now.Sub(entry.lastSeen) > idleExpiry {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every five minutes until the context is cancelled.
func (s *MemoryStore) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
