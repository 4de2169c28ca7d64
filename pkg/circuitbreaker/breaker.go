// Package circuitbreaker implements the circuit breaker pattern.
//
// A circuit breaker prevents cascading failures by tracking consecutive failures
// and temporarily blocking requests to failing services.
//
// States:
//   - Closed: Normal operation, requests allowed
//   - Open: Too many failures, requests blocked
//   - HalfOpen: Testing if service recovered
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed   State = iota // Normal operation, requests allowed
	Open                  // Failing, requests blocked
	HalfOpen              // Testing if recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is returned when a call is rejected because the breaker is open.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Name, e.RetryAfter.Round(time.Second))
}

// IsOpen reports whether err is a breaker rejection. Rejections happen
// before any network attempt and must not be fed back into the breaker
// as failures, or an open breaker could never recover.
func IsOpen(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}

// Config holds configuration for a circuit breaker.
type Config struct {
	FailureThreshold int           // Consecutive failures before opening (default: 5)
	SuccessThreshold int           // Half-open successes before closing (default: 2)
	Timeout          time.Duration // How long to stay open before probing (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Presets for the dependency classes the service talks to.
var (
	// ExternalAPI fails fast: third-party APIs with their own rate limits.
	ExternalAPI = Config{FailureThreshold: 3, SuccessThreshold: 2, Timeout: 30 * time.Second}
	// CriticalService tolerates more failures before tripping.
	CriticalService = Config{FailureThreshold: 10, SuccessThreshold: 3, Timeout: 60 * time.Second}
	// OptionalService trips quickly and probes often.
	OptionalService = Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: 15 * time.Second}
)

// Stats is a point-in-time snapshot of a breaker. Lifetime totals are
// monotonic and survive Reset.
type Stats struct {
	Name            string     `json:"name"`
	State           string     `json:"state"`
	Failures        int        `json:"failureCount"`
	Successes       int        `json:"successCount"`
	TotalRequests   int64      `json:"totalRequests"`
	TotalSuccesses  int64      `json:"totalSuccesses"`
	TotalFailures   int64      `json:"totalFailures"`
	TotalRejected   int64      `json:"totalRejected"`
	LastFailureTime *time.Time `json:"lastFailureTime,omitempty"`
	LastSuccessTime *time.Time `json:"lastSuccessTime,omitempty"`
	NextAttempt     *time.Time `json:"nextAttempt,omitempty"`
}

// Breaker implements the circuit breaker pattern for a single dependency.
type Breaker struct {
	name   string
	config Config
	clock  func() time.Time

	mu          sync.Mutex
	state       State
	failures    int       // consecutive failures while closed
	successes   int       // consecutive successes while half-open
	nextAttempt time.Time // earliest probe time while open
	lastFailure time.Time
	lastSuccess time.Time

	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
	totalRejected  int64
}

// New creates a new circuit breaker.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Breaker{
		name:   name,
		config: cfg,
		clock:  time.Now,
		state:  Closed,
	}
}

// Call executes op through the breaker. It returns an *OpenError without
// invoking op when the breaker is open; otherwise it runs op and records
// the outcome. A context error from op counts as a failure.
func (b *Breaker) Call(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	if err := op(ctx); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// allow decides whether a call may proceed, moving Open -> HalfOpen once
// the open timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	switch b.state {
	case Closed, HalfOpen:
		return nil
	case Open:
		if !b.clock().Before(b.nextAttempt) {
			b.state = HalfOpen
			b.successes = 0
			return nil
		}
		b.totalRejected++
		return &OpenError{Name: b.name, RetryAfter: b.nextAttempt.Sub(b.clock())}
	default:
		return nil
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	b.lastSuccess = b.clock()

	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	case Closed:
		// Forgive one failure per success so isolated transient errors
		// never accumulate into an open circuit.
		if b.failures > 0 {
			b.failures--
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.failures++
	b.lastFailure = b.clock()

	switch b.state {
	case HalfOpen:
		b.open()
	case Closed:
		if b.failures >= b.config.FailureThreshold {
			b.open()
		}
	}
}

// open must be called with b.mu held.
func (b *Breaker) open() {
	b.state = Open
	b.successes = 0
	b.nextAttempt = b.clock().Add(b.config.Timeout)
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed and zeroes the state machine counters.
// Lifetime totals are kept for observability.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.successes = 0
	b.nextAttempt = time.Time{}
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Name:           b.name,
		State:          b.state.String(),
		Failures:       b.failures,
		Successes:      b.successes,
		TotalRequests:  b.totalRequests,
		TotalSuccesses: b.totalSuccesses,
		TotalFailures:  b.totalFailures,
		TotalRejected:  b.totalRejected,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailureTime = &t
	}
	if !b.lastSuccess.IsZero() {
		t := b.lastSuccess
		s.LastSuccessTime = &t
	}
	if b.state == Open && b.nextAttempt.After(b.clock()) {
		t := b.nextAttempt
		s.NextAttempt = &t
	}
	return s
}
