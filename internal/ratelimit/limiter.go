package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Current    int64
	Limit      int
	Remaining  int64
	RetryAfter time.Duration
	Reset      time.Time
}

// Limiter performs fixed-window admission control. The window is
// approximated by a counter bucket keyed by floor(now/window); boundary
// bursts of up to twice the quota are possible and accepted (the quotas
// are generous relative to burst size).
type Limiter struct {
	cfg   Config
	store CounterStore
	now   func() time.Time

	mu      sync.Mutex
	blocked map[string]time.Time
}

// New creates a limiter over the given counter store.
func New(cfg Config, store CounterStore) *Limiter {
	if cfg.MinBlock <= 0 {
		cfg.MinBlock = time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		store:   store,
		now:     time.Now,
		blocked: make(map[string]time.Time),
	}
}

func bucketKey(kind, scope, identifier string, now time.Time, window time.Duration) string {
	bucket := now.UnixNano() / int64(window)
	return fmt.Sprintf("%s:%s:%s:%d", kind, scope, identifier, bucket)
}

// Admit checks the identifier against both its traffic-class quota and
// the endpoint quota. Denial carries a retryAfter covering the rest of
// the window; a denied identifier is additionally hard-blocked for at
// least MinBlock, suppressing all further counting until it elapses.
func (l *Limiter) Admit(identifier string, class Class, endpointKey string) Decision {
	now := l.now()

	if until, ok := l.blockedUntil(identifier); ok && until.After(now) {
		return Decision{
			Allowed:    false,
			RetryAfter: until.Sub(now),
			Reset:      until,
		}
	}

	classQuota, ok := l.cfg.ClassQuotas[class]
	if !ok {
		classQuota = l.cfg.DefaultEndpoint
	}
	if d := l.check("class", string(class), identifier, classQuota, now); !d.Allowed {
		l.block(identifier, d.RetryAfter, now)
		return d
	}

	pattern, endpointQuota := l.cfg.endpointQuota(endpointKey)
	if d := l.check("endpoint", pattern, identifier, endpointQuota, now); !d.Allowed {
		l.block(identifier, d.RetryAfter, now)
		return d
	}

	// Report the tighter class-quota numbers to the caller.
	current := l.store.Get(bucketKey("class", string(class), identifier, now, classQuota.Window))
	return Decision{
		Allowed:   true,
		Current:   current,
		Limit:     classQuota.Limit,
		Remaining: max(0, int64(classQuota.Limit)-current),
		Reset:     now.Truncate(classQuota.Window).Add(classQuota.Window),
	}
}

func (l *Limiter) check(kind, scope, identifier string, quota Quota, now time.Time) Decision {
	key := bucketKey(kind, scope, identifier, now, quota.Window)
	// TTL slightly above the window so idle buckets self-expire.
	count := l.store.Incr(key, quota.Window*2)

	reset := now.Truncate(quota.Window).Add(quota.Window)
	if count > int64(quota.Limit) {
		return Decision{
			Allowed:    false,
			Current:    count,
			Limit:      quota.Limit,
			RetryAfter: reset.Sub(now),
			Reset:      reset,
		}
	}
	return Decision{
		Allowed:   true,
		Current:   count,
		Limit:     quota.Limit,
		Remaining: int64(quota.Limit) - count,
		Reset:     reset,
	}
}

func (l *Limiter) block(identifier string, windowRemaining time.Duration, now time.Time) {
	d := windowRemaining
	if d < l.cfg.MinBlock {
		d = l.cfg.MinBlock
	}
	l.mu.Lock()
	l.blocked[identifier] = now.Add(d)
	l.mu.Unlock()
}

func (l *Limiter) blockedUntil(identifier string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.blocked[identifier]
	if ok && !until.After(l.now()) {
		delete(l.blocked, identifier)
		return time.Time{}, false
	}
	return until, ok
}

// ClassUsage is one traffic class's current consumption.
type ClassUsage struct {
	Current   int64 `json:"current"`
	Limit     int   `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// Usage reports both traffic classes' consumption for an identifier,
// for the operational stats endpoint.
func (l *Limiter) Usage(identifier string) map[Class]ClassUsage {
	now := l.now()
	usage := make(map[Class]ClassUsage, len(l.cfg.ClassQuotas))
	for class, quota := range l.cfg.ClassQuotas {
		current := l.store.Get(bucketKey("class", string(class), identifier, now, quota.Window))
		usage[class] = ClassUsage{
			Current:   current,
			Limit:     quota.Limit,
			Remaining: max(0, int64(quota.Limit)-current),
		}
	}
	return usage
}
