package quiethours

import (
	"context"
	"log/slog"
	"time"

	"crmres/pkg/circuitbreaker"
)

// Source identifies where a resolution came from.
type Source string

const (
	SourceAPI      Source = "api"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Result is the resolver's verdict for one proposed send time.
type Result struct {
	InWindow      bool      `json:"inWindow"`
	NextAvailable time.Time `json:"nextAvailable"`
	WindowName    string    `json:"windowName,omitempty"`
	Source        Source    `json:"source"`
}

// checker is the window API surface the resolver needs.
type checker interface {
	Check(ctx context.Context, proposed time.Time, region string) (*WindowInfo, error)
}

// Options tunes a Resolver. Zero values select the defaults.
type Options struct {
	CacheTTL        time.Duration
	CacheCapacity   int
	PostWindowWait  time.Duration // buffer added after a window ends
	RestrictedHours []int         // fallback hour table
}

const defaultPostWindowWait = 30 * time.Minute

// Resolver answers "may I send at this time in this region". It consults
// the cache, then the window API through a circuit breaker, then the
// static fallback table. It never fails: a degraded answer is always
// available.
type Resolver struct {
	client  checker
	breaker *circuitbreaker.Breaker
	cache   *cache
	logger  *slog.Logger

	postWindowWait  time.Duration
	restrictedHours []int
}

// NewResolver builds a resolver around a window API client and the
// breaker guarding it.
func NewResolver(client checker, breaker *circuitbreaker.Breaker, logger *slog.Logger, opts Options) *Resolver {
	wait := opts.PostWindowWait
	if wait <= 0 {
		wait = defaultPostWindowWait
	}
	hours := opts.RestrictedHours
	if len(hours) == 0 {
		hours = defaultRestrictedHours
	}
	return &Resolver{
		client:          client,
		breaker:         breaker,
		cache:           newCache(opts.CacheTTL, opts.CacheCapacity),
		logger:          logger,
		postWindowWait:  wait,
		restrictedHours: hours,
	}
}

// Resolve reports whether the proposed time falls in a restricted window
// and when sending next becomes acceptable.
func (r *Resolver) Resolve(ctx context.Context, proposed time.Time, region string) Result {
	key := cacheKey(region, proposed)

	if info, fresh, ok := r.cache.Get(key); ok && fresh {
		return r.evaluate(proposed, info, SourceCache)
	}

	var info *WindowInfo
	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		info, callErr = r.client.Check(ctx, proposed, region)
		return callErr
	})
	if err == nil {
		r.cache.Put(key, info)
		return r.evaluate(proposed, info, SourceAPI)
	}

	if circuitbreaker.IsOpen(err) {
		r.logger.Warn("window api breaker open, degrading", "region", region)
	} else {
		r.logger.Warn("window api check failed, degrading", "region", region, "error", err)
	}

	// A stale entry beats the static table.
	if info, _, ok := r.cache.Get(key); ok {
		return r.evaluate(proposed, info, SourceCache)
	}
	return fallbackCheck(proposed, r.restrictedHours)
}

func (r *Resolver) evaluate(proposed time.Time, info *WindowInfo, source Source) Result {
	if info == nil || !info.InWindow {
		return Result{NextAvailable: proposed, Source: source}
	}
	return Result{
		InWindow:      true,
		NextAvailable: info.WindowEnd.Add(r.postWindowWait),
		WindowName:    info.WindowName,
		Source:        source,
	}
}
