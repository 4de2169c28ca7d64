package quiethours

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"crmres/pkg/circuitbreaker"
)

type stubChecker struct {
	info  *WindowInfo
	err   error
	calls int
}

func (s *stubChecker) Check(ctx context.Context, proposed time.Time, region string) (*WindowInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.info, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(client checker, opts Options) *Resolver {
	b := circuitbreaker.New("window-api", circuitbreaker.ExternalAPI)
	return NewResolver(client, b, discardLogger(), opts)
}

func TestResolver_OutsideWindow(t *testing.T) {
	t.Parallel()

	client := &stubChecker{info: &WindowInfo{InWindow: false}}
	r := newTestResolver(client, Options{})

	proposed := time.Date(2025, 1, 8, 17, 30, 0, 0, time.UTC)
	res := r.Resolve(context.Background(), proposed, "riyadh")

	if res.InWindow {
		t.Error("expected no restriction")
	}
	if !res.NextAvailable.Equal(proposed) {
		t.Errorf("expected next available unchanged, got %v", res.NextAvailable)
	}
	if res.Source != SourceAPI {
		t.Errorf("expected api source, got %s", res.Source)
	}
}

func TestResolver_InWindowAddsBuffer(t *testing.T) {
	t.Parallel()

	windowEnd := time.Date(2025, 1, 8, 17, 45, 0, 0, time.UTC)
	client := &stubChecker{info: &WindowInfo{InWindow: true, WindowEnd: windowEnd, WindowName: "maghrib"}}
	r := newTestResolver(client, Options{})

	proposed := time.Date(2025, 1, 8, 17, 30, 0, 0, time.UTC)
	res := r.Resolve(context.Background(), proposed, "riyadh")

	if !res.InWindow {
		t.Fatal("expected restriction")
	}
	want := time.Date(2025, 1, 8, 18, 15, 0, 0, time.UTC)
	if !res.NextAvailable.Equal(want) {
		t.Errorf("expected next available %v, got %v", want, res.NextAvailable)
	}
	if res.WindowName != "maghrib" {
		t.Errorf("unexpected window name %q", res.WindowName)
	}
}

func TestResolver_CachesPerRegionAndDate(t *testing.T) {
	t.Parallel()

	client := &stubChecker{info: &WindowInfo{InWindow: false}}
	r := newTestResolver(client, Options{})

	proposed := time.Date(2025, 1, 8, 17, 30, 0, 0, time.UTC)
	r.Resolve(context.Background(), proposed, "riyadh")
	res := r.Resolve(context.Background(), proposed.Add(10*time.Minute), "riyadh")

	if client.calls != 1 {
		t.Errorf("expected one api call, got %d", client.calls)
	}
	if res.Source != SourceCache {
		t.Errorf("expected cache source, got %s", res.Source)
	}

	// A different region misses the cache.
	r.Resolve(context.Background(), proposed, "jeddah")
	if client.calls != 2 {
		t.Errorf("expected second api call for new region, got %d", client.calls)
	}
}

func TestResolver_FallsBackWhenAPIDown(t *testing.T) {
	t.Parallel()

	client := &stubChecker{err: errors.New("connection refused")}
	r := newTestResolver(client, Options{})

	// 18:00 is in the static restricted table.
	proposed := time.Date(2025, 1, 8, 18, 10, 0, 0, time.UTC)
	res := r.Resolve(context.Background(), proposed, "riyadh")

	if res.Source != SourceFallback {
		t.Fatalf("expected fallback source, got %s", res.Source)
	}
	if !res.InWindow {
		t.Fatal("expected 18:xx to be restricted by the fallback table")
	}
	want := time.Date(2025, 1, 8, 19, 0, 0, 0, time.UTC)
	if !res.NextAvailable.Equal(want) {
		t.Errorf("expected next safe hour %v, got %v", want, res.NextAvailable)
	}
}

func TestResolver_StaleCacheBeatsFallback(t *testing.T) {
	t.Parallel()

	client := &stubChecker{info: &WindowInfo{InWindow: false}}
	r := newTestResolver(client, Options{CacheTTL: time.Hour})

	proposed := time.Date(2025, 1, 8, 18, 10, 0, 0, time.UTC)
	r.Resolve(context.Background(), proposed, "riyadh")

	// Expire the entry, then kill the API. The stale entry should still
	// answer instead of the static table.
	r.cache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	client.err = errors.New("connection refused")

	res := r.Resolve(context.Background(), proposed, "riyadh")
	if res.Source != SourceCache {
		t.Errorf("expected stale cache answer, got %s", res.Source)
	}
	if res.InWindow {
		t.Error("stale entry says no restriction")
	}
}

func TestResolver_BreakerOpenUsesFallback(t *testing.T) {
	t.Parallel()

	client := &stubChecker{err: errors.New("connection refused")}
	b := circuitbreaker.New("window-api", circuitbreaker.Config{
		FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute,
	})
	r := NewResolver(client, b, discardLogger(), Options{})

	proposed := time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r.Resolve(context.Background(), proposed, "riyadh")
	}

	if b.State() != circuitbreaker.Open {
		t.Fatalf("expected breaker open, got %s", b.State())
	}
	calls := client.calls

	res := r.Resolve(context.Background(), proposed, "riyadh")
	if client.calls != calls {
		t.Error("open breaker must not invoke the window api")
	}
	if res.Source != SourceFallback {
		t.Errorf("expected fallback source, got %s", res.Source)
	}
	// 09:00 is not restricted in the table.
	if res.InWindow {
		t.Error("expected 09:00 to be unrestricted")
	}
}

func TestFallbackCheck_NextSafeHour(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		proposed time.Time
		want     time.Time
		inWindow bool
	}{
		{
			name:     "restricted noon hour",
			proposed: time.Date(2025, 1, 8, 12, 45, 0, 0, time.UTC),
			want:     time.Date(2025, 1, 8, 13, 0, 0, 0, time.UTC),
			inWindow: true,
		},
		{
			name:     "restricted evening hour",
			proposed: time.Date(2025, 1, 8, 19, 20, 0, 0, time.UTC),
			want:     time.Date(2025, 1, 8, 20, 0, 0, 0, time.UTC),
			inWindow: true,
		},
		{
			name:     "unrestricted hour",
			proposed: time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC),
			want:     time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC),
			inWindow: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := fallbackCheck(tt.proposed, defaultRestrictedHours)
			if res.InWindow != tt.inWindow {
				t.Errorf("InWindow = %v, want %v", res.InWindow, tt.inWindow)
			}
			if !res.NextAvailable.Equal(tt.want) {
				t.Errorf("NextAvailable = %v, want %v", res.NextAvailable, tt.want)
			}
		})
	}
}

func TestFallbackCheck_WrapsToMorning(t *testing.T) {
	t.Parallel()

	// A late-night restricted hour must wrap to the safe morning hour of
	// the next day.
	proposed := time.Date(2025, 1, 8, 23, 30, 0, 0, time.UTC)
	res := fallbackCheck(proposed, []int{23})
	want := time.Date(2025, 1, 9, 6, 0, 0, 0, time.UTC)
	if !res.NextAvailable.Equal(want) {
		t.Errorf("NextAvailable = %v, want %v", res.NextAvailable, want)
	}
}

func TestCache_EvictsSoonestExpiry(t *testing.T) {
	t.Parallel()

	c := newCache(time.Hour, 2)
	base := time.Now()
	n := 0
	c.now = func() time.Time { n++; return base.Add(time.Duration(n) * time.Minute) }

	c.Put("a", &WindowInfo{})
	c.Put("b", &WindowInfo{})
	c.Put("c", &WindowInfo{}) // evicts "a", the soonest to expire

	if c.Len() != 2 {
		t.Fatalf("expected capacity 2, got %d", c.Len())
	}
	if _, _, ok := c.Get("a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, _, ok := c.Get("c"); !ok {
		t.Error("expected newest entry present")
	}
}
