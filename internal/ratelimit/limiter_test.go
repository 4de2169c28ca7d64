package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"crmres/internal/testutil"
)

func testConfig() Config {
	return Config{
		ClassQuotas: map[Class]Quota{
			ClassBusiness: {Limit: 80, Window: time.Second},
			ClassUser:     {Limit: 1000, Window: time.Second},
		},
		EndpointQuotas: map[string]Quota{
			"/v1/campaigns/upload":     {Limit: 5, Window: time.Hour},
			"/v1/campaigns/*/schedule": {Limit: 10, Window: time.Hour},
		},
		DefaultEndpoint: Quota{Limit: 1000, Window: time.Hour},
		MinBlock:        time.Minute,
	}
}

func newTestLimiter() (*Limiter, *MemoryStore, *time.Time) {
	store := NewMemoryStore()
	l := New(testConfig(), store)

	now := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	clock := &now
	l.now = func() time.Time { return *clock }
	store.now = func() time.Time { return *clock }
	return l, store, clock
}

func TestLimiter_AdmitsUnderQuota(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter()
	d := l.Admit("+254700000001", ClassBusiness, "/v1/other")
	if !d.Allowed {
		t.Fatal("expected first call admitted")
	}
	if d.Current != 1 || d.Limit != 80 {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestLimiter_DeniesAtQuotaWithRetryAfter(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter()
	for i := 0; i < 80; i++ {
		if d := l.Admit("+254700000001", ClassBusiness, "/v1/other"); !d.Allowed {
			t.Fatalf("call %d unexpectedly denied", i+1)
		}
	}

	d := l.Admit("+254700000001", ClassBusiness, "/v1/other")
	if d.Allowed {
		t.Fatal("expected denial at quota 80")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("expected positive retryAfter, got %v", d.RetryAfter)
	}
}

func TestLimiter_IdempotentDenial(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter()
	for i := 0; i < 81; i++ {
		l.Admit("+254700000001", ClassBusiness, "/v1/other")
	}

	// Every further call in the window stays denied.
	for i := 0; i < 5; i++ {
		d := l.Admit("+254700000001", ClassBusiness, "/v1/other")
		if d.Allowed {
			t.Fatalf("expected continued denial, call %d admitted", i)
		}
		if d.RetryAfter <= 0 {
			t.Errorf("expected positive retryAfter, got %v", d.RetryAfter)
		}
	}
}

func TestLimiter_HardBlockHasMinimumDuration(t *testing.T) {
	t.Parallel()

	l, _, clock := newTestLimiter()
	for i := 0; i < 81; i++ {
		l.Admit("+254700000001", ClassBusiness, "/v1/other")
	}

	// Class window is one second, so remaining window time is under the
	// 60s floor; the block must still hold after the window rolls over.
	*clock = clock.Add(2 * time.Second)
	d := l.Admit("+254700000001", ClassBusiness, "/v1/other")
	if d.Allowed {
		t.Fatal("expected hard block to outlast the window")
	}
	if d.RetryAfter > time.Minute {
		t.Errorf("retryAfter exceeds the block floor: %v", d.RetryAfter)
	}
}

func TestLimiter_WindowRollover(t *testing.T) {
	t.Parallel()

	l, _, clock := newTestLimiter()
	for i := 0; i < 81; i++ {
		l.Admit("+254700000001", ClassBusiness, "/v1/other")
	}

	// Past both the window and the block, counting restarts from zero.
	*clock = clock.Add(2 * time.Minute)
	d := l.Admit("+254700000001", ClassBusiness, "/v1/other")
	if !d.Allowed {
		t.Fatal("expected admission after window rollover and block expiry")
	}
	if d.Current != 1 {
		t.Errorf("expected fresh count 1, got %d", d.Current)
	}
}

func TestLimiter_ClassesAreIndependent(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter()
	for i := 0; i < 81; i++ {
		l.Admit("+254700000001", ClassBusiness, "/v1/other")
	}

	// The same identifier under the user class uses its own quota, but
	// the hard block applies to the identifier as a whole.
	d := l.Admit("+254700000001", ClassUser, "/v1/other")
	if d.Allowed {
		t.Fatal("hard block covers the identifier across classes")
	}

	// A different identifier is unaffected.
	if d := l.Admit("+254700000002", ClassUser, "/v1/other"); !d.Allowed {
		t.Fatal("expected unrelated identifier admitted")
	}
}

func TestLimiter_EndpointQuota(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter()
	for i := 0; i < 5; i++ {
		if d := l.Admit("ip:10.0.0.1", ClassUser, "/v1/campaigns/upload"); !d.Allowed {
			t.Fatalf("upload %d unexpectedly denied", i+1)
		}
	}

	d := l.Admit("ip:10.0.0.1", ClassUser, "/v1/campaigns/upload")
	if d.Allowed {
		t.Fatal("expected sixth upload denied by endpoint quota")
	}
	if d.Limit != 5 {
		t.Errorf("expected endpoint limit 5, got %d", d.Limit)
	}
}

func TestConfig_EndpointMatching(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	tests := []struct {
		path        string
		wantPattern string
		wantLimit   int
	}{
		{"/v1/campaigns/upload", "/v1/campaigns/upload", 5},
		{"/v1/campaigns/abc-123/schedule", "/v1/campaigns/*/schedule", 10},
		{"/v1/anything-else", "default", 1000},
	}

	for _, tt := range tests {
		pattern, quota := cfg.endpointQuota(tt.path)
		if pattern != tt.wantPattern {
			t.Errorf("endpointQuota(%q) pattern = %q, want %q", tt.path, pattern, tt.wantPattern)
		}
		if quota.Limit != tt.wantLimit {
			t.Errorf("endpointQuota(%q) limit = %d, want %d", tt.path, quota.Limit, tt.wantLimit)
		}
	}
}

func TestLimiter_Usage(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter()
	for i := 0; i < 3; i++ {
		l.Admit("+254700000001", ClassBusiness, "/v1/other")
	}

	usage := l.Usage("+254700000001")
	if usage[ClassBusiness].Current != 3 || usage[ClassBusiness].Remaining != 77 {
		t.Errorf("unexpected business usage: %+v", usage[ClassBusiness])
	}
	if usage[ClassUser].Current != 0 || usage[ClassUser].Limit != 1000 {
		t.Errorf("unexpected user usage: %+v", usage[ClassUser])
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	now := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	clock := &now
	store.now = func() time.Time { return *clock }

	store.Incr("stale", time.Hour)
	*clock = clock.Add(30 * time.Minute)
	store.Incr("active", time.Hour)
	*clock = clock.Add(45 * time.Minute)

	// "stale" has been idle 75 minutes, "active" only 45.
	if removed := store.Sweep(); removed != 1 {
		t.Errorf("expected 1 entry swept, got %d", removed)
	}
	if store.Get("active") != 1 {
		t.Error("expected active entry to survive the sweep")
	}
}

func TestMemoryStore_SweeperStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	var done atomic.Int64
	go func() {
		store.RunSweeper(ctx)
		done.Add(1)
	}()

	cancel()
	testutil.MustWaitForCount(t, &done, 1, testutil.WithTimeout(time.Second))
}
