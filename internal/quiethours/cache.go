package quiethours

import (
	"fmt"
	"sync"
	"time"
)

const (
	defaultCacheTTL      = time.Hour
	defaultCacheCapacity = 100
)

type cacheEntry struct {
	info    *WindowInfo
	expires time.Time
}

// cache holds window verdicts keyed by (region, date). The TTL is soft:
// Get distinguishes fresh from stale so an expired entry can still serve
// as a degraded fallback when the API is unreachable.
type cache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

func newCache(ttl time.Duration, capacity int) *cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &cache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

func cacheKey(region string, date time.Time) string {
	return fmt.Sprintf("%s_%s", region, date.Format("2006-01-02"))
}

// Get returns the cached info and whether it is still within TTL.
func (c *cache) Get(key string) (info *WindowInfo, fresh bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	return entry.info, c.now().Before(entry.expires), true
}

// Put stores an entry, evicting the soonest-expiring one when the cache
// is full.
func (c *cache) Put(key string, info *WindowInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		var oldest string
		var oldestExpiry time.Time
		for k, e := range c.entries {
			if oldest == "" || e.expires.Before(oldestExpiry) {
				oldest = k
				oldestExpiry = e.expires
			}
		}
		delete(c.entries, oldest)
	}

	c.entries[key] = cacheEntry{info: info, expires: c.now().Add(c.ttl)}
}

func (c *cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
