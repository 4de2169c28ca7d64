// Package ratelimit provides fixed-window admission control for outbound
// sends and API callers. Quotas exist per traffic class and per endpoint
// pattern; counters live in a pluggable store so a shared backend can
// replace the in-process one without touching admission logic.
package ratelimit

import (
	"strings"
	"time"
)

// Class separates traffic a real user directly triggered from
// system-initiated sends. The two carry independent quotas.
type Class string

const (
	ClassBusiness Class = "business"
	ClassUser     Class = "user"
)

// Quota is a request budget over a window.
type Quota struct {
	Limit  int
	Window time.Duration
}

// Config holds the quota tables.
type Config struct {
	// ClassQuotas apply per identifier per traffic class.
	ClassQuotas map[Class]Quota
	// EndpointQuotas apply per identifier per endpoint pattern. A pattern
	// may contain a single "*" wildcard.
	EndpointQuotas map[string]Quota
	// DefaultEndpoint is used when no pattern matches.
	DefaultEndpoint Quota
	// MinBlock is the floor on the hard-block duration applied to
	// identifiers that keep hammering past their quota.
	MinBlock time.Duration
}

// DefaultConfig mirrors the provider's per-second pacing limits and the
// API's per-hour endpoint budgets.
func DefaultConfig() Config {
	return Config{
		ClassQuotas: map[Class]Quota{
			ClassBusiness: {Limit: 80, Window: time.Second},
			ClassUser:     {Limit: 1000, Window: time.Second},
		},
		EndpointQuotas: map[string]Quota{
			"/v1/campaigns/upload":      {Limit: 5, Window: time.Hour},
			"/v1/campaigns":             {Limit: 100, Window: time.Hour},
			"/v1/campaigns/*/schedule":  {Limit: 10, Window: time.Hour},
			"/v1/messages/*/reschedule": {Limit: 100, Window: time.Hour},
		},
		DefaultEndpoint: Quota{Limit: 1000, Window: time.Hour},
		MinBlock:        time.Minute,
	}
}

// endpointQuota matches an endpoint key against the table: exact match
// first, then single-wildcard patterns, then the default.
func (c Config) endpointQuota(endpointKey string) (string, Quota) {
	if q, ok := c.EndpointQuotas[endpointKey]; ok {
		return endpointKey, q
	}
	for pattern, q := range c.EndpointQuotas {
		prefix, suffix, ok := strings.Cut(pattern, "*")
		if !ok {
			continue
		}
		if strings.HasPrefix(endpointKey, prefix) && strings.HasSuffix(endpointKey, suffix) {
			return pattern, q
		}
	}
	return "default", c.DefaultEndpoint
}
