// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 1s
	Max     time.Duration // default: 5m
	Base    float64       // growth factor per attempt, default: 2.0
}

func (c *Config) withDefaults() (time.Duration, time.Duration, float64) {
	initial := time.Second
	maxBackoff := 5 * time.Minute
	base := 2.0
	if c != nil {
		if c.Initial > 0 {
			initial = c.Initial
		}
		if c.Max > 0 {
			maxBackoff = c.Max
		}
		if c.Base > 1 {
			base = c.Base
		}
	}
	return initial, maxBackoff, base
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*base, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxBackoff, base := cfg.withDefaults()

	if attempt < 1 {
		return initial
	}
	backoff := float64(initial) * math.Pow(base, float64(attempt-1))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

// Jittered returns the exponential backoff for an attempt scaled by a
// random factor in [0.5, 1.5) so simultaneous retries spread out instead
// of hammering a recovering dependency in lockstep.
func Jittered(attempt int, cfg *Config) time.Duration {
	d := Exponential(attempt, cfg)
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}
