// Package campaign schedules outbound messages: it computes a send time
// per recipient, persists the intent, and hands execution to the delayed
// task queue.
package campaign

import (
	"context"
	"time"

	"crmres/internal/quiethours"
)

// Resolver is the do-not-disturb surface the scheduler consults.
type Resolver interface {
	Resolve(ctx context.Context, proposed time.Time, region string) quiethours.Result
}

// SendTimeConfig bounds the delay between a recipient's event and the
// follow-up message.
type SendTimeConfig struct {
	BaseDelay time.Duration
	MinDelay  time.Duration
	MaxDelay  time.Duration
}

// DefaultSendTimeConfig sends three hours after the visit, never less
// than two or more than four.
func DefaultSendTimeConfig() SendTimeConfig {
	return SendTimeConfig{
		BaseDelay: 3 * time.Hour,
		MinDelay:  2 * time.Hour,
		MaxDelay:  4 * time.Hour,
	}
}

// ComputeSendTime picks the send time for one recipient. The candidate
// starts at eventTime+BaseDelay and moves past any restricted window the
// resolver reports, then is clamped into [MinDelay, MaxDelay] from the
// event. The ceiling wins over window avoidance: missing the engagement
// deadline is worse than brushing a window edge.
func ComputeSendTime(ctx context.Context, eventTime time.Time, region string, r Resolver, cfg SendTimeConfig) time.Time {
	candidate := eventTime.Add(cfg.BaseDelay)

	if res := r.Resolve(ctx, candidate, region); res.InWindow {
		candidate = res.NextAvailable
	}

	floor := eventTime.Add(cfg.MinDelay)
	ceiling := eventTime.Add(cfg.MaxDelay)
	if candidate.Before(floor) {
		return floor
	}
	if candidate.After(ceiling) {
		return ceiling
	}
	return candidate
}
