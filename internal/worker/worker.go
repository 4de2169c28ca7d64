// Package worker executes queued dispatch tasks: the rate-limited,
// circuit-broken send, retry with jittered backoff, and the dead-letter
// path for sends that exhaust their attempts.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crmres/internal/message"
	"crmres/internal/observability"
	"crmres/internal/queue"
	"crmres/internal/ratelimit"
	"crmres/pkg/backoff"
	"crmres/pkg/circuitbreaker"
)

// BreakerWhatsApp names the breaker guarding the downstream send API.
const BreakerWhatsApp = "whatsapp-api"

// messageStore is the persistence surface the worker needs.
type messageStore interface {
	GetByID(ctx context.Context, id string) (*message.ScheduledMessage, error)
	SetQueued(ctx context.Context, id, taskID string) error
	RecordAttempt(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id, providerMessageID string) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) error
	AdvanceByProviderID(ctx context.Context, providerMessageID string, to message.Status) (bool, error)
	DueScheduled(ctx context.Context, cutoff time.Time, limit int) ([]*message.ScheduledMessage, error)
	CampaignCounts(ctx context.Context, campaignID string) (map[message.Status]int, error)
	ActiveCampaignIDs(ctx context.Context) ([]string, error)
}

// deadLetterStore records sends that failed for good.
type deadLetterStore interface {
	Create(ctx context.Context, dl *message.DeadLetter) error
}

// taskPublisher republishes retries and sweep-generated tasks.
type taskPublisher interface {
	Publish(ctx context.Context, task *queue.Task, delay time.Duration) error
}

// sender is the downstream message API.
type sender interface {
	SendTemplate(ctx context.Context, to, templateName string) (string, error)
}

// Config tunes the worker's retry and admission behavior.
type Config struct {
	// MaxAttempts bounds send retries before dead-lettering.
	MaxAttempts int
	// Backoff shapes the retry delay curve.
	Backoff backoff.Config
	// AdmissionWait is the longest the worker blocks on a rate-limit
	// denial before requeueing the task instead.
	AdmissionWait time.Duration
}

// DefaultConfig matches the engine's tuned retry envelope.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		Backoff:       backoff.Config{Initial: time.Second, Max: 5 * time.Minute, Base: 2.0},
		AdmissionWait: 2 * time.Second,
	}
}

// Worker handles dispatch tasks pulled off the work queue.
type Worker struct {
	store       messageStore
	deadLetters deadLetterStore
	publisher   taskPublisher
	sender      sender
	limiter     *ratelimit.Limiter
	breakers    *circuitbreaker.Registry
	metrics     *observability.Metrics
	logger      *slog.Logger
	cfg         Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires a worker.
func New(
	store messageStore,
	deadLetters deadLetterStore,
	publisher taskPublisher,
	snd sender,
	limiter *ratelimit.Limiter,
	breakers *circuitbreaker.Registry,
	metrics *observability.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Worker{
		store:       store,
		deadLetters: deadLetters,
		publisher:   publisher,
		sender:      snd,
		limiter:     limiter,
		breakers:    breakers,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Handle dispatches one task by kind. It is the queue consumer's
// handler; returning an error drops the delivery, so every path that
// wants a retry republishes explicitly before returning nil.
func (w *Worker) Handle(ctx context.Context, task *queue.Task) error {
	switch task.Kind {
	case queue.KindSendMessage:
		return w.handleSend(ctx, task)
	case queue.KindProcessStatusUpdate:
		return w.handleStatusUpdate(ctx, task)
	case queue.KindUpdateMetrics:
		return w.handleUpdateMetrics(ctx, task)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}
