package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"crmres/internal/apperrors"
	"crmres/internal/message"
	"crmres/internal/queue"
	"crmres/internal/ratelimit"
	"crmres/internal/whatsapp"
	"crmres/pkg/backoff"
	"crmres/pkg/circuitbreaker"
)

func (w *Worker) handleSend(ctx context.Context, task *queue.Task) error {
	var payload queue.SendMessagePayload
	if err := task.DecodePayload(&payload); err != nil {
		w.logger.Error("dropping malformed send task", "task_id", task.ID, "error", err)
		return nil
	}

	m, err := w.store.GetByID(ctx, payload.MessageID)
	if errors.Is(err, apperrors.ErrNotFound) {
		w.logger.Warn("send task references unknown message", "message_id", payload.MessageID)
		return nil
	}
	if err != nil {
		// Storage failures propagate so the queue redelivers.
		return err
	}

	// Idempotency guard: at-least-once delivery means a finished or
	// cancelled message can be claimed again. Treat it as a no-op.
	if !m.Status.Claimable() {
		w.logger.Info("skipping non-claimable message",
			"message_id", m.ID, "status", m.Status)
		return nil
	}

	// A reschedule or re-enqueue replaced the handle; this delivery is
	// from the superseded task.
	if m.TaskID != "" && m.TaskID != task.ID {
		w.logger.Info("dropping stale task for rescheduled message",
			"message_id", m.ID, "task_id", task.ID, "current_task_id", m.TaskID)
		return nil
	}

	if ok, err := w.admit(ctx, task, m); err != nil || !ok {
		return err
	}

	if m.Template == "" {
		return w.failTerminal(ctx, task, m, message.FailureValidation, "missing template")
	}

	if err := w.store.RecordAttempt(ctx, m.ID); err != nil {
		return err
	}

	providerID, sendErr := w.send(ctx, m)
	if sendErr == nil {
		claimed, err := w.store.MarkSent(ctx, m.ID, providerID)
		if err != nil {
			return err
		}
		if !claimed {
			w.logger.Info("message finished by another worker after send",
				"message_id", m.ID, "provider_message_id", providerID)
			return nil
		}
		w.logger.Info("message sent",
			"message_id", m.ID,
			"campaign_id", m.CampaignID,
			"provider_message_id", providerID,
			"attempt", task.Attempt)
		return nil
	}

	return w.handleSendFailure(ctx, task, m, sendErr)
}

// admit runs the rate-limit gate. Short waits are served in place; a
// longer retryAfter requeues the task under its existing handle. The
// second return value is false when the task was deferred.
func (w *Worker) admit(ctx context.Context, task *queue.Task, m *message.ScheduledMessage) (bool, error) {
	for {
		decision := w.limiter.Admit(m.Address, ratelimit.ClassBusiness, "send:whatsapp")
		if decision.Allowed {
			return true, nil
		}

		w.metrics.RecordRateLimitRejection(ctx, string(ratelimit.ClassBusiness))
		if decision.RetryAfter > w.cfg.AdmissionWait {
			w.logger.Info("rate limited, requeueing send",
				"message_id", m.ID, "retry_after", decision.RetryAfter)
			if err := w.publisher.Publish(ctx, task, decision.RetryAfter); err != nil {
				return false, err
			}
			return false, nil
		}
		if err := w.sleep(ctx, decision.RetryAfter); err != nil {
			return false, err
		}
	}
}

// send performs one breaker-guarded attempt against the downstream API.
func (w *Worker) send(ctx context.Context, m *message.ScheduledMessage) (string, error) {
	breaker := w.breakers.GetWithConfig(BreakerWhatsApp, circuitbreaker.ExternalAPI)

	w.metrics.RecordSendStarted(ctx, m.Template)
	start := w.now()

	var providerID string
	err := breaker.Call(ctx, func(ctx context.Context) error {
		var sendErr error
		providerID, sendErr = w.sender.SendTemplate(ctx, m.Address, m.Template)
		return sendErr
	})

	w.metrics.RecordSendCompleted(ctx, m.Template, err == nil, w.now().Sub(start).Seconds())
	return providerID, err
}

func (w *Worker) handleSendFailure(ctx context.Context, task *queue.Task, m *message.ScheduledMessage, sendErr error) error {
	// An open breaker rejected the call before any network attempt. It
	// is retryable like any dependency error but was never counted
	// against the breaker itself.
	if circuitbreaker.IsOpen(sendErr) {
		w.metrics.RecordBreakerRejection(ctx, BreakerWhatsApp)
	} else if whatsapp.IsTerminal(sendErr) {
		return w.failTerminal(ctx, task, m, message.FailurePermanent, sendErr.Error())
	}

	nextAttempt := task.Attempt + 1
	if nextAttempt >= w.cfg.MaxAttempts {
		w.logger.Error("send retries exhausted",
			"message_id", m.ID,
			"attempts", nextAttempt,
			"error", sendErr)
		return w.failTerminal(ctx, task, m, message.FailureTransient, sendErr.Error())
	}

	delay := backoff.Jittered(nextAttempt, &w.cfg.Backoff)
	w.logger.Warn("send failed, retrying",
		"message_id", m.ID,
		"attempt", task.Attempt,
		"next_attempt", nextAttempt,
		"delay", delay,
		"error", sendErr)
	w.metrics.RecordSendRetry(ctx, nextAttempt)

	return w.publisher.Publish(ctx, task.Retry(), delay)
}

// failTerminal marks the message failed and writes the dead-letter
// record. Every terminal outcome leaves a durable trace.
func (w *Worker) failTerminal(ctx context.Context, task *queue.Task, m *message.ScheduledMessage, failureType, reason string) error {
	if err := w.store.MarkFailed(ctx, m.ID, reason); err != nil {
		return err
	}

	now := w.now()
	dl := &message.DeadLetter{
		ID:            uuid.NewString(),
		MessageID:     m.ID,
		CampaignID:    m.CampaignID,
		Address:       m.Address,
		Attempts:      task.Attempt + 1,
		FailureType:   failureType,
		LastError:     reason,
		FirstFailedAt: task.EnqueuedAt,
		LastAttemptAt: now,
	}
	if err := w.deadLetters.Create(ctx, dl); err != nil {
		return err
	}

	w.metrics.RecordDeadLetter(ctx, failureType)
	w.logger.Error("message dead-lettered",
		"message_id", m.ID,
		"campaign_id", m.CampaignID,
		"failure_type", failureType,
		"reason", reason)
	return nil
}

// webhookStatuses maps provider delivery states onto the message status
// machine.
var webhookStatuses = map[string]message.Status{
	"delivered": message.StatusDelivered,
	"read":      message.StatusResponded,
	"responded": message.StatusResponded,
}

func (w *Worker) handleStatusUpdate(ctx context.Context, task *queue.Task) error {
	var payload queue.StatusUpdatePayload
	if err := task.DecodePayload(&payload); err != nil {
		w.logger.Error("dropping malformed status update", "task_id", task.ID, "error", err)
		return nil
	}

	to, ok := webhookStatuses[payload.Status]
	if !ok {
		w.logger.Info("ignoring unhandled webhook status",
			"provider_message_id", payload.ProviderMessageID,
			"status", payload.Status)
		return nil
	}

	moved, err := w.store.AdvanceByProviderID(ctx, payload.ProviderMessageID, to)
	if err != nil {
		return err
	}
	if !moved {
		// Unknown id or out-of-order webhook; both are normal.
		w.logger.Info("status update matched no message",
			"provider_message_id", payload.ProviderMessageID,
			"status", payload.Status)
	}
	return nil
}

// completionThreshold is the terminal-outcome share past which a
// campaign is reported complete.
const completionThreshold = 0.95

func (w *Worker) handleUpdateMetrics(ctx context.Context, task *queue.Task) error {
	var payload queue.MetricsUpdatePayload
	if err := task.DecodePayload(&payload); err != nil {
		w.logger.Error("dropping malformed metrics task", "task_id", task.ID, "error", err)
		return nil
	}

	counts, err := w.store.CampaignCounts(ctx, payload.CampaignID)
	if err != nil {
		return err
	}

	total, settled := 0, 0
	for status, n := range counts {
		w.metrics.RecordCampaignMessages(ctx, payload.CampaignID, string(status), n)
		total += n
		if !status.Claimable() {
			settled += n
		}
	}

	if total > 0 && float64(settled)/float64(total) >= completionThreshold {
		w.logger.Info("campaign complete",
			"campaign_id", payload.CampaignID,
			"total", total,
			"settled", settled)
	}
	return nil
}
