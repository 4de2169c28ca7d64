package worker

import (
	"context"
	"time"

	"crmres/internal/queue"
)

const (
	dueSweepInterval     = 5 * time.Minute
	metricsSweepInterval = 10 * time.Minute
	dueSweepBatch        = 100
)

// RunDueSweep periodically re-enqueues messages stuck in scheduled
// status past their send time. These are rows whose original task
// publish failed; the sweep closes the gap between row insert and task
// delivery.
func (w *Worker) RunDueSweep(ctx context.Context) {
	ticker := time.NewTicker(dueSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SweepDue(ctx); err != nil {
				w.logger.Error("due-message sweep failed", "error", err)
			}
		}
	}
}

// SweepDue runs one pass of the due-message sweep.
func (w *Worker) SweepDue(ctx context.Context) error {
	due, err := w.store.DueScheduled(ctx, w.now(), dueSweepBatch)
	if err != nil {
		return err
	}

	for _, m := range due {
		task, err := queue.NewTask(queue.KindSendMessage, queue.SendMessagePayload{MessageID: m.ID})
		if err != nil {
			return err
		}
		if err := w.publisher.Publish(ctx, task, 0); err != nil {
			w.logger.Error("failed to re-enqueue due message",
				"message_id", m.ID, "error", err)
			continue
		}
		if err := w.store.SetQueued(ctx, m.ID, task.ID); err != nil {
			w.logger.Error("failed to record re-enqueued task handle",
				"message_id", m.ID, "error", err)
			continue
		}
		w.logger.Info("re-enqueued overdue message",
			"message_id", m.ID, "send_time", m.SendTime)
	}
	return nil
}

// RunMetricsSweep periodically refreshes per-campaign progress metrics
// by publishing an update task per active campaign.
func (w *Worker) RunMetricsSweep(ctx context.Context) {
	ticker := time.NewTicker(metricsSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SweepMetrics(ctx); err != nil {
				w.logger.Error("campaign metrics sweep failed", "error", err)
			}
		}
	}
}

// SweepMetrics runs one pass of the campaign metrics sweep. It also
// refreshes the open-breaker gauge while it is here.
func (w *Worker) SweepMetrics(ctx context.Context) error {
	w.metrics.RecordBreakersOpen(ctx, w.breakers.OpenCount())

	ids, err := w.store.ActiveCampaignIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		task, err := queue.NewTask(queue.KindUpdateMetrics, queue.MetricsUpdatePayload{CampaignID: id})
		if err != nil {
			return err
		}
		if err := w.publisher.Publish(ctx, task, 0); err != nil {
			w.logger.Error("failed to enqueue metrics task",
				"campaign_id", id, "error", err)
		}
	}
	return nil
}
