package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crmres/internal/apperrors"
	"crmres/internal/message"
	"crmres/internal/queue"
)

// messageStore is the persistence surface the scheduler needs.
type messageStore interface {
	Create(ctx context.Context, m *message.ScheduledMessage) error
	GetByID(ctx context.Context, id string) (*message.ScheduledMessage, error)
	SetQueued(ctx context.Context, id, taskID string) error
	Reschedule(ctx context.Context, id string, sendTime time.Time, taskID string) error
	CancelByCampaign(ctx context.Context, campaignID string) (int64, error)
}

// taskPublisher submits delayed tasks.
type taskPublisher interface {
	Publish(ctx context.Context, task *queue.Task, delay time.Duration) error
}

// Scheduler computes send times and dispatches delayed tasks. The
// message row is the source of truth; the queue task only triggers
// execution, and a task whose ID no longer matches the row's handle is
// dropped by the worker. Cancellation therefore needs no queue-side
// revocation beyond the status flip.
type Scheduler struct {
	store     messageStore
	publisher taskPublisher
	resolver  Resolver
	cfg       SendTimeConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler wires a scheduler.
func NewScheduler(store messageStore, publisher taskPublisher, resolver Resolver, cfg SendTimeConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		resolver:  resolver,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Schedule creates one message per recipient and enqueues a delayed send
// task for each. Recipients whose computed send time exceeds the
// campaign window end are skipped; times before the window start are
// raised to it.
func (s *Scheduler) Schedule(ctx context.Context, req *ScheduleRequest) (*ScheduleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp := &ScheduleResponse{}
	for _, recipient := range req.Recipients {
		sendTime := ComputeSendTime(ctx, recipient.EventTime, recipient.Region, s.resolver, s.cfg)

		if req.WindowStart != nil && sendTime.Before(*req.WindowStart) {
			sendTime = *req.WindowStart
		}
		if req.WindowEnd != nil && sendTime.After(*req.WindowEnd) {
			resp.SkippedCount++
			s.logger.Info("recipient outside campaign window, skipping",
				"campaign_id", req.CampaignID,
				"address", recipient.Address,
				"send_time", sendTime)
			continue
		}

		handle, err := s.dispatch(ctx, req, recipient, sendTime)
		if err != nil {
			return nil, err
		}
		resp.Handles = append(resp.Handles, *handle)
		resp.ScheduledCount++
	}

	s.logger.Info("campaign scheduled",
		"campaign_id", req.CampaignID,
		"scheduled", resp.ScheduledCount,
		"skipped", resp.SkippedCount)
	return resp, nil
}

func (s *Scheduler) dispatch(ctx context.Context, req *ScheduleRequest, recipient message.Recipient, sendTime time.Time) (*message.DispatchHandle, error) {
	m := &message.ScheduledMessage{
		ID:         uuid.NewString(),
		CampaignID: req.CampaignID,
		Address:    recipient.Address,
		Region:     recipient.Region,
		Template:   req.Template,
		SendTime:   sendTime,
		Status:     message.StatusScheduled,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to persist message for %s: %w", recipient.Address, err)
	}

	task, err := queue.NewTask(queue.KindSendMessage, queue.SendMessagePayload{MessageID: m.ID})
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, task, sendTime.Sub(s.now())); err != nil {
		// The row stays in scheduled status; the due-message sweep will
		// re-enqueue it.
		s.logger.Error("failed to enqueue send task, leaving for sweep",
			"message_id", m.ID, "error", err)
		return &message.DispatchHandle{
			MessageID: m.ID,
			SendTime:  sendTime,
			Address:   recipient.Address,
		}, nil
	}
	if err := s.store.SetQueued(ctx, m.ID, task.ID); err != nil {
		return nil, err
	}

	return &message.DispatchHandle{
		MessageID: m.ID,
		TaskID:    task.ID,
		SendTime:  sendTime,
		Address:   recipient.Address,
	}, nil
}

// Cancel marks every not-yet-executed message of the campaign cancelled.
// Tasks already claimed by a worker run to completion; their queue
// deliveries for cancelled rows are dropped at claim time.
func (s *Scheduler) Cancel(ctx context.Context, campaignID string) (int64, error) {
	n, err := s.store.CancelByCampaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("campaign cancelled", "campaign_id", campaignID, "revoked", n)
	return n, nil
}

// Reschedule moves a waiting message to a new send time under a fresh
// task handle. The superseded task's delivery becomes a stale claim.
func (s *Scheduler) Reschedule(ctx context.Context, messageID string, newTime time.Time) (*message.DispatchHandle, error) {
	m, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !m.Status.Claimable() {
		return nil, apperrors.Conflict("message", messageID,
			fmt.Sprintf("message %s is %s and cannot be rescheduled", messageID, m.Status))
	}

	task, err := queue.NewTask(queue.KindSendMessage, queue.SendMessagePayload{MessageID: messageID})
	if err != nil {
		return nil, err
	}
	// Update the handle before publishing: a past newTime makes the task
	// deliverable immediately, and a worker must see the new handle when
	// it claims. The row sits in scheduled until the publish lands, so a
	// broker failure leaves it for the due-message sweep.
	if err := s.store.Reschedule(ctx, messageID, newTime, task.ID); err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, task, newTime.Sub(s.now())); err != nil {
		s.logger.Error("failed to enqueue rescheduled task, leaving for sweep",
			"message_id", messageID, "error", err)
		return &message.DispatchHandle{
			MessageID: messageID,
			SendTime:  newTime,
			Address:   m.Address,
		}, nil
	}
	// A past newTime lets a worker execute the task before the queued
	// flip lands; the resulting conflict is benign.
	if err := s.store.SetQueued(ctx, messageID, task.ID); err != nil && !errors.Is(err, apperrors.ErrConflict) {
		return nil, err
	}

	s.logger.Info("message rescheduled",
		"message_id", messageID,
		"send_time", newTime,
		"task_id", task.ID)
	return &message.DispatchHandle{
		MessageID: messageID,
		TaskID:    task.ID,
		SendTime:  newTime,
		Address:   m.Address,
	}, nil
}
