package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crmres/internal/apperrors"
	"crmres/internal/message"
)

// MessageStore persists scheduled messages. Status updates are guarded by
// WHERE clauses on the current status so concurrent workers cannot regress
// a message (at-least-once queue delivery makes duplicate claims normal).
type MessageStore struct {
	db *sql.DB
}

const messageColumns = `
	id, campaign_id, address, region, template, send_time, status,
	task_id, provider_message_id, attempts, fail_reason, created_at, updated_at
`

// Create inserts a new message in scheduled status.
func (s *MessageStore) Create(ctx context.Context, m *message.ScheduledMessage) error {
	query := `
		INSERT INTO scheduled_messages
			(id, campaign_id, address, region, template, send_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		m.ID, m.CampaignID, m.Address, m.Region, m.Template, m.SendTime, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByID retrieves a message by id.
func (s *MessageStore) GetByID(ctx context.Context, id string) (*message.ScheduledMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM scheduled_messages WHERE id = $1`

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("message", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	return m, nil
}

// SetQueued records the task handle and flips the message to queued.
// Used both at initial enqueue and by the due-message sweep.
func (s *MessageStore) SetQueued(ctx context.Context, id, taskID string) error {
	query := `
		UPDATE scheduled_messages
		SET status = 'queued', task_id = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'queued')
	`

	res, err := s.db.ExecContext(ctx, query, id, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark message queued: %w", err)
	}
	return requireRow(res, "message", id)
}

// Reschedule replaces the send time and task handle, parking the row in
// scheduled until the new task is published. Only messages still waiting
// to execute can be rescheduled.
func (s *MessageStore) Reschedule(ctx context.Context, id string, sendTime time.Time, taskID string) error {
	query := `
		UPDATE scheduled_messages
		SET send_time = $2, task_id = $3, status = 'scheduled', updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'queued')
	`

	res, err := s.db.ExecContext(ctx, query, id, sendTime, taskID)
	if err != nil {
		return fmt.Errorf("failed to reschedule message: %w", err)
	}
	return requireRow(res, "message", id)
}

// CancelByCampaign marks every revocable message of a campaign cancelled
// and returns how many were affected. Messages already claimed past
// queued keep their terminal status.
func (s *MessageStore) CancelByCampaign(ctx context.Context, campaignID string) (int64, error) {
	query := `
		UPDATE scheduled_messages
		SET status = 'cancelled', updated_at = NOW()
		WHERE campaign_id = $1 AND status IN ('scheduled', 'queued')
	`

	res, err := s.db.ExecContext(ctx, query, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel campaign messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cancelled messages: %w", err)
	}
	return n, nil
}

// RecordAttempt bumps the attempt counter for a message.
func (s *MessageStore) RecordAttempt(ctx context.Context, id string) error {
	query := `
		UPDATE scheduled_messages
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// MarkSent advances a claimable message to sent, storing the provider
// message id for later webhook correlation. Returns false when the
// message was concurrently finished by another worker (no-op claim).
func (s *MessageStore) MarkSent(ctx context.Context, id, providerMessageID string) (bool, error) {
	query := `
		UPDATE scheduled_messages
		SET status = 'sent', provider_message_id = $2, fail_reason = '', updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'queued')
	`

	res, err := s.db.ExecContext(ctx, query, id, providerMessageID)
	if err != nil {
		return false, fmt.Errorf("failed to mark message sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check sent update: %w", err)
	}
	return n > 0, nil
}

// MarkFailed advances a claimable message to failed with a reason code.
func (s *MessageStore) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE scheduled_messages
		SET status = 'failed', fail_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'queued')
	`

	if _, err := s.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	return nil
}

// AdvanceByProviderID moves a sent message to delivered or responded when
// a status webhook arrives. Unknown provider ids and out-of-order webhooks
// affect nothing.
func (s *MessageStore) AdvanceByProviderID(ctx context.Context, providerMessageID string, to message.Status) (bool, error) {
	var from string
	switch to {
	case message.StatusDelivered:
		from = `('sent')`
	case message.StatusResponded:
		from = `('sent', 'delivered')`
	default:
		return false, apperrors.Validation("status", fmt.Sprintf("cannot advance to %q via webhook", to))
	}

	query := `
		UPDATE scheduled_messages
		SET status = $2, updated_at = NOW()
		WHERE provider_message_id = $1 AND status IN ` + from

	res, err := s.db.ExecContext(ctx, query, providerMessageID, to)
	if err != nil {
		return false, fmt.Errorf("failed to advance message status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check status advance: %w", err)
	}
	return n > 0, nil
}

// DueScheduled lists messages still in scheduled status whose send time
// has passed the cutoff. These fell through the crack between the row
// write and the task publish and need re-enqueueing.
func (s *MessageStore) DueScheduled(ctx context.Context, cutoff time.Time, limit int) ([]*message.ScheduledMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM scheduled_messages
		WHERE status = 'scheduled' AND send_time <= $1
		ORDER BY send_time
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due messages: %w", err)
	}
	defer rows.Close()

	var messages []*message.ScheduledMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CampaignCounts returns the number of messages per status for a campaign.
func (s *MessageStore) CampaignCounts(ctx context.Context, campaignID string) (map[message.Status]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM scheduled_messages
		WHERE campaign_id = $1
		GROUP BY status
	`

	rows, err := s.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to count campaign messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[message.Status]int)
	for rows.Next() {
		var status message.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan campaign counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ActiveCampaignIDs lists campaigns that still have messages waiting to
// execute.
func (s *MessageStore) ActiveCampaignIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT campaign_id
		FROM scheduled_messages
		WHERE status IN ('scheduled', 'queued')
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*message.ScheduledMessage, error) {
	var m message.ScheduledMessage
	var taskID, providerID, failReason sql.NullString

	err := row.Scan(
		&m.ID, &m.CampaignID, &m.Address, &m.Region, &m.Template,
		&m.SendTime, &m.Status, &taskID, &providerID, &m.Attempts,
		&failReason, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.TaskID = taskID.String
	m.ProviderMessageID = providerID.String
	m.FailReason = failReason.String
	return &m, nil
}

func requireRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return apperrors.Conflict(resource, id, fmt.Sprintf("%s %s is not in an updatable status", resource, id))
	}
	return nil
}
