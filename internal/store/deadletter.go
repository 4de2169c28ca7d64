package store

import (
	"context"
	"database/sql"
	"fmt"

	"crmres/internal/message"
)

// DeadLetterStore persists permanently failed sends for inspection.
type DeadLetterStore struct {
	db *sql.DB
}

// Create records a dead letter. Duplicate records for the same message
// are tolerated upstream; this is append-only.
func (s *DeadLetterStore) Create(ctx context.Context, dl *message.DeadLetter) error {
	query := `
		INSERT INTO dead_letters
			(id, message_id, campaign_id, address, attempts, failure_type,
			 last_error, first_failed_at, last_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		dl.ID, dl.MessageID, dl.CampaignID, dl.Address, dl.Attempts,
		dl.FailureType, dl.LastError, dl.FirstFailedAt, dl.LastAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dead letter: %w", err)
	}
	return nil
}

// ListByCampaign returns the dead letters of a campaign, newest first.
func (s *DeadLetterStore) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*message.DeadLetter, error) {
	query := `
		SELECT id, message_id, campaign_id, address, attempts, failure_type,
		       last_error, first_failed_at, last_attempt_at
		FROM dead_letters
		WHERE campaign_id = $1
		ORDER BY last_attempt_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*message.DeadLetter
	for rows.Next() {
		var dl message.DeadLetter
		var lastError sql.NullString
		err := rows.Scan(
			&dl.ID, &dl.MessageID, &dl.CampaignID, &dl.Address, &dl.Attempts,
			&dl.FailureType, &lastError, &dl.FirstFailedAt, &dl.LastAttemptAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.LastError = lastError.String
		letters = append(letters, &dl)
	}
	return letters, rows.Err()
}
