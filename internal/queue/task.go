// Package queue implements delayed task dispatch over RabbitMQ. Tasks
// wait on a TTL queue that dead-letters into the work queue, so delivery
// happens when the per-message TTL expires rather than at publish time.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the task union. Payload decoding switches on it.
type Kind string

const (
	KindSendMessage         Kind = "send_message"
	KindProcessStatusUpdate Kind = "process_status_update"
	KindUpdateMetrics       Kind = "update_metrics"
)

// Task is the wire envelope for a unit of work. ID doubles as the
// dispatch handle stored on the message row; a consumer whose task ID no
// longer matches the row knows the task was superseded.
type Task struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Payload    json.RawMessage `json:"payload"`
}

// SendMessagePayload triggers the send of one scheduled message.
type SendMessagePayload struct {
	MessageID string `json:"messageId"`
}

// StatusUpdatePayload carries a provider delivery status event.
type StatusUpdatePayload struct {
	ProviderMessageID string    `json:"providerMessageId"`
	Status            string    `json:"status"`
	OccurredAt        time.Time `json:"occurredAt,omitzero"`
}

// MetricsUpdatePayload asks for a recount of one campaign's progress.
type MetricsUpdatePayload struct {
	CampaignID string `json:"campaignId"`
}

// NewTask wraps a payload in a fresh envelope.
func NewTask(kind Kind, payload any) (*Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return &Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		EnqueuedAt: time.Now().UTC(),
		Payload:    body,
	}, nil
}

// Retry clones the task for another attempt, keeping the ID so the row's
// handle stays valid across retries and the original enqueue time so
// dead-letter records can report when trouble started.
func (t *Task) Retry() *Task {
	return &Task{
		ID:         t.ID,
		Kind:       t.Kind,
		Attempt:    t.Attempt + 1,
		EnqueuedAt: t.EnqueuedAt,
		Payload:    t.Payload,
	}
}

// DecodePayload unmarshals the payload into dst, which must match the
// task's kind.
func (t *Task) DecodePayload(dst any) error {
	if err := json.Unmarshal(t.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", t.Kind, err)
	}
	return nil
}
