// Package message defines the scheduled message model and its status
// state machine.
package message

import "time"

// ScheduledMessage is the durable record of a single outbound send: when
// it should happen, how far it got, and the queue task currently driving
// it. The row is the source of truth; the task queue only triggers
// execution.
type ScheduledMessage struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaignId"`
	Address    string    `json:"address"` // recipient phone number
	Region     string    `json:"region"`
	Template   string    `json:"template"`
	SendTime   time.Time `json:"sendTime"`
	Status     Status    `json:"status"`

	// TaskID is the handle of the queue task that will (or did) execute
	// this message. Empty until first enqueue; replaced on reschedule, so
	// a task carrying a stale handle knows it has been revoked.
	TaskID string `json:"taskId,omitempty"`

	// ProviderMessageID correlates delivery status webhooks back to this
	// message. Set on successful send.
	ProviderMessageID string `json:"providerMessageId,omitempty"`

	Attempts   int       `json:"attempts"`
	FailReason string    `json:"failReason,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Recipient is one entry of a campaign scheduling request.
type Recipient struct {
	Address   string    `json:"address"`
	EventTime time.Time `json:"eventTime"` // e.g. restaurant visit timestamp
	Region    string    `json:"region,omitempty"`
}

// DispatchHandle is returned for each scheduled recipient.
type DispatchHandle struct {
	MessageID string    `json:"messageId"`
	TaskID    string    `json:"taskId"`
	SendTime  time.Time `json:"sendTime"`
	Address   string    `json:"address"`
}
