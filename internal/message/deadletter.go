package message

import "time"

// Failure classes recorded on dead-letter rows.
const (
	FailureTransient  = "transient"  // retries exhausted
	FailurePermanent  = "permanent"  // terminal error, never retried
	FailureValidation = "validation" // malformed payload or missing template
)

// DeadLetter is the durable record of a send that exhausted its retries
// or failed terminally. Served read-only through the inspection endpoint;
// the engine itself never replays from it.
type DeadLetter struct {
	ID            string    `json:"id"`
	MessageID     string    `json:"messageId"`
	CampaignID    string    `json:"campaignId"`
	Address       string    `json:"address"`
	Attempts      int       `json:"attempts"`
	FailureType   string    `json:"failureType"`
	LastError     string    `json:"lastError,omitempty"`
	FirstFailedAt time.Time `json:"firstFailedAt"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
}
