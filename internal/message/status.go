package message

// Status is the lifecycle state of a scheduled message. Transitions are
// monotonic: no state regresses except queued -> scheduled during a
// reschedule.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusQueued    Status = "queued"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusResponded Status = "responded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// transitions holds the allowed forward edges of the status machine.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusQueued, StatusFailed, StatusCancelled},
	StatusQueued:    {StatusScheduled, StatusSent, StatusFailed, StatusCancelled},
	StatusSent:      {StatusDelivered, StatusResponded},
	StatusDelivered: {StatusResponded},
	StatusFailed:    {StatusCancelled},
}

// CanTransition reports whether moving from one status to another is
// allowed.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusQueued, StatusSent, StatusDelivered,
		StatusResponded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Claimable reports whether a worker picking up a task for a message in
// this status may proceed with a send. Anything else means the message
// was already handled or revoked, and the claim must be a no-op.
func (s Status) Claimable() bool {
	return s == StatusScheduled || s == StatusQueued
}
