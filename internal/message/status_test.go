package message

import "testing"

func TestStatus_CanTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusQueued, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusSent, false}, // must pass through queued
		{StatusQueued, StatusSent, true},
		{StatusQueued, StatusScheduled, true}, // reschedule is the only regression
		{StatusQueued, StatusFailed, true},
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusResponded, true},
		{StatusSent, StatusQueued, false},
		{StatusDelivered, StatusResponded, true},
		{StatusDelivered, StatusSent, false},
		{StatusFailed, StatusCancelled, true},
		{StatusFailed, StatusQueued, false},
		{StatusCancelled, StatusQueued, false},
		{StatusResponded, StatusDelivered, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_Claimable(t *testing.T) {
	t.Parallel()
	claimable := []Status{StatusScheduled, StatusQueued}
	for _, s := range claimable {
		if !s.Claimable() {
			t.Errorf("expected %s to be claimable", s)
		}
	}

	done := []Status{StatusSent, StatusDelivered, StatusResponded, StatusFailed, StatusCancelled}
	for _, s := range done {
		if s.Claimable() {
			t.Errorf("expected %s not to be claimable", s)
		}
	}
}

func TestStatus_IsValid(t *testing.T) {
	t.Parallel()
	if !StatusQueued.IsValid() {
		t.Error("expected queued to be valid")
	}
	if Status("unknown").IsValid() {
		t.Error("expected unknown status to be invalid")
	}
}
