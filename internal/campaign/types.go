package campaign

import (
	"time"

	"crmres/internal/apperrors"
	"crmres/internal/message"
)

// ScheduleRequest asks for one message per recipient, constrained to an
// optional campaign window.
type ScheduleRequest struct {
	CampaignID  string              `json:"campaignId"`
	Recipients  []message.Recipient `json:"recipients"`
	Template    string              `json:"template"`
	WindowStart *time.Time          `json:"windowStart,omitempty"`
	WindowEnd   *time.Time          `json:"windowEnd,omitempty"`
}

// Validate checks the request's required fields.
func (r *ScheduleRequest) Validate() error {
	if r.CampaignID == "" {
		return apperrors.Validation("campaignId", "campaignId is required")
	}
	if r.Template == "" {
		return apperrors.Validation("template", "template is required")
	}
	if len(r.Recipients) == 0 {
		return apperrors.Validation("recipients", "at least one recipient is required")
	}
	for _, rec := range r.Recipients {
		if rec.Address == "" {
			return apperrors.Validation("recipients", "recipient address is required")
		}
		if rec.EventTime.IsZero() {
			return apperrors.Validation("recipients", "recipient eventTime is required")
		}
	}
	if r.WindowStart != nil && r.WindowEnd != nil && r.WindowEnd.Before(*r.WindowStart) {
		return apperrors.Validation("windowEnd", "windowEnd precedes windowStart")
	}
	return nil
}

// ScheduleResponse reports what was scheduled and what fell outside the
// campaign window.
type ScheduleResponse struct {
	ScheduledCount int                      `json:"scheduledCount"`
	SkippedCount   int                      `json:"skippedCount"`
	Handles        []message.DispatchHandle `json:"handles"`
}
