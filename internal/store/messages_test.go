package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"crmres/internal/apperrors"
	"crmres/internal/message"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func messageRows(m *message.ScheduledMessage) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "campaign_id", "address", "region", "template", "send_time",
		"status", "task_id", "provider_message_id", "attempts", "fail_reason",
		"created_at", "updated_at",
	}).AddRow(
		m.ID, m.CampaignID, m.Address, m.Region, m.Template, m.SendTime,
		m.Status, m.TaskID, m.ProviderMessageID, m.Attempts, m.FailReason,
		m.CreatedAt, m.UpdatedAt,
	)
}

func TestMessageStore_Create(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	m := &message.ScheduledMessage{
		ID:         "msg-1",
		CampaignID: "camp-1",
		Address:    "+254700000001",
		Region:     "nairobi",
		Template:   "visit_followup",
		SendTime:   now.Add(3 * time.Hour),
		Status:     message.StatusScheduled,
	}

	mock.ExpectQuery("INSERT INTO scheduled_messages").
		WithArgs(m.ID, m.CampaignID, m.Address, m.Region, m.Template, m.SendTime, m.Status).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	if err := st.Messages.Create(context.Background(), m); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !m.CreatedAt.Equal(now) {
		t.Errorf("expected CreatedAt to be populated from RETURNING")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMessageStore_GetByID(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	want := &message.ScheduledMessage{
		ID:         "msg-1",
		CampaignID: "camp-1",
		Address:    "+254700000001",
		Region:     "nairobi",
		Template:   "visit_followup",
		SendTime:   now,
		Status:     message.StatusQueued,
		TaskID:     "task-abc",
		Attempts:   2,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mock.ExpectQuery("SELECT .+ FROM scheduled_messages WHERE id").
		WithArgs("msg-1").
		WillReturnRows(messageRows(want))

	got, err := st.Messages.GetByID(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.TaskID != "task-abc" || got.Status != message.StatusQueued || got.Attempts != 2 {
		t.Errorf("unexpected message: %+v", got)
	}
}

func TestMessageStore_GetByID_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM scheduled_messages WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := st.Messages.GetByID(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestMessageStore_SetQueued(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("msg-1", "task-new").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.Messages.SetQueued(context.Background(), "msg-1", "task-new"); err != nil {
		t.Fatalf("SetQueued failed: %v", err)
	}
}

func TestMessageStore_SetQueued_AlreadyFinished(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("msg-1", "task-new").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.Messages.SetQueued(context.Background(), "msg-1", "task-new")
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict error, got %v", err)
	}
}

func TestMessageStore_Reschedule(t *testing.T) {
	st, mock := newMockStore(t)

	newTime := time.Now().Add(6 * time.Hour)
	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("msg-1", newTime, "task-v2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.Messages.Reschedule(context.Background(), "msg-1", newTime, "task-v2"); err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
}

func TestMessageStore_CancelByCampaign(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := st.Messages.CancelByCampaign(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("CancelByCampaign failed: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 cancelled, got %d", n)
	}
}

func TestMessageStore_MarkSent(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("msg-1", "wamid.123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := st.Messages.MarkSent(context.Background(), "msg-1", "wamid.123")
	if err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if !claimed {
		t.Error("expected MarkSent to claim the message")
	}
}

func TestMessageStore_MarkSent_LostClaim(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("msg-1", "wamid.123").
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := st.Messages.MarkSent(context.Background(), "msg-1", "wamid.123")
	if err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if claimed {
		t.Error("expected lost claim when no row matched")
	}
}

func TestMessageStore_AdvanceByProviderID(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("wamid.123", message.StatusDelivered).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := st.Messages.AdvanceByProviderID(context.Background(), "wamid.123", message.StatusDelivered)
	if err != nil {
		t.Fatalf("AdvanceByProviderID failed: %v", err)
	}
	if !moved {
		t.Error("expected webhook to advance the message")
	}
}

func TestMessageStore_AdvanceByProviderID_UnknownID(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("wamid.unknown", message.StatusResponded).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := st.Messages.AdvanceByProviderID(context.Background(), "wamid.unknown", message.StatusResponded)
	if err != nil {
		t.Fatalf("AdvanceByProviderID failed: %v", err)
	}
	if moved {
		t.Error("unknown provider id must be a no-op")
	}
}

func TestMessageStore_AdvanceByProviderID_InvalidTarget(t *testing.T) {
	st, _ := newMockStore(t)

	_, err := st.Messages.AdvanceByProviderID(context.Background(), "wamid.123", message.StatusQueued)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestMessageStore_DueScheduled(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	m := &message.ScheduledMessage{
		ID: "msg-1", CampaignID: "camp-1", Address: "+254700000001",
		Region: "nairobi", Template: "visit_followup",
		SendTime: now.Add(-time.Minute), Status: message.StatusScheduled,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery("SELECT .+ FROM scheduled_messages").
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(messageRows(m))

	due, err := st.Messages.DueScheduled(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("DueScheduled failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != "msg-1" {
		t.Errorf("unexpected due messages: %+v", due)
	}
}

func TestMessageStore_CampaignCounts(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("sent", 80).
			AddRow("delivered", 15).
			AddRow("failed", 5))

	counts, err := st.Messages.CampaignCounts(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("CampaignCounts failed: %v", err)
	}
	if counts[message.StatusSent] != 80 || counts[message.StatusFailed] != 5 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestDeadLetterStore_Create(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	dl := &message.DeadLetter{
		ID:            "dl-1",
		MessageID:     "msg-1",
		CampaignID:    "camp-1",
		Address:       "+254700000001",
		Attempts:      5,
		FailureType:   message.FailureTransient,
		LastError:     "connection reset",
		FirstFailedAt: now.Add(-time.Hour),
		LastAttemptAt: now,
	}

	mock.ExpectExec("INSERT INTO dead_letters").
		WithArgs(dl.ID, dl.MessageID, dl.CampaignID, dl.Address, dl.Attempts,
			dl.FailureType, dl.LastError, dl.FirstFailedAt, dl.LastAttemptAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.DeadLetters.Create(context.Background(), dl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeadLetterStore_ListByCampaign(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM dead_letters").
		WithArgs("camp-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "message_id", "campaign_id", "address", "attempts",
			"failure_type", "last_error", "first_failed_at", "last_attempt_at",
		}).AddRow("dl-1", "msg-1", "camp-1", "+254700000001", 5,
			message.FailureTransient, "timeout", now, now))

	letters, err := st.DeadLetters.ListByCampaign(context.Background(), "camp-1", 50)
	if err != nil {
		t.Fatalf("ListByCampaign failed: %v", err)
	}
	if len(letters) != 1 || letters[0].LastError != "timeout" {
		t.Errorf("unexpected dead letters: %+v", letters)
	}
}
