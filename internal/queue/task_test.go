package queue

import (
	"encoding/json"
	"testing"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	task, err := NewTask(KindSendMessage, SendMessagePayload{MessageID: "msg-1"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if task.ID == "" {
		t.Error("expected a generated task id")
	}
	if task.Attempt != 0 {
		t.Errorf("expected attempt 0, got %d", task.Attempt)
	}

	var payload SendMessagePayload
	if err := task.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.MessageID != "msg-1" {
		t.Errorf("expected message id msg-1, got %q", payload.MessageID)
	}
}

func TestTask_Retry(t *testing.T) {
	t.Parallel()

	task, err := NewTask(KindSendMessage, SendMessagePayload{MessageID: "msg-1"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	retry := task.Retry().Retry()
	if retry.Attempt != 2 {
		t.Errorf("expected attempt 2 after two retries, got %d", retry.Attempt)
	}
	if retry.ID != task.ID {
		t.Error("retry must keep the original task id so the row handle stays valid")
	}
	if retry.Kind != task.Kind {
		t.Errorf("retry changed kind to %s", retry.Kind)
	}
}

func TestTask_RoundTrip(t *testing.T) {
	t.Parallel()

	task, err := NewTask(KindProcessStatusUpdate, StatusUpdatePayload{
		ProviderMessageID: "wamid.123",
		Status:            "delivered",
	})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	body, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Task
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Kind != KindProcessStatusUpdate {
		t.Errorf("expected kind %s, got %s", KindProcessStatusUpdate, decoded.Kind)
	}

	var payload StatusUpdatePayload
	if err := decoded.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.ProviderMessageID != "wamid.123" || payload.Status != "delivered" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestTask_DecodePayload_WrongShape(t *testing.T) {
	t.Parallel()

	task := &Task{Kind: KindSendMessage, Payload: json.RawMessage(`"not an object"`)}
	var payload SendMessagePayload
	if err := task.DecodePayload(&payload); err == nil {
		t.Error("expected decode error for mismatched payload shape")
	}
}
