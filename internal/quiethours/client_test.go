package quiethours

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Check(t *testing.T) {
	t.Parallel()

	windowEnd := time.Date(2025, 1, 8, 17, 45, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req windowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Region != "riyadh" {
			t.Errorf("expected region riyadh, got %q", req.Region)
		}
		json.NewEncoder(w).Encode(WindowInfo{
			InWindow:   true,
			WindowEnd:  windowEnd,
			WindowName: "asr",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	info, err := c.Check(context.Background(), time.Now(), "riyadh")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !info.InWindow || info.WindowName != "asr" {
		t.Errorf("unexpected info: %+v", info)
	}
	if !info.WindowEnd.Equal(windowEnd) {
		t.Errorf("expected window end %v, got %v", windowEnd, info.WindowEnd)
	}
}

func TestClient_Check_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Check(context.Background(), time.Now(), "riyadh")
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if IsClientError(err) {
		t.Error("502 is not a client error")
	}

	he, ok := err.(*HTTPError)
	if !ok || he.StatusCode != http.StatusBadGateway {
		t.Errorf("expected HTTPError 502, got %v", err)
	}
}

func TestIsClientError(t *testing.T) {
	t.Parallel()

	if !IsClientError(&HTTPError{StatusCode: 404}) {
		t.Error("404 should be a client error")
	}
	if IsClientError(&HTTPError{StatusCode: 500}) {
		t.Error("500 is not a client error")
	}
	if IsClientError(context.DeadlineExceeded) {
		t.Error("non-HTTPError is not a client error")
	}
}
