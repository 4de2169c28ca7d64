package health

import (
	"context"
	"errors"
	"testing"
)

type readyFunc func(ctx context.Context) error

func (f readyFunc) Ready(ctx context.Context) error { return f(ctx) }

func healthy() ReadinessChecker {
	return readyFunc(func(ctx context.Context) error { return nil })
}

func unhealthy(msg string) ReadinessChecker {
	return readyFunc(func(ctx context.Context) error { return errors.New(msg) })
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_AllHealthy(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]ReadinessChecker{
		"postgres": healthy(),
		"rabbitmq": healthy(),
	})

	response := checker.Readiness(context.Background())

	if !response.IsHealthy() {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
	if len(response.Checks) != 2 {
		t.Errorf("Expected 2 checks, got %d", len(response.Checks))
	}
}

func TestChecker_Readiness_OneDependencyDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]ReadinessChecker{
		"postgres": healthy(),
		"rabbitmq": unhealthy("connection refused"),
	})

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
	if response.Checks["rabbitmq"].Message != "connection refused" {
		t.Errorf("Expected failure message, got %q", response.Checks["rabbitmq"].Message)
	}
	if response.Checks["postgres"].Status != StatusHealthy {
		t.Error("Expected postgres check to stay healthy")
	}
}

func TestChecker_Readiness_NoDependencies(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
}

func TestChecker_SetShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]ReadinessChecker{"postgres": healthy()})

	if !checker.Readiness(context.Background()).IsHealthy() {
		t.Fatal("Expected ready before shutdown")
	}

	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy after SetShuttingDown, got %s", response.Status)
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check in response")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusHealthy, true},
		{StatusUnhealthy, false},
		{StatusDegraded, false},
	}

	for _, tt := range tests {
		r := &Response{Status: tt.status}
		if got := r.IsHealthy(); got != tt.expected {
			t.Errorf("IsHealthy(%s) = %v, want %v", tt.status, got, tt.expected)
		}
	}
}
