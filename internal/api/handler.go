// Package api provides the HTTP API handlers and routing for the
// dispatch service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"crmres/internal/apperrors"
	"crmres/internal/campaign"
	"crmres/internal/health"
	"crmres/internal/message"
	"crmres/internal/queue"
	"crmres/internal/ratelimit"
	"crmres/pkg/circuitbreaker"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// scheduler is the campaign scheduling surface the API exposes.
type scheduler interface {
	Schedule(ctx context.Context, req *campaign.ScheduleRequest) (*campaign.ScheduleResponse, error)
	Cancel(ctx context.Context, campaignID string) (int64, error)
	Reschedule(ctx context.Context, messageID string, newTime time.Time) (*message.DispatchHandle, error)
}

// taskPublisher hands webhook status updates to the work queue.
type taskPublisher interface {
	Publish(ctx context.Context, task *queue.Task, delay time.Duration) error
}

// deadLetterLister exposes permanently failed sends for inspection.
type deadLetterLister interface {
	ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*message.DeadLetter, error)
}

// Handler contains HTTP handlers for the dispatch API
type Handler struct {
	scheduler   scheduler
	publisher   taskPublisher
	deadLetters deadLetterLister
	limiter     *ratelimit.Limiter
	breakers    *circuitbreaker.Registry
	health      *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(s scheduler, publisher taskPublisher, deadLetters deadLetterLister, limiter *ratelimit.Limiter, breakers *circuitbreaker.Registry, healthChecker *health.Checker) *Handler {
	return &Handler{
		scheduler:   s,
		publisher:   publisher,
		deadLetters: deadLetters,
		limiter:     limiter,
		breakers:    breakers,
		health:      healthChecker,
	}
}

// ScheduleCampaign handles POST /v1/campaigns/{campaignId}/schedule
func (h *Handler) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	campaignID := r.PathValue("campaignId")
	if campaignID == "" {
		h.writeError(w, http.StatusBadRequest, "Campaign ID is required")
		return
	}

	var req campaign.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.CampaignID = campaignID

	resp, err := h.scheduler.Schedule(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, resp)
}

// CancelCampaign handles POST /v1/campaigns/{campaignId}/cancel
func (h *Handler) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("campaignId")
	if campaignID == "" {
		h.writeError(w, http.StatusBadRequest, "Campaign ID is required")
		return
	}

	revoked, err := h.scheduler.Cancel(r.Context(), campaignID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"revoked": revoked})
}

// rescheduleRequest is the body of a message reschedule call.
type rescheduleRequest struct {
	SendTime time.Time `json:"sendTime"`
}

// RescheduleMessage handles POST /v1/messages/{messageId}/reschedule
func (h *Handler) RescheduleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	messageID := r.PathValue("messageId")
	if messageID == "" {
		h.writeError(w, http.StatusBadRequest, "Message ID is required")
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.SendTime.IsZero() {
		h.writeError(w, http.StatusBadRequest, "sendTime is required")
		return
	}

	handle, err := h.scheduler.Reschedule(r.Context(), messageID, req.SendTime)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, handle)
}

// statusWebhook is one provider delivery-status callback.
type statusWebhook struct {
	ProviderMessageID string    `json:"providerMessageId"`
	Status            string    `json:"status"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// StatusWebhook handles POST /webhooks/status. The update is queued for
// the worker rather than applied inline so a storage hiccup never makes
// the provider retry the callback.
func (h *Handler) StatusWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var hook statusWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if hook.ProviderMessageID == "" || hook.Status == "" {
		h.writeError(w, http.StatusBadRequest, "providerMessageId and status are required")
		return
	}

	task, err := queue.NewTask(queue.KindProcessStatusUpdate, queue.StatusUpdatePayload{
		ProviderMessageID: hook.ProviderMessageID,
		Status:            hook.Status,
		OccurredAt:        hook.OccurredAt,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.publisher.Publish(r.Context(), task, 0); err != nil {
		h.handleError(w, r, apperrors.Unavailable("queue", "failed to enqueue status update"))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// defaultDeadLetterLimit bounds one dead-letter listing page.
const defaultDeadLetterLimit = 100

// CampaignDeadLetters handles GET /v1/campaigns/{campaignId}/dead-letters
func (h *Handler) CampaignDeadLetters(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("campaignId")
	if campaignID == "" {
		h.writeError(w, http.StatusBadRequest, "Campaign ID is required")
		return
	}

	limit := defaultDeadLetterLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	letters, err := h.deadLetters.ListByCampaign(r.Context(), campaignID, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if letters == nil {
		letters = []*message.DeadLetter{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"campaignId":  campaignID,
		"deadLetters": letters,
	})
}

// RateLimitStats handles GET /v1/rate-limit/stats/{identifier}
func (h *Handler) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	if identifier == "" {
		h.writeError(w, http.StatusBadRequest, "Identifier is required")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"identifier": identifier,
		"usage":      h.limiter.Usage(identifier),
	})
}

// BreakerStats handles GET /v1/circuit-breaker/stats
func (h *Handler) BreakerStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.breakers.Stats())
}

// BreakerReset handles POST /v1/circuit-breaker/reset.
// Query params: name (optional; resets all breakers when absent)
func (h *Handler) BreakerReset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		h.breakers.Reset()
		h.writeJSON(w, http.StatusOK, map[string]string{"reset": "all"})
		return
	}

	if !h.breakers.ResetBreaker(name) {
		h.writeError(w, http.StatusNotFound, "Unknown circuit breaker: "+name)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"reset": name})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if dependencies (Postgres, RabbitMQ) are unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
