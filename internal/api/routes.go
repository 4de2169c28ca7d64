package api

import (
	"net/http"

	"crmres/internal/health"
	"crmres/internal/observability"
	"crmres/internal/ratelimit"
	"crmres/pkg/circuitbreaker"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Scheduler     scheduler
	Publisher     taskPublisher
	DeadLetters   deadLetterLister
	Limiter       *ratelimit.Limiter
	Breakers      *circuitbreaker.Registry
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Scheduler, cfg.Publisher, cfg.DeadLetters, cfg.Limiter, cfg.Breakers, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Provider callbacks - no bearer auth (verified upstream at the edge)
	mux.HandleFunc("POST /webhooks/status", handler.StatusWebhook)

	// Campaign and operations endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	authed := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}
	mux.Handle("POST /v1/campaigns/{campaignId}/schedule", authed(handler.ScheduleCampaign))
	mux.Handle("POST /v1/campaigns/{campaignId}/cancel", authed(handler.CancelCampaign))
	mux.Handle("POST /v1/messages/{messageId}/reschedule", authed(handler.RescheduleMessage))
	mux.Handle("GET /v1/campaigns/{campaignId}/dead-letters", authed(handler.CampaignDeadLetters))
	mux.Handle("GET /v1/rate-limit/stats/{identifier}", authed(handler.RateLimitStats))
	mux.Handle("GET /v1/circuit-breaker/stats", authed(handler.BreakerStats))
	mux.Handle("POST /v1/circuit-breaker/reset", authed(handler.BreakerReset))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Limiter != nil {
		h = RateLimitMiddleware(cfg.Limiter, cfg.Metrics)(h)
	}
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
