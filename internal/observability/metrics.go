package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/sends take
// - Traffic: Request/send throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (in-flight sends, open breakers)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Send metrics (Latency, Traffic, Errors, Saturation)
	SendDuration    metric.Float64Histogram
	SendsTotal      metric.Int64Counter
	SendErrorsTotal metric.Int64Counter
	SendsActive     metric.Int64UpDownCounter
	SendRetries     metric.Int64Counter
	DeadLetters     metric.Int64Counter

	// Admission and protection metrics
	RateLimitRejections metric.Int64Counter
	BreakerRejections   metric.Int64Counter
	BreakersOpen        metric.Int64Gauge

	// Campaign progress
	CampaignMessages metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("dispatch")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Send metrics
	m.SendDuration, err = meter.Float64Histogram(
		"send_duration_seconds",
		metric.WithDescription("Downstream send latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SendsTotal, err = meter.Int64Counter(
		"sends_total",
		metric.WithDescription("Total number of send attempts"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SendErrorsTotal, err = meter.Int64Counter(
		"send_errors_total",
		metric.WithDescription("Total number of failed send attempts"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SendsActive, err = meter.Int64UpDownCounter(
		"sends_active",
		metric.WithDescription("Number of sends currently in flight (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SendRetries, err = meter.Int64Counter(
		"send_retries_total",
		metric.WithDescription("Total send attempts requeued for retry"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DeadLetters, err = meter.Int64Counter(
		"dead_letters_total",
		metric.WithDescription("Total messages routed to the dead-letter store"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Admission and protection metrics
	m.RateLimitRejections, err = meter.Int64Counter(
		"rate_limit_rejections_total",
		metric.WithDescription("Total admissions denied by the rate limiter"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.BreakerRejections, err = meter.Int64Counter(
		"circuit_breaker_rejections_total",
		metric.WithDescription("Total calls rejected by an open circuit breaker"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.BreakersOpen, err = meter.Int64Gauge(
		"circuit_breakers_open",
		metric.WithDescription("Number of circuit breakers currently open (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CampaignMessages, err = meter.Int64Gauge(
		"campaign_messages",
		metric.WithDescription("Campaign message counts by status"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordSendStarted records a send attempt entering flight.
func (m *Metrics) RecordSendStarted(ctx context.Context, template string) {
	attrs := metric.WithAttributes(templateAttr(template))
	m.SendsTotal.Add(ctx, 1, attrs)
	m.SendsActive.Add(ctx, 1, attrs)
}

// RecordSendCompleted records a send attempt leaving flight.
func (m *Metrics) RecordSendCompleted(ctx context.Context, template string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(templateAttr(template), successAttr(success))
	m.SendDuration.Record(ctx, durationSeconds, attrs)
	m.SendsActive.Add(ctx, -1, metric.WithAttributes(templateAttr(template)))

	if !success {
		m.SendErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordSendRetry records a send attempt requeued for retry.
func (m *Metrics) RecordSendRetry(ctx context.Context, attempt int) {
	m.SendRetries.Add(ctx, 1, metric.WithAttributes(attemptAttr(attempt)))
}

// RecordDeadLetter records a message exhausting its retries.
func (m *Metrics) RecordDeadLetter(ctx context.Context, failureType string) {
	m.DeadLetters.Add(ctx, 1, metric.WithAttributes(failureTypeAttr(failureType)))
}

// RecordRateLimitRejection records a denied admission.
func (m *Metrics) RecordRateLimitRejection(ctx context.Context, class string) {
	m.RateLimitRejections.Add(ctx, 1, metric.WithAttributes(classAttr(class)))
}

// RecordBreakerRejection records a call rejected by an open breaker.
func (m *Metrics) RecordBreakerRejection(ctx context.Context, breaker string) {
	m.BreakerRejections.Add(ctx, 1, metric.WithAttributes(breakerAttr(breaker)))
}

// RecordBreakersOpen records how many breakers are open right now.
func (m *Metrics) RecordBreakersOpen(ctx context.Context, count int) {
	m.BreakersOpen.Record(ctx, int64(count))
}

// RecordCampaignMessages records a campaign's message count for a status.
func (m *Metrics) RecordCampaignMessages(ctx context.Context, campaignID, status string, count int) {
	m.CampaignMessages.Record(ctx, int64(count), metric.WithAttributes(
		campaignAttr(campaignID),
		statusNameAttr(status),
	))
}
