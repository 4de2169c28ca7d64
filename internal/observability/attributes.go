// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod      = "method"
	attrPath        = "path"
	attrStatus      = "status"
	attrTemplate    = "template"
	attrSuccess     = "success"
	attrAttempt     = "attempt"
	attrFailureType = "failure_type"
	attrClass       = "class"
	attrBreaker     = "breaker"
	attrCampaign    = "campaign_id"
	attrStatusName  = "message_status"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/campaigns/abc123/schedule -> /v1/campaigns/{campaignId}/schedule
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func templateAttr(template string) attribute.KeyValue {
	return attribute.String(attrTemplate, template)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func attemptAttr(attempt int) attribute.KeyValue {
	return attribute.Int(attrAttempt, attempt)
}

func failureTypeAttr(failureType string) attribute.KeyValue {
	return attribute.String(attrFailureType, failureType)
}

func classAttr(class string) attribute.KeyValue {
	return attribute.String(attrClass, class)
}

func breakerAttr(name string) attribute.KeyValue {
	return attribute.String(attrBreaker, name)
}

func campaignAttr(id string) attribute.KeyValue {
	return attribute.String(attrCampaign, id)
}

func statusNameAttr(status string) attribute.KeyValue {
	return attribute.String(attrStatusName, status)
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	for _, p := range []struct {
		prefix, suffix, normalized string
	}{
		{"/v1/campaigns/", "/schedule", "/v1/campaigns/{campaignId}/schedule"},
		{"/v1/campaigns/", "/cancel", "/v1/campaigns/{campaignId}/cancel"},
		{"/v1/messages/", "/reschedule", "/v1/messages/{messageId}/reschedule"},
		{"/v1/rate-limit/stats/", "", "/v1/rate-limit/stats/{identifier}"},
	} {
		if strings.HasPrefix(path, p.prefix) && strings.HasSuffix(path, p.suffix) && len(path) > len(p.prefix)+len(p.suffix) {
			return p.normalized
		}
	}
	return path
}
