package apperror

import "net/http"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SeverityFor derives telemetry severity from a status and category.
// Auth failures in the 4xx range escalate to critical since they may indicate abuse.
func SeverityFor(status int, category Category) Severity {
	switch {
	case status >= http.StatusInternalServerError:
		return SeverityCritical
	case status >= http.StatusBadRequest && category == CategoryAuth:
		return SeverityCritical
	case status >= http.StatusBadRequest:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
