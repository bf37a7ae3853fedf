package metrics

import (
	"strings"
	"time"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Ingestion metrics
	EventReceived(source, event string)
	EventDecodeError(source string)
	PolicyDecision(event, decision string)

	// Dispatcher metrics
	DeliveryAttemptCompleted(kind string, statusClass string, duration time.Duration)
	DeliveryOutcome(kind string, outcome string)
	ConfigError(kind string)
	QueueLatencyObserve(latency time.Duration)
	EventsInFlightIncr()
	EventsInFlightDecr()
	MessageMarkedFailed()

	// Queue metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

// Outcome constants for DeliveryOutcome metric.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// StatusClass constants for DeliveryAttemptCompleted metric.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and error text to a status class.
// Uses bounded cardinality: 2xx, 4xx, 5xx, timeout, connection_error, other_error.
func ClassifyStatus(statusCode int, errText string) string {
	if statusCode == 0 && errText != "" {
		lower := strings.ToLower(errText)
		if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
			return StatusClassTimeout
		}
		for _, s := range []string{"connection refused", "no such host", "network is unreachable", "dial"} {
			if strings.Contains(lower, s) {
				return StatusClassConnectionError
			}
		}
		return StatusClassOtherError
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
