package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) EventReceived(source, event string)                                 {}
func (n *NoopSink) EventDecodeError(source string)                                     {}
func (n *NoopSink) PolicyDecision(event, decision string)                              {}
func (n *NoopSink) DeliveryAttemptCompleted(kind, statusClass string, d time.Duration) {}
func (n *NoopSink) DeliveryOutcome(kind, outcome string)                               {}
func (n *NoopSink) ConfigError(kind string)                                            {}
func (n *NoopSink) QueueLatencyObserve(latency time.Duration)                          {}
func (n *NoopSink) EventsInFlightIncr()                                                {}
func (n *NoopSink) EventsInFlightDecr()                                                {}
func (n *NoopSink) MessageMarkedFailed()                                               {}
func (n *NoopSink) BufferSizeUpdate(size int)                                          {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                     {}
func (n *NoopSink) BufferSaturationUpdate(saturation float64)                          {}
func (n *NoopSink) EmitError()                                                         {}

var _ Sink = (*NoopSink)(nil)
