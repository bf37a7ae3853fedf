package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Ingestion metrics
	eventsReceivedTotal *prometheus.CounterVec
	decodeErrorsTotal   *prometheus.CounterVec
	policyDecisions     *prometheus.CounterVec

	// Dispatcher metrics
	deliveryAttemptsTotal *prometheus.CounterVec
	deliveryOutcomesTotal *prometheus.CounterVec
	configErrorsTotal     *prometheus.CounterVec
	webhookDuration       prometheus.Histogram
	queueLatency          prometheus.Histogram
	eventsInFlight        prometheus.Gauge
	messagesFailedTotal   prometheus.Counter

	// Queue metrics
	bufferSize       prometheus.Gauge
	bufferCapacity   prometheus.Gauge
	bufferSaturation prometheus.Gauge
	emitErrorsTotal  prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initIngestMetrics(reg)
	s.initDispatcherMetrics(reg)
	s.initQueueMetrics(reg)
	return s
}

func (s *PrometheusSink) initIngestMetrics(reg prometheus.Registerer) {
	s.eventsReceivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxhooks_events_received_total",
		Help: "Total number of domain events received.",
	}, []string{"source", "event"})
	s.decodeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxhooks_event_decode_errors_total",
		Help: "Total number of domain events rejected as malformed.",
	}, []string{"source"})
	s.policyDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxhooks_policy_decisions_total",
		Help: "Total number of policy evaluations by decision.",
	}, []string{"event", "decision"})

	s.register(reg, s.eventsReceivedTotal, "inboxhooks_events_received_total")
	s.register(reg, s.decodeErrorsTotal, "inboxhooks_event_decode_errors_total")
	s.register(reg, s.policyDecisions, "inboxhooks_policy_decisions_total")
}

func (s *PrometheusSink) initDispatcherMetrics(reg prometheus.Registerer) {
	s.deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxhooks_dispatcher_delivery_attempts_total",
		Help: "Total number of webhook delivery attempts.",
	}, []string{"kind", "status_class"})

	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxhooks_dispatcher_delivery_outcomes_total",
		Help: "Total number of delivery outcomes per command.",
	}, []string{"kind", "outcome"})

	s.configErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxhooks_dispatcher_config_errors_total",
		Help: "Total number of commands dropped because a target or secret could not be resolved.",
	}, []string{"kind"})

	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inboxhooks_dispatcher_webhook_duration_seconds",
		Help:    "Webhook request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	s.queueLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inboxhooks_dispatcher_queue_latency_seconds",
		Help:    "Time between enqueue and the start of delivery.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	})

	s.eventsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inboxhooks_dispatcher_events_in_flight",
		Help: "Number of commands currently being delivered.",
	})

	s.messagesFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inboxhooks_messages_marked_failed_total",
		Help: "Total number of messages marked failed after a webhook failure.",
	})

	s.register(reg, s.deliveryAttemptsTotal, "inboxhooks_dispatcher_delivery_attempts_total")
	s.register(reg, s.deliveryOutcomesTotal, "inboxhooks_dispatcher_delivery_outcomes_total")
	s.register(reg, s.configErrorsTotal, "inboxhooks_dispatcher_config_errors_total")
	s.register(reg, s.webhookDuration, "inboxhooks_dispatcher_webhook_duration_seconds")
	s.register(reg, s.queueLatency, "inboxhooks_dispatcher_queue_latency_seconds")
	s.register(reg, s.eventsInFlight, "inboxhooks_dispatcher_events_in_flight")
	s.register(reg, s.messagesFailedTotal, "inboxhooks_messages_marked_failed_total")
}

func (s *PrometheusSink) initQueueMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inboxhooks_queue_buffer_size",
		Help: "Current number of commands waiting in the in-memory queue.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inboxhooks_queue_buffer_capacity",
		Help: "Capacity of the in-memory queue.",
	})
	s.bufferSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inboxhooks_queue_buffer_saturation",
		Help: "Fraction of the in-memory queue in use (0-1).",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inboxhooks_queue_enqueue_errors_total",
		Help: "Total number of enqueue errors (buffer full or backend unavailable).",
	})

	s.register(reg, s.bufferSize, "inboxhooks_queue_buffer_size")
	s.register(reg, s.bufferCapacity, "inboxhooks_queue_buffer_capacity")
	s.register(reg, s.bufferSaturation, "inboxhooks_queue_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "inboxhooks_queue_enqueue_errors_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Ingestion metrics implementation

func (s *PrometheusSink) EventReceived(source, event string) {
	s.eventsReceivedTotal.WithLabelValues(source, event).Inc()
}

func (s *PrometheusSink) EventDecodeError(source string) {
	s.decodeErrorsTotal.WithLabelValues(source).Inc()
}

func (s *PrometheusSink) PolicyDecision(event, decision string) {
	s.policyDecisions.WithLabelValues(event, decision).Inc()
}

// Dispatcher metrics implementation

func (s *PrometheusSink) DeliveryAttemptCompleted(kind, statusClass string, duration time.Duration) {
	s.deliveryAttemptsTotal.WithLabelValues(kind, statusClass).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(kind, outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}

func (s *PrometheusSink) ConfigError(kind string) {
	s.configErrorsTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) QueueLatencyObserve(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	s.queueLatency.Observe(latency.Seconds())
}

func (s *PrometheusSink) EventsInFlightIncr() {
	s.eventsInFlight.Inc()
}

func (s *PrometheusSink) EventsInFlightDecr() {
	s.eventsInFlight.Dec()
}

func (s *PrometheusSink) MessageMarkedFailed() {
	s.messagesFailedTotal.Inc()
}

// Queue metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(saturation float64) {
	s.bufferSaturation.Set(saturation)
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

var _ Sink = (*PrometheusSink)(nil)
