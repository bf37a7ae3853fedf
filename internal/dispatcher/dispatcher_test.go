package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
	"github.com/BE-Provider-Connect/inbox/internal/resolver"
	"github.com/BE-Provider-Connect/inbox/internal/testutil"
)

// mockDeliverer returns a fixed result and counts calls.
type mockDeliverer struct {
	mu       sync.Mutex
	outcome  domain.Outcome
	err      error
	delay    time.Duration
	calls    int
	inFlight int32
	maxSeen  int32
}

func (d *mockDeliverer) Deliver(ctx context.Context, cmd domain.DispatchCommand) (domain.Outcome, error) {
	n := atomic.AddInt32(&d.inFlight, 1)
	defer atomic.AddInt32(&d.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&d.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&d.maxSeen, seen, n) {
			break
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.outcome, d.err
}

func (d *mockDeliverer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// recordingMetrics captures dispatcher metrics calls.
type recordingMetrics struct {
	mu           sync.Mutex
	attempts     []string
	outcomes     []string
	configErrors int
	latencies    []time.Duration
	inFlight     int
}

func (m *recordingMetrics) DeliveryAttemptCompleted(kind, statusClass string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, kind+"/"+statusClass)
}

func (m *recordingMetrics) DeliveryOutcome(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, kind+"/"+outcome)
}

func (m *recordingMetrics) ConfigError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configErrors++
}

func (m *recordingMetrics) QueueLatencyObserve(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, latency)
}

func (m *recordingMetrics) EventsInFlightIncr() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight++
}

func (m *recordingMetrics) EventsInFlightDecr() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

func queued(kind domain.WebhookKind, event string) domain.QueuedCommand {
	return domain.NewQueuedCommand(domain.DispatchCommand{
		Target:  "https://example.com/hook",
		Payload: map[string]any{"event": event},
		Kind:    kind,
	}, domain.PriorityMedium, time.Now())
}

func TestDispatch_Success(t *testing.T) {
	deliverer := &mockDeliverer{outcome: domain.Outcome{StatusCode: 200, Duration: 10 * time.Millisecond}}
	metrics := &recordingMetrics{}
	clock := testutil.NewFakeClock(time.Date(2025, 10, 10, 9, 0, 0, 0, time.UTC))

	disp := New(deliverer).WithMetrics(metrics)
	disp.now = clock.Now

	item := queued(domain.KindAssistantWebhook, "message_created")
	item.EnqueuedAt = clock.Now().Add(-2 * time.Second)

	if err := disp.Dispatch(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != "assistant_webhook/success" {
		t.Errorf("outcomes = %v", metrics.outcomes)
	}
	if len(metrics.attempts) != 1 || metrics.attempts[0] != "assistant_webhook/2xx" {
		t.Errorf("attempts = %v", metrics.attempts)
	}
	if len(metrics.latencies) != 1 || metrics.latencies[0] != 2*time.Second {
		t.Errorf("latencies = %v", metrics.latencies)
	}
	if metrics.inFlight != 0 {
		t.Errorf("inFlight = %d, want 0", metrics.inFlight)
	}
}

func TestDispatch_FailureIsNotAnError(t *testing.T) {
	deliverer := &mockDeliverer{outcome: domain.Outcome{StatusCode: 500, Err: "500 Internal Server Error"}}
	metrics := &recordingMetrics{}

	err := New(deliverer).WithMetrics(metrics).Dispatch(context.Background(), queued(domain.KindAccountWebhook, "message_created"))
	if err != nil {
		t.Fatalf("delivery failures must not surface as errors: %v", err)
	}
	if deliverer.callCount() != 1 {
		t.Errorf("expected exactly one attempt, got %d", deliverer.callCount())
	}
	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != "account_webhook/failed" {
		t.Errorf("outcomes = %v", metrics.outcomes)
	}
	if metrics.attempts[0] != "account_webhook/5xx" {
		t.Errorf("attempts = %v", metrics.attempts)
	}
}

func TestDispatch_ConfigErrorPropagates(t *testing.T) {
	deliverer := &mockDeliverer{err: fmt.Errorf("resolve target: %w", &resolver.ConfigurationError{Key: "INBOX_URL"})}
	metrics := &recordingMetrics{}

	err := New(deliverer).WithMetrics(metrics).Dispatch(context.Background(), queued(domain.KindAPIInboxWebhook, "message_created"))
	if !resolver.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if metrics.configErrors != 1 {
		t.Errorf("configErrors = %d, want 1", metrics.configErrors)
	}
	if len(metrics.outcomes) != 0 {
		t.Errorf("no outcome should be recorded for config errors, got %v", metrics.outcomes)
	}
}

func TestRun_ProcessesWithWorkerPool(t *testing.T) {
	deliverer := &mockDeliverer{outcome: domain.Outcome{StatusCode: 200}, delay: 50 * time.Millisecond}
	disp := New(deliverer).WithWorkers(4)

	ch := make(chan domain.QueuedCommand, 8)
	for i := 0; i < 8; i++ {
		ch <- queued(domain.KindAssistantWebhook, "message_created")
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		disp.Run(context.Background(), ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}

	if deliverer.callCount() != 8 {
		t.Errorf("calls = %d, want 8", deliverer.callCount())
	}
	if max := atomic.LoadInt32(&deliverer.maxSeen); max < 2 || max > 4 {
		t.Errorf("max concurrent deliveries = %d, want between 2 and 4", max)
	}
}

func TestRun_DrainsBufferedCommandsOnShutdown(t *testing.T) {
	deliverer := &mockDeliverer{outcome: domain.Outcome{StatusCode: 200}}
	disp := New(deliverer).WithWorkers(1).WithDrainTimeout(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan domain.QueuedCommand, 3)
	for i := 0; i < 3; i++ {
		ch <- queued(domain.KindInboxWebhook, "message_created")
	}

	disp.Run(ctx, ch)

	if deliverer.callCount() != 3 {
		t.Errorf("calls = %d, want 3 (drained)", deliverer.callCount())
	}
}

func TestWithWorkers_IgnoresNonPositive(t *testing.T) {
	disp := New(&mockDeliverer{}).WithWorkers(0).WithDrainTimeout(-1)
	if disp.workers != defaultWorkers {
		t.Errorf("workers = %d, want %d", disp.workers, defaultWorkers)
	}
	if disp.drainTimeout != DefaultDrainTimeout {
		t.Errorf("drainTimeout = %v, want %v", disp.drainTimeout, DefaultDrainTimeout)
	}
}
