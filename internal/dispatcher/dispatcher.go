package dispatcher

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
	"github.com/BE-Provider-Connect/inbox/internal/metrics"
	"github.com/BE-Provider-Connect/inbox/internal/resolver"
)

// DefaultDrainTimeout is the maximum time to wait for buffered commands during shutdown.
const DefaultDrainTimeout = 30 * time.Second

const defaultWorkers = 4

// Deliverer performs one delivery attempt.
type Deliverer interface {
	Deliver(ctx context.Context, cmd domain.DispatchCommand) (domain.Outcome, error)
}

// MetricsSink defines the interface for recording dispatcher metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DeliveryAttemptCompleted(kind string, statusClass string, duration time.Duration)
	DeliveryOutcome(kind string, outcome string)
	ConfigError(kind string)
	QueueLatencyObserve(latency time.Duration)
	EventsInFlightIncr()
	EventsInFlightDecr()
}

// Dispatcher runs a pool of workers. Each worker delivers one command at a
// time; commands are independent and carry no ordering guarantee.
type Dispatcher struct {
	client       Deliverer
	metrics      MetricsSink // optional, nil = disabled
	workers      int
	drainTimeout time.Duration
	now          func() time.Time
}

func New(client Deliverer) *Dispatcher {
	return &Dispatcher{
		client:       client,
		workers:      defaultWorkers,
		drainTimeout: DefaultDrainTimeout,
		now:          time.Now,
	}
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

func (d *Dispatcher) WithDrainTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.drainTimeout = timeout
	}
	return d
}

// Run processes commands from ch until ctx is cancelled or ch is closed.
// After cancellation, it drains remaining buffered commands with a timeout.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.QueuedCommand) {
	// In-flight deliveries are bounded by the client timeout, so they are
	// not cut short by shutdown.
	deliverCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-ch:
					if !ok {
						return
					}
					if err := d.Dispatch(deliverCtx, item); err != nil {
						log.Printf("dispatcher: worker=%d error: %v", worker, err)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	if ctx.Err() != nil {
		d.drain(ch)
	}
}

// drain processes remaining commands in the channel buffer after shutdown signal.
// Uses a background context since the main context is already cancelled.
func (d *Dispatcher) drain(ch <-chan domain.QueuedCommand) {
	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("dispatcher: drain timeout, processed %d commands", count)
			}
			return
		case item, ok := <-ch:
			if !ok {
				log.Printf("dispatcher: drain complete, processed %d commands", count)
				return
			}
			if err := d.Dispatch(drainCtx, item); err != nil {
				log.Printf("dispatcher: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("dispatcher: drain complete, processed %d commands", count)
			}
			return
		}
	}
}

// Dispatch delivers a single queued command. The only error it returns is a
// configuration error from the client; delivery failures are already handled.
func (d *Dispatcher) Dispatch(ctx context.Context, item domain.QueuedCommand) error {
	cmd := item.Command
	kind := string(cmd.Kind)

	if d.metrics != nil {
		d.metrics.EventsInFlightIncr()
		defer d.metrics.EventsInFlightDecr()
		if !item.EnqueuedAt.IsZero() {
			d.metrics.QueueLatencyObserve(d.now().Sub(item.EnqueuedAt))
		}
	}

	outcome, err := d.client.Deliver(ctx, cmd)
	if err != nil {
		if resolver.IsConfigurationError(err) {
			log.Printf("dispatcher: id=%s kind=%s event=%s config_error: %v", item.ID, kind, cmd.Event(), err)
			if d.metrics != nil {
				d.metrics.ConfigError(kind)
			}
		}
		return err
	}

	if d.metrics != nil {
		d.metrics.DeliveryAttemptCompleted(kind, metrics.ClassifyStatus(outcome.StatusCode, outcome.Err), outcome.Duration)
	}

	if outcome.Success() {
		log.Printf("dispatcher: id=%s kind=%s event=%s delivered status=%d duration=%s",
			item.ID, kind, cmd.Event(), outcome.StatusCode, outcome.Duration)
		if d.metrics != nil {
			d.metrics.DeliveryOutcome(kind, metrics.OutcomeSuccess)
		}
		return nil
	}

	log.Printf("dispatcher: id=%s kind=%s event=%s failed status=%d err=%q",
		item.ID, kind, cmd.Event(), outcome.StatusCode, outcome.Err)
	if d.metrics != nil {
		d.metrics.DeliveryOutcome(kind, metrics.OutcomeFailed)
	}
	return nil
}
