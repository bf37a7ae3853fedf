// Package channel provides the in-memory dispatch queue.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

// DefaultEmitTimeout bounds how long Enqueue waits on a full buffer. Callers
// raise domain events on request paths, so it stays short.
const DefaultEmitTimeout = 100 * time.Millisecond

var (
	// ErrBufferFull is returned when the buffer stays full for the whole emit timeout.
	ErrBufferFull = errors.New("dispatch queue buffer full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("dispatch queue closed")
)

// MetricsSink receives buffer metrics. Implementations must not block.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

type Option func(*EventBus)

func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		if d > 0 {
			b.emitTimeout = d
		}
	}
}

func WithMetrics(m MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

func withClock(now func() time.Time) Option {
	return func(b *EventBus) {
		b.now = now
	}
}

// EventBus is a buffered FIFO of queued commands. Priority is recorded on
// each item but not used for ordering; use the Redis queue when priorities
// must be honored.
type EventBus struct {
	mu          sync.RWMutex
	closed      bool
	ch          chan domain.QueuedCommand
	emitTimeout time.Duration
	metrics     MetricsSink
	now         func() time.Time
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	if buffer <= 0 {
		buffer = 1
	}
	b := &EventBus{
		ch:          make(chan domain.QueuedCommand, buffer),
		emitTimeout: DefaultEmitTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Enqueue wraps cmd and places it on the bus.
func (b *EventBus) Enqueue(ctx context.Context, cmd domain.DispatchCommand, priority domain.Priority) error {
	return b.Emit(ctx, domain.NewQueuedCommand(cmd, priority, b.now()))
}

func (b *EventBus) Emit(ctx context.Context, item domain.QueuedCommand) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- item:
		b.recordSize()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) recordSize() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	b.metrics.BufferSizeUpdate(size)
	b.metrics.BufferSaturationUpdate(float64(size) / float64(cap(b.ch)))
}

func (b *EventBus) Channel() <-chan domain.QueuedCommand {
	return b.ch
}

// Close stops accepting commands and closes the channel so consumers can
// finish draining. It is safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
