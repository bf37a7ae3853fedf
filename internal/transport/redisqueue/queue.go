// Package redisqueue implements the dispatch queue on Redis lists, one list
// per priority.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

const (
	DefaultKeyPrefix   = "inboxhooks:dispatch"
	DefaultPollTimeout = time.Second
)

// MetricsSink receives queue metrics. Same shape as the channel bus sink.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	EmitError()
}

type Option func(*Queue)

func WithKeyPrefix(prefix string) Option {
	return func(q *Queue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

// WithPollTimeout sets how long a single BRPOP blocks before Run rechecks ctx.
func WithPollTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollTimeout = d
		}
	}
}

func WithMetrics(m MetricsSink) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

type Queue struct {
	client      redis.UniversalClient
	prefix      string
	pollTimeout time.Duration
	metrics     MetricsSink
	now         func() time.Time
}

func New(client redis.UniversalClient, opts ...Option) *Queue {
	q := &Queue{
		client:      client,
		prefix:      DefaultKeyPrefix,
		pollTimeout: DefaultPollTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Key returns the list key for a priority.
func (q *Queue) Key(p domain.Priority) string {
	return fmt.Sprintf("%s:%s", q.prefix, p)
}

// keys lists the priority keys in BRPOP order, most urgent first.
func (q *Queue) keys() []string {
	keys := make([]string, 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		keys = append(keys, q.Key(p))
	}
	return keys
}

// Enqueue pushes cmd onto the list for its priority.
func (q *Queue) Enqueue(ctx context.Context, cmd domain.DispatchCommand, priority domain.Priority) error {
	item := domain.NewQueuedCommand(cmd, priority, q.now())
	body, err := encode(item)
	if err != nil {
		return err
	}

	if err := q.client.LPush(ctx, q.Key(item.Priority), body).Err(); err != nil {
		if q.metrics != nil {
			q.metrics.EmitError()
		}
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Len returns the total number of queued commands across priorities.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(domain.Priorities))
	for _, key := range q.keys() {
		cmds = append(cmds, pipe.LLen(ctx, key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis pipeline: %w", err)
	}

	var total int64
	for _, c := range cmds {
		total += c.Val()
	}
	return total, nil
}

// Run pops commands, highest priority first, and forwards them to out until
// ctx is cancelled. out is closed on return so a dispatcher reading it can
// finish.
func (q *Queue) Run(ctx context.Context, out chan<- domain.QueuedCommand) {
	defer close(out)
	keys := q.keys()

	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.pollTimeout, keys...).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Printf("redisqueue: brpop error: %v", err)
			sleep(ctx, q.pollTimeout)
			continue
		}
		// res is [key, value]
		if len(res) != 2 {
			continue
		}

		item, err := decode(res[1])
		if err != nil {
			log.Printf("redisqueue: key=%s dropping undecodable item: %v", res[0], err)
			continue
		}

		select {
		case out <- item:
		case <-ctx.Done():
			// Put it back so another instance picks it up.
			pushCtx, cancel := context.WithTimeout(context.Background(), q.pollTimeout)
			if err := q.client.RPush(pushCtx, res[0], res[1]).Err(); err != nil {
				log.Printf("redisqueue: id=%s requeue failed: %v", item.ID, err)
			}
			cancel()
			return
		}

		if q.metrics != nil {
			if n, err := q.Len(ctx); err == nil {
				q.metrics.BufferSizeUpdate(int(n))
			}
		}
	}
}

func encode(item domain.QueuedCommand) (string, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode queued command: %w", err)
	}
	return string(b), nil
}

func decode(s string) (domain.QueuedCommand, error) {
	var item domain.QueuedCommand
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&item); err != nil {
		return domain.QueuedCommand{}, fmt.Errorf("decode queued command: %w", err)
	}
	if !item.Priority.Valid() {
		item.Priority = domain.PriorityMedium
	}
	return item, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
