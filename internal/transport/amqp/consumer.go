// Package amqp consumes domain events from a RabbitMQ topic exchange and hands
// them to the assistant listener.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
	"github.com/BE-Provider-Connect/inbox/internal/events"
)

const (
	source = "amqp"

	DefaultPrefetch       = 10
	DefaultHandlerTimeout = 10 * time.Second
)

// RoutingKeys are bound to the queue. Producers publish with the event name as key.
var RoutingKeys = []string{domain.EventAssigneeChanged, domain.EventMessageCreated}

type Handler interface {
	HandleEnvelope(ctx context.Context, env events.Envelope) (bool, error)
}

type MetricsSink interface {
	EventReceived(source string, event string)
	EventDecodeError(source string)
}

type Config struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

type Consumer struct {
	conn    *amqp091.Connection
	ch      *amqp091.Channel
	cfg     Config
	handler Handler
	metrics MetricsSink
	timeout time.Duration
	once    sync.Once
}

// Dial connects and declares the topic exchange.
func Dial(cfg Config, handler Handler) (*Consumer, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = DefaultPrefetch
	}

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	return &Consumer{
		conn:    conn,
		ch:      ch,
		cfg:     cfg,
		handler: handler,
		timeout: DefaultHandlerTimeout,
	}, nil
}

func (c *Consumer) WithMetrics(m MetricsSink) *Consumer {
	c.metrics = m
	return c
}

// Run consumes until ctx is cancelled or the broker closes the delivery channel.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	q, err := c.ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}
	for _, key := range RoutingKeys {
		if err := c.ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("amqp queue bind %s: %w", key, err)
		}
	}
	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	log.Printf("amqp: consuming queue=%s exchange=%s", q.Name, c.cfg.Exchange)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("amqp: delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

// action is what to do with a delivery after handling.
type action int

const (
	actionAck action = iota
	actionReject
	actionRequeue
)

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	hctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	switch c.process(hctx, msg.RoutingKey, msg.Body) {
	case actionAck:
		err = msg.Ack(false)
	case actionReject:
		err = msg.Reject(false)
	case actionRequeue:
		err = msg.Nack(false, true)
	}
	if err != nil {
		log.Printf("amqp: key=%s tag=%d ack error: %v", msg.RoutingKey, msg.DeliveryTag, err)
	}
}

// process decodes and dispatches one message body. Malformed messages are
// rejected without requeue. Queue failures are requeued so the event is
// seen again once the dispatch queue has room.
func (c *Consumer) process(ctx context.Context, routingKey string, body []byte) action {
	env, err := events.Decode(body)
	if err != nil {
		log.Printf("amqp: key=%s dropping message: %v", routingKey, err)
		if c.metrics != nil {
			c.metrics.EventDecodeError(source)
		}
		return actionReject
	}
	if c.metrics != nil {
		c.metrics.EventReceived(source, env.Event)
	}

	if _, err := c.handler.HandleEnvelope(ctx, env); err != nil {
		if errors.Is(err, events.ErrInvalidEnvelope) {
			return actionReject
		}
		log.Printf("amqp: key=%s event=%s requeue: %v", routingKey, env.Event, err)
		return actionRequeue
	}
	return actionAck
}

func (c *Consumer) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.ch.Close()
		err = c.conn.Close()
	})
	return err
}
