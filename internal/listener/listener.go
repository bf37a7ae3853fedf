// Package listener reacts to conversation and message events by evaluating
// them against the assistant policy and queueing any resulting dispatch.
package listener

import (
	"context"
	"fmt"
	"log"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
	"github.com/BE-Provider-Connect/inbox/internal/events"
	"github.com/BE-Provider-Connect/inbox/internal/policy"
)

// Queue accepts commands for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, cmd domain.DispatchCommand, priority domain.Priority) error
}

// MetricsSink records evaluation outcomes. Optional.
type MetricsSink interface {
	PolicyDecision(event string, decision string)
}

// AssistantListener forwards assistant-bound events to the dispatch queue.
// It never performs HTTP itself.
type AssistantListener struct {
	evaluator *policy.Evaluator
	queue     Queue
	metrics   MetricsSink
}

func New(evaluator *policy.Evaluator, queue Queue) *AssistantListener {
	return &AssistantListener{evaluator: evaluator, queue: queue}
}

func (l *AssistantListener) WithMetrics(m MetricsSink) *AssistantListener {
	l.metrics = m
	return l
}

// OnAssigneeChanged returns whether a command was queued. A queue error is
// returned so ingress can report it; the event itself is not retried.
func (l *AssistantListener) OnAssigneeChanged(ctx context.Context, conv domain.ConversationView, account domain.AccountView) (bool, error) {
	cmd, decision := l.evaluator.EvaluateAssigneeChanged(conv, account)
	return l.handle(ctx, domain.EventAssigneeChanged, conv.ID, cmd, decision)
}

func (l *AssistantListener) OnMessageCreated(ctx context.Context, msg domain.MessageView) (bool, error) {
	cmd, decision := l.evaluator.EvaluateMessageCreated(msg)
	return l.handle(ctx, domain.EventMessageCreated, msg.Conversation.ID, cmd, decision)
}

// HandleEnvelope routes a decoded envelope to the matching handler.
func (l *AssistantListener) HandleEnvelope(ctx context.Context, env events.Envelope) (bool, error) {
	switch env.Event {
	case domain.EventAssigneeChanged:
		return l.OnAssigneeChanged(ctx, env.ConversationView(), env.AccountView())
	case domain.EventMessageCreated:
		return l.OnMessageCreated(ctx, env.MessageView())
	default:
		return false, fmt.Errorf("%w: unsupported event %q", events.ErrInvalidEnvelope, env.Event)
	}
}

func (l *AssistantListener) handle(ctx context.Context, event string, conversationID int64, cmd domain.DispatchCommand, decision policy.Decision) (bool, error) {
	if l.metrics != nil {
		l.metrics.PolicyDecision(event, string(decision))
	}
	if decision != policy.DecisionDispatched {
		return false, nil
	}

	if err := l.queue.Enqueue(ctx, cmd, domain.PriorityMedium); err != nil {
		log.Printf("listener: event=%s conversation=%d enqueue failed: %v", event, conversationID, err)
		return false, fmt.Errorf("enqueue: %w", err)
	}
	return true, nil
}
