package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WebhookKind tags a dispatch. It decides the auth-header policy at delivery
// time and whether a failure is written back to a message.
type WebhookKind string

const (
	KindAccountWebhook   WebhookKind = "account_webhook"
	KindInboxWebhook     WebhookKind = "inbox_webhook"
	KindAgentBotWebhook  WebhookKind = "agent_bot_webhook"
	KindAssistantWebhook WebhookKind = "assistant_webhook"
	KindAPIInboxWebhook  WebhookKind = "api_inbox_webhook"
)

var webhookKinds = map[WebhookKind]struct{}{
	KindAccountWebhook:   {},
	KindInboxWebhook:     {},
	KindAgentBotWebhook:  {},
	KindAssistantWebhook: {},
	KindAPIInboxWebhook:  {},
}

// Valid reports whether k is one of the known kinds.
func (k WebhookKind) Valid() bool {
	_, ok := webhookKinds[k]
	return ok
}

func ParseWebhookKind(s string) (WebhookKind, error) {
	k := WebhookKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown webhook kind %q", s)
	}
	return k, nil
}

// DispatchCommand is one unit of delivery work. It has no identity and is
// discarded after a single attempt.
type DispatchCommand struct {
	Target  string         `json:"target"`
	Payload map[string]any `json:"payload"`
	Kind    WebhookKind    `json:"kind"`
}

// Event returns the payload's event name, or "" if missing.
func (c DispatchCommand) Event() string {
	return PayloadEvent(c.Payload)
}

// PayloadEvent extracts the "event" key from a webhook payload.
func PayloadEvent(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	switch v := payload[PayloadKeyEvent].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists priorities from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// QueuedCommand wraps a command while it sits in a dispatch queue.
// ID correlates log lines only.
type QueuedCommand struct {
	ID         uuid.UUID       `json:"id"`
	Priority   Priority        `json:"priority"`
	Command    DispatchCommand `json:"command"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

func NewQueuedCommand(cmd DispatchCommand, priority Priority, now time.Time) QueuedCommand {
	if !priority.Valid() {
		priority = PriorityMedium
	}
	return QueuedCommand{
		ID:         uuid.New(),
		Priority:   priority,
		Command:    cmd,
		EnqueuedAt: now.UTC(),
	}
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	StatusCode int
	Err        string
	Duration   time.Duration
}

func (o Outcome) Success() bool {
	return o.Err == "" && o.StatusCode >= 200 && o.StatusCode < 300
}
