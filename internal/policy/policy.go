// Package policy decides whether a domain event produces an outbound
// assistant webhook. Evaluation is pure: no I/O, no logging, no mutation of
// the views passed in.
package policy

import (
	"maps"
	"strings"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

// Decision labels the result of an evaluation.
type Decision string

const (
	DecisionDispatched   Decision = "dispatched"
	DecisionNotAssistant Decision = "not_assistant"
	DecisionUnverified   Decision = "unverified"
	DecisionOutgoing     Decision = "outgoing"
	DecisionNotSendable  Decision = "not_sendable"
	DecisionNoTarget     Decision = "no_target"
)

type Evaluator struct {
	assistant domain.Assistant
}

func New(assistant domain.Assistant) *Evaluator {
	return &Evaluator{assistant: assistant}
}

// OnAssigneeChanged returns the command for an assignee change, if any.
func (e *Evaluator) OnAssigneeChanged(conv domain.ConversationView, account domain.AccountView) (domain.DispatchCommand, bool) {
	cmd, d := e.EvaluateAssigneeChanged(conv, account)
	return cmd, d == DecisionDispatched
}

// OnMessageCreated returns the command for a new message, if any.
func (e *Evaluator) OnMessageCreated(msg domain.MessageView) (domain.DispatchCommand, bool) {
	cmd, d := e.EvaluateMessageCreated(msg)
	return cmd, d == DecisionDispatched
}

func (e *Evaluator) EvaluateAssigneeChanged(conv domain.ConversationView, account domain.AccountView) (domain.DispatchCommand, Decision) {
	if d := conversationDecision(conv); d != DecisionDispatched {
		return domain.DispatchCommand{}, d
	}

	payload := merge(conv.WebhookData, map[string]any{
		domain.PayloadKeyEvent:   domain.EventAssigneeChanged,
		domain.PayloadKeyAccount: maps.Clone(account.WebhookData),
	})
	return e.command(payload)
}

func (e *Evaluator) EvaluateMessageCreated(msg domain.MessageView) (domain.DispatchCommand, Decision) {
	if d := conversationDecision(msg.Conversation); d != DecisionDispatched {
		return domain.DispatchCommand{}, d
	}
	// never echo the assistant's own replies back to it
	if msg.Outgoing {
		return domain.DispatchCommand{}, DecisionOutgoing
	}
	if !msg.WebhookSendable {
		return domain.DispatchCommand{}, DecisionNotSendable
	}

	payload := merge(msg.WebhookData, map[string]any{
		domain.PayloadKeyEvent: domain.EventMessageCreated,
	})
	return e.command(payload)
}

func (e *Evaluator) command(payload map[string]any) (domain.DispatchCommand, Decision) {
	target := strings.TrimSpace(e.assistant.OutgoingURL)
	if target == "" {
		return domain.DispatchCommand{}, DecisionNoTarget
	}
	return domain.DispatchCommand{
		Target:  target,
		Payload: payload,
		Kind:    domain.KindAssistantWebhook,
	}, DecisionDispatched
}

func conversationDecision(conv domain.ConversationView) Decision {
	if !conv.Assignee.IsAssistant() {
		return DecisionNotAssistant
	}
	if !conv.Verified {
		return DecisionUnverified
	}
	return DecisionDispatched
}

// merge returns a new map holding base overlaid with extra.
func merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}
