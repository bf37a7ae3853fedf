package policy

import (
	"reflect"
	"testing"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

const assistantURL = "https://api.citadel.ai/webhook"

func newTestEvaluator() *Evaluator {
	return New(domain.Assistant{ID: 1, Name: "Citadel AI", Enabled: true, OutgoingURL: assistantURL})
}

func assistantConversation() domain.ConversationView {
	return domain.ConversationView{
		ID:          42,
		Assignee:    domain.Assignee{Kind: domain.AssigneeAssistant, ID: 1},
		Verified:    true,
		WebhookData: map[string]any{"id": int64(42), "status": "open"},
	}
}

func incomingMessage(conv domain.ConversationView) domain.MessageView {
	return domain.MessageView{
		ID:              7,
		Outgoing:        false,
		WebhookSendable: true,
		Conversation:    conv,
		WebhookData:     map[string]any{"id": int64(7), "content": "hello"},
	}
}

func TestOnMessageCreated_Dispatches(t *testing.T) {
	e := newTestEvaluator()

	cmd, ok := e.OnMessageCreated(incomingMessage(assistantConversation()))
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.Kind != domain.KindAssistantWebhook {
		t.Errorf("Kind = %q, want assistant_webhook", cmd.Kind)
	}
	if cmd.Target != assistantURL {
		t.Errorf("Target = %q", cmd.Target)
	}
	if cmd.Event() != "message_created" {
		t.Errorf("event = %q, want message_created", cmd.Event())
	}
	if cmd.Payload["content"] != "hello" {
		t.Errorf("message fields missing from payload: %v", cmd.Payload)
	}
}

func TestOnMessageCreated_Rejections(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		name   string
		mutate func(m *domain.MessageView)
		want   Decision
	}{
		{"no assignee", func(m *domain.MessageView) { m.Conversation.Assignee = domain.Assignee{} }, DecisionNotAssistant},
		{"user assignee", func(m *domain.MessageView) {
			m.Conversation.Assignee = domain.Assignee{Kind: domain.AssigneeUser, ID: 9}
		}, DecisionNotAssistant},
		{"unverified", func(m *domain.MessageView) { m.Conversation.Verified = false }, DecisionUnverified},
		{"outgoing", func(m *domain.MessageView) { m.Outgoing = true }, DecisionOutgoing},
		{"not sendable", func(m *domain.MessageView) { m.WebhookSendable = false }, DecisionNotSendable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := incomingMessage(assistantConversation())
			tt.mutate(&msg)

			if _, ok := e.OnMessageCreated(msg); ok {
				t.Fatal("expected no command")
			}
			if _, d := e.EvaluateMessageCreated(msg); d != tt.want {
				t.Errorf("decision = %q, want %q", d, tt.want)
			}
		})
	}
}

func TestOnMessageCreated_OutgoingNeverDispatches(t *testing.T) {
	e := newTestEvaluator()

	for _, verified := range []bool{true, false} {
		for _, sendable := range []bool{true, false} {
			for _, kind := range []domain.AssigneeKind{domain.AssigneeNone, domain.AssigneeUser, domain.AssigneeAssistant} {
				conv := assistantConversation()
				conv.Verified = verified
				conv.Assignee.Kind = kind
				msg := incomingMessage(conv)
				msg.Outgoing = true
				msg.WebhookSendable = sendable

				if _, ok := e.OnMessageCreated(msg); ok {
					t.Errorf("outgoing message dispatched (verified=%v sendable=%v assignee=%v)", verified, sendable, kind)
				}
			}
		}
	}
}

func TestOnAssigneeChanged_Dispatches(t *testing.T) {
	e := newTestEvaluator()
	account := domain.AccountView{ID: 3, WebhookData: map[string]any{"id": int64(3), "name": "Acme"}}

	cmd, ok := e.OnAssigneeChanged(assistantConversation(), account)
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.Event() != "assignee_changed" {
		t.Errorf("event = %q", cmd.Event())
	}
	if cmd.Kind != domain.KindAssistantWebhook {
		t.Errorf("Kind = %q", cmd.Kind)
	}
	acc, ok := cmd.Payload["account"].(map[string]any)
	if !ok {
		t.Fatalf("account payload has type %T", cmd.Payload["account"])
	}
	if acc["name"] != "Acme" {
		t.Errorf("account = %v", acc)
	}
	if cmd.Payload["status"] != "open" {
		t.Errorf("conversation fields missing: %v", cmd.Payload)
	}
}

func TestOnAssigneeChanged_Rejections(t *testing.T) {
	e := newTestEvaluator()

	conv := assistantConversation()
	conv.Assignee = domain.Assignee{Kind: domain.AssigneeUser, ID: 5}
	if _, ok := e.OnAssigneeChanged(conv, domain.AccountView{}); ok {
		t.Error("user assignee should not dispatch")
	}

	conv = assistantConversation()
	conv.Verified = false
	if _, d := e.EvaluateAssigneeChanged(conv, domain.AccountView{}); d != DecisionUnverified {
		t.Errorf("decision = %q, want unverified", d)
	}
}

func TestBlankOutgoingURL_NoDispatch(t *testing.T) {
	for _, url := range []string{"", "   "} {
		e := New(domain.Assistant{ID: 1, OutgoingURL: url})

		if _, d := e.EvaluateMessageCreated(incomingMessage(assistantConversation())); d != DecisionNoTarget {
			t.Errorf("message_created decision = %q, want no_target", d)
		}
		if _, d := e.EvaluateAssigneeChanged(assistantConversation(), domain.AccountView{}); d != DecisionNoTarget {
			t.Errorf("assignee_changed decision = %q, want no_target", d)
		}
	}
}

func TestDisabledAssistant_StillDispatches(t *testing.T) {
	e := New(domain.Assistant{ID: 1, Name: "Citadel AI", Enabled: false, OutgoingURL: assistantURL})

	cmd, ok := e.OnMessageCreated(incomingMessage(assistantConversation()))
	if !ok || cmd.Target != assistantURL {
		t.Errorf("expected dispatch to %s, got ok=%v cmd=%+v", assistantURL, ok, cmd)
	}
}

func TestEvaluation_IsIdempotentAndDoesNotMutateInputs(t *testing.T) {
	e := newTestEvaluator()
	conv := assistantConversation()
	msg := incomingMessage(conv)
	account := domain.AccountView{ID: 3, WebhookData: map[string]any{"id": int64(3)}}

	first, ok1 := e.OnMessageCreated(msg)
	second, ok2 := e.OnMessageCreated(msg)
	if !ok1 || !ok2 || !reflect.DeepEqual(first, second) {
		t.Errorf("message_created not idempotent: %v/%v", first, second)
	}
	if _, has := msg.WebhookData["event"]; has {
		t.Error("message webhook data was mutated")
	}

	a1, _ := e.OnAssigneeChanged(conv, account)
	a2, _ := e.OnAssigneeChanged(conv, account)
	if !reflect.DeepEqual(a1, a2) {
		t.Errorf("assignee_changed not idempotent: %v/%v", a1, a2)
	}
	if _, has := conv.WebhookData["account"]; has {
		t.Error("conversation webhook data was mutated")
	}

	// mutating a command must not leak into the next evaluation
	first.Payload["content"] = "changed"
	third, _ := e.OnMessageCreated(msg)
	if third.Payload["content"] != "hello" {
		t.Error("commands share payload maps")
	}
}
