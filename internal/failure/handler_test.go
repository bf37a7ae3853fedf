package failure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

type mockMessageStore struct {
	mu       sync.Mutex
	messages map[int64]domain.Message
	updates  int
	findErr  error
}

func newMockMessageStore(msgs ...domain.Message) *mockMessageStore {
	s := &mockMessageStore{messages: make(map[int64]domain.Message)}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return s
}

func (s *mockMessageStore) FindMessage(ctx context.Context, id int64) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return domain.Message{}, s.findErr
	}
	m, ok := s.messages[id]
	if !ok {
		return domain.Message{}, ErrMessageNotFound
	}
	return m, nil
}

func (s *mockMessageStore) UpdateMessageStatus(ctx context.Context, id int64, status domain.MessageStatus, externalError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.messages[id]
	m.Status = status
	m.ExternalError = externalError
	s.messages[id] = m
	s.updates++
	return nil
}

func (s *mockMessageStore) get(id int64) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func (s *mockMessageStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

type countingMetrics struct{ marked int }

func (m *countingMetrics) MessageMarkedFailed() { m.marked++ }

func TestHandle_MarksMessageFailed(t *testing.T) {
	for _, event := range []string{"message_created", "message_updated"} {
		t.Run(event, func(t *testing.T) {
			store := newMockMessageStore(domain.Message{ID: 11, Status: domain.MessageStatusSent})
			metrics := &countingMetrics{}
			h := New(store).WithMetrics(metrics)

			payload := map[string]any{"event": event, "id": int64(11), "conversation": map[string]any{"id": 3}}
			if !h.Handle(context.Background(), "500 Internal Server Error", domain.KindAPIInboxWebhook, payload) {
				t.Fatal("expected message to be updated")
			}

			got := store.get(11)
			if got.Status != domain.MessageStatusFailed {
				t.Errorf("Status = %q, want failed", got.Status)
			}
			if got.ExternalError != "500 Internal Server Error" {
				t.Errorf("ExternalError = %q", got.ExternalError)
			}
			if metrics.marked != 1 {
				t.Errorf("metrics.marked = %d, want 1", metrics.marked)
			}
		})
	}
}

func TestHandle_OtherKindsAndEventsNeverMutate(t *testing.T) {
	kinds := []domain.WebhookKind{
		domain.KindAccountWebhook, domain.KindInboxWebhook, domain.KindAgentBotWebhook,
		domain.KindAssistantWebhook, domain.KindAPIInboxWebhook,
	}
	events := []string{"message_created", "message_updated", "conversation_created", "assignee_changed", ""}

	for _, kind := range kinds {
		for _, event := range events {
			if kind == domain.KindAPIInboxWebhook && (event == "message_created" || event == "message_updated") {
				continue
			}
			store := newMockMessageStore(domain.Message{ID: 11, Status: domain.MessageStatusSent})
			h := New(store)

			payload := map[string]any{"event": event, "id": int64(11)}
			if h.Handle(context.Background(), "boom", kind, payload) {
				t.Errorf("kind=%s event=%q reported a mutation", kind, event)
			}
			if store.updateCount() != 0 {
				t.Errorf("kind=%s event=%q mutated the message", kind, event)
			}
		}
	}
}

func TestHandle_RequiresResolvableMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing id", map[string]any{"event": "message_created"}},
		{"unknown id", map[string]any{"event": "message_created", "id": int64(999)}},
		{"non numeric id", map[string]any{"event": "message_created", "id": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockMessageStore(domain.Message{ID: 11, Status: domain.MessageStatusSent})
			if New(store).Handle(context.Background(), "boom", domain.KindAPIInboxWebhook, tt.payload) {
				t.Error("expected no update")
			}
			if store.updateCount() != 0 {
				t.Error("message was mutated")
			}
		})
	}
}

func TestHandle_LookupErrorIsSwallowed(t *testing.T) {
	store := newMockMessageStore(domain.Message{ID: 11})
	store.findErr = errors.New("connection reset")

	if New(store).Handle(context.Background(), "boom", domain.KindAPIInboxWebhook, map[string]any{"event": "message_updated", "id": 11}) {
		t.Error("expected no update on lookup error")
	}
}

func TestMessageID(t *testing.T) {
	tests := []struct {
		v    any
		want int64
		ok   bool
	}{
		{int(5), 5, true},
		{int64(6), 6, true},
		{float64(7), 7, true},
		{float64(7.5), 0, false},
		{json.Number("8"), 8, true},
		{"9", 9, true},
		{"", 0, false},
		{int64(0), 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, ok := MessageID(map[string]any{"id": tt.v})
		if got != tt.want || ok != tt.ok {
			t.Errorf("MessageID(%#v) = %d, %v; want %d, %v", tt.v, got, ok, tt.want, tt.ok)
		}
	}
}
