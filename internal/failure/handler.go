// Package failure decides whether a failed webhook delivery is recorded
// against a message.
package failure

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

// ErrMessageNotFound is returned by MessageStore when no message matches.
var ErrMessageNotFound = errors.New("message not found")

type MessageStore interface {
	FindMessage(ctx context.Context, id int64) (domain.Message, error)
	UpdateMessageStatus(ctx context.Context, id int64, status domain.MessageStatus, externalError string) error
}

// MetricsSink is optional.
type MetricsSink interface {
	MessageMarkedFailed()
}

type Handler struct {
	messages MessageStore
	metrics  MetricsSink
}

func New(messages MessageStore) *Handler {
	return &Handler{messages: messages}
}

func (h *Handler) WithMetrics(sink MetricsSink) *Handler {
	h.metrics = sink
	return h
}

// Handle records errText on the referenced message when the failed webhook
// was an API inbox message event. Every other failure is only logged.
// It reports whether a message was updated.
func (h *Handler) Handle(ctx context.Context, errText string, kind domain.WebhookKind, payload map[string]any) bool {
	event := domain.PayloadEvent(payload)

	if !shouldRecord(kind, event) {
		log.Printf("failure: kind=%s event=%s dropped err=%q", kind, event, errText)
		return false
	}

	id, ok := MessageID(payload)
	if !ok {
		log.Printf("failure: kind=%s event=%s no message id in payload, err=%q", kind, event, errText)
		return false
	}

	if _, err := h.messages.FindMessage(ctx, id); err != nil {
		if !errors.Is(err, ErrMessageNotFound) {
			log.Printf("failure: message=%d lookup error: %v", id, err)
		} else {
			log.Printf("failure: message=%d not found, err=%q", id, errText)
		}
		return false
	}

	if err := h.messages.UpdateMessageStatus(ctx, id, domain.MessageStatusFailed, errText); err != nil {
		log.Printf("failure: message=%d status update error: %v", id, err)
		return false
	}

	log.Printf("failure: message=%d marked failed (kind=%s event=%s err=%q)", id, kind, event, errText)
	if h.metrics != nil {
		h.metrics.MessageMarkedFailed()
	}
	return true
}

func shouldRecord(kind domain.WebhookKind, event string) bool {
	if kind != domain.KindAPIInboxWebhook {
		return false
	}
	return event == domain.EventMessageCreated || event == domain.EventMessageUpdated
}

// MessageID reads the top-level "id" of a message payload. Payloads that went
// through JSON carry numbers as float64 or json.Number.
func MessageID(payload map[string]any) (int64, bool) {
	if payload == nil {
		return 0, false
	}

	var id int64
	switch v := payload[domain.PayloadKeyID].(type) {
	case int:
		id = int64(v)
	case int32:
		id = int64(v)
	case int64:
		id = v
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		id = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		id = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	default:
		return 0, false
	}

	if id <= 0 {
		return 0, false
	}
	return id, true
}
