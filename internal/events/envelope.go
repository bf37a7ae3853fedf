// Package events defines the JSON wire form of the domain events consumed by
// the notification pipeline.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

// ErrInvalidEnvelope wraps every decode or validation failure.
var ErrInvalidEnvelope = errors.New("invalid event envelope")

var validate = validator.New()

// Envelope carries one domain event. Which parts are required depends on Event.
type Envelope struct {
	Event        string        `json:"event" validate:"required,oneof=assignee_changed message_created"`
	Conversation *Conversation `json:"conversation" validate:"required"`
	Message      *Message      `json:"message,omitempty" validate:"required_if=Event message_created"`
	Account      *Account      `json:"account,omitempty" validate:"required_if=Event assignee_changed"`
}

type Conversation struct {
	ID           int64          `json:"id" validate:"gt=0"`
	AssigneeType string         `json:"assignee_type,omitempty"`
	AssigneeID   int64          `json:"assignee_id,omitempty" validate:"gte=0"`
	Channel      string         `json:"channel" validate:"required"`
	HMACVerified *bool          `json:"hmac_verified,omitempty"`
	WebhookData  map[string]any `json:"webhook_data,omitempty"`
}

type Message struct {
	ID              int64          `json:"id" validate:"gt=0"`
	Outgoing        bool           `json:"outgoing"`
	WebhookSendable bool           `json:"webhook_sendable"`
	WebhookData     map[string]any `json:"webhook_data,omitempty"`
}

type Account struct {
	ID          int64          `json:"id" validate:"gt=0"`
	WebhookData map[string]any `json:"webhook_data,omitempty"`
}

// Decode parses and validates an envelope. Numbers inside webhook_data are
// kept as json.Number.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (e Envelope) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}

// ConversationView converts the conversation part to its domain projection.
func (e Envelope) ConversationView() domain.ConversationView {
	c := e.Conversation
	if c == nil {
		return domain.ConversationView{}
	}
	assignee := domain.Assignee{Kind: domain.NormalizeAssigneeKind(c.AssigneeType)}
	if assignee.Kind != domain.AssigneeNone {
		assignee.ID = c.AssigneeID
	}
	return domain.NewConversationView(c.ID, assignee, c.Channel, c.HMACVerified, c.WebhookData)
}

func (e Envelope) MessageView() domain.MessageView {
	m := e.Message
	if m == nil {
		return domain.MessageView{Conversation: e.ConversationView()}
	}
	return domain.MessageView{
		ID:              m.ID,
		Outgoing:        m.Outgoing,
		WebhookSendable: m.WebhookSendable,
		Conversation:    e.ConversationView(),
		WebhookData:     m.WebhookData,
	}
}

func (e Envelope) AccountView() domain.AccountView {
	if e.Account == nil {
		return domain.AccountView{}
	}
	return domain.AccountView{ID: e.Account.ID, WebhookData: e.Account.WebhookData}
}
