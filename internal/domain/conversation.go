package domain

// AssigneeKind is the closed set of conversation assignees.
type AssigneeKind int

const (
	AssigneeNone AssigneeKind = iota
	AssigneeUser
	AssigneeAssistant
)

func (k AssigneeKind) String() string {
	switch k {
	case AssigneeUser:
		return "User"
	case AssigneeAssistant:
		return "Assistant"
	default:
		return "None"
	}
}

// NormalizeAssigneeKind maps a stored assignee type to the tagged union.
// Only "Assistant" is special; every other actor type counts as a user.
func NormalizeAssigneeKind(assigneeType string) AssigneeKind {
	switch assigneeType {
	case "":
		return AssigneeNone
	case "Assistant":
		return AssigneeAssistant
	default:
		return AssigneeUser
	}
}

type Assignee struct {
	Kind AssigneeKind
	ID   int64
}

func (a Assignee) IsAssistant() bool {
	return a.Kind == AssigneeAssistant
}

// ChannelWebWidget is the only channel type that needs contact verification.
const ChannelWebWidget = "Channel::WebWidget"

// ConversationView is the read-only projection of a conversation.
type ConversationView struct {
	ID          int64
	Assignee    Assignee
	Verified    bool
	WebhookData map[string]any
}

// NewConversationView derives Verified from the inbox channel. Non web-widget
// channels are always verified; web widgets need an HMAC-verified contact.
func NewConversationView(id int64, assignee Assignee, channel string, hmacVerified *bool, webhookData map[string]any) ConversationView {
	return ConversationView{
		ID:          id,
		Assignee:    assignee,
		Verified:    IsVerified(channel, hmacVerified),
		WebhookData: webhookData,
	}
}

func IsVerified(channel string, hmacVerified *bool) bool {
	if channel != ChannelWebWidget {
		return true
	}
	return hmacVerified != nil && *hmacVerified
}

type MessageView struct {
	ID              int64
	Outgoing        bool
	WebhookSendable bool
	Conversation    ConversationView
	WebhookData     map[string]any
}

type AccountView struct {
	ID          int64
	WebhookData map[string]any
}

// Assistant is the single AI assistant service record.
type Assistant struct {
	ID          int64
	Name        string
	Enabled     bool
	OutgoingURL string
}
