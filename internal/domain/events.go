package domain

// Event names carried in the payload "event" key.
const (
	EventAssigneeChanged = "assignee_changed"
	EventMessageCreated  = "message_created"
	EventMessageUpdated  = "message_updated"
)

// Well-known payload keys.
const (
	PayloadKeyEvent   = "event"
	PayloadKeyAccount = "account"
	PayloadKeyID      = "id"
)
