package domain

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Message is the subset of a stored message the failure path needs.
type Message struct {
	ID            int64
	Status        MessageStatus
	ExternalError string
}
