package api

// DispatchRequest queues a webhook delivery produced outside the assistant
// policy, e.g. an API inbox webhook.
type DispatchRequest struct {
	Target   string         `json:"target" validate:"required"`
	Kind     string         `json:"kind" validate:"required"`
	Priority string         `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
	Payload  map[string]any `json:"payload" validate:"required"`
}

type DispatchResponse struct {
	Kind     string `json:"kind"`
	Event    string `json:"event"`
	Priority string `json:"priority"`
}

type EventResponse struct {
	Event  string `json:"event"`
	Queued bool   `json:"queued"`
}

type MessageResponse struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	ExternalError string `json:"external_error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
