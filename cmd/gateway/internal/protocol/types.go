package protocol

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
)

// WSRequest is a control message from a multi-symbol client. A plain tick
// consumer never sends one; it receives the feed symbol from the start.
type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Symbols []string `json:"symbols"`
}

// WSResponse answers a WSRequest. Price updates are not wrapped; they go out
// as the raw update JSON the processor stored.
type WSResponse struct {
	Type    string      `json:"type"`             // "ack", "error"
	ID      string      `json:"id,omitempty"`     // Matches request ID
	Status  string      `json:"status,omitempty"` // "success"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
