package viewer

const (
	ActionBuy      = "buy"
	ActionSell     = "sell"
	ActionSnapshot = "snapshot"
)

// Outbound frame types.
const (
	TypeAck    = "ack"
	TypeError  = "error"
	TypeChart  = "chart"
	TypeStats  = "stats"
	TypeLedger = "ledger"
)

const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

type Request struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Shares int64 `json:"shares"`
}

type Response struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"` // matches request ID
	Status  string      `json:"status,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// StatsData is the payload of a stats frame. Mean/Max/Min are null before the first tick.
type StatsData struct {
	Count  int64    `json:"count"`
	Mean   *float64 `json:"mean"`
	Max    *float64 `json:"max"`
	Min    *float64 `json:"min"`
	FeedUp bool     `json:"feed_up"`
}
