package models

// StockUpdate is one price update as it travels generator -> Kafka -> Redis -> gateway.
type StockUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // epoch millis, producer-assigned
	SeqID     int64   `json:"seq_id"`    // monotonic counter per symbol
}

// Tick is a single timestamped price observation as seen by the dashboard.
// A StockUpdate payload decodes into a Tick; the extra fields are ignored.
type Tick struct {
	Timestamp int64   `json:"timestamp"` // epoch millis, not guaranteed monotonic
	Price     float64 `json:"price"`
}

// Tick drops the routing fields.
func (u StockUpdate) Tick() Tick {
	return Tick{Timestamp: u.Timestamp, Price: u.Price}
}
