package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type Health struct {
	Status         string `json:"status"`
	Ticks          int64  `json:"ticks"`
	FeedUp         bool   `json:"feed_up"`
	Viewers        int    `json:"viewers"`
	TradesAccepted int64  `json:"trades_accepted"`
	TradesRejected int64  `json:"trades_rejected"`
}

// HealthHandler reports the session state. It answers 503 once the session stopped.
func HealthHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		v, err := h.trader.View(ctx)
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(Health{Status: err.Error()})
			return
		}

		accepted, rejected := h.TradeCounts()
		json.NewEncoder(w).Encode(Health{
			Status:         "ok",
			Ticks:          v.Stats.Count,
			FeedUp:         v.FeedUp,
			Viewers:        h.NumClients(),
			TradesAccepted: accepted,
			TradesRejected: rejected,
		})
	}
}
