package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/chart"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/ledger"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/session"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/stats"
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// Trader is the part of the session the hub drives.
type Trader interface {
	Buy(ctx context.Context, shares int64) (ledger.Outcome, error)
	Sell(ctx context.Context, shares int64) (ledger.Outcome, error)
	View(ctx context.Context) (session.View, error)
}

// Hub fans session output out to every connected viewer and routes viewer
// requests back into the session. Render, OnTick and OnTrade run on the
// session goroutine and never block on a client.
type Hub struct {
	clients map[ClientInterface]bool
	trader  Trader
	logger  *zap.Logger
	mu      sync.RWMutex

	requestTimeout time.Duration
	accepted       atomic.Int64
	rejected       atomic.Int64
}

var (
	_ chart.Renderer   = (*Hub)(nil)
	_ session.Observer = (*Hub)(nil)
)

func NewHub(trader Trader, logger *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[ClientInterface]bool),
		trader:         trader,
		logger:         logger,
		requestTimeout: 5 * time.Second,
	}
}

// Register adds a client and sends it the current state. Anything broadcast
// after registration is at least as new as that state.
func (h *Hub) Register(c ClientInterface) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Viewer connected", zap.String("client", c.ID()), zap.Int("clients", n))
	h.sendSnapshot(c, "")
}

func (h *Hub) Unregister(c ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.Close()
	h.logger.Info("Viewer disconnected", zap.String("client", c.ID()), zap.Int("clients", len(h.clients)))
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[ClientInterface]bool)
}

func (h *Hub) NumClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TradeCounts returns how many trades were accepted and rejected so far.
func (h *Hub) TradeCounts() (accepted, rejected int64) {
	return h.accepted.Load(), h.rejected.Load()
}

func (h *Hub) HandleCommand(c ClientInterface, req Request) {
	switch req.Action {
	case ActionBuy, ActionSell:
		h.handleTrade(c, req)
	case ActionSnapshot:
		h.sendSnapshot(c, req.ID)
	default:
		h.sendError(c, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleTrade(c ClientInterface, req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), h.requestTimeout)
	defer cancel()

	var (
		out ledger.Outcome
		err error
	)
	if req.Action == ActionBuy {
		out, err = h.trader.Buy(ctx, req.Payload.Shares)
	} else {
		out, err = h.trader.Sell(ctx, req.Payload.Shares)
	}
	if err != nil {
		h.sendError(c, req.ID, err.Error())
		return
	}

	ledgerFrame := Response{Type: TypeLedger, Data: out.Snapshot}

	if !out.Accepted {
		c.SendJSON(Response{Type: TypeAck, ID: req.ID, Status: StatusRejected, Message: out.Reason.Error()})
		c.SendJSON(ledgerFrame)
		return
	}

	e := out.Entry
	c.SendJSON(Response{
		Type:    TypeAck,
		ID:      req.ID,
		Status:  StatusAccepted,
		Message: fmt.Sprintf("%s %d @ %s", e.Operation, e.Shares, e.Price),
		Data:    e,
	})
	// every viewer shares the one account
	h.broadcast(ledgerFrame)
}

func (h *Hub) sendSnapshot(c ClientInterface, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.requestTimeout)
	defer cancel()

	v, err := h.trader.View(ctx)
	if err != nil {
		h.sendError(c, id, err.Error())
		return
	}

	if id != "" {
		c.SendJSON(Response{Type: TypeAck, ID: id, Status: "success"})
	}
	c.SendJSON(Response{Type: TypeChart, Data: v.Points})
	c.SendJSON(Response{Type: TypeStats, Data: statsData(v.Stats.Snapshot(), v.FeedUp)})
	c.SendJSON(Response{Type: TypeLedger, Data: v.Ledger})
}

// Render pushes the full point list; viewers replace their chart with it.
func (h *Hub) Render(points []chart.Point) {
	h.broadcast(Response{Type: TypeChart, Data: points})
}

// OnTick pushes fresh stats. FeedUp is true here: ticks only arrive from a
// live feed, and the session stops delivering them once the feed ends.
func (h *Hub) OnTick(u session.TickUpdate) {
	h.broadcast(Response{Type: TypeStats, Data: statsData(u.Stats.Snapshot(), true)})
}

func (h *Hub) OnTrade(out ledger.Outcome) {
	if out.Accepted {
		h.accepted.Add(1)
	} else {
		h.rejected.Add(1)
	}
}

func (h *Hub) broadcast(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.SendBytes(b)
	}
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(Response{Type: TypeError, ID: id, Message: msg})
}

func statsData(s stats.Snapshot, feedUp bool) StatsData {
	return StatsData{Count: s.Count, Mean: s.Mean, Max: s.Max, Min: s.Min, FeedUp: feedUp}
}
