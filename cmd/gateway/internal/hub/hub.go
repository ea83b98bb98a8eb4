package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-dashboard/cmd/gateway/internal/repository"
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

type Hub struct {
	subscribers map[string]map[ClientInterface]bool
	clientSubs  map[ClientInterface]map[string]bool

	store    repository.PriceStore
	logger   *zap.Logger
	mu       sync.RWMutex
	refCount map[string]int
}

// NewHub starts relaying store messages to subscribers until ctx is done.
func NewHub(ctx context.Context, store repository.PriceStore, logger *zap.Logger) *Hub {
	h := &Hub{
		subscribers: make(map[string]map[ClientInterface]bool),
		clientSubs:  make(map[ClientInterface]map[string]bool),
		store:       store,
		logger:      logger,
		refCount:    make(map[string]int),
	}

	go h.store.RunPubSub(ctx, h.Broadcast)

	return h
}

// Attach subscribes a fresh socket to the given symbols without an ack, so a
// plain tick consumer only ever reads updates. The latest stored update for
// each symbol is sent first.
func (h *Hub) Attach(client ClientInterface, symbols ...string) {
	h.mu.Lock()
	added := h.subscribeLocked(client, symbols)
	h.mu.Unlock()

	if len(added) > 0 {
		h.logger.Debug("Client attached", zap.String("client", client.ID()), zap.Strings("symbols", added))
		go h.sendSnapshots(client, added)
	}
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest, validTickers map[string]bool) {
	switch req.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, req, validTickers)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, req)
	case protocol.ActionUnsubscribeAll:
		h.handleUnsubscribeAll(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest, validTickers map[string]bool) {
	var valid []string
	for _, s := range req.Payload.Symbols {
		if validTickers[s] {
			valid = append(valid, s)
		}
	}

	h.mu.Lock()
	added := h.subscribeLocked(client, valid)
	h.mu.Unlock()

	if len(added) == 0 {
		h.sendError(client, req.ID, "No valid/new symbols provided")
		return
	}

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Subscribed to %v", added))

	// outside the lock, Redis may be slow
	go h.sendSnapshots(client, added)
}

// subscribeLocked adds the symbols the client is not yet subscribed to and
// returns them. Caller holds h.mu.
func (h *Hub) subscribeLocked(client ClientInterface, symbols []string) []string {
	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}

	var added []string
	for _, sym := range symbols {
		if h.clientSubs[client][sym] {
			continue
		}
		h.clientSubs[client][sym] = true
		if h.subscribers[sym] == nil {
			h.subscribers[sym] = make(map[ClientInterface]bool)
		}
		h.subscribers[sym][client] = true
		added = append(added, sym)

		// one upstream subscription per symbol, however many clients
		h.refCount[sym]++
		if h.refCount[sym] == 1 {
			if err := h.store.SubscribeToFeed(context.Background(), sym); err != nil {
				h.logger.Error("Failed to subscribe upstream", zap.String("symbol", sym), zap.Error(err))
			}
		}
	}
	return added
}

func (h *Hub) sendSnapshots(client ClientInterface, symbols []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snapshots, err := h.store.GetSnapshots(ctx, symbols)
	if err != nil {
		h.logger.Warn("Snapshot lookup failed", zap.Strings("symbols", symbols), zap.Error(err))
		return
	}
	for _, snap := range snapshots {
		client.SendBytes([]byte(snap))
	}
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []string
	if subs, ok := h.clientSubs[client]; ok {
		for _, sym := range req.Payload.Symbols {
			if subs[sym] {
				delete(subs, sym)
				delete(h.subscribers[sym], client)
				removed = append(removed, sym)
				h.decreaseRefCount(sym)
			}
		}
	}

	if len(removed) > 0 {
		h.sendAck(client, req.ID, "success", fmt.Sprintf("Unsubscribed from %v", removed))
	} else {
		h.sendError(client, req.ID, fmt.Sprintf("Not subscribed to: %v", req.Payload.Symbols))
	}
}

func (h *Hub) handleUnsubscribeAll(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.clientSubs[client]; ok {
		for sym := range subs {
			delete(h.subscribers[sym], client)
			h.decreaseRefCount(sym)
		}
		// keep the client registered
		h.clientSubs[client] = make(map[string]bool)
	}
	h.sendAck(client, req.ID, "success", "Unsubscribed from all symbols")
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.clientSubs[client]; ok {
		for sym := range subs {
			delete(h.subscribers[sym], client)
			h.decreaseRefCount(sym)
		}
		delete(h.clientSubs, client)
	}
	client.Close()
}

// Shutdown closes every client socket.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clientSubs {
		client.Close()
	}
	h.logger.Info("Hub shut down", zap.Int("clients", len(h.clientSubs)))
}

// Broadcast forwards a raw update payload to every subscriber of symbol.
func (h *Hub) Broadcast(symbol string, payload string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.subscribers[symbol]; ok {
		msgBytes := []byte(payload)
		for client := range clients {
			client.SendBytes(msgBytes)
		}
	}
}

// NumSubscribers reports how many clients follow symbol.
func (h *Hub) NumSubscribers(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[symbol])
}

func (h *Hub) decreaseRefCount(symbol string) {
	h.refCount[symbol]--
	if h.refCount[symbol] <= 0 {
		if err := h.store.UnsubscribeFromFeed(context.Background(), symbol); err != nil {
			h.logger.Error("Failed to unsubscribe upstream", zap.String("symbol", symbol), zap.Error(err))
		}
		delete(h.refCount, symbol)
		delete(h.subscribers, symbol)
	}
}

func (h *Hub) sendAck(c ClientInterface, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "ack", ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "error", ID: id, Message: msg})
}
