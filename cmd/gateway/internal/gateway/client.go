package gateway

import (
	"encoding/json"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-dashboard/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-dashboard/pkg/wsconn"
)

// ClientAdapter connects one socket to the hub.
type ClientAdapter struct {
	*wsconn.Peer

	hub          *hub.Hub
	logger       *zap.Logger
	validTickers map[string]bool
	feedSymbol   string
}

var _ hub.ClientInterface = (*ClientAdapter)(nil)

// NewClient wraps an upgraded socket. A non-empty feedSymbol is streamed to
// the socket from the start, with no subscribe request needed.
func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, validTickers map[string]bool, feedSymbol string) *ClientAdapter {
	return &ClientAdapter{
		Peer:         wsconn.NewPeer(conn, logger, wsconn.DefaultOptions()),
		hub:          h,
		logger:       logger,
		validTickers: validTickers,
		feedSymbol:   feedSymbol,
	}
}

func (c *ClientAdapter) Start() {
	go c.WritePump()
	if c.feedSymbol != "" {
		c.hub.Attach(c, c.feedSymbol)
	}
	go func() {
		c.ReadLoop(c.handleText)
		c.hub.Unregister(c)
	}()
}

func (c *ClientAdapter) ID() string { return c.RemoteAddr() }

func (c *ClientAdapter) SendJSON(v interface{}) { c.Peer.SendJSON(v) }
func (c *ClientAdapter) SendBytes(b []byte)     { c.Peer.Send(b) }

func (c *ClientAdapter) handleText(payload []byte) {
	var req protocol.WSRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.SendJSON(protocol.WSResponse{Type: "error", Message: "Invalid JSON"})
		return
	}

	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	for i, s := range req.Payload.Symbols {
		req.Payload.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	c.hub.HandleCommand(c, req, c.validTickers)
}
