package viewer

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/pkg/wsconn"
)

// Viewer requests are tiny; anything bigger is a misbehaving client.
const maxRequestSize = 64 * 1024

type Client struct {
	*wsconn.Peer

	id     string
	hub    *Hub
	logger *zap.Logger
}

var _ ClientInterface = (*Client)(nil)

func NewClient(conn net.Conn, h *Hub, logger *zap.Logger) *Client {
	id := uuid.NewString()
	logger = logger.With(zap.String("client", id))

	opts := wsconn.DefaultOptions()
	opts.MaxMessageSize = maxRequestSize

	return &Client{
		Peer:   wsconn.NewPeer(conn, logger, opts),
		id:     id,
		hub:    h,
		logger: logger,
	}
}

// ServeWS upgrades the request and attaches the socket to the hub.
func ServeWS(h *Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Upgrade failed", zap.Error(err))
			return
		}
		NewClient(conn, h, logger).Start()
	}
}

// Start registers the client, which queues the current state, then serves requests.
func (c *Client) Start() {
	go c.WritePump()
	c.hub.Register(c)
	go func() {
		c.ReadLoop(c.handleText)
		c.hub.Unregister(c)
	}()
}

func (c *Client) ID() string { return c.id }

func (c *Client) SendJSON(v interface{}) { c.Peer.SendJSON(v) }
func (c *Client) SendBytes(b []byte)     { c.Peer.Send(b) }

func (c *Client) handleText(payload []byte) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		c.SendJSON(Response{Type: TypeError, Message: "Invalid JSON"})
		return
	}
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))

	c.hub.HandleCommand(c, req)
}
