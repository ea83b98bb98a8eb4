package testutils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// FeedServer simulates the stream endpoint: every connected socket receives
// whatever the test sends.
type FeedServer struct {
	*httptest.Server

	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    []*websocket.Conn
	joined   chan struct{}
}

func NewFeedServer(t *testing.T) *FeedServer {
	t.Helper()

	fs := &FeedServer{joined: make(chan struct{}, 16)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()
		fs.joined <- struct{}{}

		// drain control frames until the peer goes away
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

// WSURL returns the ws:// address of the server.
func (fs *FeedServer) WSURL() string {
	return "ws" + strings.TrimPrefix(fs.Server.URL, "http")
}

// WaitForClient blocks until a socket has connected.
func (fs *FeedServer) WaitForClient(t *testing.T) {
	t.Helper()
	select {
	case <-fs.joined:
	case <-time.After(2 * time.Second):
		t.Fatal("no client connected to feed server")
	}
}

// Send writes a text frame to every connected socket.
func (fs *FeedServer) Send(t *testing.T, msg string) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Logf("feed server write: %v", err)
		}
	}
}

// DropAll cuts every connection without a close handshake.
func (fs *FeedServer) DropAll() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		c.UnderlyingConn().Close()
	}
	fs.conns = nil
}

func (fs *FeedServer) Close() {
	fs.DropAll()
	fs.Server.Close()
}
