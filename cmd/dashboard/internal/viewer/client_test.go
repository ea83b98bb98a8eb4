package viewer_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/viewer"
)

func dialViewer(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(viewer.ServeWS(f.hub, zap.NewNop()))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) viewer.Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp viewer.Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return resp
}

// readUntil skips broadcasts until a frame of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) viewer.Response {
	t.Helper()
	for i := 0; i < 20; i++ {
		if resp := readFrame(t, conn); resp.Type == typ {
			return resp
		}
	}
	t.Fatalf("No %s frame received", typ)
	return viewer.Response{}
}

func TestClient_SnapshotOnConnect(t *testing.T) {
	f := setup(t, 100)
	f.tick(t, 1, 10)

	conn := dialViewer(t, f)

	for _, want := range []string{"chart", "stats", "ledger"} {
		if got := readFrame(t, conn); got.Type != want {
			t.Fatalf("Expected %s frame, got %s", want, got.Type)
		}
	}
}

func TestClient_BuyOverSocket(t *testing.T) {
	f := setup(t, 100)
	f.tick(t, 1, 10)
	conn := dialViewer(t, f)

	err := conn.WriteJSON(map[string]interface{}{
		"action":  " BUY ",
		"payload": map[string]int{"shares": 2},
		"id":      "r1",
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ack := readUntil(t, conn, "ack")
	if ack.Status != "accepted" || ack.ID != "r1" {
		t.Errorf("Unexpected ack %+v", ack)
	}

	ledgerFrame := readUntil(t, conn, "ledger")
	data := ledgerFrame.Data.(map[string]interface{})
	if data["balance"] != "80" || data["owned_shares"].(float64) != 2 {
		t.Errorf("Unexpected ledger %v", data)
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	f := setup(t, 100)
	conn := dialViewer(t, f)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if resp := readUntil(t, conn, "error"); resp.Message != "Invalid JSON" {
		t.Errorf("Unexpected error message %q", resp.Message)
	}
}

func TestClient_DisconnectUnregisters(t *testing.T) {
	f := setup(t, 100)
	conn := dialViewer(t, f)
	readUntil(t, conn, "ledger")

	if f.hub.NumClients() != 1 {
		t.Fatalf("Expected 1 viewer, got %d", f.hub.NumClients())
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.NumClients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Viewer was not unregistered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
