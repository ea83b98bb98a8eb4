package wsconn_test

import (
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/pkg/wsconn"
)

func pipe(t *testing.T, opts wsconn.Options) (*wsconn.Peer, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return wsconn.NewPeer(server, zap.NewNop(), opts), client
}

func TestPeer_ReadLoop(t *testing.T) {
	peer, client := pipe(t, wsconn.DefaultOptions())

	got := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		peer.ReadLoop(func(b []byte) { got <- string(b) })
		close(done)
	}()

	if err := wsutil.WriteClientText(client, []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// binary frames are ignored
	if err := wsutil.WriteClientBinary(client, []byte{1, 2}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := wsutil.WriteClientText(client, []byte("world")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	for _, want := range []string{"hello", "world"} {
		select {
		case msg := <-got:
			if msg != want {
				t.Errorf("Expected %q, got %q", want, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for %q", want)
		}
	}

	wsutil.WriteClientMessage(client, ws.OpClose, nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadLoop should return on a close frame")
	}
}

func TestPeer_ReadLoop_RejectsOversizedFrame(t *testing.T) {
	opts := wsconn.DefaultOptions()
	opts.MaxMessageSize = 8
	peer, client := pipe(t, opts)

	called := false
	done := make(chan struct{})
	go func() {
		peer.ReadLoop(func([]byte) { called = true })
		close(done)
	}()

	go wsutil.WriteClientText(client, []byte("way more than eight bytes"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadLoop should drop a peer that sends oversized frames")
	}
	if called {
		t.Error("Oversized frame must not be delivered")
	}
}

func TestPeer_WritePump(t *testing.T) {
	peer, client := pipe(t, wsconn.DefaultOptions())
	go peer.WritePump()

	if !peer.Send([]byte("one")) {
		t.Fatal("Send should queue the frame")
	}
	if !peer.SendJSON(map[string]int{"n": 2}) {
		t.Fatal("SendJSON should queue the frame")
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	for _, want := range []string{"one", `{"n":2}`} {
		msg, err := wsutil.ReadServerText(client)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if string(msg) != want {
			t.Errorf("Expected %q, got %q", want, msg)
		}
	}

	peer.Close()
	peer.Close() // idempotent

	if _, err := wsutil.ReadServerText(client); err == nil {
		t.Error("Expected the close frame to end the stream")
	}
	if peer.Send([]byte("late")) {
		t.Error("Send after Close must report a drop")
	}
}

func TestPeer_AnswersPing(t *testing.T) {
	peer, client := pipe(t, wsconn.DefaultOptions())
	go peer.WritePump()
	go peer.ReadLoop(func([]byte) {})

	if err := wsutil.WriteClientMessage(client, ws.OpPing, []byte("are you there")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	frame, err := ws.ReadFrame(client)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if frame.Header.OpCode != ws.OpPong {
		t.Errorf("Expected a pong, got opcode %v", frame.Header.OpCode)
	}
	if string(frame.Payload) != "are you there" {
		t.Errorf("Pong should echo the ping payload, got %q", frame.Payload)
	}
}

func TestPeer_SendDropsWhenFull(t *testing.T) {
	opts := wsconn.DefaultOptions()
	opts.SendBuffer = 1
	peer, _ := pipe(t, opts)

	if !peer.Send([]byte("a")) {
		t.Fatal("First frame should fit")
	}
	if peer.Send([]byte("b")) {
		t.Error("Second frame should be dropped while nothing drains the queue")
	}
}
