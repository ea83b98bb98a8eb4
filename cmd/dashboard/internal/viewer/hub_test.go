package viewer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/ledger"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/session"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/testutils"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/viewer"
	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

type fixture struct {
	src  *testutils.MockTickSource
	sess *session.Session
	hub  *viewer.Hub
}

func setup(t *testing.T, balance int64) *fixture {
	t.Helper()

	src := testutils.NewMockTickSource()
	l := ledger.New(decimal.NewFromInt(balance), testutils.FixedClock{T: time.UnixMilli(1)}, zap.NewNop())
	sess := session.New(src, l, zap.NewNop())
	h := viewer.NewHub(sess, zap.NewNop())
	sess.AddRenderer(h)
	sess.AddObserver(h)

	go sess.Run(context.Background())
	t.Cleanup(func() { sess.Close() })

	return &fixture{src: src, sess: sess, hub: h}
}

// tick pushes a tick and waits until the session finished handling it.
func (f *fixture) tick(t *testing.T, ts int64, price float64) {
	t.Helper()
	if !f.src.Push(models.Tick{Timestamp: ts, Price: price}) {
		t.Fatalf("tick %d not consumed", ts)
	}
	if _, err := f.sess.View(context.Background()); err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestHub_Register_SendsSnapshot(t *testing.T) {
	f := setup(t, 100)
	f.tick(t, 1, 10)

	client := testutils.NewMockClient("c1")
	f.hub.Register(client)

	want := []string{"chart", "stats", "ledger"}
	if got := client.Types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	if f.hub.NumClients() != 1 {
		t.Errorf("Expected 1 client, got %d", f.hub.NumClients())
	}
}

func TestHub_TickBroadcastsChartAndStats(t *testing.T) {
	f := setup(t, 100)
	a := testutils.NewMockClient("a")
	b := testutils.NewMockClient("b")
	f.hub.Register(a)
	f.hub.Register(b)
	a.Reset()
	b.Reset()

	f.tick(t, 1, 10)
	f.tick(t, 2, 12)

	for _, c := range []*testutils.MockClient{a, b} {
		want := []string{"chart", "stats", "chart", "stats"}
		if got := c.Types(); !reflect.DeepEqual(got, want) {
			t.Errorf("%s: expected %v, got %v", c.ID(), want, got)
		}

		frame, _ := c.Last("chart")
		points, ok := frame.Data.([]interface{})
		if !ok || len(points) != 2 {
			t.Errorf("%s: chart frame should carry the full history, got %v", c.ID(), frame.Data)
		}
	}

	frame, _ := a.Last("stats")
	data := frame.Data.(map[string]interface{})
	if data["count"].(float64) != 2 || data["mean"].(float64) != 11 {
		t.Errorf("Unexpected stats payload %v", data)
	}
	if data["feed_up"] != true {
		t.Errorf("Stats pushed on a tick should report the feed up, got %v", data["feed_up"])
	}
}

func TestHub_Buy_Accepted(t *testing.T) {
	f := setup(t, 100)
	f.tick(t, 1, 10)

	buyer := testutils.NewMockClient("buyer")
	watcher := testutils.NewMockClient("watcher")
	f.hub.Register(buyer)
	f.hub.Register(watcher)
	buyer.Reset()
	watcher.Reset()

	f.hub.HandleCommand(buyer, viewer.Request{
		Action:  "buy",
		Payload: viewer.RequestPayload{Shares: 3},
		ID:      "req-1",
	})

	if got := buyer.Types(); !reflect.DeepEqual(got, []string{"ack", "ledger"}) {
		t.Fatalf("Buyer expected ack then ledger, got %v", got)
	}
	ack, _ := buyer.Last("ack")
	if ack.Status != "accepted" || ack.ID != "req-1" {
		t.Errorf("Unexpected ack %+v", ack)
	}
	if got := watcher.Types(); !reflect.DeepEqual(got, []string{"ledger"}) {
		t.Errorf("Other viewers should see the ledger change, got %v", got)
	}

	if accepted, _ := f.hub.TradeCounts(); accepted != 1 {
		t.Errorf("Expected 1 accepted trade, got %d", accepted)
	}
}

func TestHub_Buy_RejectedIsNotAnError(t *testing.T) {
	f := setup(t, 100)
	f.tick(t, 1, 50)

	buyer := testutils.NewMockClient("buyer")
	watcher := testutils.NewMockClient("watcher")
	f.hub.Register(buyer)
	f.hub.Register(watcher)
	buyer.Reset()
	watcher.Reset()

	f.hub.HandleCommand(buyer, viewer.Request{
		Action:  "buy",
		Payload: viewer.RequestPayload{Shares: 2},
		ID:      "req-2",
	})

	ack, ok := buyer.Last("ack")
	if !ok || ack.Status != "rejected" {
		t.Fatalf("Expected rejected ack, got %v", buyer.Types())
	}
	if ack.Message != ledger.ErrInsufficientFunds.Error() {
		t.Errorf("Expected reason %q, got %q", ledger.ErrInsufficientFunds, ack.Message)
	}
	if _, ok := buyer.Last("error"); ok {
		t.Error("A rejection must not be reported as an error frame")
	}
	if len(watcher.Types()) != 0 {
		t.Errorf("Rejected trade should not be broadcast, got %v", watcher.Types())
	}
	if _, rejected := f.hub.TradeCounts(); rejected != 1 {
		t.Errorf("Expected 1 rejected trade, got %d", rejected)
	}
}

func TestHub_UnknownAction(t *testing.T) {
	f := setup(t, 100)
	client := testutils.NewMockClient("c1")

	f.hub.HandleCommand(client, viewer.Request{Action: "short", ID: "x"})

	frame, ok := client.Last("error")
	if !ok || frame.ID != "x" {
		t.Errorf("Expected error frame for unknown action, got %v", client.Types())
	}
}

func TestHub_SnapshotRequest(t *testing.T) {
	f := setup(t, 100)
	client := testutils.NewMockClient("c1")

	f.hub.HandleCommand(client, viewer.Request{Action: "snapshot", ID: "s1"})

	want := []string{"ack", "chart", "stats", "ledger"}
	if got := client.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	frame, _ := client.Last("stats")
	if data := frame.Data.(map[string]interface{}); data["mean"] != nil {
		t.Errorf("Mean should be null before the first tick, got %v", data["mean"])
	}
}

func TestHub_Unregister(t *testing.T) {
	f := setup(t, 100)
	client := testutils.NewMockClient("c1")
	f.hub.Register(client)
	client.Reset()

	f.hub.Unregister(client)
	f.hub.Unregister(client) // second call is a no-op

	if !client.Closed {
		t.Error("Unregister should close the client")
	}

	f.tick(t, 1, 10)
	if n := len(client.Types()); n != 0 {
		t.Errorf("Unregistered client received %d frames", n)
	}
}

func TestHub_TradeAfterSessionClosed(t *testing.T) {
	f := setup(t, 100)
	client := testutils.NewMockClient("c1")
	f.sess.Close()

	f.hub.HandleCommand(client, viewer.Request{Action: "sell", Payload: viewer.RequestPayload{Shares: 1}})

	frame, ok := client.Last("error")
	if !ok || frame.Message != session.ErrClosed.Error() {
		t.Errorf("Expected %q error frame, got %+v", session.ErrClosed, frame)
	}
}

func TestHealthHandler(t *testing.T) {
	f := setup(t, 100)
	f.tick(t, 1, 10)
	f.tick(t, 2, 11)

	rec := httptest.NewRecorder()
	viewer.HealthHandler(f.hub)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var h viewer.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("Bad body: %v", err)
	}
	if h.Ticks != 2 || !h.FeedUp || h.Status != "ok" {
		t.Errorf("Unexpected health %+v", h)
	}

	f.sess.Close()
	rec = httptest.NewRecorder()
	viewer.HealthHandler(f.hub)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after close, got %d", rec.Code)
	}
}
