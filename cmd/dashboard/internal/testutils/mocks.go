package testutils

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/chart"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/ledger"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/session"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/viewer"
	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

// MockTickSource hands ticks to the session over an unbuffered channel,
// like feed.Source does.
type MockTickSource struct {
	ch      chan models.Tick
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	Started atomic.Bool

	mu  sync.Mutex
	err error
}

var _ session.TickSource = (*MockTickSource)(nil)

func NewMockTickSource() *MockTickSource {
	return &MockTickSource{
		ch:   make(chan models.Tick),
		done: make(chan struct{}),
	}
}

func (m *MockTickSource) Subscribe() (<-chan models.Tick, func()) { return m.ch, func() {} }
func (m *MockTickSource) Start()                                  { m.Started.Store(true) }
func (m *MockTickSource) Done() <-chan struct{}                   { return m.done }

func (m *MockTickSource) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Push blocks until the consumer took the tick. False once the source stopped.
func (m *MockTickSource) Push(t models.Tick) bool {
	if m.closed.Load() {
		return false
	}
	select {
	case m.ch <- t:
		return true
	case <-m.done:
		return false
	case <-time.After(2 * time.Second):
		return false
	}
}

// Fail simulates a dropped connection.
func (m *MockTickSource) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.stop()
}

func (m *MockTickSource) Close() error {
	m.stop()
	return nil
}

func (m *MockTickSource) stop() {
	m.closed.Store(true)
	m.once.Do(func() { close(m.done) })
}

// RecordingRenderer keeps every point list it was handed.
type RecordingRenderer struct {
	Mu     sync.Mutex
	Frames [][]chart.Point
}

func (r *RecordingRenderer) Render(points []chart.Point) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.Frames = append(r.Frames, points)
}

func (r *RecordingRenderer) Count() int {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return len(r.Frames)
}

// RecordingObserver keeps every tick update and trade outcome.
type RecordingObserver struct {
	Mu     sync.Mutex
	Ticks  []session.TickUpdate
	Trades []ledger.Outcome
}

func (o *RecordingObserver) OnTick(u session.TickUpdate) {
	o.Mu.Lock()
	defer o.Mu.Unlock()
	o.Ticks = append(o.Ticks, u)
}

func (o *RecordingObserver) OnTrade(out ledger.Outcome) {
	o.Mu.Lock()
	defer o.Mu.Unlock()
	o.Trades = append(o.Trades, out)
}

// FixedClock always returns the same instant.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// MockClient simulates a connected viewer socket. Direct replies and
// broadcasts land in the same ordered Frames slice.
type MockClient struct {
	IDVal  string
	Frames []viewer.Response
	Closed bool
	Mu     sync.Mutex
}

var _ viewer.ClientInterface = (*MockClient)(nil)

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if resp, ok := v.(viewer.Response); ok {
		m.Frames = append(m.Frames, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	var resp viewer.Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Frames = append(m.Frames, resp)
}

// Types lists frame types in arrival order.
func (m *MockClient) Types() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]string, len(m.Frames))
	for i, f := range m.Frames {
		out[i] = f.Type
	}
	return out
}

// Last returns the newest frame of the given type.
func (m *MockClient) Last(typ string) (viewer.Response, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for i := len(m.Frames) - 1; i >= 0; i-- {
		if m.Frames[i].Type == typ {
			return m.Frames[i], true
		}
	}
	return viewer.Response{}, false
}

func (m *MockClient) Reset() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Frames = nil
}
