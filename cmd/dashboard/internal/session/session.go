package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/chart"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/ledger"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/stats"
	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

// ErrClosed is returned to requests that arrive after the session stopped.
var ErrClosed = errors.New("session closed")

// TickSource is the stream handle the session consumes (feed.Source in production).
type TickSource interface {
	Subscribe() (<-chan models.Tick, func())
	Start()
	Done() <-chan struct{}
	Err() error
	Close() error
}

// TickUpdate is what observers see after each accepted tick.
type TickUpdate struct {
	Tick  models.Tick
	Stats stats.RunningStats
	Count int
}

// Observer is notified on the session goroutine; it must not block for long
// and must not call back into the session.
type Observer interface {
	OnTick(u TickUpdate)
	OnTrade(o ledger.Outcome)
}

// View is a full read of the session state.
type View struct {
	Stats  stats.RunningStats
	Ledger ledger.Snapshot
	Points []chart.Point
	FeedUp bool
}

type cmdType int

const (
	cmdBuy cmdType = iota
	cmdSell
	cmdView
)

type command struct {
	typ    cmdType
	shares int64
	respCh chan<- response
}

type response struct {
	outcome ledger.Outcome
	view    View
}

// Session is the single event timeline: ticks and viewer requests are
// processed one at a time, so stats, history and ledger need no locks.
type Session struct {
	src         TickSource
	ticks       <-chan models.Tick
	unsubscribe func()

	stats   stats.RunningStats
	history *chart.History
	ledger  *ledger.Ledger
	feedUp  bool

	renderers []chart.Renderer
	observers []Observer
	logger    *zap.Logger

	cmdCh chan command

	mu        sync.Mutex
	running   bool
	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
}

// New subscribes to src right away so no tick is missed once Run starts it.
func New(src TickSource, l *ledger.Ledger, logger *zap.Logger) *Session {
	ticks, unsubscribe := src.Subscribe()
	return &Session{
		src:         src,
		ticks:       ticks,
		unsubscribe: unsubscribe,
		stats:       stats.Empty(),
		history:     chart.NewHistory(),
		ledger:      l,
		feedUp:      true,
		logger:      logger,
		cmdCh:       make(chan command, 64),
		closed:      make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// AddRenderer registers a chart surface. Call before Run.
func (s *Session) AddRenderer(r chart.Renderer) { s.renderers = append(s.renderers, r) }

// AddObserver registers a tick/trade listener. Call before Run.
func (s *Session) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run starts the feed and processes events until ctx is done or Close is called.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return ErrClosed
	default:
	}
	s.running = true
	s.mu.Unlock()
	defer close(s.stopped)

	s.src.Start()
	feedDone := s.src.Done()

	s.logger.Info("Session started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		case t := <-s.ticks:
			s.handleTick(t)
		case <-feedDone:
			feedDone = nil
			if s.closing.Load() {
				// Close stopped the feed; s.closed follows
				continue
			}
			s.feedUp = false
			s.logger.Warn("Feed ended, serving last known state",
				zap.Error(s.src.Err()), zap.Int("ticks", s.history.Len()))
		case cmd := <-s.cmdCh:
			s.handleCommand(cmd)
		}
	}
}

func (s *Session) handleTick(t models.Tick) {
	// a tick handed over while Close was running is discarded
	if s.closing.Load() {
		return
	}

	s.stats = s.stats.Observe(t)
	s.ledger.ObservePrice(t.Price)
	s.history.Append(t)

	if len(s.renderers) > 0 {
		points := s.history.Points()
		for _, r := range s.renderers {
			r.Render(points)
		}
	}

	u := TickUpdate{Tick: t, Stats: s.stats, Count: s.history.Len()}
	for _, o := range s.observers {
		o.OnTick(u)
	}
}

func (s *Session) handleCommand(cmd command) {
	var resp response

	switch cmd.typ {
	case cmdBuy:
		resp.outcome = s.ledger.Buy(cmd.shares)
	case cmdSell:
		resp.outcome = s.ledger.Sell(cmd.shares)
	case cmdView:
		resp.view = View{
			Stats:  s.stats,
			Ledger: s.ledger.Snapshot(),
			Points: s.history.Points(),
			FeedUp: s.feedUp,
		}
	}

	if cmd.typ == cmdBuy || cmd.typ == cmdSell {
		for _, o := range s.observers {
			o.OnTrade(resp.outcome)
		}
	}

	cmd.respCh <- resp
}

func (s *Session) do(ctx context.Context, cmd command) (response, error) {
	respCh := make(chan response, 1)
	cmd.respCh = respCh

	select {
	case <-s.closed:
		return response{}, ErrClosed
	case <-s.stopped:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	case s.cmdCh <- cmd:
	}

	select {
	case <-s.stopped:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	case resp := <-respCh:
		return resp, nil
	}
}

// Buy asks the ledger to buy shares at the latest price. A rejection is an
// Outcome with Accepted=false, not an error; error means the request never ran.
func (s *Session) Buy(ctx context.Context, shares int64) (ledger.Outcome, error) {
	resp, err := s.do(ctx, command{typ: cmdBuy, shares: shares})
	return resp.outcome, err
}

// Sell asks the ledger to sell shares at the latest price.
func (s *Session) Sell(ctx context.Context, shares int64) (ledger.Outcome, error) {
	resp, err := s.do(ctx, command{typ: cmdSell, shares: shares})
	return resp.outcome, err
}

// View reads the whole session state.
func (s *Session) View(ctx context.Context) (View, error) {
	resp, err := s.do(ctx, command{typ: cmdView})
	return resp.view, err
}

// Close closes the feed first, so no tick is applied afterwards, then stops the loop.
func (s *Session) Close() error {
	s.closing.Store(true)
	err := s.src.Close()
	s.unsubscribe()

	s.mu.Lock()
	s.closeOnce.Do(func() { close(s.closed) })
	running := s.running
	s.mu.Unlock()

	if running {
		<-s.stopped
	}
	s.logger.Info("Session closed", zap.Int("ticks", s.history.Len()), zap.Int("trades", s.ledger.Len()))
	return err
}
