package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

// ErrConnection wraps a transport failure. The Source does not reconnect;
// it stops and reports the error through Err.
var ErrConnection = errors.New("feed: connection lost")

const (
	defaultDialTimeout = 10 * time.Second
	defaultReadLimit   = 512 * 1024
	maxLoggedPayload   = 256
)

type Options struct {
	DialTimeout time.Duration
	ReadLimit   int64
}

type subscriber struct {
	ch   chan models.Tick
	gone chan struct{}
}

// Source is the handle on one stream connection. Ticks are delivered over
// unbuffered channels, so nothing is left in flight once Close returns.
type Source struct {
	endpoint string
	conn     *websocket.Conn
	logger   *zap.Logger

	mu      sync.Mutex
	subs    []*subscriber
	started bool
	err     error

	delivered atomic.Int64
	dropped   atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	wg        sync.WaitGroup
}

// Dial opens the stream connection. Reading begins on Start so that
// subscribers can register first.
func Dial(ctx context.Context, endpoint string, logger *zap.Logger, opts Options) (*Source, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}
	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, endpoint, err)
	}
	conn.SetReadLimit(opts.ReadLimit)

	logger.Info("Feed connected", zap.String("endpoint", endpoint))

	return &Source{
		endpoint: endpoint,
		conn:     conn,
		logger:   logger,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Subscribe registers a tick consumer. The returned func unregisters it.
func (s *Source) Subscribe() (<-chan models.Tick, func()) {
	sub := &subscriber{
		ch:   make(chan models.Tick),
		gone: make(chan struct{}),
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.mu.Lock()
			for i, cand := range s.subs {
				if cand == sub {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			close(sub.gone)
		})
	}
}

// Start launches the read loop. Calling it again, or after Close, is a no-op.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return
	default:
	}
	if s.started {
		return
	}
	s.started = true

	s.wg.Add(1)
	go s.readLoop()
}

func (s *Source) readLoop() {
	defer s.wg.Done()
	defer s.finish()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.fail(fmt.Errorf("%w: %v", ErrConnection, err))
			return
		}

		tick, err := DecodeTick(payload)
		if err != nil {
			s.dropped.Add(1)
			s.logger.Warn("Dropping undecodable message", zap.Error(err), zap.ByteString("payload", clip(payload)))
			continue
		}

		if !s.publish(tick) {
			return
		}
		s.delivered.Add(1)
	}
}

// publish hands the tick to each subscriber in registration order.
// It returns false once the Source is closed.
func (s *Source) publish(tick models.Tick) bool {
	s.mu.Lock()
	subs := make([]*subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- tick:
		case <-sub.gone:
		case <-s.closed:
			return false
		}
	}
	return true
}

func (s *Source) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.logger.Error("Feed stopped", zap.String("endpoint", s.endpoint), zap.Error(err))
	s.shutdown()
}

func (s *Source) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.closed)
		s.mu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *Source) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Close terminates the connection and waits for the read loop to exit.
// No tick reaches any subscriber after Close returns.
func (s *Source) Close() error {
	s.shutdown()
	s.wg.Wait()
	s.finish()
	s.logger.Info("Feed closed", zap.String("endpoint", s.endpoint),
		zap.Int64("delivered", s.delivered.Load()), zap.Int64("dropped", s.dropped.Load()))
	return nil
}

// Done is closed when the Source stops, whether by Close or a transport error.
func (s *Source) Done() <-chan struct{} { return s.done }

// Closed reports whether Close was called or the connection failed.
func (s *Source) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Err returns the transport error that stopped the Source, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Source) Delivered() int64 { return s.delivered.Load() }
func (s *Source) Dropped() int64   { return s.dropped.Load() }

func clip(b []byte) []byte {
	if len(b) > maxLoggedPayload {
		return b[:maxLoggedPayload]
	}
	return b
}
