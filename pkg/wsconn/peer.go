// Package wsconn is the server side of a gobwas/ws socket: a bounded
// outbound queue drained by a write pump, and a read loop that hands text
// frames to the caller.
package wsconn

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func DefaultOptions() Options {
	return Options{
		WriteWait:      5 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     50 * time.Second,
		MaxMessageSize: 512 * 1024,
		SendBuffer:     256,
	}
}

type frame struct {
	op      ws.OpCode
	payload []byte
}

type Peer struct {
	conn   net.Conn
	send   chan frame
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func NewPeer(conn net.Conn, logger *zap.Logger, opts Options) *Peer {
	def := DefaultOptions()
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = def.PingPeriod
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	return &Peer{
		conn:   conn,
		send:   make(chan frame, opts.SendBuffer),
		opts:   opts,
		logger: logger,
	}
}

func (p *Peer) RemoteAddr() string { return p.conn.RemoteAddr().String() }

// Send queues a text frame. It never blocks: when the queue is full or the
// peer is closed the frame is dropped and Send returns false.
func (p *Peer) Send(b []byte) bool {
	return p.enqueue(frame{op: ws.OpText, payload: b})
}

func (p *Peer) enqueue(f frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- f:
		return true
	default:
		p.logger.Debug("Dropping frame for slow peer", zap.String("peer", p.RemoteAddr()), zap.Int("op", int(f.op)))
		return false
	}
}

func (p *Peer) SendJSON(v interface{}) bool {
	b, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("Failed to encode frame", zap.Error(err))
		return false
	}
	return p.Send(b)
}

// Close ends the outbound queue; WritePump sends a close frame and closes
// the conn. Safe to call more than once.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}

// ReadLoop calls onText for each text frame and queues a pong for each ping.
// It returns when the peer disconnects, sends a close frame, goes silent past
// PongWait, or breaks the framing rules (oversized or fragmented frames). It
// closes the conn on return.
func (p *Peer) ReadLoop(onText func(payload []byte)) {
	defer p.conn.Close()

	p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))

	for {
		header, err := ws.ReadHeader(p.conn)
		if err != nil {
			return
		}

		if header.Length > p.opts.MaxMessageSize {
			p.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}
		if !header.Fin {
			p.logger.Warn("Peer sent fragmented message (not supported)")
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(p.conn, payload); err != nil {
			return
		}
		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		// any frame proves the peer is alive
		p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			// control payloads are at most 125 bytes; the pong echoes it
			p.enqueue(frame{op: ws.OpPong, payload: payload})
		case ws.OpText:
			onText(payload)
		}
	}
}

// WritePump drains the queue onto the conn and pings every PingPeriod.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(p.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case f, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			if !ok {
				p.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerMessage(p.conn, f.op, f.payload); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			if err := wsutil.WriteServerMessage(p.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
