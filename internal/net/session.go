package net

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ms2go/server/internal/net/packet"
	"go.uber.org/zap"
)

// Session represents a single client connection. Each session runs its own
// reader and writer goroutines; inbound frames are dispatched on the reader
// goroutine, so handlers from different sessions execute fully in parallel
// and shared aggregates must take their own locks.
type Session struct {
	id   uint64
	conn net.Conn

	state atomic.Int32 // packet.SessionState stored as int32

	OutQueue chan []byte // writer goroutine reads from here

	IP          string
	AccountName string
	CharID      int64

	registry *packet.Registry

	closeCh   chan struct{}
	closeOnce func()
	closed    atomic.Bool

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int
	pktCount   int
	pktResetAt int64

	onClose func(*Session)

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, outSize, pktPerSec int, reg *packet.Registry, log *zap.Logger) *Session {
	s := &Session{
		id:        id,
		conn:      conn,
		OutQueue:  make(chan []byte, outSize),
		IP:        conn.RemoteAddr().String(),
		closeCh:   make(chan struct{}),
		registry:  reg,
		pktPerSec: pktPerSec,
		log:       log.With(zap.Uint64("session", id)),
	}
	var once atomic.Bool
	s.closeOnce = func() {
		if once.CompareAndSwap(false, true) {
			s.closed.Store(true)
			s.SetState(packet.StateDisconnecting)
			close(s.closeCh)
			s.conn.Close()
			if s.onClose != nil {
				s.onClose(s)
			}
		}
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

// ID returns the session's process-unique identifier.
func (s *Session) ID() uint64 {
	return s.id
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// OnClose registers a callback invoked exactly once when the session dies.
// Must be set before Start.
func (s *Session) OnClose(fn func(*Session)) {
	s.onClose = fn
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send queues a packet for the writer goroutine. Fire-and-forget and ordered
// per connection. Non-blocking: a full queue means the client cannot keep up
// and the session is disconnected (backpressure).
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	select {
	case s.OutQueue <- data:
	default:
		s.log.Warn("輸出佇列已滿，斷開慢速連線")
		s.Close()
	}
}

// IsOnline reports whether the session can still receive frames.
func (s *Session) IsOnline() bool {
	return !s.closed.Load()
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce()
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads frames from the TCP
// connection and dispatches them inline. A handler failure only affects
// this session; dispatch errors that indicate protocol abuse close it.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		// Per-second packet rate limiter
		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("封包速率超限，斷開連線", zap.Int("pps", s.pktCount))
				return
			}
		}

		if err := s.registry.Dispatch(s, s.State(), payload); err != nil {
			// Framing/state violations are logged and the frame dropped;
			// the connection itself stays open.
			s.log.Debug("封包處理失敗", zap.Error(err))
		}
	}
}

// writeLoop runs in its own goroutine. It reads packets from OutQueue and
// writes them as framed data to the TCP connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

// writeOnePacket writes a single framed packet to the TCP socket.
func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.String("op", fmt.Sprintf("0x%02X(%d)", data[0], data[0])),
			zap.Int("len", len(data)),
		)
	}

	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := WriteFrame(s.conn, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
