package net

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/ms2go/server/internal/net/packet"
	"go.uber.org/zap"
)

// Server accepts TCP connections and creates Sessions. Every session runs
// independently; there is no central game loop.
type Server struct {
	listener  net.Listener
	nextID    atomic.Uint64
	outSize   int
	pktPerSec int
	registry  *packet.Registry
	onOpen    func(*Session)
	onClose   func(*Session)
	log       *zap.Logger
	closeCh   chan struct{}
}

func NewServer(bindAddr string, outSize, pktPerSec int, reg *packet.Registry, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:  ln,
		outSize:   outSize,
		pktPerSec: pktPerSec,
		registry:  reg,
		log:       log,
		closeCh:   make(chan struct{}),
	}, nil
}

// OnSession registers lifecycle callbacks for new and dead sessions.
// Must be called before AcceptLoop.
func (s *Server) OnSession(open, closed func(*Session)) {
	s.onOpen = open
	s.onClose = closed
}

// AcceptLoop runs in its own goroutine. It accepts connections, creates
// sessions, and starts their reader/writer goroutines.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}

		id := s.nextID.Add(1)
		sess := NewSession(conn, id, s.outSize, s.pktPerSec, s.registry, s.log)
		if s.onClose != nil {
			sess.OnClose(s.onClose)
		}
		if s.onOpen != nil {
			s.onOpen(sess)
		}
		sess.Start()

		s.log.Info(fmt.Sprintf("玩家連線  session=%d  ip=%s", id, sess.IP))
	}
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
