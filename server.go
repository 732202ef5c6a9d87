package ehttp

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kamocat/ehttp/metrics"
	"github.com/kamocat/ehttp/route"
)

// Server is the scheduler: it accepts new connections and advances
// every open Conn by exactly one Step per tick, round-robin, then reaps
// anything that finished. It never spawns a goroutine per connection —
// the host program supplies the tick cadence, typically by calling Tick
// in a loop or using Run for the common fixed-interval case.
type Server struct {
	cfg     Config
	table   *route.Table
	logger  Logger
	metrics *metrics.Recorder
	clock   Clock

	listener Listener
	conns    []*Conn

	stopping bool
}

// NewServer builds a Server bound to table (read-only once ticking
// starts) and cfg. logger and rec may be nil.
func NewServer(cfg Config, table *route.Table, logger Logger, rec *metrics.Recorder) *Server {
	return &Server{cfg: cfg, table: table, logger: logger, metrics: rec, clock: SystemClock}
}

// Listen opens the TCP listener at cfg.ListenAddr. Must be called before
// the first Tick.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	if s.cfg.Backlog > 0 {
		// best-effort: net.Listen's backlog is OS-controlled; nothing
		// further to configure through the standard library here.
		_ = s.cfg.Backlog
	}
	s.listener = NewListener(ln)
	return nil
}

// SetListener installs an already-constructed Listener, bypassing Listen.
// Production callers use Listen; tests use it to inject a fake Listener
// and drive Tick without a real kernel socket.
func (s *Server) SetListener(ln Listener) { s.listener = ln }

// Addr returns the bound listener's address, for tests and logging.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr()
}

// Tick performs one scheduler pass: attempt one non-blocking
// accept, advance every open connection by one Step in round-robin
// order, and reap any that reached CLOSED. It never blocks — one accept
// per tick keeps the host-visible cost of a tick O(connection count)
// even under an accept flood.
func (s *Server) Tick() {
	s.acceptOne()
	s.stepAll()
	s.reapClosed()
}

func (s *Server) acceptOne() {
	if s.listener == nil || s.stopping {
		return
	}
	sock, err := s.listener.Accept()
	if err == ErrWouldBlock {
		return
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("accept error", zap.Error(err))
		}
		return
	}
	id := uuid.New().String()
	conn := NewConn(id, sock, s.clock, s.cfg, s.table, s.logger, s.metrics)
	s.conns = append(s.conns, conn)
	s.metrics.ConnAccepted()
}

func (s *Server) stepAll() {
	for _, c := range s.conns {
		c.Step()
	}
}

func (s *Server) reapClosed() {
	kept := s.conns[:0]
	for _, c := range s.conns {
		if c.Closed() {
			continue
		}
		kept = append(kept, c)
	}
	s.conns = kept
}

// ActiveConns reports the number of connections currently tracked (open
// or mid-close), for tests and metrics cross-checks.
func (s *Server) ActiveConns() int { return len(s.conns) }

// Run ticks the scheduler at interval until ctx is done, the simplest
// host loop (cmd/ehttpd uses exactly this).
func (s *Server) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Stop closes the listening socket, stops accepting, and keeps stepping
// the open connections until all of them are reaped or ctx is done, so
// a connection mid-write finishes its write instead of being cut off.
// Stop does not move a connection to closing itself: a connection idle
// on keep-alive, or with its WebSocket session still running, stays
// open until ctx is done, when Stop closes every remaining socket and
// drops the connection.
func (s *Server) Stop(ctx context.Context) error {
	s.stopping = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for {
		if len(s.conns) == 0 {
			return nil
		}
		s.stepAll()
		s.reapClosed()
		select {
		case <-ctx.Done():
			for _, c := range s.conns {
				_ = c.sock.Close()
			}
			s.conns = nil
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}
