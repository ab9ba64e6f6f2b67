package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox/codec"
)

const (
	// writeTimeout bounds writing one reply.
	writeTimeout = 5 * time.Second

	// DefaultMaxConnections applies when ServerConfig.MaxConnections is 0.
	DefaultMaxConnections = 8
)

// ServerConfig configures a TCP Server.
type ServerConfig struct {
	// Addr is the listen address, e.g. "0.0.0.0:8332". Port 0 picks a free port.
	Addr string

	// MaxFrame bounds a frame body; 0 selects codec.DefaultMaxBody.
	MaxFrame int

	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// MaxConnections bounds concurrent clients; further clients are
	// closed on accept.
	MaxConnections int
}

// closeOnce wraps a channel with sync.Once so Close can be called twice.
type closeOnce struct {
	once sync.Once
	ch   chan struct{}
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Server serves the frame protocol over TCP.
//
// Each connection gets a session ID (a UUID) that tags its commands in the
// audit trail and in log lines.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Server struct {
	cfg    ServerConfig
	sub    Submitter
	logger Logger

	listener net.Listener
	mu       sync.Mutex
	sessions map[string]net.Conn

	wg   sync.WaitGroup
	done *closeOnce
}

// NewServer creates a server that hands frames to sub.
func NewServer(cfg ServerConfig, sub Submitter) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	return &Server{
		cfg:      cfg,
		sub:      sub,
		logger:   noopLogger{},
		sessions: make(map[string]net.Conn),
		done:     newCloseOnce(),
	}
}

// SetLogger sets the logger. Must be called before Start.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// Start begins listening and accepting connections in the background.
// Connections stop when ctx is cancelled or Close is called.
//
// Returns:
//   - error: If the address cannot be bound, or the server was closed
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done.Done():
		return ErrServerClosed
	default:
	}
	if s.listener != nil {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.logger.Info("tcp transport listening", "addr", ln.Addr().String())

	s.wg.Add(2)
	go s.acceptLoop(ctx)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-s.done.Done():
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Sessions returns the number of open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops accepting, closes every connection and waits for their
// goroutines to finish.
func (s *Server) Close() error {
	s.shutdown()
	s.wg.Wait()
	return nil
}

func (s *Server) shutdown() {
	s.done.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
	for _, conn := range s.sessions {
		conn.Close()
	}
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("tcp accept failed", "error", err)
			continue
		}

		session, ok := s.register(conn)
		if !ok {
			select {
			case <-s.done.Done():
				conn.Close()
				return
			default:
			}
			s.logger.Warn("tcp connection refused, too many sessions",
				"remote", conn.RemoteAddr().String(),
				"max", s.cfg.MaxConnections,
			)
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.unregister(session)
			s.serveConn(ctx, session, conn)
		}()
	}
}

func (s *Server) register(conn net.Conn) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done.Done():
		return "", false
	default:
	}
	if len(s.sessions) >= s.cfg.MaxConnections {
		return "", false
	}
	session := uuid.NewString()
	s.sessions[session] = conn
	return session, true
}

func (s *Server) unregister(session string) {
	s.mu.Lock()
	conn := s.sessions[session]
	delete(s.sessions, session)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// serveConn reads frames until the stream ends, and writes one reply for
// each. A frame the codec rejects is still submitted so the loop can build
// its rejection.
func (s *Server) serveConn(ctx context.Context, session string, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log := []any{"session", session, "remote", remote}
	s.logger.Info("tcp session opened", log...)
	defer s.logger.Info("tcp session closed", log...)

	ctx = box.WithSource(ctx, "tcp:"+session)
	reader := codec.NewReader(conn, s.cfg.MaxFrame)

	for {
		if s.cfg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				return
			}
		}

		frame, err := reader.ReadFrame()
		if err != nil && !codec.IsFrameError(err) {
			s.logReadEnd(err, log)
			return
		}
		if err != nil {
			s.logger.Debug("tcp frame rejected", append(log, "error", err)...)
		}

		out, err := exchange(ctx, s.sub, frame, err)
		if err != nil {
			s.logger.Error("tcp exchange failed", append(log, "error", err)...)
			return
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if _, err := conn.Write(out); err != nil {
			s.logger.Warn("tcp write failed", append(log, "error", err)...)
			return
		}
	}
}

func (s *Server) logReadEnd(err error, log []any) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Info("tcp session idle, closing", log...)
	default:
		s.logger.Warn("tcp read failed", append(log, "error", err)...)
	}
}
