package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/blox-core/internal/audit"
	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/infrastructure/config"
	"github.com/nerrad567/blox-core/internal/infrastructure/logging"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	// healthCheckTimeout bounds each dependency check on /health.
	healthCheckTimeout = 2 * time.Second
)

// Snapshotter runs a closure on the control loop. *box.Loop satisfies it.
type Snapshotter interface {
	Do(ctx context.Context, fn func(*box.Box)) error
}

// HealthChecker is a dependency reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SessionCounter reports open transport sessions on /metrics.
type SessionCounter interface {
	Sessions() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.DiagnosticsConfig
	Logger *logging.Logger
	Loop   Snapshotter

	// Optional. A nil Audit makes /audit answer 503.
	Audit    audit.Repository
	Checks   map[string]HealthChecker
	Sessions SessionCounter

	Version      string
	ControllerID string
}

// Server is the diagnostics HTTP server.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Server struct {
	cfg        config.DiagnosticsConfig
	logger     *logging.Logger
	loop       Snapshotter
	auditRepo  audit.Repository
	checks     map[string]HealthChecker
	sessions   SessionCounter
	version    string
	controller string
	startTime  time.Time

	hub *Hub

	mu           sync.Mutex
	server       *http.Server
	listener     net.Listener
	stopStream   context.CancelFunc
	streamClosed chan struct{}
}

// New creates an API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger and Loop are required; the rest is optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Loop == nil {
		return nil, fmt.Errorf("control loop is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		loop:       deps.Loop,
		auditRepo:  deps.Audit,
		checks:     deps.Checks,
		sessions:   deps.Sessions,
		version:    deps.Version,
		controller: deps.ControllerID,
		startTime:  time.Now(),
		hub:        NewHub(deps.Config.WebSocket, deps.Logger),
	}, nil
}

// Start binds the listen address and serves in the background.
//
// Parameters:
//   - ctx: Context for the bind; the listener outlives it until Close
//
// Returns:
//   - error: If the address cannot be bound or the server already runs
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	if every := s.cfg.StreamInterval(); every > 0 {
		streamCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		s.stopStream, s.streamClosed = cancel, done
		go func() {
			defer close(done)
			s.hub.Run(streamCtx, every, s.streamSnapshot)
		}()
	}

	s.logger.Info("diagnostics API listening", "address", ln.Addr().String())
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

// Close disconnects WebSocket clients and gracefully shuts down the
// server, waiting up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	stopStream, streamClosed := s.stopStream, s.streamClosed
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	// Hijacked connections are not tracked by Shutdown.
	if stopStream != nil {
		stopStream()
		<-streamClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// snapshot runs fn on the control loop and maps loop errors to responses.
// It returns false after writing an error response.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request, fn func(*box.Box)) bool {
	err := s.loop.Do(r.Context(), fn)
	switch {
	case err == nil:
		return true
	case errors.Is(err, box.ErrLoopStopped):
		writeUnavailable(w, "control loop stopped")
	case r.Context().Err() != nil:
		// Client went away; nothing useful to write.
	default:
		s.logger.Error("control loop snapshot failed", "error", err)
		writeInternalError(w, "snapshot failed")
	}
	return false
}
