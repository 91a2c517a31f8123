// Package admin serves qsar's operator endpoint: health, Prometheus metrics,
// the route table and recent access events. It listens on its own address so
// the raw-TCP dispatch table stays untouched.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"qsar/internal/logging"
	"qsar/internal/metrics"
	"qsar/internal/router"
)

// AccessQuerier reads persisted access events.
type AccessQuerier interface {
	Recent(ctx context.Context, limit int, status int) ([]logging.AccessEvent, error)
	CountByStatus(ctx context.Context) (map[int]int64, error)
}

// TableSource yields the route table currently being served.
type TableSource interface {
	Table() *router.Table
}

// Options configures the admin server.
type Options struct {
	Addr      string
	TokenHash string
	Metrics   *metrics.Collector
	Routes    TableSource
	Store     AccessQuerier // nil disables /access
	Logger    *slog.Logger
	// ActiveConnections reports the raw server's live connection count.
	ActiveConnections func() int
}

// Server represents the admin HTTP server
type Server struct {
	mux    *http.ServeMux
	server *http.Server
	opts   Options
	logger *slog.Logger
	start  time.Time

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a new admin server instance
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}

	s := &Server{
		mux:    http.NewServeMux(),
		opts:   opts,
		logger: opts.Logger,
		start:  time.Now(),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.applyMiddleware(s.mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Listen binds the admin address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.opts.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start serves until Shutdown. It binds first if Listen was not called.
func (s *Server) Start() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		ln = s.ln
	}

	s.logger.Info("admin server started", "addr", ln.Addr().String(), "auth", s.opts.TokenHash != "")

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown admin server: %w", err)
	}
	s.logger.Info("admin server stopped")
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = AuthMiddleware(s.opts.TokenHash, s.logger, "/health")(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
