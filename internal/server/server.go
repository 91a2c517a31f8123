// Package server accepts TCP connections and answers one request per
// connection using a router.Router.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	qerrors "qsar/internal/errors"
	"qsar/internal/logging"
	"qsar/internal/metrics"
	"qsar/internal/router"
)

// ErrServerClosed is returned by Serve after Shutdown or context cancellation.
var ErrServerClosed = errors.New("server closed")

// DefaultReadBufferSize is the size of the single read made per connection.
const DefaultReadBufferSize = 2048

// Accept retry backoff bounds.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Options configures a Server.
type Options struct {
	Addr           string
	ReadBufferSize int
	// ReadTimeout bounds the single read. Zero waits forever.
	ReadTimeout time.Duration
	Router      *router.Router
	Sink        logging.Sink
	Metrics     *metrics.Collector // optional
	// ConnStateHook, when set, is called on every connection state change.
	ConnStateHook func(connID string, state ConnState)
}

// Server is the raw TCP listener loop.
type Server struct {
	opts Options

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closing  atomic.Bool
	shutdown chan struct{}
	once     sync.Once
}

// New creates a Server. Router is required.
func New(opts Options) *Server {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.Sink == nil {
		opts.Sink = logging.NopSink{}
	}
	return &Server{
		opts:     opts,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.opts.Sink.RecordEvent(logging.SeverityInfo, "listener bound",
		slog.String("addr", ln.Addr().String()))
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

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled or Shutdown is called.
// Accept failures are logged and retried; they never end the loop. Each
// connection is handed to its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}
	return s.serve(ctx, ln)
}

// ServeListener serves on an existing listener instead of binding Addr.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		s.beginShutdown()
		_ = ln.Close()
	})
	defer stop()

	s.opts.Sink.RecordEvent(logging.SeverityInfo, "server started",
		slog.String("addr", ln.Addr().String()))

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				s.opts.Sink.RecordEvent(logging.SeverityInfo, "server stopped",
					slog.String("addr", ln.Addr().String()))
				return ErrServerClosed
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			s.opts.Sink.RecordEvent(logging.SeverityError, "accept failed",
				slog.String("code", string(qerrors.AcceptFailure)),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))

			select {
			case <-time.After(backoff):
			case <-s.shutdown:
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		if !s.admit(nc) {
			_ = nc.Close()
			continue
		}
		go s.handleConn(nc)
	}
}

func (s *Server) beginShutdown() {
	s.closing.Store(true)
	s.once.Do(func() { close(s.shutdown) })
}

func (s *Server) handleConn(nc net.Conn) {
	defer s.wg.Done()
	defer s.untrack(nc)

	if m := s.opts.Metrics; m != nil {
		m.ConnectionOpened()
		defer m.ConnectionClosed()
	}
	s.newConn(nc).serve()
}

// admit registers nc with the in-flight group. It refuses once shutdown has
// begun; Shutdown sets closing before it takes mu and waits, so every
// admitted connection is counted before Wait starts.
func (s *Server) admit(nc net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.conns[nc] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(nc net.Conn) {
	s.mu.Lock()
	delete(s.conns, nc)
	s.mu.Unlock()
}

// ActiveConnections returns the number of connections being handled.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes the listener and waits for in-flight connections. When
// ctx expires first, remaining connections are closed and ctx.Err returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.beginShutdown()

	s.mu.Lock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for nc := range s.conns {
			_ = nc.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}
