package server

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	qerrors "qsar/internal/errors"
	"qsar/internal/logging"
	"qsar/internal/protocol"
	"qsar/internal/router"
)

// ConnState is the lifecycle stage of one connection.
type ConnState int

const (
	StateAccepted ConnState = iota
	StateReading
	StateParsed
	StateRouted
	StateResponding
	StateClosed
	StateAborted
)

func (s ConnState) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateReading:
		return "reading"
	case StateParsed:
		return "parsed"
	case StateRouted:
		return "routed"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Abort reasons used as metric labels.
const (
	abortRead   = "read"
	abortDecode = "decode"
	abortPanic  = "panic"
)

// Bounds on discarding unread request bytes before close.
const (
	lingerTimeout  = 100 * time.Millisecond
	maxLingerDrain = 256 << 10
)

// conn is one accepted socket. It is owned by a single goroutine.
type conn struct {
	srv   *Server
	nc    net.Conn
	id    string
	peer  string
	state ConnState
	start time.Time

	truncated  bool // the single read filled the buffer
	hookFailed bool // ConnStateHook panicked; it is not called again
}

func (s *Server) newConn(nc net.Conn) *conn {
	return &conn{
		srv:   s,
		nc:    nc,
		id:    uuid.NewString(),
		peer:  nc.RemoteAddr().String(),
		state: StateAccepted,
		start: time.Now(),
	}
}

func (c *conn) setState(st ConnState) {
	c.state = st
	hook := c.srv.opts.ConnStateHook
	if hook == nil || c.hookFailed {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			c.hookFailed = true
			panic(p)
		}
	}()
	hook(c.id, st)
}

func (c *conn) event(sev logging.Severity, msg string, code qerrors.ErrorCode, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("code", string(code)),
		slog.String("conn", c.id),
		slog.String("peer", c.peer),
	}
	c.srv.opts.Sink.RecordEvent(sev, msg, append(base, attrs...)...)
}

// abort closes the socket without a response.
func (c *conn) abort(reason string) {
	c.setState(StateAborted)
	if m := c.srv.opts.Metrics; m != nil {
		m.RecordAbort(reason)
	}
	_ = c.nc.Close()
}

// serve runs the connection from read to close. Exactly one read is made.
func (c *conn) serve() {
	defer func() {
		if p := recover(); p != nil {
			c.event(logging.SeverityError, "connection handler panicked", qerrors.InternalError,
				slog.String("panic", fmt.Sprint(p)),
				slog.String("stack", string(debug.Stack())))
			c.abort(abortPanic)
		}
	}()

	c.setState(StateReading)
	if t := c.srv.opts.ReadTimeout; t > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(t))
	}

	buf := make([]byte, c.srv.opts.ReadBufferSize)
	n, err := c.nc.Read(buf)
	c.truncated = n == len(buf)
	if n == 0 {
		detail := "connection closed before any bytes were sent"
		if err != nil {
			detail = err.Error()
		}
		c.event(logging.SeverityError, "socket read failed", qerrors.SocketReadFailure,
			slog.String("error", detail))
		c.abort(abortRead)
		return
	}

	req, err := protocol.ParseRequest(buf[:n])
	if err != nil {
		if qerrors.HasCode(err, qerrors.DecodeFailure) {
			c.event(logging.SeverityError, "request is not valid UTF-8", qerrors.DecodeFailure,
				slog.Int("bytes", n))
			c.abort(abortDecode)
			return
		}
		c.setState(StateParsed)
		c.event(logging.SeverityWarn, "malformed request line", qerrors.CodeOf(err),
			slog.String("error", err.Error()))
		c.respond(router.BadRequest(), "malformed")
		return
	}
	c.setState(StateParsed)

	resp, route := c.srv.opts.Router.DispatchConn(req, c.peer, c.id)
	c.setState(StateRouted)
	c.respond(resp, route)
}

func (c *conn) respond(resp protocol.Response, route string) {
	c.setState(StateResponding)
	if _, err := protocol.WriteResponse(c.nc, resp); err != nil {
		c.event(logging.SeverityError, "socket write failed", qerrors.SocketWriteFailure,
			slog.Int("status", resp.Status),
			slog.String("error", err.Error()))
	}
	if m := c.srv.opts.Metrics; m != nil {
		m.RecordRequest(route, resp.Status, time.Since(c.start))
	}
	c.close()
	c.setState(StateClosed)
}

// close ends a connection that was answered. If the read filled the buffer
// the client may still be sending, and closing with unread bytes resets the
// connection under the response; so half-close first and discard what
// arrives within lingerTimeout.
func (c *conn) close() {
	if c.truncated {
		if hc, ok := c.nc.(interface{ CloseWrite() error }); ok && hc.CloseWrite() == nil {
			_ = c.nc.SetReadDeadline(time.Now().Add(lingerTimeout))
			_, _ = io.Copy(io.Discard, io.LimitReader(c.nc, maxLingerDrain))
		}
	}
	_ = c.nc.Close()
}
