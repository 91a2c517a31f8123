// Package router maps a parsed request to a response using a static table
// keyed on the first path segment.
package router

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"qsar/internal/logging"
	"qsar/internal/protocol"
)

// Route kinds.
const (
	KindPage = "page"
	KindAPI  = "api"
)

// Labels used in access events for requests no route claimed.
const (
	RouteNotFound = "notfound"
	RouteIndex    = "index"
)

// Fixed bodies for the error pages.
const (
	NotFoundHTML   = "<h1>Page does not exist</h1>"
	BadRequestHTML = "<h1>Bad Request</h1>"
	InternalHTML   = "<h1>Internal Server Error</h1>"
)

// Handler produces the response for a request.
type Handler interface {
	Serve(req protocol.Request) protocol.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req protocol.Request) protocol.Response

// Serve calls f(req).
func (f HandlerFunc) Serve(req protocol.Request) protocol.Response {
	return f(req)
}

// Route binds a first path segment to a handler.
type Route struct {
	Prefix  string
	Kind    string
	Handler Handler
}

// Table is the static route table. It is filled during startup and only read
// afterwards.
type Table struct {
	routes map[string]Route
}

// NewTable builds the table from pages and the API handler.
func NewTable(pages []Page, api Handler) (*Table, error) {
	t := &Table{routes: make(map[string]Route)}
	if api != nil {
		if err := t.Register(KindAPI, KindAPI, api); err != nil {
			return nil, err
		}
	}
	for _, p := range pages {
		if err := t.Register(p.Prefix, KindPage, p.Handler()); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Register adds a route. Empty and duplicate prefixes are rejected.
func (t *Table) Register(prefix, kind string, h Handler) error {
	if prefix == "" {
		return fmt.Errorf("route prefix must not be empty")
	}
	if h == nil {
		return fmt.Errorf("route %q has no handler", prefix)
	}
	if _, exists := t.routes[prefix]; exists {
		return fmt.Errorf("route %q already registered", prefix)
	}
	t.routes[prefix] = Route{Prefix: prefix, Kind: kind, Handler: h}
	return nil
}

// Lookup returns the route for a first path segment. Matching is exact and
// case-sensitive.
func (t *Table) Lookup(segment string) (Route, bool) {
	r, ok := t.routes[segment]
	return r, ok
}

// Routes returns all routes sorted by prefix.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

// Router dispatches requests through a Table and records one access event per
// dispatch.
type Router struct {
	table atomic.Pointer[Table]
	sink  logging.Sink
	now   func() time.Time
}

// New creates a Router. A nil sink discards access events.
func New(table *Table, sink logging.Sink) *Router {
	if sink == nil {
		sink = logging.NopSink{}
	}
	r := &Router{sink: sink, now: time.Now}
	r.table.Store(table)
	return r
}

// Table returns the router's current route table.
func (r *Router) Table() *Table {
	return r.table.Load()
}

// SetTable swaps in a new table. Requests already resolved keep the old one.
func (r *Router) SetTable(t *Table) {
	if t != nil {
		r.table.Store(t)
	}
}

// Resolve picks the route for req. A bare "/" resolves to the index page.
func (r *Router) Resolve(req protocol.Request) (Route, bool) {
	segment, err := req.Segment(0)
	if err != nil {
		segment = RouteIndex
	}
	return r.table.Load().Lookup(segment)
}

// Dispatch produces the response for req from peer. The access event is
// recorded before the response is returned.
func (r *Router) Dispatch(req protocol.Request, peer string) protocol.Response {
	resp, _ := r.dispatch(req, peer, "")
	return resp
}

// DispatchConn is Dispatch with a connection ID for the access event. It also
// reports the route label used for logging and metrics.
func (r *Router) DispatchConn(req protocol.Request, peer, connID string) (protocol.Response, string) {
	return r.dispatch(req, peer, connID)
}

func (r *Router) dispatch(req protocol.Request, peer, connID string) (protocol.Response, string) {
	route, ok := r.Resolve(req)

	var (
		resp  protocol.Response
		label string
	)
	switch {
	case ok && route.Kind == KindAPI:
		resp, label = route.Handler.Serve(req), route.Prefix
	case !req.Method.Known():
		resp = BadRequest()
		label = RouteNotFound
		if ok {
			label = route.Prefix
		}
	case ok:
		resp, label = route.Handler.Serve(req), route.Prefix
	default:
		resp, label = NotFound(), RouteNotFound
	}

	r.sink.RecordAccess(logging.AccessEvent{
		ConnID:    connID,
		Method:    req.MethodToken,
		Target:    req.Target,
		Peer:      peer,
		Route:     label,
		Status:    resp.Status,
		Timestamp: r.now(),
	})
	return resp, label
}

// NotFound is the 404 page.
func NotFound() protocol.Response {
	return protocol.HTMLResponse(404, NotFoundHTML)
}

// BadRequest is the 400 page sent for unknown methods and malformed request
// lines.
func BadRequest() protocol.Response {
	return protocol.HTMLResponse(400, BadRequestHTML)
}

// InternalError is the 500 page.
func InternalError() protocol.Response {
	return protocol.HTMLResponse(500, InternalHTML)
}
