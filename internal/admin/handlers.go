package admin

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"qsar/internal/metrics"
	"qsar/internal/version"
)

const (
	defaultAccessLimit = 50
	maxAccessLimit     = 1000
)

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/routes", s.handleRoutes)
	s.mux.HandleFunc("/access", s.handleAccess)
	s.mux.HandleFunc("/access/stats", s.handleAccessStats)
	s.mux.HandleFunc("/", s.handleRoot)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status            string           `json:"status"`
	Timestamp         time.Time        `json:"timestamp"`
	Version           string           `json:"version"`
	Server            string           `json:"server"`
	Uptime            string           `json:"uptime"`
	ActiveConnections int              `json:"activeConnections"`
	Stats             metrics.Snapshot `json:"stats"`
}

// RouteInfo is one entry of the dispatch table.
type RouteInfo struct {
	Prefix string `json:"prefix"`
	Kind   string `json:"kind"`
}

// AccessEntry is the JSON form of a stored access event.
type AccessEntry struct {
	ConnID    string    `json:"connId,omitempty"`
	Method    string    `json:"method"`
	Target    string    `json:"target"`
	Peer      string    `json:"peer"`
	Route     string    `json:"route"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFound(w, "no admin endpoint at "+r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"name":      "qsar admin",
		"version":   version.Version,
		"endpoints": []string{"/health", "/metrics", "/routes", "/access", "/access/stats"},
	}, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}

	snap := s.opts.Metrics.Snapshot()
	active := int(snap.ActiveConnections)
	if s.opts.ActiveConnections != nil {
		active = s.opts.ActiveConnections()
	}

	WriteJSON(w, HealthResponse{
		Status:            "healthy",
		Timestamp:         time.Now().UTC(),
		Version:           version.Version,
		Server:            version.ServerHeader(),
		Uptime:            time.Since(s.start).Round(time.Second).String(),
		ActiveConnections: active,
		Stats:             snap,
	}, http.StatusOK)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", metrics.ContentType)
	w.WriteHeader(http.StatusOK)
	s.opts.Metrics.WritePrometheus(w)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	routes := []RouteInfo{}
	if s.opts.Routes != nil {
		for _, rt := range s.opts.Routes.Table().Routes() {
			routes = append(routes, RouteInfo{Prefix: rt.Prefix, Kind: rt.Kind})
		}
	}
	WriteJSON(w, map[string]interface{}{"routes": routes}, http.StatusOK)
}

// handleAccess handles GET /access?limit=N&status=S
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.opts.Store == nil {
		NotFound(w, "access store is disabled")
		return
	}

	limit, ok := intParam(r, "limit", defaultAccessLimit)
	if !ok || limit < 1 {
		BadRequest(w, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxAccessLimit)

	status, ok := intParam(r, "status", 0)
	if !ok || status < 0 {
		BadRequest(w, "status must be a non-negative integer")
		return
	}

	events, err := s.opts.Store.Recent(r.Context(), limit, status)
	if err != nil {
		InternalError(w, "query access store", err)
		return
	}

	entries := make([]AccessEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, AccessEntry{
			ConnID:    ev.ConnID,
			Method:    ev.Method,
			Target:    ev.Target,
			Peer:      ev.Peer,
			Route:     ev.Route,
			Status:    ev.Status,
			Timestamp: ev.Timestamp,
		})
	}
	WriteJSON(w, map[string]interface{}{"events": entries, "count": len(entries)}, http.StatusOK)
}

// handleAccessStats handles GET /access/stats
func (s *Server) handleAccessStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.opts.Store == nil {
		NotFound(w, "access store is disabled")
		return
	}

	counts, err := s.opts.Store.CountByStatus(r.Context())
	if err != nil {
		InternalError(w, "query access store", err)
		return
	}

	type statusCount struct {
		Status int   `json:"status"`
		Count  int64 `json:"count"`
	}
	out := make([]statusCount, 0, len(counts))
	for st, n := range counts {
		out = append(out, statusCount{Status: st, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	WriteJSON(w, map[string]interface{}{"statuses": out}, http.StatusOK)
}

func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
