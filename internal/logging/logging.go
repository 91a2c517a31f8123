// Package logging records what the server did: one access event per dispatched
// request and operational events for everything else.
//
// Sinks are handed to the server explicitly. AsyncSink moves file I/O off the
// connection handlers; NopSink and MemorySink serve embedding and tests.
package logging

import (
	"log/slog"
	"time"
)

// Severity classifies operational events.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarn:
		return "WARN"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Level maps the severity onto slog.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityWarn:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AccessEvent is the record of one dispatched request.
type AccessEvent struct {
	ConnID    string
	Method    string // raw method token, e.g. "FOO"
	Target    string // raw path and query
	Peer      string
	Route     string
	Status    int
	Timestamp time.Time
}

// Attrs renders the event for an slog line.
func (e AccessEvent) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", e.Method),
		slog.String("target", e.Target),
		slog.String("peer", e.Peer),
		slog.String("route", e.Route),
		slog.Int("status", e.Status),
	}
	if e.ConnID != "" {
		attrs = append(attrs, slog.String("conn", e.ConnID))
	}
	return attrs
}

// Sink receives access and operational events. Implementations must be safe
// for concurrent use and must not block the caller on I/O.
type Sink interface {
	RecordAccess(ev AccessEvent)
	RecordEvent(sev Severity, msg string, attrs ...slog.Attr)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordAccess(AccessEvent)                   {}
func (NopSink) RecordEvent(Severity, string, ...slog.Attr) {}
