package logging

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event is an operational event captured by MemorySink.
type Event struct {
	Severity Severity
	Message  string
	Attrs    []slog.Attr
	Time     time.Time
}

// Attr returns the string form of the named attribute.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value.String(), true
		}
	}
	return "", false
}

// MemorySink keeps every record in memory. Safe for concurrent use.
type MemorySink struct {
	mu       sync.Mutex
	accesses []AccessEvent
	events   []Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) RecordAccess(ev AccessEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accesses = append(m.accesses, ev)
}

func (m *MemorySink) RecordEvent(sev Severity, msg string, attrs ...slog.Attr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{
		Severity: sev,
		Message:  msg,
		Attrs:    append([]slog.Attr(nil), attrs...),
		Time:     time.Now(),
	})
}

// Accesses returns a copy of the recorded access events.
func (m *MemorySink) Accesses() []AccessEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AccessEvent(nil), m.accesses...)
}

// Events returns a copy of the recorded operational events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// EventsMatching returns events at sev whose message contains substr.
func (m *MemorySink) EventsMatching(sev Severity, substr string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Severity == sev && strings.Contains(e.Message, substr) {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears everything recorded so far.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accesses = nil
	m.events = nil
}
