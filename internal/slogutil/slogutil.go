package slogutil

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// LevelQuiet sits above every standard level, so a handler set to it drops
// all records.
const LevelQuiet = slog.Level(100)

// NewLogger returns a logger writing qsar-format lines to w.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewQsarHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewDiscardLogger returns a logger that never writes.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
	"quiet":   LevelQuiet,
	"off":     LevelQuiet,
	"none":    LevelQuiet,
}

// LevelFromString maps a level name to a slog.Level, case-insensitively.
// Unknown names give info.
func LevelFromString(s string) slog.Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

// LevelFromVerbosity maps the serve -v/-q flags to a console level: quiet
// silences everything, no -v is info and any -v is debug.
func LevelFromVerbosity(verbosity int, quiet bool) slog.Level {
	switch {
	case quiet:
		return LevelQuiet
	case verbosity > 0:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// TeeHandler fans each record out to every child handler that accepts its
// level. The incident stream uses it to mirror the file to the console.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler drops nil entries from handlers.
func NewTeeHandler(handlers ...slog.Handler) *TeeHandler {
	hs := slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
	return &TeeHandler{handlers: hs}
}

func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(t.handlers, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

// Handle returns the first child error but still offers the record to the
// rest.
func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t *TeeHandler) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *TeeHandler) derive(fn func(slog.Handler) slog.Handler) *TeeHandler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = fn(h)
	}
	return &TeeHandler{handlers: out}
}

// NewTeeLogger is slog.New(NewTeeHandler(handlers...)).
func NewTeeLogger(handlers ...slog.Handler) *slog.Logger {
	return slog.New(NewTeeHandler(handlers...))
}
