package slogutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestQsarHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo).Info("listener bound", "addr", "127.0.0.1:8080", "queue", 1024)

	line := buf.String()
	_, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	want := "[info] listener bound | addr=127.0.0.1:8080 queue=1024"
	if rest != want {
		t.Errorf("line = %q, want %q", rest, want)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Errorf("line %q is not newline terminated", line)
	}
}

func TestQsarHandler_Levels(t *testing.T) {
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		want := "[" + strings.ToLower(level.String()) + "]"
		t.Run(want, func(t *testing.T) {
			var buf bytes.Buffer
			NewLogger(&buf, slog.LevelDebug).Log(t.Context(), level, "msg")
			if !strings.Contains(buf.String(), want) {
				t.Errorf("output = %q, want %s", buf.String(), want)
			}
		})
	}
}

func TestQsarHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Debug("dbg")
	logger.Info("inf")
	logger.Warn("wrn")
	logger.Error("err")

	out := buf.String()
	for msg, want := range map[string]bool{"dbg": false, "inf": false, "wrn": true, "err": true} {
		if got := strings.Contains(out, msg); got != want {
			t.Errorf("%s written = %v, want %v", msg, got, want)
		}
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" Debug ", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"off", LevelQuiet},
		{"none", LevelQuiet},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		quiet     bool
		want      slog.Level
	}{
		{0, false, slog.LevelInfo},
		{1, false, slog.LevelDebug},
		{3, false, slog.LevelDebug},
		{0, true, LevelQuiet},
		{5, true, LevelQuiet},
	}

	for _, tt := range tests {
		if got := LevelFromVerbosity(tt.verbosity, tt.quiet); got != tt.want {
			t.Errorf("LevelFromVerbosity(%d, %v) = %v, want %v", tt.verbosity, tt.quiet, got, tt.want)
		}
	}
}

func TestNewDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	if logger.Enabled(t.Context(), slog.LevelError) {
		t.Error("discard logger should not be enabled at any level")
	}
	logger.Error("dropped")
}

func TestTeeHandler(t *testing.T) {
	var file, console bytes.Buffer
	tee := NewTeeHandler(
		NewQsarHandler(&file, &slog.HandlerOptions{Level: slog.LevelInfo}),
		nil,
		NewQsarHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	if len(tee.handlers) != 2 {
		t.Fatalf("handlers = %d, want 2 (nil skipped)", len(tee.handlers))
	}

	logger := slog.New(tee).With("conn", "c9")
	logger.Info("accepted")
	logger.Warn("read failed")

	if !strings.Contains(file.String(), "accepted") || !strings.Contains(file.String(), "read failed") {
		t.Errorf("file = %q, want both records", file.String())
	}
	if strings.Contains(console.String(), "accepted") {
		t.Errorf("console = %q, info should be filtered", console.String())
	}
	if !strings.Contains(console.String(), "read failed | conn=c9") {
		t.Errorf("console = %q, want warn record with attrs", console.String())
	}
	if tee.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("tee should not be enabled below every child level")
	}
}

func TestQsarHandler_QuotesValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("access", "method", "GET", "target", "/a?x=1", "peer", "127.0.0.1:5000", "note", "two words", "empty", "")

	out := buf.String()
	for _, want := range []string{
		"method=GET",
		`target="/a?x=1"`,
		"peer=127.0.0.1:5000",
		`note="two words"`,
		`empty=""`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestQsarHandler_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("conn", "c1").WithGroup("req")

	logger.Info("routed", "status", 200, slog.Group("route", "kind", "page"))

	out := buf.String()
	for _, want := range []string{"conn=c1", "req.status=200", "req.route.kind=page"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestQsarHandler_TimestampFirst(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo).Info("hello")

	line := strings.TrimSpace(buf.String())
	ts, rest, ok := strings.Cut(line, " ")
	if !ok {
		t.Fatalf("unexpected line: %q", line)
	}
	if _, err := time.Parse(TimeLayout, ts); err != nil {
		t.Errorf("timestamp %q does not parse: %v", ts, err)
	}
	if rest != "[info] hello" {
		t.Errorf("rest = %q, want %q", rest, "[info] hello")
	}
}

func TestQsarHandler_DynamicLevel(t *testing.T) {
	var buf bytes.Buffer
	var lv slog.LevelVar
	lv.Set(slog.LevelError)
	logger := NewLogger(&buf, &lv)

	logger.Info("hidden")
	lv.Set(slog.LevelInfo)
	logger.Info("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info should be filtered at error level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("info should pass after lowering the level")
	}
}
