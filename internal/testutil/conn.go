// Package testutil provides helpers shared by qsar's network and golden tests.
package testutil

import (
	"io"
	"net"
	"testing"
	"time"
)

// RoundTrip dials addr, writes raw (if any) and returns everything the
// server sends before closing the connection.
func RoundTrip(t *testing.T, addr string, raw []byte) string {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = c.Close() }()
	_ = c.SetDeadline(time.Now().Add(3 * time.Second))

	if len(raw) > 0 {
		if _, err := c.Write(raw); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	out, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return string(out)
}

// WaitFor polls cond until it holds, failing the test after three seconds.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
