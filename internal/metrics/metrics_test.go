package metrics

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCollector_Counters(t *testing.T) {
	m := NewCollector()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RecordRequest("index", 200, 2*time.Millisecond)
	m.RecordRequest("index", 200, 3*time.Millisecond)
	m.RecordRequest("notfound", 404, time.Millisecond)
	m.RecordAbort("read")
	m.RecordLogDropped(3)

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	output := buf.String()

	for _, want := range []string{
		"qsar_connections_total 2",
		`qsar_requests_total{route="index",status="200"} 2`,
		`qsar_requests_total{route="notfound",status="404"} 1`,
		`qsar_connection_aborts_total{reason="read"} 1`,
		"qsar_log_dropped_total 3",
		"qsar_active_connections 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestCollector_Histogram(t *testing.T) {
	m := NewCollector()

	for _, d := range []time.Duration{
		100 * time.Microsecond,
		2 * time.Millisecond,
		300 * time.Millisecond,
		3 * time.Second,
	} {
		m.RecordRequest("api", 200, d)
	}

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	output := buf.String()

	for _, want := range []string{
		`qsar_request_duration_seconds_bucket{route="api",le="0.0005"} 1`,
		`qsar_request_duration_seconds_bucket{route="api",le="0.005"} 2`,
		`qsar_request_duration_seconds_bucket{route="api",le="1"} 3`,
		`qsar_request_duration_seconds_bucket{route="api",le="+Inf"} 4`,
		`qsar_request_duration_seconds_count{route="api"} 4`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	if got := m.requestDuration.Count("api"); got != 4 {
		t.Errorf("Count(api) = %d, want 4", got)
	}
}

func TestCollector_RuntimeMetrics(t *testing.T) {
	m := NewCollector()

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	output := buf.String()

	for _, want := range []string{"qsar_goroutines", "qsar_memory_alloc_bytes", "qsar_uptime_seconds", "qsar_info{version="} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output", want)
		}
	}
}

func TestCollector_Snapshot(t *testing.T) {
	m := NewCollector()
	m.ConnectionOpened()
	m.RecordRequest("posts", 200, time.Millisecond)
	m.RecordAbort("decode")
	m.RecordAbort("read")

	s := m.Snapshot()
	if s.Connections != 1 || s.ActiveConnections != 1 || s.Requests != 1 || s.Aborts != 2 {
		t.Errorf("Snapshot() = %+v", s)
	}
}

func TestGauge_AddConcurrent(t *testing.T) {
	g := &Gauge{name: "g"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.Add(1)
				g.Add(-1)
				g.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := g.Value(); got != 1000 {
		t.Errorf("Value() = %v, want 1000", got)
	}
}

func TestLabelsToKey_Escapes(t *testing.T) {
	got := labelsToKey([]string{"route"}, []string{`a"b`})
	if got != `{route="a\"b"}` {
		t.Errorf("labelsToKey() = %s", got)
	}
	if labelsToKey(nil, []string{"x"}) != "" {
		t.Error("no labels should yield empty key")
	}
}
