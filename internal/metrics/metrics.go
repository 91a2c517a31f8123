// Package metrics collects qsar's connection and request counters and renders
// them in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"qsar/internal/version"
)

// ContentType is the media type of WritePrometheus output.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Collector collects and exposes Prometheus metrics
type Collector struct {
	// Counters
	connectionsTotal *Counter
	abortsTotal      *Counter
	requestsTotal    *Counter
	logDroppedTotal  *Counter

	// Histograms
	requestDuration *Histogram

	// Gauges
	activeConnections *Gauge
	goroutines        *Gauge
	memoryAlloc       *Gauge

	startTime time.Time
}

// Counter is a monotonically increasing counter
type Counter struct {
	name   string
	help   string
	labels []string
	values sync.Map // map[string]*uint64
}

// Histogram tracks distributions of values
type Histogram struct {
	name    string
	help    string
	labels  []string
	buckets []float64
	values  sync.Map // map[string]*histogramValue
}

type histogramValue struct {
	mu      sync.Mutex
	sum     float64
	count   uint64
	buckets []uint64
}

// Gauge is a metric that can go up and down
type Gauge struct {
	name   string
	help   string
	labels []string
	values sync.Map // map[string]*uint64 holding float64 bits
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		connectionsTotal: &Counter{
			name: "qsar_connections_total",
			help: "Total number of accepted connections",
		},
		abortsTotal: &Counter{
			name:   "qsar_connection_aborts_total",
			help:   "Connections closed without a response",
			labels: []string{"reason"},
		},
		requestsTotal: &Counter{
			name:   "qsar_requests_total",
			help:   "Total number of dispatched requests",
			labels: []string{"route", "status"},
		},
		logDroppedTotal: &Counter{
			name: "qsar_log_dropped_total",
			help: "Log records dropped because the sink queue was full",
		},
		requestDuration: &Histogram{
			name:    "qsar_request_duration_seconds",
			help:    "Time from accept to response written",
			labels:  []string{"route"},
			buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		activeConnections: &Gauge{
			name: "qsar_active_connections",
			help: "Connections currently being handled",
		},
		goroutines: &Gauge{
			name: "qsar_goroutines",
			help: "Number of goroutines",
		},
		memoryAlloc: &Gauge{
			name: "qsar_memory_alloc_bytes",
			help: "Allocated memory in bytes",
		},
	}
}

// ConnectionOpened records an accepted connection.
func (m *Collector) ConnectionOpened() {
	m.connectionsTotal.Inc()
	m.activeConnections.Add(1)
}

// ConnectionClosed records the end of a connection handler.
func (m *Collector) ConnectionClosed() {
	m.activeConnections.Add(-1)
}

// RecordAbort records a connection that ended without a response.
func (m *Collector) RecordAbort(reason string) {
	m.abortsTotal.Inc(reason)
}

// RecordRequest records a dispatched request and its latency.
func (m *Collector) RecordRequest(route string, status int, duration time.Duration) {
	m.requestsTotal.Inc(route, strconv.Itoa(status))
	m.requestDuration.Observe(duration.Seconds(), route)
}

// RecordLogDropped records log records lost to a full queue.
func (m *Collector) RecordLogDropped(n uint64) {
	m.logDroppedTotal.Add(n)
}

// Snapshot is a point-in-time summary used by health output.
type Snapshot struct {
	Connections       uint64 `json:"connections"`
	ActiveConnections int64  `json:"activeConnections"`
	Requests          uint64 `json:"requests"`
	Aborts            uint64 `json:"aborts"`
	LogDropped        uint64 `json:"logDropped"`
	UptimeSeconds     int64  `json:"uptimeSeconds"`
}

// Snapshot returns current totals across all label sets.
func (m *Collector) Snapshot() Snapshot {
	return Snapshot{
		Connections:       m.connectionsTotal.Total(),
		ActiveConnections: int64(m.activeConnections.Value()),
		Requests:          m.requestsTotal.Total(),
		Aborts:            m.abortsTotal.Total(),
		LogDropped:        m.logDroppedTotal.Total(),
		UptimeSeconds:     int64(time.Since(m.startTime).Seconds()),
	}
}

// WritePrometheus writes metrics in Prometheus text format
func (m *Collector) WritePrometheus(w io.Writer) {
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.memoryAlloc.Set(float64(memStats.Alloc))

	fmt.Fprintf(w, "# HELP qsar_info qsar build information\n")
	fmt.Fprintf(w, "# TYPE qsar_info gauge\n")
	fmt.Fprintf(w, "qsar_info{version=%q} 1\n\n", version.Version)

	fmt.Fprintf(w, "# HELP qsar_uptime_seconds Time since the collector was created\n")
	fmt.Fprintf(w, "# TYPE qsar_uptime_seconds counter\n")
	fmt.Fprintf(w, "qsar_uptime_seconds %.3f\n\n", time.Since(m.startTime).Seconds())

	writeCounter(w, m.connectionsTotal)
	writeCounter(w, m.abortsTotal)
	writeCounter(w, m.requestsTotal)
	writeCounter(w, m.logDroppedTotal)

	writeHistogram(w, m.requestDuration)

	writeGauge(w, m.activeConnections)
	writeGauge(w, m.goroutines)
	writeGauge(w, m.memoryAlloc)
}

func sortedKeys(values *sync.Map) []string {
	var keys []string
	values.Range(func(key, _ interface{}) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

func writeCounter(w io.Writer, c *Counter) {
	fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
	fmt.Fprintf(w, "# TYPE %s counter\n", c.name)

	for _, key := range sortedKeys(&c.values) {
		val, _ := c.values.Load(key)
		if ptr, ok := val.(*uint64); ok {
			fmt.Fprintf(w, "%s%s %d\n", c.name, key, atomic.LoadUint64(ptr))
		}
	}
	fmt.Fprintln(w)
}

func writeHistogram(w io.Writer, h *Histogram) {
	fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", h.name)

	for _, key := range sortedKeys(&h.values) {
		val, _ := h.values.Load(key)
		hv, ok := val.(*histogramValue)
		if !ok {
			continue
		}
		hv.mu.Lock()
		cumulative := uint64(0)
		for i, bound := range h.buckets {
			cumulative += hv.buckets[i]
			fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLE(key, strconv.FormatFloat(bound, 'g', -1, 64)), cumulative)
		}
		cumulative += hv.buckets[len(h.buckets)]
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLE(key, "+Inf"), cumulative)
		fmt.Fprintf(w, "%s_sum%s %.6f\n", h.name, key, hv.sum)
		fmt.Fprintf(w, "%s_count%s %d\n", h.name, key, hv.count)
		hv.mu.Unlock()
	}
	fmt.Fprintln(w)
}

func withLE(key, le string) string {
	if key == "" {
		return `{le="` + le + `"}`
	}
	return key[:len(key)-1] + `,le="` + le + `"}`
}

func writeGauge(w io.Writer, g *Gauge) {
	fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", g.name)

	for _, key := range sortedKeys(&g.values) {
		val, _ := g.values.Load(key)
		if ptr, ok := val.(*uint64); ok {
			fmt.Fprintf(w, "%s%s %s\n", g.name, key,
				strconv.FormatFloat(math.Float64frombits(atomic.LoadUint64(ptr)), 'f', -1, 64))
		}
	}
	fmt.Fprintln(w)
}

// labelsToKey renders {a="x",b="y"}; missing values are skipped.
func labelsToKey(labels, values []string) string {
	if len(labels) == 0 || len(values) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(labels))
	for i, label := range labels {
		if i < len(values) {
			pairs = append(pairs, label+"="+strconv.Quote(values[i]))
		}
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// Inc adds one.
func (c *Counter) Inc(labelValues ...string) {
	c.Add(1, labelValues...)
}

// Add adds delta to the series named by labelValues.
func (c *Counter) Add(delta uint64, labelValues ...string) {
	key := labelsToKey(c.labels, labelValues)
	val, _ := c.values.LoadOrStore(key, new(uint64))
	atomic.AddUint64(val.(*uint64), delta)
}

// Value returns one series' count.
func (c *Counter) Value(labelValues ...string) uint64 {
	val, ok := c.values.Load(labelsToKey(c.labels, labelValues))
	if !ok {
		return 0
	}
	return atomic.LoadUint64(val.(*uint64))
}

// Total sums all series.
func (c *Counter) Total() uint64 {
	var total uint64
	c.values.Range(func(_, val interface{}) bool {
		total += atomic.LoadUint64(val.(*uint64))
		return true
	})
	return total
}

// Observe records value in the series named by labelValues.
func (h *Histogram) Observe(value float64, labelValues ...string) {
	key := labelsToKey(h.labels, labelValues)
	val, _ := h.values.LoadOrStore(key, &histogramValue{
		buckets: make([]uint64, len(h.buckets)+1), // +1 for +Inf
	})

	hv := val.(*histogramValue)
	hv.mu.Lock()
	defer hv.mu.Unlock()

	hv.sum += value
	hv.count++

	idx := len(h.buckets)
	for i, bound := range h.buckets {
		if value <= bound {
			idx = i
			break
		}
	}
	hv.buckets[idx]++
}

// Count returns the number of observations in one series.
func (h *Histogram) Count(labelValues ...string) uint64 {
	val, ok := h.values.Load(labelsToKey(h.labels, labelValues))
	if !ok {
		return 0
	}
	hv := val.(*histogramValue)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	return hv.count
}

// Set stores value.
func (g *Gauge) Set(value float64, labelValues ...string) {
	key := labelsToKey(g.labels, labelValues)
	val, _ := g.values.LoadOrStore(key, new(uint64))
	atomic.StoreUint64(val.(*uint64), math.Float64bits(value))
}

// Add adjusts the gauge by delta.
func (g *Gauge) Add(delta float64, labelValues ...string) {
	key := labelsToKey(g.labels, labelValues)
	val, _ := g.values.LoadOrStore(key, new(uint64))
	ptr := val.(*uint64)
	for {
		old := atomic.LoadUint64(ptr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(ptr, old, next) {
			return
		}
	}
}

// Value returns one series' current value.
func (g *Gauge) Value(labelValues ...string) float64 {
	val, ok := g.values.Load(labelsToKey(g.labels, labelValues))
	if !ok {
		return 0
	}
	return math.Float64frombits(atomic.LoadUint64(val.(*uint64)))
}
