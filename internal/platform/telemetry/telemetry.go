// Package telemetry keeps in-process counters, gauges and histograms and
// serves them in the Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Metric names recorded by the service.
const (
	AssessmentsTotal         = "assessments_total"
	GovernanceBlocksTotal    = "governance_blocks_total"
	GovernanceResultsTotal   = "governance_results_total"
	CrisisActivationsTotal   = "crisis_protocol_activations_total"
	AuditEntriesWrittenTotal = "audit_entries_written_total"
	AuditEntriesDroppedTotal = "audit_entries_dropped_total"
	AuditWriteFailuresTotal  = "audit_write_failures_total"
	NotificationsTotal       = "notifications_total"
	InferenceDuration        = "inference_duration_seconds"
	HTTPRequestDuration      = "http_server_request_duration_seconds"
	HTTPActiveRequests       = "http_server_active_requests"
	AuditQueueDepth          = "audit_queue_depth"
)

// Recorder is the write side of the metrics registry.
type Recorder interface {
	Inc(name string, labels ...string)
	Observe(name string, v float64, labels ...string)
	SetGauge(name string, v int64)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) Inc(string, ...string)              {}
func (Nop) Observe(string, float64, ...string) {}
func (Nop) SetGauge(string, int64)             {}

// defaultDurationBuckets are the histogram bucket boundaries in seconds.
var defaultDurationBuckets = []float64{
	0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0, 30.0,
}

// histogram is a thread-safe histogram. Bucket counts are non-cumulative in
// storage; cumulative counts are computed at export time.
type histogram struct {
	boundaries   []float64
	mu           sync.Mutex
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{boundaries: boundaries, bucketCounts: make([]int64, len(boundaries))}
}

func (h *histogram) observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		if atomic.CompareAndSwapUint64(&h.sum, old, math.Float64bits(math.Float64frombits(old)+v)) {
			break
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum
}

// Metrics is the registry. Series are identified by name plus label pairs.
type Metrics struct {
	mu         sync.RWMutex
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*histogram),
	}
}

// seriesKey renders name{k="v",...} from alternating key/value labels.
func seriesKey(name string, labels []string) string {
	if len(labels) < 2 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", labels[i], labels[i+1])
	}
	b.WriteByte('}')
	return b.String()
}

func (m *Metrics) cell(store map[string]*int64, key string) *int64 {
	m.mu.RLock()
	p, ok := store[key]
	m.mu.RUnlock()
	if ok {
		return p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok = store[key]; !ok {
		p = new(int64)
		store[key] = p
	}
	return p
}

// Inc increments a counter.
func (m *Metrics) Inc(name string, labels ...string) {
	atomic.AddInt64(m.cell(m.counters, seriesKey(name, labels)), 1)
}

// Counter returns a counter's current value.
func (m *Metrics) Counter(name string, labels ...string) int64 {
	m.mu.RLock()
	p, ok := m.counters[seriesKey(name, labels)]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// SetGauge sets a gauge.
func (m *Metrics) SetGauge(name string, v int64) {
	atomic.StoreInt64(m.cell(m.gauges, name), v)
}

func (m *Metrics) addGauge(name string, delta int64) {
	atomic.AddInt64(m.cell(m.gauges, name), delta)
}

// Gauge returns a gauge's current value.
func (m *Metrics) Gauge(name string) int64 {
	m.mu.RLock()
	p, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// Observe records v in a histogram.
func (m *Metrics) Observe(name string, v float64, labels ...string) {
	key := seriesKey(name, labels)
	m.mu.RLock()
	h, ok := m.histograms[key]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[key]; !ok {
			h = newHistogram(defaultDurationBuckets)
			m.histograms[key] = h
		}
		m.mu.Unlock()
	}
	h.observe(v)
}

// HistogramCount returns the number of observations in a histogram.
func (m *Metrics) HistogramCount(name string, labels ...string) int64 {
	m.mu.RLock()
	h, ok := m.histograms[seriesKey(name, labels)]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(&h.count)
}

// Middleware records request duration by method, route and status, and the
// number of in-flight requests.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.addGauge(HTTPActiveRequests, 1)
			start := time.Now()
			err := next(c)
			m.addGauge(HTTPActiveRequests, -1)

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			m.Observe(HTTPRequestDuration, time.Since(start).Seconds(),
				"method", c.Request().Method, "route", route, "status_code", strconv.Itoa(status))
			return err
		}
	}
}

// Handler serves every series in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, m.Export())
	}
}

// Export renders the registry in Prometheus text format with series sorted
// by name.
func (m *Metrics) Export() string {
	m.mu.RLock()
	counters := snapshot(m.counters)
	gauges := snapshot(m.gauges)
	hists := make(map[string]*histogram, len(m.histograms))
	for k, v := range m.histograms {
		hists[k] = v
	}
	m.mu.RUnlock()

	var b strings.Builder
	writeFamily(&b, "counter", counters)
	writeFamily(&b, "gauge", gauges)

	keys := sortedKeys(hists)
	typed := map[string]bool{}
	for _, key := range keys {
		h := hists[key]
		name, labels := splitKey(key)
		if !typed[name] {
			fmt.Fprintf(&b, "# TYPE %s histogram\n", name)
			typed[name] = true
		}
		prefix := ""
		suffix := ""
		if labels != "" {
			prefix = labels + ","
			suffix = "{" + labels + "}"
		}
		cum := h.cumulative()
		for i, bound := range h.boundaries {
			fmt.Fprintf(&b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, bound, cum[i])
		}
		count := atomic.LoadInt64(&h.count)
		fmt.Fprintf(&b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, count)
		fmt.Fprintf(&b, "%s_sum%s %g\n", name, suffix, math.Float64frombits(atomic.LoadUint64(&h.sum)))
		fmt.Fprintf(&b, "%s_count%s %d\n", name, suffix, count)
	}
	return b.String()
}

func snapshot(store map[string]*int64) map[string]int64 {
	out := make(map[string]int64, len(store))
	for k, p := range store {
		out[k] = atomic.LoadInt64(p)
	}
	return out
}

func writeFamily(b *strings.Builder, typ string, values map[string]int64) {
	typed := map[string]bool{}
	for _, key := range sortedKeys(values) {
		name, _ := splitKey(key)
		if !typed[name] {
			fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
			typed[name] = true
		}
		fmt.Fprintf(b, "%s %d\n", key, values[key])
	}
}

func splitKey(key string) (name, labels string) {
	i := strings.IndexByte(key, '{')
	if i < 0 {
		return key, ""
	}
	return key[:i], strings.TrimSuffix(key[i+1:], "}")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
