// File: internal/metrics/metrics.go

// Package metrics provides metrics collection for the Argus console.
// It defines a backend-agnostic Collector interface with a Prometheus
// implementation and an in-memory implementation for tests.
package metrics

import (
	"net/http"
	"sync"
	"time"
)

// Collector is the interface for recording console metrics.
// Labels are passed as alternating name/value pairs.
type Collector interface {
	// Counter operations
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	// Gauge operations
	GaugeSet(name string, value float64, labels ...string)
	GaugeInc(name string, labels ...string)
	GaugeDec(name string, labels ...string)

	// Histogram operations
	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for the metrics endpoint.
	Handler() http.Handler

	// Reset clears all metrics (for testing).
	Reset()
}

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"` // For histograms
}

// -- Console Metric Definitions --

var (
	// Analysis run metrics
	RunsTotal = MetricDefinition{
		Name:   "argus_runs_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of analysis runs by terminal status",
		Labels: []string{"status"},
	}
	StreamEventsTotal = MetricDefinition{
		Name:   "argus_stream_events_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of pipeline stream events applied",
		Labels: []string{"kind"},
	}

	// Triage metrics
	FindingsGauge = MetricDefinition{
		Name:   "argus_findings",
		Type:   MetricTypeGauge,
		Help:   "Current number of findings per triage bucket",
		Labels: []string{"bucket"},
	}
	FindingsMovedTotal = MetricDefinition{
		Name:   "argus_findings_moved_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of findings moved out of the active list",
		Labels: []string{"destination"},
	}
	FindingsRestoredTotal = MetricDefinition{
		Name:   "argus_findings_restored_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of findings restored to the active list",
		Labels: []string{"from"},
	}

	// Review gate metrics
	ReviewDecisionsTotal = MetricDefinition{
		Name:   "argus_review_decisions_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of review decisions submitted",
		Labels: []string{"decision"},
	}

	// Scan watch metrics
	ScanMilestonesTotal = MetricDefinition{
		Name:   "argus_scan_milestones_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of scan milestones observed",
		Labels: []string{"milestone"},
	}

	// Snapshot store metrics
	SnapshotWritesTotal = MetricDefinition{
		Name:   "argus_snapshot_writes_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of triage snapshot writes",
		Labels: []string{"status"},
	}
	SnapshotWriteDuration = MetricDefinition{
		Name:    "argus_snapshot_write_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of triage snapshot writes in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}

	// Platform client metrics
	PlatformRequestsTotal = MetricDefinition{
		Name:   "argus_platform_requests_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of platform API requests",
		Labels: []string{"endpoint", "status"},
	}
	PlatformRequestDuration = MetricDefinition{
		Name:    "argus_platform_request_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of platform API requests in seconds",
		Labels:  []string{"endpoint"},
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}
)

// -- NopCollector --

// NopCollector is a no-op metrics collector that discards all metrics.
// Use this when metrics are not needed.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) GaugeInc(name string, labels ...string)                        {}
func (c *NopCollector) GaugeDec(name string, labels ...string)                        {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }
func (c *NopCollector) Reset()                                                        {}

// -- InMemoryCollector --

// InMemoryCollector stores metrics in memory for testing purposes.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (c *InMemoryCollector) key(name string, labels []string) string {
	key := name
	for i := 0; i < len(labels); i += 2 {
		if i+1 < len(labels) {
			key += "," + labels[i] + "=" + labels[i+1]
		}
	}
	return key
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[c.key(name, labels)] += value
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)] = value
}

func (c *InMemoryCollector) GaugeInc(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]++
}

func (c *InMemoryCollector) GaugeDec(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]--
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]float64)
	c.gauges = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

// GetCounter returns the value of a counter.
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// GetGauge returns the value of a gauge.
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[c.key(name, labels)]
}

// GetHistogram returns all observations of a histogram.
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histograms[c.key(name, labels)]
}

// -- Timer --

// Timer is a helper for timing operations and recording to histograms.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

// NewTimer creates a new timer that will record to the given histogram.
func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		collector: collector,
		name:      name,
		labels:    labels,
	}
}

// ObserveDuration records the duration since the timer was created.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

// -- Interface compliance --

var (
	_ Collector = (*NopCollector)(nil)
	_ Collector = (*InMemoryCollector)(nil)
)
