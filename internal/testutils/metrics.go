package testutils

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// RecordingMetrics is a ports.MetricsCollector that keeps every measurement
// in memory for assertions.
type RecordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewRecordingMetrics returns an empty recorder.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// RecordLatency records duration in seconds as a histogram observation.
func (m *RecordingMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.RecordHistogram(operation, duration.Seconds(), labels)
}

// RecordCounter adds value to the counter series.
func (m *RecordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[seriesKey(metric, labels)] += value
}

// RecordGauge sets the gauge series.
func (m *RecordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[seriesKey(metric, labels)] = value
}

// RecordHistogram appends an observation to the histogram series.
func (m *RecordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := seriesKey(metric, labels)
	m.histograms[key] = append(m.histograms[key], value)
}

// Counter sums every series of metric whose labels include want.
func (m *RecordingMetrics) Counter(metric string, want map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for key, v := range m.counters {
		if seriesMatches(key, metric, want) {
			total += v
		}
	}
	return total
}

// Gauge returns the gauge value for the exact series.
func (m *RecordingMetrics) Gauge(metric string, labels map[string]string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.gauges[seriesKey(metric, labels)]
	return v, ok
}

// Observations returns every histogram value of metric whose labels include
// want.
func (m *RecordingMetrics) Observations(metric string, want map[string]string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []float64
	for key, vals := range m.histograms {
		if seriesMatches(key, metric, want) {
			out = append(out, vals...)
		}
	}
	return out
}

// seriesKey renders metric{k=v,...} with sorted labels.
func seriesKey(metric string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func seriesMatches(key, metric string, want map[string]string) bool {
	if !strings.HasPrefix(key, metric+"{") {
		return false
	}
	for k, v := range want {
		if !strings.Contains(key, "{"+k+"="+v+",") &&
			!strings.Contains(key, ","+k+"="+v+",") &&
			!strings.Contains(key, ","+k+"="+v+"}") &&
			!strings.Contains(key, "{"+k+"="+v+"}") {
			return false
		}
	}
	return true
}

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)
