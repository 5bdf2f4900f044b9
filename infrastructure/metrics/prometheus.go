// Package metrics adapts ports.MetricsCollector to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// DefaultNamespace prefixes every metric registered by PrometheusMetrics.
const DefaultNamespace = "scorekeeper"

// ScoreBuckets suit histograms of 0-100 scores.
var ScoreBuckets = prometheus.LinearBuckets(0, 10, 11)

// Options configures a PrometheusMetrics.
type Options struct {
	// Namespace prefixes metric names. Empty means DefaultNamespace.
	Namespace string
	// Buckets overrides histogram buckets per metric name. Unlisted
	// histograms use prometheus.DefBuckets.
	Buckets map[string][]float64
	// Registry receives the metrics. Nil creates a private registry with the
	// Go and process collectors.
	Registry *prometheus.Registry
}

// PrometheusMetrics implements ports.MetricsCollector on a Prometheus
// registry.
//
// Vectors are created on first use of a metric name and keep the label keys
// seen on that first call. Later calls fill missing keys with "" and drop
// unknown ones, so a call site cannot make registration fail.
type PrometheusMetrics struct {
	namespace string
	buckets   map[string][]float64
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*labeledVec[*prometheus.CounterVec]
	gauges     map[string]*labeledVec[*prometheus.GaugeVec]
	histograms map[string]*labeledVec[*prometheus.HistogramVec]
}

type labeledVec[V any] struct {
	vec  V
	keys []string
}

func (l *labeledVec[V]) values(labels map[string]string) []string {
	out := make([]string, len(l.keys))
	for i, k := range l.keys {
		out[i] = labels[k]
	}
	return out
}

// NewPrometheusMetrics creates a collector.
func NewPrometheusMetrics(opts Options) *PrometheusMetrics {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	buckets := map[string][]float64{"scoring_score": ScoreBuckets}
	for k, v := range opts.Buckets {
		buckets[k] = v
	}

	return &PrometheusMetrics{
		namespace:  opts.Namespace,
		buckets:    buckets,
		registry:   reg,
		counters:   make(map[string]*labeledVec[*prometheus.CounterVec]),
		gauges:     make(map[string]*labeledVec[*prometheus.GaugeVec]),
		histograms: make(map[string]*labeledVec[*prometheus.HistogramVec]),
	}
}

// Registry returns the registry the metrics are registered on.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// RecordLatency observes duration in seconds on the histogram named
// operation.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.RecordHistogram(operation, duration.Seconds(), labels)
}

// RecordCounter adds value to the counter named metric. Negative values are
// ignored; Prometheus counters only go up.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	pm.mu.Lock()
	c, ok := pm.counters[metric]
	if !ok {
		keys := labelKeys(labels)
		c = &labeledVec[*prometheus.CounterVec]{
			vec: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: pm.namespace,
				Name:      metric,
				Help:      "Counter " + metric + ".",
			}, keys),
			keys: keys,
		}
		c.vec = registerOrExisting(pm.registry, c.vec)
		pm.counters[metric] = c
	}
	pm.mu.Unlock()

	c.vec.WithLabelValues(c.values(labels)...).Add(value)
}

// RecordGauge sets the gauge named metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	g, ok := pm.gauges[metric]
	if !ok {
		keys := labelKeys(labels)
		g = &labeledVec[*prometheus.GaugeVec]{
			vec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: pm.namespace,
				Name:      metric,
				Help:      "Gauge " + metric + ".",
			}, keys),
			keys: keys,
		}
		g.vec = registerOrExisting(pm.registry, g.vec)
		pm.gauges[metric] = g
	}
	pm.mu.Unlock()

	g.vec.WithLabelValues(g.values(labels)...).Set(value)
}

// RecordHistogram observes value on the histogram named metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	h, ok := pm.histograms[metric]
	if !ok {
		buckets, ok := pm.buckets[metric]
		if !ok {
			buckets = prometheus.DefBuckets
		}
		keys := labelKeys(labels)
		h = &labeledVec[*prometheus.HistogramVec]{
			vec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: pm.namespace,
				Name:      metric,
				Help:      "Histogram " + metric + ".",
				Buckets:   buckets,
			}, keys),
			keys: keys,
		}
		h.vec = registerOrExisting(pm.registry, h.vec)
		pm.histograms[metric] = h
	}
	pm.mu.Unlock()

	h.vec.WithLabelValues(h.values(labels)...).Observe(value)
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return slices.Compact(keys)
}

// registerOrExisting registers c, returning the already registered collector
// when an identical one exists. Any other registration error panics, as with
// MustRegister.
func registerOrExisting[C prometheus.Collector](reg *prometheus.Registry, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
