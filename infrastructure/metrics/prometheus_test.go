package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

func newTestMetrics() *PrometheusMetrics {
	return NewPrometheusMetrics(Options{Registry: prometheus.NewRegistry()})
}

func TestPrometheusMetrics_Counter(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("scoring_fallback_total", 1, map[string]string{"reason": "timeout"})
	pm.RecordCounter("scoring_fallback_total", 2, map[string]string{"reason": "timeout"})
	pm.RecordCounter("scoring_fallback_total", 1, map[string]string{"reason": "circuit_open"})

	c := pm.counters["scoring_fallback_total"]
	require.NotNil(t, c)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.vec.WithLabelValues("timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.vec.WithLabelValues("circuit_open")))
}

func TestPrometheusMetrics_LabelDrift(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("events_handled_total", 1, map[string]string{"backend": "memory", "outcome": "ok"})
	assert.NotPanics(t, func() {
		pm.RecordCounter("events_handled_total", 1, map[string]string{"backend": "memory"})
		pm.RecordCounter("events_handled_total", 1, map[string]string{"backend": "memory", "outcome": "ok", "extra": "x"})
		pm.RecordCounter("events_handled_total", 1, nil)
	})

	c := pm.counters["events_handled_total"]
	assert.Equal(t, []string{"backend", "outcome"}, c.keys)
	assert.Equal(t, float64(2), testutil.ToFloat64(c.vec.WithLabelValues("memory", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.vec.WithLabelValues("memory", "")))
}

func TestPrometheusMetrics_NegativeCounterIgnored(t *testing.T) {
	pm := newTestMetrics()
	assert.NotPanics(t, func() {
		pm.RecordCounter("ledger_improved_total", -1, nil)
	})
	assert.Nil(t, pm.counters["ledger_improved_total"])
}

func TestPrometheusMetrics_GaugeAndHistogram(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordGauge("leaderboard_size", 10, nil)
	pm.RecordGauge("leaderboard_size", 25, nil)
	assert.Equal(t, float64(25), testutil.ToFloat64(pm.gauges["leaderboard_size"].vec.WithLabelValues()))

	pm.RecordHistogram("scoring_score", 85, map[string]string{"path": "primary"})
	pm.RecordLatency("pipeline_duration_seconds", 120*time.Millisecond, nil)

	assert.Equal(t, 1, testutil.CollectAndCount(pm.histograms["scoring_score"].vec))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.histograms["pipeline_duration_seconds"].vec))
}

func TestPrometheusMetrics_Handler(t *testing.T) {
	pm := NewPrometheusMetrics(Options{Namespace: "test"})
	pm.RecordCounter("submission_state_total", 1, map[string]string{"state": "consumed"})
	pm.RecordHistogram("scoring_score", 70, nil)

	rec := httptest.NewRecorder()
	pm.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `test_submission_state_total{state="consumed"} 1`)
	assert.Contains(t, body, `test_scoring_score_bucket{le="70"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"), "default registry includes runtime metrics")
}

func TestPrometheusMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusMetrics(Options{Registry: reg})
	second := NewPrometheusMetrics(Options{Registry: reg})

	first.RecordCounter("llm_requests_total", 1, map[string]string{"model": "m"})
	assert.NotPanics(t, func() {
		second.RecordCounter("llm_requests_total", 1, map[string]string{"model": "m"})
	}, "an identical collector should be reused")

	assert.Equal(t, float64(2), testutil.ToFloat64(second.counters["llm_requests_total"].vec.WithLabelValues("m")))
}

func TestPrometheusMetrics_InterfaceCompliance(t *testing.T) {
	var _ ports.MetricsCollector = newTestMetrics()
}
