package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// metricsLLM records latency, outcome, and token usage per request.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
	path      string
}

// MetricsMiddleware creates middleware that collects request metrics. path
// labels the provider path ("primary" or "secondary") so fallback traffic can
// be told apart.
func MetricsMiddleware(collector ports.MetricsCollector, path string) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{
			next:      next,
			collector: collector,
			path:      path,
		}
	}
}

// DoRequest executes the request while collecting metrics.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"path":   m.path,
		"model":  m.next.GetModel(),
		"status": requestStatus(err),
	}

	m.collector.RecordHistogram("llm_latency_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordCounter("llm_requests_total", 1, labels)

	if err == nil {
		m.collector.RecordCounter("llm_tokens_total", float64(tokensIn), map[string]string{
			"path": m.path, "model": labels["model"], "token_type": "input",
		})
		m.collector.RecordCounter("llm_tokens_total", float64(tokensOut), map[string]string{
			"path": m.path, "model": labels["model"], "token_type": "output",
		})
	}

	return response, tokensIn, tokensOut, err
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case Kind(err) == FailureTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }
