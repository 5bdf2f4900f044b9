package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed allows all requests to pass through normally.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects all requests immediately until the cool-down elapses.
	StateOpen

	// StateHalfOpen admits a single probe request to test recovery.
	StateHalfOpen
)

// String returns the state's metric label.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerMetrics enables observability for circuit breaker behavior.
type CircuitBreakerMetrics interface {
	// RecordState updates the current circuit breaker state metric.
	RecordState(state CircuitBreakerState)

	// RecordTrip counts transitions into the open state.
	RecordTrip()

	// RecordRejected counts calls short-circuited by an open breaker.
	RecordRejected()

	// RecordSuccess increments the successful request counter.
	RecordSuccess()

	// RecordFailure increments the failed request counter.
	RecordFailure()
}

// CircuitBreaker opens after maxFailures consecutive failures, rejects calls
// while open, and after the cool-down lets exactly one probe through. A
// successful probe closes the circuit; a failed probe reopens it for another
// cool-down.
//
// The protected function runs without holding the breaker's lock, so slow
// provider calls do not serialize one another.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	openedAt         time.Time
	probing          bool
	now              func() time.Time
	metrics          CircuitBreakerMetrics
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldownDuration,
		now:              time.Now,
	}
}

// WithMetrics attaches a metrics sink and returns the breaker.
func (cb *CircuitBreaker) WithMetrics(m CircuitBreakerMetrics) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.metrics = m
	return cb
}

// Call executes fn through the circuit breaker. It returns ErrCircuitOpen
// without calling fn when the circuit is open or a half-open probe is already
// in flight.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldownDuration {
			cb.reject()
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return nil
	case StateHalfOpen:
		if cb.probing {
			cb.reject()
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasProbe := cb.state == StateHalfOpen
	cb.probing = false

	// The caller giving up says nothing about provider health.
	if errors.Is(err, context.Canceled) {
		return
	}

	if err == nil {
		cb.failureCount = 0
		cb.setState(StateClosed)
		if cb.metrics != nil {
			cb.metrics.RecordSuccess()
		}
		return
	}

	cb.failureCount++
	if cb.metrics != nil {
		cb.metrics.RecordFailure()
	}
	if wasProbe || cb.failureCount >= cb.maxFailures {
		cb.openedAt = cb.now()
		if cb.state != StateOpen && cb.metrics != nil {
			cb.metrics.RecordTrip()
		}
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) reject() {
	if cb.metrics != nil {
		cb.metrics.RecordRejected()
	}
}

func (cb *CircuitBreaker) setState(s CircuitBreakerState) {
	cb.state = s
	if cb.metrics != nil {
		cb.metrics.RecordState(s)
	}
}

// GetState returns the current circuit breaker state. An open breaker whose
// cool-down has elapsed still reports open until the next call probes it.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// circuitBreakedLLM routes every request through a CircuitBreaker.
type circuitBreakedLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware creates middleware with its own breaker. The
// circuit opens after maxFailures consecutive errors and stays open for the
// cool-down before a probe is admitted.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithBreaker(NewCircuitBreaker(maxFailures, cooldown))
}

// CircuitBreakerMiddlewareWithBreaker creates middleware around a breaker the
// caller keeps a handle on, for example to expose its state.
func CircuitBreakerMiddlewareWithBreaker(cb *CircuitBreaker) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakedLLM{next: next, cb: cb}
	}
}

// DoRequest executes the request through the circuit breaker.
func (c *circuitBreakedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var response string
	var tokensIn, tokensOut int

	err := c.cb.Call(func() error {
		var err error
		response, tokensIn, tokensOut, err = c.next.DoRequest(ctx, prompt, opts)
		return err
	})

	return response, tokensIn, tokensOut, err
}

// GetModel returns the model name from the wrapped implementation.
func (c *circuitBreakedLLM) GetModel() string { return c.next.GetModel() }

// collectorBreakerMetrics reports breaker activity through a MetricsCollector.
type collectorBreakerMetrics struct {
	collector ports.MetricsCollector
	labels    map[string]string
}

// NewCircuitBreakerMetrics adapts collector to CircuitBreakerMetrics. path
// identifies the provider path, such as "primary".
func NewCircuitBreakerMetrics(collector ports.MetricsCollector, path string) CircuitBreakerMetrics {
	return &collectorBreakerMetrics{
		collector: collector,
		labels:    map[string]string{"path": path},
	}
}

func (m *collectorBreakerMetrics) RecordState(state CircuitBreakerState) {
	m.collector.RecordGauge("circuit_breaker_state", float64(state), m.labels)
}

func (m *collectorBreakerMetrics) RecordTrip() {
	m.collector.RecordCounter("circuit_breaker_trips_total", 1, m.labels)
}

func (m *collectorBreakerMetrics) RecordRejected() {
	m.collector.RecordCounter("circuit_breaker_rejected_total", 1, m.labels)
}

func (m *collectorBreakerMetrics) RecordSuccess() {
	m.collector.RecordCounter("circuit_breaker_calls_total", 1, m.withResult("success"))
}

func (m *collectorBreakerMetrics) RecordFailure() {
	m.collector.RecordCounter("circuit_breaker_calls_total", 1, m.withResult("failure"))
}

func (m *collectorBreakerMetrics) withResult(result string) map[string]string {
	return map[string]string{"path": m.labels["path"], "result": result}
}
