package scoring

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-scorekeeper/infrastructure/llm"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// PathConfig holds the resilience settings for one provider path.
type PathConfig struct {
	// Name labels the path in spans, metrics and logs.
	Name string

	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration

	Retry llm.RetryPolicy

	// BreakerFailures is the number of consecutive failed attempts that
	// opens the breaker. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration

	// RateLimit is requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Path is a provider path's middleware together with its breaker, which the
// caller may inspect.
type Path struct {
	Middleware []llm.Middleware
	Breaker    *llm.CircuitBreaker
}

// NewPath assembles the middleware for one provider path, outermost first:
// tracing, metrics, rate limit, retry, circuit breaker, timeout. The breaker
// sits inside retry so every failed attempt counts toward opening it.
func NewPath(
	config PathConfig,
	metrics ports.MetricsCollector,
	tp trace.TracerProvider,
	logger *zap.Logger,
) Path {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("path", config.Name))

	var mw []llm.Middleware
	if tp != nil {
		mw = append(mw, llm.TracingMiddlewareWithProvider(tp, config.Name))
	} else {
		mw = append(mw, llm.TracingMiddleware(config.Name))
	}
	if metrics != nil {
		mw = append(mw, llm.MetricsMiddleware(metrics, config.Name))
	}
	if config.RateLimit > 0 {
		mw = append(mw, llm.RateLimitMiddleware(rate.Limit(config.RateLimit), config.RateBurst))
	}

	mw = append(mw, llm.RetryMiddlewareWithNotify(config.Retry, func(attempt int, err error, wait time.Duration) {
		logger.Info("retrying provider request",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}))

	var breaker *llm.CircuitBreaker
	if config.BreakerFailures > 0 {
		breaker = llm.NewCircuitBreaker(config.BreakerFailures, config.BreakerCooldown)
		if metrics != nil {
			breaker = breaker.WithMetrics(llm.NewCircuitBreakerMetrics(metrics, config.Name))
		}
		mw = append(mw, llm.CircuitBreakerMiddlewareWithBreaker(breaker))
	}

	mw = append(mw, llm.TimeoutMiddleware(config.Timeout))

	return Path{Middleware: mw, Breaker: breaker}
}
