package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimitedLLM paces outbound requests with a token bucket.
type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces rate limiting using a
// token bucket. The limit sets requests per second, while burst allows
// temporary spikes above the sustained rate. A non-positive limit disables
// pacing.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	return func(next CoreLLM) CoreLLM {
		if limit <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimitedLLM{
			next:    next,
			limiter: rate.NewLimiter(limit, burst),
		}
	}
}

// DoRequest waits for rate limit permission before forwarding the request.
// Waiting honors ctx, so a caller's deadline bounds time spent in the queue.
func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitedLLM) GetModel() string { return r.next.GetModel() }
