package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the retry budget of one provider path. Both the number of
// attempts and the total elapsed time are capped.
type RetryPolicy struct {
	// MaxAttempts counts the first call, so 3 means up to two retries.
	MaxAttempts uint
	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration
	// MaxElapsedTime caps the total time spent including waits.
	MaxElapsedTime time.Duration
	// Multiplier grows the interval after each attempt.
	Multiplier float64
	// RandomizationFactor adds jitter; 0.25 means +/-25%.
	RandomizationFactor float64
}

// DefaultRetryPolicy returns the policy used when configuration is silent.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      15 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.25,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	if p.RandomizationFactor >= 0 {
		b.RandomizationFactor = p.RandomizationFactor
	}
	return b
}

// RetryNotify observes a failed attempt before the wait that precedes the
// next one.
type RetryNotify func(attempt int, err error, wait time.Duration)

// retryLLM retries transient failures with exponential backoff.
type retryLLM struct {
	next   CoreLLM
	policy RetryPolicy
	notify RetryNotify
}

// RetryMiddleware creates middleware that retries failed requests with
// exponential backoff and jitter. Permanent failures (see IsPermanent),
// including ErrCircuitOpen, end the loop immediately.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return RetryMiddlewareWithNotify(policy, nil)
}

// RetryMiddlewareWithNotify is RetryMiddleware with a per-attempt callback,
// used for logging.
func RetryMiddlewareWithNotify(policy RetryPolicy, notify RetryNotify) Middleware {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{next: next, policy: policy, notify: notify}
	}
}

type completion struct {
	response  string
	tokensIn  int
	tokensOut int
}

// DoRequest executes the request with automatic retry logic.
func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	attempts := 0
	op := func() (completion, error) {
		attempts++
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return completion{response, tokensIn, tokensOut}, nil
		}
		if ctx.Err() != nil || IsPermanent(err) {
			return completion{}, backoff.Permanent(err)
		}
		return completion{}, err
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(r.policy.newBackOff()),
		backoff.WithMaxTries(r.policy.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if r.notify != nil {
				r.notify(attempts, err, wait)
			}
		}),
	}
	if r.policy.MaxElapsedTime > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(r.policy.MaxElapsedTime))
	}

	res, err := backoff.Retry(ctx, op, retryOpts...)
	if err != nil {
		return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", attempts, err)
	}
	return res.response, res.tokensIn, res.tokensOut, nil
}

// GetModel returns the model name from the wrapped implementation.
func (r *retryLLM) GetModel() string { return r.next.GetModel() }
