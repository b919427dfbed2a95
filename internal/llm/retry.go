package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryProvider retries transient failures of the wrapped Provider with
// exponential backoff. Truncated replies, rejected requests and caller
// cancellation fail immediately; a reply that fails validation is
// retried once.
type RetryProvider struct {
	inner   Provider
	config  RetryConfig
	timeout time.Duration
}

// WithRetry wraps p. MaxAttempts below one means a single attempt.
func WithRetry(p Provider, cfg RetryConfig) *RetryProvider {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	cfg.Multiplier = max(cfg.Multiplier, 1)
	return &RetryProvider{inner: p, config: cfg}
}

// WithTimeout bounds each Generate call, retries included. Zero disables
// the bound.
func (r *RetryProvider) WithTimeout(d time.Duration) *RetryProvider {
	r.timeout = d
	return r
}

func (r *RetryProvider) ModelID() string { return r.inner.ModelID() }

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var (
		err         error
		sawInvalid  bool
		lastAttempt = r.config.MaxAttempts - 1
	)
	for attempt := 0; ; attempt++ {
		var resp *Response
		resp, err = r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		var inv *ErrInvalidResponse
		invalid := errors.As(err, &inv)
		if attempt == lastAttempt || !retryable(err) || (invalid && sawInvalid) {
			return nil, err
		}
		sawInvalid = sawInvalid || invalid

		t := time.NewTimer(r.delay(attempt, err))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var (
		truncated *ErrMaxTokensExceeded
		rejected  *ErrRequestRejected
	)
	return !errors.As(err, &truncated) && !errors.As(err, &rejected)
}

// delay is the wait before attempt+1: the server's Retry-After when a
// rate limit carries one, otherwise capped exponential backoff with 20%
// jitter either way.
func (r *RetryProvider) delay(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	wait = math.Min(wait, float64(r.config.MaxWait))
	wait *= 1 + 0.2*(2*rand.Float64()-1)
	return time.Duration(max(wait, 0))
}
