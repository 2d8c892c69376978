package core

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryProvider wraps a Provider and automatically retries transient HTTP
// errors (429 Too Many Requests, 503 Service Unavailable) with exponential
// backoff.
type retryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration // caps the exponential ceiling before jitter; 0 = uncapped
	timeout     time.Duration // overall timeout across all attempts; 0 = no limit
}

// RetryOption configures a retryProvider.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption { return func(r *retryProvider) { r.maxAttempts = n } }

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption { return func(r *retryProvider) { r.baseDelay = d } }

// RetryTimeout sets the overall timeout across all attempts. Zero (default)
// disables the timeout.
func RetryTimeout(d time.Duration) RetryOption { return func(r *retryProvider) { r.timeout = d } }

// RetryMaxDelay caps the exponential ceiling before jitter is applied, so
// attempt counts beyond ~6-7 don't produce multi-minute waits. Zero
// (default) leaves the exponential growth uncapped.
func RetryMaxDelay(d time.Duration) RetryOption { return func(r *retryProvider) { r.maxDelay = d } }

// WithRetry wraps p with automatic retry on transient HTTP errors.
//
//	p = core.WithRetry(provider)
//	p = core.WithRetry(provider, core.RetryMaxAttempts(5))
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retryProvider{inner: p, maxAttempts: 3, baseDelay: time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return retryCall(ctx, r.maxAttempts, r.baseDelay, r.maxDelay, r.inner.Name(), func() (ChatResponse, error) {
		return r.inner.Complete(ctx, req)
	})
}

func (r *retryProvider) ChatWithTools(ctx context.Context, req ChatRequest, tools []ToolDefinition) (ChatResponse, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return retryCall(ctx, r.maxAttempts, r.baseDelay, r.maxDelay, r.inner.Name(), func() (ChatResponse, error) {
		return r.inner.ChatWithTools(ctx, req, tools)
	})
}

// withTimeout returns a child context with a deadline if r.timeout is set.
// The caller must call the returned CancelFunc when done.
func (r *retryProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	deadline := time.Now().Add(r.timeout)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) bool {
	var e *ErrHTTP
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

func retryAfterOf(err error) time.Duration {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// retryDelay computes the delay before retry attempt i: exponential backoff
// with full jitter as a floor, the server's Retry-After (if present) as a
// minimum.
func retryDelay(base, maxDelay time.Duration, i int, err error) time.Duration {
	backoff := retryBackoff(base, maxDelay, i)
	if ra := retryAfterOf(err); ra > backoff {
		return ra
	}
	return backoff
}

// retryCall calls fn up to maxAttempts times, sleeping between transient failures.
func retryCall[T any](ctx context.Context, maxAttempts int, base, maxDelay time.Duration, name string, fn func() (T, error)) (T, error) {
	var zero T
	var last error
	for i := 0; i < maxAttempts; i++ {
		result, err := fn()
		if err == nil || !isTransient(err) {
			return result, err
		}
		last = err
		slog.Default().Warn("transient provider error, retrying",
			"provider", name, "status", statusOf(err), "attempt", i+1, "max_attempts", maxAttempts)
		if i < maxAttempts-1 {
			delay := retryDelay(base, maxDelay, i, err)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, last
}

// retryBackoff returns the delay for retry i (0-indexed) using the "full
// jitter" strategy: the exponential ceiling base*2^i (capped at maxDelay
// when set) bounds a uniform random draw from zero, rather than adding a
// fraction of jitter on top of the full exponential value. This spreads a
// thundering herd of simultaneously-failing callers across the whole
// window instead of clustering them near the top of each doubling step.
func retryBackoff(base, maxDelay time.Duration, i int) time.Duration {
	ceiling := base * (1 << i)
	if maxDelay > 0 && ceiling > maxDelay {
		ceiling = maxDelay
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

var _ Provider = (*retryProvider)(nil)
