package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// rateLimitProvider wraps a Provider with proactive rate limiting. Requests
// block until the sliding-window RPM/TPM budget allows them to proceed,
// rather than firing and handling a 429 after the fact.
type rateLimitProvider struct {
	inner Provider
	mu    sync.Mutex

	rpm       int
	rpmWindow []time.Time

	tpm       int
	tpmWindow []tpmEntry
}

type tpmEntry struct {
	at     time.Time
	tokens int
}

// RateLimitOption configures a rateLimitProvider.
type RateLimitOption func(*rateLimitProvider)

// RPM sets the maximum requests per minute.
func RPM(n int) RateLimitOption { return func(r *rateLimitProvider) { r.rpm = n } }

// TPM sets the maximum tokens per minute (input + output combined). Soft
// limit: the request that exceeds the budget completes, but subsequent
// requests block until the window slides.
func TPM(n int) RateLimitOption { return func(r *rateLimitProvider) { r.tpm = n } }

// WithRateLimit wraps p with proactive rate limiting. Compose with
// WithRetry — rate limiting should sit outermost so retries don't bypass
// the budget check:
//
//	p = core.WithRateLimit(core.WithRetry(p), core.RPM(60), core.TPM(100000))
func WithRateLimit(p Provider, opts ...RateLimitOption) Provider {
	r := &rateLimitProvider{inner: p}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *rateLimitProvider) Name() string { return r.inner.Name() }

func (r *rateLimitProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := r.waitForBudget(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := r.inner.Complete(ctx, req)
	if err == nil {
		r.recordUsage(resp.Usage)
	}
	return resp, err
}

func (r *rateLimitProvider) ChatWithTools(ctx context.Context, req ChatRequest, tools []ToolDefinition) (ChatResponse, error) {
	if err := r.waitForBudget(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := r.inner.ChatWithTools(ctx, req, tools)
	if err == nil {
		r.recordUsage(resp.Usage)
	}
	return resp, err
}

// waitForBudget blocks until both RPM and TPM budgets allow a request.
func (r *rateLimitProvider) waitForBudget(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Minute)

		r.rpmWindow = pruneTime(r.rpmWindow, cutoff)
		r.tpmWindow = pruneTpm(r.tpmWindow, cutoff)

		rpmOK := r.rpm <= 0 || len(r.rpmWindow) < r.rpm

		tpmOK := true
		if r.tpm > 0 {
			var total int
			for _, e := range r.tpmWindow {
				total += e.tokens
			}
			tpmOK = total < r.tpm
		}

		if rpmOK && tpmOK {
			if r.rpm > 0 {
				r.rpmWindow = append(r.rpmWindow, now)
			}
			r.mu.Unlock()
			return nil
		}

		var wait time.Duration
		if !rpmOK && len(r.rpmWindow) > 0 {
			wait = r.rpmWindow[0].Add(time.Minute).Sub(now)
		}
		if !tpmOK && len(r.tpmWindow) > 0 {
			w := r.tpmWindow[0].at.Add(time.Minute).Sub(now)
			if wait == 0 || w < wait {
				wait = w
			}
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *rateLimitProvider) recordUsage(u Usage) {
	if r.tpm <= 0 {
		return
	}
	total := u.InputTokens + u.OutputTokens
	if total <= 0 {
		return
	}
	r.mu.Lock()
	r.tpmWindow = append(r.tpmWindow, tpmEntry{at: time.Now(), tokens: total})
	r.mu.Unlock()
}

// pruneTime drops entries older than cutoff. Entries are appended in
// arrival order so the slice is always sorted; sort.Search finds the split
// point in O(log n) rather than scanning every expired entry by hand.
func pruneTime(s []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(s), func(i int) bool { return !s[i].Before(cutoff) })
	return s[i:]
}

func pruneTpm(s []tpmEntry, cutoff time.Time) []tpmEntry {
	i := sort.Search(len(s), func(i int) bool { return !s[i].at.Before(cutoff) })
	return s[i:]
}

// RateLimitStatus is a snapshot of the current sliding-window budget,
// useful for exposing headroom via a health or metrics endpoint.
type RateLimitStatus struct {
	RPMUsed, RPMLimit int
	TPMUsed, TPMLimit int
}

// Status returns the rate limiter's current window occupancy without
// blocking or mutating state beyond pruning expired entries.
func (r *rateLimitProvider) Status() RateLimitStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-time.Minute)
	r.rpmWindow = pruneTime(r.rpmWindow, cutoff)
	r.tpmWindow = pruneTpm(r.tpmWindow, cutoff)

	var tpmUsed int
	for _, e := range r.tpmWindow {
		tpmUsed += e.tokens
	}
	return RateLimitStatus{
		RPMUsed:  len(r.rpmWindow),
		RPMLimit: r.rpm,
		TPMUsed:  tpmUsed,
		TPMLimit: r.tpm,
	}
}

var _ Provider = (*rateLimitProvider)(nil)
