package core

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxDepth      = 3
	defaultMaxConcurrent = 5
	defaultMaxQueueSize  = 20
	defaultJoinTimeout   = 120 * time.Second
)

// TokenPartition selects how a parent's token budget is divided across a
// batch of sub-agent requests.
type TokenPartition string

const (
	PartitionEqual    TokenPartition = "equal"
	PartitionWeighted TokenPartition = "weighted"
)

// SubAgentRequest is one unit of work handed to ParallelExecutor.ExecuteAll.
type SubAgentRequest struct {
	Task      string
	Weight    float64 // used only under PartitionWeighted
	DedupeKey string  // defaults to Task when empty
}

// SubAgentResult is the tagged outcome of one SubAgentRequest.
type SubAgentResult struct {
	Output    string
	Usage     Usage
	Err       error
	Aborted   bool
	TimedOut  bool
	Deduped   bool
	QueueFull bool
}

// SubAgentRunner executes one sub-agent request against a token budget and
// a cancellable child context, returning its result.
type SubAgentRunner func(ctx context.Context, req SubAgentRequest, tokenBudget int) SubAgentResult

// ParallelExecutor fans a batch of sub-agent requests out to a runner
// under a concurrency cap, a depth guard, token-budget partitioning,
// request dedup, a backpressure queue, and a join timeout. Generalizes the
// teacher's Network sub-agent dispatch (handle.go's spawn/cancel pattern)
// into a reusable, runner-agnostic executor. Dedup is backed by
// singleflight.Group so concurrent requests sharing a dedupe key collapse
// onto one in-flight call, same as the teacher's cache-stampede guards.
type ParallelExecutor struct {
	Runner        SubAgentRunner
	MaxDepth      int
	MaxConcurrent int
	MaxQueueSize  int
	JoinTimeout   time.Duration
	Partition     TokenPartition

	group singleflight.Group
}

// ExecuteAll runs requests against r.Runner, respecting depth, abort,
// budget partition, dedup, backpressure, concurrency cap, and join
// timeout. Always returns exactly len(requests) results, in order — it
// never blocks forever and never panics out.
func (p *ParallelExecutor) ExecuteAll(ctx context.Context, requests []SubAgentRequest, depth int, parentAborted bool, tokenBudget int) []SubAgentResult {
	maxDepth := orDefault(p.MaxDepth, defaultMaxDepth)
	if depth > maxDepth {
		return fillAll(len(requests), SubAgentResult{Err: &ErrMaxDepth{Depth: depth, MaxDepth: maxDepth}})
	}
	if parentAborted {
		return fillAll(len(requests), SubAgentResult{Aborted: true})
	}

	maxConcurrent := orDefault(p.MaxConcurrent, defaultMaxConcurrent)
	maxQueueSize := orDefault(p.MaxQueueSize, defaultMaxQueueSize)
	joinTimeout := p.JoinTimeout
	if joinTimeout <= 0 {
		joinTimeout = defaultJoinTimeout
	}

	budgets := partitionBudget(tokenBudget, requests, p.Partition)

	childCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	results := make([]SubAgentResult, len(requests))
	filled := make([]bool, len(requests))
	var fillMu sync.Mutex
	set := func(i int, r SubAgentResult) {
		fillMu.Lock()
		results[i] = r
		filled[i] = true
		fillMu.Unlock()
	}

	type job struct {
		idx int
		req SubAgentRequest
	}
	queue := make(chan job, maxQueueSize)

	for i, req := range requests {
		select {
		case queue <- job{idx: i, req: req}:
		default:
			set(i, SubAgentResult{QueueFull: true})
		}
	}
	close(queue)

	g, gctx := errgroup.WithContext(childCtx)
	g.SetLimit(maxConcurrent)
	for j := range queue {
		j := j
		g.Go(func() error {
			set(j.idx, p.runOne(gctx, j.req, budgets[j.idx]))
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(joinTimeout):
		cancelAll()
		fillMu.Lock()
		for i := range results {
			if !filled[i] {
				results[i] = SubAgentResult{TimedOut: true}
			}
		}
		fillMu.Unlock()
	}
	return results
}

// runOne executes one request through the singleflight group keyed by its
// dedupe key (default: task text). A concurrent caller sharing the key
// gets the same result marked Deduped; only the first caller actually
// invokes p.Runner.
func (p *ParallelExecutor) runOne(ctx context.Context, req SubAgentRequest, budget int) SubAgentResult {
	key := req.DedupeKey
	if key == "" {
		key = req.Task
	}

	v, _, shared := p.group.Do(key, func() (any, error) {
		return p.safeRun(ctx, req, budget), nil
	})
	result := v.(SubAgentResult)
	if shared {
		result.Deduped = true
	}
	return result
}

func (p *ParallelExecutor) safeRun(ctx context.Context, req SubAgentRequest, budget int) (result SubAgentResult) {
	defer func() {
		if r := recover(); r != nil {
			result = SubAgentResult{Err: &ErrMaxDepth{}}
		}
	}()
	return p.Runner(ctx, req, budget)
}

func partitionBudget(total int, requests []SubAgentRequest, partition TokenPartition) []int {
	out := make([]int, len(requests))
	if total <= 0 {
		return out // zero budget everywhere means "unlimited"
	}
	if partition == PartitionWeighted {
		var sumW float64
		for _, r := range requests {
			sumW += r.Weight
		}
		if sumW > 0 {
			for i, r := range requests {
				out[i] = int(r.Weight / sumW * float64(total))
			}
			return out
		}
	}
	share := total / max(len(requests), 1)
	for i := range out {
		out[i] = share
	}
	return out
}

func fillAll(n int, r SubAgentResult) []SubAgentResult {
	out := make([]SubAgentResult, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
