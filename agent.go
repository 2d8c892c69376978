package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Agent is a unit of work that takes a task and returns a result. The
// tier runner, the parallel sub-agent executor, and the task-runner's
// Executor step all invoke work through this interface.
type Agent interface {
	Name() string
	Description() string
	Execute(ctx *RunContext) (AgentResult, error)
}

// AgentResult is the output of an Agent.
type AgentResult struct {
	Output string
	Usage  Usage
}

// RunContext is the live state of one execution-loop run: the task, its
// current tier, the tool catalog available to it, and the iteration/abort
// bookkeeping the loop and its middleware read and mutate. One RunContext
// exists per run; sub-agent runs get their own.
type RunContext struct {
	Task          string
	Tier          Tier
	Tools         []ToolDefinition
	MaxIterations int
	RequestID     string
	SessionID     string

	mu           sync.RWMutex
	iteration    int
	aborted      atomic.Bool
	haltResponse atomic.Value // string
	meta         *metaStore
}

// NewRunContext creates a RunContext at iteration 0 with a fresh meta
// store. requestID and sessionID default to a generated ID when empty.
func NewRunContext(task string, tier Tier, maxIterations int, requestID, sessionID string) *RunContext {
	if requestID == "" {
		requestID = NewID()
	}
	if sessionID == "" {
		sessionID = NewID()
	}
	return &RunContext{
		Task:          task,
		Tier:          tier,
		MaxIterations: maxIterations,
		RequestID:     requestID,
		SessionID:     sessionID,
		meta:          newMetaStore(),
	}
}

// Iteration returns the current iteration number.
func (r *RunContext) Iteration() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.iteration
}

// AdvanceIteration increments and returns the new iteration count.
func (r *RunContext) AdvanceIteration() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iteration++
	return r.iteration
}

// Meta returns the run's namespaced metadata store, shared by middleware
// and normalizers.
func (r *RunContext) Meta() *metaStore {
	return r.meta
}

// Abort marks the run as cancelled. Monotonic: once set, stays set.
func (r *RunContext) Abort() {
	r.aborted.Store(true)
}

// Aborted reports whether Abort has been called.
func (r *RunContext) Aborted() bool {
	return r.aborted.Load()
}

// Halt aborts the run and records response as the final output to surface
// to the caller — the guard-triggered counterpart to Abort, which carries
// no response. Middleware (InjectionGuard, ContentGuard, KeywordGuard) call
// this from BeforeLLMCall (ContentGuard also from AfterLLMCall) instead of
// returning an error, matching the rest
// of the middleware design's side-effect-on-RunContext idiom.
func (r *RunContext) Halt(response string) {
	r.haltResponse.Store(response)
	r.Abort()
}

// HaltResponse returns the response recorded by Halt, if any.
func (r *RunContext) HaltResponse() (string, bool) {
	v := r.haltResponse.Load()
	if v == nil {
		return "", false
	}
	return v.(string), true
}

// validate checks the run's iteration invariant: the counter must never
// exceed MaxIterations. The aborted flag is not checked here; Abort only
// ever sets it. Called at every PREPARE step of the execution loop.
func (r *RunContext) validate() error {
	r.mu.RLock()
	iter := r.iteration
	r.mu.RUnlock()
	if r.MaxIterations > 0 && iter > r.MaxIterations {
		return &ErrMaxDepth{Depth: iter, MaxDepth: r.MaxIterations}
	}
	return nil
}

// WithTier returns a copy of ctx escalated to the next tier, preserving
// session id, iteration count, and metadata — used by the tier Runner on
// escalation rather than starting a fresh run.
func (r *RunContext) WithTier(tier Tier) *RunContext {
	r.mu.RLock()
	iter := r.iteration
	r.mu.RUnlock()
	next := &RunContext{
		Task:          r.Task,
		Tier:          tier,
		Tools:         r.Tools,
		MaxIterations: r.MaxIterations,
		RequestID:     r.RequestID,
		SessionID:     r.SessionID,
		iteration:     iter,
		meta:          r.meta,
	}
	if next.aborted.Load() != r.aborted.Load() && r.aborted.Load() {
		next.aborted.Store(true)
	}
	return next
}

func (r *RunContext) String() string {
	return fmt.Sprintf("RunContext{session=%s request=%s tier=%s iteration=%d}", r.SessionID, r.RequestID, r.Tier, r.Iteration())
}
