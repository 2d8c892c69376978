package core

import (
	"context"
	"log/slog"
)

// IterationDecisionKind is the tagged-variant result of beforeIteration.
type IterationDecisionKind string

const (
	IterationContinue IterationDecisionKind = "continue"
	IterationStop     IterationDecisionKind = "stop"
	IterationEscalate IterationDecisionKind = "escalate"
	IterationHandoff  IterationDecisionKind = "handoff"
)

// IterationDecision is returned by Middleware.BeforeIteration.
type IterationDecision struct {
	Kind   IterationDecisionKind
	Reason string
	// HandoffTo names the agent to hand off to when Kind is handoff.
	HandoffTo string
}

func ContinueIteration() IterationDecision { return IterationDecision{Kind: IterationContinue} }
func StopIteration(reason string) IterationDecision {
	return IterationDecision{Kind: IterationStop, Reason: reason}
}
func EscalateIteration(reason string) IterationDecision {
	return IterationDecision{Kind: IterationEscalate, Reason: reason}
}

// LLMPatch is the tagged partial-update a middleware's BeforeLLMCall hook
// can apply to the outgoing request. Nil fields mean "no change" — this is
// a patch, not a replacement.
type LLMPatch struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature *float64
}

// ToolDecisionKind is the tagged-variant result of BeforeToolExec.
type ToolDecisionKind string

const (
	ToolProceed ToolDecisionKind = "proceed"
	ToolSkip    ToolDecisionKind = "skip"
)

type ToolDecision struct {
	Kind   ToolDecisionKind
	Reason string
}

func ProceedWithTool() ToolDecision { return ToolDecision{Kind: ToolProceed} }
func SkipTool(reason string) ToolDecision {
	return ToolDecision{Kind: ToolSkip, Reason: reason}
}

// Middleware implements any subset of the eight run-lifecycle hooks.
// Embedding NoopMiddleware supplies all-default behavior for the eight
// hooks, so a concrete middleware only implements Name and overrides what it
// cares about — the same partial-implementation idiom as the teacher's
// PreProcessor/PostProcessor/PostToolProcessor split in processor.go.
type Middleware interface {
	Name() string
	OnStart(run *RunContext)
	BeforeIteration(run *RunContext) IterationDecision
	BeforeLLMCall(ctx context.Context, run *RunContext, req *ChatRequest) LLMPatch
	AfterLLMCall(ctx context.Context, run *RunContext, resp *ChatResponse)
	BeforeToolExec(ctx context.Context, run *RunContext, tc ToolCall) ToolDecision
	AfterToolExec(ctx context.Context, run *RunContext, tc ToolCall, out ToolOutput)
	OnStop(run *RunContext, reason string)
	OnComplete(run *RunContext)
}

// NoopMiddleware is embedded by concrete middlewares so they only need to
// implement the hooks they use.
type NoopMiddleware struct{}

func (NoopMiddleware) OnStart(*RunContext) {}
func (NoopMiddleware) BeforeIteration(*RunContext) IterationDecision { return ContinueIteration() }
func (NoopMiddleware) BeforeLLMCall(context.Context, *RunContext, *ChatRequest) LLMPatch {
	return LLMPatch{}
}
func (NoopMiddleware) AfterLLMCall(context.Context, *RunContext, *ChatResponse)      {}
func (NoopMiddleware) BeforeToolExec(context.Context, *RunContext, ToolCall) ToolDecision {
	return ProceedWithTool()
}
func (NoopMiddleware) AfterToolExec(context.Context, *RunContext, ToolCall, ToolOutput) {}
func (NoopMiddleware) OnStop(*RunContext, string)                                      {}
func (NoopMiddleware) OnComplete(*RunContext)                                          {}

// fixed priority order for built-in middlewares; user-supplied middlewares
// are appended after these regardless of any priority they report.
const (
	PriorityObservability  = 5
	PriorityBudget         = 10
	PriorityContextFilter  = 15
	PriorityFactSheet      = 20
	PriorityProgress       = 50
)

// MiddlewarePipeline runs an ordered collection of middlewares and is
// fail-open: a panicking or erroring hook is caught, routed to OnError,
// and the next middleware still runs.
type MiddlewarePipeline struct {
	middlewares []Middleware
	OnError     func(middlewareName, hook string, err any)
	Logger      *slog.Logger
}

// NewMiddlewarePipeline builds a pipeline from the five built-ins (in
// their fixed order) followed by any extras, in the order supplied.
func NewMiddlewarePipeline(observability, budget, contextFilter, factSheet, progress Middleware, extras ...Middleware) *MiddlewarePipeline {
	p := &MiddlewarePipeline{}
	for _, m := range []Middleware{observability, budget, contextFilter, factSheet, progress} {
		if m != nil {
			p.middlewares = append(p.middlewares, m)
		}
	}
	p.middlewares = append(p.middlewares, extras...)
	return p
}

func (p *MiddlewarePipeline) guard(name, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if p.OnError != nil {
				p.OnError(name, hook, r)
			} else if p.Logger != nil {
				p.Logger.Warn("middleware hook panicked", "middleware", name, "hook", hook, "panic", r)
			}
		}
	}()
	fn()
}

func (p *MiddlewarePipeline) OnStart(run *RunContext) {
	for _, m := range p.middlewares {
		p.guard(m.Name(), "onStart", func() { m.OnStart(run) })
	}
}

// BeforeIteration runs every middleware's hook and returns the first
// non-continue decision, short-circuiting the rest — the earliest
// middleware to ask for stop/escalate/handoff wins.
func (p *MiddlewarePipeline) BeforeIteration(run *RunContext) IterationDecision {
	decision := ContinueIteration()
	for _, m := range p.middlewares {
		mm := m
		p.guard(mm.Name(), "beforeIteration", func() {
			d := mm.BeforeIteration(run)
			if d.Kind != IterationContinue {
				decision = d
			}
		})
		if decision.Kind != IterationContinue {
			return decision
		}
	}
	return decision
}

// BeforeLLMCall applies every middleware's patch in order, later patches
// overriding earlier ones field by field.
func (p *MiddlewarePipeline) BeforeLLMCall(ctx context.Context, run *RunContext, req *ChatRequest) {
	for _, m := range p.middlewares {
		mm := m
		p.guard(mm.Name(), "beforeLLMCall", func() {
			patch := mm.BeforeLLMCall(ctx, run, req)
			if patch.Messages != nil {
				req.Messages = patch.Messages
			}
			if patch.Tools != nil {
				req.Tools = patch.Tools
			}
			if patch.Temperature != nil {
				if req.GenerationParams == nil {
					req.GenerationParams = &GenerationParams{}
				}
				req.GenerationParams.Temperature = patch.Temperature
			}
		})
	}
}

func (p *MiddlewarePipeline) AfterLLMCall(ctx context.Context, run *RunContext, resp *ChatResponse) {
	for _, m := range p.middlewares {
		mm := m
		p.guard(mm.Name(), "afterLLMCall", func() { mm.AfterLLMCall(ctx, run, resp) })
	}
}

// BeforeToolExec returns skip if any middleware asks to skip.
func (p *MiddlewarePipeline) BeforeToolExec(ctx context.Context, run *RunContext, tc ToolCall) ToolDecision {
	decision := ProceedWithTool()
	for _, m := range p.middlewares {
		mm := m
		p.guard(mm.Name(), "beforeToolExec", func() {
			d := mm.BeforeToolExec(ctx, run, tc)
			if d.Kind == ToolSkip {
				decision = d
			}
		})
		if decision.Kind == ToolSkip {
			return decision
		}
	}
	return decision
}

func (p *MiddlewarePipeline) AfterToolExec(ctx context.Context, run *RunContext, tc ToolCall, out ToolOutput) {
	for _, m := range p.middlewares {
		mm := m
		p.guard(mm.Name(), "afterToolExec", func() { mm.AfterToolExec(ctx, run, tc, out) })
	}
}

func (p *MiddlewarePipeline) OnStop(run *RunContext, reason string) {
	for _, m := range p.middlewares {
		mm := m
		p.guard(mm.Name(), "onStop", func() { mm.OnStop(run, reason) })
	}
}

func (p *MiddlewarePipeline) OnComplete(run *RunContext) {
	for _, m := range p.middlewares {
		mm := m
		p.guard(mm.Name(), "onComplete", func() { mm.OnComplete(run) })
	}
}
