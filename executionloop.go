package core

import (
	"context"
)

// LoopContext bundles everything a single ExecutionLoop run needs: the
// RunContext it drives, the message log it appends to (the one mutation
// path messages grow through), and the collaborators an iteration calls
// into.
type LoopContext struct {
	Run             *RunContext
	Provider        Provider
	Middleware      *MiddlewarePipeline
	Executor        *ToolExecutor
	ContextFilter   *ContextFilterMiddleware
	SystemMessage   Message
	TaskMessage     Message
	FinishingTools  map[string]bool // e.g. "report", "submit_result"

	messages []Message
}

// Append is the one mutation path LoopContext.messages grows through.
// Messages grow monotonically: no caller rewrites or removes an entry.
func (l *LoopContext) Append(msgs ...Message) {
	l.messages = append(l.messages, msgs...)
	if l.ContextFilter != nil {
		l.ContextFilter.Track(msgs...)
	}
}

// Messages returns the live message log (read-only by convention; callers
// must go through Append to extend it).
func (l *LoopContext) Messages() []Message {
	return l.messages
}

// TerminationReason is the tagged-variant outcome of ExecutionLoop.Run.
type TerminationReason string

const (
	TerminationSuccess       TerminationReason = "success"
	TerminationEscalate      TerminationReason = "escalated"
	TerminationHandoff       TerminationReason = "handoff"
	TerminationOutOfIters    TerminationReason = "out_of_iterations"
	TerminationAborted       TerminationReason = "aborted"
	TerminationHalted        TerminationReason = "halted"
)

// LoopResult is what one ExecutionLoop.Run attempt produces.
type LoopResult struct {
	Reason    TerminationReason
	Output    string
	Usage     Usage
	HandoffTo string
}

// ExecutionLoop drives a single agent attempt through the
// START -> PREPARE -> LLM CALL -> TOOL CALLS -> CHECK TERMINATION state
// machine, generalizing the teacher's runLoop into the middleware- and
// ToolExecutor-backed pipeline spec'd for the run.
type ExecutionLoop struct{}

// Run executes lc's attempt to completion (or termination) in-process.
func (ExecutionLoop) Run(ctx context.Context, lc *LoopContext) (LoopResult, error) {
	// START
	lc.Append(lc.SystemMessage, lc.TaskMessage)
	lc.Middleware.OnStart(lc.Run)

	var totalUsage Usage

	for {
		// PREPARE
		if err := lc.Run.validate(); err != nil {
			lc.Middleware.OnStop(lc.Run, "max_depth_exceeded")
			return LoopResult{Reason: TerminationOutOfIters, Usage: totalUsage}, err
		}
		decision := lc.Middleware.BeforeIteration(lc.Run)
		switch decision.Kind {
		case IterationStop:
			lc.Middleware.OnStop(lc.Run, decision.Reason)
			return LoopResult{Reason: TerminationSuccess, Output: lastAssistantContent(lc.messages), Usage: totalUsage}, nil
		case IterationEscalate:
			lc.Middleware.OnStop(lc.Run, decision.Reason)
			return LoopResult{Reason: TerminationEscalate, Usage: totalUsage}, nil
		case IterationHandoff:
			lc.Middleware.OnStop(lc.Run, decision.Reason)
			return LoopResult{Reason: TerminationHandoff, HandoffTo: decision.HandoffTo, Usage: totalUsage}, nil
		}

		if result, halted := abortResult(lc.Run, totalUsage); halted {
			lc.Middleware.OnStop(lc.Run, string(result.Reason))
			return result, nil
		}

		// LLM CALL
		req := ChatRequest{Messages: lc.messages}
		lc.Middleware.BeforeLLMCall(ctx, lc.Run, &req)

		if result, halted := abortResult(lc.Run, totalUsage); halted {
			lc.Middleware.OnStop(lc.Run, string(result.Reason))
			return result, nil
		}

		resp, err := lc.Provider.ChatWithTools(ctx, req, lc.Run.Tools)
		if err != nil {
			return LoopResult{Reason: TerminationAborted, Usage: totalUsage}, err
		}
		totalUsage = totalUsage.Add(resp.Usage)
		lc.Middleware.AfterLLMCall(ctx, lc.Run, &resp)

		iteration := lc.Run.Iteration()
		lc.Append(AssistantMessage(resp.Content, resp.ToolCalls, iteration))

		// CHECK TERMINATION (no tool call / finishing tool)
		if len(resp.ToolCalls) == 0 || finishingCallPresent(resp.ToolCalls, lc.FinishingTools) {
			lc.Middleware.OnStop(lc.Run, "complete")
			lc.Middleware.OnComplete(lc.Run)
			return LoopResult{Reason: TerminationSuccess, Output: resp.Content, Usage: totalUsage}, nil
		}

		// TOOL CALLS
		pending := make([]ToolCall, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			decision := lc.Middleware.BeforeToolExec(ctx, lc.Run, tc)
			if decision.Kind == ToolSkip {
				lc.Append(ToolMessage(tc.ID, "skipped: "+decision.Reason, iteration))
				continue
			}
			pending = append(pending, tc)
		}
		if len(pending) > 0 {
			outputs := lc.Executor.ExecuteAll(ctx, lc.Run, pending)
			for i, out := range outputs {
				lc.Middleware.AfterToolExec(ctx, lc.Run, pending[i], out)
				text := out.Content
				if !out.Success {
					text = out.Error
				}
				lc.Append(ToolMessage(out.ToolCallID, text, iteration))
			}
		}

		// CHECK TERMINATION (iteration / abort)
		newIter := lc.Run.AdvanceIteration()
		if lc.Run.MaxIterations > 0 && newIter >= lc.Run.MaxIterations {
			lc.Middleware.OnStop(lc.Run, "out_of_iterations")
			return LoopResult{Reason: TerminationOutOfIters, Usage: totalUsage}, nil
		}
		if result, halted := abortResult(lc.Run, totalUsage); halted {
			lc.Middleware.OnStop(lc.Run, string(result.Reason))
			return result, nil
		}
	}
}

// abortResult checks run for a mid-loop stop requested outside the normal
// BeforeIteration decision path: either a guard-triggered Halt (carries a
// response to surface, e.g. InjectionGuard/ContentGuard) or a plain Abort
// (carries none, e.g. an external cancellation via RunManager.RequestStop).
// Reports ok=false when the run is neither halted nor aborted.
func abortResult(run *RunContext, usage Usage) (result LoopResult, ok bool) {
	if response, halted := run.HaltResponse(); halted {
		return LoopResult{Reason: TerminationHalted, Output: response, Usage: usage}, true
	}
	if run.Aborted() {
		return LoopResult{Reason: TerminationAborted, Usage: usage}, true
	}
	return LoopResult{}, false
}

func finishingCallPresent(calls []ToolCall, finishing map[string]bool) bool {
	if len(finishing) == 0 {
		return false
	}
	for _, tc := range calls {
		if finishing[tc.Name] {
			return true
		}
	}
	return false
}

func lastAssistantContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			return messages[i].Content
		}
	}
	return ""
}
