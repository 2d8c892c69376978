package core

import (
	"context"
	"log/slog"
)

// --- Observability (priority 5) ---

// ObservabilityMiddleware logs run start and completion via Logger and
// records the name of each file read/write/create tool call in run.meta,
// under namespace "observability". The Tracer field is not used by its hooks.
type ObservabilityMiddleware struct {
	NoopMiddleware
	Tracer Tracer
	Logger *slog.Logger
}

func (ObservabilityMiddleware) Name() string { return "observability" }

func (m *ObservabilityMiddleware) OnStart(run *RunContext) {
	if m.Logger != nil {
		m.Logger.Info("run started", "request_id", run.RequestID, "tier", run.Tier)
	}
}

func (m *ObservabilityMiddleware) AfterToolExec(_ context.Context, run *RunContext, tc ToolCall, out ToolOutput) {
	switch tc.Name {
	case "fs_write", "file_write":
		run.Meta().Append("observability", "files_written", tc.Name)
	case "fs_create", "file_create":
		run.Meta().Append("observability", "files_created", tc.Name)
	case "fs_read", "file_read":
		run.Meta().Append("observability", "files_read", tc.Name)
	}
}

func (m *ObservabilityMiddleware) OnComplete(run *RunContext) {
	if m.Logger != nil {
		m.Logger.Info("run complete", "request_id", run.RequestID, "iterations", run.Iteration())
	}
}

// --- Budget (priority 10) ---

// BudgetMiddleware enforces a token cap with soft/hard thresholds. Past
// the soft ratio it tags run.meta so the system prompt can nudge toward
// wrapping up; past the hard ratio it returns stop (or escalate, if
// ForceSynthesisOnHard prefers handing remaining work to a larger tier).
type BudgetMiddleware struct {
	NoopMiddleware
	Enabled              bool
	MaxTokens            int
	SoftRatio            float64
	HardRatio            float64
	HardStop             bool
	ForceSynthesisOnHard bool

	used Usage
}

func (BudgetMiddleware) Name() string { return "budget" }

func (m *BudgetMiddleware) BeforeIteration(run *RunContext) IterationDecision {
	if !m.Enabled || m.MaxTokens <= 0 {
		return ContinueIteration()
	}
	total := m.used.InputTokens + m.used.OutputTokens
	ratio := float64(total) / float64(m.MaxTokens)
	if ratio >= m.HardRatio {
		run.Meta().Set("budget", "exhausted", true)
		if m.ForceSynthesisOnHard && !m.HardStop {
			return EscalateIteration("token budget exhausted, escalating for synthesis")
		}
		return StopIteration("token budget exhausted")
	}
	if ratio >= m.SoftRatio {
		run.Meta().Set("budget", "soft_threshold_crossed", true)
	}
	return ContinueIteration()
}

func (m *BudgetMiddleware) AfterLLMCall(_ context.Context, _ *RunContext, resp *ChatResponse) {
	m.used = m.used.Add(resp.Usage)
}

// --- ContextFilter middleware (priority 15) ---

// ContextFilterMiddleware wraps the §4.2 ContextFilter around LLM calls:
// it truncates oversized tool-result messages, dedupes tool calls on the
// way out, and applies the pair-aware sliding window before every
// outgoing request.
type ContextFilterMiddleware struct {
	NoopMiddleware
	Filter  *ContextFilter
	history []Message
}

func (ContextFilterMiddleware) Name() string { return "context_filter" }

// Track appends messages to the middleware's view of history; the
// execution loop calls this after every message append (the one mutation
// path messages grow through).
func (m *ContextFilterMiddleware) Track(msgs ...Message) {
	for _, msg := range msgs {
		if msg.Role == "tool" {
			msg = m.Filter.Truncate(msg)
		}
		m.history = append(m.history, msg)
	}
}

func (m *ContextFilterMiddleware) BeforeLLMCall(_ context.Context, run *RunContext, req *ChatRequest) LLMPatch {
	if len(req.Messages) < 2 {
		return LLMPatch{}
	}
	system, task := req.Messages[0], req.Messages[1]
	windowed := m.Filter.BuildDefaultContext(system, task, m.history, nil)
	return LLMPatch{Messages: windowed}
}

func (m *ContextFilterMiddleware) AfterLLMCall(_ context.Context, _ *RunContext, resp *ChatResponse) {
	resp.ToolCalls = DedupToolCalls(resp.ToolCalls)
}

// --- FactSheet (priority 20) ---

// FactSheetMiddleware injects the rendered fact sheet into the system
// prompt (appended as a trailing patch message) and drives the
// SmartSummarizer on each iteration boundary.
type FactSheetMiddleware struct {
	NoopMiddleware
	Sheet      *FactSheet
	Summarizer *SmartSummarizer
	history    []Message
}

func (FactSheetMiddleware) Name() string { return "fact_sheet" }

func (m *FactSheetMiddleware) BeforeIteration(run *RunContext) IterationDecision {
	if m.Summarizer != nil {
		m.Summarizer.MaybeTrigger(context.Background(), run.Iteration(), m.history)
	}
	return ContinueIteration()
}

func (m *FactSheetMiddleware) BeforeLLMCall(_ context.Context, _ *RunContext, req *ChatRequest) LLMPatch {
	rendered := m.Sheet.Render()
	if rendered == "" {
		return LLMPatch{}
	}
	patched := append([]Message{}, req.Messages...)
	patched = append(patched, SystemMessage(rendered, 0))
	return LLMPatch{Messages: patched}
}

// --- Progress (priority 50) ---

// ProgressMiddleware tracks the last N tool calls and their output sizes
// to detect stuck/looping behavior: the same tool called repeatedly with
// near-identical input and shrinking evidence of new information.
type ProgressMiddleware struct {
	NoopMiddleware
	WindowSize int // default 6

	recent []progressEntry
}

type progressEntry struct {
	toolName   string
	inputKey   string
	outputSize int
}

func (ProgressMiddleware) Name() string { return "progress" }

func (m *ProgressMiddleware) AfterToolExec(_ context.Context, _ *RunContext, tc ToolCall, out ToolOutput) {
	window := m.WindowSize
	if window <= 0 {
		window = 6
	}
	m.recent = append(m.recent, progressEntry{toolName: tc.Name, inputKey: string(tc.Input), outputSize: len(out.Content)})
	if len(m.recent) > window {
		m.recent = m.recent[len(m.recent)-window:]
	}
}

// Stuck reports whether the recent window looks like a repeating,
// non-productive loop: every entry calls the same tool with the same
// input and output size hasn't grown.
func (m *ProgressMiddleware) Stuck() bool {
	window := m.WindowSize
	if window <= 0 {
		window = 6
	}
	if len(m.recent) < window {
		return false
	}
	first := m.recent[0]
	for i, e := range m.recent[1:] {
		if e.toolName != first.toolName || e.inputKey != first.inputKey {
			return false
		}
		if e.outputSize > m.recent[i].outputSize {
			return false
		}
	}
	return true
}

func (m *ProgressMiddleware) BeforeIteration(run *RunContext) IterationDecision {
	if m.Stuck() {
		return StopIteration("no progress: repeated identical tool call with no new evidence")
	}
	return ContinueIteration()
}
