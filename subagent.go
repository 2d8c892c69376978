package core

import (
	"context"
	"encoding/json"
)

// SpawnAgentRunner builds the Runner used to actually execute a spawned
// sub-agent's task, given its parent RunContext. Supplied by whatever
// wires the tool pack together (the cmd/REST layer owns tier/provider
// selection for spawned children).
type SpawnAgentRunner func(parent *RunContext) *Runner

// NewSpawnAgentPack builds a ToolPack exposing spawn_agent, backed by a
// ParallelExecutor. Each spawn_agent call runs as its own single-request
// ExecuteAll, so concurrent spawns share only the executor's dedup; the
// concurrency cap and backpressure queue apply within one call, and no
// token budget is passed. depth is the current RunContext's nesting depth
// (0 for a top-level run); every call increments it for the child.
func NewSpawnAgentPack(parent *RunContext, depth int, newRunner SpawnAgentRunner, executor *ParallelExecutor) *ToolPack {
	executor.Runner = func(ctx context.Context, req SubAgentRequest, tokenBudget int) SubAgentResult {
		childID := NewID()
		child := NewRunContext(req.Task, parent.Tier, parent.MaxIterations, childID, parent.SessionID)
		if parent.Aborted() {
			return SubAgentResult{Aborted: true}
		}
		runner := newRunner(parent)
		result, err := runner.Run(ctx, child)
		return SubAgentResult{Output: result.Output, Usage: result.Usage, Err: err, Aborted: result.Reason == TerminationAborted}
	}

	invoke := func(ctx context.Context, input json.RawMessage) (ToolOutput, error) {
		var params struct {
			Task      string  `json:"task"`
			Weight    float64 `json:"weight"`
			DedupeKey string  `json:"dedupeKey"`
		}
		if err := json.Unmarshal(input, &params); err != nil {
			return ToolOutput{Success: false, Error: "invalid input: " + err.Error()}, nil
		}
		req := SubAgentRequest{Task: params.Task, Weight: params.Weight, DedupeKey: params.DedupeKey}
		results := executor.ExecuteAll(ctx, []SubAgentRequest{req}, depth+1, parent.Aborted(), 0)
		r := results[0]
		switch {
		case r.QueueFull:
			return ToolOutput{Success: false, Error: "spawn_agent: queue full"}, nil
		case r.TimedOut:
			return ToolOutput{Success: false, Error: "spawn_agent: join timed out"}, nil
		case r.Aborted:
			return ToolOutput{Success: false, Error: "spawn_agent: aborted"}, nil
		case r.Err != nil:
			return ToolOutput{Success: false, Error: r.Err.Error()}, nil
		}
		meta, _ := json.Marshal(map[string]any{"deduped": r.Deduped, "usage": r.Usage})
		return ToolOutput{Content: r.Output, Success: true, Metadata: meta}, nil
	}

	return &ToolPack{
		ID:             "core.subagent",
		Namespace:      "core",
		Version:        "1.0.0",
		Priority:       100,
		ConflictPolicy: ConflictReject,
		Capabilities:   PackCapabilities{NetworkAccess: false, Audit: true},
		Tools: []PackedTool{{
			Definition: ToolDefinition{
				Name:        "spawn_agent",
				Description: "Spawn a child agent to work on a sub-task; identical concurrent tasks with the same dedupeKey share one run.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"task":{"type":"string"},"weight":{"type":"number"},"dedupeKey":{"type":"string"}},"required":["task"]}`),
			},
			Invoke: invoke,
		}},
	}
}
