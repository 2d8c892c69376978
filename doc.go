// Package core implements an adaptive agent execution engine: the
// iteration loop, its middleware pipeline, the tool execution subsystem,
// the context/memory subsystem, a parallel sub-agent executor, tier
// escalation across model sizes, and a Planner/Executor/Verifier
// task-runner for longer multi-step work.
//
// # Core Interfaces
//
// The root package defines the contracts every component implements:
//
//   - [Provider] — LLM backend (complete, chat with tools)
//   - [ToolPack] / [ToolManager] — namespaced, versioned tool catalog
//   - [InputNormalizer] / [ToolGuard] / [OutputProcessor] — the tool call
//     pipeline run by [ToolExecutor]
//   - [Middleware] — the eight-hook pipeline wrapped around each run
//   - [Agent] — a unit of work a [Runner], a [ParallelExecutor], or the
//     task-runner's Executor step can invoke
//
// # Quick Start
//
//	run := core.NewRunContext("find the auth bug", core.TierSmall, 40, "", "")
//	runner := &core.Runner{Providers: providersByTier, NewLoopCtx: newLoopCtx}
//	result, err := runner.Run(ctx, run)
//
// # Out of scope
//
// CLI front-ends, terminal rendering, telemetry dashboards, manifest
// loading, on-disk session persistence, and the LLM provider
// implementations themselves live outside this package. REST/WebSocket
// transport is a caller concern; this package expects to be embedded.
//
// See DESIGN.md for how each module maps to the components above.
package core
