package core

import (
	"context"
	"time"
)

// TaskRunnerResult is the tagged outcome of one TaskRunner.Run call.
type TaskRunnerResult struct {
	TaskID    string
	Completed []StepResult
	Escalated bool
	Reason    string
	Aborted   bool
}

// TaskRunner is the plan/execute/verify/checkpoint variant of the
// execution loop, for longer multi-step work that benefits from an
// explicit plan and a verification gate between steps rather than a
// single long-running iteration loop.
type TaskRunner struct {
	Planner    *Planner
	Executor   *StepExecutor
	Verifier   *Verifier
	Escalation *EscalationManager
	Checkpoint *CheckpointManager

	CostPerStepUSD float64 // flat per-step cost estimate fed to EscalationManager
}

// NewTaskRunner wires the default EscalationManager and an in-memory
// CheckpointManager; callers override either field after construction if
// they need different thresholds or a persistent checkpoint store.
func NewTaskRunner(planner *Planner, executor *StepExecutor, verifier *Verifier) *TaskRunner {
	return &TaskRunner{
		Planner:    planner,
		Executor:   executor,
		Verifier:   verifier,
		Escalation: NewEscalationManager(),
		Checkpoint: NewCheckpointManager(nil),
	}
}

// Run plans the task, then executes it step by step, verifying after each
// step and checkpointing at every step boundary and plan adjustment. It
// never runs a step whose dependencies have not completed, and it stops
// at the first escalate/abort verdict.
func (t *TaskRunner) Run(ctx context.Context, parent *RunContext, taskID, task, contextText string) TaskRunnerResult {
	plan, err := t.Planner.Plan(ctx, taskID, task, contextText)
	if err != nil {
		return TaskRunnerResult{TaskID: taskID, Aborted: true, Reason: "planning failed: " + err.Error()}
	}

	start := nowOrZero()
	var completed []StepResult
	retryCounts := make(map[int]int)
	var costSoFar float64

	steps := plan.Steps
	for i := 0; i < len(steps); i++ {
		step := steps[i]
		if parent.Aborted() {
			t.Checkpoint.MarkAborted(taskID, plan, completed, elapsedSeconds(start), costSoFar)
			return TaskRunnerResult{TaskID: taskID, Completed: completed, Aborted: true, Reason: "run aborted"}
		}

		cur := step.Number
		t.Checkpoint.SaveStepBoundary(taskID, plan, completed, &cur, elapsedSeconds(start), costSoFar)

		result := t.Executor.Run(ctx, parent, step)
		costSoFar += t.CostPerStepUSD

		if t.Escalation.PreVerificationCheck(result) {
			completed = append(completed, result)
			t.Checkpoint.MarkAborted(taskID, plan, completed, elapsedSeconds(start), costSoFar)
			return TaskRunnerResult{TaskID: taskID, Completed: completed, Escalated: true, Reason: "fatal error in step result, escalating without verification"}
		}

		decision := t.Verifier.Verify(ctx, result, steps[i+1:])
		completed = append(completed, result)

		elapsed := time.Duration(elapsedSeconds(start)) * time.Second
		if escalate, reason := t.Escalation.ShouldEscalate(decision, retryCounts[step.Number], costSoFar, elapsed, planText(plan)); escalate {
			t.Checkpoint.MarkAborted(taskID, plan, completed, elapsedSeconds(start), costSoFar)
			return TaskRunnerResult{TaskID: taskID, Completed: completed, Escalated: true, Reason: reason}
		}

		switch decision.Verdict {
		case VerdictAbort:
			t.Checkpoint.MarkAborted(taskID, plan, completed, elapsedSeconds(start), costSoFar)
			return TaskRunnerResult{TaskID: taskID, Completed: completed, Aborted: true, Reason: decision.Reasoning}
		case VerdictRetry:
			retryCounts[step.Number]++
			completed = completed[:len(completed)-1]
			i--
			continue
		}

		if len(decision.Adjustments) > 0 {
			steps = applyAdjustments(steps, i, decision.Adjustments)
			plan.Steps = steps
			t.Checkpoint.SaveStepBoundary(taskID, plan, completed, nil, elapsedSeconds(start), costSoFar)
		}
	}

	t.Checkpoint.MarkCompleted(taskID, plan, completed, elapsedSeconds(start), costSoFar)
	return TaskRunnerResult{TaskID: taskID, Completed: completed}
}

// applyAdjustments mutates the remaining (unexecuted) portion of steps per
// the verifier's requested skip/modify/insert operations. i is the index
// of the just-completed step; only steps after it are ever touched.
func applyAdjustments(steps []PlanStep, i int, adjustments []PlanAdjustment) []PlanStep {
	remaining := append([]PlanStep{}, steps[i+1:]...)
	for _, adj := range adjustments {
		switch {
		case adj.SkipStep != 0:
			filtered := remaining[:0]
			for _, s := range remaining {
				if s.Number != adj.SkipStep {
					filtered = append(filtered, s)
				}
			}
			remaining = filtered
		case adj.ModifyStep != 0:
			for idx := range remaining {
				if remaining[idx].Number == adj.ModifyStep {
					if adj.NewDesc != "" {
						remaining[idx].Description = adj.NewDesc
					}
					if len(adj.NewActions) > 0 {
						remaining[idx].Actions = adj.NewActions
					}
				}
			}
		case adj.InsertStep != nil:
			inserted := false
			out := make([]PlanStep, 0, len(remaining)+1)
			for _, s := range remaining {
				out = append(out, s)
				if s.Number == adj.InsertAfter {
					out = append(out, *adj.InsertStep)
					inserted = true
				}
			}
			if !inserted {
				out = append(out, *adj.InsertStep)
			}
			remaining = out
		}
	}
	return append(append([]PlanStep{}, steps[:i+1]...), remaining...)
}

func planText(plan ExecutionPlan) string {
	var out string
	for _, s := range plan.Steps {
		out += s.Description + " "
		for _, a := range s.Actions {
			out += a + " "
		}
	}
	return out
}

func nowOrZero() int64   { return NowUnix() }
func elapsedSeconds(start int64) float64 {
	now := nowOrZero()
	if now <= start {
		return 0
	}
	return float64(now - start)
}
