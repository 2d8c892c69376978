package core

import (
	"context"
	"strings"
)

// StepExecutor runs one PlanStep at a time through a medium-tier agent
// attempt, deriving a StepResult's status from whether the step's success
// criteria keywords appear in the agent's final summary. Distinct from
// ToolExecutor, which dispatches a single tool call rather than a whole
// plan step.
type StepExecutor struct {
	Runner        *Runner
	NewLoopCtx    func(run *RunContext, step PlanStep) *LoopContext
	MaxIterations int
}

const stepExecutorTemperature = 0.1

// Run executes step against a fresh medium-tier RunContext derived from
// parent (same session id, fresh request id) and classifies the outcome.
func (e *StepExecutor) Run(ctx context.Context, parent *RunContext, step PlanStep) StepResult {
	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = 15
	}
	run := NewRunContext(stepTaskText(step), TierMedium, maxIter, NewID(), parent.SessionID)

	result, err := e.Runner.Run(ctx, run)
	if err != nil {
		return StepResult{StepNumber: step.Number, Status: StepStatusFailed, Errors: []string{err.Error()}}
	}

	status := classifyStep(step, result)
	var errs []string
	if status == StepStatusFailed {
		errs = append(errs, "success criteria not met in agent summary")
	}
	return StepResult{
		StepNumber: step.Number,
		Status:     status,
		Summary:    result.Output,
		Output:     result.Output,
		Usage:      result.Usage,
		Errors:     errs,
	}
}

func stepTaskText(step PlanStep) string {
	var b strings.Builder
	b.WriteString(step.Description)
	for _, a := range step.Actions {
		b.WriteString("\n- ")
		b.WriteString(a)
	}
	return b.String()
}

// classifyStep determines a StepResult's status from whether the step's
// success-criterion keywords appear in the agent's summary: all present is
// success, some present is partial, none present (or the loop never
// reached a success termination) is failed.
func classifyStep(step PlanStep, result LoopResult) StepStatus {
	if result.Reason == TerminationAborted || result.Reason == TerminationOutOfIters {
		return StepStatusFailed
	}
	if len(step.SuccessCriteria) == 0 {
		return StepStatusSuccess
	}
	summary := strings.ToLower(result.Output)
	matched := 0
	for _, kw := range step.SuccessCriteria {
		if strings.Contains(summary, strings.ToLower(kw)) {
			matched++
		}
	}
	switch {
	case matched == len(step.SuccessCriteria):
		return StepStatusSuccess
	case matched > 0:
		return StepStatusPartial
	default:
		return StepStatusFailed
	}
}
