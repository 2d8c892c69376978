package core

import "fmt"

// PlanStep is one unit of an ExecutionPlan. Dependencies must be strictly
// earlier step numbers — forward and circular dependencies are rejected at
// validation time, never at execution time.
type PlanStep struct {
	Number          int
	Description     string
	Actions         []string
	SuccessCriteria []string
	Dependencies    []int
	EstimatedTime   string
}

// ExecutionPlan is an ordered, linear-dependency plan produced by Planner.
// Deliberately not a general DAG: every dependency points strictly
// backward, so a plan always reduces to a straight-line schedule.
type ExecutionPlan struct {
	TaskID string
	Steps  []PlanStep
}

const (
	minPlanSteps = 3
	maxPlanSteps = 7
)

// Validate enforces the plan shape spec'd for the task-runner variant:
// sequential step numbers starting at 1, 3-7 steps, and every dependency
// strictly less than its own step number.
func (p ExecutionPlan) Validate() error {
	n := len(p.Steps)
	if n < minPlanSteps || n > maxPlanSteps {
		return fmt.Errorf("plan %q: %d steps, want %d-%d", p.TaskID, n, minPlanSteps, maxPlanSteps)
	}
	for i, s := range p.Steps {
		if s.Number != i+1 {
			return fmt.Errorf("plan %q: step %d out of sequence (got number %d)", p.TaskID, i+1, s.Number)
		}
		for _, d := range s.Dependencies {
			if d >= s.Number {
				return fmt.Errorf("plan %q: step %d depends on %d (forward or circular dependency)", p.TaskID, s.Number, d)
			}
		}
	}
	return nil
}

// StepStatus is the tagged outcome of running one PlanStep.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusPartial StepStatus = "partial"
	StepStatusFailed  StepStatus = "failed"
)

// StepResult is what Executor produces for one PlanStep.
type StepResult struct {
	StepNumber int
	Status     StepStatus
	Summary    string
	Output     string
	Usage      Usage
	Errors     []string
}

// VerificationVerdict is the tagged decision Verifier hands back.
type VerificationVerdict string

const (
	VerdictProceed  VerificationVerdict = "proceed"
	VerdictRetry    VerificationVerdict = "retry"
	VerdictEscalate VerificationVerdict = "escalate"
	VerdictAbort    VerificationVerdict = "abort"
)

// PlanAdjustment describes a Verifier-requested mutation to the remaining
// plan: skip a step, modify its description/actions, or insert a new one
// after a given step number.
type PlanAdjustment struct {
	SkipStep   int
	ModifyStep int
	NewDesc    string
	NewActions []string
	InsertAfter int
	InsertStep *PlanStep
}

// VerificationDecision is Verifier's tagged output for one StepResult.
type VerificationDecision struct {
	Verdict       VerificationVerdict
	Confidence    float64
	Reasoning     string
	RetryStrategy string
	Adjustments   []PlanAdjustment
}

// TaskCheckpoint is CheckpointManager's persisted unit: enough to resume a
// task-runner run from its last completed step boundary.
type TaskCheckpoint struct {
	TaskID      string
	Timestamp   int64
	Plan        ExecutionPlan
	Completed   []StepResult
	CurrentStep *int
	Elapsed     float64 // seconds
	CostUSD     float64
	Resumable   bool
}
