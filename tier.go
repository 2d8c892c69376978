package core

import "context"

// Runner wraps the ExecutionLoop with tier escalation: small -> medium ->
// large. When a loop attempt terminates with "escalated", the Runner moves
// to the next tier, preserving session id and metadata (fact sheet
// included, since it lives in run.meta-adjacent middleware state shared
// across RunContext.WithTier), re-seeds messages with the same system and
// task content, and reruns. At the highest tier it returns the last
// result regardless of outcome.
type Runner struct {
	Providers  map[Tier]Provider // one provider per tier
	NewLoopCtx func(run *RunContext) *LoopContext
}

// Run drives a task through tiers until the loop terminates with anything
// other than "escalated", or the highest tier is exhausted.
func (r *Runner) Run(ctx context.Context, run *RunContext) (LoopResult, error) {
	loop := ExecutionLoop{}

	for {
		lc := r.NewLoopCtx(run)
		lc.Provider = r.Providers[run.Tier]
		if lc.Provider == nil {
			return LoopResult{Reason: TerminationAborted}, &ErrLLM{Provider: string(run.Tier), Message: "no provider configured for tier"}
		}

		result, err := loop.Run(ctx, lc)
		if err != nil || result.Reason != TerminationEscalate {
			return result, err
		}

		next, ok := run.Tier.Next()
		if !ok {
			// Already at the highest tier; return the last result as-is.
			return result, nil
		}
		run = run.WithTier(next)
	}
}
