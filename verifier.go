package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const verifierPrompt = `You are a verification assistant reviewing one completed step of a multi-step plan.

Given the step result and the remaining plan, decide:
- verdict: "proceed" (step is good, continue), "retry" (redo this step), "escalate" (hand off to a larger model
  or a human), or "abort" (stop the task entirely).
- confidence in [0,1]. If you are not confident, prefer "escalate" over a low-confidence "proceed".
- reasoning: one or two sentences.
- optional retryStrategy if verdict is "retry".
- optional adjustments to the remaining plan: skip a step, modify a step's description/actions, or insert a
  new step after a given step number.

Return ONLY a JSON object:
{"verdict":"proceed","confidence":0.9,"reasoning":"...","retryStrategy":"","adjustments":[]}`

// Verifier reviews one StepResult against the remaining plan at the large
// tier and returns a VerificationDecision. Per the task-runner's
// when-in-doubt rule, a parse failure or a provider error is treated as an
// "escalate" rather than silently proceeding.
type Verifier struct {
	Provider Provider
}

func (v *Verifier) Verify(ctx context.Context, result StepResult, remaining []PlanStep) VerificationDecision {
	resp, err := v.Provider.Complete(ctx, ChatRequest{Messages: []Message{
		SystemMessage(verifierPrompt, 0),
		UserMessage(verifierUserContent(result, remaining), 0),
	}})
	if err != nil {
		return VerificationDecision{Verdict: VerdictEscalate, Confidence: 0, Reasoning: "verifier call failed: " + err.Error()}
	}
	decision, err := parseVerificationDecision(resp.Content)
	if err != nil {
		return VerificationDecision{Verdict: VerdictEscalate, Confidence: 0, Reasoning: "could not parse verifier output: " + err.Error()}
	}
	return decision
}

func verifierUserContent(result StepResult, remaining []PlanStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d result: status=%s\nSummary: %s\n", result.StepNumber, result.Status, result.Summary)
	if len(result.Errors) > 0 {
		b.WriteString("Errors: " + strings.Join(result.Errors, "; ") + "\n")
	}
	b.WriteString("Remaining steps:\n")
	for _, s := range remaining {
		fmt.Fprintf(&b, "%d. %s\n", s.Number, s.Description)
	}
	return b.String()
}

func parseVerificationDecision(response string) (VerificationDecision, error) {
	var parsed struct {
		Verdict       string  `json:"verdict"`
		Confidence    float64 `json:"confidence"`
		Reasoning     string  `json:"reasoning"`
		RetryStrategy string  `json:"retryStrategy"`
		Adjustments   []struct {
			SkipStep    int      `json:"skipStep"`
			ModifyStep  int      `json:"modifyStep"`
			NewDesc     string   `json:"newDesc"`
			NewActions  []string `json:"newActions"`
			InsertAfter int      `json:"insertAfter"`
		} `json:"adjustments"`
	}

	content := strings.TrimSpace(response)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return VerificationDecision{}, fmt.Errorf("no JSON object found (len=%s)", strconv.Itoa(len(content)))
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
			return VerificationDecision{}, err
		}
	}

	verdict := VerificationVerdict(parsed.Verdict)
	switch verdict {
	case VerdictProceed, VerdictRetry, VerdictEscalate, VerdictAbort:
	default:
		return VerificationDecision{}, fmt.Errorf("unknown verdict %q", parsed.Verdict)
	}

	adjustments := make([]PlanAdjustment, 0, len(parsed.Adjustments))
	for _, a := range parsed.Adjustments {
		adjustments = append(adjustments, PlanAdjustment{
			SkipStep:    a.SkipStep,
			ModifyStep:  a.ModifyStep,
			NewDesc:     a.NewDesc,
			NewActions:  a.NewActions,
			InsertAfter: a.InsertAfter,
		})
	}

	return VerificationDecision{
		Verdict:       verdict,
		Confidence:    parsed.Confidence,
		Reasoning:     parsed.Reasoning,
		RetryStrategy: parsed.RetryStrategy,
		Adjustments:   adjustments,
	}, nil
}
