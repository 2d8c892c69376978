package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const plannerPrompt = `You are a planning assistant. Break the task into 3-7 sequential steps.

Rules:
- Step numbers start at 1 and increase sequentially with no gaps.
- A step may only depend on strictly earlier step numbers (no forward or circular dependencies).
- Each step needs a short description, the concrete actions it will take, and success criteria
  (keywords expected to appear in the executing agent's summary when the step succeeds).

Return ONLY a JSON object:
{"steps":[{"number":1,"description":"...","actions":["..."],"successCriteria":["..."],"dependencies":[],"estimatedTime":"5m"}]}`

// Planner produces an ExecutionPlan by prompting the large tier with the
// task and any prior context (fact sheet render, archive summary). Plans
// that fail ExecutionPlan.Validate are retried once with the validation
// error fed back to the model before giving up.
type Planner struct {
	Provider Provider
}

// Plan asks the large-tier provider for a plan for taskID/task, optionally
// seeded with contextText (e.g. a rendered FactSheet). Retries once on a
// validation failure, feeding the error back into the prompt.
func (p *Planner) Plan(ctx context.Context, taskID, task, contextText string) (ExecutionPlan, error) {
	var lastErr error
	prompt := task
	if contextText != "" {
		prompt = task + "\n\nKnown context:\n" + contextText
	}

	for attempt := 0; attempt < 2; attempt++ {
		userContent := prompt
		if lastErr != nil {
			userContent = fmt.Sprintf("%s\n\nThe previous plan was rejected: %s. Produce a corrected plan.", prompt, lastErr)
		}
		resp, err := p.Provider.Complete(ctx, ChatRequest{Messages: []Message{
			SystemMessage(plannerPrompt, 0),
			UserMessage(userContent, 0),
		}})
		if err != nil {
			return ExecutionPlan{}, &ErrLLM{Provider: p.Provider.Name(), Message: err.Error()}
		}

		plan, parseErr := parsePlanResponse(taskID, resp.Content)
		if parseErr != nil {
			lastErr = parseErr
			continue
		}
		if err := plan.Validate(); err != nil {
			lastErr = err
			continue
		}
		return plan, nil
	}
	return ExecutionPlan{}, fmt.Errorf("planner: no valid plan after retry: %w", lastErr)
}

func parsePlanResponse(taskID, response string) (ExecutionPlan, error) {
	var parsed struct {
		Steps []struct {
			Number          int      `json:"number"`
			Description     string   `json:"description"`
			Actions         []string `json:"actions"`
			SuccessCriteria []string `json:"successCriteria"`
			Dependencies    []int    `json:"dependencies"`
			EstimatedTime   string   `json:"estimatedTime"`
		} `json:"steps"`
	}

	content := strings.TrimSpace(response)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return ExecutionPlan{}, fmt.Errorf("planner: could not parse plan JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
			return ExecutionPlan{}, fmt.Errorf("planner: could not parse plan JSON: %w", err)
		}
	}

	steps := make([]PlanStep, 0, len(parsed.Steps))
	for _, s := range parsed.Steps {
		steps = append(steps, PlanStep{
			Number:          s.Number,
			Description:     s.Description,
			Actions:         s.Actions,
			SuccessCriteria: s.SuccessCriteria,
			Dependencies:    s.Dependencies,
			EstimatedTime:   s.EstimatedTime,
		})
	}
	return ExecutionPlan{TaskID: taskID, Steps: steps}, nil
}
