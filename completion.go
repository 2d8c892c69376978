package core

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// TaskIntent classifies a run's task text, driving the completion
// evaluator's fast path.
type TaskIntent string

const (
	IntentDiscovery TaskIntent = "discovery"
	IntentAnalysis  TaskIntent = "analysis"
	IntentAction    TaskIntent = "action"
)

// RunSummary is the evidence a completed run hands to the evaluator: the
// final response text, a tools-used histogram, file-operation tallies,
// and whether verification commands (tests, linters, builds) ran.
type RunSummary struct {
	Task              string
	Response          string
	Intent            TaskIntent
	ToolsUsed         map[string]int
	FilesRead         int
	FilesChanged      int
	RanVerification   bool
	NormalizedTaskKey string
}

// CompletionResult is the evaluator's tagged verdict.
type CompletionResult struct {
	Success bool
	Summary string
	Source  string // "fast_path", "validator", "heuristic", "historical"
}

const minEvidenceFilesForFastPath = 2

var noResultPhrases = []string{
	"i don't know", "i couldn't find", "no results", "unable to find",
	"not found", "i was unable to", "i could not",
}

const completionValidatorPrompt = `You judge whether an agent run completed its task successfully.

Given the task and the agent's final response, return ONLY a JSON object:
{"success":true,"summary":"one sentence"}`

// CompletionEvaluator decides whether a finished run satisfied its task,
// using a fast path for informational intents with strong evidence, a
// small-tier validator otherwise, a heuristic fallback when the validator
// is unavailable, and historical-artifact reuse for retried tasks that
// made no new changes but previously succeeded.
type CompletionEvaluator struct {
	Validator Provider // small tier; may be nil
	History   HistoricalArtifactStore
}

// HistoricalArtifactStore looks up whether a normalized task previously
// succeeded with verification, for the retry-aware reuse path.
type HistoricalArtifactStore interface {
	PriorSuccess(normalizedTaskKey string) (summary string, ok bool)
}

func (e *CompletionEvaluator) Evaluate(ctx context.Context, summary RunSummary) CompletionResult {
	if fastOK, fastResult := evaluateFastPath(summary); fastOK {
		return fastResult
	}

	if summary.FilesChanged == 0 && summary.RanVerification && e.History != nil {
		if prior, ok := e.History.PriorSuccess(summary.NormalizedTaskKey); ok {
			return CompletionResult{Success: true, Summary: prior, Source: "historical"}
		}
	}

	if e.Validator != nil {
		if result, ok := e.evaluateWithValidator(ctx, summary); ok {
			return result
		}
	}

	return evaluateHeuristic(summary)
}

// evaluateFastPath short-circuits informational tasks (discovery/analysis)
// whose response already carries file/symbol/line evidence and enough
// evidence density to trust without a validator round-trip.
func evaluateFastPath(summary RunSummary) (bool, CompletionResult) {
	if summary.Intent != IntentDiscovery && summary.Intent != IntentAnalysis {
		return false, CompletionResult{}
	}
	if !hasEvidenceMarkers(summary.Response) {
		return false, CompletionResult{}
	}
	if summary.FilesRead < minEvidenceFilesForFastPath && !hasHighEvidenceDensity(summary.Response) {
		return false, CompletionResult{}
	}
	return true, CompletionResult{Success: true, Summary: "informational task with sufficient evidence", Source: "fast_path"}
}

// hasEvidenceMarkers looks for file:line or symbol-like references, e.g.
// "foo.go:42" or "func Bar".
func hasEvidenceMarkers(response string) bool {
	for _, line := range strings.Split(response, "\n") {
		if strings.Contains(line, ".go:") || strings.Contains(line, ".py:") || strings.Contains(line, ".ts:") {
			return true
		}
	}
	return strings.Contains(response, "func ") || strings.Contains(response, "class ") || strings.Contains(response, "`")
}

// hasHighEvidenceDensity counts evidence markers per line as a crude
// density proxy when FilesRead is under the threshold.
func hasHighEvidenceDensity(response string) bool {
	lines := strings.Split(response, "\n")
	if len(lines) == 0 {
		return false
	}
	hits := 0
	for _, l := range lines {
		if strings.Contains(l, ":") && (strings.Contains(l, ".go") || strings.Contains(l, "`")) {
			hits++
		}
	}
	return hits*2 >= len(lines)
}

func (e *CompletionEvaluator) evaluateWithValidator(ctx context.Context, summary RunSummary) (CompletionResult, bool) {
	prompt := "Task: " + summary.Task + "\nResponse: " + summary.Response +
		"\nFiles read: " + strconv.Itoa(summary.FilesRead) + ", files changed: " + strconv.Itoa(summary.FilesChanged)
	resp, err := e.Validator.Complete(ctx, ChatRequest{Messages: []Message{
		SystemMessage(completionValidatorPrompt, 0),
		UserMessage(prompt, 0),
	}})
	if err != nil {
		return CompletionResult{}, false
	}
	var parsed struct {
		Success bool   `json:"success"`
		Summary string `json:"summary"`
	}
	content := extractJSONObject(resp.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return CompletionResult{}, false
	}
	return CompletionResult{Success: parsed.Success, Summary: parsed.Summary, Source: "validator"}, true
}

// evaluateHeuristic combines file changes, evidence markers, and no-result
// phrases when the validator path is unavailable or failed to parse.
func evaluateHeuristic(summary RunSummary) CompletionResult {
	lower := strings.ToLower(summary.Response)
	for _, phrase := range noResultPhrases {
		if strings.Contains(lower, phrase) {
			return CompletionResult{Success: false, Summary: "response indicates no result found", Source: "heuristic"}
		}
	}
	if summary.FilesChanged > 0 || hasEvidenceMarkers(summary.Response) {
		return CompletionResult{Success: true, Summary: "heuristic: evidence of file changes or concrete evidence", Source: "heuristic"}
	}
	return CompletionResult{Success: false, Summary: "heuristic: no file changes and no evidence markers", Source: "heuristic"}
}

func extractJSONObject(response string) string {
	content := strings.TrimSpace(response)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
