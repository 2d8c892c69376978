package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrLLM reports a failure from the underlying language model transport
// (malformed response, provider-side rejection, unsupported request shape).
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string { return fmt.Sprintf("%s: %s", e.Provider, e.Message) }

// ErrHTTP reports a transport-level HTTP failure from a Provider. RetryAfter
// is populated from the response's Retry-After header when present, and is
// honored by WithRetry as a floor on the backoff delay.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string { return fmt.Sprintf("http %d: %s", e.Status, e.Body) }

// ErrHalt carries a response for a middleware-initiated stop. The execution
// loop does not look for this error: middleware stop a run with
// RunContext.Halt, which the loop reports as a LoopResult with reason
// TerminationHalted and the recorded response as Output.
type ErrHalt struct {
	Response string
}

func (e *ErrHalt) Error() string { return "halted: " + e.Response }

// ErrMaxDepth is returned by the ParallelExecutor for every request when the
// requested spawn depth exceeds the configured maximum.
type ErrMaxDepth struct {
	Depth, MaxDepth int
}

func (e *ErrMaxDepth) Error() string {
	return fmt.Sprintf("max depth exceeded: %d > %d", e.Depth, e.MaxDepth)
}

// GuardRejection reports a ToolGuard verdict of "reject" on a tool's input
// or output, tagged with the guard that rejected it. It is never returned
// as a Go error to the loop — it is rendered into a ToolOutput.
type GuardRejection struct {
	Guard  string
	Reason string
}

func (e *GuardRejection) Error() string {
	return fmt.Sprintf("rejected by guard %q: %s", e.Guard, e.Reason)
}

// AbortResult is returned by the Planner/Executor/Verifier task runner when
// validation fails in a way that cannot be repaired by retry or escalation.
type AbortResult struct {
	Reason string
}

func (e *AbortResult) Error() string { return "aborted: " + e.Reason }

// toolOutputError renders any error as a failed ToolOutput rather than
// letting it propagate — per the error-handling design, tool and guard
// failures are always in-band.
func toolOutputError(callID string, err error) ToolOutput {
	return ToolOutput{ToolCallID: callID, Success: false, Error: err.Error()}
}

// marshalMetadata is a small helper shared by guard/processor implementations
// that want to attach structured metadata to a ToolOutput without repeating
// the ignore-marshal-error boilerplate at every call site.
func marshalMetadata(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
