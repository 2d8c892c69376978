package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// defaultMaxOutputLength is the character cap truncate() applies to a
// tool-role message's content before it reaches the LLM.
const defaultMaxOutputLength = 8000

// defaultWindowSize is the number of distinct iteration indices
// buildDefaultContext keeps in the sliding window.
const defaultWindowSize = 10

// ContextFilter is a read transform over a run's message history: it never
// mutates the messages owned by RunContext, only the view handed to the
// next LLM call. Generalizes the teacher's compressMessages sliding-window
// logic into an explicit, pair-aware window plus truncation and tool-call
// dedup.
type ContextFilter struct {
	MaxOutputLength int
	WindowSize      int
}

// NewContextFilter returns a ContextFilter with spec defaults.
func NewContextFilter() *ContextFilter {
	return &ContextFilter{MaxOutputLength: defaultMaxOutputLength, WindowSize: defaultWindowSize}
}

// Truncate rewrites a tool-role message whose content exceeds
// MaxOutputLength: the content is cut to that length and annotated with
// the discarded character count, and the returned message is marked
// retrievable (the full text is expected to already live in the
// ArchiveMemory under the same tool call).
func (f *ContextFilter) Truncate(m Message) Message {
	limit := f.MaxOutputLength
	if limit <= 0 {
		limit = defaultMaxOutputLength
	}
	if len(m.Content) <= limit {
		return m
	}
	discarded := len(m.Content) - limit
	m.Content = m.Content[:limit] + fmt.Sprintf("\n\n[truncated, %d characters discarded — retrievable via archive_recall]", discarded)
	return m
}

// BuildDefaultContext assembles the message list handed to the LLM for one
// iteration: the system and task messages, one synthetic system message
// per supplied summary, then a pair-aware sliding window over the most
// recent WindowSize distinct iterations of history. If the window's cutoff
// falls inside a tool-result block, the walk-back extends to include the
// preceding assistant message carrying the matching tool calls, so no tool
// reply is ever orphaned from its assistant turn.
func (f *ContextFilter) BuildDefaultContext(systemMessage, taskMessage Message, history []Message, summaries []string) []Message {
	windowSize := f.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}

	out := []Message{systemMessage, taskMessage}
	for _, s := range summaries {
		out = append(out, SystemMessage(s, taskMessage.Iteration))
	}

	start := windowStart(history, windowSize)
	out = append(out, history[start:]...)
	return out
}

// windowStart returns the index into history at which the pair-aware
// sliding window begins: the earliest index such that everything from
// there on covers at most windowSize distinct iteration numbers, and no
// tool-result message is included without its originating assistant
// message.
func windowStart(history []Message, windowSize int) int {
	if len(history) == 0 {
		return 0
	}

	distinctIters := make(map[int]bool)
	cut := 0
	for i := len(history) - 1; i >= 0; i-- {
		distinctIters[history[i].Iteration] = true
		if len(distinctIters) > windowSize {
			cut = i + 1
			break
		}
	}

	// Walk backward from cut while it splits a tool-result block away from
	// its assistant message.
	for cut > 0 && history[cut].Role == "tool" {
		cut--
	}
	return cut
}

// DedupToolCalls drops tool calls whose canonical {name, input} signature
// already appeared earlier in the same turn, keeping the first occurrence.
// Canonicalization re-marshals input with sorted object keys so semantically
// identical JSON in different key order still dedupes.
func DedupToolCalls(calls []ToolCall) []ToolCall {
	seen := make(map[string]bool, len(calls))
	out := make([]ToolCall, 0, len(calls))
	for _, tc := range calls {
		key := tc.Name + ":" + canonicalJSON(tc.Input)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tc)
	}
	return out
}

// canonicalJSON re-marshals arbitrary JSON with object keys sorted, then
// hashes the result — used as a stable dedup key rather than comparing raw
// byte strings, which would treat {"a":1,"b":2} and {"b":2,"a":1} as
// distinct.
func canonicalJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		sum := sha256.Sum256(raw)
		return hex.EncodeToString(sum[:])
	}
	canonical := canonicalizeValue(v)
	b, err := json.Marshal(canonical)
	if err != nil {
		sum := sha256.Sum256(raw)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func canonicalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]keyValue, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, keyValue{k, canonicalizeValue(t[k])})
		}
		return ordered
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return t
	}
}

// keyValue holds one map entry; a slice of them marshals as an array of
// {"Key":...,"Value":...} objects, so the sorted key order is written out
// explicitly instead of being left to json.Marshal's handling of maps.
type keyValue struct {
	Key   string
	Value any
}
