package core

import (
	"encoding/json"
	"sync"
)

// Tier selects an LLM model family for a run and the normalizer's baseline
// read limits. Escalation moves small -> medium -> large.
type Tier string

const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// Next returns the next-larger tier, and false if already at TierLarge.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierSmall:
		return TierMedium, true
	case TierMedium:
		return TierLarge, true
	default:
		return t, false
	}
}

// Usage tracks aggregate token usage for a run or a sub-tree of runs.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// GenerationParams carries optional sampling overrides a middleware's
// beforeLLMCall patch may apply (e.g. the Executor pins temperature 0.1).
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

// Message is one entry in a run's monotone message log. Role is one of
// "system", "user", "assistant", "tool". Only the assistant role carries
// ToolCalls; only the tool role carries ToolCallID. Iteration is assigned
// once, at append time, and never changes afterward.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Iteration  int        `json:"iteration"`
}

func SystemMessage(content string, iteration int) Message {
	return Message{Role: "system", Content: content, Iteration: iteration}
}

func UserMessage(content string, iteration int) Message {
	return Message{Role: "user", Content: content, Iteration: iteration}
}

func AssistantMessage(content string, calls []ToolCall, iteration int) Message {
	return Message{Role: "assistant", Content: content, ToolCalls: calls, Iteration: iteration}
}

func ToolMessage(callID, content string, iteration int) Message {
	return Message{Role: "tool", Content: content, ToolCallID: callID, Iteration: iteration}
}

// ToolCall is a request from an assistant message to invoke one tool with
// structured input. Input is kept as json.RawMessage rather than a typed
// map so normalizers and guards can rewrite it without a decode/re-encode
// round trip on the common path.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolOutput is the result of executing exactly one ToolCall.
type ToolOutput struct {
	ToolCallID string          `json:"tool_call_id"`
	Content    string          `json:"content"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// ToolDefinition is the wire shape of a tool as advertised to the LLM.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// metaStore is a namespaced key/value store used by RunContext.Meta().
// Guarded by mu since middlewares (Observability, Budget, Progress) write
// concurrently from within tool dispatch goroutines.
type metaStore struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

func newMetaStore() *metaStore {
	return &metaStore{data: make(map[string]map[string]any)}
}

func (m *metaStore) Get(namespace, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}

func (m *metaStore) Set(namespace, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]any)
		m.data[namespace] = ns
	}
	ns[key] = value
}

// Append adds value to a slice stored at {namespace, key}, creating it if
// absent. Used by the Observability middleware to accumulate file reads,
// writes, and creates without callers needing to know the stored type.
func (m *metaStore) Append(namespace, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]any)
		m.data[namespace] = ns
	}
	existing, _ := ns[key].([]any)
	ns[key] = append(existing, value)
}
