package core

import "context"

// Provider abstracts the LLM backend. The execution loop never talks to a
// concrete model API directly; this module ships no concrete provider, so
// callers supply their own implementation of this interface.
type Provider interface {
	// Complete sends a single prompt and returns a complete response.
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatWithTools sends a request with tool definitions; the response may
	// carry tool calls instead of (or alongside) final content.
	ChatWithTools(ctx context.Context, req ChatRequest, tools []ToolDefinition) (ChatResponse, error)
	// Name returns the provider name (e.g. "anthropic", "openai-compat").
	Name() string
}

// EmbeddingProvider abstracts text embedding, used by the archive's
// semantic recall and the fact sheet's similarity-based merge.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// ChatRequest is one LLM call: the full effective message window plus any
// structured-output or sampling overrides applied by beforeLLMCall patches.
type ChatRequest struct {
	Messages         []Message         `json:"messages"`
	Tools            []ToolDefinition  `json:"tools,omitempty"`
	GenerationParams *GenerationParams `json:"generation_params,omitempty"`
}

// ChatResponse is the LLM's reply: either final content, or one or more
// tool calls (never both carrying independent meaning — Content alongside
// ToolCalls is commentary the loop appends but does not treat as final).
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        Usage      `json:"usage"`
	FinishReason string     `json:"finish_reason,omitempty"`
}
