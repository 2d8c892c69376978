// Package remember provides the remember tool pack: save arbitrary text
// to the knowledge base via chunking, embedding, and storage.
package remember

import (
	"context"
	"encoding/json"
	"fmt"

	oasis "github.com/oasis-run/core"
	"github.com/oasis-run/core/ingest"
)

// Tool saves information to the knowledge base.
type Tool struct {
	ingestor *ingest.Ingestor
}

// New creates a Tool backed by an Ingestor.
func New(store oasis.Store, embedding oasis.EmbeddingProvider) *Tool {
	return &Tool{
		ingestor: ingest.NewIngestor(store, embedding),
	}
}

// NewPack wraps Tool as a ToolPack exposing remember.
func NewPack(store oasis.Store, embedding oasis.EmbeddingProvider) *oasis.ToolPack {
	t := New(store, embedding)
	return &oasis.ToolPack{
		ID:             "core.remember",
		Namespace:      "memory",
		Version:        "1.0.0",
		Priority:       50,
		ConflictPolicy: oasis.ConflictFirstWins,
		Capabilities:   oasis.PackCapabilities{Audit: true},
		Tools: []oasis.PackedTool{{
			Definition: oasis.ToolDefinition{
				Name:        "remember",
				Description: "Save information to the user's knowledge base. Use when the user explicitly asks to remember or save something.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string","description":"The content to save"}},"required":["content"]}`),
			},
			Invoke: t.invoke,
		}},
	}
}

func (t *Tool) invoke(ctx context.Context, input json.RawMessage) (oasis.ToolOutput, error) {
	var params struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return oasis.ToolOutput{Error: "invalid input: " + err.Error()}, nil
	}

	result, err := t.IngestText(ctx, params.Content, "message")
	if err != nil {
		return oasis.ToolOutput{Error: err.Error()}, nil
	}
	return oasis.ToolOutput{Content: result, Success: true}, nil
}

// IngestText chunks, embeds, and stores text content. Exported for use by the App layer.
func (t *Tool) IngestText(ctx context.Context, content, source string) (string, error) {
	r, err := t.ingestor.IngestText(ctx, content, source, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved and indexed %d chunk(s) to knowledge base.", r.ChunkCount), nil
}

// IngestFile chunks, embeds, and stores a file's content. Exported for use by the App layer.
func (t *Tool) IngestFile(ctx context.Context, content, filename string) (string, error) {
	r, err := t.ingestor.IngestFile(ctx, []byte(content), filename)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("File %q ingested: %d chunk(s) indexed.", filename, r.ChunkCount), nil
}

// IngestURL ingests HTML content from a URL. Exported for use by the App layer.
func (t *Tool) IngestURL(ctx context.Context, html, sourceURL string) (string, error) {
	r, err := t.ingestor.IngestFile(ctx, []byte(html), sourceURL+".html")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("URL ingested: %d chunk(s) indexed from %s", r.ChunkCount, sourceURL), nil
}
