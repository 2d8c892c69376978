// Package http provides the http_fetch tool: download a URL and extract
// its readable text, for an agent to read web pages, articles, or docs.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	core "github.com/oasis-run/core"
	"github.com/oasis-run/core/ingest"
)

const maxFetchContentLength = 8000

// Fetcher downloads a URL and extracts its readable text content.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher with a 15-second request timeout.
func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 15 * time.Second}}
}

// NewPack wraps Fetcher as a ToolPack exposing http_fetch, so it plugs
// into a ToolManager the same way every other pack does.
func NewPack() *core.ToolPack {
	f := New()
	return &core.ToolPack{
		ID:             "core.http",
		Namespace:      "web",
		Version:        "1.0.0",
		Priority:       50,
		ConflictPolicy: core.ConflictNamespacePrefix,
		Capabilities:   core.PackCapabilities{NetworkAccess: true, Audit: true},
		Tools: []core.PackedTool{{
			Definition: core.ToolDefinition{
				Name:        "fetch",
				Description: "Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`),
			},
			Invoke: f.invoke,
		}},
	}
}

func (f *Fetcher) invoke(ctx context.Context, input json.RawMessage) (core.ToolOutput, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return core.ToolOutput{Success: false, Error: "invalid input: " + err.Error()}, nil
	}

	content, err := f.Fetch(ctx, params.URL)
	if err != nil {
		return core.ToolOutput{Success: false, Error: err.Error()}, nil
	}

	if len(content) > maxFetchContentLength {
		content = content[:maxFetchContentLength] + "\n... (truncated)"
	}
	return core.ToolOutput{Content: content, Success: true}, nil
}

// Fetch downloads rawURL and extracts its readable text, falling back to a
// plain HTML-stripping pass when readability extraction finds nothing.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CoreAgentBot/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	html := string(body)

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	return ingest.StripHTML(html), nil
}
