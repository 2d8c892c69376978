// Package file provides a workspace-scoped file tool pack: read, write,
// list, delete, and stat, all confined to one sandboxed directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	oasis "github.com/oasis-run/core"
)

// Tool provides file operations within a sandboxed workspace.
type Tool struct {
	workspacePath string
}

// New creates a Tool restricted to workspacePath.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

// NewPack wraps Tool as a ToolPack exposing file_read, file_write,
// file_list, file_delete, and file_stat.
func NewPack(workspacePath string) *oasis.ToolPack {
	t := New(workspacePath)
	return &oasis.ToolPack{
		ID:             "core.file",
		Namespace:      "file",
		Version:        "1.0.0",
		Priority:       50,
		ConflictPolicy: oasis.ConflictFirstWins,
		Capabilities:   oasis.PackCapabilities{AllowedPaths: []string{workspacePath}, Audit: true},
		Tools: []oasis.PackedTool{
			{
				Definition: oasis.ToolDefinition{
					Name:        "file_read",
					Description: "Read a file from the workspace. Returns the file content (truncated to 8000 chars if large).",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"}},"required":["path"]}`),
				},
				Invoke: t.invokeRead,
			},
			{
				Definition: oasis.ToolDefinition{
					Name:        "file_write",
					Description: "Write content to a file in the workspace. Creates parent directories if needed.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"content":{"type":"string","description":"Content to write"}},"required":["path","content"]}`),
				},
				Invoke: t.invokeWrite,
			},
			{
				Definition: oasis.ToolDefinition{
					Name:        "file_list",
					Description: "List files and directories in a workspace directory. Returns one entry per line with type prefix (file/dir) and name.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Directory path relative to workspace (empty or '.' for root)"}}}`),
				},
				Invoke: t.invokeList,
			},
			{
				Definition: oasis.ToolDefinition{
					Name:        "file_delete",
					Description: "Delete a file or empty directory from the workspace.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File or directory path relative to workspace"}},"required":["path"]}`),
				},
				Invoke: t.invokeDelete,
			},
			{
				Definition: oasis.ToolDefinition{
					Name:        "file_stat",
					Description: "Get metadata for a file or directory in the workspace. Returns name, size, type, and modification time.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File or directory path relative to workspace"}},"required":["path"]}`),
				},
				Invoke: t.invokeStat,
			},
		},
	}
}

type pathArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *Tool) resolve(input json.RawMessage) (pathArgs, string, error) {
	var params pathArgs
	if err := json.Unmarshal(input, &params); err != nil {
		return params, "", fmt.Errorf("invalid input: %w", err)
	}
	path := params.Path
	if path == "" {
		path = "."
	}
	resolved, err := t.resolvePath(path)
	return params, resolved, err
}

func (t *Tool) invokeRead(_ context.Context, input json.RawMessage) (oasis.ToolOutput, error) {
	_, resolved, err := t.resolve(input)
	if err != nil {
		return oasis.ToolOutput{Error: err.Error()}, nil
	}
	return t.read(resolved)
}

func (t *Tool) invokeWrite(_ context.Context, input json.RawMessage) (oasis.ToolOutput, error) {
	params, resolved, err := t.resolve(input)
	if err != nil {
		return oasis.ToolOutput{Error: err.Error()}, nil
	}
	return t.write(resolved, params.Content)
}

func (t *Tool) invokeList(_ context.Context, input json.RawMessage) (oasis.ToolOutput, error) {
	_, resolved, err := t.resolve(input)
	if err != nil {
		return oasis.ToolOutput{Error: err.Error()}, nil
	}
	return t.list(resolved)
}

func (t *Tool) invokeDelete(_ context.Context, input json.RawMessage) (oasis.ToolOutput, error) {
	_, resolved, err := t.resolve(input)
	if err != nil {
		return oasis.ToolOutput{Error: err.Error()}, nil
	}
	return t.remove(resolved)
}

func (t *Tool) invokeStat(_ context.Context, input json.RawMessage) (oasis.ToolOutput, error) {
	_, resolved, err := t.resolve(input)
	if err != nil {
		return oasis.ToolOutput{Error: err.Error()}, nil
	}
	return t.stat(resolved)
}

func (t *Tool) resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}
	resolved := filepath.Join(t.workspacePath, path)
	// Double-check it's still within workspace
	if !strings.HasPrefix(resolved, t.workspacePath) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func (t *Tool) read(path string) (oasis.ToolOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return oasis.ToolOutput{Error: "read error: " + err.Error()}, nil
	}
	content := string(data)
	if len(content) > 8000 {
		content = content[:8000] + "\n... (truncated)"
	}
	return oasis.ToolOutput{Content: content, Success: true}, nil
}

func (t *Tool) write(path, content string) (oasis.ToolOutput, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return oasis.ToolOutput{Error: "mkdir error: " + err.Error()}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return oasis.ToolOutput{Error: "write error: " + err.Error()}, nil
	}
	return oasis.ToolOutput{Content: fmt.Sprintf("Written %d bytes to %s", len(content), filepath.Base(path)), Success: true}, nil
}

func (t *Tool) list(path string) (oasis.ToolOutput, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return oasis.ToolOutput{Error: "list error: " + err.Error()}, nil
	}
	var b strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(&b, "%s\t%s\n", kind, e.Name())
	}
	return oasis.ToolOutput{Content: b.String(), Success: true}, nil
}

func (t *Tool) remove(path string) (oasis.ToolOutput, error) {
	if err := os.Remove(path); err != nil {
		return oasis.ToolOutput{Error: "delete error: " + err.Error()}, nil
	}
	return oasis.ToolOutput{Content: fmt.Sprintf("Deleted %s", filepath.Base(path)), Success: true}, nil
}

func (t *Tool) stat(path string) (oasis.ToolOutput, error) {
	info, err := os.Stat(path)
	if err != nil {
		return oasis.ToolOutput{Error: "stat error: " + err.Error()}, nil
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	out, _ := json.Marshal(map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"type":     kind,
		"modified": info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
	})
	return oasis.ToolOutput{Content: string(out), Success: true}, nil
}
