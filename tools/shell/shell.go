// Package shell provides the shell_exec tool pack: run a shell command
// inside a sandboxed workspace with a blocklist and a bounded timeout.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	oasis "github.com/oasis-run/core"
)

// Tool executes shell commands in a sandboxed workspace.
type Tool struct {
	workspacePath  string
	defaultTimeout int // seconds
}

// New creates a Tool. Commands run in workspacePath with the given default timeout.
func New(workspacePath string, defaultTimeout int) *Tool {
	if defaultTimeout <= 0 {
		defaultTimeout = 30
	}
	return &Tool{workspacePath: workspacePath, defaultTimeout: defaultTimeout}
}

// NewPack wraps Tool as a ToolPack exposing shell_exec.
func NewPack(workspacePath string, defaultTimeout int) *oasis.ToolPack {
	t := New(workspacePath, defaultTimeout)
	return &oasis.ToolPack{
		ID:             "core.shell",
		Namespace:      "shell",
		Version:        "1.0.0",
		Priority:       50,
		ConflictPolicy: oasis.ConflictFirstWins,
		Capabilities:   oasis.PackCapabilities{NetworkAccess: true, AllowedPaths: []string{workspacePath}, Audit: true},
		Tools: []oasis.PackedTool{{
			Definition: oasis.ToolDefinition{
				Name:        "shell_exec",
				Description: "Execute a shell command in the workspace directory. Returns stdout + stderr. Use for running scripts, checking files, or system tasks.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to execute"},"timeout":{"type":"integer","description":"Timeout in seconds (default 30)"}},"required":["command"]}`),
			},
			Invoke: t.invoke,
		}},
	}
}

// blockedCommands are substrings that, if present in the command, cause
// rejection before any shell invocation.
var blockedCommands = []string{"rm -rf /", "sudo ", "mkfs", "> /dev/", "dd if="}

func (t *Tool) invoke(ctx context.Context, input json.RawMessage) (oasis.ToolOutput, error) {
	var params struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return oasis.ToolOutput{Error: "invalid input: " + err.Error()}, nil
	}

	if params.Command == "" {
		return oasis.ToolOutput{Error: "command is required"}, nil
	}

	lower := strings.ToLower(params.Command)
	for _, b := range blockedCommands {
		if strings.Contains(lower, b) {
			return oasis.ToolOutput{Error: "command blocked for safety: " + b}, nil
		}
	}

	timeout := t.defaultTimeout
	if params.Timeout > 0 {
		timeout = params.Timeout
	}
	if timeout > 300 {
		timeout = 300
	}

	cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", params.Command)
	cmd.Dir = t.workspacePath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var output string
	if stdout.Len() > 0 {
		output = stdout.String()
	}
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}

	if len(output) > 4000 {
		output = output[:4000] + "\n... (truncated)"
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return oasis.ToolOutput{Content: output, Error: fmt.Sprintf("command timed out after %ds", timeout)}, nil
		}
		if output == "" {
			output = err.Error()
		}
		return oasis.ToolOutput{Content: output, Error: "exit: " + err.Error()}, nil
	}

	if output == "" {
		output = "(no output)"
	}

	return oasis.ToolOutput{Content: output, Success: true}, nil
}
