package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkclient "github.com/mark3labs/mcp-go/client"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	core "github.com/oasis-run/core"
)

// mcpConn is the subset of mcp-go's client.MCPClient this bridge depends
// on. Kept narrow (rather than depending on the full SDK interface
// directly) so tests can substitute a fake connection without spawning a
// subprocess or opening a socket.
type mcpConn interface {
	Initialize(ctx context.Context, req sdkmcp.InitializeRequest) (*sdkmcp.InitializeResult, error)
	ListTools(ctx context.Context, req sdkmcp.ListToolsRequest) (*sdkmcp.ListToolsResult, error)
	CallTool(ctx context.Context, req sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error)
	Close() error
}

// BridgeClient wraps a remote MCP server's tools as a core.ToolPack. It
// performs the initialize handshake and a tools/list call at construction
// time, then dispatches tools/call per invocation.
type BridgeClient struct {
	conn      mcpConn
	namespace string
}

// NewStdioBridge spawns command (with args) as a subprocess and speaks MCP
// over its stdin/stdout via the mcp-go stdio client.
func NewStdioBridge(namespace, command string, env, args []string) (*BridgeClient, error) {
	cli, err := sdkclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp bridge: starting %s: %w", command, err)
	}
	return &BridgeClient{conn: cli, namespace: namespace}, nil
}

// NewSSEBridge connects to a remote MCP server over HTTP+SSE at endpoint
// via the mcp-go SSE client.
func NewSSEBridge(ctx context.Context, namespace, endpoint string) (*BridgeClient, error) {
	cli, err := sdkclient.NewSSEMCPClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("mcp bridge: creating SSE client for %s: %w", endpoint, err)
	}
	if err := cli.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp bridge: starting SSE client for %s: %w", endpoint, err)
	}
	return &BridgeClient{conn: cli, namespace: namespace}, nil
}

// ToolPack performs the initialize + tools/list handshake and returns a
// core.ToolPack exposing every tool the remote server advertises, each
// dispatching back through a tools/call.
func (b *BridgeClient) ToolPack(ctx context.Context, version string) (*core.ToolPack, error) {
	var initReq sdkmcp.InitializeRequest
	initReq.Params.ProtocolVersion = sdkmcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = sdkmcp.Implementation{Name: "oasis-core", Version: version}
	if _, err := b.conn.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("mcp bridge: initialize: %w", err)
	}

	listed, err := b.conn.ListTools(ctx, sdkmcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp bridge: tools/list: %w", err)
	}

	pack := &core.ToolPack{
		ID:             "mcp." + b.namespace,
		Namespace:      b.namespace,
		Version:        version,
		Priority:       10,
		ConflictPolicy: core.ConflictNamespacePrefix,
		Capabilities:   core.PackCapabilities{NetworkAccess: true, Audit: true},
	}
	for _, t := range listed.Tools {
		t := t
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage("{}")
		}
		pack.Tools = append(pack.Tools, core.PackedTool{
			Definition: core.ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: schema},
			Invoke:     b.invokeTool(t.Name),
		})
	}
	return pack, nil
}

func (b *BridgeClient) invokeTool(name string) func(ctx context.Context, input json.RawMessage) (core.ToolOutput, error) {
	return func(ctx context.Context, input json.RawMessage) (core.ToolOutput, error) {
		var args map[string]any
		if len(input) > 0 {
			if err := json.Unmarshal(input, &args); err != nil {
				return core.ToolOutput{Success: false, Error: "invalid input: " + err.Error()}, nil
			}
		}

		var req sdkmcp.CallToolRequest
		req.Params.Name = name
		req.Params.Arguments = args

		result, err := b.conn.CallTool(ctx, req)
		if err != nil {
			return core.ToolOutput{Success: false, Error: err.Error()}, nil
		}

		var text strings.Builder
		for _, c := range result.Content {
			if tc, ok := c.(sdkmcp.TextContent); ok {
				text.WriteString(tc.Text)
			}
		}
		return core.ToolOutput{Content: text.String(), Success: !result.IsError}, nil
	}
}

// Close releases the underlying connection (kills the subprocess, or
// tears down the SSE stream).
func (b *BridgeClient) Close() error { return b.conn.Close() }
