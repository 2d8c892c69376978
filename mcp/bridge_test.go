package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

// fakeConn is an mcpConn double driven by canned results, so ToolPack/invoke
// logic can be tested without spawning a subprocess or opening a socket.
type fakeConn struct {
	initErr  error
	listResp *sdkmcp.ListToolsResult
	listErr  error
	callResp *sdkmcp.CallToolResult
	callErr  error

	initCalls  int
	listCalls  int
	calledTool string
	calledArgs map[string]any
}

func (f *fakeConn) Initialize(_ context.Context, _ sdkmcp.InitializeRequest) (*sdkmcp.InitializeResult, error) {
	f.initCalls++
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &sdkmcp.InitializeResult{}, nil
}

func (f *fakeConn) ListTools(_ context.Context, _ sdkmcp.ListToolsRequest) (*sdkmcp.ListToolsResult, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listResp, nil
}

func (f *fakeConn) CallTool(_ context.Context, req sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	f.calledTool = req.Params.Name
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		f.calledArgs = args
	}
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callResp, nil
}

func (f *fakeConn) Close() error { return nil }

func newFakeToolsListConn() *fakeConn {
	return &fakeConn{
		listResp: &sdkmcp.ListToolsResult{Tools: []sdkmcp.Tool{
			{Name: "search", Description: "search the index"},
		}},
	}
}

func textResult(text string, isError bool) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []interface{}{sdkmcp.TextContent{Type: "text", Text: text}},
		IsError: isError,
	}
}

func TestBridgeClientToolPackListsRemoteTools(t *testing.T) {
	fc := newFakeToolsListConn()
	client := &BridgeClient{conn: fc, namespace: "remote"}

	pack, err := client.ToolPack(context.Background(), "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "mcp.remote", pack.ID)
	require.Equal(t, "remote", pack.Namespace)
	require.Len(t, pack.Tools, 1)
	require.Equal(t, "search", pack.Tools[0].Definition.Name)
	require.Equal(t, 1, fc.initCalls)
	require.Equal(t, 1, fc.listCalls)
}

func TestBridgeClientToolPackInitializeFailure(t *testing.T) {
	fc := &fakeConn{initErr: errors.New("handshake refused")}
	client := &BridgeClient{conn: fc, namespace: "remote"}

	_, err := client.ToolPack(context.Background(), "1.0.0")
	require.ErrorContains(t, err, "handshake refused")
}

func TestBridgeClientToolPackListFailure(t *testing.T) {
	fc := &fakeConn{listErr: errors.New("tools unavailable")}
	client := &BridgeClient{conn: fc, namespace: "remote"}

	_, err := client.ToolPack(context.Background(), "1.0.0")
	require.ErrorContains(t, err, "tools unavailable")
}

func TestBridgeClientInvokeToolSuccess(t *testing.T) {
	fc := newFakeToolsListConn()
	fc.callResp = textResult("3 hits", false)

	client := &BridgeClient{conn: fc, namespace: "remote"}
	pack, err := client.ToolPack(context.Background(), "1.0.0")
	require.NoError(t, err)

	out, err := pack.Tools[0].Invoke(context.Background(), json.RawMessage(`{"query":"foo"}`))
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "3 hits", out.Content)
	require.Equal(t, "search", fc.calledTool)
	require.Equal(t, "foo", fc.calledArgs["query"])
}

func TestBridgeClientInvokeToolRemoteError(t *testing.T) {
	fc := newFakeToolsListConn()
	fc.callResp = textResult("index unavailable", true)

	client := &BridgeClient{conn: fc, namespace: "remote"}
	pack, err := client.ToolPack(context.Background(), "1.0.0")
	require.NoError(t, err)

	out, err := pack.Tools[0].Invoke(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, "index unavailable", out.Content)
}

func TestBridgeClientInvokeToolTransportError(t *testing.T) {
	fc := newFakeToolsListConn()
	fc.callErr = errors.New("connection reset")

	client := &BridgeClient{conn: fc, namespace: "remote"}
	pack, err := client.ToolPack(context.Background(), "1.0.0")
	require.NoError(t, err)

	out, err := pack.Tools[0].Invoke(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Contains(t, out.Error, "connection reset")
}

func TestBridgeClientInvokeToolEmptyInputSendsNilArguments(t *testing.T) {
	fc := newFakeToolsListConn()
	fc.callResp = textResult("ok", false)

	client := &BridgeClient{conn: fc, namespace: "remote"}
	pack, err := client.ToolPack(context.Background(), "1.0.0")
	require.NoError(t, err)

	out, err := pack.Tools[0].Invoke(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Nil(t, fc.calledArgs)
}

func TestBridgeClientClose(t *testing.T) {
	fc := newFakeToolsListConn()
	client := &BridgeClient{conn: fc, namespace: "remote"}
	require.NoError(t, client.Close())
}
