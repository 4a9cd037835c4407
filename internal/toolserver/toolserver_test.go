package toolserver

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	srv := New("calc", "1.2.3")
	srv.AddTool(
		NewTool("add", "Adds two numbers", SimpleSchema(map[string]string{"a": "float64", "b": "float64"})),
		func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := Arguments(req)
			if err != nil {
				return nil, err
			}

			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)

			if a+b > 1000 {
				return ErrorResult("sum too large"), nil
			}

			return TextResult("7"), nil
		},
	)
	srv.AddTool(
		NewTool("explode", "Always fails", SimpleSchema(nil)),
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("kaboom")
		},
	)

	return srv
}

func rpcBody(t *testing.T, response map[string]any) map[string]any {
	t.Helper()

	body, ok := response["mcp_response"].(map[string]any)
	require.True(t, ok, "missing mcp_response wrapper")
	require.Equal(t, "2.0", body["jsonrpc"])

	return body
}

func TestHandleMessage_Initialize(t *testing.T) {
	srv := newTestServer(t)

	body := rpcBody(t, srv.HandleMessage(context.Background(), map[string]any{
		"jsonrpc": "2.0", "id": float64(1), "method": "initialize",
	}))

	require.Equal(t, 1, body["id"])

	result := body["result"].(map[string]any)
	require.Equal(t, protocolVersion, result["protocolVersion"])

	info := result["serverInfo"].(map[string]any)
	require.Equal(t, "calc", info["name"])
	require.Equal(t, "1.2.3", info["version"])
}

func TestHandleMessage_ToolsList(t *testing.T) {
	srv := newTestServer(t)

	body := rpcBody(t, srv.HandleMessage(context.Background(), map[string]any{
		"id": float64(2), "method": "tools/list",
	}))

	result := body["result"].(map[string]any)
	tools := result["tools"].([]map[string]any)
	require.Len(t, tools, 2)

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool["name"].(string)] = true
	}

	require.True(t, names["add"])
	require.True(t, names["explode"])
}

func TestHandleMessage_ToolsCall(t *testing.T) {
	srv := newTestServer(t)

	body := rpcBody(t, srv.HandleMessage(context.Background(), map[string]any{
		"id":     float64(3),
		"method": "tools/call",
		"params": map[string]any{
			"name":      "add",
			"arguments": map[string]any{"a": float64(3), "b": float64(4)},
		},
	}))

	result := body["result"].(map[string]any)
	require.Nil(t, result["is_error"])

	content := result["content"].([]map[string]any)
	require.Len(t, content, 1)
	require.Equal(t, "text", content[0]["type"])
	require.Equal(t, "7", content[0]["text"])
}

func TestHandleMessage_ToolErrorResult(t *testing.T) {
	srv := newTestServer(t)

	body := rpcBody(t, srv.HandleMessage(context.Background(), map[string]any{
		"id":     float64(4),
		"method": "tools/call",
		"params": map[string]any{
			"name":      "add",
			"arguments": map[string]any{"a": float64(900), "b": float64(200)},
		},
	}))

	result := body["result"].(map[string]any)
	require.Equal(t, true, result["is_error"])
}

func TestHandleMessage_HandlerFailureIsToolError(t *testing.T) {
	srv := newTestServer(t)

	body := rpcBody(t, srv.HandleMessage(context.Background(), map[string]any{
		"id":     float64(5),
		"method": "tools/call",
		"params": map[string]any{"name": "explode"},
	}))

	// Execution failures surface as tool errors, not JSON-RPC faults.
	require.Nil(t, body["error"])

	result := body["result"].(map[string]any)
	require.Equal(t, true, result["is_error"])

	content := result["content"].([]map[string]any)
	require.Contains(t, content[0]["text"], "kaboom")
}

func TestHandleMessage_UnknownTool(t *testing.T) {
	srv := newTestServer(t)

	body := rpcBody(t, srv.HandleMessage(context.Background(), map[string]any{
		"id":     float64(6),
		"method": "tools/call",
		"params": map[string]any{"name": "subtract"},
	}))

	result := body["result"].(map[string]any)
	require.Equal(t, true, result["is_error"])
}

func TestHandleMessage_UnknownMethod(t *testing.T) {
	srv := newTestServer(t)

	body := rpcBody(t, srv.HandleMessage(context.Background(), map[string]any{
		"id": float64(7), "method": "resources/list",
	}))

	rpcErr := body["error"].(map[string]any)
	require.Equal(t, -32601, rpcErr["code"])
}

func TestHandleMessage_MissingParams(t *testing.T) {
	srv := newTestServer(t)

	body := rpcBody(t, srv.HandleMessage(context.Background(), map[string]any{
		"id": float64(8), "method": "tools/call",
	}))

	rpcErr := body["error"].(map[string]any)
	require.Equal(t, -32602, rpcErr["code"])
}

func TestNotFoundResponse(t *testing.T) {
	body := rpcBody(t, NotFoundResponse(float64(9), "ghost"))

	require.Equal(t, 9, body["id"])

	rpcErr := body["error"].(map[string]any)
	require.Equal(t, -32600, rpcErr["code"])
	require.Contains(t, rpcErr["message"], "ghost")
}

func TestSimpleSchema(t *testing.T) {
	schema := SimpleSchema(map[string]string{
		"name":  "string",
		"count": "int",
		"ratio": "float64",
		"flags": "[]string",
		"deep":  "map[string]any",
		"ok":    "bool",
	})

	require.Equal(t, "object", schema.Type)
	require.Len(t, schema.Required, 6)
	require.Equal(t, "string", schema.Properties["name"].Type)
	require.Equal(t, "integer", schema.Properties["count"].Type)
	require.Equal(t, "number", schema.Properties["ratio"].Type)
	require.Equal(t, "array", schema.Properties["flags"].Type)
	require.Equal(t, "string", schema.Properties["flags"].Items.Type)
	require.Equal(t, "object", schema.Properties["deep"].Type)
	require.Equal(t, "boolean", schema.Properties["ok"].Type)
}

func TestArguments_Empty(t *testing.T) {
	args, err := Arguments(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Name: "x"}})
	require.NoError(t, err)
	require.Empty(t, args)

	args, err = Arguments(nil)
	require.NoError(t, err)
	require.Empty(t, args)
}
