// Package toolserver hosts in-process MCP tool servers. The agent process
// reaches them through the control channel (mcp_message requests) instead of
// a stdio or HTTP transport, so the package keeps its own tool registry and
// answers JSON-RPC payloads directly.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// protocolVersion is the MCP protocol revision reported on initialize.
const protocolVersion = "2024-11-05"

// Server is an in-process MCP server reachable over the control channel.
type Server struct {
	name    string
	version string

	mu    sync.RWMutex
	tools map[string]*registeredTool
}

type registeredTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

// New creates an in-process tool server.
func New(name, version string) *Server {
	return &Server{
		name:    name,
		version: version,
		tools:   make(map[string]*registeredTool, 8),
	}
}

// Name returns the server name used as the routing key.
func (s *Server) Name() string { return s.name }

// AddTool registers a tool. Registering the same name twice replaces the
// earlier handler.
func (s *Server) AddTool(tool *mcp.Tool, handler mcp.ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools[tool.Name] = &registeredTool{tool: tool, handler: handler}
}

// HandleMessage answers one JSON-RPC message addressed to this server and
// returns the response object to embed in the control response.
func (s *Server) HandleMessage(ctx context.Context, message map[string]any) map[string]any {
	method, _ := message["method"].(string)
	msgID := normalizeID(message["id"])

	switch method {
	case "initialize":
		return rpcResult(msgID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": s.name, "version": s.version},
		})

	case "notifications/initialized":
		return rpcResult(msgID, map[string]any{})

	case "tools/list":
		return rpcResult(msgID, map[string]any{"tools": s.listTools()})

	case "tools/call":
		params, _ := message["params"].(map[string]any)

		return s.callTool(ctx, msgID, params)

	default:
		return rpcError(msgID, -32601, fmt.Sprintf("method not found: %s", method))
	}
}

func (s *Server) listTools() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]map[string]any, 0, len(s.tools))

	for _, t := range s.tools {
		entry := map[string]any{
			"name":        t.tool.Name,
			"description": t.tool.Description,
		}

		if schema := asMap(t.tool.InputSchema); schema != nil {
			entry["inputSchema"] = schema
		}

		if ann := asMap(t.tool.Annotations); ann != nil {
			entry["annotations"] = ann
		}

		out = append(out, entry)
	}

	return out
}

func (s *Server) callTool(ctx context.Context, msgID any, params map[string]any) map[string]any {
	if params == nil {
		return rpcError(msgID, -32602, "missing params for tools/call")
	}

	toolName, _ := params["name"].(string)
	if toolName == "" {
		return rpcError(msgID, -32602, "missing tool name in params")
	}

	s.mu.RLock()
	t, exists := s.tools[toolName]
	s.mu.RUnlock()

	if !exists {
		return rpcResult(msgID, errorContent("tool not found: "+toolName))
	}

	arguments, _ := params["arguments"].(map[string]any)

	argBytes, err := json.Marshal(arguments)
	if err != nil {
		return rpcResult(msgID, errorContent("marshal arguments: "+err.Error()))
	}

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: toolName, Arguments: argBytes},
	}

	result, err := t.handler(ctx, req)
	if err != nil {
		// Handler failures are encoded as tool errors, never as RPC faults.
		return rpcResult(msgID, errorContent("tool execution failed: "+err.Error()))
	}

	return rpcResult(msgID, resultToMap(result))
}

// NewTool builds an mcp.Tool from name, description, and input schema.
func NewTool(name, description string, inputSchema *jsonschema.Schema) *mcp.Tool {
	return &mcp.Tool{Name: name, Description: description, InputSchema: inputSchema}
}

// SimpleSchema builds an object schema from property-name to Go-type-name
// pairs, all required. Convenience for tools that do not need the full
// jsonschema API.
func SimpleSchema(props map[string]string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(props))
	required := make([]string, 0, len(props))

	for name, goType := range props {
		properties[name] = typeSchema(goType)
		required = append(required, name)
	}

	return &jsonschema.Schema{Type: "object", Properties: properties, Required: required}
}

func typeSchema(goType string) *jsonschema.Schema {
	switch goType {
	case "string":
		return &jsonschema.Schema{Type: "string"}
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64":
		return &jsonschema.Schema{Type: "integer"}
	case "float32", "float64", "number":
		return &jsonschema.Schema{Type: "number"}
	case "bool":
		return &jsonschema.Schema{Type: "boolean"}
	case "map[string]any", "object":
		return &jsonschema.Schema{Type: "object"}
	default:
		if len(goType) > 2 && goType[:2] == "[]" {
			return &jsonschema.Schema{Type: "array", Items: typeSchema(goType[2:])}
		}

		return &jsonschema.Schema{Type: "string"}
	}
}

// TextResult builds a successful text tool result.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// ErrorResult builds a failed tool result carrying message.
func ErrorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

// Arguments unmarshals the raw call arguments into a map.
func Arguments(req *mcp.CallToolRequest) (map[string]any, error) {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, fmt.Errorf("unmarshal arguments: %w", err)
	}

	return args, nil
}

// NotFoundResponse builds the JSON-RPC error returned when no registered
// server matches the requested name.
func NotFoundResponse(msgID any, serverName string) map[string]any {
	return rpcError(normalizeID(msgID), -32600, "tool server not found: "+serverName)
}

func resultToMap(result *mcp.CallToolResult) map[string]any {
	if result == nil {
		return map[string]any{"content": []map[string]any{}}
	}

	content := make([]map[string]any, 0, len(result.Content))

	for _, c := range result.Content {
		switch v := c.(type) {
		case *mcp.TextContent:
			content = append(content, map[string]any{"type": "text", "text": v.Text})
		case *mcp.ImageContent:
			content = append(content, map[string]any{
				"type": "image", "data": v.Data, "mimeType": v.MIMEType,
			})
		case *mcp.AudioContent:
			content = append(content, map[string]any{
				"type": "audio", "data": v.Data, "mimeType": v.MIMEType,
			})
		case *mcp.ResourceLink:
			content = append(content, map[string]any{
				"type": "resource_link", "uri": v.URI, "name": v.Name,
			})
		}
	}

	out := map[string]any{"content": content}
	if result.IsError {
		out["is_error"] = true
	}

	return out
}

func errorContent(message string) map[string]any {
	return map[string]any{
		"content":  []map[string]any{{"type": "text", "text": message}},
		"is_error": true,
	}
}

func rpcResult(msgID any, result map[string]any) map[string]any {
	return map[string]any{
		"mcp_response": map[string]any{"jsonrpc": "2.0", "id": msgID, "result": result},
	}
}

func rpcError(msgID any, code int, message string) map[string]any {
	return map[string]any{
		"mcp_response": map[string]any{
			"jsonrpc": "2.0",
			"id":      msgID,
			"error":   map[string]any{"code": code, "message": message},
		},
	}
}

func normalizeID(id any) any {
	if f, ok := id.(float64); ok {
		return int(f)
	}

	return id
}

func asMap(v any) map[string]any {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	var out map[string]any
	if json.Unmarshal(data, &out) != nil {
		return nil
	}

	return out
}
