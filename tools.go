package agentclient

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/moonbase-labs/agentclient-go/internal/toolserver"
)

// ToolServer is an in-process MCP server the agent reaches over the control
// channel. No separate process or socket is involved; tool calls execute in
// the host's address space.
type ToolServer = toolserver.Server

// Tool is an MCP tool definition.
type Tool = mcp.Tool

// ToolHandler executes one tool call.
type ToolHandler = mcp.ToolHandler

// CallToolRequest is the request passed to a ToolHandler.
type CallToolRequest = mcp.CallToolRequest

// CallToolResult is a tool call outcome.
type CallToolResult = mcp.CallToolResult

// NewToolServer creates an in-process tool server. Register it via
// WithToolServers; the agent sees its tools as mcp__<name>__<tool>.
func NewToolServer(name, version string) *ToolServer {
	return toolserver.New(name, version)
}

// NewTool builds a tool definition from name, description, and input
// schema.
func NewTool(name, description string, inputSchema *jsonschema.Schema) *Tool {
	return toolserver.NewTool(name, description, inputSchema)
}

// SimpleSchema builds an object schema from property-name to Go-type-name
// pairs, all required.
func SimpleSchema(props map[string]string) *jsonschema.Schema {
	return toolserver.SimpleSchema(props)
}

// TextResult builds a successful text tool result.
func TextResult(text string) *CallToolResult {
	return toolserver.TextResult(text)
}

// ErrorResult builds a failed tool result carrying message.
func ErrorResult(message string) *CallToolResult {
	return toolserver.ErrorResult(message)
}

// ToolArguments unmarshals a tool call's arguments into a map.
func ToolArguments(req *CallToolRequest) (map[string]any, error) {
	return toolserver.Arguments(req)
}

func toolserverNotFound(msgID any, serverName string) map[string]any {
	return toolserver.NotFoundResponse(msgID, serverName)
}
