package agentclient

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/moonbase-labs/agentclient-go/internal/sdkerr"
)

// Message is any event on the session stream. Switch on the concrete type
// to consume it.
type Message interface {
	MessageType() string
}

var (
	_ Message = (*UserMessage)(nil)
	_ Message = (*AssistantMessage)(nil)
	_ Message = (*SystemMessage)(nil)
	_ Message = (*ResultMessage)(nil)
	_ Message = (*StreamEvent)(nil)
)

// UserMessage is a user turn echoed back on the stream, including synthetic
// turns carrying tool results.
//
//nolint:tagliatelle // wire protocol uses snake_case
type UserMessage struct {
	Type            string         `json:"type"`
	Content         MessageContent `json:"content"`
	UUID            *string        `json:"uuid,omitempty"`
	ParentToolUseID *string        `json:"parent_tool_use_id,omitempty"`
	ToolUseResult   map[string]any `json:"tool_use_result,omitempty"`
}

func (m *UserMessage) MessageType() string { return "user" }

// AssistantTurnError classifies why an assistant turn failed.
type AssistantTurnError string

// Assistant turn error values.
const (
	TurnErrorAuthFailed     AssistantTurnError = "authentication_failed"
	TurnErrorBilling        AssistantTurnError = "billing_error"
	TurnErrorRateLimit      AssistantTurnError = "rate_limit"
	TurnErrorInvalidRequest AssistantTurnError = "invalid_request"
	TurnErrorServer         AssistantTurnError = "server_error"
	TurnErrorUnknown        AssistantTurnError = "unknown"
)

// AssistantMessage is one assistant turn.
//
//nolint:tagliatelle // wire protocol uses snake_case
type AssistantMessage struct {
	Type            string              `json:"type"`
	Content         []ContentBlock      `json:"content"`
	Model           string              `json:"model"`
	ParentToolUseID *string             `json:"parent_tool_use_id,omitempty"`
	Error           *AssistantTurnError `json:"error,omitempty"`
}

func (m *AssistantMessage) MessageType() string { return "assistant" }

// Text concatenates the message's text blocks.
func (m *AssistantMessage) Text() string {
	var out string

	for _, block := range m.Content {
		if tb, ok := block.(*TextBlock); ok {
			out += tb.Text
		}
	}

	return out
}

// SystemMessage is an out-of-band notification from the process. Subtype
// identifies the event; fields beyond type and subtype land in Data.
type SystemMessage struct {
	Type    string         `json:"type"`
	Subtype string         `json:"subtype,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func (m *SystemMessage) MessageType() string { return "system" }

// Usage is the token accounting attached to a result.
//
//nolint:tagliatelle // wire protocol uses snake_case
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ResultMessage terminates one conversation turn with its outcome and
// accounting.
//
//nolint:tagliatelle // wire protocol uses snake_case
type ResultMessage struct {
	Type             string   `json:"type"`
	Subtype          string   `json:"subtype"`
	DurationMs       int      `json:"duration_ms"`
	DurationAPIMs    int      `json:"duration_api_ms"`
	IsError          bool     `json:"is_error"`
	NumTurns         int      `json:"num_turns"`
	SessionID        string   `json:"session_id"`
	TotalCostUSD     *float64 `json:"total_cost_usd,omitempty"`
	Usage            *Usage   `json:"usage,omitempty"`
	Result           *string  `json:"result,omitempty"`
	StructuredOutput any      `json:"structured_output,omitempty"`
}

func (m *ResultMessage) MessageType() string { return "result" }

// StreamEvent is a partial-output event, delivered only when partial
// messages are enabled. Event carries the raw API event untouched.
//
//nolint:tagliatelle // wire protocol uses snake_case
type StreamEvent struct {
	UUID            string         `json:"uuid"`
	SessionID       string         `json:"session_id"`
	Event           map[string]any `json:"event"`
	ParentToolUseID *string        `json:"parent_tool_use_id,omitempty"`
}

func (m *StreamEvent) MessageType() string { return "stream_event" }

// parseMessage turns a decoded frame body into a typed Message.
//
// An unrecognized type yields sdkerr.ErrUnknownMessageType so callers can
// skip the frame; malformed known types yield *sdkerr.ParseError.
func parseMessage(log *slog.Logger, data map[string]any) (Message, error) {
	msgType, ok := data["type"].(string)
	if !ok {
		return nil, &sdkerr.ParseError{
			Reason: "missing or invalid 'type' field",
			Data:   data,
		}
	}

	var (
		msg Message
		err error
	)

	switch msgType {
	case "user":
		msg, err = parseUserMessage(data)
	case "assistant":
		msg, err = parseAssistantMessage(data)
	case "system":
		msg, err = parseSystemMessage(data)
	case "result":
		msg, err = remarshal[ResultMessage](data)
	case "stream_event":
		msg, err = remarshal[StreamEvent](data)
	default:
		log.Debug("skipping unknown message type", "message_type", msgType)

		return nil, sdkerr.ErrUnknownMessageType
	}

	if err != nil {
		return nil, &sdkerr.ParseError{Reason: err.Error(), Err: err, Data: data}
	}

	return msg, nil
}

// parseUserMessage flattens the nested wire shape, where role and content
// live under "message" but correlation ids stay at the top level.
func parseUserMessage(data map[string]any) (*UserMessage, error) {
	body, ok := data["message"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("user message: missing 'message' field")
	}

	rawContent, ok := body["content"]
	if !ok {
		return nil, fmt.Errorf("user message: missing content")
	}

	contentJSON, err := json.Marshal(rawContent)
	if err != nil {
		return nil, fmt.Errorf("user message content: %w", err)
	}

	msg := &UserMessage{Type: "user"}

	if err := json.Unmarshal(contentJSON, &msg.Content); err != nil {
		return nil, fmt.Errorf("user message content: %w", err)
	}

	if uuid, ok := data["uuid"].(string); ok {
		msg.UUID = &uuid
	}

	if parentID, ok := data["parent_tool_use_id"].(string); ok {
		msg.ParentToolUseID = &parentID
	}

	if result, ok := data["tool_use_result"].(map[string]any); ok {
		msg.ToolUseResult = result
	}

	return msg, nil
}

func parseAssistantMessage(data map[string]any) (*AssistantMessage, error) {
	body, ok := data["message"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("assistant message: missing 'message' field")
	}

	msg := &AssistantMessage{Type: "assistant"}

	if rawContent, ok := body["content"]; ok {
		contentJSON, err := json.Marshal(rawContent)
		if err != nil {
			return nil, fmt.Errorf("assistant content: %w", err)
		}

		blocks, err := decodeBlockArray(contentJSON)
		if err != nil {
			return nil, fmt.Errorf("assistant content: %w", err)
		}

		msg.Content = blocks
	}

	if model, ok := body["model"].(string); ok {
		msg.Model = model
	}

	if parentID, ok := data["parent_tool_use_id"].(string); ok {
		msg.ParentToolUseID = &parentID
	}

	// The process reports turn failures at the top level, not inside the
	// nested message.
	if errVal, ok := data["error"].(string); ok {
		turnErr := AssistantTurnError(errVal)
		msg.Error = &turnErr
	}

	return msg, nil
}

func parseSystemMessage(data map[string]any) (*SystemMessage, error) {
	subtype, ok := data["subtype"].(string)
	if !ok {
		return nil, fmt.Errorf("system message: missing 'subtype' field")
	}

	msg := &SystemMessage{Type: "system", Subtype: subtype}

	if payload, ok := data["data"].(map[string]any); ok {
		msg.Data = payload

		return msg, nil
	}

	// Init events carry their fields at the root of the frame.
	msg.Data = make(map[string]any, len(data))

	for k, v := range data {
		if k != "type" && k != "subtype" {
			msg.Data[k] = v
		}
	}

	return msg, nil
}

// remarshal round-trips a map through JSON so struct tags drive the decode.
func remarshal[T any](data map[string]any) (*T, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
