package agentclient

import "encoding/json"

// Content block discriminator values.
const (
	BlockTypeText       = "text"
	BlockTypeThinking   = "thinking"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

// ContentBlock is one block inside an assistant or user message. Switch on
// the concrete type to consume it.
type ContentBlock interface {
	BlockType() string
}

var (
	_ ContentBlock = (*TextBlock)(nil)
	_ ContentBlock = (*ThinkingBlock)(nil)
	_ ContentBlock = (*ToolUseBlock)(nil)
	_ ContentBlock = (*ToolResultBlock)(nil)
)

// TextBlock is plain text.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (b *TextBlock) BlockType() string { return BlockTypeText }

// ThinkingBlock carries the model's reasoning trace.
type ThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature"`
}

func (b *ThinkingBlock) BlockType() string { return BlockTypeThinking }

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (b *ToolUseBlock) BlockType() string { return BlockTypeToolUse }

// ToolResultBlock is the outcome of a tool invocation.
//
//nolint:tagliatelle // wire protocol uses snake_case
type ToolResultBlock struct {
	Type      string         `json:"type"`
	ToolUseID string         `json:"tool_use_id"`
	Content   []ContentBlock `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

func (b *ToolResultBlock) BlockType() string { return BlockTypeToolResult }

// UnmarshalJSON accepts both string content and block-array content.
func (b *ToolResultBlock) UnmarshalJSON(data []byte) error {
	type alias ToolResultBlock

	aux := &struct {
		Content json.RawMessage `json:"content,omitempty"`
		*alias
	}{alias: (*alias)(b)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Content) == 0 || string(aux.Content) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.Content, &text); err == nil {
		b.Content = []ContentBlock{&TextBlock{Type: BlockTypeText, Text: text}}

		return nil
	}

	blocks, err := decodeBlockArray(aux.Content)
	if err != nil {
		return err
	}

	b.Content = blocks

	return nil
}

// decodeBlock decodes one content block by its type discriminator. Unknown
// block types degrade to TextBlock so new process versions do not break
// consumers.
func decodeBlock(data []byte) (ContentBlock, error) {
	var head struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var block ContentBlock

	switch head.Type {
	case BlockTypeThinking:
		block = &ThinkingBlock{}
	case BlockTypeToolUse:
		block = &ToolUseBlock{}
	case BlockTypeToolResult:
		block = &ToolResultBlock{}
	default:
		block = &TextBlock{}
	}

	if err := json.Unmarshal(data, block); err != nil {
		return nil, err
	}

	return block, nil
}

func decodeBlockArray(data []byte) ([]ContentBlock, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}

	blocks := make([]ContentBlock, 0, len(raws))

	for _, raw := range raws {
		block, err := decodeBlock(raw)
		if err != nil {
			return nil, err
		}

		blocks = append(blocks, block)
	}

	return blocks, nil
}

// MessageContent holds user message content that may be a bare string or a
// block list on the wire.
type MessageContent struct {
	text   *string
	blocks []ContentBlock
}

// Text builds string content.
func Text(s string) MessageContent {
	return MessageContent{text: &s}
}

// Blocks builds block-list content.
func Blocks(blocks ...ContentBlock) MessageContent {
	return MessageContent{blocks: blocks}
}

// IsString reports whether the content arrived as a bare string.
func (c *MessageContent) IsString() bool { return c.text != nil }

// String returns the string form, or "" for block content.
func (c *MessageContent) String() string {
	if c.text != nil {
		return *c.text
	}

	return ""
}

// AsBlocks returns the content as blocks, lifting a string into a single
// TextBlock.
func (c *MessageContent) AsBlocks() []ContentBlock {
	if c.blocks != nil {
		return c.blocks
	}

	if c.text != nil {
		return []ContentBlock{&TextBlock{Type: BlockTypeText, Text: *c.text}}
	}

	return nil
}

// MarshalJSON preserves the original shape.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.text != nil {
		return json.Marshal(*c.text)
	}

	return json.Marshal(c.blocks)
}

// UnmarshalJSON accepts either shape.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.text = &text
		c.blocks = nil

		return nil
	}

	blocks, err := decodeBlockArray(data)
	if err != nil {
		return err
	}

	c.blocks = blocks
	c.text = nil

	return nil
}
