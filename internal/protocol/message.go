// Package protocol defines the provider-neutral message shapes that every
// wire-format adapter normalizes to and from. The agent runtime only ever
// sees these types; no provider SDK type crosses a package boundary.
package protocol

import "encoding/json"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason is the normalized finish signal for a model turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)

// BlockType discriminates the Block union.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// Block is a tagged union over the four content block kinds a Message can
// carry. Only the fields relevant to Type are populated; the rest are zero.
type Block struct {
	Type BlockType `json:"type"`

	// TextBlock
	Text string `json:"text,omitempty"`

	// ToolUseBlock
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// ToolResultBlock
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// ImageBlock
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// TextBlock constructs a text content block.
func TextBlock(text string) Block { return Block{Type: BlockText, Text: text} }

// ToolUseBlock constructs a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) Block {
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlockOf constructs a tool_result content block.
func ToolResultBlockOf(toolUseID, content string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ImageBlockOf constructs an image content block.
func ImageBlockOf(mediaType, data string) Block {
	return Block{Type: BlockImage, MediaType: mediaType, Data: data}
}

// Message is one turn in the normalized conversation.
type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// Usage reports token accounting for a single model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the normalized result of one model call.
type Response struct {
	StopReason StopReason `json:"stop_reason"`
	Content    []Block    `json:"content"`
	Usage      Usage      `json:"usage"`
}

// Text concatenates all text blocks in the response, in order.
func (r *Response) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every tool_use block in the response, in order.
func (r *Response) ToolUses() []Block {
	var out []Block
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// HasImages reports whether the message carries any image blocks.
func (m Message) HasImages() bool {
	for _, b := range m.Content {
		if b.Type == BlockImage {
			return true
		}
	}
	return false
}

// StripImages returns a copy of the message with image blocks removed.
func (m Message) StripImages() Message {
	kept := make([]Block, 0, len(m.Content))
	for _, b := range m.Content {
		if b.Type != BlockImage {
			kept = append(kept, b)
		}
	}
	return Message{Role: m.Role, Content: kept}
}

// Tool describes one callable tool in provider-neutral form, passed to
// encode_request so each adapter can render it in its own wire shape.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}
