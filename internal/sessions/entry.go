package sessions

import "encoding/json"

// EntryType discriminates the Entry tagged variant.
type EntryType string

const (
	EntryUser       EntryType = "user"
	EntryAssistant  EntryType = "assistant"
	EntryToolCall   EntryType = "tool_call"
	EntryToolResult EntryType = "tool_result"
	EntryMeta       EntryType = "meta"
)

// Entry is one line of a session JSONL file. It carries every field any
// entry type might need; unused fields are omitted on encode and ignored on
// decode by type.
type Entry struct {
	Type EntryType `json:"type"`
	TsMs int64     `json:"ts_ms"`

	// user / assistant
	Content string `json:"content,omitempty"`

	// tool_call
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	ToolID    string          `json:"tool_id,omitempty"`

	// tool_result (reuses ToolID above for the linking id, Content above for
	// the result payload)
	IsError bool `json:"is_error,omitempty"`

	// meta
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// NewUserEntry builds a user turn entry.
func NewUserEntry(content string, tsMs int64) Entry {
	return Entry{Type: EntryUser, Content: content, TsMs: tsMs}
}

// NewAssistantEntry builds an assistant turn entry.
func NewAssistantEntry(content string, tsMs int64) Entry {
	return Entry{Type: EntryAssistant, Content: content, TsMs: tsMs}
}

// NewToolCallEntry builds a tool_call entry.
func NewToolCallEntry(toolName string, input json.RawMessage, toolID string, tsMs int64) Entry {
	return Entry{Type: EntryToolCall, ToolName: toolName, ToolInput: input, ToolID: toolID, TsMs: tsMs}
}

// NewToolResultEntry builds a tool_result entry.
func NewToolResultEntry(toolID, content string, isError bool, tsMs int64) Entry {
	return Entry{Type: EntryToolResult, ToolID: toolID, Content: content, IsError: isError, TsMs: tsMs}
}

// NewMetaEntry builds a meta (opaque K/V) entry.
func NewMetaEntry(key, value string, tsMs int64) Entry {
	return Entry{Type: EntryMeta, Key: key, Value: value, TsMs: tsMs}
}
