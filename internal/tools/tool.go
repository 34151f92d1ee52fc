// Package tools implements the tool registry and dispatcher: a declarative
// table of named tools with JSON-schema inputs, resolved per-agent
// visibility, and the built-in tool set (web_fetch, web_search, shell,
// memory, cron, message, spawn, filesystem, introspection).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Result is the outcome of one tool invocation.
type Result struct {
	Content string
	IsError bool
}

// Errorf builds an error Result, JSON-encoding a single-sentence reason.
func Errorf(format string, args ...any) *Result {
	msg := fmt.Sprintf(format, args...)
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return &Result{Content: string(payload), IsError: true}
}

// JSONResult JSON-encodes payload as a successful Result.
func JSONResult(payload any) *Result {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Errorf("encode result: %v", err)
	}
	return &Result{Content: string(encoded)}
}

// Tool is one callable tool: a name, description, JSON-schema input shape,
// and a handler. Optional tools are only included in an agent's effective
// set when explicitly allowed; BridgeExposed tools are additionally
// visible over the MCP bridge.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Optional is implemented by tools that are excluded from the effective set
// unless explicitly allowed.
type Optional interface {
	Optional() bool
}

// BridgeExposed is implemented by tools safe to expose over the MCP bridge
// without session or shell context.
type BridgeExposed interface {
	BridgeExposed() bool
}

// Unavailable is implemented by tools whose required env var or command is
// absent at runtime, so the visibility formula can exclude them.
type Unavailable interface {
	Unavailable() bool
}
