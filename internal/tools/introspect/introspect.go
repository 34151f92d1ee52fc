// Package introspect implements the read-only status tools bashclaw's
// "status" tool group exposes: agents_list, sessions_list, session_status
// and agent_message. Each is a thin poll over "whatever
// AgentDirectory/SessionLister the host wires in" so this package never
// imports internal/agent (which imports internal/tools) or internal/sessions
// directly beyond the small interfaces below.
package introspect

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/djun/bashclaw/internal/tools"
)

// AgentInfo describes one configured agent.
type AgentInfo struct {
	ID          string `json:"id"`
	Engine      string `json:"engine"`
	Model       string `json:"model"`
	ToolProfile string `json:"tool_profile"`
}

// SessionInfo mirrors sessions.SessionInfo without importing that package,
// so this package's only dependency is the small interfaces below.
type SessionInfo struct {
	Path         string `json:"path"`
	EntryCount   int    `json:"entry_count"`
	LastActiveMs int64  `json:"last_active_ms"`
}

// AgentDirectory answers "what agents are configured" for agents_list.
type AgentDirectory interface {
	ListAgents() []AgentInfo
}

// SessionLister answers "what sessions exist on disk" for sessions_list
// and session_status.
type SessionLister interface {
	ListSessions() ([]SessionInfo, error)
}

// Messenger delivers a message to another configured agent's session for
// agent_message, run through the same Runner shape
// internal/tools/subagent uses so this package stays decoupled from
// internal/agent.
type Messenger func(ctx context.Context, agentID, text string) (string, error)

// AgentsListTool reports the statically configured agent roster.
type AgentsListTool struct {
	Directory AgentDirectory
}

func NewAgentsListTool(dir AgentDirectory) *AgentsListTool { return &AgentsListTool{Directory: dir} }

func (t *AgentsListTool) Name() string { return "agents_list" }
func (t *AgentsListTool) Description() string {
	return "List configured agents and their model/tool profile."
}
func (t *AgentsListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *AgentsListTool) Execute(_ context.Context, _ json.RawMessage) (*tools.Result, error) {
	if t.Directory == nil {
		return tools.JSONResult(map[string]any{"agents": []AgentInfo{}}), nil
	}
	return tools.JSONResult(map[string]any{"agents": t.Directory.ListAgents()}), nil
}

// SessionsListTool reports every session file's size and last activity.
type SessionsListTool struct {
	Lister SessionLister
}

func NewSessionsListTool(lister SessionLister) *SessionsListTool {
	return &SessionsListTool{Lister: lister}
}

func (t *SessionsListTool) Name() string { return "sessions_list" }
func (t *SessionsListTool) Description() string {
	return "List known session logs with entry counts and last activity."
}
func (t *SessionsListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *SessionsListTool) Execute(_ context.Context, _ json.RawMessage) (*tools.Result, error) {
	if t.Lister == nil {
		return tools.JSONResult(map[string]any{"sessions": []SessionInfo{}}), nil
	}
	sessions, err := t.Lister.ListSessions()
	if err != nil {
		return tools.Errorf("list sessions: %v", err), nil
	}
	return tools.JSONResult(map[string]any{"sessions": sessions}), nil
}

// SessionStatusTool reports one session's status by path substring match.
type SessionStatusTool struct {
	Lister SessionLister
}

func NewSessionStatusTool(lister SessionLister) *SessionStatusTool {
	return &SessionStatusTool{Lister: lister}
}

func (t *SessionStatusTool) Name() string { return "session_status" }
func (t *SessionStatusTool) Description() string {
	return "Look up one session's entry count and last activity by path fragment."
}
func (t *SessionStatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string", "description": "Full or partial session file path."}},
		"required": ["path"]
	}`)
}

func (t *SessionStatusTool) Execute(_ context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return tools.Errorf("path is required"), nil
	}
	if t.Lister == nil {
		return tools.Errorf("session %q not found", input.Path), nil
	}
	sessions, err := t.Lister.ListSessions()
	if err != nil {
		return tools.Errorf("list sessions: %v", err), nil
	}
	for _, s := range sessions {
		if strings.Contains(s.Path, input.Path) {
			return tools.JSONResult(s), nil
		}
	}
	return tools.Errorf("session %q not found", input.Path), nil
}

// AgentMessageTool delivers text to another configured agent's session and
// returns that agent's reply synchronously.
type AgentMessageTool struct {
	Send Messenger
}

func NewAgentMessageTool(send Messenger) *AgentMessageTool { return &AgentMessageTool{Send: send} }

func (t *AgentMessageTool) Name() string { return "agent_message" }
func (t *AgentMessageTool) Description() string {
	return "Send text to another configured agent and return its reply."
}
func (t *AgentMessageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"agent_id": {"type": "string"},
			"text": {"type": "string"}
		},
		"required": ["agent_id", "text"]
	}`)
}

func (t *AgentMessageTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		AgentID string `json:"agent_id"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.AgentID) == "" {
		return tools.Errorf("agent_id is required"), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return tools.Errorf("text is required"), nil
	}
	if t.Send == nil {
		return tools.Errorf("agent messaging is not configured"), nil
	}
	reply, err := t.Send(ctx, input.AgentID, input.Text)
	if err != nil {
		return tools.Errorf("message agent %s: %v", input.AgentID, err), nil
	}
	return tools.JSONResult(map[string]any{"reply": reply}), nil
}
