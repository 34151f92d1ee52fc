package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/djun/bashclaw/internal/sessions"
)

// metaSessionKey is the meta entry key external engines use to persist
// their own resumable session id.
const metaSessionKey = "cc_session_id"

// DefaultExternalEngineTimeout bounds one external-CLI invocation.
const DefaultExternalEngineTimeout = 120 * time.Second

// ExternalEngine delegates a turn to an external CLI binary, built on the
// same command-construction idiom as the shell tool
// (os/exec.CommandContext, bounded timeout) adapted from "run an arbitrary
// shell command" to "invoke one named engine binary with a fixed argument
// shape".
type ExternalEngine struct {
	// Name is the engine identifier used in agent config ("claude", "codex").
	Name string
	// Binary is the executable to invoke; defaults to Name if empty.
	Binary  string
	Timeout time.Duration
}

// externalResult is the JSON object the CLI is expected to print to stdout
// on success.
type externalResult struct {
	Result    string         `json:"result"`
	SessionID string         `json:"session_id"`
	IsError   bool           `json:"is_error"`
	Usage     map[string]any `json:"usage,omitempty"`
}

// subcommandEnvelope wraps the user message in a <bashclaw-context>
// envelope enumerating the bashclaw sub-commands the external engine may
// invoke back into this binary.
func subcommandEnvelope(userText string) string {
	var b strings.Builder
	b.WriteString("<bashclaw-context>\n")
	b.WriteString("Available bashclaw sub-commands: bashclaw chat, bashclaw mcp, bashclaw config\n")
	b.WriteString("</bashclaw-context>\n\n")
	b.WriteString(userText)
	return b.String()
}

// Run invokes the engine binary once. resumeSessionID, if non-empty, is
// passed as --resume <id> so the external CLI continues its own
// conversation state. Invalid JSON or empty stdout yields an empty result
// with no error.
func (e *ExternalEngine) Run(ctx context.Context, userText, resumeSessionID string) (externalResult, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExternalEngineTimeout
	}
	binary := e.Binary
	if binary == "" {
		binary = e.Name
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{}
	if resumeSessionID != "" {
		args = append(args, "--resume", resumeSessionID)
	}

	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Stdin = strings.NewReader(subcommandEnvelope(userText))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// A failed exec surfaces no error to the caller; the zero-value
		// result yields empty text, identical to a parse failure.
		return externalResult{}, nil
	}

	var parsed externalResult
	if stdout.Len() == 0 {
		return externalResult{}, nil
	}
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &parsed); err != nil {
		return externalResult{}, nil
	}
	return parsed, nil
}

// runExternal delegates the turn to an external CLI engine, persists its
// session id as a meta entry so later turns can --resume it, and returns
// its text unchanged.
func (rt *Runtime) runExternal(ctx context.Context, agentID string, agentCfg Settings, userText, channel, sender string) (string, error) {
	engine, ok := rt.Engines[agentCfg.Engine]
	if !ok {
		return "", fmt.Errorf("agent: no external engine configured for %q", agentCfg.Engine)
	}

	path := rt.Sessions.Path(agentID, channel, sender, rt.Scope)
	mu := rt.turnLock(path)
	mu.Lock()
	defer mu.Unlock()

	if err := rt.Sessions.Append(ctx, path, sessions.NewUserEntry(userText, rt.clock.now())); err != nil {
		return "", fmt.Errorf("agent: append user entry: %w", err)
	}

	resumeID := rt.lastMetaValue(path, metaSessionKey)

	result, err := engine.Run(ctx, userText, resumeID)
	if err != nil {
		return rt.finalizeError(ctx, path, fmt.Sprintf("provider error: %v", err))
	}

	if result.SessionID != "" && result.SessionID != resumeID {
		if err := rt.Sessions.Append(ctx, path, sessions.NewMetaEntry(metaSessionKey, result.SessionID, rt.clock.now())); err != nil {
			rt.logger().Warn("agent: append meta entry failed", "session", path, "error", err)
		}
	}

	if result.Result == "" {
		// Empty engine output is the one case where the caller gets an
		// empty reply with no error; nothing is persisted for it.
		return rt.finalize(ctx, path, "")
	}

	if err := rt.Sessions.Append(ctx, path, sessions.NewAssistantEntry(result.Result, rt.clock.now())); err != nil {
		return "", fmt.Errorf("agent: append assistant entry: %w", err)
	}
	return rt.finalize(ctx, path, result.Result)
}

// lastMetaValue returns the most recent meta entry's value for key, or ""
// if none exists.
func (rt *Runtime) lastMetaValue(path, key string) string {
	entries, err := rt.Sessions.Load(path, 0)
	if err != nil {
		return ""
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == sessions.EntryMeta && entries[i].Key == key {
			return entries[i].Value
		}
	}
	return ""
}
