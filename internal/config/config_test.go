package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djun/bashclaw/internal/sessions"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bashclaw.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDecodesDefaultsAndNamedAgents(t *testing.T) {
	path := writeConfig(t, `{
		"agents": {
			"defaults": {"model": "claude-3-5-sonnet-latest", "maxTokens": 4096, "profile": "standard"},
			"support": {"model": "gpt-4o-mini", "tools": ["memory", "web_fetch"]}
		},
		"session": {"scope": "per-channel", "maxHistory": 200, "idleResetMinutes": 30}
	}`)

	file, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "claude-3-5-sonnet-latest", file.Agents.Defaults.Model)
	assert.Equal(t, 4096, file.Agents.Defaults.MaxTokens)
	require.Contains(t, file.Agents.Named, "support")
	assert.Equal(t, "gpt-4o-mini", file.Agents.Named["support"].Model)
	assert.Equal(t, []string{"memory", "web_fetch"}, file.Agents.Named["support"].Tools)
	assert.Equal(t, sessions.ScopePerChannel, file.Session.ToSessionScope())
	assert.Equal(t, 30, file.Session.IdleResetMinutes)
}

func TestLoadExpandsEnvVarsBeforeParsing(t *testing.T) {
	t.Setenv("BASHCLAW_TEST_MODEL", "gpt-4o")
	path := writeConfig(t, `{"agents": {"defaults": {"model": "$BASHCLAW_TEST_MODEL"}}}`)

	file, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", file.Agents.Defaults.Model)
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	path := writeConfig(t, `{
		"agents": {"defaults": {"model": "gpt-4o", "unknownField": "whatever"}},
		"unknownTopLevel": {"nested": true}
	}`)

	file, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", file.Agents.Defaults.Model)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{not valid json`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSessionScopeDefaultsToPerSender(t *testing.T) {
	var s SessionSettings
	assert.Equal(t, sessions.ScopePerSender, s.ToSessionScope())

	s.Scope = "GLOBAL"
	assert.Equal(t, sessions.ScopeGlobal, s.ToSessionScope())
}

func TestToAgentConfigCarriesToolProfileAndLists(t *testing.T) {
	file := &File{}
	file.Agents.Defaults = AgentSettings{Model: "gpt-4o", Profile: "standard"}
	file.Agents.Named = map[string]AgentSettings{
		"sandboxed": {Model: "gpt-4o-mini", Tools: []string{"memory"}, ToolDeny: []string{"shell"}},
	}

	cfg := file.ToAgentConfig()
	assert.Equal(t, "standard", cfg.Defaults.ToolProfile)
	require.Contains(t, cfg.Agents, "sandboxed")
	assert.Equal(t, []string{"memory"}, cfg.Agents["sandboxed"].ToolAllow)
	assert.Equal(t, []string{"shell"}, cfg.Agents["sandboxed"].ToolDeny)
}

func TestMarshalJSONIncludesNamedAgentsAlongsideDefaults(t *testing.T) {
	file := &File{}
	file.Agents.Defaults = AgentSettings{Model: "gpt-4o"}
	file.Agents.Named = map[string]AgentSettings{
		"support": {Model: "gpt-4o-mini"},
	}

	encoded, err := json.Marshal(file)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	agents := decoded["agents"].(map[string]any)
	assert.Contains(t, agents, "defaults")
	assert.Contains(t, agents, "support")
}
