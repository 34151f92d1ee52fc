package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveFallsBackToDefaultsForUnknownAgent(t *testing.T) {
	cfg := Config{Defaults: Settings{Model: "gpt-4o", MaxTokens: 2048}}
	resolved := cfg.Resolve("nonexistent")
	assert.Equal(t, "gpt-4o", resolved.Model)
	assert.Equal(t, 2048, resolved.MaxTokens)
	assert.Equal(t, "builtin", resolved.Engine)
	assert.Equal(t, "minimal", resolved.ToolProfile)
}

func TestResolveMergesNamedAgentOverOnlyNonZeroFields(t *testing.T) {
	cfg := Config{
		Defaults: Settings{Model: "gpt-4o", SystemPrompt: "be helpful", MaxTokens: 2048},
		Agents: map[string]Settings{
			"support": {Model: "gpt-4o-mini"},
		},
	}
	resolved := cfg.Resolve("support")
	assert.Equal(t, "gpt-4o-mini", resolved.Model)
	assert.Equal(t, "be helpful", resolved.SystemPrompt)
	assert.Equal(t, 2048, resolved.MaxTokens)
}

func TestResolveEmptyAgentIDUsesMain(t *testing.T) {
	cfg := Config{
		Defaults: Settings{Model: "gpt-4o"},
		Agents:   map[string]Settings{"main": {Model: "claude-3-5-sonnet-latest"}},
	}
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.Resolve("").Model)
}

func TestResolveUnknownAgentStillInheritsMainOverride(t *testing.T) {
	cfg := Config{
		Defaults: Settings{Model: "gpt-4o"},
		Agents:   map[string]Settings{"main": {Model: "claude-3-5-sonnet-latest"}},
	}
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.Resolve("unrelated-agent").Model)
}

func TestResolveDefaultsMaxTokensWhenUnset(t *testing.T) {
	cfg := Config{Defaults: Settings{Model: "gpt-4o"}}
	assert.Equal(t, DefaultMaxTokens, cfg.Resolve("main").MaxTokens)
}

func TestResolveMaxIterationsEnvOverride(t *testing.T) {
	t.Setenv("AGENT_MAX_TOOL_ITERATIONS", "3")
	assert.Equal(t, 3, resolveMaxIterations(DefaultMaxIterations))
}

func TestResolveMaxIterationsIgnoresInvalidEnvValue(t *testing.T) {
	t.Setenv("AGENT_MAX_TOOL_ITERATIONS", "not-a-number")
	assert.Equal(t, 7, resolveMaxIterations(7))
}

func TestResolveMaxIterationsFallsBackToDefaultWhenConfiguredIsZero(t *testing.T) {
	t.Setenv("AGENT_MAX_TOOL_ITERATIONS", "")
	assert.Equal(t, DefaultMaxIterations, resolveMaxIterations(0))
}

func TestEnvModelIDTrimsWhitespace(t *testing.T) {
	t.Setenv("MODEL_ID", "  gpt-4o  ")
	assert.Equal(t, "gpt-4o", envModelID())
}

func TestEnvModelIDEmptyWhenUnset(t *testing.T) {
	t.Setenv("MODEL_ID", "")
	assert.Equal(t, "", envModelID())
}
