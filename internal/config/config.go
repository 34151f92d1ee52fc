// Package config loads bashclaw's JSON configuration file: the
// agents.defaults / agents.<id> settings block and the top-level session
// block. Decoding goes through json5 with $VAR expansion applied to the
// raw text first, and unknown keys are ignored rather than rejected.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/djun/bashclaw/internal/agent"
	"github.com/djun/bashclaw/internal/sessions"
)

// AgentSettings is the on-disk shape of one agents.defaults / agents.<id>
// block.
type AgentSettings struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"systemPrompt"`
	MaxTokens    int      `json:"maxTokens"`
	Temperature  float64  `json:"temperature"`
	Tools        []string `json:"tools"`
	ToolDeny     []string `json:"toolDeny"`
	Engine       string   `json:"engine"`
	Profile      string   `json:"profile"`
}

// SessionSettings is the on-disk shape of the top-level "session" block.
type SessionSettings struct {
	Scope            string `json:"scope"`
	MaxHistory       int    `json:"maxHistory"`
	IdleResetMinutes int    `json:"idleResetMinutes"`
}

// File is the full config file shape: agent defaults/overrides plus the
// top-level session block.
type File struct {
	Agents struct {
		Defaults AgentSettings            `json:"defaults"`
		Named    map[string]AgentSettings `json:"-"`
	} `json:"agents"`
	Session SessionSettings `json:"session"`
}

// MarshalJSON renders Named back under its own config keys alongside
// defaults, so `bashclaw config print` shows exactly what was loaded even
// though Named is decoded by hand in Load rather than via struct tags.
func (f *File) MarshalJSON() ([]byte, error) {
	agents := make(map[string]any, len(f.Agents.Named)+1)
	agents["defaults"] = f.Agents.Defaults
	for id, s := range f.Agents.Named {
		agents[id] = s
	}
	return json.Marshal(struct {
		Agents  map[string]any  `json:"agents"`
		Session SessionSettings `json:"session"`
	}{Agents: agents, Session: f.Session})
}

// Load reads and json5-decodes path, expanding $VAR references in the raw
// text first.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var raw map[string]any
	if err := json5.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var file File
	if agentsRaw, ok := raw["agents"].(map[string]any); ok {
		if defaultsRaw, ok := agentsRaw["defaults"]; ok {
			if err := decodeInto(defaultsRaw, &file.Agents.Defaults); err != nil {
				return nil, fmt.Errorf("config: agents.defaults: %w", err)
			}
		}
		file.Agents.Named = make(map[string]AgentSettings)
		for key, val := range agentsRaw {
			if key == "defaults" {
				continue
			}
			var settings AgentSettings
			if err := decodeInto(val, &settings); err != nil {
				return nil, fmt.Errorf("config: agents.%s: %w", key, err)
			}
			file.Agents.Named[key] = settings
		}
	}
	if sessionRaw, ok := raw["session"]; ok {
		if err := decodeInto(sessionRaw, &file.Session); err != nil {
			return nil, fmt.Errorf("config: session: %w", err)
		}
	}
	return &file, nil
}

// decodeInto round-trips a decoded json5 value (plain map[string]any/
// []any/string/float64/bool, the shapes encoding/json already understands)
// through encoding/json into a typed struct, so unknown nested keys are
// silently dropped.
func decodeInto(raw any, dst any) error {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, dst)
}

// ToAgentConfig converts the on-disk shape into the agent package's
// resolved Config, copying each agent's tool profile/allow/deny lists as
// written; group references in them are expanded later by the runtime.
func (f *File) ToAgentConfig() agent.Config {
	cfg := agent.Config{
		Defaults: toSettings(f.Agents.Defaults),
		Agents:   make(map[string]agent.Settings, len(f.Agents.Named)),
	}
	for id, s := range f.Agents.Named {
		cfg.Agents[id] = toSettings(s)
	}
	return cfg
}

func toSettings(s AgentSettings) agent.Settings {
	return agent.Settings{
		Engine:       s.Engine,
		Model:        s.Model,
		SystemPrompt: s.SystemPrompt,
		MaxTokens:    s.MaxTokens,
		Temperature:  s.Temperature,
		ToolAllow:    s.Tools,
		ToolDeny:     s.ToolDeny,
		ToolProfile:  s.Profile,
	}
}

// ToSessionScope resolves the configured scope string to a sessions.Scope,
// defaulting to per-sender.
func (s SessionSettings) ToSessionScope() sessions.Scope {
	switch strings.ToLower(strings.TrimSpace(s.Scope)) {
	case "per-channel":
		return sessions.ScopePerChannel
	case "global":
		return sessions.ScopeGlobal
	default:
		return sessions.ScopePerSender
	}
}
