// Package bootstrap wires the agent runtime, tool registry and session
// store together the way cmd/bashclaw's subcommands need: one shared
// construction path so "serve", "chat" and "mcp" never duplicate how a
// Runtime gets built from one loaded Config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djun/bashclaw/internal/agent"
	"github.com/djun/bashclaw/internal/catalog"
	bashclawconfig "github.com/djun/bashclaw/internal/config"
	"github.com/djun/bashclaw/internal/mcpbridge"
	"github.com/djun/bashclaw/internal/observability"
	"github.com/djun/bashclaw/internal/providers"
	"github.com/djun/bashclaw/internal/sessions"
	"github.com/djun/bashclaw/internal/tools"
	"github.com/djun/bashclaw/internal/tools/cron"
	"github.com/djun/bashclaw/internal/tools/files"
	"github.com/djun/bashclaw/internal/tools/introspect"
	"github.com/djun/bashclaw/internal/tools/memory"
	"github.com/djun/bashclaw/internal/tools/message"
	"github.com/djun/bashclaw/internal/tools/shell"
	"github.com/djun/bashclaw/internal/tools/subagent"
	"github.com/djun/bashclaw/internal/tools/websearch"
)

// App bundles everything a cmd/bashclaw subcommand needs.
type App struct {
	Runtime  *agent.Runtime
	Registry *tools.Registry
	Messages *message.Registry
	Config   *bashclawconfig.File
	StateDir string
	Metrics  *observability.Metrics

	// TraceShutdown flushes pending spans; serve defers it on exit.
	TraceShutdown func(context.Context) error
}

// processMetrics builds the Prometheus instrument set exactly once per
// process: the default registry rejects duplicate registration, and Load
// may run more than once (serve after a failed first config load, tests).
var (
	metricsOnce sync.Once
	metricsSet  *observability.Metrics
)

func processMetrics() *observability.Metrics {
	metricsOnce.Do(func() { metricsSet = observability.NewMetrics() })
	return metricsSet
}

// StateDir resolves BASHCLAW_STATE_DIR, defaulting to ~/.bashclaw.
func StateDir() string {
	if dir := os.Getenv("BASHCLAW_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bashclaw"
	}
	return filepath.Join(home, ".bashclaw")
}

// Load builds the full App from a config file path (may be empty, meaning
// "use built-in defaults only") and the resolved state directory.
func Load(configPath string) (*App, error) {
	stateDir := StateDir()
	for _, sub := range []string{"sessions", "memory", "cron", "spawn", "cache", "logs"} {
		if err := os.MkdirAll(filepath.Join(stateDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("bootstrap: create state dir: %w", err)
		}
	}

	var file bashclawconfig.File
	if configPath != "" {
		loaded, err := bashclawconfig.Load(configPath)
		if err != nil {
			return nil, err
		}
		file = *loaded
	}

	logger := slog.Default()
	store := sessions.New(filepath.Join(stateDir, "sessions"), logger)

	metrics := processMetrics()
	tracer, traceShutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "bashclaw",
		ServiceVersion: "0.1.0",
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
	})

	registry := tools.NewRegistry()
	registry.Register(files.NewReadTool(stateDir))
	registry.Register(files.NewWriteTool(stateDir))
	registry.Register(files.NewListTool(stateDir))
	registry.Register(files.NewSearchTool(stateDir))
	registry.Register(shell.New(stateDir, shell.DefaultTimeout))
	registry.Register(memory.New(filepath.Join(stateDir, "memory")))
	registry.Register(cron.New(filepath.Join(stateDir, "cron", "jobs.json")))
	registry.Register(websearch.NewFetchTool())
	registry.Register(websearch.NewSearchTool())

	msgRegistry := message.NewRegistry()
	registry.Register(message.New(msgRegistry))

	// rt is declared before the tools that delegate back into it (spawn,
	// agent_message) are built, and filled in below: both closures only
	// run at request time, once Load has returned a fully wired rt.
	rt := &agent.Runtime{}

	manager := subagent.NewManager(nil, 4)
	manager.SetStateDir(filepath.Join(stateDir, "spawn"))
	registry.Register(subagent.NewSpawnTool(manager))
	registry.Register(subagent.NewStatusTool(manager))

	registry.Register(introspect.NewAgentsListTool(staticAgentDirectory(file)))
	registry.Register(introspect.NewSessionsListTool(sessionLister{store}))
	registry.Register(introspect.NewSessionStatusTool(sessionLister{store}))
	registry.Register(introspect.NewAgentMessageTool(func(ctx context.Context, agentID, text string) (string, error) {
		return rt.Run(ctx, agentID, text, "agent_message", "")
	}))

	dispatch := tools.NewDispatcher(registry)
	dispatch.SetObservability(metrics, tracer)

	cat := catalog.Default
	if override := os.Getenv("ANTHROPIC_BASE_URL"); override != "" {
		if provider, ok := cat.Provider("anthropic"); ok {
			provider.BaseURL = override
			cat.RegisterProvider(provider)
		}
	}

	rt.Config = file.ToAgentConfig()
	rt.Catalog = cat
	rt.Sessions = store
	rt.Registry = registry
	rt.Dispatch = dispatch
	rt.Scope = file.Session.ToSessionScope()
	rt.MaxHistory = file.Session.MaxHistory
	rt.IdleResetMinutes = file.Session.IdleResetMinutes
	rt.MaxIterations = agent.DefaultMaxIterations
	rt.NewAdapter = func(p catalog.Provider) (providers.Adapter, error) {
		adapter, err := providers.New(p)
		if err != nil {
			return nil, err
		}
		return providers.Instrument(adapter, p.ID, metrics, tracer), nil
	}
	rt.Engines = map[string]*agent.ExternalEngine{
		"claude": {Name: "claude", Timeout: 120 * time.Second},
		"codex":  {Name: "codex", Timeout: 120 * time.Second},
	}
	rt.Logger = logger

	// Spawn's fresh-scope resolution (Open Question (c)): each task runs
	// under the "spawn" channel with a freshly generated uuid as its
	// sender id, never the caller's own session.
	manager.SetRunner(func(ctx context.Context, agentID, task string) (string, error) {
		return rt.Run(ctx, agentID, task, "spawn", uuid.NewString())
	})

	return &App{
		Runtime:       rt,
		Registry:      registry,
		Messages:      msgRegistry,
		Config:        &file,
		StateDir:      stateDir,
		Metrics:       metrics,
		TraceShutdown: traceShutdown,
	}, nil
}

// NewMCPServer builds the stdio MCP bridge over this app's tool registry.
// The bridge's dispatcher carries the same tool metrics as the runtime's.
func (a *App) NewMCPServer() *mcpbridge.Server {
	dispatch := tools.NewDispatcher(a.Registry)
	dispatch.SetObservability(a.Metrics, nil)
	return mcpbridge.New(a.Registry, dispatch, "bashclaw", "0.1.0", slog.Default())
}

type agentDirectory struct {
	file bashclawconfig.File
}

func staticAgentDirectory(file bashclawconfig.File) introspect.AgentDirectory {
	return agentDirectory{file: file}
}

// sessionLister adapts *sessions.Store to introspect.SessionLister by
// converting between the two packages' identically-shaped SessionInfo types.
type sessionLister struct {
	store *sessions.Store
}

func (l sessionLister) ListSessions() ([]introspect.SessionInfo, error) {
	infos, err := l.store.ListSessions()
	if err != nil {
		return nil, err
	}
	out := make([]introspect.SessionInfo, len(infos))
	for i, info := range infos {
		out[i] = introspect.SessionInfo{
			Path:         info.Path,
			EntryCount:   info.EntryCount,
			LastActiveMs: info.LastActiveMs,
		}
	}
	return out, nil
}

func (d agentDirectory) ListAgents() []introspect.AgentInfo {
	cfg := d.file.ToAgentConfig()
	out := []introspect.AgentInfo{{
		ID:          "main",
		Engine:      cfg.Defaults.Engine,
		Model:       cfg.Defaults.Model,
		ToolProfile: cfg.Defaults.ToolProfile,
	}}
	for id, s := range cfg.Agents {
		out = append(out, introspect.AgentInfo{ID: id, Engine: s.Engine, Model: s.Model, ToolProfile: s.ToolProfile})
	}
	return out
}
