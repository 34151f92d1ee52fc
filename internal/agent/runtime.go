package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/djun/bashclaw/internal/catalog"
	"github.com/djun/bashclaw/internal/protocol"
	"github.com/djun/bashclaw/internal/providers"
	"github.com/djun/bashclaw/internal/sessions"
	"github.com/djun/bashclaw/internal/tools"
	"github.com/djun/bashclaw/internal/tools/policy"
)

// budgetExhaustedText is the synthetic assistant note emitted when the
// iteration budget runs out with the model still asking for tools.
const budgetExhaustedText = "tool-loop budget exhausted"

// Runtime drives the agent tool loop: resolve config, call the model,
// dispatch any requested tools, and persist every turn. One Runtime is
// shared process-wide; Run is safe for concurrent use, with turns for the
// same session serialized by turnLocks and turns for distinct sessions
// running in parallel.
type Runtime struct {
	Config   Config
	Catalog  *catalog.Catalog
	Sessions *sessions.Store
	Registry *tools.Registry
	Dispatch *tools.Dispatcher

	// Scope, MaxHistory and IdleResetMinutes come from the config file's
	// top-level "session" block.
	Scope            sessions.Scope
	MaxHistory       int
	IdleResetMinutes int

	// MaxIterations is the config-resolved default; AGENT_MAX_TOOL_ITERATIONS
	// overrides it per call.
	MaxIterations int

	// Engines maps an engine name ("claude", "codex") to its delegate.
	// Engines not present here fail Run with a ConfigError.
	Engines map[string]*ExternalEngine

	// NewAdapter builds the provider adapter for one model call; defaults to
	// providers.New. Tests substitute a stub here to fixture model
	// responses without touching the network.
	NewAdapter func(catalog.Provider) (providers.Adapter, error)

	Logger *slog.Logger

	clock monotonicClock

	// turnLocks serializes whole turns per session path: two concurrent
	// handlers for the same (agent, channel, sender) run one after the
	// other, not interleaved. The store's own per-operation lock still
	// guards individual file writes underneath.
	turnLocks sync.Map // path -> *sync.Mutex
}

func (rt *Runtime) turnLock(path string) *sync.Mutex {
	mu, _ := rt.turnLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// monotonicClock hands out ts_ms values that are non-decreasing within a
// process even across calls that land in the same millisecond.
type monotonicClock struct {
	mu   sync.Mutex
	last int64
}

func (c *monotonicClock) now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

func (rt *Runtime) logger() *slog.Logger {
	if rt.Logger != nil {
		return rt.Logger
	}
	return slog.Default()
}

// Run is the top-level entry point: resolve the agent, run the bounded
// tool loop, and return the text the caller hands back to the originating
// channel.
func (rt *Runtime) Run(ctx context.Context, agentID, userText, channel, sender string) (string, error) {
	return rt.run(ctx, agentID, userText, nil, channel, sender)
}

// RunWithImages is Run plus inline image blocks on the user turn, for
// channels that can carry attachments. Images are never persisted to the
// session log; they are silently stripped if the resolved model lacks vision.
func (rt *Runtime) RunWithImages(ctx context.Context, agentID, userText string, images []protocol.Block, channel, sender string) (string, error) {
	return rt.run(ctx, agentID, userText, images, channel, sender)
}

func (rt *Runtime) run(ctx context.Context, agentID, userText string, images []protocol.Block, channel, sender string) (string, error) {
	// INIT
	if agentID == "" {
		agentID = "main"
	}
	agentCfg := rt.Config.Resolve(agentID)

	if agentCfg.Engine != "" && agentCfg.Engine != "builtin" && agentCfg.Engine != "auto" {
		return rt.runExternal(ctx, agentID, agentCfg, userText, channel, sender)
	}

	path := rt.Sessions.Path(agentID, channel, sender, rt.Scope)
	mu := rt.turnLock(path)
	mu.Lock()
	defer mu.Unlock()

	// PREPARE
	if _, err := rt.Sessions.CheckIdleReset(ctx, path, rt.IdleResetMinutes, rt.clock.now()); err != nil {
		rt.logger().Warn("agent: idle-reset check failed", "session", path, "error", err)
	}

	if err := rt.Sessions.Append(ctx, path, sessions.NewUserEntry(userText, rt.clock.now())); err != nil {
		return "", fmt.Errorf("agent: append user entry: %w", err)
	}

	entries, err := rt.Sessions.Load(path, rt.MaxHistory)
	if err != nil {
		return "", fmt.Errorf("agent: load session: %w", err)
	}
	messages := sessions.ProjectMessages(entries)

	model := rt.resolveModel(agentCfg)
	provider, ok := rt.Catalog.Provider(model.ProviderID)
	if !ok {
		text := fmt.Sprintf("configuration error: unknown provider %q for model %q", model.ProviderID, model.ID)
		return rt.finalizeError(ctx, path, text)
	}

	if len(images) > 0 && len(messages) > 0 {
		last := &messages[len(messages)-1]
		if last.Role == protocol.RoleUser {
			if model.SupportsVision {
				last.Content = append(last.Content, images...)
			} else {
				last.Content = append(last.Content, protocol.TextBlock("[image omitted: model lacks vision]"))
			}
		}
	}

	effectiveTools := rt.effectiveTools(agentCfg)
	toolSpecs := toolSpecsFor(effectiveTools)

	newAdapter := rt.NewAdapter
	if newAdapter == nil {
		newAdapter = providers.New
	}
	adapter, err := newAdapter(provider)
	if err != nil {
		return rt.finalizeError(ctx, path, fmt.Sprintf("configuration error: %v", err))
	}

	// maxCalls bounds how many model calls one turn may make; a configured
	// budget of 0 still allows the single initial call.
	maxCalls := resolveMaxIterations(rt.effectiveMaxIterations())
	if maxCalls < 1 {
		maxCalls = 1
	}

	// CALL_MODEL / DISPATCH_TOOLS loop.
	for call := 1; ; call++ {
		// A caller-supplied cancellation takes effect only between
		// iterations; the turn so far stays persisted and consistent.
		if call > 1 {
			if err := ctx.Err(); err != nil {
				return rt.finalizeError(ctx, path, fmt.Sprintf("provider error: %v", err))
			}
		}

		req := providers.CallRequest{
			Provider:    provider,
			Model:       model,
			System:      agentCfg.SystemPrompt,
			Messages:    messages,
			Tools:       toolSpecs,
			MaxTokens:   agentCfg.MaxTokens,
			Temperature: agentCfg.Temperature,
		}
		resp, callErr := adapter.Call(ctx, req)
		if callErr != nil {
			var provErr *providers.ProviderError
			msg := callErr.Error()
			if errors.As(callErr, &provErr) {
				msg = provErr.Error()
			}
			return rt.finalizeError(ctx, path, fmt.Sprintf("provider error: %s", msg))
		}

		text := resp.Text()
		assistantTs := rt.clock.now()
		if err := rt.Sessions.Append(ctx, path, sessions.NewAssistantEntry(text, assistantTs)); err != nil {
			return "", fmt.Errorf("agent: append assistant entry: %w", err)
		}
		toolUses := resp.ToolUses()
		for _, tu := range toolUses {
			if err := rt.Sessions.Append(ctx, path, sessions.NewToolCallEntry(tu.Name, tu.Input, tu.ID, rt.clock.now())); err != nil {
				return "", fmt.Errorf("agent: append tool_call entry: %w", err)
			}
		}

		assistantMsg := protocol.Message{Role: protocol.RoleAssistant, Content: resp.Content}
		messages = append(messages, assistantMsg)

		switch resp.StopReason {
		case protocol.StopEndTurn, protocol.StopMaxTokens:
			return rt.finalize(ctx, path, text)
		case protocol.StopError:
			return rt.finalizeError(ctx, path, "provider error: model returned an error stop reason")
		}

		if call >= maxCalls {
			if err := rt.Sessions.Append(ctx, path, sessions.NewAssistantEntry(budgetExhaustedText, rt.clock.now())); err != nil {
				return "", fmt.Errorf("agent: append budget entry: %w", err)
			}
			return rt.finalize(ctx, path, budgetExhaustedText)
		}

		// DISPATCH_TOOLS
		resultMsg := protocol.Message{Role: protocol.RoleUser}
		for _, tu := range toolUses {
			result := rt.Dispatch.Dispatch(ctx, effectiveTools, tu.Name, tu.Input)
			if err := rt.Sessions.Append(ctx, path, sessions.NewToolResultEntry(tu.ID, result.Content, result.IsError, rt.clock.now())); err != nil {
				return "", fmt.Errorf("agent: append tool_result entry: %w", err)
			}
			resultMsg.Content = append(resultMsg.Content, protocol.ToolResultBlockOf(tu.ID, result.Content, result.IsError))
		}
		messages = append(messages, resultMsg)
	}
}

func (rt *Runtime) finalize(ctx context.Context, path, text string) (string, error) {
	if rt.MaxHistory > 0 {
		if err := rt.Sessions.Prune(ctx, path, rt.MaxHistory); err != nil {
			rt.logger().Warn("agent: prune failed", "session", path, "error", err)
		}
	}
	return text, nil
}

// finalizeError persists text as the closing assistant entry and hands it
// back as the caller-visible reply. The append runs detached from ctx so an
// already-cancelled turn still leaves a consistent session file.
func (rt *Runtime) finalizeError(ctx context.Context, path, text string) (string, error) {
	appendCtx := context.WithoutCancel(ctx)
	if err := rt.Sessions.Append(appendCtx, path, sessions.NewAssistantEntry(text, rt.clock.now())); err != nil {
		rt.logger().Error("agent: append error entry failed", "session", path, "error", err)
	}
	return rt.finalize(appendCtx, path, text)
}

func (rt *Runtime) effectiveMaxIterations() int {
	if rt.MaxIterations > 0 {
		return rt.MaxIterations
	}
	return DefaultMaxIterations
}

// resolveModel resolves the model_id to call, applying the MODEL_ID env
// override only when the agent's own model resolves to an
// anthropic-format provider (see DESIGN.md).
func (rt *Runtime) resolveModel(agentCfg Settings) catalog.Model {
	modelID := agentCfg.Model
	if modelID == "" {
		modelID = rt.Config.Defaults.Model
	}
	model := rt.Catalog.Model(modelID)

	if override := envModelID(); override != "" {
		if provider, ok := rt.Catalog.Provider(model.ProviderID); ok && provider.APIFormat == catalog.FormatAnthropic {
			model = rt.Catalog.Model(override)
		}
	}
	return model
}

// effectiveTools resolves the agent's visible tool set:
// effective = (profile_tools ∪ agent.tool_allow) \ agent.tool_deny \
// unavailable.
func (rt *Runtime) effectiveTools(agentCfg Settings) []tools.Tool {
	profileTools := policy.ProfileToolNames(policy.Profile(agentCfg.ToolProfile))
	allow := policy.Expand(agentCfg.ToolAllow)
	deny := policy.Expand(agentCfg.ToolDeny)
	return rt.Registry.Visibility(profileTools, allow, deny)
}

func toolSpecsFor(effective []tools.Tool) []protocol.Tool {
	out := make([]protocol.Tool, 0, len(effective))
	for _, t := range effective {
		out = append(out, protocol.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	return out
}
