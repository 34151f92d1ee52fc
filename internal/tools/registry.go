package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/djun/bashclaw/internal/observability"
)

// Registry is the static, startup-built table of every tool this binary
// knows how to run.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any earlier registration of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, sorted by name for deterministic
// tools/list responses.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Visibility resolves the effective tool set for an agent:
// (profile_tools ∪ allow) \ deny \ unavailable, with non-optional tools
// included even when no allow list names them. profileTools, allow, and
// deny are already-expanded tool name sets (group expansion happens in the
// policy package).
func (r *Registry) Visibility(profileTools, allow, deny []string) []Tool {
	allowSet := toSet(profileTools)
	for _, name := range allow {
		allowSet[name] = true
	}
	denySet := toSet(deny)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Tool
	for name, t := range r.tools {
		if isOptional(t) && !allowSet[name] {
			continue
		}
		if denySet[name] {
			continue
		}
		if isUnavailable(t) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func isOptional(t Tool) bool {
	o, ok := t.(Optional)
	return ok && o.Optional()
}

func isUnavailable(t Tool) bool {
	u, ok := t.(Unavailable)
	return ok && u.Unavailable()
}

// BridgeExposedTools returns the curated subset of registered tools safe to
// expose over the MCP bridge.
func (r *Registry) BridgeExposedTools() []Tool {
	var out []Tool
	for _, t := range r.All() {
		if b, ok := t.(BridgeExposed); ok && b.BridgeExposed() {
			out = append(out, t)
		}
	}
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Dispatcher invokes tools by name against a resolved visibility set,
// validating input shape before calling the handler. A dispatch failure of
// any kind (unknown tool, schema mismatch, handler panic/error) always
// yields an is_error result rather than propagating, so the model can see
// what went wrong and recover.
type Dispatcher struct {
	registry  *Registry
	nameRE    *regexp.Regexp
	resultCap int

	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// DefaultResultCap is the implementation-defined truncation cap for tool
// result content.
const DefaultResultCap = 16 * 1024

// NewDispatcher creates a dispatcher bound to a registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		nameRE:    regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`),
		resultCap: DefaultResultCap,
	}
}

// SetObservability wires the tool execution metrics and spans recorded
// around every Dispatch.
func (d *Dispatcher) SetObservability(metrics *observability.Metrics, tracer *observability.Tracer) {
	d.metrics = metrics
	d.tracer = tracer
}

// Dispatch validates that name is in the effective tool set, shape-checks
// input against the tool's schema, invokes the handler, and truncates the
// result to resultCap. Every invocation is counted and timed per tool.
func (d *Dispatcher) Dispatch(ctx context.Context, effective []Tool, name string, input json.RawMessage) *Result {
	start := time.Now()
	ctx, span := d.tracer.TraceToolExecution(ctx, name)
	result := d.dispatch(ctx, effective, name, input)
	span.End()

	if d.metrics != nil {
		status := "success"
		if result.IsError {
			status = "error"
			d.metrics.RecordError("tool", "execution_error")
		}
		d.metrics.RecordToolExecution(name, status, time.Since(start).Seconds())
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, effective []Tool, name string, input json.RawMessage) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = Errorf("tool handler panicked: %v", rec)
		}
	}()

	var tool Tool
	for _, t := range effective {
		if t.Name() == name {
			tool = t
			break
		}
	}
	if tool == nil {
		return Errorf("tool %q is not available to this agent", name)
	}

	if err := validateShape(tool.Schema(), input); err != nil {
		return Errorf("invalid input for %s: %v", name, err)
	}

	out, err := tool.Execute(ctx, input)
	if err != nil {
		return Errorf("%s: %v", name, err)
	}
	if out == nil {
		out = &Result{}
	}
	return d.truncate(out)
}

func (d *Dispatcher) truncate(r *Result) *Result {
	if d.resultCap <= 0 || len(r.Content) <= d.resultCap {
		return r
	}
	return &Result{
		Content: r.Content[:d.resultCap] + "\n...[truncated]",
		IsError: r.IsError,
	}
}

// validateShape performs a shape-only JSON-schema check, compiling the
// schema fresh per call since tool schemas are small and invoked rarely
// relative to model calls.
func validateShape(schema json.RawMessage, input json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "tool-schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("tool schema is not valid JSON: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return err
	}
	var value any
	if len(input) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(input, &value); err != nil {
		return fmt.Errorf("input is not valid JSON: %w", err)
	}
	return compiled.Validate(value)
}
