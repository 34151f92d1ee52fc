// Package subagent implements the spawn and spawn_status built-in tools: a
// concurrency-limited manager that runs a task against a fresh agent
// session in the background and lets the caller poll for completion.
// It runs one goroutine per task behind an atomic active-count gate and
// tags each with a google/uuid task id; the runtime dependency is a plain
// Runner func so this package does not import the agent runtime (which in
// turn depends on tools). Spawn always builds a brand-new session scope
// rather than inheriting the caller's (see DESIGN.md).
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/djun/bashclaw/internal/tools"
)

// Runner executes one spawned task to completion and returns its final
// text, exactly the shape of the agent runtime's top-level Run entry point.
type Runner func(ctx context.Context, agentID, task string) (string, error)

// Task is one spawned background task's tracked state.
type Task struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Task      string    `json:"task"`
	Status    string    `json:"status"` // running, completed, failed
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager tracks spawned tasks and bounds how many run concurrently.
type Manager struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	runner    Runner
	maxActive int
	active    int64
	dir       string
}

// NewManager creates a manager bounded to maxActive concurrent tasks
// (defaults to 5).
func NewManager(runner Runner, maxActive int) *Manager {
	if maxActive <= 0 {
		maxActive = 5
	}
	return &Manager{tasks: make(map[string]*Task), runner: runner, maxActive: maxActive}
}

// SetRunner binds (or replaces) the runner used for tasks started after
// this call. It exists so a host binary can build the manager before the
// agent runtime it will delegate to is fully constructed, then wire the
// real runner in once both exist (bootstrap's circular Runtime↔Registry
// dependency).
func (m *Manager) SetRunner(runner Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runner = runner
}

// SetStateDir enables on-disk task state: each task gets
// <dir>/<task_id>/{input.json, status, output} written as it progresses, so
// task outcomes survive the process and are inspectable from outside.
func (m *Manager) SetStateDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dir = dir
}

// Spawn starts task in the background under agentID (or "main" if empty)
// and returns its task id immediately.
func (m *Manager) Spawn(task, agentID string) (*Task, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("task is required")
	}
	if agentID == "" {
		agentID = "main"
	}
	if atomic.AddInt64(&m.active, 1) > int64(m.maxActive) {
		atomic.AddInt64(&m.active, -1)
		return nil, fmt.Errorf("max active spawned tasks reached (%d)", m.maxActive)
	}

	t := &Task{ID: uuid.NewString(), AgentID: agentID, Task: task, Status: "running", CreatedAt: time.Now()}
	m.mu.Lock()
	m.tasks[t.ID] = t
	dir := m.dir
	m.mu.Unlock()

	if dir != "" {
		m.persistInput(dir, t)
		m.persistStatus(dir, t.ID, t.Status)
	}

	go m.run(t)
	return t, nil
}

func (m *Manager) run(t *Task) {
	defer atomic.AddInt64(&m.active, -1)
	m.mu.RLock()
	runner := m.runner
	m.mu.RUnlock()
	if runner == nil {
		m.finish(t.ID, "", fmt.Errorf("no runner configured"))
		return
	}
	output, err := runner(context.Background(), t.AgentID, t.Task)
	m.finish(t.ID, output, err)
}

func (m *Manager) finish(id, output string, err error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if err != nil {
		t.Status = "failed"
		t.Error = err.Error()
	} else {
		t.Status = "completed"
		t.Output = output
	}
	dir := m.dir
	status, result := t.Status, t.Output
	if t.Error != "" {
		result = t.Error
	}
	m.mu.Unlock()

	if dir != "" {
		m.persistStatus(dir, id, status)
		writeFileAtomic(filepath.Join(dir, id, "output"), []byte(result))
	}
}

func (m *Manager) persistInput(dir string, t *Task) {
	input, err := json.Marshal(map[string]any{
		"task":       t.Task,
		"agent_id":   t.AgentID,
		"created_at": t.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return
	}
	writeFileAtomic(filepath.Join(dir, t.ID, "input.json"), input)
}

func (m *Manager) persistStatus(dir, id, status string) {
	writeFileAtomic(filepath.Join(dir, id, "status"), []byte(status))
}

// writeFileAtomic is the write-temp-then-rename idiom used by the other
// state-directory stores; persistence failures are deliberately silent,
// since the in-memory record stays authoritative for spawn_status.
func writeFileAtomic(path string, data []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	tmp := path + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, path)
}

// Get looks up a task by id.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// SpawnTool implements the "spawn" built-in.
type SpawnTool struct{ manager *Manager }

// NewSpawnTool creates a spawn tool bound to manager.
func NewSpawnTool(manager *Manager) *SpawnTool { return &SpawnTool{manager: manager} }

func (t *SpawnTool) Name() string { return "spawn" }
func (t *SpawnTool) Description() string {
	return "Start a background sub-agent task; returns a task_id to poll with spawn_status."
}

func (t *SpawnTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {"type": "string"},
			"agent": {"type": "string"}
		},
		"required": ["task"]
	}`)
}

func (t *SpawnTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		Task  string `json:"task"`
		Agent string `json:"agent"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	st, err := t.manager.Spawn(input.Task, input.Agent)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	return tools.JSONResult(map[string]any{"task_id": st.ID}), nil
}

// StatusTool implements the "spawn_status" built-in.
type StatusTool struct{ manager *Manager }

// NewStatusTool creates a spawn_status tool bound to manager.
func NewStatusTool(manager *Manager) *StatusTool { return &StatusTool{manager: manager} }

func (t *StatusTool) Name() string        { return "spawn_status" }
func (t *StatusTool) Description() string { return "Check the status and output of a spawned task." }

func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"task_id": {"type": "string"}},
		"required": ["task_id"]
	}`)
}

func (t *StatusTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	st, ok := t.manager.Get(input.TaskID)
	if !ok {
		return tools.Errorf("unknown task_id %q", input.TaskID), nil
	}
	payload := map[string]any{"status": st.Status}
	if st.Output != "" {
		payload["output"] = st.Output
	}
	if st.Error != "" {
		payload["error"] = st.Error
	}
	return tools.JSONResult(payload), nil
}
