// Package cron implements the "cron" built-in tool: add/list/remove/run
// actions over a single cron/jobs.json job list, backed
// by github.com/robfig/cron/v3 for schedule parsing and validation. Reads
// and writes to jobs.json are read-modify-write under a lock.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/djun/bashclaw/internal/tools"
)

// Job is one persisted cron job record.
type Job struct {
	ID       string `json:"id"`
	Schedule string `json:"schedule"`
	Command  string `json:"command"`
	Created  int64  `json:"created_at"`
}

// Tool implements the cron built-in.
type Tool struct {
	path   string
	mu     sync.Mutex
	parser robfigcron.Parser
	now    func() int64
}

// New creates a cron tool backed by the jobs.json file at path.
func New(path string) *Tool {
	return &Tool{
		path:   path,
		parser: robfigcron.NewParser(robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

func (t *Tool) Name() string { return "cron" }
func (t *Tool) Description() string {
	return "Manage scheduled commands: add, list, remove, or run a cron job."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["add", "list", "remove", "run"]},
			"id": {"type": "string"},
			"schedule": {"type": "string"},
			"command": {"type": "string"}
		},
		"required": ["action"]
	}`)
}

// Optional marks cron as included only for agents that explicitly allow it.
func (t *Tool) Optional() bool { return true }

type input struct {
	Action   string `json:"action"`
	ID       string `json:"id"`
	Schedule string `json:"schedule"`
	Command  string `json:"command"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	switch in.Action {
	case "add":
		return t.add(in.Schedule, in.Command)
	case "list":
		return t.list()
	case "remove":
		return t.remove(in.ID)
	case "run":
		return t.run(ctx, in.ID)
	default:
		return tools.Errorf("unknown action %q", in.Action), nil
	}
}

func (t *Tool) add(schedule, command string) (*tools.Result, error) {
	schedule = strings.TrimSpace(schedule)
	command = strings.TrimSpace(command)
	if schedule == "" || command == "" {
		return tools.Errorf("schedule and command are required"), nil
	}
	if _, err := t.parser.Parse(schedule); err != nil {
		return tools.Errorf("invalid cron expression: %v", err), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	jobs, err := t.readJobs()
	if err != nil {
		return tools.Errorf("read jobs: %v", err), nil
	}
	job := Job{ID: nextID(jobs), Schedule: schedule, Command: command, Created: t.now()}
	jobs = append(jobs, job)
	if err := t.writeJobs(jobs); err != nil {
		return tools.Errorf("write jobs: %v", err), nil
	}
	return tools.JSONResult(job), nil
}

func (t *Tool) list() (*tools.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	jobs, err := t.readJobs()
	if err != nil {
		return tools.Errorf("read jobs: %v", err), nil
	}
	return tools.JSONResult(map[string]any{"jobs": jobs, "count": len(jobs)}), nil
}

func (t *Tool) remove(id string) (*tools.Result, error) {
	if strings.TrimSpace(id) == "" {
		return tools.Errorf("id is required"), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	jobs, err := t.readJobs()
	if err != nil {
		return tools.Errorf("read jobs: %v", err), nil
	}
	kept := jobs[:0]
	found := false
	for _, j := range jobs {
		if j.ID == id {
			found = true
			continue
		}
		kept = append(kept, j)
	}
	if !found {
		return tools.Errorf("unknown job id %q", id), nil
	}
	if err := t.writeJobs(kept); err != nil {
		return tools.Errorf("write jobs: %v", err), nil
	}
	return tools.JSONResult(map[string]any{"removed": true, "id": id}), nil
}

func (t *Tool) run(ctx context.Context, id string) (*tools.Result, error) {
	if strings.TrimSpace(id) == "" {
		return tools.Errorf("id is required"), nil
	}
	t.mu.Lock()
	jobs, err := t.readJobs()
	t.mu.Unlock()
	if err != nil {
		return tools.Errorf("read jobs: %v", err), nil
	}
	var job *Job
	for i := range jobs {
		if jobs[i].ID == id {
			job = &jobs[i]
			break
		}
	}
	if job == nil {
		return tools.Errorf("unknown job id %q", id), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	out, err := exec.CommandContext(runCtx, "/bin/sh", "-c", job.Command).CombinedOutput()
	if err != nil {
		return tools.JSONResult(map[string]any{"id": id, "output": string(out), "error": err.Error()}), nil
	}
	return tools.JSONResult(map[string]any{"id": id, "output": string(out)}), nil
}

func (t *Tool) readJobs() ([]Job, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.path, err)
	}
	return jobs, nil
}

func (t *Tool) writeJobs(jobs []Job) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	tmp := t.path + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}

func nextID(existing []Job) string {
	max := 0
	for _, j := range existing {
		var n int
		if _, err := fmt.Sscanf(j.ID, "job-%d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("job-%d", max+1)
}
