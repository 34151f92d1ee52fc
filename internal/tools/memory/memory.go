// Package memory implements the "memory" built-in tool: a persistent
// per-key JSON key/value store under <state>/memory/<key>.json, written
// with the lock-then-rename idiom used by every state-directory tool.
// Grounded on internal/sessions's append/prune rewrite-via-temp-file
// pattern, adapted here to whole-file values instead of line-oriented
// entries.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/djun/bashclaw/internal/tools"
)

// Record is the on-disk shape of one memory value.
type Record struct {
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
}

// Tool implements the memory built-in's set/get/delete/list/search actions.
type Tool struct {
	dir string
	mu  sync.Mutex
	now func() int64
}

// New creates a memory tool rooted at dir (typically "<state>/memory").
func New(dir string) *Tool {
	return &Tool{dir: dir, now: func() int64 { return time.Now().UnixMilli() }}
}

func (t *Tool) Name() string { return "memory" }
func (t *Tool) Description() string {
	return "Persistent key/value memory: set, get, delete, list, or search stored values."
}

// BridgeExposed marks memory as part of the curated MCP tool subset.
func (t *Tool) BridgeExposed() bool { return true }

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["set", "get", "delete", "list", "search"]},
			"key": {"type": "string"},
			"value": {"type": "string"},
			"query": {"type": "string"}
		},
		"required": ["action"]
	}`)
}

type input struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	Query  string `json:"query"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	switch in.Action {
	case "set":
		return t.set(in.Key, in.Value)
	case "get":
		return t.get(in.Key)
	case "delete":
		return t.delete(in.Key)
	case "list":
		return t.list()
	case "search":
		return t.search(in.Query)
	default:
		return tools.Errorf("unknown action %q", in.Action), nil
	}
}

func (t *Tool) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	if strings.ContainsAny(key, "/\\") || key == ".." {
		return "", fmt.Errorf("key must not contain path separators")
	}
	return filepath.Join(t.dir, key+".json"), nil
}

func (t *Tool) set(key, value string) (*tools.Result, error) {
	p, err := t.path(key)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{Value: value, UpdatedAt: t.now()}
	if prev, err := readRecord(p); err == nil && rec.UpdatedAt < prev.UpdatedAt {
		rec.UpdatedAt = prev.UpdatedAt
	}
	if err := writeRecordLockThenRename(p, rec); err != nil {
		return tools.Errorf("write memory key: %v", err), nil
	}
	return tools.JSONResult(map[string]any{"key": key, "value": rec.Value, "updated_at": rec.UpdatedAt}), nil
}

func (t *Tool) get(key string) (*tools.Result, error) {
	p, err := t.path(key)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := readRecord(p)
	if err != nil {
		if os.IsNotExist(err) {
			return tools.Errorf("key %q not found", key), nil
		}
		return tools.Errorf("read memory key: %v", err), nil
	}
	return tools.JSONResult(map[string]any{"key": key, "value": rec.Value, "updated_at": rec.UpdatedAt}), nil
}

func (t *Tool) delete(key string) (*tools.Result, error) {
	p, err := t.path(key)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return tools.Errorf("delete memory key: %v", err), nil
	}
	return tools.JSONResult(map[string]any{"deleted": true, "key": key}), nil
}

func (t *Tool) list() (*tools.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys, err := t.allKeys()
	if err != nil {
		return tools.Errorf("list memory: %v", err), nil
	}
	return tools.JSONResult(map[string]any{"keys": keys, "count": len(keys)}), nil
}

func (t *Tool) search(query string) (*tools.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys, err := t.allKeys()
	if err != nil {
		return tools.Errorf("search memory: %v", err), nil
	}
	type hit struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	var hits []hit
	q := strings.ToLower(query)
	for _, k := range keys {
		p, _ := t.path(k)
		rec, err := readRecord(p)
		if err != nil {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(k), q) || strings.Contains(strings.ToLower(rec.Value), q) {
			hits = append(hits, hit{Key: k, Value: rec.Value})
		}
	}
	return tools.JSONResult(map[string]any{"results": hits, "count": len(hits)}), nil
}

func (t *Tool) allKeys() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}

func writeRecordLockThenRename(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp := path + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
