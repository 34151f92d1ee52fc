// Package files implements the workspace-scoped read_file, write_file,
// list_files, and file_search tools. Every path is resolved through
// Resolver, which rejects any path whose cleaned relative form escapes the
// workspace root.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/djun/bashclaw/internal/tools"
)

const defaultMaxReadBytes = 200_000

// ReadTool implements read_file.
type ReadTool struct {
	resolver Resolver
	maxBytes int
}

// NewReadTool creates a read_file tool rooted at workspace.
func NewReadTool(workspace string) *ReadTool {
	return &ReadTool{resolver: Resolver{Root: workspace}, maxBytes: defaultMaxReadBytes}
}

func (t *ReadTool) Name() string        { return "read_file" }
func (t *ReadTool) Description() string { return "Read a file's contents from the workspace." }
func (t *ReadTool) BridgeExposed() bool { return true }
func (t *ReadTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Path to the file, relative to the workspace."},
		},
		"required": []string{"path"},
	})
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return tools.Errorf("path is required"), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return tools.Errorf("read file: %v", err), nil
	}
	if len(data) > t.maxBytes {
		data = data[:t.maxBytes]
	}
	return tools.JSONResult(map[string]any{"content": string(data), "path": input.Path}), nil
}

// WriteTool implements write_file.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write_file tool rooted at workspace.
func NewWriteTool(workspace string) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: workspace}}
}

func (t *WriteTool) Name() string { return "write_file" }
func (t *WriteTool) Description() string {
	return "Write (overwrite) a file's contents in the workspace."
}
func (t *WriteTool) BridgeExposed() bool { return true }
func (t *WriteTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Path to the file, relative to the workspace."},
			"content": map[string]any{"type": "string", "description": "Content to write."},
		},
		"required": []string{"path", "content"},
	})
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return tools.Errorf("path is required"), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return tools.Errorf("create parent directories: %v", err), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return tools.Errorf("write file: %v", err), nil
	}
	return tools.JSONResult(map[string]any{"written": true}), nil
}

// ListTool implements list_files.
type ListTool struct {
	resolver Resolver
}

// NewListTool creates a list_files tool rooted at workspace.
func NewListTool(workspace string) *ListTool {
	return &ListTool{resolver: Resolver{Root: workspace}}
}

func (t *ListTool) Name() string        { return "list_files" }
func (t *ListTool) Description() string { return "List entries of a workspace directory." }
func (t *ListTool) BridgeExposed() bool { return true }
func (t *ListTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory path, relative to the workspace. Defaults to the root."},
		},
	})
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal(params, &input)
	if strings.TrimSpace(input.Path) == "" {
		input.Path = "."
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return tools.Errorf("stat directory: %v", err), nil
	}
	if !info.IsDir() {
		return tools.Errorf("%s is not a directory", input.Path), nil
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return tools.Errorf("list directory: %v", err), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return tools.JSONResult(map[string]any{"entries": names, "count": len(names)}), nil
}

// SearchTool implements file_search: a recursive substring search over
// workspace file contents.
type SearchTool struct {
	resolver Resolver
}

// NewSearchTool creates a file_search tool rooted at workspace.
func NewSearchTool(workspace string) *SearchTool {
	return &SearchTool{resolver: Resolver{Root: workspace}}
}

func (t *SearchTool) Name() string { return "file_search" }
func (t *SearchTool) Description() string {
	return "Search workspace files under a directory for a literal substring."
}
func (t *SearchTool) BridgeExposed() bool { return true }
func (t *SearchTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Directory to search, relative to the workspace."},
			"content": map[string]any{"type": "string", "description": "Literal substring to search for."},
		},
		"required": []string{"path", "content"},
	})
}

type searchHit struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Content) == "" {
		return tools.Errorf("content is required"), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		input.Path = "."
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return tools.Errorf("stat directory: %v", err), nil
	}
	if !info.IsDir() {
		return tools.Errorf("%s is not a directory", input.Path), nil
	}

	var hits []searchHit
	const maxHits = 200
	walkErr := filepath.Walk(resolved, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() || len(hits) >= maxHits {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(resolved, path)
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, input.Content) {
				hits = append(hits, searchHit{Path: rel, Line: i + 1, Text: strings.TrimSpace(line)})
				if len(hits) >= maxHits {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return tools.Errorf("search: %v", walkErr), nil
	}
	return tools.JSONResult(map[string]any{"results": hits, "count": len(hits)}), nil
}

func mustSchema(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"type":"object"}`))
	}
	return payload
}
