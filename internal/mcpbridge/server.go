// Package mcpbridge exposes a bashclaw tool registry as an MCP server over
// stdio. It is the inverse of internal/mcp, which lets bashclaw act as an
// MCP client; here bashclaw is the server, and the peer on the other end of
// stdin/stdout is an MCP client (an editor, another agent runtime, etc).
package mcpbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/djun/bashclaw/internal/mcp"
	"github.com/djun/bashclaw/internal/tools"
)

const protocolVersion = "2024-11-05"

// toolNameRE is the name-shape gate applied before a tools/call dispatch
// is even considered: anything else is -32602, not -32002.
var toolNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Server reads JSON-RPC 2.0 requests as newline-delimited JSON on stdin and
// writes responses the same way on stdout, per internal/mcp's wire types.
type Server struct {
	registry *tools.Registry
	dispatch *tools.Dispatcher
	exposed  []string // bridge-exposed tool names, in registration order
	name     string
	version  string

	log *slog.Logger

	mu          sync.Mutex
	initialized bool

	// toolsOnce builds the tools/list result on first request; the exposed
	// set is fixed at construction, so the record list never changes.
	toolsOnce   sync.Once
	toolsCached mcp.ListToolsResult
}

// New builds a bridge over registry, exposing only BridgeExposedTools(registry).
func New(registry *tools.Registry, dispatch *tools.Dispatcher, name, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	exposed := make([]string, 0)
	for _, t := range registry.BridgeExposedTools() {
		exposed = append(exposed, t.Name())
	}
	return &Server{
		registry: registry,
		dispatch: dispatch,
		exposed:  exposed,
		name:     name,
		version:  version,
		log:      log,
	}
}

// Serve runs the read loop until stdin is closed or ctx is cancelled.
// Each request is handled synchronously and in order; the bridge itself is
// single-threaded.
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}

		var req mcp.JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(stdout, nil, mcp.ErrCodeParseError, "parse error: "+err.Error())
			continue
		}

		resp := s.handle(ctx, &req)
		if resp == nil || req.ID == nil {
			continue // notification, no response expected
		}
		if err := s.writeResponse(stdout, resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcpbridge: read loop: %w", err)
	}
	return nil
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func (s *Server) handle(ctx context.Context, req *mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "prompts/list":
		return s.handlePromptsList(req)
	default:
		return errorResponse(req.ID, mcp.ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	result := mcp.InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: mcp.Capabilities{
			Tools: &mcp.ToolsCapability{ListChanged: false},
		},
		ServerInfo: mcp.ServerInfo{Name: s.name, Version: s.version},
	}
	return resultResponse(req.ID, result)
}

func (s *Server) handleToolsList(req *mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	s.toolsOnce.Do(func() {
		list := make([]*mcp.MCPTool, 0, len(s.exposed))
		for _, name := range s.exposed {
			t, ok := s.registry.Get(name)
			if !ok {
				continue
			}
			list = append(list, &mcp.MCPTool{
				Name:        t.Name(),
				Description: t.Description(),
				InputSchema: t.Schema(),
			})
		}
		s.toolsCached = mcp.ListToolsResult{Tools: list}
	})
	return resultResponse(req.ID, s.toolsCached)
}

func (s *Server) handleToolsCall(ctx context.Context, req *mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, mcp.ErrCodeInvalidParams, "invalid params: "+err.Error())
	}
	if !toolNameRE.MatchString(params.Name) {
		return errorResponse(req.ID, mcp.ErrCodeInvalidParams, "invalid tool name: "+params.Name)
	}
	if !s.isExposed(params.Name) {
		return errorResponse(req.ID, mcp.ErrCodeToolNotFound, "tool not found: "+params.Name)
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	result := s.dispatch.Dispatch(ctx, s.exposedTools(), params.Name, args)

	callResult := mcp.ToolCallResult{
		Content: []mcp.ToolResultContent{{Type: "text", Text: flattenLines(result.Content)}},
		IsError: result.IsError,
	}
	return resultResponse(req.ID, callResult)
}

func (s *Server) handleResourcesList(req *mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	return resultResponse(req.ID, mcp.ListResourcesResult{Resources: []*mcp.MCPResource{}})
}

func (s *Server) handlePromptsList(req *mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	return resultResponse(req.ID, mcp.ListPromptsResult{Prompts: []*mcp.MCPPrompt{}})
}

// flattenLines collapses newlines to spaces so a tool result stays on one
// line of the NDJSON wire encoding.
func flattenLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func (s *Server) isExposed(name string) bool {
	for _, n := range s.exposed {
		if n == name {
			return true
		}
	}
	return false
}

func (s *Server) exposedTools() []tools.Tool {
	out := make([]tools.Tool, 0, len(s.exposed))
	for _, name := range s.exposed {
		if t, ok := s.registry.Get(name); ok {
			out = append(out, t)
		}
	}
	return out
}

func resultResponse(id any, result any) *mcp.JSONRPCResponse {
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, mcp.ErrCodeInternalError, "marshal result: "+err.Error())
	}
	return &mcp.JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: raw}
}

func errorResponse(id any, code int, message string) *mcp.JSONRPCResponse {
	return &mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &mcp.JSONRPCError{Code: code, Message: message},
	}
}

func (s *Server) writeError(w io.Writer, id any, code int, message string) {
	if err := s.writeResponse(w, errorResponse(id, code, message)); err != nil {
		s.log.Error("mcpbridge: write error response failed", "error", err)
	}
}

func (s *Server) writeResponse(w io.Writer, resp *mcp.JSONRPCResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("mcpbridge: marshal response: %w", err)
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}
