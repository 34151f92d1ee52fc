// Package sessions implements the durable, append-only JSONL session log:
// scope resolution to a file path, line-atomic append under an advisory
// lock, idle-reset, pruning, and projection of raw entries into the
// normalized message protocol the agent runtime consumes.
package sessions

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/djun/bashclaw/internal/protocol"
)

// Scope selects how a conversation is partitioned into session files.
type Scope string

const (
	ScopePerSender  Scope = "per-sender"
	ScopePerChannel Scope = "per-channel"
	ScopeGlobal     Scope = "global"
)

// Store owns every session file under root and the locks guarding them.
type Store struct {
	root   string
	locker *PathLocker
	logger *slog.Logger
}

// New creates a session store rooted at dir (typically
// "<state>/sessions"). The directory is created lazily on first write.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: dir, locker: NewPathLocker(), logger: logger}
}

// Path resolves (agent_id, channel, sender, scope) to the session's JSONL
// file path. The path is a pure function of its arguments.
func (s *Store) Path(agentID, channel, sender string, scope Scope) string {
	sender = sanitizeSender(sender)
	switch scope {
	case ScopePerSender:
		if sender == "" {
			return filepath.Join(s.root, agentID, channel+".jsonl")
		}
		return filepath.Join(s.root, agentID, channel, sender+".jsonl")
	case ScopePerChannel:
		return filepath.Join(s.root, agentID, channel+".jsonl")
	default: // global
		return filepath.Join(s.root, agentID+".jsonl")
	}
}

// Append JSON-encodes entry and writes it as one line under an exclusive
// lock on path.
func (s *Store) Append(ctx context.Context, path string, entry Entry) error {
	release, err := s.locker.Lock(ctx, path)
	if err != nil {
		return err
	}
	defer release()
	return s.appendLocked(path, entry)
}

func (s *Store) appendLocked(path string, entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write session entry: %w", err)
	}
	return nil
}

// Load reads the last n entries (n<=0 means all), lock-free. A trailing
// unparseable line is skipped with a warning rather than treated as fatal
// (SessionCorruption is non-blocking).
func (s *Store) Load(path string, n int) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			s.logger.Warn("session entry failed to parse, skipping", "path", path, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// LoadAsMessages projects the last n entries into the normalized message
// protocol: consecutive tool_call entries merge into the preceding
// assistant message as ToolUseBlocks, and consecutive tool_result entries
// merge into one user-role message of ToolResultBlocks. meta entries are
// excluded per the documented resolution of Open Question (a). Tool calls
// left unanswered at projection time are treated as failures (invariant 2)
// and get a synthetic error tool_result so the block sequence stays valid.
func (s *Store) LoadAsMessages(path string, n int) ([]protocol.Message, error) {
	entries, err := s.Load(path, n)
	if err != nil {
		return nil, err
	}
	return ProjectMessages(entries), nil
}

// ProjectMessages is the pure projection function behind LoadAsMessages,
// exposed directly so tests and load_as_messages tooling can exercise it
// without touching the filesystem.
func ProjectMessages(entries []Entry) []protocol.Message {
	var msgs []protocol.Message
	var curAssistant *protocol.Message
	var curToolResults *protocol.Message
	pending := map[string]bool{}

	flushAssistant := func() {
		if curAssistant != nil {
			msgs = append(msgs, *curAssistant)
			curAssistant = nil
		}
	}
	flushToolResults := func() {
		if curToolResults != nil {
			msgs = append(msgs, *curToolResults)
			curToolResults = nil
		}
	}
	synthesizeOrphans := func() {
		if len(pending) == 0 {
			return
		}
		// The assistant message holding the unanswered tool_use blocks
		// must precede the user message carrying their results.
		flushAssistant()
		if curToolResults == nil {
			curToolResults = &protocol.Message{Role: protocol.RoleUser}
		}
		for id := range pending {
			curToolResults.Content = append(curToolResults.Content,
				protocol.ToolResultBlockOf(id, "tool call never received a result", true))
			delete(pending, id)
		}
	}

	for _, e := range entries {
		switch e.Type {
		case EntryUser:
			synthesizeOrphans()
			flushToolResults()
			flushAssistant()
			msgs = append(msgs, protocol.Message{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock(e.Content)}})
		case EntryAssistant:
			synthesizeOrphans()
			flushToolResults()
			flushAssistant()
			curAssistant = &protocol.Message{Role: protocol.RoleAssistant, Content: []protocol.Block{protocol.TextBlock(e.Content)}}
		case EntryToolCall:
			if curAssistant == nil {
				curAssistant = &protocol.Message{Role: protocol.RoleAssistant}
			}
			curAssistant.Content = append(curAssistant.Content, protocol.ToolUseBlock(e.ToolID, e.ToolName, e.ToolInput))
			pending[e.ToolID] = true
		case EntryToolResult:
			flushAssistant()
			if curToolResults == nil {
				curToolResults = &protocol.Message{Role: protocol.RoleUser}
			}
			curToolResults.Content = append(curToolResults.Content, protocol.ToolResultBlockOf(e.ToolID, e.Content, e.IsError))
			delete(pending, e.ToolID)
		case EntryMeta:
			// Excluded from the model-visible projection (Open Question a).
		}
	}
	synthesizeOrphans()
	flushToolResults()
	flushAssistant()
	return msgs
}

// Prune atomically truncates the file to its last keep entries via
// write-temp + rename.
func (s *Store) Prune(ctx context.Context, path string, keep int) error {
	release, err := s.locker.Lock(ctx, path)
	if err != nil {
		return err
	}
	defer release()

	entries, err := s.Load(path, 0)
	if err != nil {
		return err
	}
	if keep > 0 && len(entries) > keep {
		entries = entries[len(entries)-keep:]
	}
	return s.rewriteLocked(path, entries)
}

func (s *Store) rewriteLocked(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + fmt.Sprintf(".tmp-%d", os.Getpid())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Clear truncates the session file to zero entries (idempotent).
func (s *Store) Clear(ctx context.Context, path string) error {
	release, err := s.locker.Lock(ctx, path)
	if err != nil {
		return err
	}
	defer release()
	return s.rewriteLocked(path, nil)
}

// Delete unlinks the session file entirely.
func (s *Store) Delete(ctx context.Context, path string) error {
	release, err := s.locker.Lock(ctx, path)
	if err != nil {
		return err
	}
	defer release()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CheckIdleReset clears the session and returns true if the last entry's
// ts_ms is older than minutes; minutes<=0 disables the check entirely.
func (s *Store) CheckIdleReset(ctx context.Context, path string, minutes int, nowMs int64) (bool, error) {
	if minutes <= 0 {
		return false, nil
	}
	entries, err := s.Load(path, 1)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}
	last := entries[len(entries)-1]
	idleMs := int64(minutes) * 60 * 1000
	if nowMs-last.TsMs < idleMs {
		return false, nil
	}
	if err := s.Clear(ctx, path); err != nil {
		return false, err
	}
	return true, nil
}

// SessionInfo describes one session file for introspection.
type SessionInfo struct {
	Path         string `json:"path"`
	EntryCount   int    `json:"entry_count"`
	LastActiveMs int64  `json:"last_active_ms"`
}

// ListSessions walks every JSONL file under the store root and reports its
// size and last-activity timestamp. It does not take any lock; counts may
// be stale by a write in flight.
func (s *Store) ListSessions() ([]SessionInfo, error) {
	var out []SessionInfo
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		entries, loadErr := s.Load(path, 0)
		if loadErr != nil {
			return nil
		}
		info := SessionInfo{Path: path, EntryCount: len(entries)}
		if len(entries) > 0 {
			info.LastActiveMs = entries[len(entries)-1].TsMs
		}
		out = append(out, info)
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return out, nil
}

// sanitizeSender guards against a sender id containing path separators from
// escaping the per-agent/per-channel directory it belongs in.
func sanitizeSender(sender string) string {
	sender = strings.ReplaceAll(sender, "/", "_")
	sender = strings.ReplaceAll(sender, "\\", "_")
	return sender
}
