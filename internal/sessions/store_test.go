package sessions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djun/bashclaw/internal/protocol"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := New(filepath.Join(dir, "sessions"), nil)
	path := store.Path("main", "cli", "u1", ScopePerSender)
	return store, path
}

// append(x); load().last() == x.
func TestAppendThenLoadRoundTrips(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, path, NewUserEntry("hello", 1)))
	entries, err := store.Load(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, EntryUser, entries[0].Type)
	assert.Equal(t, "hello", entries[0].Content)
	assert.Equal(t, int64(1), entries[0].TsMs)
}

func TestPathResolvesPerScope(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, nil)

	assert.Equal(t, filepath.Join(dir, "main", "cli", "u1.jsonl"), store.Path("main", "cli", "u1", ScopePerSender))
	assert.Equal(t, filepath.Join(dir, "main", "cli.jsonl"), store.Path("main", "cli", "", ScopePerSender))
	assert.Equal(t, filepath.Join(dir, "main", "cli.jsonl"), store.Path("main", "cli", "u1", ScopePerChannel))
	assert.Equal(t, filepath.Join(dir, "main.jsonl"), store.Path("main", "cli", "u1", ScopeGlobal))
}

// clear() then load() returns empty; clear() is idempotent.
func TestClearIsIdempotentAndEmpties(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, path, NewUserEntry("hi", 1)))
	require.NoError(t, store.Clear(ctx, path))

	entries, err := store.Load(path, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.Clear(ctx, path))
	entries, err = store.Load(path, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// prune(k) leaves at most k entries and preserves order of the last k.
func TestPruneKeepsLastKInOrder(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.Append(ctx, path, NewUserEntry("msg", i)))
	}
	require.NoError(t, store.Prune(ctx, path, 2))

	entries, err := store.Load(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(4), entries[0].TsMs)
	assert.Equal(t, int64(5), entries[1].TsMs)
}

func TestDeleteRemovesFile(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, path, NewUserEntry("hi", 1)))
	require.NoError(t, store.Delete(ctx, path))

	entries, err := store.Load(path, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Deleting a nonexistent file is not an error.
	require.NoError(t, store.Delete(ctx, path))
}

func TestCheckIdleResetDisabledAtZero(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, path, NewUserEntry("hi", 1)))

	fired, err := store.CheckIdleReset(ctx, path, 0, 999999999)
	require.NoError(t, err)
	assert.False(t, fired)

	entries, err := store.Load(path, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCheckIdleResetClearsWhenStale(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, path, NewUserEntry("hi", 0)))

	minutes := 5
	staleNow := int64(minutes)*60*1000 + 1
	fired, err := store.CheckIdleReset(ctx, path, minutes, staleNow)
	require.NoError(t, err)
	assert.True(t, fired)

	entries, err := store.Load(path, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadSkipsUnparseableTrailingLine(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, path, NewUserEntry("hi", 1)))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json at all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := store.Load(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hi", entries[0].Content)
}

func TestProjectMessagesMergesToolCallsAndResults(t *testing.T) {
	input, _ := json.Marshal(map[string]any{"action": "get"})
	entries := []Entry{
		NewUserEntry("what's x", 1),
		NewAssistantEntry("", 2),
		NewToolCallEntry("memory", input, "t1", 2),
		NewToolResultEntry("t1", "42", false, 3),
		NewAssistantEntry("x is 42", 4),
	}
	msgs := ProjectMessages(entries)
	require.Len(t, msgs, 4)
	assert.Equal(t, protocol.RoleUser, msgs[0].Role)
	assert.Equal(t, protocol.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.Equal(t, protocol.BlockToolUse, msgs[1].Content[1].Type)
	assert.Equal(t, protocol.RoleUser, msgs[2].Role)
	assert.Equal(t, protocol.BlockToolResult, msgs[2].Content[0].Type)
	assert.Equal(t, protocol.RoleAssistant, msgs[3].Role)
}

func TestProjectMessagesSynthesizesOrphanToolResult(t *testing.T) {
	input, _ := json.Marshal(map[string]any{"action": "get"})
	entries := []Entry{
		NewUserEntry("do it", 1),
		NewAssistantEntry("", 2),
		NewToolCallEntry("memory", input, "orphan", 2),
	}
	msgs := ProjectMessages(entries)
	require.Len(t, msgs, 3)
	last := msgs[len(msgs)-1]
	require.Len(t, last.Content, 1)
	assert.Equal(t, protocol.BlockToolResult, last.Content[0].Type)
	assert.True(t, last.Content[0].IsError)
}

func TestProjectMessagesExcludesMetaEntries(t *testing.T) {
	entries := []Entry{
		NewUserEntry("hi", 1),
		NewMetaEntry("cc_session_id", "abc123", 1),
		NewAssistantEntry("hello", 2),
	}
	msgs := ProjectMessages(entries)
	require.Len(t, msgs, 2)
}

func TestListSessionsReportsEntryCounts(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, path, NewUserEntry("a", 1)))
	require.NoError(t, store.Append(ctx, path, NewUserEntry("b", 2)))

	infos, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].EntryCount)
	assert.Equal(t, int64(2), infos[0].LastActiveMs)
}
