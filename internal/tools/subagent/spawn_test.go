package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, manager *Manager, id string, want string) *Task {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		task, ok := manager.Get(id)
		require.True(t, ok)
		if task.Status == want {
			return task
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %s never reached status %q", id, want)
	return nil
}

func TestNewManagerDefaultsMaxActive(t *testing.T) {
	assert.Equal(t, 10, NewManager(nil, 10).maxActive)
	assert.Equal(t, 5, NewManager(nil, 0).maxActive)
	assert.Equal(t, 5, NewManager(nil, -1).maxActive)
}

func TestSpawnRunsTaskAndReportsCompletion(t *testing.T) {
	manager := NewManager(func(ctx context.Context, agentID, task string) (string, error) {
		return "done: " + task, nil
	}, 5)

	st, err := manager.Spawn("research x", "main")
	require.NoError(t, err)

	completed := waitForStatus(t, manager, st.ID, "completed")
	assert.Equal(t, "done: research x", completed.Output)
}

func TestSpawnReportsFailureFromRunner(t *testing.T) {
	manager := NewManager(func(ctx context.Context, agentID, task string) (string, error) {
		return "", errors.New("boom")
	}, 5)

	st, err := manager.Spawn("bad task", "main")
	require.NoError(t, err)

	failed := waitForStatus(t, manager, st.ID, "failed")
	assert.Equal(t, "boom", failed.Error)
}

func TestSpawnRejectsEmptyTask(t *testing.T) {
	manager := NewManager(func(ctx context.Context, agentID, task string) (string, error) { return "", nil }, 5)
	_, err := manager.Spawn("", "main")
	assert.Error(t, err)
}

func TestSpawnDefaultsAgentIDToMain(t *testing.T) {
	manager := NewManager(func(ctx context.Context, agentID, task string) (string, error) {
		assert.Equal(t, "main", agentID)
		return "ok", nil
	}, 5)
	st, err := manager.Spawn("task", "")
	require.NoError(t, err)
	waitForStatus(t, manager, st.ID, "completed")
}

func TestSpawnRejectsOverCapacity(t *testing.T) {
	release := make(chan struct{})
	manager := NewManager(func(ctx context.Context, agentID, task string) (string, error) {
		<-release
		return "done", nil
	}, 1)
	defer close(release)

	_, err := manager.Spawn("first", "main")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = manager.Spawn("second", "main")
	assert.Error(t, err)
}

func TestSetRunnerRebindsRunnerForFutureTasks(t *testing.T) {
	manager := NewManager(nil, 5)
	manager.SetRunner(func(ctx context.Context, agentID, task string) (string, error) {
		return "wired: " + task, nil
	})

	st, err := manager.Spawn("task", "main")
	require.NoError(t, err)
	completed := waitForStatus(t, manager, st.ID, "completed")
	assert.Equal(t, "wired: task", completed.Output)
}

func TestManagerRunWithoutRunnerFails(t *testing.T) {
	manager := NewManager(nil, 5)
	st, err := manager.Spawn("task", "main")
	require.NoError(t, err)
	failed := waitForStatus(t, manager, st.ID, "failed")
	assert.Contains(t, failed.Error, "no runner configured")
}

func TestSpawnToolAndStatusToolIntegrateViaJSON(t *testing.T) {
	manager := NewManager(func(ctx context.Context, agentID, task string) (string, error) {
		return "result", nil
	}, 5)
	spawnTool := NewSpawnTool(manager)
	statusTool := NewStatusTool(manager)

	result, err := spawnTool.Execute(context.Background(), json.RawMessage(`{"task":"do it"}`))
	require.NoError(t, err)
	var spawned struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &spawned))
	require.NotEmpty(t, spawned.TaskID)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		statusResult, err := statusTool.Execute(context.Background(), json.RawMessage(`{"task_id":"`+spawned.TaskID+`"}`))
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(statusResult.Content), &decoded))
		if decoded["status"] != "running" {
			assert.Contains(t, statusResult.Content, "result")
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("spawn_status never reported completion")
}

func TestSpawnPersistsTaskStateUnderStateDir(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(func(ctx context.Context, agentID, task string) (string, error) {
		return "persisted result", nil
	}, 5)
	manager.SetStateDir(dir)

	st, err := manager.Spawn("persist me", "main")
	require.NoError(t, err)
	waitForStatus(t, manager, st.ID, "completed")

	input, err := os.ReadFile(filepath.Join(dir, st.ID, "input.json"))
	require.NoError(t, err)
	assert.Contains(t, string(input), "persist me")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		status, err := os.ReadFile(filepath.Join(dir, st.ID, "status"))
		if err == nil && string(status) == "completed" {
			output, err := os.ReadFile(filepath.Join(dir, st.ID, "output"))
			require.NoError(t, err)
			assert.Equal(t, "persisted result", string(output))
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("task state never reached completed on disk")
}

func TestStatusToolUnknownTaskIsError(t *testing.T) {
	statusTool := NewStatusTool(NewManager(nil, 1))
	result, err := statusTool.Execute(context.Background(), json.RawMessage(`{"task_id":"nope"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSpawnToolRequiresTaskField(t *testing.T) {
	spawnTool := NewSpawnTool(NewManager(nil, 1))
	result, err := spawnTool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
