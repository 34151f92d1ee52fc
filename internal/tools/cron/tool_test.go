package cron

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func newTestTool(t *testing.T) *Tool {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "jobs.json"))
}

func TestTool_Name(t *testing.T) {
	if got := newTestTool(t).Name(); got != "cron" {
		t.Errorf("Name() = %q, want cron", got)
	}
}

func TestTool_AddListRemove(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()

	addParams, _ := json.Marshal(map[string]string{"action": "add", "schedule": "* * * * *", "command": "echo hi"})
	result, err := tool.Execute(ctx, addParams)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if result.IsError {
		t.Fatalf("add returned error: %s", result.Content)
	}

	listResult, err := tool.Execute(ctx, json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(listResult.Content, "job-1") {
		t.Fatalf("expected job-1 in list: %s", listResult.Content)
	}

	removeResult, err := tool.Execute(ctx, json.RawMessage(`{"action":"remove","id":"job-1"}`))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removeResult.IsError {
		t.Fatalf("remove returned error: %s", removeResult.Content)
	}

	listResult, _ = tool.Execute(ctx, json.RawMessage(`{"action":"list"}`))
	if strings.Contains(listResult.Content, "job-1") {
		t.Fatalf("expected job-1 to be removed: %s", listResult.Content)
	}
}

func TestTool_AddInvalidSchedule(t *testing.T) {
	tool := newTestTool(t)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"add","schedule":"not a cron expr","command":"echo hi"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for invalid cron expression")
	}
}

func TestTool_RemoveUnknown(t *testing.T) {
	tool := newTestTool(t)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"remove","id":"does-not-exist"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected error removing unknown job")
	}
}

func TestTool_RunExecutesCommand(t *testing.T) {
	tool := newTestTool(t)
	ctx := context.Background()
	addParams, _ := json.Marshal(map[string]string{"action": "add", "schedule": "@daily", "command": "echo hello-cron"})
	add, err := tool.Execute(ctx, addParams)
	if err != nil || add.IsError {
		t.Fatalf("add failed: %v %+v", err, add)
	}

	runResult, err := tool.Execute(ctx, json.RawMessage(`{"action":"run","id":"job-1"}`))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(runResult.Content, "hello-cron") {
		t.Fatalf("expected command output in result: %s", runResult.Content)
	}
}

func TestTool_UnknownAction(t *testing.T) {
	tool := newTestTool(t)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"bogus"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for unknown action")
	}
}
