package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ksofianos/cadre/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "cadre.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTaskRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	run := &TaskRun{
		ID:          "run1",
		Description: "analyze the data",
		Mode:        "sequential",
		Status:      "running",
		Agents:      json.RawMessage(`["researcher","writer"]`),
	}
	if err := s.SaveTaskRun(run); err != nil {
		t.Fatalf("save task run: %v", err)
	}

	got, err := s.GetTaskRun("run1")
	if err != nil {
		t.Fatalf("get task run: %v", err)
	}
	if got == nil {
		t.Fatal("expected task run, got nil")
	}
	if got.Status != "running" {
		t.Errorf("expected status running, got %s", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("expected no completed_at while running")
	}

	results := json.RawMessage(`[{"success":true,"agent":"researcher"}]`)
	if err := s.UpdateTaskRun("run1", "completed", results, "", 1234); err != nil {
		t.Fatalf("update task run: %v", err)
	}

	got, err = s.GetTaskRun("run1")
	if err != nil {
		t.Fatalf("get task run: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if got.DurationMs != 1234 {
		t.Errorf("expected duration 1234ms, got %d", got.DurationMs)
	}
}

func TestTaskRunRecordsFailure(t *testing.T) {
	s := newTestStore(t)

	run := &TaskRun{
		ID:          "run2",
		Description: "doomed task",
		Mode:        "parallel",
		Status:      "running",
		Agents:      json.RawMessage(`["worker"]`),
	}
	if err := s.SaveTaskRun(run); err != nil {
		t.Fatalf("save task run: %v", err)
	}
	if err := s.UpdateTaskRun("run2", "failed", nil, "Task execution timeout", 5000); err != nil {
		t.Fatalf("update task run: %v", err)
	}

	got, err := s.GetTaskRun("run2")
	if err != nil {
		t.Fatalf("get task run: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("expected status failed, got %s", got.Status)
	}
	if got.Error != "Task execution timeout" {
		t.Errorf("expected error recorded, got %q", got.Error)
	}
}

func TestListTaskRuns(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		run := &TaskRun{ID: id, Description: "t", Mode: "sequential", Status: "completed", Agents: json.RawMessage(`[]`)}
		if err := s.SaveTaskRun(run); err != nil {
			t.Fatalf("save task run: %v", err)
		}
	}

	runs, err := s.ListTaskRuns(2)
	if err != nil {
		t.Fatalf("list task runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs with limit, got %d", len(runs))
	}

	runs, err = s.ListTaskRuns(0)
	if err != nil {
		t.Fatalf("list task runs: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3 runs with default limit, got %d", len(runs))
	}
}

func TestGetTaskRunMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetTaskRun("nope")
	if err != nil {
		t.Fatalf("get task run: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing run")
	}
}

func TestScheduledTaskDue(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := &ScheduledTask{
		ID: "s1", Name: "hourly report", Schedule: "0 * * * *",
		Description: "write the report", Mode: "sequential",
		Agents: json.RawMessage(`["writer"]`), Status: "active", NextRunAt: &past,
	}
	notDue := &ScheduledTask{
		ID: "s2", Name: "daily digest", Schedule: "0 9 * * *",
		Description: "digest", Mode: "sequential",
		Agents: json.RawMessage(`["writer"]`), Status: "active", NextRunAt: &future,
	}
	paused := &ScheduledTask{
		ID: "s3", Name: "paused", Schedule: "* * * * *",
		Description: "paused", Mode: "sequential",
		Agents: json.RawMessage(`["writer"]`), Status: "paused", NextRunAt: &past,
	}
	for _, st := range []*ScheduledTask{due, notDue, paused} {
		if err := s.SaveScheduledTask(st); err != nil {
			t.Fatalf("save scheduled task: %v", err)
		}
	}

	got, err := s.GetDueScheduledTasks(time.Now())
	if err != nil {
		t.Fatalf("get due tasks: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("expected only s1 due, got %+v", got)
	}

	next := time.Now().Add(time.Hour)
	if err := s.UpdateScheduledTaskRun("s1", "success", "", &next); err != nil {
		t.Fatalf("update scheduled task run: %v", err)
	}

	got, err = s.GetDueScheduledTasks(time.Now())
	if err != nil {
		t.Fatalf("get due tasks: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no due tasks after reschedule, got %d", len(got))
	}

	updated, err := s.GetScheduledTask("s1")
	if err != nil {
		t.Fatalf("get scheduled task: %v", err)
	}
	if updated.LastStatus != "success" {
		t.Errorf("expected last_status success, got %s", updated.LastStatus)
	}
	if updated.LastRunAt == nil {
		t.Error("expected last_run_at to be set")
	}
}

func TestSyncAgents(t *testing.T) {
	s := newTestStore(t)

	err := s.SyncAgents([]AgentRow{
		{Name: "researcher", Role: "analyst", Goal: "dig", Tools: []string{"web_search"}, MemoryEnabled: true},
		{Name: "writer", Role: "author"},
	})
	if err != nil {
		t.Fatalf("sync agents: %v", err)
	}

	got, err := s.ListAgents()
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(got))
	}
	if got[0].Name != "researcher" || !got[0].MemoryEnabled {
		t.Errorf("unexpected first row: %+v", got[0])
	}
	if len(got[0].Tools) != 1 || got[0].Tools[0] != "web_search" {
		t.Errorf("expected tools round-tripped, got %v", got[0].Tools)
	}

	// A second sync replaces the roster.
	if err := s.SyncAgents([]AgentRow{{Name: "writer", Role: "author"}}); err != nil {
		t.Fatalf("resync agents: %v", err)
	}
	got, err = s.ListAgents()
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(got) != 1 || got[0].Name != "writer" {
		t.Errorf("expected roster replaced, got %+v", got)
	}
}

func TestSecretUpsertByName(t *testing.T) {
	s := newTestStore(t)

	first := &Secret{ID: "sec1", Name: "api_key", Value: []byte("cipher1"), Nonce: []byte("n1")}
	if err := s.SaveSecret(first); err != nil {
		t.Fatalf("save secret: %v", err)
	}

	second := &Secret{ID: "sec2", Name: "api_key", Value: []byte("cipher2"), Nonce: []byte("n2")}
	if err := s.SaveSecret(second); err != nil {
		t.Fatalf("upsert secret: %v", err)
	}

	got, err := s.GetSecret("api_key")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if string(got.Value) != "cipher2" {
		t.Errorf("expected updated ciphertext, got %q", got.Value)
	}

	list, err := s.ListSecrets()
	if err != nil {
		t.Fatalf("list secrets: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 secret after upsert, got %d", len(list))
	}
	if len(list[0].Value) != 0 {
		t.Error("list must not expose ciphertext")
	}

	if err := s.DeleteSecret("api_key"); err != nil {
		t.Fatalf("delete secret: %v", err)
	}
	got, err = s.GetSecret("api_key")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}
