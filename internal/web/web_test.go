package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ksofianos/cadre/internal/agent"
	"github.com/ksofianos/cadre/internal/config"
	"github.com/ksofianos/cadre/internal/events"
	"github.com/ksofianos/cadre/internal/orchestrator"
	"github.com/ksofianos/cadre/internal/store"
	"github.com/ksofianos/cadre/internal/vault"
)

type stubExecutor struct {
	name  string
	fail  bool
	delay time.Duration
}

func (s *stubExecutor) Name() string { return s.name }

func (s *stubExecutor) Execute(ctx context.Context, task string, taskCtx map[string]any) agent.Result {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail {
		return agent.Result{Success: false, Error: "broken", Agent: s.name}
	}
	return agent.Result{
		Success:  true,
		Agent:    s.name,
		Response: &agent.Response{Content: s.name + " output"},
	}
}

func newTestServer(t *testing.T, auth string) *Server {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "cadre.db")})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	orch := orchestrator.New(s, nil)
	orch.AddAgent(&stubExecutor{name: "researcher"})
	orch.AddAgent(&stubExecutor{name: "writer"})

	defaults := config.DefaultsConfig{TaskTimeout: time.Minute}
	return NewServer(s, nil, orch, vault.New("test"), config.WebConfig{Auth: auth}, defaults, "test")
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestExecuteTaskEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/tasks", map[string]any{
		"description": "summarize the findings",
		"agents":      []string{"researcher", "writer"},
		"mode":        "sequential",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		TaskID  string `json:"task_id"`
		Success bool   `json:"success"`
		Result  *orchestrator.ExecutionResult
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Success {
		t.Error("expected success envelope")
	}
	if out.TaskID == "" {
		t.Error("expected task id in response")
	}
	if out.Result == nil || len(out.Result.Results) != 2 {
		t.Fatalf("expected 2 agent results, got %+v", out.Result)
	}

	// The run is persisted and retrievable.
	rec = doJSON(t, h, "GET", "/api/runs/"+out.TaskID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for run lookup, got %d", rec.Code)
	}
}

func TestExecuteTaskDefaultTimeout(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	orch.AddAgent(&stubExecutor{name: "slow", delay: 200 * time.Millisecond})

	// No timeout in the request, so the configured default applies.
	defaults := config.DefaultsConfig{TaskTimeout: 20 * time.Millisecond}
	srv := NewServer(nil, nil, orch, nil, config.WebConfig{}, defaults, "test")

	rec := doJSON(t, srv.Handler(), "POST", "/api/tasks", map[string]any{
		"description": "slow work",
		"agents":      []string{"slow"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Success {
		t.Fatal("expected the configured timeout to fail the task")
	}
	if out.Error != "Task execution timeout" {
		t.Errorf("expected timeout error, got %q", out.Error)
	}
}

func TestExecuteTaskValidation(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/tasks", map[string]any{"agents": []string{"researcher"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing description, got %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/tasks", map[string]any{"description": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing agents, got %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/tasks", map[string]any{
		"description": "x",
		"agents":      []string{"ghost"},
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown agent, got %d", rec.Code)
	}
}

func TestHandoffEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/handoff", map[string]any{
		"from": "researcher",
		"to":   "writer",
		"context": map[string]any{
			"handoff_task": "polish the draft",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var res agent.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Success || res.Agent != "writer" {
		t.Errorf("unexpected handoff result: %+v", res)
	}

	rec = doJSON(t, h, "POST", "/api/handoff", map[string]any{"from": "a", "to": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown target, got %d", rec.Code)
	}
}

func TestListAgents(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, "GET", "/api/agents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var out []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode agents: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(out))
	}
	if out[0]["name"] != "researcher" || out[1]["name"] != "writer" {
		t.Errorf("expected sorted agent names, got %v", out)
	}
}

func TestScheduleEndpoints(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/schedules", map[string]any{
		"name":        "hourly digest",
		"schedule":    "0 * * * *",
		"description": "compile the digest",
		"agents":      []string{"writer"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var created store.ScheduledTask
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if created.NextRunAt == nil {
		t.Error("expected next run computed on create")
	}

	rec = doJSON(t, h, "PUT", "/api/schedules/"+created.ID+"/status", map[string]any{"status": "paused"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, h, "GET", "/api/schedules", nil)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode schedules: %v", err)
	}
	if len(list) != 1 || list[0]["status"] != "paused" {
		t.Errorf("expected 1 paused schedule, got %v", list)
	}

	rec = doJSON(t, h, "POST", "/api/schedules", map[string]any{
		"name":        "bad",
		"schedule":    "not a cron",
		"description": "x",
		"agents":      []string{"writer"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid schedule, got %d", rec.Code)
	}

	rec = doJSON(t, h, "DELETE", "/api/schedules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSecretEndpoints(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/secrets", map[string]any{"name": "api_key", "value": "sk-123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, "GET", "/api/secrets", nil)
	var list []store.Secret
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode secrets: %v", err)
	}
	if len(list) != 1 || list[0].Name != "api_key" {
		t.Errorf("expected api_key listed, got %v", list)
	}

	rec = doJSON(t, h, "DELETE", "/api/secrets/api_key", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, "hunter2")
	h := srv.Handler()

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("any", "hunter2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with credentials, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("any", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong password, got %d", rec.Code)
	}
}

func TestWebSocketStream(t *testing.T) {
	srv := newTestServer(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.hub.ClientCount() != 1 {
		t.Fatal("expected the client attached to the hub")
	}

	srv.hub.Broadcast(events.Event{Type: events.EventTaskStarted, TaskID: "t1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != events.EventTaskStarted || ev.TaskID != "t1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, "GET", "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var out struct {
		Version      string             `json:"version"`
		Orchestrator orchestrator.Stats `json:"orchestrator"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if out.Version != "test" {
		t.Errorf("expected version test, got %s", out.Version)
	}
	if out.Orchestrator.TotalAgents != 2 {
		t.Errorf("expected 2 agents in stats, got %d", out.Orchestrator.TotalAgents)
	}
}
