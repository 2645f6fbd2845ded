package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ksofianos/cadre/internal/agent"
	"github.com/ksofianos/cadre/internal/orchestrator"
	"github.com/ksofianos/cadre/internal/schedule"
	"github.com/ksofianos/cadre/internal/store"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Agents
	mux.HandleFunc("GET /api/agents", s.listAgents)

	// Task execution and run history
	mux.HandleFunc("POST /api/tasks", s.executeTask)
	mux.HandleFunc("POST /api/handoff", s.handoff)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)

	// Scheduled tasks
	mux.HandleFunc("GET /api/schedules", s.listSchedules)
	mux.HandleFunc("POST /api/schedules", s.createSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}/status", s.updateScheduleStatus)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.deleteSchedule)

	// Secrets
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("POST /api/secrets", s.createSecret)
	mux.HandleFunc("DELETE /api/secrets/{name}", s.deleteSecret)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	names := s.orch.AgentNames()
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		entry := map[string]any{"name": name}
		if ex, ok := s.orch.Agent(name); ok {
			if st, ok := ex.(interface{ Stats() agent.Stats }); ok {
				entry["stats"] = st.Stats()
			}
		}
		out = append(out, entry)
	}
	jsonResponse(w, out)
}

type taskRequest struct {
	Description    string         `json:"description"`
	ExpectedOutput string         `json:"expected_output,omitempty"`
	Agents         []string       `json:"agents"`
	Mode           string         `json:"mode,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
}

func (s *Server) executeTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Description == "" {
		jsonError(w, "description is required", http.StatusBadRequest)
		return
	}
	if len(req.Agents) == 0 {
		jsonError(w, "at least one agent is required", http.StatusBadRequest)
		return
	}

	agents, err := s.resolveAgents(req.Agents)
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	mode := orchestrator.Mode(req.Mode)
	if mode == "" {
		mode = orchestrator.ModeSequential
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = s.taskTimeout
	}

	task := &orchestrator.Task{
		Description:    req.Description,
		ExpectedOutput: req.ExpectedOutput,
		Agents:         agents,
		Mode:           mode,
		Context:        req.Context,
		Timeout:        timeout,
	}

	env := s.orch.ExecuteTask(r.Context(), task)
	jsonResponse(w, map[string]any{
		"task_id":  task.ID,
		"success":  env.Success,
		"result":   env.Result,
		"error":    env.Error,
		"duration": env.Duration.String(),
	})
}

func (s *Server) resolveAgents(names []string) ([]orchestrator.Executor, error) {
	agents := make([]orchestrator.Executor, 0, len(names))
	for _, name := range names {
		ex, ok := s.orch.Agent(name)
		if !ok {
			return nil, errors.New("agent not registered: " + name)
		}
		agents = append(agents, ex)
	}
	return agents, nil
}

func (s *Server) handoff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From    string         `json:"from"`
		To      string         `json:"to"`
		Context map[string]any `json:"context,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.To == "" {
		jsonError(w, "target agent is required", http.StatusBadRequest)
		return
	}

	res, err := s.orch.Handoff(r.Context(), req.From, req.To, req.Context)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAgentNotFound) {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, res)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "run history not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.store.ListTaskRuns(50)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.TaskRun{}
	}
	jsonResponse(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "run history not available", http.StatusServiceUnavailable)
		return
	}
	run, err := s.store.GetTaskRun(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "schedules not available", http.StatusServiceUnavailable)
		return
	}
	tasks, err := s.store.ListScheduledTasks()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, map[string]any{
			"id":          t.ID,
			"name":        t.Name,
			"schedule":    schedule.Describe(t.Schedule),
			"description": t.Description,
			"mode":        t.Mode,
			"status":      t.Status,
			"next_run_at": t.NextRunAt,
			"last_run_at": t.LastRunAt,
			"last_status": t.LastStatus,
		})
	}
	jsonResponse(w, out)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "schedules not available", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Name        string   `json:"name"`
		Schedule    string   `json:"schedule"`
		Description string   `json:"description"`
		Mode        string   `json:"mode,omitempty"`
		Agents      []string `json:"agents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Description == "" || len(req.Agents) == 0 {
		jsonError(w, "name, description and agents are required", http.StatusBadRequest)
		return
	}

	rule, err := schedule.Normalize(req.Schedule)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = string(orchestrator.ModeSequential)
	}

	agentsJSON, _ := json.Marshal(req.Agents)
	st := &store.ScheduledTask{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Schedule:    rule,
		Description: req.Description,
		Mode:        req.Mode,
		Agents:      agentsJSON,
		Status:      "active",
		NextRunAt:   schedule.Next(rule),
	}
	if err := s.store.SaveScheduledTask(st); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, st)
}

func (s *Server) updateScheduleStatus(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "schedules not available", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Status != "active" && req.Status != "paused" {
		jsonError(w, "status must be active or paused", http.StatusBadRequest)
		return
	}

	if err := s.store.UpdateScheduledTaskStatus(r.PathValue("id"), req.Status); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "schedules not available", http.StatusServiceUnavailable)
		return
	}
	if err := s.store.DeleteScheduledTask(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "secrets not available", http.StatusServiceUnavailable)
		return
	}
	secrets, err := s.store.ListSecrets()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if secrets == nil {
		secrets = []store.Secret{}
	}
	jsonResponse(w, secrets)
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.vault == nil {
		jsonError(w, "vault not available", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Value == "" {
		jsonError(w, "name and value are required", http.StatusBadRequest)
		return
	}

	if err := s.vault.Store(s.store, req.Name, []byte(req.Value)); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "secrets not available", http.StatusServiceUnavailable)
		return
	}
	if err := s.store.DeleteSecret(r.PathValue("name")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"version":      s.version,
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
		"ws_clients":   s.hub.ClientCount(),
		"orchestrator": s.orch.Stats(),
	})
}
