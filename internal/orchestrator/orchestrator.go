// Package orchestrator coordinates multiple agents over a task: it keeps
// the agent registry, dispatches sequential, parallel, and conditional
// executions, and records run history.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksofianos/cadre/internal/agent"
	"github.com/ksofianos/cadre/internal/events"
	"github.com/ksofianos/cadre/internal/store"
)

// Executor is what the orchestrator runs. Implementations never return
// an error; failures are carried inside the Result.
type Executor interface {
	Name() string
	Execute(ctx context.Context, task string, taskContext map[string]any) agent.Result
}

type Mode string

const (
	ModeSequential  Mode = "sequential"
	ModeParallel    Mode = "parallel"
	ModeConditional Mode = "conditional"
)

// Task describes one orchestrated execution.
type Task struct {
	ID             string
	Description    string
	ExpectedOutput string
	Agents         []Executor
	Mode           Mode
	Context        map[string]any
	Timeout        time.Duration
}

// ExecutionResult is the mode-specific outcome of a finished run.
// FinalOutput is set for sequential runs, SuccessfulAgents for parallel,
// ExecutedAgents for conditional.
type ExecutionResult struct {
	Mode             Mode           `json:"mode"`
	Results          []agent.Result `json:"results"`
	FinalOutput      *agent.Result  `json:"final_output,omitempty"`
	SuccessfulAgents int            `json:"successful_agents,omitempty"`
	ExecutedAgents   int            `json:"executed_agents,omitempty"`
}

// Envelope is what ExecuteTask always returns. Success reflects whether
// orchestration itself ran to completion; individual agent failures live
// in the per-agent results.
type Envelope struct {
	Success  bool             `json:"success"`
	Result   *ExecutionResult `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Record is one finished run in the in-memory history. Only runs whose
// envelope reported success are kept here; the store keeps everything.
type Record struct {
	TaskID      string           `json:"task_id"`
	Description string           `json:"description"`
	Result      *ExecutionResult `json:"result"`
	Duration    time.Duration    `json:"duration"`
	Timestamp   time.Time        `json:"timestamp"`
}

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrUnknownMode   = errors.New("unknown execution mode")

	// ErrTimeout's text is part of the API: clients match on it.
	ErrTimeout = errors.New("Task execution timeout")
)

const defaultTimeout = 300 * time.Second

type Orchestrator struct {
	mu      sync.RWMutex
	agents  map[string]Executor
	history []Record

	store  *store.Store
	events *events.Client
}

// New creates an orchestrator. Both st and ev may be nil: without a
// store runs are not persisted, without an events client nothing is
// published.
func New(st *store.Store, ev *events.Client) *Orchestrator {
	return &Orchestrator{
		agents: make(map[string]Executor),
		store:  st,
		events: ev,
	}
}

// AddAgent registers an executor under its name. Registering the same
// name again replaces the previous entry.
func (o *Orchestrator) AddAgent(ex Executor) {
	o.mu.Lock()
	o.agents[ex.Name()] = ex
	o.mu.Unlock()
	slog.Info("agent registered", "name", ex.Name())
}

// RemoveAgent unregisters by name. Removing an unknown name is a no-op.
func (o *Orchestrator) RemoveAgent(name string) {
	o.mu.Lock()
	_, ok := o.agents[name]
	delete(o.agents, name)
	o.mu.Unlock()
	if ok {
		slog.Info("agent removed", "name", name)
	}
}

func (o *Orchestrator) Agent(name string) (Executor, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ex, ok := o.agents[name]
	return ex, ok
}

func (o *Orchestrator) AgentNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.agents))
	for name := range o.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteTask runs the task in its execution mode. It never returns an
// error: orchestration-level failures (timeout, unknown mode) come back
// as a failed envelope.
func (o *Orchestrator) ExecuteTask(ctx context.Context, task *Task) Envelope {
	start := time.Now()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	slog.Info("executing task", "task_id", task.ID, "mode", task.Mode, "agents", len(task.Agents))

	o.persistStart(task)
	o.emit(task, events.EventTaskStarted, nil)

	result, err := o.dispatch(ctx, task, timeout)
	duration := time.Since(start)

	if err != nil {
		slog.Error("task failed", "task_id", task.ID, "error", err)
		o.persistFinish(task, "failed", nil, err.Error(), duration)
		o.emit(task, events.EventTaskFailed, map[string]any{"error": err.Error()})
		return Envelope{Success: false, Error: err.Error(), Duration: duration}
	}

	o.mu.Lock()
	o.history = append(o.history, Record{
		TaskID:      task.ID,
		Description: task.Description,
		Result:      result,
		Duration:    duration,
		Timestamp:   time.Now(),
	})
	o.mu.Unlock()

	o.persistFinish(task, "completed", result, "", duration)
	o.emit(task, events.EventTaskCompleted, map[string]any{"duration_ms": duration.Milliseconds()})

	return Envelope{Success: true, Result: result, Duration: duration}
}

func (o *Orchestrator) dispatch(ctx context.Context, task *Task, timeout time.Duration) (*ExecutionResult, error) {
	switch task.Mode {
	case ModeSequential:
		return o.executeSequential(ctx, task, timeout)
	case ModeParallel:
		return o.executeParallel(ctx, task, timeout)
	case ModeConditional:
		return o.executeConditional(ctx, task, timeout)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, task.Mode)
	}
}

// executeSequential runs agents in order, feeding each agent the previous
// agent's rendered result as its task. A failed result stops the chain;
// results collected so far are still returned.
func (o *Orchestrator) executeSequential(ctx context.Context, task *Task, timeout time.Duration) (*ExecutionResult, error) {
	taskCtx := cloneContext(task.Context)
	input := task.Description

	var results []agent.Result
	for _, ex := range task.Agents {
		res, err := o.runAgent(ctx, ex, input, taskCtx, timeout)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		taskCtx["previous_results"] = append([]agent.Result(nil), results...)

		if !res.Success {
			slog.Warn("sequential chain stopped", "agent", ex.Name(), "error", res.Error)
			break
		}
		input = res.String()
	}

	er := &ExecutionResult{Mode: ModeSequential, Results: results}
	if len(results) > 0 {
		er.FinalOutput = &results[len(results)-1]
	}
	return er, nil
}

// executeParallel runs all agents concurrently against the same task and
// shared read-only context. Results keep the input agent order. One
// deadline covers the whole batch.
func (o *Orchestrator) executeParallel(ctx context.Context, task *Task, timeout time.Duration) (*ExecutionResult, error) {
	results := make([]agent.Result, len(task.Agents))

	var wg sync.WaitGroup
	for i, ex := range task.Agents {
		wg.Add(1)
		go func(i int, ex Executor) {
			defer wg.Done()
			results[i] = safeExecute(ctx, ex, task.Description, task.Context)
		}(i, ex)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	successful := 0
	for _, res := range results {
		if res.Success {
			successful++
		}
	}

	return &ExecutionResult{
		Mode:             ModeParallel,
		Results:          results,
		SuccessfulAgents: successful,
	}, nil
}

// executeConditional walks agents in order, running each only when no
// agent has run yet or the last executed one succeeded. Skipped agents
// leave no result, so one failure skips the rest of the chain.
func (o *Orchestrator) executeConditional(ctx context.Context, task *Task, timeout time.Duration) (*ExecutionResult, error) {
	taskCtx := cloneContext(task.Context)

	var results []agent.Result
	for _, ex := range task.Agents {
		if len(results) > 0 && !results[len(results)-1].Success {
			slog.Debug("conditional gate closed, skipping agent", "agent", ex.Name())
			continue
		}

		res, err := o.runAgent(ctx, ex, task.Description, taskCtx, timeout)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		taskCtx["results"] = append([]agent.Result(nil), results...)
	}

	return &ExecutionResult{
		Mode:           ModeConditional,
		Results:        results,
		ExecutedAgents: len(results),
	}, nil
}

// runAgent executes one agent under a deadline. The executor itself
// cannot fail, so the only errors are the timeout and context
// cancellation.
func (o *Orchestrator) runAgent(ctx context.Context, ex Executor, task string, taskCtx map[string]any, timeout time.Duration) (agent.Result, error) {
	resCh := make(chan agent.Result, 1)
	go func() {
		resCh <- safeExecute(ctx, ex, task, taskCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		return res, nil
	case <-timer.C:
		return agent.Result{}, ErrTimeout
	case <-ctx.Done():
		return agent.Result{}, ctx.Err()
	}
}

// safeExecute converts an executor panic into a failed result so one
// misbehaving agent cannot take down the orchestrator.
func safeExecute(ctx context.Context, ex Executor, task string, taskCtx map[string]any) (res agent.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("agent panicked", "agent", ex.Name(), "panic", r)
			res = agent.Result{
				Success: false,
				Error:   fmt.Sprintf("agent panic: %v", r),
				Agent:   ex.Name(),
			}
		}
	}()
	return ex.Execute(ctx, task, taskCtx)
}

// Handoff delegates work from one registered agent to another. The task
// comes from handoffCtx["handoff_task"] when present. Handoffs are not
// recorded in the run history.
func (o *Orchestrator) Handoff(ctx context.Context, from, to string, handoffCtx map[string]any) (agent.Result, error) {
	target, ok := o.Agent(to)
	if !ok {
		return agent.Result{}, fmt.Errorf("%w: %s", ErrAgentNotFound, to)
	}

	task := "Continue the work"
	if t, ok := handoffCtx["handoff_task"].(string); ok && t != "" {
		task = t
	}

	slog.Info("agent handoff", "from", from, "to", to, "task", task)
	if o.events != nil {
		o.events.Emit(events.TopicAgent(to), events.Event{
			Type:  events.EventAgentHandoff,
			Agent: to,
			Data:  map[string]any{"from": from},
		})
	}

	return safeExecute(ctx, target, task, handoffCtx), nil
}

// History returns a copy of the successful-run records.
func (o *Orchestrator) History() []Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Record(nil), o.history...)
}

type Stats struct {
	TotalAgents     int      `json:"total_agents"`
	Agents          []string `json:"agents"`
	TotalExecutions int      `json:"total_executions"`
}

func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	executions := len(o.history)
	o.mu.RUnlock()

	return Stats{
		TotalAgents:     len(o.AgentNames()),
		Agents:          o.AgentNames(),
		TotalExecutions: executions,
	}
}

func (o *Orchestrator) persistStart(task *Task) {
	if o.store == nil {
		return
	}
	names := make([]string, len(task.Agents))
	for i, ex := range task.Agents {
		names[i] = ex.Name()
	}
	agents, _ := json.Marshal(names)
	run := &store.TaskRun{
		ID:          task.ID,
		Description: task.Description,
		Mode:        string(task.Mode),
		Status:      "running",
		Agents:      agents,
	}
	if err := o.store.SaveTaskRun(run); err != nil {
		slog.Warn("failed to persist task run", "task_id", task.ID, "error", err)
	}
}

func (o *Orchestrator) persistFinish(task *Task, status string, result *ExecutionResult, errMsg string, duration time.Duration) {
	if o.store == nil {
		return
	}
	var results json.RawMessage
	if result != nil {
		results, _ = json.Marshal(result.Results)
	}
	if err := o.store.UpdateTaskRun(task.ID, status, results, errMsg, duration.Milliseconds()); err != nil {
		slog.Warn("failed to update task run", "task_id", task.ID, "error", err)
	}
}

func (o *Orchestrator) emit(task *Task, eventType string, data map[string]any) {
	if o.events == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["mode"] = string(task.Mode)
	o.events.Emit(events.TopicTask(task.ID), events.Event{
		Type:   eventType,
		TaskID: task.ID,
		Data:   data,
	})
}

func cloneContext(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
