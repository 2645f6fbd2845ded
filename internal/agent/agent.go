// Package agent implements the autonomous unit of work: reasoning over a
// task with a model provider, consulting memory, invoking tools, and
// returning a uniform result envelope.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ksofianos/cadre/internal/llm"
	"github.com/ksofianos/cadre/internal/memory"
	"github.com/ksofianos/cadre/internal/reasoning"
	"github.com/ksofianos/cadre/internal/tools"
)

type Config struct {
	Name          string
	Role          string
	Goal          string
	Backstory     string
	MaxIterations int
	MemoryEnabled bool
	Temperature   float64
	MaxTokens     int
	Model         string
}

// Response is the content part of a successful execution.
type Response struct {
	Content        string  `json:"content"`
	Confidence     float64 `json:"confidence"`
	ReasoningSteps int     `json:"reasoning_steps"`
}

// ToolResult is one tool invocation's outcome. A failed call is recorded
// here instead of aborting the task.
type ToolResult struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the uniform envelope every execution produces, success or not.
type Result struct {
	Success     bool         `json:"success"`
	Response    *Response    `json:"response,omitempty"`
	Error       string       `json:"error,omitempty"`
	Agent       string       `json:"agent"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// String renders the result the way downstream pipeline stages consume it:
// the response content when successful, the error otherwise.
func (r Result) String() string {
	if r.Success && r.Response != nil {
		return r.Response.Content
	}
	return r.Error
}

// ToolCall names a tool and its arguments, as requested by reasoning.
type ToolCall struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

type record struct {
	Task      string    `json:"task"`
	Response  *Response `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

type Agent struct {
	cfg      Config
	provider llm.Provider
	memory   memory.Backend
	tools    []tools.Tool
	reasoner *reasoning.Reasoner
	conv     *memory.Conversation

	mu        sync.Mutex
	history   []record
	createdAt time.Time
}

// New assembles an agent. provider and mem may be nil; cfg.MemoryEnabled
// false detaches memory even when a backend is supplied.
func New(cfg Config, provider llm.Provider, mem memory.Backend, toolset []tools.Tool) *Agent {
	if !cfg.MemoryEnabled {
		mem = nil
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}

	slog.Info("agent initialized", "name", cfg.Name, "role", cfg.Role)

	return &Agent{
		cfg:       cfg,
		provider:  provider,
		memory:    mem,
		tools:     toolset,
		reasoner:  reasoning.New(provider),
		conv:      memory.NewConversation(20),
		createdAt: time.Now(),
	}
}

func (a *Agent) Name() string { return a.cfg.Name }

// Execute runs the task. It never fails past its own boundary: any internal
// error is converted to a failed Result.
func (a *Agent) Execute(ctx context.Context, task string, taskContext map[string]any) Result {
	slog.Info("agent executing task", "agent", a.cfg.Name, "task", task)

	result, err := a.run(ctx, task, taskContext)
	if err != nil {
		slog.Error("agent execution failed", "agent", a.cfg.Name, "error", err)
		return Result{
			Success: false,
			Error:   err.Error(),
			Agent:   a.cfg.Name,
		}
	}
	return result
}

func (a *Agent) run(ctx context.Context, task string, taskContext map[string]any) (Result, error) {
	var memories []string
	if a.memory != nil {
		var err error
		memories, err = a.memory.Retrieve(ctx, task, 5)
		if err != nil {
			return Result{}, fmt.Errorf("retrieve memories: %w", err)
		}
	}

	prompt := a.buildPrompt(task, taskContext, memories)

	trace, err := a.reasoner.Reason(ctx, prompt, a.cfg.MaxIterations)
	if err != nil {
		return Result{}, fmt.Errorf("reasoning: %w", err)
	}

	var toolResults []ToolResult
	if trace.RequiresTools {
		toolResults = a.executeTools(ctx, a.planToolCalls(ctx, task, trace))
	}

	response := &Response{
		Content:        trace.FinalAnswer(),
		Confidence:     trace.Confidence,
		ReasoningSteps: len(trace.Steps),
	}

	if a.memory != nil {
		entry := fmt.Sprintf("Task: %s\nResponse: %s\nAgent: %s", task, response.Content, a.cfg.Name)
		if err := a.memory.Store(ctx, entry, map[string]any{"agent": a.cfg.Name}); err != nil {
			// Memory write failures degrade recall but not the task itself.
			slog.Warn("failed to store memory", "agent", a.cfg.Name, "error", err)
		}
	}

	a.conv.Add("user", task)
	a.conv.Add("assistant", response.Content)

	a.mu.Lock()
	a.history = append(a.history, record{Task: task, Response: response, Timestamp: time.Now()})
	a.mu.Unlock()

	return Result{
		Success:     true,
		Response:    response,
		Agent:       a.cfg.Name,
		ToolResults: toolResults,
	}, nil
}

func (a *Agent) buildPrompt(task string, taskContext map[string]any, memories []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, a %s.\n\n", a.cfg.Name, a.cfg.Role)
	fmt.Fprintf(&sb, "Your goal: %s", a.cfg.Goal)

	if a.cfg.Backstory != "" {
		fmt.Fprintf(&sb, "\n\nBackground: %s", a.cfg.Backstory)
	}
	if len(memories) > 0 {
		fmt.Fprintf(&sb, "\n\nRelevant memories: %s", strings.Join(memories, " "))
	}
	if recent := a.conv.Format(); recent != "" {
		fmt.Fprintf(&sb, "\n\nRecent conversation:\n%s", recent)
	}
	if len(taskContext) > 0 {
		fmt.Fprintf(&sb, "\n\nContext: %v", taskContext)
	}

	fmt.Fprintf(&sb, "\n\nTask: %s", task)
	return sb.String()
}

// planToolCalls picks which tools to run. With a structured provider the
// model chooses; otherwise every tool whose schema keywords appear in the
// reasoning trace runs with the task as its primary argument.
func (a *Agent) planToolCalls(ctx context.Context, task string, trace *reasoning.Trace) []ToolCall {
	if len(a.tools) == 0 {
		return nil
	}

	if a.provider != nil {
		if calls := a.planWithProvider(ctx, task); len(calls) > 0 {
			return calls
		}
	}

	// Fallback: run the first tool against the task text.
	t := a.tools[0]
	args := map[string]any{}
	if params, ok := t.Schema().Parameters["required"].([]string); ok && len(params) > 0 {
		args[params[0]] = task
	}
	return []ToolCall{{Tool: t.Name(), Arguments: args}}
}

func (a *Agent) planWithProvider(ctx context.Context, task string) []ToolCall {
	var sb strings.Builder
	sb.WriteString("Select the tools needed for this task.\n\nAvailable tools:\n")
	for _, t := range a.tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name(), t.Description())
	}
	fmt.Fprintf(&sb, "\nTask: %s", task)

	out, err := a.provider.GenerateStructured(ctx, sb.String(), map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool_calls": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tool":      map[string]any{"type": "string"},
						"arguments": map[string]any{"type": "object"},
					},
				},
			},
		},
	})
	if err != nil {
		slog.Debug("tool planning failed", "agent", a.cfg.Name, "error", err)
		return nil
	}

	raw, ok := out["tool_calls"].([]any)
	if !ok {
		return nil
	}

	var calls []ToolCall
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		call := ToolCall{Arguments: map[string]any{}}
		if name, ok := m["tool"].(string); ok {
			call.Tool = name
		}
		if args, ok := m["arguments"].(map[string]any); ok {
			call.Arguments = args
		}
		if call.Tool != "" {
			calls = append(calls, call)
		}
	}
	return calls
}

// executeTools runs the requested calls. A failing tool becomes a failed
// entry; it never aborts the agent's task.
func (a *Agent) executeTools(ctx context.Context, calls []ToolCall) []ToolResult {
	var results []ToolResult
	for _, call := range calls {
		tool := a.findTool(call.Tool)
		if tool == nil {
			continue
		}

		out, err := tool.Execute(ctx, call.Arguments)
		if err != nil {
			slog.Error("tool execution failed", "tool", call.Tool, "error", err)
			results = append(results, ToolResult{
				Tool:  call.Tool,
				Error: err.Error(),
			})
			continue
		}
		results = append(results, ToolResult{
			Tool:    call.Tool,
			Success: true,
			Result:  out,
		})
	}
	return results
}

func (a *Agent) findTool(name string) tools.Tool {
	for _, t := range a.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Stats is a point-in-time snapshot of the agent.
type Stats struct {
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	Executions     int       `json:"executions"`
	CreatedAt      time.Time `json:"created_at"`
	MemoryEnabled  bool      `json:"memory_enabled"`
	ToolsAvailable int       `json:"tools_available"`
}

func (a *Agent) Stats() Stats {
	a.mu.Lock()
	executions := len(a.history)
	a.mu.Unlock()

	return Stats{
		Name:           a.cfg.Name,
		Role:           a.cfg.Role,
		Executions:     executions,
		CreatedAt:      a.createdAt,
		MemoryEnabled:  a.memory != nil,
		ToolsAvailable: len(a.tools),
	}
}
