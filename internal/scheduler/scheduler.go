// Package scheduler polls the store for due scheduled tasks and runs
// them through the orchestrator.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ksofianos/cadre/internal/config"
	"github.com/ksofianos/cadre/internal/events"
	"github.com/ksofianos/cadre/internal/orchestrator"
	"github.com/ksofianos/cadre/internal/schedule"
	"github.com/ksofianos/cadre/internal/store"
)

type Scheduler struct {
	store        *store.Store
	orch         *orchestrator.Orchestrator
	events       *events.Client
	pollInterval time.Duration
	taskTimeout  time.Duration
	reloadCh     chan struct{}
}

func New(s *store.Store, orch *orchestrator.Orchestrator, ev *events.Client, cfg config.SchedulerConfig, defaults config.DefaultsConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		orch:         orch,
		events:       ev,
		pollInterval: cfg.PollInterval,
		taskTimeout:  defaults.TaskTimeout,
		reloadCh:     make(chan struct{}, 1),
	}
}

// UpdatePollInterval changes the poll cadence and signals the run loop
// to reset its ticker.
func (s *Scheduler) UpdatePollInterval(d time.Duration) {
	s.pollInterval = d
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.pollInterval)
			slog.Info("scheduler poll interval updated", "poll_interval", s.pollInterval)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	tasks, err := s.store.GetDueScheduledTasks(time.Now())
	if err != nil {
		slog.Error("failed to get due scheduled tasks", "error", err)
		return
	}

	for _, task := range tasks {
		s.execute(ctx, task)
	}
}

func (s *Scheduler) execute(ctx context.Context, st store.ScheduledTask) {
	slog.Info("executing scheduled task", "id", st.ID, "name", st.Name)

	lastStatus, lastError := s.run(ctx, st)
	if lastError != "" {
		slog.Error("scheduled task failed", "id", st.ID, "error", lastError)
	}

	nextRun := schedule.Next(st.Schedule)
	if err := s.store.UpdateScheduledTaskRun(st.ID, lastStatus, lastError, nextRun); err != nil {
		slog.Error("failed to update scheduled task", "id", st.ID, "error", err)
	}

	if s.events != nil {
		s.events.Emit(events.TopicSchedule(st.ID), events.Event{
			Type: events.EventTaskExecuted,
			Data: map[string]any{"id": st.ID, "name": st.Name, "status": lastStatus},
		})
	}

	// One-shot rules have no next run; retire them instead of re-polling.
	if nextRun == nil {
		slog.Info("no next run, marking scheduled task completed", "id", st.ID, "name", st.Name)
		if err := s.store.UpdateScheduledTaskStatus(st.ID, "completed"); err != nil {
			slog.Error("failed to complete scheduled task", "id", st.ID, "error", err)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, st store.ScheduledTask) (status, errMsg string) {
	var names []string
	if err := json.Unmarshal(st.Agents, &names); err != nil {
		return "error", fmt.Sprintf("parse agents: %v", err)
	}

	agents := make([]orchestrator.Executor, 0, len(names))
	for _, name := range names {
		ex, ok := s.orch.Agent(name)
		if !ok {
			return "error", fmt.Sprintf("agent not registered: %s", name)
		}
		agents = append(agents, ex)
	}

	env := s.orch.ExecuteTask(ctx, &orchestrator.Task{
		Description: st.Description,
		Agents:      agents,
		Mode:        orchestrator.Mode(st.Mode),
		Context:     map[string]any{"scheduled_task": st.Name},
		Timeout:     s.taskTimeout,
	})
	if !env.Success {
		return "error", env.Error
	}
	return "success", ""
}
