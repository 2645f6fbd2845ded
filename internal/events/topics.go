package events

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicTask(taskID string) string {
	return fmt.Sprintf("events.task.%s", taskID)
}

func TopicAgent(name string) string {
	return fmt.Sprintf("events.agent.%s", name)
}

func TopicSchedule(scheduleID string) string {
	return fmt.Sprintf("events.schedule.%s", scheduleID)
}

const (
	TopicAll       = "events.>"
	TopicTasks     = "events.task.*"
	TopicAgents    = "events.agent.*"
	TopicSchedules = "events.schedule.*"
)

// Event type names used across the orchestrator and scheduler.
const (
	EventTaskStarted   = "task_started"
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
	EventAgentHandoff  = "agent_handoff"
	EventTaskExecuted  = "task_executed"
)
