package events

import "time"

// Workflow event names. Every event carries the workflow and execution IDs,
// a timestamp, and an event-specific payload.
const (
	WorkflowStarted   = "workflow:started"
	WorkflowPaused    = "workflow:paused"
	WorkflowResumed   = "workflow:resumed"
	WorkflowCompleted = "workflow:completed"
	WorkflowFailed    = "workflow:failed"

	NodeExecuting = "node:executing"
	NodeCompleted = "node:completed"
	NodeFailed    = "node:failed"

	StateUpdated = "state:updated"

	HumanInputRequired = "human:input:required"
	HumanInputReceived = "human:input:received"
)

// Event is a single workflow lifecycle notification.
type Event struct {
	Name        string         `json:"name"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}
