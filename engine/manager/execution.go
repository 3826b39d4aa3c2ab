package manager

import (
	"sync"
	"time"

	"github.com/flowscript/flowscript/common/events"
	"github.com/flowscript/flowscript/common/state"
	"github.com/flowscript/flowscript/engine/runtime"
)

// Status is the lifecycle state of an execution. Terminal statuses are
// sticky.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Execution is a caller-facing snapshot of one execution record. State is
// deep-copied; mutating it does not affect the running execution.
type Execution struct {
	ExecutionID     string         `json:"executionId"`
	WorkflowID      string         `json:"workflowId"`
	Status          Status         `json:"status"`
	StartTime       time.Time      `json:"startTime"`
	EndTime         *time.Time     `json:"endTime,omitempty"`
	CurrentNodeID   string         `json:"currentNodeId,omitempty"`
	CurrentNodeName string         `json:"currentNodeName,omitempty"`
	PauseTokenIDs   []string       `json:"pauseTokenIds"`
	State           map[string]any `json:"state"`
	Error           string         `json:"error,omitempty"`
}

// execution is the live record owned by the manager.
type execution struct {
	id         string
	workflowID string

	store   *state.Store
	emitter *events.Emitter
	rt      *runtime.Context

	mu              sync.Mutex
	status          Status
	startTime       time.Time
	endTime         *time.Time
	currentNodeID   string
	currentNodeName string
	lastError       string
	cancelled       bool
}

// observe tracks the record fields off the execution's own event stream.
// Registered as a wildcard subscriber before the runner goroutine starts.
func (e *execution) observe(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Name {
	case events.NodeExecuting:
		e.currentNodeID, _ = ev.Data["nodeId"].(string)
		e.currentNodeName, _ = ev.Data["nodeName"].(string)
	case events.WorkflowPaused:
		if !e.status.Terminal() {
			e.status = StatusPaused
		}
	case events.WorkflowResumed:
		if !e.status.Terminal() {
			e.status = StatusRunning
		}
	}
}

func (e *execution) setStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Terminal() {
		return
	}
	e.status = s
	if s.Terminal() {
		now := time.Now()
		e.endTime = &now
	}
}

func (e *execution) setError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastError = msg
}

func (e *execution) markCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Terminal() {
		return false
	}
	e.cancelled = true
	e.status = StatusCancelled
	now := time.Now()
	e.endTime = &now
	return true
}

func (e *execution) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// snapshot produces the caller-facing view.
func (e *execution) snapshot() *Execution {
	tokens := e.rt.ActiveTokens()
	tokenIDs := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenIDs = append(tokenIDs, t.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var endTime *time.Time
	if e.endTime != nil {
		t := *e.endTime
		endTime = &t
	}

	return &Execution{
		ExecutionID:     e.id,
		WorkflowID:      e.workflowID,
		Status:          e.status,
		StartTime:       e.startTime,
		EndTime:         endTime,
		CurrentNodeID:   e.currentNodeID,
		CurrentNodeName: e.currentNodeName,
		PauseTokenIDs:   tokenIDs,
		State:           e.store.Snapshot(),
		Error:           e.lastError,
	}
}
