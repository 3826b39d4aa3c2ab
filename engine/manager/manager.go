// Package manager owns the lifecycle of workflow executions: start, resume,
// cancel, status, and cleanup.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowscript/flowscript/common/events"
	"github.com/flowscript/flowscript/common/state"
	"github.com/flowscript/flowscript/engine/history"
	"github.com/flowscript/flowscript/engine/interpreter"
	"github.com/flowscript/flowscript/engine/node"
	"github.com/flowscript/flowscript/engine/registry"
	"github.com/flowscript/flowscript/engine/resolver"
	"github.com/flowscript/flowscript/engine/runtime"
	"github.com/flowscript/flowscript/engine/workflow"
)

// Logger is the narrow logging interface the manager depends on.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// Observer is attached to every new execution's emitter before the first
// node runs. Used to wire event bridges (Redis, WebSocket fanout).
type Observer func(executionID string, emitter *events.Emitter)

// Options configures a Manager.
type Options struct {
	Registry *registry.Registry
	Resolver *resolver.Resolver
	Logger   Logger

	// Delay between acknowledging a start and running the first node, so
	// observers can attach to the execution's emitter. Observers attaching
	// after the window may miss early events.
	SubscribeGrace time.Duration

	MaxFlowDepth int

	// Optional terminal-execution history. Nil disables it.
	History history.Repository

	// Observers attached to every execution at start.
	Observers []Observer
}

// Manager is the process-wide registry of executions.
type Manager struct {
	registry  *registry.Registry
	itp       *interpreter.Interpreter
	log       Logger
	grace     time.Duration
	history   history.Repository
	observers []Observer

	mu         sync.RWMutex
	executions map[string]*execution
}

// New creates a manager.
func New(opts Options) *Manager {
	grace := opts.SubscribeGrace
	if grace == 0 {
		grace = 100 * time.Millisecond
	}
	return &Manager{
		registry: opts.Registry,
		itp: interpreter.New(interpreter.Options{
			Registry: opts.Registry,
			Resolver: opts.Resolver,
			Logger:   opts.Logger,
			MaxDepth: opts.MaxFlowDepth,
		}),
		log:        opts.Logger,
		grace:      grace,
		history:    opts.History,
		observers:  opts.Observers,
		executions: make(map[string]*execution),
	}
}

// StartExecution registers a new execution and spawns the interpreter. The
// returned execution ID is valid before the first node runs; the manager
// waits the subscribe grace window before emitting workflow:started.
func (m *Manager) StartExecution(def *workflow.Definition, initialInput map[string]any) (string, error) {
	if def == nil || def.ID == "" {
		return "", fmt.Errorf("workflow definition is missing an id")
	}

	executionID := uuid.NewString()

	store := state.New(def.InitialState)
	if initialInput != nil {
		store.Update(initialInput)
	}

	emitter := events.NewEmitter()
	rt := runtime.NewContext(def.ID, executionID, emitter, m.log)

	exec := &execution{
		id:         executionID,
		workflowID: def.ID,
		store:      store,
		emitter:    emitter,
		rt:         rt,
		status:     StatusPending,
		startTime:  time.Now(),
	}

	// Track record fields off the execution's own event stream
	emitter.SubscribeAll(exec.observe)

	// Mirror state mutations as events
	store.SetHooks(&state.Hooks{
		AfterUpdate: func(path string, newValue any) {
			rt.Emit(events.StateUpdated, map[string]any{
				"path":     path,
				"newValue": newValue,
			})
		},
	})

	m.mu.Lock()
	m.executions[executionID] = exec
	m.mu.Unlock()

	for _, attach := range m.observers {
		attach(executionID, emitter)
	}

	if m.history != nil {
		if err := m.history.RecordStart(context.Background(), history.Record{
			ExecutionID: executionID,
			WorkflowID:  def.ID,
			Status:      string(StatusPending),
			StartTime:   exec.startTime,
		}); err != nil {
			m.log.Warn("failed to record execution start", "execution_id", executionID, "error", err)
		}
	}

	go m.run(exec, def)

	m.log.Info("execution started", "workflow_id", def.ID, "execution_id", executionID)
	return executionID, nil
}

// run drives one execution to a terminal state.
func (m *Manager) run(exec *execution, def *workflow.Definition) {
	// Subscribe window: give observers time to attach
	time.Sleep(m.grace)

	if exec.isCancelled() {
		return
	}

	exec.setStatus(StatusRunning)
	exec.rt.Emit(events.WorkflowStarted, map[string]any{
		"initialState": exec.store.Snapshot(),
	})

	ec := &node.ExecutionContext{
		State:   exec.store,
		Runtime: exec.rt,
	}

	err := m.itp.Run(context.Background(), def.Nodes, ec, exec.isCancelled)

	switch {
	case errors.Is(err, interpreter.ErrCancelled) || exec.isCancelled():
		// Cancellation already transitioned the record and rejected tokens
		m.finishHistory(exec)

	case err != nil:
		exec.setError(err.Error())
		exec.setStatus(StatusFailed)
		exec.rt.ClearAllTokens()
		exec.rt.Emit(events.WorkflowFailed, map[string]any{
			"error": err.Error(),
			"state": exec.store.Snapshot(),
		})
		m.log.Error("execution failed", "execution_id", exec.id, "error", err)
		m.finishHistory(exec)

	default:
		exec.setStatus(StatusCompleted)
		exec.rt.Emit(events.WorkflowCompleted, map[string]any{
			"finalState": exec.store.Snapshot(),
		})
		m.log.Info("execution completed", "execution_id", exec.id)
		m.finishHistory(exec)
	}
}

func (m *Manager) finishHistory(exec *execution) {
	if m.history == nil {
		return
	}
	snap := exec.snapshot()
	endTime := time.Now()
	if snap.EndTime != nil {
		endTime = *snap.EndTime
	}
	if err := m.history.RecordFinish(context.Background(), exec.id, string(snap.Status), endTime, snap.Error); err != nil {
		m.log.Warn("failed to record execution finish", "execution_id", exec.id, "error", err)
	}
}

// ResumeExecution completes the pause token minted at nodeID with data.
func (m *Manager) ResumeExecution(executionID, nodeID string, data any) error {
	exec, err := m.get(executionID)
	if err != nil {
		return err
	}

	token, ok := exec.rt.FindTokenByNode(nodeID)
	if !ok {
		return ErrNotPaused
	}
	return exec.rt.Resume(token.ID, data)
}

// CancelExecution cancels an execution: the record turns cancelled and all
// outstanding tokens are rejected. In-flight nodes run to completion but
// their outcome is discarded. Idempotent; terminal executions are a no-op.
func (m *Manager) CancelExecution(executionID string) error {
	exec, err := m.get(executionID)
	if err != nil {
		return err
	}

	if !exec.markCancelled() {
		return nil
	}
	exec.rt.ClearAllTokens()
	m.log.Info("execution cancelled", "execution_id", executionID)
	m.finishHistory(exec)
	return nil
}

// GetExecutionStatus returns a snapshot of the execution record.
func (m *Manager) GetExecutionStatus(executionID string) (*Execution, error) {
	exec, err := m.get(executionID)
	if err != nil {
		return nil, err
	}
	return exec.snapshot(), nil
}

// GetAllExecutions returns snapshots of every tracked execution.
func (m *Manager) GetAllExecutions() []*Execution {
	m.mu.RLock()
	list := make([]*execution, 0, len(m.executions))
	for _, exec := range m.executions {
		list = append(list, exec)
	}
	m.mu.RUnlock()

	out := make([]*Execution, 0, len(list))
	for _, exec := range list {
		out = append(out, exec.snapshot())
	}
	return out
}

// GetRuntime exposes an execution's event emitter for subscribers.
func (m *Manager) GetRuntime(executionID string) (*events.Emitter, error) {
	exec, err := m.get(executionID)
	if err != nil {
		return nil, err
	}
	return exec.emitter, nil
}

// CleanupCompleted removes terminal executions older than age and returns
// how many were removed.
func (m *Manager) CleanupCompleted(age time.Duration) int {
	cutoff := time.Now().Add(-age)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, exec := range m.executions {
		snap := exec.snapshot()
		if snap.Status.Terminal() && snap.EndTime != nil && snap.EndTime.Before(cutoff) {
			delete(m.executions, id)
			removed++
		}
	}
	return removed
}

// CleanupLoop sweeps terminal executions until ctx is done.
func (m *Manager) CleanupLoop(ctx context.Context, interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanupCompleted(age); n > 0 {
				m.log.Debug("cleaned up executions", "count", n)
			}
		}
	}
}

func (m *Manager) get(executionID string) (*execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[executionID]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return exec, nil
}
