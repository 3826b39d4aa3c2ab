package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowscript/flowscript/common/events"
	"github.com/flowscript/flowscript/common/logger"
	"github.com/flowscript/flowscript/engine/condition"
	"github.com/flowscript/flowscript/engine/nodes"
	"github.com/flowscript/flowscript/engine/registry"
	"github.com/flowscript/flowscript/engine/resolver"
	"github.com/flowscript/flowscript/engine/workflow"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func (r *recorder) find(name string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Name == name {
			return ev, true
		}
	}
	return events.Event{}, false
}

func newTestManager(t *testing.T, observers ...Observer) *Manager {
	t.Helper()

	log := logger.Nop()
	eval := condition.NewEvaluator()
	reg := registry.New()
	require.NoError(t, nodes.RegisterBuiltins(reg, nodes.Deps{Evaluator: eval, Logger: log}))

	return New(Options{
		Registry:       reg,
		Resolver:       resolver.New(eval),
		Logger:         log,
		SubscribeGrace: 5 * time.Millisecond,
		Observers:      observers,
	})
}

func waitForStatus(t *testing.T, m *Manager, executionID string, want Status) *Execution {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.GetExecutionStatus(executionID)
		require.NoError(t, err)
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap, _ := m.GetExecutionStatus(executionID)
	t.Fatalf("execution %s never reached %s (stuck at %s)", executionID, want, snap.Status)
	return nil
}

func simpleWorkflow(id string, elements ...workflow.Element) *workflow.Definition {
	return &workflow.Definition{ID: id, Nodes: elements}
}

func TestStartExecutionRunsToCompletion(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, func(_ string, em *events.Emitter) {
		em.SubscribeAll(rec.handle)
	})

	def := simpleWorkflow("wf-seq",
		workflow.Configured("setData", map[string]any{"path": "a", "value": 1}),
	)
	def.InitialState = map[string]any{"seed": true}

	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)
	require.NotEmpty(t, execID)

	snap := waitForStatus(t, m, execID, StatusCompleted)
	assert.Equal(t, 1, snap.State["a"])
	assert.Equal(t, true, snap.State["seed"])
	assert.NotNil(t, snap.EndTime)

	names := rec.names()
	require.NotEmpty(t, names)
	assert.Equal(t, events.WorkflowStarted, names[0], "event stream begins with workflow:started")
	assert.Equal(t, events.WorkflowCompleted, names[len(names)-1])
	assert.Equal(t, 1, rec.count(events.WorkflowCompleted))
	assert.Zero(t, rec.count(events.WorkflowFailed))
}

func TestInitialInputMergesOverInitialState(t *testing.T) {
	m := newTestManager(t)

	def := simpleWorkflow("wf-input", workflow.Ref("delay"))
	def.InitialState = map[string]any{"a": 1, "nested": map[string]any{"x": 1}}

	execID, err := m.StartExecution(def, map[string]any{
		"b":      2,
		"nested": map[string]any{"y": 2},
	})
	require.NoError(t, err)

	snap := waitForStatus(t, m, execID, StatusCompleted)
	assert.Equal(t, 1, snap.State["a"])
	assert.Equal(t, 2, snap.State["b"])
	nested := snap.State["nested"].(map[string]any)
	assert.Equal(t, 1, nested["x"])
	assert.Equal(t, 2, nested["y"])
}

func TestHumanApproveCycle(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, func(_ string, em *events.Emitter) {
		em.SubscribeAll(rec.handle)
	})

	def := simpleWorkflow("wf-approve", workflow.Ref("approveExpense"))

	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)

	snap := waitForStatus(t, m, execID, StatusPaused)
	require.Len(t, snap.PauseTokenIDs, 1)

	_, ok := rec.find(events.WorkflowPaused)
	assert.True(t, ok)
	required, ok := rec.find(events.HumanInputRequired)
	require.True(t, ok)
	assert.Equal(t, "approveExpense", required.Data["nodeName"])
	assert.NotEmpty(t, required.Data["tokenId"])
	assert.NotNil(t, required.Data["formSchema"])

	err = m.ResumeExecution(execID, "approveExpense", map[string]any{"decision": "approved"})
	require.NoError(t, err)

	snap = waitForStatus(t, m, execID, StatusCompleted)

	decision := snap.State["approvalDecision"].(map[string]any)
	assert.Equal(t, "approved", decision["decision"])
	assert.Empty(t, snap.PauseTokenIDs)

	_, ok = rec.find(events.HumanInputReceived)
	assert.True(t, ok)
	_, ok = rec.find(events.WorkflowResumed)
	assert.True(t, ok)

	completed, ok := rec.find(events.NodeCompleted)
	require.True(t, ok)
	assert.Equal(t, "approved", completed.Data["edge"])

	assert.Equal(t, rec.count(events.WorkflowPaused), rec.count(events.WorkflowResumed),
		"paused events pair with resumed events")
}

func TestResumeErrors(t *testing.T) {
	m := newTestManager(t)

	assert.ErrorIs(t, m.ResumeExecution("ghost", "node", nil), ErrExecutionNotFound)

	def := simpleWorkflow("wf-not-paused",
		workflow.Configured("delay", map[string]any{"duration": "250ms"}),
	)
	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)

	// Running but not paused
	waitForStatus(t, m, execID, StatusRunning)
	assert.ErrorIs(t, m.ResumeExecution(execID, "delay", nil), ErrNotPaused)

	waitForStatus(t, m, execID, StatusCompleted)
}

func TestCancellationDuringHumanWait(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, func(_ string, em *events.Emitter) {
		em.SubscribeAll(rec.handle)
	})

	def := simpleWorkflow("wf-cancel", workflow.Ref("approveExpense"))

	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)

	waitForStatus(t, m, execID, StatusPaused)
	require.NoError(t, m.CancelExecution(execID))

	snap := waitForStatus(t, m, execID, StatusCancelled)
	assert.Empty(t, snap.PauseTokenIDs, "all tokens rejected")

	// The cancel is idempotent and sticky
	require.NoError(t, m.CancelExecution(execID))
	snap, err = m.GetExecutionStatus(execID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snap.Status)

	// Give the runner goroutine time to unwind, then check emissions
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count(events.WorkflowCompleted), "cancelled executions never complete")

	// No node begins executing after the cancel
	executingBefore := rec.count(events.NodeExecuting)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, executingBefore, rec.count(events.NodeExecuting))
}

func TestCancelUnknownExecution(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.CancelExecution("ghost"), ErrExecutionNotFound)
}

func TestFailedExecution(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, func(_ string, em *events.Emitter) {
		em.SubscribeAll(rec.handle)
	})

	def := simpleWorkflow("wf-fail", workflow.Ref("noSuchNode"))

	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)

	snap := waitForStatus(t, m, execID, StatusFailed)
	assert.Contains(t, snap.Error, "unknown node")

	failed, ok := rec.find(events.WorkflowFailed)
	require.True(t, ok)
	assert.Contains(t, failed.Data["error"].(string), "unknown node")
	assert.Zero(t, rec.count(events.WorkflowCompleted))
}

func TestConcurrentExecutionsAreIsolated(t *testing.T) {
	const n = 100

	recorders := make(map[string]*recorder, n)
	var mu sync.Mutex

	m := newTestManager(t, func(executionID string, em *events.Emitter) {
		rec := &recorder{}
		mu.Lock()
		recorders[executionID] = rec
		mu.Unlock()
		em.SubscribeAll(rec.handle)
	})

	def := simpleWorkflow("wf-concurrent",
		workflow.Configured("delay", map[string]any{"duration": "50ms"}),
	)

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := m.StartExecution(def, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		waitForStatus(t, m, id, StatusCompleted)
	}

	for _, id := range ids {
		mu.Lock()
		rec := recorders[id]
		mu.Unlock()

		assert.Equal(t, []string{
			events.WorkflowStarted,
			events.NodeExecuting,
			events.NodeCompleted,
			events.WorkflowCompleted,
		}, rec.names(), "execution %s", id)

		// No cross-delivery: every event carries this execution's ID
		rec.mu.Lock()
		for _, ev := range rec.events {
			assert.Equal(t, id, ev.ExecutionID)
		}
		rec.mu.Unlock()
	}

	assert.Len(t, m.GetAllExecutions(), n)
}

func TestHumanTimeoutEdge(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, func(_ string, em *events.Emitter) {
		em.SubscribeAll(rec.handle)
	})

	def := simpleWorkflow("wf-timeout",
		workflow.Configured("humanInput", map[string]any{"timeout": "30ms"}),
	)

	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)

	snap := waitForStatus(t, m, execID, StatusCompleted)
	assert.Empty(t, snap.PauseTokenIDs)

	completed, ok := rec.find(events.NodeCompleted)
	require.True(t, ok)
	assert.Equal(t, "timeout", completed.Data["edge"])
}

func TestGetExecutionStatusIsolation(t *testing.T) {
	m := newTestManager(t)

	def := simpleWorkflow("wf-snap",
		workflow.Configured("setData", map[string]any{"path": "data.k", "value": "v"}),
	)

	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)
	waitForStatus(t, m, execID, StatusCompleted)

	first, err := m.GetExecutionStatus(execID)
	require.NoError(t, err)
	first.State["data"].(map[string]any)["k"] = "mutated"

	second, err := m.GetExecutionStatus(execID)
	require.NoError(t, err)
	assert.Equal(t, "v", second.State["data"].(map[string]any)["k"],
		"status snapshots are independent copies")
}

func TestGetRuntime(t *testing.T) {
	m := newTestManager(t)

	def := simpleWorkflow("wf-rt", workflow.Ref("approveExpense"))
	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)

	em, err := m.GetRuntime(execID)
	require.NoError(t, err)
	require.NotNil(t, em)

	_, err = m.GetRuntime("ghost")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	require.NoError(t, m.CancelExecution(execID))
}

func TestCleanupCompleted(t *testing.T) {
	m := newTestManager(t)

	def := simpleWorkflow("wf-clean", workflow.Ref("delay"))
	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)
	waitForStatus(t, m, execID, StatusCompleted)

	// Too young to sweep
	assert.Zero(t, m.CleanupCompleted(time.Hour))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, m.CleanupCompleted(10*time.Millisecond))

	_, err = m.GetExecutionStatus(execID)
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestStateUpdatedEvents(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, func(_ string, em *events.Emitter) {
		em.SubscribeAll(rec.handle)
	})

	def := simpleWorkflow("wf-state",
		workflow.Configured("setData", map[string]any{"path": "x", "value": 9}),
	)

	execID, err := m.StartExecution(def, nil)
	require.NoError(t, err)
	waitForStatus(t, m, execID, StatusCompleted)

	updated, ok := rec.find(events.StateUpdated)
	require.True(t, ok)
	assert.Equal(t, "x", updated.Data["path"])
	assert.Equal(t, 9, updated.Data["newValue"])
}
