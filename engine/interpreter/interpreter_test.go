package interpreter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowscript/flowscript/common/events"
	"github.com/flowscript/flowscript/common/logger"
	"github.com/flowscript/flowscript/common/state"
	"github.com/flowscript/flowscript/engine/condition"
	"github.com/flowscript/flowscript/engine/node"
	"github.com/flowscript/flowscript/engine/nodes"
	"github.com/flowscript/flowscript/engine/registry"
	"github.com/flowscript/flowscript/engine/resolver"
	"github.com/flowscript/flowscript/engine/runtime"
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

func (r *recorder) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	itp   *Interpreter
	store *state.Store
	ec    *node.ExecutionContext
	rec   *recorder
}

func newHarness(t *testing.T, initial map[string]any) *harness {
	t.Helper()

	log := logger.Nop()
	eval := condition.NewEvaluator()
	reg := registry.New()
	require.NoError(t, nodes.RegisterBuiltins(reg, nodes.Deps{Evaluator: eval, Logger: log}))

	store := state.New(initial)
	emitter := events.NewEmitter()
	rec := &recorder{}
	emitter.SubscribeAll(rec.handle)

	rt := runtime.NewContext("wf-test", "exec-test", emitter, log)

	return &harness{
		itp: New(Options{
			Registry: reg,
			Resolver: resolver.New(eval),
			Logger:   log,
		}),
		store: store,
		ec:    &node.ExecutionContext{State: store, Runtime: rt},
		rec:   rec,
	}
}

func (h *harness) run(t *testing.T, seq []workflow.Element) error {
	t.Helper()
	return h.itp.Run(context.Background(), seq, h.ec, nil)
}

func TestSequentialNodes(t *testing.T) {
	h := newHarness(t, nil)

	err := h.run(t, []workflow.Element{
		workflow.Configured("setData", map[string]any{"path": "a", "value": 1}),
		workflow.Configured("setData", map[string]any{"path": "b", "value": 2}),
	})
	require.NoError(t, err)

	snap := h.store.Snapshot()
	assert.Equal(t, 1, snap["a"])
	assert.Equal(t, 2, snap["b"])

	executing := h.rec.named(events.NodeExecuting)
	completed := h.rec.named(events.NodeCompleted)
	assert.Len(t, executing, 2)
	assert.Len(t, completed, 2)
}

func TestBranchSelection(t *testing.T) {
	h := newHarness(t, nil)

	err := h.run(t, []workflow.Element{
		workflow.Configured("setData", map[string]any{"path": "x", "value": 1}),
		workflow.Branch(
			workflow.Configured("checkValue", map[string]any{"path": "x", "op": "eq", "value": 1}),
			map[string][]workflow.Element{
				"true":  {workflow.Configured("setData", map[string]any{"path": "y", "value": "A"})},
				"false": {workflow.Configured("setData", map[string]any{"path": "y", "value": "B"})},
			},
		),
	})
	require.NoError(t, err)

	snap := h.store.Snapshot()
	assert.Equal(t, 1, snap["x"])
	assert.Equal(t, "A", snap["y"])

	var checkCompleted *events.Event
	for _, ev := range h.rec.named(events.NodeCompleted) {
		if ev.Data["nodeName"] == "checkValue" {
			checkCompleted = &ev
			break
		}
	}
	require.NotNil(t, checkCompleted)
	assert.Equal(t, "true", checkCompleted.Data["edge"])
}

func TestBranchUnknownEdgeSkips(t *testing.T) {
	h := newHarness(t, map[string]any{"x": 5})

	err := h.run(t, []workflow.Element{
		workflow.Branch(
			workflow.Configured("checkValue", map[string]any{"path": "x", "op": "eq", "value": 1}),
			map[string][]workflow.Element{
				// Only "true" is mapped; the condition returns "false"
				"true": {workflow.Configured("setData", map[string]any{"path": "y", "value": "A"})},
			},
		),
		workflow.Configured("setData", map[string]any{"path": "after", "value": true}),
	})
	require.NoError(t, err)

	snap := h.store.Snapshot()
	assert.NotContains(t, snap, "y")
	assert.Equal(t, true, snap["after"], "execution continues past the skipped branch")

	// node:completed is still emitted for the condition
	assert.NotEmpty(t, h.rec.named(events.NodeCompleted))
}

func TestForEachCounter(t *testing.T) {
	h := newHarness(t, map[string]any{
		"items": []any{"a", "b", "c"},
		"seen":  []any{},
	})

	err := h.run(t, []workflow.Element{
		workflow.Loop(
			workflow.Configured("forEach", map[string]any{"items": "items", "as": "item"}),
			[]workflow.Element{
				workflow.Configured("appendData", map[string]any{"path": "seen", "value": "{{item}}"}),
			},
		),
	})
	require.NoError(t, err)

	snap := h.store.Snapshot()
	assert.Equal(t, []any{"a", "b", "c"}, snap["items"])
	assert.Equal(t, []any{"a", "b", "c"}, snap["seen"])
	assert.Equal(t, 0, snap["_loopIndex"])

	var controllerEdges []string
	for _, ev := range h.rec.named(events.NodeCompleted) {
		if ev.Data["nodeName"] == "forEach" {
			controllerEdges = append(controllerEdges, ev.Data["edge"].(string))
		}
	}
	assert.Equal(t, []string{
		node.EdgeNextIteration,
		node.EdgeNextIteration,
		node.EdgeNextIteration,
		node.EdgeExitLoop,
	}, controllerEdges)
}

func TestWhileCondition(t *testing.T) {
	h := newHarness(t, map[string]any{"counter": 0})

	err := h.run(t, []workflow.Element{
		workflow.Loop(
			workflow.Configured("whileCondition", map[string]any{"condition": "counter < 3"}),
			[]workflow.Element{
				workflow.Configured("setData", map[string]any{"path": "counter", "value": "{{counter + 1}}"}),
			},
		),
	})
	require.NoError(t, err)

	snap := h.store.Snapshot()
	assert.EqualValues(t, 3, snap["counter"])
}

func TestWhileConditionRejectsInjection(t *testing.T) {
	h := newHarness(t, map[string]any{"x": 1})

	err := h.run(t, []workflow.Element{
		workflow.Loop(
			workflow.Configured("whileCondition", map[string]any{"condition": "process.exit()"}),
			[]workflow.Element{
				workflow.Configured("setData", map[string]any{"path": "never", "value": true}),
			},
		),
	})
	require.NoError(t, err, "a rejected expression exits the loop, not the execution")

	snap := h.store.Snapshot()
	assert.Equal(t, 1, snap["x"], "state unchanged")
	assert.NotContains(t, snap, "never")

	completed := h.rec.named(events.NodeCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, node.EdgeExitLoop, completed[0].Data["edge"])
	data := completed[0].Data["edgeData"].(map[string]any)
	assert.Contains(t, data, "error")
}

func TestUnknownNodeFails(t *testing.T) {
	h := newHarness(t, nil)

	err := h.run(t, []workflow.Element{workflow.Ref("doesNotExist")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")

	failed := h.rec.named(events.NodeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "doesNotExist", failed[0].Data["nodeName"])
}

type panickyNode struct{}

func (panickyNode) Metadata() node.Metadata {
	return node.Metadata{Name: "panicky", Type: node.TypeAction}
}

func (panickyNode) Execute(context.Context, *node.ExecutionContext) (node.Edges, error) {
	panic("boom")
}

type thunkErrorNode struct{}

func (thunkErrorNode) Metadata() node.Metadata {
	return node.Metadata{Name: "thunkError", Type: node.TypeAction}
}

func (thunkErrorNode) Execute(context.Context, *node.ExecutionContext) (node.Edges, error) {
	return node.Edges{node.Lazy("success", func() (any, error) {
		return nil, errors.New("payload exploded")
	})}, nil
}

type multiEdgeNode struct{}

func (multiEdgeNode) Metadata() node.Metadata {
	return node.Metadata{Name: "multiEdge", Type: node.TypeControl}
}

func (multiEdgeNode) Execute(context.Context, *node.ExecutionContext) (node.Edges, error) {
	return node.Edges{
		node.Simple("alpha", map[string]any{"pick": "alpha"}),
		node.Simple("beta", map[string]any{"pick": "beta"}),
	}, nil
}

func registerExtra(t *testing.T, h *harness, n node.Node) {
	t.Helper()
	// The harness shares one registry per test instance
	require.NoError(t, registryOf(h).RegisterInstance(n))
}

func registryOf(h *harness) *registry.Registry {
	return h.itp.registry
}

func TestNodePanicFailsExecution(t *testing.T) {
	h := newHarness(t, nil)
	registerExtra(t, h, panickyNode{})

	err := h.run(t, []workflow.Element{workflow.Ref("panicky")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	require.Len(t, h.rec.named(events.NodeFailed), 1)
	assert.Empty(t, h.rec.named(events.NodeCompleted))
}

func TestEdgeThunkErrorIsNonFatal(t *testing.T) {
	h := newHarness(t, nil)
	registerExtra(t, h, thunkErrorNode{})

	err := h.run(t, []workflow.Element{
		workflow.Ref("thunkError"),
		workflow.Configured("setData", map[string]any{"path": "after", "value": true}),
	})
	require.NoError(t, err, "thunk failures never fail the execution")

	completed := h.rec.named(events.NodeCompleted)
	require.Len(t, completed, 2)
	data := completed[0].Data["edgeData"].(map[string]any)
	assert.Equal(t, "payload exploded", data["error"])

	v, _ := h.store.Get("after")
	assert.Equal(t, true, v)
}

func TestMultiEdgeFirstWinsOutsideBranch(t *testing.T) {
	h := newHarness(t, nil)
	registerExtra(t, h, multiEdgeNode{})

	err := h.run(t, []workflow.Element{workflow.Ref("multiEdge")})
	require.NoError(t, err)

	completed := h.rec.named(events.NodeCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "alpha", completed[0].Data["edge"])
}

func TestMultiEdgeBranchMatchByName(t *testing.T) {
	h := newHarness(t, nil)
	registerExtra(t, h, multiEdgeNode{})

	err := h.run(t, []workflow.Element{
		workflow.Branch(
			workflow.Ref("multiEdge"),
			map[string][]workflow.Element{
				// Only beta is mapped: name match beats insertion order
				"beta": {workflow.Configured("setData", map[string]any{"path": "picked", "value": "beta"})},
			},
		),
	})
	require.NoError(t, err)

	v, _ := h.store.Get("picked")
	assert.Equal(t, "beta", v)
}

func TestPreviousDataFlows(t *testing.T) {
	h := newHarness(t, map[string]any{"items": []any{"only"}})

	err := h.run(t, []workflow.Element{
		workflow.Loop(
			workflow.Configured("forEach", map[string]any{"items": "items", "as": "current"}),
			[]workflow.Element{
				workflow.Configured("setData", map[string]any{"path": "copy", "value": "{{current}}"}),
			},
		),
	})
	require.NoError(t, err)

	v, _ := h.store.Get("copy")
	assert.Equal(t, "only", v)
}

func TestDepthGuard(t *testing.T) {
	h := newHarness(t, nil)
	h.itp.maxDepth = 3

	// Nest branches beyond the guard
	el := workflow.Configured("setData", map[string]any{"path": "z", "value": 1})
	for i := 0; i < 10; i++ {
		el = workflow.Branch(
			workflow.Configured("checkValue", map[string]any{"path": "missing", "op": "exists"}),
			map[string][]workflow.Element{"false": {el}},
		)
	}

	err := h.run(t, []workflow.Element{el})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}

func TestNodeIDDerivation(t *testing.T) {
	assert.Equal(t, "setData", deriveNodeID("setData", ""))
	assert.Equal(t, "setData@1.true.0", deriveNodeID("setData", "1.true.0"))
	assert.Equal(t, fmt.Sprintf("x@%s", "0.body.2"), deriveNodeID("x", "0.body.2"))
}

func TestNestedLoopsWithScopedCounters(t *testing.T) {
	h := newHarness(t, map[string]any{
		"outer": []any{"x", "y"},
		"inner": []any{"1", "2"},
		"pairs": []any{},
	})

	err := h.run(t, []workflow.Element{
		workflow.Loop(
			workflow.Configured("forEach", map[string]any{
				"items": "outer", "as": "o", "indexPath": "_outerIdx",
			}),
			[]workflow.Element{
				workflow.Configured("setData", map[string]any{"path": "currentOuter", "value": "{{o}}"}),
				workflow.Loop(
					workflow.Configured("forEach", map[string]any{
						"items": "inner", "as": "i", "indexPath": "_innerIdx",
					}),
					[]workflow.Element{
						workflow.Configured("appendData", map[string]any{
							"path": "pairs", "value": "{{currentOuter}}{{i}}",
						}),
					},
				),
			},
		),
	})
	require.NoError(t, err)

	snap := h.store.Snapshot()
	assert.Equal(t, []any{"x1", "x2", "y1", "y2"}, snap["pairs"])
	assert.Equal(t, 0, snap["_outerIdx"])
	assert.Equal(t, 0, snap["_innerIdx"])
}

func TestLoopIterationResetsBetweenLoops(t *testing.T) {
	h := newHarness(t, map[string]any{
		"a": []any{"1"},
		"b": []any{"2"},
	})

	err := h.run(t, []workflow.Element{
		workflow.Loop(
			workflow.Configured("forEach", map[string]any{"items": "a", "indexPath": "_ia"}),
			nil,
		),
		workflow.Loop(
			workflow.Configured("forEach", map[string]any{"items": "b", "indexPath": "_ib"}),
			nil,
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, h.ec.LoopIteration)
}
