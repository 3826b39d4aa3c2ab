// Package interpreter walks a workflow's flow-element tree, dispatching
// nodes and routing on the edges they return.
package interpreter

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowscript/flowscript/common/events"
	"github.com/flowscript/flowscript/engine/node"
	"github.com/flowscript/flowscript/engine/registry"
	"github.com/flowscript/flowscript/engine/resolver"
	"github.com/flowscript/flowscript/engine/workflow"
)

// ErrCancelled stops the walk when the execution was cancelled externally.
// The in-flight node finishes; its edge data is discarded.
var ErrCancelled = errors.New("execution cancelled")

// Logger is the narrow logging interface the interpreter depends on.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// Options configures an Interpreter.
type Options struct {
	Registry *registry.Registry
	Resolver *resolver.Resolver
	Logger   Logger
	MaxDepth int
}

// Interpreter executes flow-element sequences. It is stateless across runs
// and safe for concurrent use by many executions.
type Interpreter struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	log      Logger
	maxDepth int
}

// New creates an interpreter.
func New(opts Options) *Interpreter {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 100
	}
	return &Interpreter{
		registry: opts.Registry,
		resolver: opts.Resolver,
		log:      opts.Logger,
		maxDepth: maxDepth,
	}
}

// Run walks the sequence until it ends, a node fails, or cancelled reports
// true. cancelled is polled between node invocations; a cancelled run
// returns ErrCancelled.
func (i *Interpreter) Run(ctx context.Context, seq []workflow.Element, ec *node.ExecutionContext, cancelled func() bool) error {
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	r := &run{itp: i, ec: ec, cancelled: cancelled}
	return r.sequence(ctx, seq, "", 0)
}

type run struct {
	itp       *Interpreter
	ec        *node.ExecutionContext
	cancelled func() bool
}

func (r *run) sequence(ctx context.Context, seq []workflow.Element, pos string, depth int) error {
	if depth > r.itp.maxDepth {
		return fmt.Errorf("flow nesting depth exceeded (%d)", r.itp.maxDepth)
	}

	for idx, el := range seq {
		if r.cancelled() {
			return ErrCancelled
		}

		childPos := joinPos(pos, fmt.Sprintf("%d", idx))

		switch el.Kind {
		case workflow.KindNode:
			_, data, err := r.invoke(ctx, el, childPos, nil)
			if err != nil {
				return err
			}
			r.ec.Previous = data

		case workflow.KindBranch:
			if err := r.branch(ctx, el, childPos, depth); err != nil {
				return err
			}

		case workflow.KindLoop:
			if err := r.loop(ctx, el, childPos, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// branch runs the condition node and follows the sub-sequence named by its
// returned edge. Edge names absent from the branch map are a non-fatal
// skip.
func (r *run) branch(ctx context.Context, el workflow.Element, pos string, depth int) error {
	edgeName, data, err := r.invoke(ctx, *el.Condition, joinPos(pos, "cond"), el.Branches)
	if err != nil {
		return err
	}
	r.ec.Previous = data

	sub, known := el.Branches[edgeName]
	if !known || len(sub) == 0 {
		r.itp.log.Debug("branch skipped", "edge", edgeName, "pos", pos)
		return nil
	}
	return r.sequence(ctx, sub, joinPos(pos, edgeName), depth+1)
}

// loop runs the controller until it returns anything other than
// next_iteration, executing the body once per iteration.
func (r *run) loop(ctx context.Context, el workflow.Element, pos string, depth int) error {
	iteration := 0
	defer func() { r.ec.LoopIteration = 0 }()

	for {
		if r.cancelled() {
			return ErrCancelled
		}

		r.ec.LoopIteration = iteration
		edgeName, data, err := r.invoke(ctx, *el.Controller, joinPos(pos, "ctrl"), nil)
		if err != nil {
			return err
		}
		r.ec.Previous = data

		if edgeName != node.EdgeNextIteration {
			// exit_loop, or any unrecognized edge, leaves the loop
			return nil
		}

		if err := r.sequence(ctx, el.Body, joinPos(pos, "body"), depth+1); err != nil {
			return err
		}
		iteration++
	}
}

// invoke executes one leaf node following the invocation protocol: emit
// node:executing, resolve config templates, run the node, select and
// evaluate the effective edge, emit node:completed.
//
// branchEdges, when non-nil, biases edge selection toward names present in
// the branch map; otherwise the first edge in insertion order wins.
func (r *run) invoke(ctx context.Context, el workflow.Element, pos string, branchEdges map[string][]workflow.Element) (string, any, error) {
	name := el.Name
	nodeID := deriveNodeID(name, pos)
	rt := r.ec.Runtime

	if !r.itp.registry.Has(name) {
		err := fmt.Errorf("unknown node: %s", name)
		rt.SetCurrentNode(nodeID, name)
		rt.Emit(events.NodeFailed, map[string]any{
			"nodeId":   nodeID,
			"nodeName": name,
			"error":    err.Error(),
		})
		return "", nil, err
	}

	rt.SetCurrentNode(nodeID, name)
	rt.Emit(events.NodeExecuting, map[string]any{
		"nodeId":   nodeID,
		"nodeName": name,
	})

	r.ec.Config = r.resolveConfig(el.Config)

	inst, err := r.itp.registry.Create(name)
	if err == nil {
		var edges node.Edges
		edges, err = r.executeGuarded(ctx, inst)
		if err == nil {
			if len(edges) == 0 {
				err = fmt.Errorf("node %s returned no edges", name)
			} else {
				if r.cancelled() {
					// The node ran to completion; its outcome is discarded.
					return "", nil, ErrCancelled
				}
				edge := selectEdge(edges, branchEdges)
				data := evaluateThunk(edge)
				rt.Emit(events.NodeCompleted, map[string]any{
					"nodeId":   nodeID,
					"nodeName": name,
					"edge":     edge.Name,
					"edgeData": data,
				})
				return edge.Name, data, nil
			}
		}
	}

	rt.Emit(events.NodeFailed, map[string]any{
		"nodeId":   nodeID,
		"nodeName": name,
		"error":    err.Error(),
	})
	r.itp.log.Error("node execution failed", "node", name, "node_id", nodeID, "error", err)
	return "", nil, fmt.Errorf("node %s: %w", name, err)
}

// executeGuarded runs the node, converting panics into errors.
func (r *run) executeGuarded(ctx context.Context, inst node.Node) (edges node.Edges, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("node panicked: %v", rec)
		}
	}()
	return inst.Execute(ctx, r.ec)
}

// resolveConfig interpolates template placeholders in the config against
// the state snapshot overlaid with the previous edge's payload. Expression
// strings under "condition" are exempt; the evaluator reads state itself.
func (r *run) resolveConfig(config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	tmplCtx := r.ec.State.Snapshot()
	if prev, ok := r.ec.Previous.(map[string]any); ok {
		for k, v := range prev {
			tmplCtx[k] = v
		}
	}

	rawCondition, hasCondition := config["condition"]
	resolved := r.itp.resolver.ResolveConfig(config, tmplCtx)
	if resolved == nil {
		resolved = map[string]any{}
	}
	if hasCondition {
		resolved["condition"] = rawCondition
	}
	return resolved
}

// selectEdge picks the effective outcome: for branches, the first edge
// whose name appears in the branch map; otherwise the first edge in
// insertion order.
func selectEdge(edges node.Edges, branchEdges map[string][]workflow.Element) node.Edge {
	if branchEdges != nil {
		for _, e := range edges {
			if _, ok := branchEdges[e.Name]; ok {
				return e
			}
		}
	}
	first, _ := edges.First()
	return first
}

// evaluateThunk runs an edge's payload producer exactly once. Errors are
// captured into the payload, never thrown past the node.
func evaluateThunk(edge node.Edge) any {
	if edge.Data == nil {
		return nil
	}
	data, err := edge.Data()
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return data
}

func deriveNodeID(name, pos string) string {
	if pos == "" {
		return name
	}
	return fmt.Sprintf("%s@%s", name, pos)
}

func joinPos(pos, seg string) string {
	if pos == "" {
		return seg
	}
	return pos + "." + seg
}
