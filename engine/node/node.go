// Package node defines the contract between the flow interpreter and
// pluggable units of work.
package node

import (
	"context"
	"time"

	"github.com/flowscript/flowscript/common/state"
	"github.com/flowscript/flowscript/engine/runtime"
)

// Node type classifiers.
const (
	TypeAction  = "action"
	TypeControl = "control"
	TypeHuman   = "human"
)

// Distinguished edge names consumed by loop constructs.
const (
	EdgeNextIteration = "next_iteration"
	EdgeExitLoop      = "exit_loop"
)

// HumanInteraction carries advisory hints for human-interaction nodes.
type HumanInteraction struct {
	DefaultTimeout time.Duration  `json:"defaultTimeout,omitempty"`
	FormSchema     map[string]any `json:"formSchema,omitempty"`
}

// Metadata describes a registered node for discovery and validation tools.
type Metadata struct {
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Type             string            `json:"type"`
	AIHints          map[string]any    `json:"aiHints,omitempty"`
	ExpectedEdges    []string          `json:"expectedEdges,omitempty"`
	HumanInteraction *HumanInteraction `json:"humanInteraction,omitempty"`
}

// Thunk lazily produces an edge's payload. The interpreter evaluates it at
// most once; errors are captured into the payload, never thrown past the
// node.
type Thunk func() (any, error)

// Edge is one named outcome of a node invocation.
type Edge struct {
	Name string
	Data Thunk
}

// Edges is the ordered, non-empty outcome map a node returns. Order is
// significant: the first entry is the effective outcome unless a branch
// construct selects another by name.
type Edges []Edge

// First returns the first edge in insertion order.
func (e Edges) First() (Edge, bool) {
	if len(e) == 0 {
		return Edge{}, false
	}
	return e[0], true
}

// Find returns the edge with the given name.
func (e Edges) Find(name string) (Edge, bool) {
	for _, edge := range e {
		if edge.Name == name {
			return edge, true
		}
	}
	return Edge{}, false
}

// Simple builds an edge with an eagerly known payload.
func Simple(name string, data any) Edge {
	return Edge{Name: name, Data: func() (any, error) { return data, nil }}
}

// Lazy builds an edge whose payload is produced on demand.
func Lazy(name string, fn Thunk) Edge {
	return Edge{Name: name, Data: fn}
}

// ExecutionContext is handed to every node invocation.
type ExecutionContext struct {
	State    *state.Store
	Config   map[string]any
	Runtime  *runtime.Context
	Previous any

	// Iteration count of the innermost enclosing loop construct, starting
	// at zero. Only meaningful for loop controllers.
	LoopIteration int
}

// ConfigString reads a string config field with a fallback.
func (ec *ExecutionContext) ConfigString(key, fallback string) string {
	if v, ok := ec.Config[key].(string); ok {
		return v
	}
	return fallback
}

// Node is a pluggable unit of work. Implementations must not hold
// cross-execution state; the registry calls the node's factory per
// invocation, which for RegisterInstance returns the one shared instance.
type Node interface {
	Metadata() Metadata
	Execute(ctx context.Context, ec *ExecutionContext) (Edges, error)
}

// Factory produces fresh node instances.
type Factory func() Node
