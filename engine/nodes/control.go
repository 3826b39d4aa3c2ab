package nodes

import (
	"context"

	"github.com/flowscript/flowscript/engine/condition"
	"github.com/flowscript/flowscript/engine/node"
)

type whileConditionNode struct {
	eval *condition.Evaluator
}

func (whileConditionNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:        "whileCondition",
		Description: "Loop controller iterating while a state expression holds",
		Type:        node.TypeControl,
		AIHints: map[string]any{
			"purpose": "loop controller",
			"config":  "condition (expression over state)",
		},
		ExpectedEdges: []string{node.EdgeNextIteration, node.EdgeExitLoop},
	}
}

func (n whileConditionNode) Execute(_ context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	expr := ec.ConfigString("condition", "")

	result, err := n.eval.EvaluateBool(expr, ec.State.Snapshot())
	if err != nil {
		// A broken expression terminates the loop rather than the execution
		return node.Edges{node.Simple(node.EdgeExitLoop, map[string]any{
			"error": err.Error(),
		})}, nil
	}

	if result {
		return node.Edges{node.Simple(node.EdgeNextIteration, map[string]any{
			"iteration": ec.LoopIteration + 1,
		})}, nil
	}
	return node.Edges{node.Simple(node.EdgeExitLoop, map[string]any{
		"totalIterations": ec.LoopIteration,
	})}, nil
}

type forEachNode struct{}

func (forEachNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:        "forEach",
		Description: "Loop controller iterating over the sequence at a state path",
		Type:        node.TypeControl,
		AIHints: map[string]any{
			"purpose": "loop controller",
			"config":  "items (path), as (payload binding), indexPath (counter, default _loopIndex)",
		},
		ExpectedEdges: []string{node.EdgeNextIteration, node.EdgeExitLoop},
	}
}

func (forEachNode) Execute(_ context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	itemsPath := ec.ConfigString("items", "items")
	as := ec.ConfigString("as", "item")
	// Nested loops configure distinct counter paths to avoid collisions
	indexPath := ec.ConfigString("indexPath", "_loopIndex")

	raw, _ := ec.State.Get(itemsPath)
	items, ok := raw.([]any)
	if !ok {
		return node.Edges{node.Simple(node.EdgeExitLoop, map[string]any{
			"error": "items path does not address a sequence: " + itemsPath,
		})}, nil
	}

	idx := 0
	if v, ok := ec.State.Get(indexPath); ok {
		if f, ok := toFloat(v); ok {
			idx = int(f)
		}
	}

	if idx >= len(items) {
		ec.State.Set(indexPath, 0)
		return node.Edges{node.Simple(node.EdgeExitLoop, map[string]any{
			"count": len(items),
		})}, nil
	}

	ec.State.Set(indexPath, idx+1)
	return node.Edges{node.Simple(node.EdgeNextIteration, map[string]any{
		as:      items[idx],
		"index": idx,
	})}, nil
}
