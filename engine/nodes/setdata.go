// Package nodes provides the built-in node implementations registered with
// every engine instance.
package nodes

import (
	"context"

	"github.com/flowscript/flowscript/engine/node"
)

type setDataNode struct{}

func (setDataNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:        "setData",
		Description: "Writes a value at a state path, creating intermediate containers",
		Type:        node.TypeAction,
		AIHints: map[string]any{
			"purpose": "state mutation",
			"config":  "path, value",
		},
		ExpectedEdges: []string{"success"},
	}
}

func (setDataNode) Execute(_ context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	path := ec.ConfigString("path", "")
	value := ec.Config["value"]
	ec.State.Set(path, value)
	return node.Edges{node.Simple("success", map[string]any{
		"path":  path,
		"value": value,
	})}, nil
}

type appendDataNode struct{}

func (appendDataNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:        "appendData",
		Description: "Appends a value to the sequence at a state path",
		Type:        node.TypeAction,
		AIHints: map[string]any{
			"purpose": "state mutation",
			"config":  "path, value",
		},
		ExpectedEdges: []string{"success"},
	}
}

func (appendDataNode) Execute(_ context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	path := ec.ConfigString("path", "")
	value := ec.Config["value"]

	seq, _ := ec.State.Get(path)
	items, ok := seq.([]any)
	if !ok {
		items = nil
	}
	items = append(items, value)
	ec.State.Set(path, items)

	return node.Edges{node.Simple("success", map[string]any{
		"path":   path,
		"length": len(items),
	})}, nil
}

type deleteDataNode struct{}

func (deleteDataNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:          "deleteData",
		Description:   "Removes the value at a state path",
		Type:          node.TypeAction,
		ExpectedEdges: []string{"success"},
	}
}

func (deleteDataNode) Execute(_ context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	path := ec.ConfigString("path", "")
	ec.State.Delete(path)
	return node.Edges{node.Simple("success", map[string]any{"path": path})}, nil
}
