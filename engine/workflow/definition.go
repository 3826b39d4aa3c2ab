// Package workflow models declarative workflow definitions: a tree of flow
// elements interpreted against a shared state document.
package workflow

import (
	"encoding/json"
	"fmt"
)

// ElementKind discriminates the flow-element union.
type ElementKind int

const (
	// KindNode is a node reference or configured node.
	KindNode ElementKind = iota
	// KindBranch is a [condition, branch-map] tuple.
	KindBranch
	// KindLoop is a [controller, body] tuple.
	KindLoop
)

// Element is one unit of the workflow tree.
type Element struct {
	Kind ElementKind

	// KindNode
	Name   string
	Config map[string]any

	// KindBranch
	Condition *Element
	Branches  map[string][]Element

	// KindLoop
	Controller *Element
	Body       []Element
}

// Ref builds a bare node reference.
func Ref(name string) Element {
	return Element{Kind: KindNode, Name: name}
}

// Configured builds a node reference with config.
func Configured(name string, config map[string]any) Element {
	return Element{Kind: KindNode, Name: name, Config: config}
}

// Branch builds a branch construct.
func Branch(condition Element, branches map[string][]Element) Element {
	return Element{Kind: KindBranch, Condition: &condition, Branches: branches}
}

// Loop builds a loop construct.
func Loop(controller Element, body []Element) Element {
	return Element{Kind: KindLoop, Controller: &controller, Body: body}
}

// Definition is an immutable workflow: an ordered element sequence plus the
// seed state.
type Definition struct {
	ID           string
	Name         string
	InitialState map[string]any
	Nodes        []Element
	Metadata     map[string]any
}

type definitionJSON struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	InitialState map[string]any `json:"initialState"`
	Nodes        []any          `json:"nodes"`
	Metadata     map[string]any `json:"metadata"`
}

// ParseDefinition loads and validates a JSON workflow document. Unknown
// top-level fields are ignored; malformed flow elements are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	var raw definitionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid workflow document: %w", err)
	}
	if raw.ID == "" {
		return nil, fmt.Errorf("workflow is missing an id")
	}

	elements, err := ParseElements(raw.Nodes)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", raw.ID, err)
	}

	return &Definition{
		ID:           raw.ID,
		Name:         raw.Name,
		InitialState: raw.InitialState,
		Nodes:        elements,
		Metadata:     raw.Metadata,
	}, nil
}

// ParseElements converts a decoded JSON sequence into flow elements.
func ParseElements(items []any) ([]Element, error) {
	out := make([]Element, 0, len(items))
	for i, item := range items {
		el, err := ParseElement(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, el)
	}
	return out, nil
}

// ParseElement converts one decoded JSON value into a flow element.
func ParseElement(item any) (Element, error) {
	switch v := item.(type) {
	case string:
		if v == "" {
			return Element{}, fmt.Errorf("empty node reference")
		}
		return Ref(v), nil

	case map[string]any:
		if len(v) != 1 {
			return Element{}, fmt.Errorf("configured node must have exactly one entry, got %d", len(v))
		}
		for name, cfg := range v {
			config, ok := cfg.(map[string]any)
			if cfg != nil && !ok {
				return Element{}, fmt.Errorf("node %s: config must be a mapping", name)
			}
			return Configured(name, config), nil
		}
		return Element{}, nil

	case []any:
		if len(v) != 2 {
			return Element{}, fmt.Errorf("construct tuple must have exactly 2 entries, got %d", len(v))
		}
		head, err := ParseElement(v[0])
		if err != nil {
			return Element{}, err
		}
		if head.Kind != KindNode {
			return Element{}, fmt.Errorf("construct head must be a node reference or configured node")
		}

		switch tail := v[1].(type) {
		case map[string]any:
			branches := make(map[string][]Element, len(tail))
			for edge, sub := range tail {
				if sub == nil {
					branches[edge] = nil
					continue
				}
				seq, ok := sub.([]any)
				if !ok {
					// A single element is accepted as a one-element sequence
					el, err := ParseElement(sub)
					if err != nil {
						return Element{}, fmt.Errorf("branch %q: %w", edge, err)
					}
					branches[edge] = []Element{el}
					continue
				}
				elements, err := ParseElements(seq)
				if err != nil {
					return Element{}, fmt.Errorf("branch %q: %w", edge, err)
				}
				branches[edge] = elements
			}
			return Branch(head, branches), nil

		case []any:
			body, err := ParseElements(tail)
			if err != nil {
				return Element{}, fmt.Errorf("loop body: %w", err)
			}
			return Loop(head, body), nil

		default:
			return Element{}, fmt.Errorf("construct tail must be a branch map or loop body")
		}

	default:
		return Element{}, fmt.Errorf("unsupported flow element of type %T", item)
	}
}
