package nodes

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/flowscript/flowscript/engine/condition"
	"github.com/flowscript/flowscript/engine/node"
)

type checkValueNode struct {
	eval *condition.Evaluator
}

func (checkValueNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:        "checkValue",
		Description: "Compares the value at a state path against an expected value",
		Type:        node.TypeControl,
		AIHints: map[string]any{
			"purpose": "branch condition",
			"config":  "path, op (eq|neq|gt|gte|lt|lte|contains|exists), value — or a condition expression",
		},
		ExpectedEdges: []string{"true", "false"},
	}
}

func (n checkValueNode) Execute(_ context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	// Expression form takes precedence when configured
	if expr, ok := ec.Config["condition"].(string); ok && expr != "" {
		result, err := n.eval.EvaluateBool(expr, ec.State.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", expr, err)
		}
		return verdictEdges(result, map[string]any{"condition": expr}), nil
	}

	path := ec.ConfigString("path", "")
	op := ec.ConfigString("op", ec.ConfigString("operator", "eq"))
	expected := ec.Config["value"]

	actual, present := ec.State.Get(path)
	result, err := compare(op, actual, expected, present)
	if err != nil {
		return nil, err
	}

	return verdictEdges(result, map[string]any{
		"path":     path,
		"actual":   actual,
		"expected": expected,
	}), nil
}

func verdictEdges(result bool, data map[string]any) node.Edges {
	name := "false"
	if result {
		name = "true"
	}
	data["result"] = result
	return node.Edges{node.Simple(name, data)}
}

func compare(op string, actual, expected any, present bool) (bool, error) {
	switch op {
	case "exists":
		return present, nil
	case "eq":
		return looseEqual(actual, expected), nil
	case "neq", "ne":
		return !looseEqual(actual, expected), nil
	case "contains":
		switch a := actual.(type) {
		case string:
			s, _ := expected.(string)
			return strings.Contains(a, s), nil
		case []any:
			for _, item := range a {
				if looseEqual(item, expected) {
					return true, nil
				}
			}
			return false, nil
		}
		return false, nil
	case "gt", "gte", "lt", "lte":
		av, aok := toFloat(actual)
		ev, eok := toFloat(expected)
		if !aok || !eok {
			return false, fmt.Errorf("operator %s requires numeric operands", op)
		}
		switch op {
		case "gt":
			return av > ev, nil
		case "gte":
			return av >= ev, nil
		case "lt":
			return av < ev, nil
		default:
			return av <= ev, nil
		}
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}

// looseEqual compares values the way JSON does: all numbers are comparable
// regardless of Go type.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
