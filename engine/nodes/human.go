package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowscript/flowscript/common/events"
	"github.com/flowscript/flowscript/engine/node"
	"github.com/flowscript/flowscript/engine/runtime"
)

// humanNode suspends the execution on a pause token, announces the required
// input, and resumes when an external caller supplies data. Concrete human
// nodes differ only in their form schema, output path, and decision field.
type humanNode struct {
	meta           node.Metadata
	outputPath     string
	decisionField  string
	defaultTimeout time.Duration
}

func (n humanNode) Metadata() node.Metadata { return n.meta }

func (n humanNode) Execute(ctx context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	rt := ec.Runtime

	token, err := rt.Pause()
	if err != nil {
		return nil, err
	}

	nodeID, nodeName := rt.CurrentNode()
	formSchema := n.formSchema(ec)
	timeout := n.timeout(ec)

	rt.Emit(events.HumanInputRequired, map[string]any{
		"nodeId":        nodeID,
		"nodeName":      nodeName,
		"tokenId":       token.ID,
		"formSchema":    formSchema,
		"uiHints":       ec.Config["uiHints"],
		"timeout":       timeout.Milliseconds(),
		"defaultValues": ec.Config["defaultValues"],
		"contextData":   ec.Config["contextData"],
	})

	data, err := rt.WaitForResume(ctx, token, timeout)
	if errors.Is(err, runtime.ErrTokenTimeout) {
		return node.Edges{node.Simple("timeout", map[string]any{})}, nil
	}
	if err != nil {
		return node.Edges{node.Simple("error", map[string]any{
			"reason": err.Error(),
		})}, nil
	}

	rt.Emit(events.HumanInputReceived, map[string]any{
		"nodeId":   nodeID,
		"nodeName": nodeName,
		"tokenId":  token.ID,
		"input":    data,
	})

	input, _ := data.(map[string]any)
	if input == nil {
		input = map[string]any{}
	}

	if formSchema != nil {
		if err := validateAgainstSchema(formSchema, input); err != nil {
			return node.Edges{node.Simple("error", map[string]any{
				"reason": fmt.Sprintf("input rejected by form schema: %v", err),
				"input":  input,
			})}, nil
		}
	}

	outputPath := ec.ConfigString("outputPath", n.outputPath)
	if outputPath != "" {
		ec.State.Set(outputPath, input)
	}

	edge := "submitted"
	if decision, ok := input[n.decisionField].(string); ok && decision != "" {
		edge = decision
	}
	return node.Edges{node.Simple(edge, input)}, nil
}

func (n humanNode) formSchema(ec *node.ExecutionContext) map[string]any {
	if schema, ok := ec.Config["formSchema"].(map[string]any); ok {
		return schema
	}
	if n.meta.HumanInteraction != nil {
		return n.meta.HumanInteraction.FormSchema
	}
	return nil
}

func (n humanNode) timeout(ec *node.ExecutionContext) time.Duration {
	if d := parseDuration(ec.Config["timeout"]); d > 0 {
		return d
	}
	if n.meta.HumanInteraction != nil && n.meta.HumanInteraction.DefaultTimeout > 0 {
		return n.meta.HumanInteraction.DefaultTimeout
	}
	return n.defaultTimeout
}

func validateAgainstSchema(schemaDoc map[string]any, input map[string]any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("form.json", schemaDoc); err != nil {
		return err
	}
	schema, err := compiler.Compile("form.json")
	if err != nil {
		return err
	}
	return schema.Validate(toJSONValue(input))
}

// toJSONValue normalizes a decoded document for schema validation.
func toJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONValue(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}

// newHumanInputNode builds the generic human-interaction node.
func newHumanInputNode(defaultTimeout time.Duration) humanNode {
	return humanNode{
		meta: node.Metadata{
			Name:        "humanInput",
			Description: "Suspends until an external caller supplies form input",
			Type:        node.TypeHuman,
			AIHints: map[string]any{
				"purpose": "human in the loop",
				"config":  "formSchema, uiHints, timeout, defaultValues, contextData, outputPath",
			},
			ExpectedEdges: []string{"submitted", "timeout", "error"},
		},
		outputPath:     "humanInput",
		decisionField:  "decision",
		defaultTimeout: defaultTimeout,
	}
}

// newApproveExpenseNode builds the approval node used by expense workflows.
func newApproveExpenseNode(defaultTimeout time.Duration) humanNode {
	return humanNode{
		meta: node.Metadata{
			Name:        "approveExpense",
			Description: "Requests an approve/reject decision for an expense",
			Type:        node.TypeHuman,
			AIHints: map[string]any{
				"purpose": "approval gate",
			},
			ExpectedEdges: []string{"approved", "rejected", "needsInfo", "timeout", "error"},
			HumanInteraction: &node.HumanInteraction{
				FormSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"decision": map[string]any{
							"type": "string",
							"enum": []any{"approved", "rejected", "needsInfo"},
						},
						"comment": map[string]any{"type": "string"},
					},
					"required": []any{"decision"},
				},
			},
		},
		outputPath:     "approvalDecision",
		decisionField:  "decision",
		defaultTimeout: defaultTimeout,
	}
}
