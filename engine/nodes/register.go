package nodes

import (
	"net/http"
	"time"

	"github.com/flowscript/flowscript/engine/condition"
	"github.com/flowscript/flowscript/engine/registry"
)

// Deps carries the collaborators built-in nodes need.
type Deps struct {
	Evaluator           *condition.Evaluator
	Logger              Logger
	HTTPClient          *http.Client
	DefaultHumanTimeout time.Duration
}

// RegisterBuiltins adds every built-in node to the registry.
func RegisterBuiltins(r *registry.Registry, deps Deps) error {
	if deps.Evaluator == nil {
		deps.Evaluator = condition.NewEvaluator()
	}

	if err := r.RegisterInstance(setDataNode{}); err != nil {
		return err
	}
	if err := r.RegisterInstance(appendDataNode{}); err != nil {
		return err
	}
	if err := r.RegisterInstance(deleteDataNode{}); err != nil {
		return err
	}
	if err := r.RegisterInstance(checkValueNode{eval: deps.Evaluator}); err != nil {
		return err
	}
	if err := r.RegisterInstance(whileConditionNode{eval: deps.Evaluator}); err != nil {
		return err
	}
	if err := r.RegisterInstance(forEachNode{}); err != nil {
		return err
	}
	if err := r.RegisterInstance(delayNode{}); err != nil {
		return err
	}
	if deps.Logger != nil {
		if err := r.RegisterInstance(logNode{log: deps.Logger}); err != nil {
			return err
		}
	}
	if err := r.RegisterInstance(httpRequestNode{client: deps.HTTPClient}); err != nil {
		return err
	}
	if err := r.RegisterInstance(newHumanInputNode(deps.DefaultHumanTimeout)); err != nil {
		return err
	}
	if err := r.RegisterInstance(newApproveExpenseNode(deps.DefaultHumanTimeout)); err != nil {
		return err
	}
	return nil
}
