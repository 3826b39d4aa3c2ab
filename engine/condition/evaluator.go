// Package condition evaluates control-node expressions against workflow
// state using CEL (Common Expression Language).
package condition

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Identifiers that cannot be redeclared as state variables.
var reserved = map[string]bool{
	"state": true, "true": true, "false": true, "null": true,
	"in": true, "size": true, "has": true, "exists": true,
	"length": true, "isEmpty": true,
}

// Evaluator compiles and runs CEL expressions with caching. State access
// works two ways: through the `state` variable (`state.user.age > 18`) and
// through bare top-level identifiers (`age > 18`), which are declared from
// the snapshot's keys at compile time.
type Evaluator struct {
	mu       sync.RWMutex
	envs     map[string]*cel.Env
	programs map[string]cel.Program
}

// NewEvaluator creates a new evaluator with empty caches.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		envs:     make(map[string]*cel.Env),
		programs: make(map[string]cel.Program),
	}
}

// Evaluate runs an expression against a state snapshot and returns the
// native result.
func (e *Evaluator) Evaluate(expr string, snapshot map[string]any) (any, error) {
	keys := declarableKeys(snapshot)
	prg, err := e.program(expr, keys)
	if err != nil {
		return nil, err
	}

	activation := map[string]any{"state": snapshot}
	for _, k := range keys {
		activation[k] = snapshot[k]
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("expression evaluation error: %w", err)
	}
	return out.Value(), nil
}

// EvaluateBool runs an expression and enforces a boolean result.
func (e *Evaluator) EvaluateBool(expr string, snapshot map[string]any) (bool, error) {
	out, err := e.Evaluate(expr, snapshot)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return boolean, got %T", out)
	}
	return b, nil
}

// Validate compiles an expression against the given top-level state keys
// without running it. Unknown identifiers and calls (anything outside the
// expression language) fail compilation.
func (e *Evaluator) Validate(expr string, stateKeys ...string) error {
	var keys []string
	for _, k := range stateKeys {
		if identRe.MatchString(k) && !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	_, err := e.program(expr, keys)
	return err
}

// ClearCache drops all compiled programs and environments.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envs = make(map[string]*cel.Env)
	e.programs = make(map[string]cel.Program)
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

func (e *Evaluator) program(expr string, keys []string) (cel.Program, error) {
	normalized := normalize(expr)
	sig := strings.Join(keys, "\x00")
	progKey := sig + "\x01" + normalized

	e.mu.RLock()
	prg, hit := e.programs[progKey]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	env, err := e.env(sig, keys)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(normalized)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expression compile error: %w", issues.Err())
	}

	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	e.mu.Lock()
	e.programs[progKey] = prg
	e.mu.Unlock()
	return prg, nil
}

func (e *Evaluator) env(sig string, keys []string) (*cel.Env, error) {
	e.mu.RLock()
	env, hit := e.envs[sig]
	e.mu.RUnlock()
	if hit {
		return env, nil
	}

	opts := []cel.EnvOption{
		cel.Variable("state", cel.DynType),
		existsFunc(),
		lengthFunc(),
		isEmptyFunc(),
	}
	for _, k := range keys {
		opts = append(opts, cel.Variable(k, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression env: %w", err)
	}

	e.mu.Lock()
	e.envs[sig] = env
	e.mu.Unlock()
	return env, nil
}

// normalize converts the workflow expression dialect to CEL: "$.x" becomes
// "state.x" and the one-argument exists(path) helper gains its implicit
// state argument.
func normalize(expr string) string {
	expr = strings.ReplaceAll(expr, "$.", "state.")
	expr = strings.ReplaceAll(expr, "exists(", "exists(state, ")
	return expr
}

// declarableKeys returns the snapshot's top-level keys usable as CEL
// identifiers, sorted for a stable cache signature.
func declarableKeys(snapshot map[string]any) []string {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		if identRe.MatchString(k) && !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func existsFunc() cel.EnvOption {
	return cel.Function("exists",
		cel.Overload("exists_state_path",
			[]*cel.Type{cel.DynType, cel.StringType}, cel.BoolType,
			cel.BinaryBinding(func(st, path ref.Val) ref.Val {
				snapshot, ok := st.Value().(map[string]any)
				if !ok {
					return types.Bool(false)
				}
				p, ok := path.Value().(string)
				if !ok {
					return types.Bool(false)
				}
				_, found := walkPath(snapshot, p)
				return types.Bool(found)
			})))
}

func lengthFunc() cel.EnvOption {
	return cel.Function("length",
		cel.Overload("length_dyn",
			[]*cel.Type{cel.DynType}, cel.IntType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				switch val := v.Value().(type) {
				case string:
					return types.Int(len(val))
				case []any:
					return types.Int(len(val))
				case map[string]any:
					return types.Int(len(val))
				default:
					return types.NewErr("length: unsupported type %T", val)
				}
			})))
}

func isEmptyFunc() cel.EnvOption {
	return cel.Function("isEmpty",
		cel.Overload("isempty_dyn",
			[]*cel.Type{cel.DynType}, cel.BoolType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				switch val := v.Value().(type) {
				case nil:
					return types.Bool(true)
				case string:
					return types.Bool(val == "")
				case []any:
					return types.Bool(len(val) == 0)
				case map[string]any:
					return types.Bool(len(val) == 0)
				default:
					return types.Bool(false)
				}
			})))
}

// walkPath descends dotted segments through maps and sequences.
func walkPath(cur any, path string) (any, bool) {
	for _, seg := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx := 0
			for i := 0; i < len(seg); i++ {
				if seg[i] < '0' || seg[i] > '9' {
					return nil, false
				}
				idx = idx*10 + int(seg[i]-'0')
			}
			if seg == "" || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
