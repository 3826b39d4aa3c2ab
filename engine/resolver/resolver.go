// Package resolver interpolates {{...}} placeholders in node configs
// against the execution's state snapshot.
package resolver

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/flowscript/flowscript/engine/condition"
)

var placeholderRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Resolver substitutes template placeholders in config values. A
// placeholder is a dotted path into the resolution context or, failing
// that, an expression handled by the condition evaluator. Placeholders that
// resolve to nothing are left literally in place.
type Resolver struct {
	eval *condition.Evaluator
}

// New creates a resolver. The evaluator may be nil, disabling expression
// placeholders.
func New(eval *condition.Evaluator) *Resolver {
	return &Resolver{eval: eval}
}

// ResolveConfig returns a copy of config with every string leaf
// interpolated against ctx. A string that is exactly one placeholder keeps
// the resolved value's native type; mixed strings coerce to text.
func (r *Resolver) ResolveConfig(config, ctx map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	doc, err := json.Marshal(ctx)
	if err != nil {
		return config
	}
	resolved, _ := r.resolveValue(config, doc, ctx).(map[string]any)
	return resolved
}

func (r *Resolver) resolveValue(value any, doc []byte, ctx map[string]any) any {
	switch v := value.(type) {
	case string:
		return r.resolveString(v, doc, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = r.resolveValue(item, doc, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.resolveValue(item, doc, ctx)
		}
		return out
	default:
		return value
	}
}

func (r *Resolver) resolveString(s string, doc []byte, ctx map[string]any) any {
	matches := placeholderRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	// Whole-string placeholder keeps the resolved type
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := strings.TrimSpace(s[matches[0][2]:matches[0][3]])
		if v, ok := r.lookup(expr, doc, ctx); ok {
			return v
		}
		return s
	}

	// Mixed content: textual substitution, unresolved placeholders stay
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		expr := strings.TrimSpace(m[2 : len(m)-2])
		v, ok := r.lookup(expr, doc, ctx)
		if !ok {
			return m
		}
		return stringify(v)
	})
}

// lookup resolves a placeholder: dotted path first, expression fallback.
func (r *Resolver) lookup(expr string, doc []byte, ctx map[string]any) (any, bool) {
	path := strings.TrimPrefix(strings.TrimPrefix(expr, "$."), "$")
	if result := gjson.GetBytes(doc, path); result.Exists() {
		return result.Value(), true
	}
	if r.eval != nil && !isPathLike(expr) {
		if v, err := r.eval.Evaluate(expr, ctx); err == nil {
			return v, true
		}
	}
	return nil, false
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// isPathLike reports whether the placeholder is a plain path rather than an
// expression worth evaluating.
func isPathLike(expr string) bool {
	return !strings.ContainsAny(expr, " ()+-*/%<>=!&|")
}
