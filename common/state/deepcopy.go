package state

import "time"

// deepCopy clones a JSON-like value: maps, sequences, primitives, and
// time.Time. Workflow state must not contain cycles.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	case time.Time:
		return val
	default:
		// Primitives and nil are immutable
		return val
	}
}
