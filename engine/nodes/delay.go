package nodes

import (
	"context"
	"time"

	"github.com/flowscript/flowscript/engine/node"
)

type delayNode struct{}

func (delayNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:        "delay",
		Description: "Sleeps for a configured duration",
		Type:        node.TypeAction,
		AIHints: map[string]any{
			"purpose": "timed wait",
			"config":  `duration ("50ms", "2s", or milliseconds as a number)`,
		},
		ExpectedEdges: []string{"success"},
	}
}

func (delayNode) Execute(ctx context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	d := parseDuration(ec.Config["duration"])

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return node.Edges{node.Simple("success", map[string]any{
		"durationMs": d.Milliseconds(),
	})}, nil
}

func parseDuration(v any) time.Duration {
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	default:
		if ms, ok := toFloat(val); ok {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return 0
}
