package nodes

import (
	"context"

	"github.com/flowscript/flowscript/engine/node"
)

// Logger is the narrow logging interface nodes depend on.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

type logNode struct {
	log Logger
}

func (logNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:        "log",
		Description: "Writes a message to the service log",
		Type:        node.TypeAction,
		AIHints: map[string]any{
			"purpose": "debugging",
			"config":  "message, level (debug|info|warn|error)",
		},
		ExpectedEdges: []string{"success"},
	}
}

func (n logNode) Execute(_ context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	message := ec.ConfigString("message", "")
	execID := ec.Runtime.ExecutionID()

	switch ec.ConfigString("level", "info") {
	case "debug":
		n.log.Debug(message, "execution_id", execID)
	case "warn":
		n.log.Warn(message, "execution_id", execID)
	case "error":
		n.log.Error(message, "execution_id", execID)
	default:
		n.log.Info(message, "execution_id", execID)
	}

	return node.Edges{node.Simple("success", map[string]any{
		"message": message,
	})}, nil
}
