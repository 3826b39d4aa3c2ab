package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/flowscript/flowscript/common/events"
)

// Logger is the narrow logging interface runtime depends on.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// Context is the per-execution facade handed to every node invocation. It
// owns event emission and the active pause-token set. Tokens minted here can
// only be completed through this context.
type Context struct {
	workflowID  string
	executionID string
	emitter     *events.Emitter
	log         Logger

	mu              sync.Mutex
	currentNodeID   string
	currentNodeName string
	tokenSeq        int
	tokens          map[string]*PauseToken
}

// NewContext creates a runtime context bound to one execution.
func NewContext(workflowID, executionID string, emitter *events.Emitter, log Logger) *Context {
	return &Context{
		workflowID:  workflowID,
		executionID: executionID,
		emitter:     emitter,
		log:         log,
		tokens:      make(map[string]*PauseToken),
	}
}

// WorkflowID returns the workflow this execution was started from.
func (c *Context) WorkflowID() string { return c.workflowID }

// ExecutionID returns the execution identity.
func (c *Context) ExecutionID() string { return c.executionID }

// Emitter exposes the execution's event emitter for subscribers.
func (c *Context) Emitter() *events.Emitter { return c.emitter }

// SetCurrentNode records the node the interpreter is about to invoke.
func (c *Context) SetCurrentNode(nodeID, nodeName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentNodeID = nodeID
	c.currentNodeName = nodeName
}

// CurrentNode returns the node ID and name of the executing node.
func (c *Context) CurrentNode() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentNodeID, c.currentNodeName
}

// Emit publishes an event, stamping the workflow ID, execution ID, and
// timestamp when missing.
func (c *Context) Emit(name string, data map[string]any) {
	c.emitter.Emit(events.Event{
		Name:        name,
		WorkflowID:  c.workflowID,
		ExecutionID: c.executionID,
		Timestamp:   time.Now(),
		Data:        data,
	})
}

// Pause mints a pause token for the currently executing node, records it in
// the active set, and emits workflow:paused.
func (c *Context) Pause() (*PauseToken, error) {
	c.mu.Lock()
	if c.currentNodeID == "" {
		c.mu.Unlock()
		return nil, ErrNoCurrentNode
	}
	c.tokenSeq++
	token := newPauseToken(c.workflowID, c.executionID, c.currentNodeID, c.currentNodeName, c.tokenSeq)
	c.tokens[token.ID] = token
	c.mu.Unlock()

	c.Emit(events.WorkflowPaused, map[string]any{
		"nodeId":  token.NodeID,
		"tokenId": token.ID,
	})

	c.log.Info("execution paused", "node_id", token.NodeID, "token_id", token.ID)
	return token, nil
}

// WaitForResume blocks until the token completes, the timeout expires, or
// ctx is done. On success it emits workflow:resumed. The token leaves the
// active set regardless of outcome. A zero timeout waits forever.
func (c *Context) WaitForResume(ctx context.Context, token *PauseToken, timeout time.Duration) (any, error) {
	if token == nil {
		return nil, ErrTokenNotFound
	}
	if token.ExecutionID != c.executionID {
		return nil, ErrTokenForeign
	}
	c.mu.Lock()
	_, owned := c.tokens[token.ID]
	c.mu.Unlock()
	if !owned {
		return nil, ErrTokenNotFound
	}

	defer func() {
		c.mu.Lock()
		delete(c.tokens, token.ID)
		c.mu.Unlock()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-token.done:
	case <-timeoutCh:
		// Whoever completes first wins; a racing resume may still land.
		_ = token.Reject(ErrTokenTimeout)
	case <-ctx.Done():
		_ = token.Reject(ErrExecutionCancelled)
	}

	result := token.wait()
	if result.err != nil {
		return nil, result.err
	}

	c.Emit(events.WorkflowResumed, map[string]any{
		"nodeId":     token.NodeID,
		"tokenId":    token.ID,
		"resumeData": result.data,
	})
	return result.data, nil
}

// Resume completes an active token with external data. Used by the
// execution manager on behalf of REST and WebSocket callers.
func (c *Context) Resume(tokenID string, data any) error {
	c.mu.Lock()
	token, ok := c.tokens[tokenID]
	c.mu.Unlock()
	if !ok {
		return ErrTokenNotFound
	}
	return token.Resume(data)
}

// Cancel rejects an active token with a cancellation error.
func (c *Context) Cancel(tokenID string) error {
	c.mu.Lock()
	token, ok := c.tokens[tokenID]
	c.mu.Unlock()
	if !ok {
		return ErrTokenNotFound
	}
	return token.Cancel()
}

// ActiveTokens returns the outstanding tokens.
func (c *Context) ActiveTokens() []*PauseToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*PauseToken, 0, len(c.tokens))
	for _, t := range c.tokens {
		out = append(out, t)
	}
	return out
}

// FindTokenByNode returns an active token minted for the given node, matched
// by node ID or node name.
func (c *Context) FindTokenByNode(nodeID string) (*PauseToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tokens {
		if t.NodeID == nodeID || t.NodeName == nodeID {
			return t, true
		}
	}
	return nil, false
}

// ClearAllTokens cancels every outstanding token. Called on execution
// cancellation and failure.
func (c *Context) ClearAllTokens() {
	c.mu.Lock()
	tokens := make([]*PauseToken, 0, len(c.tokens))
	for _, t := range c.tokens {
		tokens = append(tokens, t)
	}
	c.tokens = make(map[string]*PauseToken)
	c.mu.Unlock()

	for _, t := range tokens {
		_ = t.Cancel()
	}
}
