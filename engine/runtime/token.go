package runtime

import (
	"fmt"
	"sync"
	"time"
)

type completion struct {
	data any
	err  error
}

// PauseToken is a single-shot completion handle minted for a suspended node.
// It is created at most once per pause and completed at most once.
type PauseToken struct {
	ID          string
	WorkflowID  string
	ExecutionID string
	NodeID      string
	NodeName    string
	CreatedAt   time.Time

	once   sync.Once
	mu     sync.Mutex
	result *completion
	done   chan struct{}
}

func newPauseToken(workflowID, executionID, nodeID, nodeName string, seq int) *PauseToken {
	now := time.Now()
	return &PauseToken{
		ID:          fmt.Sprintf("%s-%s-%d-%d", executionID, nodeID, seq, now.UnixNano()),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		NodeID:      nodeID,
		NodeName:    nodeName,
		CreatedAt:   now,
		done:        make(chan struct{}),
	}
}

// Resume completes the token with external data.
func (t *PauseToken) Resume(data any) error {
	return t.complete(completion{data: data})
}

// Reject completes the token with an error.
func (t *PauseToken) Reject(err error) error {
	return t.complete(completion{err: err})
}

// Cancel rejects the token with ErrExecutionCancelled.
func (t *PauseToken) Cancel() error {
	return t.complete(completion{err: ErrExecutionCancelled})
}

// Resolved reports whether the token has been completed.
func (t *PauseToken) Resolved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result != nil
}

// ResumeData returns the data the token was resumed with, if any.
func (t *PauseToken) ResumeData() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil {
		return nil
	}
	return t.result.data
}

func (t *PauseToken) complete(c completion) error {
	completed := false
	t.once.Do(func() {
		t.mu.Lock()
		t.result = &c
		t.mu.Unlock()
		close(t.done)
		completed = true
	})
	if !completed {
		return ErrTokenResolved
	}
	return nil
}

// wait blocks until the token completes.
func (t *PauseToken) wait() completion {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.result
}
