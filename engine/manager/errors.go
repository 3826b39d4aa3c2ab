package manager

import "errors"

var (
	// ErrExecutionNotFound is returned for unknown execution IDs.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrNotPaused is returned when a resume targets an execution with no
	// matching pause token.
	ErrNotPaused = errors.New("execution is not paused at that node")
)
