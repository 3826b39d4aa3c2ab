package runtime

import "errors"

var (
	// ErrNoCurrentNode is returned by Pause when no node is executing.
	ErrNoCurrentNode = errors.New("pause requested outside a node invocation")

	// ErrTokenNotFound is returned when a token ID is not in the active set.
	ErrTokenNotFound = errors.New("pause token not found")

	// ErrTokenResolved is returned when a token is completed a second time.
	ErrTokenResolved = errors.New("pause token already resolved")

	// ErrTokenForeign is returned when a token belongs to another execution.
	ErrTokenForeign = errors.New("pause token belongs to a different execution")

	// ErrTokenTimeout rejects a token whose wait exceeded its deadline.
	ErrTokenTimeout = errors.New("pause token timed out")

	// ErrExecutionCancelled rejects outstanding tokens when an execution is
	// cancelled.
	ErrExecutionCancelled = errors.New("execution cancelled")
)
