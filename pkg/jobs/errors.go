package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTask classifies enqueue attempts referencing an unregistered task name.
	ErrUnknownTask = errors.New("jobs unknown task")
	// ErrValidation classifies invalid input or malformed persisted state.
	ErrValidation = errors.New("jobs validation error")
	// ErrNotFound classifies lookups of job ids that are not in the registry.
	ErrNotFound = errors.New("jobs not found")
	// ErrQueueFull classifies enqueue attempts against a saturated priority queue.
	// The condition is transient; callers may retry.
	ErrQueueFull = errors.New("jobs queue full")
	// ErrNotInitialized classifies operations on a nil or half-built service.
	ErrNotInitialized = errors.New("jobs not initialized")
)

func jobsError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
