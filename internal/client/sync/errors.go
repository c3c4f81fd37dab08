package sync

import "errors"

var (
	// ErrQueueFull is returned by QueueOperation when MaxOfflineChanges is reached
	ErrQueueFull = errors.New("offline change queue is full")

	// ErrConflictNotFound indicates an unknown conflict id
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrInvalidOperation indicates a malformed queued operation
	ErrInvalidOperation = errors.New("invalid operation")
)
