package recompute

import "errors"

var (
	// ErrQueueFull is returned when the task queue is at capacity.
	ErrQueueFull = errors.New("recompute queue is full")

	// ErrInvalidTask is returned for a task that names no usable area.
	ErrInvalidTask = errors.New("invalid recompute task")
)
