package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("not found")
	// ErrConfig means the dataset registry is missing or ambiguous.
	ErrConfig = errors.New("dataset registry misconfigured")
	// ErrInvariantViolation means a caller tried to break a store invariant,
	// such as creating a second registry row.
	ErrInvariantViolation = errors.New("store invariant violated")
	// ErrConflict means the registry changed between read and write.
	ErrConflict            = errors.New("registry changed concurrently")
	ErrUnsupportedBackend  = errors.New("unsupported store backend")
	ErrInvalidDataset      = errors.New("invalid dataset handle")
	ErrInvalidResultFilter = errors.New("invalid result filter")
)

// ErrStop may be returned by a ForEachResult callback to end iteration early.
// The store does not report it to the caller.
var ErrStop = errors.New("stop iteration")
