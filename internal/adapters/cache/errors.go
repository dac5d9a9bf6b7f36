package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrUnsupportedBackend = errors.New("unsupported cache backend")
	ErrClosed             = errors.New("cache backend closed")
	ErrEmptyKey           = errors.New("empty cache key")
)
