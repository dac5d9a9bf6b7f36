package service

import "errors"

// ErrNotStarted is returned by every operation called before Start.
var ErrNotStarted = errors.New("service not started")
