package cutover

import (
	"errors"
	"fmt"
)

var (
	// ErrInProgress is returned when a run is requested while another is active.
	ErrInProgress = errors.New("cutover already in progress")

	// ErrNotCancellable is returned by Cancel outside DOWNLOADING and IMPORTING.
	ErrNotCancellable = errors.New("cutover cannot be cancelled in its current state")

	// ErrCancelled is returned by a run stopped through Cancel.
	ErrCancelled = errors.New("cutover cancelled")

	// ErrDownload marks a failed export download.
	ErrDownload = errors.New("export download failed")

	// ErrImport marks a failed or rejected load of the inactive dataset.
	ErrImport = errors.New("dataset import failed")
)

// ImportError reports the stage and entity a load failed on. It matches both
// ErrImport and the underlying cause.
type ImportError struct {
	Stage  string
	Entity string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap implements multi-error unwrapping.
func (e *ImportError) Unwrap() []error { return []error{ErrImport, e.Err} }

func importErr(stage, entity string, err error) error {
	return &ImportError{Stage: stage, Entity: entity, Err: err}
}
