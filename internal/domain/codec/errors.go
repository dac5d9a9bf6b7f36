package codec

import (
	"errors"
	"fmt"
)

// ErrFormat marks a raw value that matches no known packed layout.
var ErrFormat = errors.New("unrecognized packed value")

// FormatError describes why a raw value could not be rendered.
type FormatError struct {
	Raw    int64
	Kind   FormatKind
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format %s value %d: %s", e.Kind, e.Raw, e.Reason)
}

// Unwrap lets errors.Is match ErrFormat.
func (e *FormatError) Unwrap() error { return ErrFormat }

func formatErr(raw int64, kind FormatKind, reason string) error {
	return &FormatError{Raw: raw, Kind: kind, Reason: reason}
}
