package model

import (
	"fmt"
	"strings"
	"time"
)

// DatasetHandle names one of the two interchangeable table sets.
type DatasetHandle string

// Dataset handles.
const (
	DatasetA DatasetHandle = "A"
	DatasetB DatasetHandle = "B"
)

// Datasets lists every handle.
var Datasets = []DatasetHandle{DatasetA, DatasetB}

// ParseDatasetHandle accepts "a"/"b" in any case.
func ParseDatasetHandle(s string) (DatasetHandle, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return DatasetA, nil
	case "B":
		return DatasetB, nil
	default:
		return "", fmt.Errorf("dataset %q: %w", s, ErrUnknownValue)
	}
}

// Other returns the opposite handle.
func (d DatasetHandle) Other() DatasetHandle {
	if d == DatasetA {
		return DatasetB
	}
	return DatasetA
}

// Suffix is the lower-case table suffix for the handle.
func (d DatasetHandle) Suffix() string { return strings.ToLower(string(d)) }

// Valid reports whether d is A or B.
func (d DatasetHandle) Valid() bool { return d == DatasetA || d == DatasetB }

// RegistryState is the singleton active/inactive pair.
type RegistryState struct {
	Active   DatasetHandle `json:"active" msgpack:"active"`
	Inactive DatasetHandle `json:"inactive" msgpack:"inactive"`
}

// Valid reports whether both handles are known and distinct.
func (s RegistryState) Valid() bool {
	return s.Active.Valid() && s.Inactive.Valid() && s.Active != s.Inactive
}

// ExportMetadata is the metadata record shipped with a results export.
type ExportMetadata struct {
	ExportDate          string    `json:"export_date"`
	ExportFormatVersion string    `json:"export_format_version"`
	ImportedAt          time.Time `json:"-"`
}
