package cutover

import (
	"time"

	"github.com/okian/pcarank/internal/domain/model"
)

// State is a step of the cutover state machine.
type State int

// Cutover states, in the order a run passes through them.
const (
	Idle State = iota
	Downloading
	Importing
	Validating
	Swapping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Downloading:
		return "DOWNLOADING"
	case Importing:
		return "IMPORTING"
	case Validating:
		return "VALIDATING"
	case Swapping:
		return "SWAPPING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Cancellable reports whether Cancel may abort a run in this state.
func (s State) Cancellable() bool { return s == Downloading || s == Importing }

// Options selects what a run does.
type Options struct {
	// Download fetches a fresh export before importing. Ignored in test mode.
	Download bool `json:"download"`
	// TestMode imports the lite export directory and allows an empty result set.
	TestMode bool `json:"test_mode"`
	// Force skips the freshness check.
	Force bool `json:"force"`
}

// Report describes a finished run.
type Report struct {
	RunID      string               `json:"run_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Options    Options              `json:"options"`
	Export     model.ExportMetadata `json:"export"`
	Target     model.DatasetHandle  `json:"target,omitempty"`
	Active     model.DatasetHandle  `json:"active,omitempty"`
	Imported   ImportStats          `json:"imported"`
	Skipped    bool                 `json:"skipped"`
	Cancelled  bool                 `json:"cancelled"`
	// Invalidated counts cached rankings dropped after the swap.
	Invalidated    int      `json:"invalidated"`
	RecomputeTasks []string `json:"recompute_tasks,omitempty"`
	Error          string   `json:"error,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State     `json:"state"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Last      *Report   `json:"last,omitempty"`
}
