package cutover

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/domain/model"
)

// Validator checks a freshly imported dataset before it may become active.
type Validator interface {
	Validate(ctx context.Context, ds model.DatasetHandle, testMode bool) error
}

// DatasetValidator checks result ids and event references.
type DatasetValidator struct {
	loader repository.Loader
}

// NewDatasetValidator returns a validator reading through loader.
func NewDatasetValidator(loader repository.Loader) *DatasetValidator {
	return &DatasetValidator{loader: loader}
}

// Validate implements Validator. Every result must carry a unique non-zero
// id and reference a known event. An empty result set is accepted only in
// test mode.
func (v *DatasetValidator) Validate(ctx context.Context, ds model.DatasetHandle, testMode bool) error {
	st, err := v.loader.ResultIDStats(ctx, ds)
	if err != nil {
		return importErr("validate", "results", err)
	}

	var problems *multierror.Error
	switch {
	case st.Rows == 0 && !testMode:
		problems = multierror.Append(problems, errors.New("no results imported"))
	case st.Missing > 0:
		problems = multierror.Append(problems, fmt.Errorf("%d results without an id", st.Missing))
	case st.Distinct != st.Rows:
		problems = multierror.Append(problems, fmt.Errorf("%d duplicate result ids", st.Rows-st.Distinct))
	}

	orphans, err := v.loader.OrphanEvents(ctx, ds)
	if err != nil {
		return importErr("validate", "events", err)
	}
	if len(orphans) > 0 {
		problems = multierror.Append(problems, fmt.Errorf("results reference unknown events: %s", strings.Join(orphans, ", ")))
	}

	if err := problems.ErrorOrNil(); err != nil {
		return importErr("validate", string(ds), err)
	}
	return nil
}
