package codec

import (
	"strings"

	"github.com/okian/pcarank/internal/domain/model"
)

// FormatSolves renders the non-empty attempts of a result separated by
// spaces. When trimmed is set and all five attempts are present, the
// attempts dropped by a trimmed mean are wrapped in brackets.
//
// An attempt that cannot be rendered is shown as a Placeholder and the first
// such error is returned alongside the rendered string.
func FormatSolves(values [model.Attempts]int64, kind FormatKind, trimmed bool) (string, error) {
	best, worst := -1, -1
	if trimmed {
		best, worst = trimIndexes(values)
	}

	var firstErr error
	parts := make([]string, 0, len(values))
	for i, v := range values {
		// Attempts are single values even inside an average breakdown.
		s, ok, err := FormatValue(v, kind, model.Single)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s, ok = Placeholder(v), true
		}
		if !ok {
			continue
		}
		if i == best || i == worst {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), firstErr
}

// FormatAO5Solves renders an average-of-5 breakdown with the best and worst
// attempts bracketed.
func FormatAO5Solves(values [model.Attempts]int64, kind FormatKind) (string, error) {
	return FormatSolves(values, kind, true)
}

// trimIndexes returns the positions of the best and worst attempt. A DNF or
// DNS is the automatic worst; ties go to the earliest attempt. Both are -1
// unless all five attempts are present.
func trimIndexes(values [model.Attempts]int64) (best, worst int) {
	best, worst = -1, -1
	for _, v := range values {
		if v == 0 {
			return -1, -1
		}
	}

	for i, v := range values {
		if v < 0 {
			worst = i
			break
		}
	}
	if worst < 0 {
		for i, v := range values {
			if worst < 0 || v > values[worst] {
				worst = i
			}
		}
	}

	for i, v := range values {
		if i == worst || v < 0 {
			continue
		}
		if best < 0 || v < values[best] {
			best = i
		}
	}
	if best < 0 {
		// Every attempt failed; drop the first remaining one as "best".
		for i := range values {
			if i != worst {
				best = i
				break
			}
		}
	}
	return best, worst
}
