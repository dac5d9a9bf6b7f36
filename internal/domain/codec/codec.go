// Package codec renders packed result integers as display strings.
//
// A packed value is either 0 (no result), one of the DNF/DNS sentinels, or a
// positive magnitude whose meaning depends on the event's FormatKind.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/pcarank/internal/domain/model"
)

// Sentinel outcome codes.
const (
	DNF int64 = -1
	DNS int64 = -2
)

const (
	centisPerSecond = 100
	centisPerMinute = 60 * centisPerSecond
	centisPerHour   = 60 * centisPerMinute
)

// FormatKind is the closed set of value encodings.
type FormatKind int

// Format kinds.
const (
	Time FormatKind = iota
	MoveCount
	MultiBlind
)

func (k FormatKind) String() string {
	switch k {
	case Time:
		return "time"
	case MoveCount:
		return "number"
	case MultiBlind:
		return "multi"
	default:
		return "FormatKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseFormatKind maps the export's event format column onto a FormatKind.
func ParseFormatKind(s string) (FormatKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "time":
		return Time, nil
	case "number":
		return MoveCount, nil
	case "multi":
		return MultiBlind, nil
	default:
		return 0, fmt.Errorf("event format %q: %w", s, ErrFormat)
	}
}

// FormatValue renders raw for display. The boolean is false when raw holds
// no result, in which case the string is empty.
func FormatValue(raw int64, kind FormatKind, rt model.RankType) (string, bool, error) {
	switch {
	case raw == 0:
		return "", false, nil
	case raw == DNF:
		return "DNF", true, nil
	case raw == DNS:
		return "DNS", true, nil
	case raw < 0:
		return "", false, formatErr(raw, kind, "negative value is not a sentinel")
	}

	switch kind {
	case Time:
		return formatCentiseconds(raw), true, nil
	case MoveCount:
		if rt == model.Average {
			return fmt.Sprintf("%d.%02d", raw/100, raw%100), true, nil
		}
		return strconv.FormatInt(raw, 10), true, nil
	case MultiBlind:
		mb, err := DecodeMultiBlind(raw)
		if err != nil {
			return "", false, err
		}
		return mb.String(), true, nil
	default:
		return "", false, formatErr(raw, kind, "unknown format kind")
	}
}

// Placeholder is the diagnostic string shown instead of an unrenderable value.
func Placeholder(raw int64) string {
	return "ERR(" + strconv.FormatInt(raw, 10) + ")"
}

// formatCentiseconds renders [H:]M:SS.cc, dropping empty leading units.
func formatCentiseconds(cs int64) string {
	h := cs / centisPerHour
	m := cs % centisPerHour / centisPerMinute
	s := cs % centisPerMinute / centisPerSecond
	c := cs % centisPerSecond

	switch {
	case h > 0:
		return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, c)
	case m > 0:
		return fmt.Sprintf("%d:%02d.%02d", m, s, c)
	default:
		return fmt.Sprintf("%d.%02d", s, c)
	}
}

// formatSeconds renders whole seconds as [H:]M:SS or S.
func formatSeconds(sec int64) string {
	h := sec / 3600
	m := sec % 3600 / 60
	s := sec % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	case m > 0:
		return fmt.Sprintf("%d:%02d", m, s)
	default:
		return strconv.FormatInt(s, 10)
	}
}
