// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownValue is returned by the Parse* helpers.
var ErrUnknownValue = errors.New("unknown value")

// RankType selects the outcome column a ranking is computed from.
type RankType string

// Rank types.
const (
	Single  RankType = "single"
	Average RankType = "average"
)

// RankTypes lists rank types in the order rankings are computed.
var RankTypes = []RankType{Single, Average}

// ParseRankType accepts "single", "best" (alias) and "average".
func ParseRankType(s string) (RankType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "best":
		return Single, nil
	case "average":
		return Average, nil
	default:
		return "", fmt.Errorf("rank type %q: %w", s, ErrUnknownValue)
	}
}

// Column returns the result column backing the rank type.
func (r RankType) Column() string {
	if r == Average {
		return "average"
	}
	return "best"
}

// Valid reports whether r is a known rank type.
func (r RankType) Valid() bool { return r == Single || r == Average }

// AreaLevel scopes a ranking geographically.
type AreaLevel string

// Area levels.
const (
	National AreaLevel = "national"
	Regional AreaLevel = "regional"
	Local    AreaLevel = "local"
)

// ParseAreaLevel accepts "national", "regional", "local" and the
// "cityprovincial" alias of local.
func ParseAreaLevel(s string) (AreaLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "national":
		return National, nil
	case "regional":
		return Regional, nil
	case "local", "cityprovincial":
		return Local, nil
	default:
		return "", fmt.Errorf("area level %q: %w", s, ErrUnknownValue)
	}
}

// Valid reports whether l is a known level.
func (l AreaLevel) Valid() bool { return l == National || l == Regional || l == Local }

// RankingQuery is the logical shape of a ranking request.
type RankingQuery struct {
	EventID  string
	RankType RankType
	Level    AreaLevel
	Area     string
	Limit    int
}

// RankingRow is one entry of a computed ranking.
type RankingRow struct {
	Rank          int    `json:"rank" msgpack:"rank"`
	CompetitionID string `json:"competition_id" msgpack:"competition_id"`
	EventID       string `json:"event" msgpack:"event"`
	Value         string `json:"time" msgpack:"time"`
	PersonName    string `json:"name" msgpack:"name"`
	PersonID      string `json:"wca_id" msgpack:"wca_id"`
	Solves        string `json:"solves" msgpack:"solves"`
	Raw           int64  `json:"raw" msgpack:"raw"`
}

// RecomputeTask asks the workers to rebuild every cached ranking for one area.
type RecomputeTask struct {
	ID         string
	Level      AreaLevel
	Area       string
	Limit      int
	Reason     string
	EnqueuedAt time.Time
}

// UpcomingCompetition is a competition listed by the public WCA search API.
type UpcomingCompetition struct {
	ID          string `json:"id" msgpack:"id"`
	Name        string `json:"name" msgpack:"name"`
	City        string `json:"city" msgpack:"city"`
	CountryISO2 string `json:"country_iso2" msgpack:"country_iso2"`
	StartDate   string `json:"start_date" msgpack:"start_date"`
	EndDate     string `json:"end_date" msgpack:"end_date"`
	URL         string `json:"url" msgpack:"url"`
	Website     string `json:"website" msgpack:"website"`
}
