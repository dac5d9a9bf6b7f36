package model

// Attempts is the fixed number of raw attempt values stored per result.
const Attempts = 5

// Result is one competitor's outcome in one round of one competition.
type Result struct {
	ID                    int64
	CompetitionID         string
	EventID               string
	RoundTypeID           string
	Pos                   int
	Best                  int64
	Average               int64
	PersonName            string
	PersonID              string
	CountryID             string
	FormatID              string
	Values                [Attempts]int64
	RegionalSingleRecord  string
	RegionalAverageRecord string
}

// Outcome returns the packed value ranked for rt.
func (r *Result) Outcome(rt RankType) int64 {
	if rt == Average {
		return r.Average
	}
	return r.Best
}

// Event is a puzzle discipline such as "333" or "333bf".
type Event struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rank     int    `json:"rank"`
	Format   string `json:"format"`
	CellName string `json:"cell_name"`
}

// Format describes how attempts of a round are aggregated.
type Format struct {
	ID                 string
	Name               string
	SortBy             string
	SortBySecond       string
	ExpectedSolveCount int
	TrimFastestN       int
	TrimSlowestN       int
}

// TrimmedMeanOfFive reports whether the format drops the best and worst of five.
func (f Format) TrimmedMeanOfFive() bool {
	return f.ExpectedSolveCount == Attempts && f.TrimFastestN == 1 && f.TrimSlowestN == 1
}

// RoundType is a lookup row for round identifiers.
type RoundType struct {
	ID       string
	Rank     int
	Name     string
	CellName string
	Final    bool
}

// Competition is a lookup row for competitions held in the home country.
type Competition struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CityName  string `json:"city_name"`
	CountryID string `json:"country_id"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Day       int    `json:"day"`
}

// Person is a competitor identity.
type Person struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CountryID string `json:"country_id"`
	Gender    string `json:"gender"`
}

// PersonalRank is a row of the per-person best ranks tables.
type PersonalRank struct {
	PersonID      string
	EventID       string
	RankType      RankType
	Best          int64
	WorldRank     int
	ContinentRank int
	CountryRank   int
}

// RankSummary is the rendered form of a PersonalRank.
type RankSummary struct {
	Best          string `json:"best"`
	WorldRank     int    `json:"world_rank"`
	ContinentRank int    `json:"continent_rank"`
	CountryRank   int    `json:"country_rank"`
}

// PersonalRecord groups a person's single and average records for one event.
type PersonalRecord struct {
	EventID string       `json:"event"`
	Single  *RankSummary `json:"single,omitempty"`
	Average *RankSummary `json:"average,omitempty"`
}

// CareerStats are the raw per-competitor aggregates over a dataset's results.
type CareerStats struct {
	Competitions int
	Solves       int
	// Record counts add singles and averages.
	NationalRecords    int
	ContinentalRecords int
	WorldRecords       int
	// Medals count top three places in final rounds with a valid best.
	Gold   int
	Silver int
	Bronze int
}

// RecordCounts tallies the regional records a competitor set.
type RecordCounts struct {
	National    int `json:"national"`
	Continental int `json:"continental"`
	World       int `json:"world"`
	Total       int `json:"total"`
}

// MedalCounts tallies podium finishes.
type MedalCounts struct {
	Gold   int `json:"gold"`
	Silver int `json:"silver"`
	Bronze int `json:"bronze"`
	Total  int `json:"total"`
}

// Career summarises a competitor's history in the active dataset.
type Career struct {
	PersonID         string           `json:"person_id"`
	CompetitionCount int              `json:"competition_count"`
	SolveCount       int              `json:"solve_count"`
	PersonalRecords  []PersonalRecord `json:"personal_records"`
	Records          RecordCounts     `json:"records"`
	Medals           MedalCounts      `json:"medals"`
}

// Regional record markers. Any other non-empty marker is continental.
const (
	NationalRecordMark = "NR"
	WorldRecordMark    = "WR"
)

// RecordKind classifies a regional record marker: "national", "continental",
// "world", or "" when mark is empty.
func RecordKind(mark string) string {
	switch mark {
	case "":
		return ""
	case NationalRecordMark:
		return "national"
	case WorldRecordMark:
		return "world"
	}
	return "continental"
}
