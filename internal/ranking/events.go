package ranking

import "github.com/okian/pcarank/internal/domain/codec"

// EventInfo describes an event of the ranked universe.
type EventInfo struct {
	ID   string
	Name string
	Kind codec.FormatKind
}

// Events is the fixed set of events ranked and recomputed, in display order.
var Events = []EventInfo{
	{ID: "222", Name: "2x2x2 Cube", Kind: codec.Time},
	{ID: "333", Name: "3x3x3 Cube", Kind: codec.Time},
	{ID: "333bf", Name: "3x3x3 Blindfolded", Kind: codec.Time},
	{ID: "333fm", Name: "3x3x3 Fewest Moves", Kind: codec.MoveCount},
	{ID: "333ft", Name: "3x3x3 With Feet", Kind: codec.Time},
	{ID: "333mbf", Name: "3x3x3 Multi-Blind", Kind: codec.MultiBlind},
	{ID: "333mbo", Name: "3x3x3 Multi-Blind Old Style", Kind: codec.MultiBlind},
	{ID: "333oh", Name: "3x3x3 One-Handed", Kind: codec.Time},
	{ID: "444", Name: "4x4x4 Cube", Kind: codec.Time},
	{ID: "444bf", Name: "4x4x4 Blindfolded", Kind: codec.Time},
	{ID: "555", Name: "5x5x5 Cube", Kind: codec.Time},
	{ID: "555bf", Name: "5x5x5 Blindfolded", Kind: codec.Time},
	{ID: "666", Name: "6x6x6 Cube", Kind: codec.Time},
	{ID: "777", Name: "7x7x7 Cube", Kind: codec.Time},
	{ID: "clock", Name: "Clock", Kind: codec.Time},
	{ID: "magic", Name: "Magic", Kind: codec.Time},
	{ID: "minx", Name: "Megaminx", Kind: codec.Time},
	{ID: "mmagic", Name: "Master Magic", Kind: codec.Time},
	{ID: "pyram", Name: "Pyraminx", Kind: codec.Time},
	{ID: "skewb", Name: "Skewb", Kind: codec.Time},
	{ID: "sq1", Name: "Square-1", Kind: codec.Time},
}

var eventsByID = func() map[string]EventInfo {
	m := make(map[string]EventInfo, len(Events))
	for _, e := range Events {
		m[e.ID] = e
	}
	return m
}()

// LookupEvent returns the universe entry for id.
func LookupEvent(id string) (EventInfo, bool) {
	e, ok := eventsByID[id]
	return e, ok
}

// EventIDs lists the universe ids in display order.
func EventIDs() []string {
	ids := make([]string, len(Events))
	for i, e := range Events {
		ids[i] = e.ID
	}
	return ids
}
