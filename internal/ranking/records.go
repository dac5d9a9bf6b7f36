package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/pcarank/internal/domain/codec"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

// RecordsSource is the slice of the catalog personal records are read from.
type RecordsSource interface {
	Person(ctx context.Context, ds model.DatasetHandle, id string) (model.Person, error)
	PersonalRanks(ctx context.Context, ds model.DatasetHandle, personID string) ([]model.PersonalRank, error)
	Events(ctx context.Context, ds model.DatasetHandle) ([]model.Event, error)
	CareerStats(ctx context.Context, ds model.DatasetHandle, personID string) (model.CareerStats, error)
}

// Records renders a competitor's best single and average per event.
type Records struct {
	registry ActiveDataset
	source   RecordsSource
	log      logger.Logger
}

// NewRecords returns a Records reader.
func NewRecords(registry ActiveDataset, source RecordsSource, log logger.Logger) *Records {
	if log == nil {
		log = logger.Get().Named("records")
	}
	return &Records{registry: registry, source: source, log: log}
}

// PersonalRecords lists personID's records ordered by event rank. An unknown
// person is repository.ErrNotFound.
func (r *Records) PersonalRecords(ctx context.Context, personID string) ([]model.PersonalRecord, error) {
	ds, err := r.registry.Active(ctx)
	if err != nil {
		return nil, err
	}
	return r.personalRecords(ctx, ds, personID)
}

// Career summarises personID's competitions, solves, records and medals
// together with their personal records. An unknown person is
// repository.ErrNotFound.
func (r *Records) Career(ctx context.Context, personID string) (model.Career, error) {
	ds, err := r.registry.Active(ctx)
	if err != nil {
		return model.Career{}, err
	}
	prs, err := r.personalRecords(ctx, ds, personID)
	if err != nil {
		return model.Career{}, err
	}
	st, err := r.source.CareerStats(ctx, ds, personID)
	if err != nil {
		return model.Career{}, fmt.Errorf("career of %s: %w", personID, err)
	}

	records := model.RecordCounts{
		National:    st.NationalRecords,
		Continental: st.ContinentalRecords,
		World:       st.WorldRecords,
	}
	records.Total = records.National + records.Continental + records.World
	medals := model.MedalCounts{Gold: st.Gold, Silver: st.Silver, Bronze: st.Bronze}
	medals.Total = medals.Gold + medals.Silver + medals.Bronze

	return model.Career{
		PersonID:         personID,
		CompetitionCount: st.Competitions,
		SolveCount:       st.Solves,
		PersonalRecords:  prs,
		Records:          records,
		Medals:           medals,
	}, nil
}

func (r *Records) personalRecords(ctx context.Context, ds model.DatasetHandle, personID string) ([]model.PersonalRecord, error) {
	if _, err := r.source.Person(ctx, ds, personID); err != nil {
		return nil, err
	}
	ranks, err := r.source.PersonalRanks(ctx, ds, personID)
	if err != nil {
		return nil, fmt.Errorf("personal ranks of %s: %w", personID, err)
	}
	events, err := r.source.Events(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}

	order := make(map[string]int, len(events))
	kinds := make(map[string]codec.FormatKind, len(events))
	for i, ev := range events {
		order[ev.ID] = i
		if k, err := codec.ParseFormatKind(ev.Format); err == nil {
			kinds[ev.ID] = k
		}
	}

	byEvent := make(map[string]*model.PersonalRecord)
	for _, pr := range ranks {
		rec, ok := byEvent[pr.EventID]
		if !ok {
			rec = &model.PersonalRecord{EventID: pr.EventID}
			byEvent[pr.EventID] = rec
		}
		sum := r.summary(ctx, pr, kindOf(pr.EventID, kinds))
		switch pr.RankType {
		case model.Single:
			if rec.Single == nil {
				rec.Single = sum
			}
		case model.Average:
			if rec.Average == nil {
				rec.Average = sum
			}
		}
	}

	out := make([]model.PersonalRecord, 0, len(byEvent))
	for _, rec := range byEvent {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := order[out[i].EventID]
		oj, jok := order[out[j].EventID]
		switch {
		case iok && jok && oi != oj:
			return oi < oj
		case iok != jok:
			return iok
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

func (r *Records) summary(ctx context.Context, pr model.PersonalRank, kind codec.FormatKind) *model.RankSummary {
	best, _, err := codec.FormatValue(pr.Best, kind, pr.RankType)
	if err != nil {
		metrics.RecordCodecError(kind.String())
		r.log.Debug(ctx, "unrenderable personal record",
			logger.String("person", pr.PersonID), logger.String("event", pr.EventID), logger.Error(err))
		best = codec.Placeholder(pr.Best)
	}
	return &model.RankSummary{
		Best:          best,
		WorldRank:     pr.WorldRank,
		ContinentRank: pr.ContinentRank,
		CountryRank:   pr.CountryRank,
	}
}

func kindOf(eventID string, kinds map[string]codec.FormatKind) codec.FormatKind {
	if k, ok := kinds[eventID]; ok {
		return k
	}
	if info, ok := LookupEvent(eventID); ok {
		return info.Kind
	}
	return codec.Time
}
