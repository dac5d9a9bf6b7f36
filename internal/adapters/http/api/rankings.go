package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/internal/ranking"
	"github.com/okian/pcarank/pkg/logger"
)

// RankingsDependencies defines the interface for ranking reads.
type RankingsDependencies interface {
	GetRankings(ctx context.Context, q model.RankingQuery) ([]model.RankingRow, error)
	GetAllRankings(ctx context.Context, level model.AreaLevel, area string, limit int) (map[string][]model.RankingRow, error)
	DefaultLimit() int
}

// RankingsHandler handles ranking requests.
type RankingsHandler struct {
	deps RankingsDependencies
	log  logger.Logger
}

// NewRankingsHandler creates a new rankings handler.
func NewRankingsHandler(deps RankingsDependencies, log logger.Logger) *RankingsHandler {
	return &RankingsHandler{deps: deps, log: log}
}

// HandleGetRankings handles GET /rankings/{level}.
//
// Query parameters: events (comma-separated, default all), type
// (single|average, default both), area (required below national) and limit.
// The response maps "<type>_<event>" to the ranking rows.
func (h *RankingsHandler) HandleGetRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rankings"
	ctx := r.Context()

	level, err := model.ParseAreaLevel(r.PathValue("level"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}

	query := r.URL.Query()
	area := query.Get("area")
	limit := h.deps.DefaultLimit()
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit %q", ErrBadRequest, s))
			return
		}
		limit = n
	}

	rankTypes := model.RankTypes
	if s := query.Get("type"); s != "" {
		rt, err := model.ParseRankType(s)
		if err != nil {
			writeFailure(ctx, h.log, w, op, err)
			return
		}
		rankTypes = []model.RankType{rt}
	}

	events := splitList(query.Get("events"))
	if len(events) == 0 && len(rankTypes) == len(model.RankTypes) {
		all, err := h.deps.GetAllRankings(ctx, level, area, limit)
		if err != nil {
			writeFailure(ctx, h.log, w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, resultsResponse{Results: all})
		return
	}
	if len(events) == 0 {
		events = ranking.EventIDs()
	}

	out := make(map[string][]model.RankingRow, len(events)*len(rankTypes))
	for _, ev := range events {
		for _, rt := range rankTypes {
			rows, err := h.deps.GetRankings(ctx, model.RankingQuery{
				EventID: ev, RankType: rt, Level: level, Area: area, Limit: limit,
			})
			if err != nil {
				writeFailure(ctx, h.log, w, op, err)
				return
			}
			out[string(rt)+"_"+ev] = rows
		}
	}
	writeJSON(w, http.StatusOK, resultsResponse{Results: out})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
