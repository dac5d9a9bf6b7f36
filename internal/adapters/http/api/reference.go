package api

import (
	"context"
	"net/http"

	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
)

// ReferenceDependencies defines the read-only lookups.
type ReferenceDependencies interface {
	Areas(ctx context.Context, level model.AreaLevel) ([]string, error)
	Event(ctx context.Context, id string) (model.Event, error)
	PersonalRecords(ctx context.Context, personID string) ([]model.PersonalRecord, error)
	Career(ctx context.Context, personID string) (model.Career, error)
	Competitions(ctx context.Context) ([]model.UpcomingCompetition, error)
}

// ReferenceHandler serves events, areas, personal records and competitions.
type ReferenceHandler struct {
	deps ReferenceDependencies
	log  logger.Logger
}

// NewReferenceHandler creates a new reference handler.
func NewReferenceHandler(deps ReferenceDependencies, log logger.Logger) *ReferenceHandler {
	return &ReferenceHandler{deps: deps, log: log}
}

// HandleAreas returns the handler for GET /regions or GET /citiesprovinces.
func (h *ReferenceHandler) HandleAreas(level model.AreaLevel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		areas, err := h.deps.Areas(r.Context(), level)
		if err != nil {
			writeFailure(r.Context(), h.log, w, "api.list_areas", err)
			return
		}
		if areas == nil {
			areas = []string{}
		}
		writeJSON(w, http.StatusOK, resultsResponse{Results: areas})
	}
}

// HandleCompetitions handles GET /competitions.
func (h *ReferenceHandler) HandleCompetitions(w http.ResponseWriter, r *http.Request) {
	comps, err := h.deps.Competitions(r.Context())
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.list_competitions", err)
		return
	}
	if comps == nil {
		comps = []model.UpcomingCompetition{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{Results: comps})
}

// HandleGetEvent handles GET /events/{id}.
func (h *ReferenceHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.deps.Event(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.get_event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandlePersonalRecords handles GET /persons/{id}/records.
func (h *ReferenceHandler) HandlePersonalRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.deps.PersonalRecords(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.personal_records", err)
		return
	}
	writeJSON(w, http.StatusOK, resultsResponse{Results: recs})
}

// HandleCareer handles GET /persons/{id}/career.
func (h *ReferenceHandler) HandleCareer(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Career(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.career", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
