// Package api serves the ranking service over HTTP: ranking reads,
// reference data, dataset administration, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	GetRankings(ctx context.Context, q model.RankingQuery) ([]model.RankingRow, error)
	GetAllRankings(ctx context.Context, level model.AreaLevel, area string, limit int) (map[string][]model.RankingRow, error)
	DefaultLimit() int

	Areas(ctx context.Context, level model.AreaLevel) ([]string, error)
	Event(ctx context.Context, id string) (model.Event, error)
	PersonalRecords(ctx context.Context, personID string) ([]model.PersonalRecord, error)
	Career(ctx context.Context, personID string) (model.Career, error)
	Competitions(ctx context.Context) ([]model.UpcomingCompetition, error)

	UpdateProfile(ctx context.Context, p model.Profile) ([]string, error)
	EnqueueRecompute(ctx context.Context, level model.AreaLevel, area string, limit int) (string, error)

	ActiveDataset(ctx context.Context) (model.RegistryState, error)
	ToggleActiveDataset(ctx context.Context) (model.DatasetHandle, error)
	TriggerCutover(ctx context.Context, opts cutover.Options) (string, error)
	CancelCutover() error
	CutoverStatus() (cutover.Status, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps             Dependencies
	log              logger.Logger
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	rankingsHandler  *RankingsHandler
	referenceHandler *ReferenceHandler
	adminHandler     *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, log logger.Logger) *Server {
	if log == nil {
		log = logger.Get().Named("api")
	}
	return &Server{
		deps:             deps,
		log:              log,
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		rankingsHandler:  NewRankingsHandler(deps, log),
		referenceHandler: NewReferenceHandler(deps, log),
		adminHandler:     NewAdminHandler(deps, log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /metrics", "metrics", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("GET /rankings/{level}", "rankings", s.rankingsHandler.HandleGetRankings)

	route("GET /regions", "areas", s.referenceHandler.HandleAreas(model.Regional))
	route("GET /citiesprovinces", "areas", s.referenceHandler.HandleAreas(model.Local))
	route("GET /competitions", "competitions", s.referenceHandler.HandleCompetitions)
	route("GET /events/{id}", "events", s.referenceHandler.HandleGetEvent)
	route("GET /persons/{id}/records", "records", s.referenceHandler.HandlePersonalRecords)
	route("GET /persons/{id}/career", "career", s.referenceHandler.HandleCareer)

	route("PUT /profiles/{id}", "profiles", s.adminHandler.HandlePutProfile)
	route("POST /recompute", "recompute", s.adminHandler.HandleRecompute)
	route("GET /datasets", "datasets", s.adminHandler.HandleGetDatasets)
	route("POST /datasets/toggle", "datasets", s.adminHandler.HandleToggleDataset)
	route("GET /cutover", "cutover", s.adminHandler.HandleCutoverStatus)
	route("POST /cutover", "cutover", s.adminHandler.HandleStartCutover)
	route("DELETE /cutover", "cutover", s.adminHandler.HandleCancelCutover)
}

// resultsResponse mirrors the {"results": ...} envelope of list endpoints.
type resultsResponse struct {
	Results any `json:"results"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure classifies err, logs server-side failures and writes the
// error body.
func writeFailure(ctx context.Context, log logger.Logger, w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("op", op), logger.Int("status", status), logger.Error(err))
	}
	writeError(w, status, code, err)
}
