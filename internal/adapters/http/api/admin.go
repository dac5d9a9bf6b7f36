package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
)

const maxBodyBytes = 1 << 16

// AdminDependencies defines the operator operations.
type AdminDependencies interface {
	UpdateProfile(ctx context.Context, p model.Profile) ([]string, error)
	EnqueueRecompute(ctx context.Context, level model.AreaLevel, area string, limit int) (string, error)
	ActiveDataset(ctx context.Context) (model.RegistryState, error)
	ToggleActiveDataset(ctx context.Context) (model.DatasetHandle, error)
	TriggerCutover(ctx context.Context, opts cutover.Options) (string, error)
	CancelCutover() error
	CutoverStatus() (cutover.Status, error)
}

// AdminHandler serves profile updates, recompute requests, dataset and
// cutover control.
type AdminHandler struct {
	deps AdminDependencies
	log  logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, log logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, log: log}
}

// profileRequest is the body of PUT /profiles/{id}.
type profileRequest struct {
	Region       string `json:"region"`
	CityProvince string `json:"city_province"`
}

// recomputeRequest is the body of POST /recompute.
type recomputeRequest struct {
	Level string `json:"level"`
	Area  string `json:"area"`
	Limit int    `json:"limit"`
}

type tasksResponse struct {
	Tasks []string `json:"recompute_tasks"`
}

type taskResponse struct {
	TaskID string `json:"task_id"`
}

type runResponse struct {
	RunID string `json:"run_id"`
}

type toggleResponse struct {
	Active model.DatasetHandle `json:"active"`
}

// HandlePutProfile handles PUT /profiles/{id}.
func (h *AdminHandler) HandlePutProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ids, err := h.deps.UpdateProfile(r.Context(), model.Profile{
		PersonID:     r.PathValue("id"),
		Region:       req.Region,
		CityProvince: req.CityProvince,
	})
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.put_profile", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, tasksResponse{Tasks: ids})
}

// HandleRecompute handles POST /recompute.
func (h *AdminHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	level, err := model.ParseAreaLevel(req.Level)
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.recompute", err)
		return
	}
	id, err := h.deps.EnqueueRecompute(r.Context(), level, req.Area, req.Limit)
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.recompute", err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskResponse{TaskID: id})
}

// HandleGetDatasets handles GET /datasets.
func (h *AdminHandler) HandleGetDatasets(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.ActiveDataset(r.Context())
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.get_datasets", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleToggleDataset handles POST /datasets/toggle.
func (h *AdminHandler) HandleToggleDataset(w http.ResponseWriter, r *http.Request) {
	active, err := h.deps.ToggleActiveDataset(r.Context())
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.toggle_dataset", err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Active: active})
}

// HandleStartCutover handles POST /cutover. An empty body starts a plain
// import of the data directory.
func (h *AdminHandler) HandleStartCutover(w http.ResponseWriter, r *http.Request) {
	var opts cutover.Options
	if err := decodeBody(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := h.deps.TriggerCutover(r.Context(), opts)
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.start_cutover", err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{RunID: id})
}

// HandleCutoverStatus handles GET /cutover.
func (h *AdminHandler) HandleCutoverStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.CutoverStatus()
	if err != nil {
		writeFailure(r.Context(), h.log, w, "api.cutover_status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleCancelCutover handles DELETE /cutover.
func (h *AdminHandler) HandleCancelCutover(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.CancelCutover(); err != nil {
		writeFailure(r.Context(), h.log, w, "api.cancel_cutover", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrBadRequest, strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}
