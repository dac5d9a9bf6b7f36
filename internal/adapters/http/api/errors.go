package api

import (
	"errors"
	"net/http"

	"github.com/okian/pcarank/internal/adapters/mq/queue"
	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/adapters/wca"
	service "github.com/okian/pcarank/internal/app"
	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/internal/ranking"
	"github.com/okian/pcarank/internal/recompute"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// classify maps a service error onto a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ranking.ErrInvalidQuery),
		errors.Is(err, recompute.ErrInvalidTask),
		errors.Is(err, model.ErrUnknownValue):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, cutover.ErrInProgress):
		return http.StatusConflict, "cutover_in_progress"
	case errors.Is(err, cutover.ErrNotCancellable):
		return http.StatusConflict, "not_cancellable"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "registry_conflict"
	case errors.Is(err, recompute.ErrQueueFull), errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, repository.ErrConfig):
		return http.StatusServiceUnavailable, "registry_misconfigured"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, wca.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
