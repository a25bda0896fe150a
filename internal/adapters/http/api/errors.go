package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/keystudy/internal/adapters/repository"
	"github.com/okian/keystudy/internal/domain/dedupe"
	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/pkg/logger"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Error codes carried in the failure envelope.
const (
	codeBadRequest      = "bad_request"
	codeValidation      = "validation_error"
	codeNotFound        = "not_found"
	codeInProgress      = "in_progress"
	codePayloadTooLarge = "payload_too_large"
	codeStorage         = "storage_error"
	codeInternal        = "internal_error"
	codeUnavailable     = "unavailable"
)

// classify maps an error to its status code and envelope code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, codePayloadTooLarge
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, dedupe.ErrInProgress):
		return http.StatusConflict, codeInProgress
	case errors.Is(err, repository.ErrStorage):
		return http.StatusInternalServerError, codeStorage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// writeFailure writes the envelope for err. Server-side failures are
// logged and their details kept out of the response.
func writeFailure(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed",
			logger.String("op", op),
			logger.String("request_id", RequestIDFromContext(ctx)),
			logger.Error(err),
		)
		writeError(w, status, code, nil)
		return
	}
	if code == codeValidation {
		writeError(w, status, code, errors.New(validationMessage(err)))
		return
	}
	writeError(w, status, code, err)
}
