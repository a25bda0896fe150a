package api

import (
	"context"
	"net/http"

	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/internal/domain/types"
	"github.com/okian/keystudy/pkg/logger"
)

// FeatureDependencies defines the interface for feature persistence.
type FeatureDependencies interface {
	SaveFeatures(ctx context.Context, idempotencyKey string, participantID int64, condition string, features model.FeatureRecord) (duplicate bool, err error)
}

// FeaturesHandler handles feature set requests.
type FeaturesHandler struct {
	deps FeatureDependencies
	log  logger.Logger
}

// NewFeaturesHandler creates a new features handler.
func NewFeaturesHandler(deps FeatureDependencies, log logger.Logger) *FeaturesHandler {
	return &FeaturesHandler{deps: deps, log: log}
}

// HandleSaveFeatures handles POST /api/save_features requests.
func (h *FeaturesHandler) HandleSaveFeatures(w http.ResponseWriter, r *http.Request) {
	const op = "api.save_features"
	var req types.SaveFeaturesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}

	duplicate, err := h.deps.SaveFeatures(r.Context(), r.Header.Get(types.IdempotencyKeyHeader),
		*req.ParticipantID, *req.Condition, *req.Features)
	if err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}

	msg := "Features saved"
	if duplicate {
		msg = "Duplicate request ignored"
	}
	writeJSON(w, http.StatusOK, types.SaveFeaturesResponse{Success: true, Message: msg, Duplicate: duplicate})
}
