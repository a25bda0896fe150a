package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/internal/domain/types"
	"github.com/okian/keystudy/pkg/logger"
)

// ParticipantDependencies defines the participant operations used by handlers.
type ParticipantDependencies interface {
	CreateParticipant(ctx context.Context) (int64, error)
	GetParticipant(ctx context.Context, participantID int64) (model.ParticipantView, error)
}

// ParticipantsHandler handles participant requests.
type ParticipantsHandler struct {
	deps ParticipantDependencies
	log  logger.Logger
}

// NewParticipantsHandler creates a new participants handler.
func NewParticipantsHandler(deps ParticipantDependencies, log logger.Logger) *ParticipantsHandler {
	return &ParticipantsHandler{deps: deps, log: log}
}

// HandleCreate handles POST /api/create_participant requests.
func (h *ParticipantsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_participant"
	id, err := h.deps.CreateParticipant(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.CreateParticipantResponse{Success: true, ParticipantID: id})
}

// HandleGet handles GET /api/participants/{id} requests.
func (h *ParticipantsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_participant"
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Errorf("%w: participant id must be a positive integer", ErrBadRequest))
		return
	}
	view, err := h.deps.GetParticipant(r.Context(), id)
	if err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ParticipantResponse{Success: true, Data: view})
}
