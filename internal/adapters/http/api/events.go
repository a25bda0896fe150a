package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/internal/domain/types"
	"github.com/okian/keystudy/pkg/logger"
)

// EventDependencies defines the interface for event persistence.
type EventDependencies interface {
	SaveEvents(ctx context.Context, idempotencyKey string, participantID int64, taskType string, events []model.EventRecord) (saved int, duplicate bool, err error)
}

// EventsHandler handles keystroke event requests.
type EventsHandler struct {
	deps EventDependencies
	log  logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, log logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, log: log}
}

// HandleSaveEvents handles POST /api/save_events requests.
func (h *EventsHandler) HandleSaveEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.save_events"
	var req types.SaveEventsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}

	saved, duplicate, err := h.deps.SaveEvents(r.Context(), r.Header.Get(types.IdempotencyKeyHeader),
		*req.ParticipantID, *req.TaskType, req.Events)
	if err != nil {
		writeFailure(r.Context(), w, h.log, op, err)
		return
	}

	msg := fmt.Sprintf("Saved %d events", saved)
	if duplicate {
		msg = "Duplicate request ignored"
	}
	writeJSON(w, http.StatusOK, types.SaveEventsResponse{
		Success:   true,
		Message:   msg,
		Saved:     saved,
		Duplicate: duplicate,
	})
}
