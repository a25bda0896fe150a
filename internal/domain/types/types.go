// Package types contains the JSON request and response bodies shared by the
// HTTP API and its clients.
package types

import "github.com/okian/keystudy/internal/domain/model"

// IdempotencyKeyHeader lets clients retry a write without storing it twice.
const IdempotencyKeyHeader = "Idempotency-Key"

// ErrorResponse is the failure envelope of every JSON endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// CreateParticipantResponse is returned by POST /api/create_participant.
type CreateParticipantResponse struct {
	Success       bool  `json:"success"`
	ParticipantID int64 `json:"participant_id"`
}

// SaveEventsRequest is the body of POST /api/save_events. A nil Events
// slice means the field was absent; an empty one is a valid batch.
type SaveEventsRequest struct {
	ParticipantID *int64              `json:"participant_id"`
	TaskType      *string             `json:"task_type"`
	Events        []model.EventRecord `json:"events"`
}

// Validate checks the top-level fields. Events are checked by the store.
func (r SaveEventsRequest) Validate() error {
	switch {
	case r.ParticipantID == nil:
		return model.Missing("participant_id")
	case r.TaskType == nil:
		return model.Missing("task_type")
	case r.Events == nil:
		return model.Missing("events")
	}
	if err := model.ValidateParticipantID(*r.ParticipantID); err != nil {
		return err
	}
	return model.ValidateLabel("task_type", *r.TaskType)
}

// SaveEventsResponse reports how many events were stored.
type SaveEventsResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Saved     int    `json:"saved"`
	Duplicate bool   `json:"duplicate"`
}

// SaveFeaturesRequest is the body of POST /api/save_features.
type SaveFeaturesRequest struct {
	ParticipantID *int64               `json:"participant_id"`
	Condition     *string              `json:"condition"`
	Features      *model.FeatureRecord `json:"features"`
}

// Validate checks the top-level fields and every feature value.
func (r SaveFeaturesRequest) Validate() error {
	switch {
	case r.ParticipantID == nil:
		return model.Missing("participant_id")
	case r.Condition == nil:
		return model.Missing("condition")
	case r.Features == nil:
		return model.Missing("features")
	}
	if err := model.ValidateParticipantID(*r.ParticipantID); err != nil {
		return err
	}
	if err := model.ValidateLabel("condition", *r.Condition); err != nil {
		return err
	}
	return r.Features.Validate()
}

// SaveFeaturesResponse acknowledges a stored feature set.
type SaveFeaturesResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
}

// DataResponse is returned by GET /api/get_data.
type DataResponse struct {
	Success bool                    `json:"success"`
	Data    []model.ParticipantView `json:"data"`
}

// ParticipantResponse is returned by GET /api/participants/{id}.
type ParticipantResponse struct {
	Success bool                  `json:"success"`
	Data    model.ParticipantView `json:"data"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
