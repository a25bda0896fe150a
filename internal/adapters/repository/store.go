// Package repository persists participants, keystroke events and feature
// sets, and produces the rows of the CSV export.
package repository

import (
	"context"

	"github.com/okian/keystudy/internal/domain/model"
)

// Store provides write-once access to the study data.
//
// Errors wrap ErrNotFound when a participant id is unknown, ErrStorage when
// the database fails, and *model.ValidationError when input is incomplete.
type Store interface {
	// Initialize creates the schema if it does not exist. Safe to repeat.
	Initialize(ctx context.Context) error

	// Ping checks that the database answers.
	Ping(ctx context.Context) error

	// CreateParticipant inserts a new participant and returns its id.
	CreateParticipant(ctx context.Context) (int64, error)

	// SaveEvents appends a batch of events for one task. The batch is
	// written atomically and the number of stored rows is returned.
	SaveEvents(ctx context.Context, participantID int64, taskType string, events []model.EventRecord) (int, error)

	// SaveFeatures appends one feature set for a condition.
	SaveFeatures(ctx context.Context, participantID int64, condition string, features model.FeatureRecord) error

	// GetAllData returns every participant ordered by id with its feature
	// sets and events in insertion order.
	GetAllData(ctx context.Context) ([]model.ParticipantView, error)

	// GetParticipant returns one participant view.
	GetParticipant(ctx context.Context, participantID int64) (model.ParticipantView, error)

	// ExportRows returns one row per (participant, feature set) pair.
	ExportRows(ctx context.Context) ([]model.ExportRow, error)

	// Counts returns table totals.
	Counts(ctx context.Context) (model.Counts, error)

	Close() error
}
