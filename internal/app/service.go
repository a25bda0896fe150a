// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	repository "github.com/okian/keystudy/internal/adapters/repository"
	"github.com/okian/keystudy/internal/domain/dedupe"
	"github.com/okian/keystudy/internal/domain/export"
	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/pkg/logger"
	"github.com/okian/keystudy/pkg/metrics"
)

// Operation names used for metrics and idempotency key scoping.
const (
	opCreateParticipant = "create_participant"
	opSaveEvents        = "save_events"
	opSaveFeatures      = "save_features"
	opGetAllData        = "get_all_data"
	opGetParticipant    = "get_participant"
	opExport            = "export"
	opCounts            = "counts"
)

// ErrNotStarted is returned when the service is used before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the study backend.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	deduper dedupe.Deduper

	// Configuration
	dbPath     string
	dedupeSize int

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects an already opened store. The service does not own it
// beyond calling Close on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDBPath sets the SQLite file opened on Start when no store is injected.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:     "keystroke_study.db",
		dedupeSize: 10_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store if needed and makes sure the schema exists.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting study service...")

	if s.store == nil {
		store, err := repository.Open(ctx, s.dbPath, repository.WithLogger(s.logger.Named("store")))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "opened sqlite store", logger.String("path", s.dbPath))
	}
	if err := s.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	s.started = true
	s.logger.Info(ctx, "study service started", logger.Int("dedupeSize", s.dedupeSize))
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping study service...")
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "close store", logger.Error(err))
		}
	}
	s.started = false
	s.logger.Info(context.Background(), "study service stopped")
}

func (s *Service) current() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// CreateParticipant registers a new participant.
func (s *Service) CreateParticipant(ctx context.Context) (int64, error) {
	store, err := s.current()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	id, err := store.CreateParticipant(ctx)
	s.observe(opCreateParticipant, start, err)
	if err != nil {
		return 0, err
	}
	metrics.RecordParticipantCreated()
	s.logger.Info(ctx, "participant created", logger.Int64("participant_id", id))
	return id, nil
}

// SaveEvents stores a batch of events. With a non-empty idempotencyKey a
// repeated call reports duplicate and writes nothing.
func (s *Service) SaveEvents(ctx context.Context, idempotencyKey string, participantID int64, taskType string, events []model.EventRecord) (saved int, duplicate bool, err error) {
	store, err := s.current()
	if err != nil {
		return 0, false, err
	}
	if duplicate, err := s.claim(ctx, opSaveEvents, idempotencyKey); duplicate || err != nil {
		return 0, duplicate, err
	}

	start := time.Now()
	saved, err = store.SaveEvents(ctx, participantID, taskType, events)
	s.observe(opSaveEvents, start, err)
	s.settle(ctx, opSaveEvents, idempotencyKey, err)
	if err != nil {
		return 0, false, err
	}
	metrics.RecordEventsSaved(taskType, saved)
	s.logger.Debug(ctx, "events saved",
		logger.Int64("participant_id", participantID),
		logger.String("task_type", taskType),
		logger.Int("saved", saved),
	)
	return saved, false, nil
}

// SaveFeatures stores one feature set. Idempotency works as in SaveEvents.
func (s *Service) SaveFeatures(ctx context.Context, idempotencyKey string, participantID int64, condition string, features model.FeatureRecord) (duplicate bool, err error) {
	store, err := s.current()
	if err != nil {
		return false, err
	}
	if duplicate, err := s.claim(ctx, opSaveFeatures, idempotencyKey); duplicate || err != nil {
		return duplicate, err
	}

	start := time.Now()
	err = store.SaveFeatures(ctx, participantID, condition, features)
	s.observe(opSaveFeatures, start, err)
	s.settle(ctx, opSaveFeatures, idempotencyKey, err)
	if err != nil {
		return false, err
	}
	metrics.RecordFeatureSetSaved(condition)
	s.logger.Info(ctx, "features saved",
		logger.Int64("participant_id", participantID),
		logger.String("condition", condition),
	)
	return false, nil
}

// GetAllData returns every participant with its recorded data.
func (s *Service) GetAllData(ctx context.Context) ([]model.ParticipantView, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	views, err := store.GetAllData(ctx)
	s.observe(opGetAllData, start, err)
	return views, err
}

// GetParticipant returns a single participant view.
func (s *Service) GetParticipant(ctx context.Context, participantID int64) (model.ParticipantView, error) {
	store, err := s.current()
	if err != nil {
		return model.ParticipantView{}, err
	}
	if err := model.ValidateParticipantID(participantID); err != nil {
		return model.ParticipantView{}, err
	}
	start := time.Now()
	view, err := store.GetParticipant(ctx, participantID)
	s.observe(opGetParticipant, start, err)
	return view, err
}

// ExportCSV writes the feature export to w and returns the number of rows.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	store, err := s.current()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	rows, err := store.ExportRows(ctx)
	s.observe(opExport, start, err)
	if err != nil {
		return 0, err
	}
	if err := export.WriteCSV(w, rows); err != nil {
		return 0, err
	}
	metrics.RecordExportRows(len(rows))
	return len(rows), nil
}

// Counts returns table totals and refreshes the matching gauges.
func (s *Service) Counts(ctx context.Context) (model.Counts, error) {
	store, err := s.current()
	if err != nil {
		return model.Counts{}, err
	}
	start := time.Now()
	c, err := store.Counts(ctx)
	s.observe(opCounts, start, err)
	if err != nil {
		return model.Counts{}, err
	}
	metrics.UpdateStoreTotals(c.Participants, c.Events, c.FeatureSets)
	return c, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	store, err := s.current()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	stats := map[string]interface{}{
		"started":    started,
		"dbPath":     s.dbPath,
		"dedupeSize": s.dedupeSize,
	}
	s.mu.RUnlock()

	if !started {
		return stats
	}
	stats["idempotencyKeys"] = s.Size()
	c, err := s.Counts(context.Background())
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	stats["participants"] = c.Participants
	stats["events"] = c.Events
	stats["featureSets"] = c.FeatureSets
	return stats
}

// Size returns the current number of remembered idempotency keys.
func (s *Service) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// claim takes ownership of key for op. A key whose write completed
// reports duplicate; one whose write is still running yields
// dedupe.ErrInProgress so the client does not mistake it for success.
func (s *Service) claim(ctx context.Context, op, key string) (duplicate bool, err error) {
	if key == "" {
		return false, nil
	}
	switch s.deduper.Claim(ctx, op+":"+key) {
	case dedupe.Done:
		metrics.RecordDuplicateWrite(op)
		s.logger.Debug(ctx, "duplicate write skipped",
			logger.String("operation", op),
			logger.String("idempotencyKey", key),
		)
		return true, nil
	case dedupe.InProgress:
		return false, fmt.Errorf("%s: %w", op, dedupe.ErrInProgress)
	default:
		return false, nil
	}
}

// settle completes key after a successful write and forgets it after a
// failed one so the client can retry.
func (s *Service) settle(ctx context.Context, op, key string, err error) {
	if key == "" {
		return
	}
	if err != nil {
		s.deduper.Release(ctx, op+":"+key)
		return
	}
	s.deduper.Complete(ctx, op+":"+key)
}

func (s *Service) observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(op, float64(time.Since(start).Microseconds())/1000)
	if err == nil {
		return
	}
	kind := ErrorKind(err)
	metrics.RecordStoreError(op, kind)
	if kind == KindStorage || kind == KindInternal {
		s.logger.Error(context.Background(), "store operation failed",
			logger.String("operation", op),
			logger.Error(err),
		)
	}
}

// Error kinds reported in metrics and mapped to HTTP statuses.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
	KindStorage    = "storage"
	KindInternal   = "internal"
)

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return KindValidation
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound
	case errors.Is(err, dedupe.ErrInProgress):
		return KindConflict
	case errors.Is(err, repository.ErrStorage):
		return KindStorage
	default:
		return KindInternal
	}
}
