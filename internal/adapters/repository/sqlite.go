package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/pkg/logger"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database, mostly for tests.
const MemoryPath = ":memory:"

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// createdAtColumn renders created_at as RFC 3339 so scanning never depends
// on the driver's timestamp handling.
const createdAtColumn = `strftime('%Y-%m-%dT%H:%M:%SZ', created_at)`

// SQLiteStore implements Store on a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	log    logger.Logger
	ownsDB bool
}

// OpenDB opens the SQLite file at path with foreign keys enforced. The
// pool is limited to one connection so every statement is serialized,
// which also keeps ":memory:" databases alive for the life of the handle.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	const op = "repository.OpenDB"

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%s: database path is required", op)
	}
	if path != MemoryPath {
		path = filepath.Clean(path)
	}
	dsn := path + "?" + pragmas

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w: %w", op, ErrStorage, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w: %w", op, ErrStorage, err)
	}
	return db, nil
}

// NewSQLiteStore wraps an open database. The caller keeps ownership of db
// unless WithOwnedDB is given.
func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{db: db, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens path, initializes the schema and returns a store that owns
// its database handle.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteStore(db, append(opts, WithOwnedDB())...)
	if err := s.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	return nil
}

func (s *SQLiteStore) Initialize(ctx context.Context) error {
	const op = "repository.Initialize"
	if err := s.ready(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageErr(op, err)
		}
	}
	s.log.Debug(ctx, "schema ready")
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	const op = "repository.Ping"
	if err := s.ready(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr(op, err)
	}
	return nil
}

func (s *SQLiteStore) CreateParticipant(ctx context.Context) (int64, error) {
	const op = "repository.CreateParticipant"
	if err := s.ready(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO participants DEFAULT VALUES`)
	if err != nil {
		return 0, storageErr(op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr(op, err)
	}
	return id, nil
}

func (s *SQLiteStore) SaveEvents(ctx context.Context, participantID int64, taskType string, events []model.EventRecord) (int, error) {
	const op = "repository.SaveEvents"
	if err := s.ready(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := model.ValidateParticipantID(participantID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := model.ValidateLabel("task_type", taskType); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	for i := range events {
		if err := events[i].Validate(fmt.Sprintf("events[%d]", i)); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := participantExists(ctx, tx, participantID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
		(participant_id, task_type, event_type, key, code, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, storageErr(op, err)
	}
	defer stmt.Close()

	for i := range events {
		ev := events[i].Event(participantID, taskType)
		if _, err := stmt.ExecContext(ctx, ev.ParticipantID, ev.TaskType, ev.EventType, ev.Key, ev.Code, ev.Timestamp); err != nil {
			return 0, classify(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr(op, err)
	}
	s.log.Debug(ctx, "events stored",
		logger.Int64("participant_id", participantID),
		logger.String("task_type", taskType),
		logger.Int("count", len(events)),
	)
	return len(events), nil
}

func (s *SQLiteStore) SaveFeatures(ctx context.Context, participantID int64, condition string, features model.FeatureRecord) error {
	const op = "repository.SaveFeatures"
	if err := s.ready(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := model.ValidateParticipantID(participantID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := model.ValidateLabel("condition", condition); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := features.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	f := features.Features()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := participantExists(ctx, tx, participantID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO features (participant_id, `+featureColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		participantID,
		condition,
		f.TotalKeysPressed,
		f.TotalBackspaces,
		f.ErrorRate,
		f.TypingAccuracy,
		f.HoldTimeMean,
		f.HoldTimeStd,
		f.HoldTimeMedian,
		f.LatencyMean,
		f.LatencyStd,
		f.LatencyMedian,
		f.TypingSpeedWPM,
		f.SessionDurationMS,
	)
	if err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op, err)
	}
	return nil
}

func (s *SQLiteStore) GetAllData(ctx context.Context) ([]model.ParticipantView, error) {
	const op = "repository.GetAllData"
	if err := s.ready(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	participants, err := listParticipants(ctx, tx)
	if err != nil {
		return nil, storageErr(op, err)
	}

	views := make([]model.ParticipantView, 0, len(participants))
	for _, p := range participants {
		view, err := loadView(ctx, tx, p)
		if err != nil {
			return nil, storageErr(op, err)
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, participantID int64) (model.ParticipantView, error) {
	const op = "repository.GetParticipant"
	if err := s.ready(ctx); err != nil {
		return model.ParticipantView{}, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ParticipantView{}, storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		p       model.Participant
		created string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, `+createdAtColumn+` FROM participants WHERE id = ?`, participantID,
	).Scan(&p.ID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ParticipantView{}, fmt.Errorf("%s: %w: id %d", op, ErrNotFound, participantID)
	}
	if err != nil {
		return model.ParticipantView{}, storageErr(op, err)
	}
	if p.CreatedAt, err = parseCreatedAt(created); err != nil {
		return model.ParticipantView{}, storageErr(op, err)
	}

	view, err := loadView(ctx, tx, p)
	if err != nil {
		return model.ParticipantView{}, storageErr(op, err)
	}
	return view, nil
}

func (s *SQLiteStore) ExportRows(ctx context.Context) ([]model.ExportRow, error) {
	const op = "repository.ExportRows"
	if err := s.ready(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.participant_id, f.condition,
		   f.total_keys_pressed, f.total_backspaces, f.error_rate, f.typing_accuracy,
		   f.hold_time_mean, f.hold_time_std, f.hold_time_median,
		   f.latency_mean, f.latency_std, f.latency_median,
		   f.typing_speed_wpm, f.session_duration_ms
		 FROM features f
		 JOIN participants p ON p.id = f.participant_id
		 ORDER BY p.id, f.id`)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := make([]model.ExportRow, 0)
	for rows.Next() {
		var r model.ExportRow
		if err := rows.Scan(append([]any{&r.ParticipantID, &r.Condition}, featureDest(&r.Features)...)...); err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (model.Counts, error) {
	const op = "repository.Counts"
	if err := s.ready(ctx); err != nil {
		return model.Counts{}, fmt.Errorf("%s: %w", op, err)
	}
	var c model.Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM participants),
		(SELECT COUNT(*) FROM events),
		(SELECT COUNT(*) FROM features)`,
	).Scan(&c.Participants, &c.Events, &c.FeatureSets)
	if err != nil {
		return model.Counts{}, storageErr(op, err)
	}
	return c, nil
}

// Close releases the database when the store owns it.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil || !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func participantExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM participants WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

func listParticipants(ctx context.Context, tx *sql.Tx) ([]model.Participant, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, `+createdAtColumn+` FROM participants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var (
			p       model.Participant
			created string
		)
		if err := rows.Scan(&p.ID, &created); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseCreatedAt(created); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// loadView reads the children of p. Each query's rows are drained before
// the next starts since the pool has a single connection.
func loadView(ctx context.Context, tx *sql.Tx, p model.Participant) (model.ParticipantView, error) {
	view := model.ParticipantView{
		Participant: p,
		Features:    []model.FeatureSet{},
		Events:      []model.Event{},
	}

	frows, err := tx.QueryContext(ctx,
		`SELECT id, participant_id, `+featureColumns+` FROM features WHERE participant_id = ? ORDER BY id`, p.ID)
	if err != nil {
		return view, err
	}
	for frows.Next() {
		var fs model.FeatureSet
		dest := append([]any{&fs.ID, &fs.ParticipantID, &fs.Condition}, featureDest(&fs.Features)...)
		if err := frows.Scan(dest...); err != nil {
			_ = frows.Close()
			return view, err
		}
		view.Features = append(view.Features, fs)
	}
	if err := frows.Err(); err != nil {
		_ = frows.Close()
		return view, err
	}
	_ = frows.Close()

	erows, err := tx.QueryContext(ctx,
		`SELECT id, participant_id, task_type, event_type, key, code, timestamp
		 FROM events WHERE participant_id = ? ORDER BY id`, p.ID)
	if err != nil {
		return view, err
	}
	defer erows.Close()
	for erows.Next() {
		var ev model.Event
		if err := erows.Scan(&ev.ID, &ev.ParticipantID, &ev.TaskType, &ev.EventType, &ev.Key, &ev.Code, &ev.Timestamp); err != nil {
			return view, err
		}
		view.Events = append(view.Events, ev)
	}
	return view, erows.Err()
}

func featureDest(f *model.Features) []any {
	return []any{
		&f.TotalKeysPressed,
		&f.TotalBackspaces,
		&f.ErrorRate,
		&f.TypingAccuracy,
		&f.HoldTimeMean,
		&f.HoldTimeStd,
		&f.HoldTimeMedian,
		&f.LatencyMean,
		&f.LatencyStd,
		&f.LatencyMedian,
		&f.TypingSpeedWPM,
		&f.SessionDurationMS,
	}
}

func parseCreatedAt(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", v, err)
	}
	return t.UTC(), nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// classify maps a foreign key violation to ErrNotFound; everything else is
// a storage failure.
func classify(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return storageErr(op, err)
}
