package repository

// schema is applied statement by statement on Initialize.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		participant_id INTEGER NOT NULL REFERENCES participants(id),
		task_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		key TEXT NOT NULL,
		code TEXT NOT NULL,
		timestamp REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS features (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		participant_id INTEGER NOT NULL REFERENCES participants(id),
		condition TEXT NOT NULL,
		total_keys_pressed INTEGER NOT NULL,
		total_backspaces INTEGER NOT NULL,
		error_rate REAL NOT NULL,
		typing_accuracy REAL NOT NULL,
		hold_time_mean REAL NOT NULL,
		hold_time_std REAL NOT NULL,
		hold_time_median REAL NOT NULL,
		latency_mean REAL NOT NULL,
		latency_std REAL NOT NULL,
		latency_median REAL NOT NULL,
		typing_speed_wpm REAL NOT NULL,
		session_duration_ms REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_participant ON events(participant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_features_participant ON features(participant_id)`,
}

const featureColumns = `condition,
	total_keys_pressed, total_backspaces, error_rate, typing_accuracy,
	hold_time_mean, hold_time_std, hold_time_median,
	latency_mean, latency_std, latency_median,
	typing_speed_wpm, session_duration_ms`
