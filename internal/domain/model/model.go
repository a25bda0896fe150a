// Package model contains the study's domain models passed between layers.
package model

import "time"

// Participant is one study subject. Rows are write-once.
type Participant struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is one persisted keyboard signal.
type Event struct {
	ID            int64   `json:"id"`
	ParticipantID int64   `json:"participant_id"`
	TaskType      string  `json:"task_type"`
	EventType     string  `json:"event_type"`
	Key           string  `json:"key"`
	Code          string  `json:"code"`
	Timestamp     float64 `json:"timestamp"` // client clock, milliseconds
}

// Features is the numeric summary of one typing session.
type Features struct {
	TotalKeysPressed  int64   `json:"total_keys_pressed"`
	TotalBackspaces   int64   `json:"total_backspaces"`
	ErrorRate         float64 `json:"error_rate"`
	TypingAccuracy    float64 `json:"typing_accuracy"`
	HoldTimeMean      float64 `json:"hold_time_mean"`
	HoldTimeStd       float64 `json:"hold_time_std"`
	HoldTimeMedian    float64 `json:"hold_time_median"`
	LatencyMean       float64 `json:"latency_mean"`
	LatencyStd        float64 `json:"latency_std"`
	LatencyMedian     float64 `json:"latency_median"`
	TypingSpeedWPM    float64 `json:"typing_speed_wpm"`
	SessionDurationMS float64 `json:"session_duration_ms"`
}

// FeatureSet is a persisted Features row tagged with its condition.
type FeatureSet struct {
	ID            int64  `json:"id"`
	ParticipantID int64  `json:"participant_id"`
	Condition     string `json:"condition"`
	Features
}

// ParticipantView is a participant with everything recorded for it,
// in insertion order.
type ParticipantView struct {
	Participant
	Features []FeatureSet `json:"features"`
	Events   []Event      `json:"events"`
}

// ExportRow is one (participant, feature set) pair of the CSV export.
type ExportRow struct {
	ParticipantID int64
	Condition     string
	Features
}

// Counts reports how many rows each table holds.
type Counts struct {
	Participants int64 `json:"participants"`
	Events       int64 `json:"events"`
	FeatureSets  int64 `json:"feature_sets"`
}
