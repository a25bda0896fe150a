package model

import (
	"fmt"
	"math"
	"strings"
)

// EventRecord is one inbound keyboard event as sent by the client.
// Pointer fields distinguish an absent field from a zero value.
type EventRecord struct {
	Type      *string  `json:"type"`
	Key       *string  `json:"key"`
	Code      *string  `json:"code"`
	Timestamp *float64 `json:"timestamp"`
}

// NewEventRecord builds a fully populated EventRecord.
func NewEventRecord(eventType, key, code string, timestamp float64) EventRecord {
	return EventRecord{Type: &eventType, Key: &key, Code: &code, Timestamp: &timestamp}
}

// Validate reports the first absent or malformed field. prefix is
// prepended to field names, e.g. "events[3]".
func (r EventRecord) Validate(prefix string) error {
	name := func(f string) string {
		if prefix == "" {
			return f
		}
		return prefix + "." + f
	}
	switch {
	case r.Type == nil:
		return Missing(name("type"))
	case strings.TrimSpace(*r.Type) == "":
		return Invalid(name("type"), "must not be blank")
	case r.Key == nil:
		return Missing(name("key"))
	case *r.Key == "":
		return Invalid(name("key"), "must not be empty")
	case r.Code == nil:
		return Missing(name("code"))
	case r.Timestamp == nil:
		return Missing(name("timestamp"))
	case math.IsNaN(*r.Timestamp) || math.IsInf(*r.Timestamp, 0):
		return Invalid(name("timestamp"), "must be a finite number")
	}
	return nil
}

// Event converts a validated record into a persisted event shape.
func (r EventRecord) Event(participantID int64, taskType string) Event {
	return Event{
		ParticipantID: participantID,
		TaskType:      taskType,
		EventType:     *r.Type,
		Key:           *r.Key,
		Code:          *r.Code,
		Timestamp:     *r.Timestamp,
	}
}

// FeatureRecord is an inbound feature set. Every field is required.
type FeatureRecord struct {
	TotalKeysPressed  *int64   `json:"total_keys_pressed"`
	TotalBackspaces   *int64   `json:"total_backspaces"`
	ErrorRate         *float64 `json:"error_rate"`
	TypingAccuracy    *float64 `json:"typing_accuracy"`
	HoldTimeMean      *float64 `json:"hold_time_mean"`
	HoldTimeStd       *float64 `json:"hold_time_std"`
	HoldTimeMedian    *float64 `json:"hold_time_median"`
	LatencyMean       *float64 `json:"latency_mean"`
	LatencyStd        *float64 `json:"latency_std"`
	LatencyMedian     *float64 `json:"latency_median"`
	TypingSpeedWPM    *float64 `json:"typing_speed_wpm"`
	SessionDurationMS *float64 `json:"session_duration_ms"`
}

// NewFeatureRecord builds a fully populated FeatureRecord from f.
func NewFeatureRecord(f Features) FeatureRecord {
	return FeatureRecord{
		TotalKeysPressed:  &f.TotalKeysPressed,
		TotalBackspaces:   &f.TotalBackspaces,
		ErrorRate:         &f.ErrorRate,
		TypingAccuracy:    &f.TypingAccuracy,
		HoldTimeMean:      &f.HoldTimeMean,
		HoldTimeStd:       &f.HoldTimeStd,
		HoldTimeMedian:    &f.HoldTimeMedian,
		LatencyMean:       &f.LatencyMean,
		LatencyStd:        &f.LatencyStd,
		LatencyMedian:     &f.LatencyMedian,
		TypingSpeedWPM:    &f.TypingSpeedWPM,
		SessionDurationMS: &f.SessionDurationMS,
	}
}

// Validate checks fields in export column order and names the first
// one that is absent or malformed.
func (r FeatureRecord) Validate() error {
	counts := []struct {
		name string
		v    *int64
	}{
		{"total_keys_pressed", r.TotalKeysPressed},
		{"total_backspaces", r.TotalBackspaces},
	}
	for _, c := range counts {
		if c.v == nil {
			return Missing("features." + c.name)
		}
		if *c.v < 0 {
			return Invalid("features."+c.name, "must not be negative")
		}
	}

	reals := []struct {
		name string
		v    *float64
	}{
		{"error_rate", r.ErrorRate},
		{"typing_accuracy", r.TypingAccuracy},
		{"hold_time_mean", r.HoldTimeMean},
		{"hold_time_std", r.HoldTimeStd},
		{"hold_time_median", r.HoldTimeMedian},
		{"latency_mean", r.LatencyMean},
		{"latency_std", r.LatencyStd},
		{"latency_median", r.LatencyMedian},
		{"typing_speed_wpm", r.TypingSpeedWPM},
		{"session_duration_ms", r.SessionDurationMS},
	}
	for _, f := range reals {
		if f.v == nil {
			return Missing("features." + f.name)
		}
		if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) {
			return Invalid("features."+f.name, "must be a finite number")
		}
	}
	return nil
}

// Features converts a validated record into its value form.
func (r FeatureRecord) Features() Features {
	return Features{
		TotalKeysPressed:  *r.TotalKeysPressed,
		TotalBackspaces:   *r.TotalBackspaces,
		ErrorRate:         *r.ErrorRate,
		TypingAccuracy:    *r.TypingAccuracy,
		HoldTimeMean:      *r.HoldTimeMean,
		HoldTimeStd:       *r.HoldTimeStd,
		HoldTimeMedian:    *r.HoldTimeMedian,
		LatencyMean:       *r.LatencyMean,
		LatencyStd:        *r.LatencyStd,
		LatencyMedian:     *r.LatencyMedian,
		TypingSpeedWPM:    *r.TypingSpeedWPM,
		SessionDurationMS: *r.SessionDurationMS,
	}
}

// ValidateLabel checks a task type or condition label.
func ValidateLabel(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return Invalid(field, "must not be blank")
	}
	return nil
}

// ValidateParticipantID checks a caller supplied participant id.
func ValidateParticipantID(id int64) error {
	if id <= 0 {
		return Invalid("participant_id", fmt.Sprintf("must be a positive integer, got %d", id))
	}
	return nil
}
