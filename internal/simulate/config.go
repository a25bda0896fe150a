// Package simulate drives the study API with synthetic participants. It is
// used for smoke and load testing a running server.
package simulate

import (
	"errors"
	"time"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultBaseURL      = "http://localhost:5000"
	DefaultParticipants = 20
	DefaultTimeout      = 30 * time.Second
)

// ErrVerification is returned when the export does not reflect what was written.
var ErrVerification = errors.New("verification failed")

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Participants int           // Number of synthetic participants
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Seed         uint64        // Random seed, 0 picks one from the clock
	MaxChars     int           // Truncate task passages, 0 types them in full
	Replay       bool          // Resend every write to check idempotency
	OutputFile   string        // Optional JSON dump of generated sessions
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	if out.Participants <= 0 {
		out.Participants = DefaultParticipants
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.Workers > out.Participants {
		out.Workers = out.Participants
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Seed == 0 {
		out.Seed = uint64(time.Now().UnixNano())
	}
	return out
}

// Stats holds run statistics.
type Stats struct {
	ParticipantsCreated int
	EventsSaved         int
	FeatureSetsSaved    int
	Duplicates          int
	Failures            int
	ExportedRows        int
	StartTime           time.Time
	EndTime             time.Time
	Duration            time.Duration
}
