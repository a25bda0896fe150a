package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Session is one generated task of one participant.
type Session struct {
	ParticipantID int64          `json:"participant_id"`
	Task          string         `json:"task"`
	Keystrokes    []Keystroke    `json:"keystrokes"`
	Features      model.Features `json:"features"`
}

// counters is shared by the workers of one run.
type counters struct {
	mu       sync.Mutex
	stats    *Stats
	sessions []Session
}

func (c *counters) add(fn func(s *Stats)) {
	c.mu.Lock()
	fn(c.stats)
	c.mu.Unlock()
}

// Run executes a complete simulation: health check, participant creation,
// event and feature submission, then verification against the CSV export.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	cfg := config.withDefaults()
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting keystroke study simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("participants", cfg.Participants),
		logger.Int("workers", cfg.Workers),
		logger.String("timeout", cfg.Timeout.String()),
		logger.Any("seed", cfg.Seed),
		logger.Bool("replay", cfg.Replay),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Remember the export size so concurrent users do not skew verification
	before, err := client.ExportRows(ctx)
	if err != nil {
		return stats, fmt.Errorf("initial export failed: %w", err)
	}

	// Step 3: Simulate participants concurrently
	c := &counters{stats: stats}
	runID := uuid.NewString()
	jobs := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(cfg.Seed, uint64(worker)))
			for range jobs {
				if err := simulateParticipant(ctx, client, r, &cfg, runID, c); err != nil {
					c.add(func(s *Stats) { s.Failures++ })
					log.Warn(ctx, "participant failed", logger.Int("worker", worker), logger.Error(err))
				}
			}
		}(w)
	}
	go func() {
		defer close(jobs)
		for i := 0; i < cfg.Participants; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("simulation interrupted: %w", err)
	}

	// Step 4: Verify the export
	after, err := client.ExportRows(ctx)
	if err != nil {
		return stats, fmt.Errorf("final export failed: %w", err)
	}
	stats.ExportedRows = len(after) - len(before)
	if stats.ExportedRows != stats.FeatureSetsSaved {
		return stats, fmt.Errorf("%w: export grew by %d rows, %d feature sets were saved",
			ErrVerification, stats.ExportedRows, stats.FeatureSetsSaved)
	}

	// Step 5: Save sessions to file
	if cfg.OutputFile != "" {
		if err := saveSessions(cfg.OutputFile, c.sessions); err != nil {
			log.Warn(ctx, "failed to save sessions to file", logger.Error(err))
		} else {
			log.Info(ctx, "sessions saved to file", logger.String("filename", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if stats.Failures > 0 {
		return stats, fmt.Errorf("%d participants failed", stats.Failures)
	}
	return stats, nil
}

func simulateParticipant(ctx context.Context, client *Client, r *rand.Rand, cfg *Config, runID string, c *counters) error {
	id, err := client.CreateParticipant(ctx)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	c.add(func(s *Stats) { s.ParticipantsCreated++ })

	for _, task := range Tasks {
		text := task.Text
		if cfg.MaxChars > 0 && len(text) > cfg.MaxChars {
			text = text[:cfg.MaxChars]
		}
		ks := Generate(r, text, task.Profile)
		features := ComputeFeatures(ks)
		key := fmt.Sprintf("%s-%d-%s", runID, id, task.Name)

		attempts := 1
		if cfg.Replay {
			attempts = 2
		}
		for i := 0; i < attempts; i++ {
			res, err := client.SaveEvents(ctx, key+"-events", id, task.Name, ks)
			if err != nil {
				return fmt.Errorf("save %s events: %w", task.Name, err)
			}
			c.add(func(s *Stats) {
				if res.Duplicate {
					s.Duplicates++
				} else {
					s.EventsSaved += res.Saved
				}
			})

			fres, err := client.SaveFeatures(ctx, key+"-features", id, task.Name, features)
			if err != nil {
				return fmt.Errorf("save %s features: %w", task.Name, err)
			}
			c.add(func(s *Stats) {
				if fres.Duplicate {
					s.Duplicates++
				} else {
					s.FeatureSetsSaved++
				}
			})
		}

		if cfg.OutputFile != "" {
			c.mu.Lock()
			c.sessions = append(c.sessions, Session{ParticipantID: id, Task: task.Name, Keystrokes: ks, Features: features})
			c.mu.Unlock()
		}
	}
	return nil
}

// saveSessions writes the generated sessions as a JSON array.
func saveSessions(filename string, sessions []Session) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.EventsSaved) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("participantsCreated", stats.ParticipantsCreated),
		logger.Int("eventsSaved", stats.EventsSaved),
		logger.Int("featureSetsSaved", stats.FeatureSetsSaved),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("failures", stats.Failures),
		logger.Int("exportedRows", stats.ExportedRows),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("eventsPerSecond", perSecond),
	)
}
