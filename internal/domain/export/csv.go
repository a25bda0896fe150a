// Package export renders stored feature sets as the study's CSV file.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okian/keystudy/internal/domain/model"
)

// Filename is the attachment name offered by the HTTP export.
const Filename = "keystroke_data.csv"

// Header is the fixed column order of the export.
var Header = []string{
	"participant_id",
	"condition",
	"total_keys_pressed",
	"total_backspaces",
	"error_rate",
	"typing_accuracy",
	"hold_time_mean",
	"hold_time_std",
	"hold_time_median",
	"latency_mean",
	"latency_std",
	"latency_median",
	"typing_speed_wpm",
	"session_duration_ms",
}

// WriteCSV writes the header and one record per row to w. Fields that
// contain a comma, quote or newline are quoted; numeric fields never are.
func WriteCSV(w io.Writer, rows []model.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for i := range rows {
		if err := cw.Write(Record(rows[i])); err != nil {
			return fmt.Errorf("export: write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	return nil
}

// Render returns the whole export as a string.
func Render(rows []model.ExportRow) (string, error) {
	var b strings.Builder
	if err := WriteCSV(&b, rows); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Record converts one row into its column values in Header order.
func Record(r model.ExportRow) []string {
	f := r.Features
	return []string{
		strconv.FormatInt(r.ParticipantID, 10),
		r.Condition,
		strconv.FormatInt(f.TotalKeysPressed, 10),
		strconv.FormatInt(f.TotalBackspaces, 10),
		formatFloat(f.ErrorRate),
		formatFloat(f.TypingAccuracy),
		formatFloat(f.HoldTimeMean),
		formatFloat(f.HoldTimeStd),
		formatFloat(f.HoldTimeMedian),
		formatFloat(f.LatencyMean),
		formatFloat(f.LatencyStd),
		formatFloat(f.LatencyMedian),
		formatFloat(f.TypingSpeedWPM),
		formatFloat(f.SessionDurationMS),
	}
}

// formatFloat prints the shortest decimal that round-trips, so 0 is "0"
// and 42.5 is "42.5".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
