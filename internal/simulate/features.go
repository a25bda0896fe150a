package simulate

import (
	"math"
	"sort"

	"github.com/okian/keystudy/internal/domain/model"
)

// Event types and the one special key the study records.
const (
	KeyDown   = "keydown"
	KeyUp     = "keyup"
	Backspace = "Backspace"
)

// Keystroke is one recorded keyboard event with its timestamp in milliseconds.
type Keystroke struct {
	Type      string  `json:"type"`
	Key       string  `json:"key"`
	Code      string  `json:"code"`
	Timestamp float64 `json:"timestamp"`
}

// Record converts k to the API request shape.
func (k Keystroke) Record() model.EventRecord {
	return model.NewEventRecord(k.Type, k.Key, k.Code, k.Timestamp)
}

// ComputeFeatures summarizes a session the same way the study frontend does.
// Hold times pair a keydown with the next keyup of the same code; latencies
// are the gaps between consecutive non-Backspace keyups. Only positive
// intervals count. Empty input yields zero values.
func ComputeFeatures(ks []Keystroke) model.Features {
	var (
		holds, latencies []float64
		keys, backspaces int64
	)

	down := make(map[string]float64)
	for _, k := range ks {
		switch k.Type {
		case KeyDown:
			down[k.Code] = k.Timestamp
			keys++
			if k.Key == Backspace {
				backspaces++
			}
		case KeyUp:
			t, ok := down[k.Code]
			if !ok {
				continue
			}
			if hold := k.Timestamp - t; hold > 0 {
				holds = append(holds, hold)
			}
			delete(down, k.Code)
		}
	}

	var prev *Keystroke
	for i := range ks {
		k := &ks[i]
		if k.Type != KeyUp || k.Key == Backspace {
			continue
		}
		if prev != nil {
			if gap := k.Timestamp - prev.Timestamp; gap > 0 {
				latencies = append(latencies, gap)
			}
		}
		prev = k
	}

	f := model.Features{
		TotalKeysPressed: keys,
		TotalBackspaces:  backspaces,
	}
	f.HoldTimeMean, f.HoldTimeStd, f.HoldTimeMedian = summarize(holds)
	f.LatencyMean, f.LatencyStd, f.LatencyMedian = summarize(latencies)

	if keys > 0 {
		f.ErrorRate = float64(backspaces) / float64(keys)
		f.TypingAccuracy = float64(keys-2*backspaces) / float64(keys)
	}
	if len(ks) > 1 {
		f.SessionDurationMS = ks[len(ks)-1].Timestamp - ks[0].Timestamp
	}
	if f.SessionDurationMS > 0 {
		chars := float64(keys - backspaces)
		f.TypingSpeedWPM = (chars / 5) / (f.SessionDurationMS / 60000)
	}
	return f
}

// summarize returns mean, population standard deviation and the upper
// median of values.
func summarize(values []float64) (mean, std, median float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	std = math.Sqrt(sq / float64(len(values)))

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return mean, std, sorted[len(sorted)/2]
}
