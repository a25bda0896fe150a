package simulate

import (
	"math/rand/v2"
	"unicode"
)

// Task names match the conditions recorded by the study frontend.
const (
	TaskRelaxed  = "relaxed"
	TaskStressed = "stressed"
)

// Tasks lists the passages in the order participants type them.
var Tasks = []struct {
	Name    string
	Text    string
	Profile Profile
}{
	{
		Name:    TaskRelaxed,
		Text:    "The graceful swans glided across the serene surface of the lake, their movements creating gentle ripples. The surrounding forest was a tapestry of lush green, with sunlight filtering through the leaves. It was a scene of perfect tranquility and natural beauty.",
		Profile: Relaxed,
	},
	{
		Name:    TaskStressed,
		Text:    "The ambitious quarterback scrambled frantically across the field, dodging relentless defenders under the glaring stadium lights. A critical fourth down with mere seconds remaining, the roaring crowd's anticipation reached a fever pitch, creating an atmosphere of intense, electrifying pressure.",
		Profile: Stressed,
	},
}

// Profile shapes the timing of a synthetic typist, in milliseconds.
type Profile struct {
	HoldMean   float64 // key held down
	HoldJitter float64
	FlightMean float64 // key released to next key pressed
	FlightJit  float64
	TypoRate   float64 // chance of a wrong key followed by Backspace
}

// Typing profiles for the two study conditions.
var (
	Relaxed  = Profile{HoldMean: 105, HoldJitter: 20, FlightMean: 120, FlightJit: 40, TypoRate: 0.02}
	Stressed = Profile{HoldMean: 90, HoldJitter: 30, FlightMean: 70, FlightJit: 55, TypoRate: 0.07}
)

const (
	minHoldMS   = 15
	minFlightMS = 5
	startMS     = 500
)

// Generate types text with profile p and returns the keystrokes in time
// order. Keys never overlap, so every keydown is released before the next.
func Generate(r *rand.Rand, text string, p Profile) []Keystroke {
	ks := make([]Keystroke, 0, len(text)*2)
	t := startMS + r.Float64()*startMS

	press := func(key, code string) {
		hold := max(minHoldMS, p.HoldMean+r.NormFloat64()*p.HoldJitter)
		ks = append(ks,
			Keystroke{Type: KeyDown, Key: key, Code: code, Timestamp: t},
			Keystroke{Type: KeyUp, Key: key, Code: code, Timestamp: t + hold},
		)
		t += hold + max(minFlightMS, p.FlightMean+r.NormFloat64()*p.FlightJit)
	}

	for _, ch := range text {
		if unicode.IsLetter(ch) && r.Float64() < p.TypoRate {
			wrong := rune('a' + r.IntN(26))
			press(string(wrong), codeFor(wrong))
			press(Backspace, Backspace)
		}
		press(string(ch), codeFor(ch))
	}
	return ks
}

// codeFor returns the physical key code of ch on a US layout, or "" when
// there is no obvious one.
func codeFor(ch rune) string {
	switch {
	case ch >= 'a' && ch <= 'z':
		return "Key" + string(unicode.ToUpper(ch))
	case ch >= 'A' && ch <= 'Z':
		return "Key" + string(ch)
	case ch >= '0' && ch <= '9':
		return "Digit" + string(ch)
	}
	switch ch {
	case ' ':
		return "Space"
	case '.':
		return "Period"
	case ',':
		return "Comma"
	case '\'':
		return "Quote"
	case '-':
		return "Minus"
	default:
		return ""
	}
}
