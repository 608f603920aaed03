// Package risk converts classifier output plus session history into discrete
// risk assessments. It owns the session-granularity risk ladder and the
// trigger/threshold rules shared with the escalation engine.
package risk

import "fmt"

// Level is the session-granularity risk severity.
type Level int

const (
	// LevelMinimal means no actionable risk was detected. Baseline level.
	LevelMinimal Level = iota
	// LevelModerate means distress markers are present; preventive action recommended.
	LevelModerate
	// LevelSevere means crisis language was detected; human attention required.
	LevelSevere
	// LevelEmergency means immediate danger is indicated; crisis response mandatory.
	LevelEmergency
)

// String implements fmt.Stringer for Level.
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelModerate:
		return "moderate"
	case LevelSevere:
		return "severe"
	case LevelEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(l))
	}
}

// MarshalText implements encoding.TextMarshaler so levels render as their
// names in JSON payloads.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, the inverse of
// MarshalText, so level names in JSON payloads decode back into levels.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "minimal":
		*l = LevelMinimal
	case "moderate":
		*l = LevelModerate
	case "severe":
		*l = LevelSevere
	case "emergency":
		*l = LevelEmergency
	default:
		return fmt.Errorf("unknown risk level %q", text)
	}
	return nil
}

// Elevated returns the level one step up. Emergency is terminal.
func (l Level) Elevated() Level {
	if l >= LevelEmergency {
		return LevelEmergency
	}
	return l + 1
}

// Score thresholds for deriving a level from a numeric detection score when no
// trigger keyword matched. Kept consistent with the escalation engine.
const (
	ScoreEmergency = 0.9
	ScoreSevere    = 0.7
	ScoreModerate  = 0.5
)

// LevelFromScore maps a detection score in [0,1] onto the risk ladder.
func LevelFromScore(score float64) Level {
	switch {
	case score >= ScoreEmergency:
		return LevelEmergency
	case score >= ScoreSevere:
		return LevelSevere
	case score >= ScoreModerate:
		return LevelModerate
	default:
		return LevelMinimal
	}
}
