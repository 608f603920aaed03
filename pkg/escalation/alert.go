package escalation

import (
	"fmt"

	"github.com/mindwell-health/sentinel/pkg/risk"
)

// AlertLevel is the case-granularity severity ladder. Totally ordered; a
// case's level is monotonically non-decreasing over its lifetime and
// emergency is terminal.
type AlertLevel int

const (
	AlertConcern AlertLevel = iota
	AlertModerate
	AlertSevere
	AlertEmergency
)

// String implements fmt.Stringer for AlertLevel.
func (l AlertLevel) String() string {
	switch l {
	case AlertConcern:
		return "concern"
	case AlertModerate:
		return "moderate"
	case AlertSevere:
		return "severe"
	case AlertEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(l))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l AlertLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Next returns the level one step up. Emergency self-loops.
func (l AlertLevel) Next() AlertLevel {
	if l >= AlertEmergency {
		return AlertEmergency
	}
	return l + 1
}

// Terminal reports whether the level has no further escalation.
func (l AlertLevel) Terminal() bool {
	return l >= AlertEmergency
}

// alertFromSignal computes the alert level from a detection score and risk
// labels using the same trigger sets and cut points as the risk assessor,
// so both components classify one input identically.
func alertFromSignal(score float64, risks []string) AlertLevel {
	level := fromRiskLevel(risk.LevelFromScore(score))
	for _, label := range risks {
		if tl, ok := risk.TriggerLevel(label); ok {
			if candidate := fromRiskLevel(tl); candidate > level {
				level = candidate
			}
		}
	}
	return level
}

// fromRiskLevel maps the session-risk ladder onto the case-alert ladder;
// minimal opens at concern.
func fromRiskLevel(l risk.Level) AlertLevel {
	switch l {
	case risk.LevelEmergency:
		return AlertEmergency
	case risk.LevelSevere:
		return AlertSevere
	case risk.LevelModerate:
		return AlertModerate
	default:
		return AlertConcern
	}
}
