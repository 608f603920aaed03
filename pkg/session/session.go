// Package session owns per-conversation mutable state: risk history, phase,
// intervention history, and engagement metrics. All mutation flows through
// the Coordinator, which serializes access per session.
package session

import (
	"fmt"
	"time"

	"github.com/mindwell-health/sentinel/pkg/intervention"
	"github.com/mindwell-health/sentinel/pkg/risk"
)

// Phase is the conversational phase of a session.
type Phase int

const (
	PhaseOpening Phase = iota
	PhaseWorking
	PhaseCrisis
	PhaseClosing
)

// String implements fmt.Stringer for Phase.
func (p Phase) String() string {
	switch p {
	case PhaseOpening:
		return "opening"
	case PhaseWorking:
		return "working"
	case PhaseCrisis:
		return "crisis"
	case PhaseClosing:
		return "closing"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, the inverse of
// MarshalText, so phase names in JSON payloads decode back into phases.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "opening":
		*p = PhaseOpening
	case "working":
		*p = PhaseWorking
	case "crisis":
		*p = PhaseCrisis
	case "closing":
		*p = PhaseClosing
	default:
		return fmt.Errorf("unknown session phase %q", text)
	}
	return nil
}

// EngagementMetrics accumulates coarse engagement signals per session.
type EngagementMetrics struct {
	MessageCount    int           `json:"message_count"`
	TotalChars      int           `json:"total_chars"`
	MeanMessageLen  float64       `json:"mean_message_len"`
	SessionDuration time.Duration `json:"session_duration"`
}

// Session is one ongoing conversation. Owned exclusively by the Coordinator;
// risk history is append-only.
type Session struct {
	ID            string                      `json:"id"`
	ClientID      string                      `json:"client_id"`
	TherapistID   string                      `json:"therapist_id"`
	Phase         Phase                       `json:"phase"`
	RiskHistory   []risk.Assessment           `json:"risk_history"`
	Interventions []intervention.Intervention `json:"interventions"`
	Metrics       EngagementMetrics           `json:"metrics"`
	Factors       map[string]string           `json:"factors,omitempty"`
	StartedAt     time.Time                   `json:"started_at"`
	LastInputAt   time.Time                   `json:"last_input_at"`
}

// PeakRiskLevel returns the highest level in the session's risk history.
func (s *Session) PeakRiskLevel() risk.Level {
	peak := risk.LevelMinimal
	for _, a := range s.RiskHistory {
		if a.Level > peak {
			peak = a.Level
		}
	}
	return peak
}

// Summary is the terminal record produced when a session ends.
type Summary struct {
	SessionID         string            `json:"session_id"`
	PeakRiskLevel     risk.Level        `json:"peak_risk_level"`
	AssessmentCount   int               `json:"assessment_count"`
	InterventionCount int               `json:"intervention_count"`
	FinalPhase        Phase             `json:"final_phase"`
	Metrics           EngagementMetrics `json:"metrics"`
	EndedAt           time.Time         `json:"ended_at"`
}
