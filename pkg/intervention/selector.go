// Package intervention maps risk levels to bounded, typed response actions
// emitted toward the user.
package intervention

import (
	"time"

	"github.com/google/uuid"

	"github.com/mindwell-health/sentinel/pkg/risk"
)

// Type classifies an intervention.
type Type string

const (
	TypeCrisisResponse Type = "crisis-response"
	TypeValidation     Type = "validation"
	TypeGuidance       Type = "guidance"
)

// Intervention is one response action recorded against a session. The
// Effectiveness pointer stays nil until a follow-up score arrives.
type Intervention struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	Content       string    `json:"content"`
	Priority      string    `json:"priority"`
	DeliveryHint  string    `json:"delivery_hint"`
	Effectiveness *float64  `json:"effectiveness,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DefaultMaxPerSession caps recorded interventions per session.
const DefaultMaxPerSession = 10

// Selector produces at most one intervention per input, subject to the
// per-session cap. Cap enforcement is on write: once a session holds the
// maximum, Select returns nil and existing history is left untouched.
type Selector struct {
	maxPerSession int
}

// NewSelector creates a Selector with the given cap; non-positive values use
// DefaultMaxPerSession.
func NewSelector(maxPerSession int) *Selector {
	if maxPerSession <= 0 {
		maxPerSession = DefaultMaxPerSession
	}
	return &Selector{maxPerSession: maxPerSession}
}

// Select returns the intervention for the given level, or nil when the level
// calls for none or the session already holds the cap. recorded is how many
// interventions the session has accumulated.
func (s *Selector) Select(level risk.Level, recorded int, now time.Time) *Intervention {
	if recorded >= s.maxPerSession {
		return nil
	}

	switch level {
	case risk.LevelEmergency:
		return &Intervention{
			ID:           uuid.New().String(),
			Type:         TypeCrisisResponse,
			Content:      "I'm very concerned about your safety right now. You don't have to face this alone; a crisis counselor is being alerted. If you are in immediate danger, call 988 or your local emergency number.",
			Priority:     "immediate",
			DeliveryHint: "inline-blocking",
			CreatedAt:    now,
		}
	case risk.LevelSevere:
		return &Intervention{
			ID:           uuid.New().String(),
			Type:         TypeValidation,
			Content:      "What you're carrying sounds incredibly heavy, and I'm taking it seriously. Your safety matters. Would you be willing to talk through what's happening right now?",
			Priority:     "high",
			DeliveryHint: "inline",
			CreatedAt:    now,
		}
	case risk.LevelModerate:
		return &Intervention{
			ID:           uuid.New().String(),
			Type:         TypeValidation,
			Content:      "It sounds like things feel overwhelming at the moment. Those feelings are real and worth attention. Let's slow down and look at what's weighing on you most.",
			Priority:     "normal",
			DeliveryHint: "inline",
			CreatedAt:    now,
		}
	default:
		return nil
	}
}
