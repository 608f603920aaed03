package risk

import "time"

// Factor is one contributing factor in an assessment, ranked by weight.
type Factor struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Assessment is an immutable record of one risk evaluation. Created once per
// input event and appended to the session's risk history; never mutated.
type Assessment struct {
	Level            Level         `json:"level"`
	Score            float64       `json:"score"`
	Confidence       float64       `json:"confidence"`
	PrimaryFactors   []Factor      `json:"primary_factors,omitempty"`
	SecondaryFactors []Factor      `json:"secondary_factors,omitempty"`
	Recommendations  []string      `json:"recommendations,omitempty"`
	TimeToEscalation time.Duration `json:"time_to_escalation"`
	Degraded         bool          `json:"degraded,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
}

// HighRisk reports whether the assessment is at or above the severe line.
func (a Assessment) HighRisk() bool {
	return a.Level >= LevelSevere
}
