package risk

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mindwell-health/sentinel/pkg/signal"
)

// Trigger sets, matched case-insensitively against emotion and risk-factor
// labels. Shared with the escalation engine so both components classify the
// same input identically.
var (
	emergencyTriggers = map[string]bool{
		"active-suicide-plan": true,
		"suicide-plan":        true,
		"immediate-danger":    true,
		"active-self-harm":    true,
		"overdose":            true,
	}
	severeTriggers = map[string]bool{
		"suicidal-ideation": true,
		"self-harm":         true,
		"harm-to-others":    true,
		"suicidal":          true,
	}
	moderateTriggers = map[string]bool{
		"hopelessness":    true,
		"severe-distress": true,
		"despair":         true,
		"panic":           true,
	}
)

// TriggerLevel returns the level forced by a label, if any. The boolean is
// false when the label matches no trigger set.
func TriggerLevel(label string) (Level, bool) {
	l := normalizeLabel(label)
	switch {
	case emergencyTriggers[l]:
		return LevelEmergency, true
	case severeTriggers[l]:
		return LevelSevere, true
	case moderateTriggers[l]:
		return LevelModerate, true
	default:
		return LevelMinimal, false
	}
}

func normalizeLabel(label string) string {
	return strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), "_", "-"), " ", "-")
}

// Clock provides the assessor's time source; injectable for tests.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Options tunes the assessor. Zero values fall back to defaults.
type Options struct {
	// ElevationWindow bounds how far back a prior high-risk assessment may
	// still elevate the reported level. Default 10 minutes.
	ElevationWindow time.Duration
	// ElevationDepth bounds how many recent history entries are inspected.
	// Default 10.
	ElevationDepth int
	// DegradedConfidence is the confidence reported when the classifier
	// fails. Default 0.1.
	DegradedConfidence float64
}

func (o Options) withDefaults() Options {
	if o.ElevationWindow <= 0 {
		o.ElevationWindow = 10 * time.Minute
	}
	if o.ElevationDepth <= 0 {
		o.ElevationDepth = 10
	}
	if o.DegradedConfidence <= 0 {
		o.DegradedConfidence = 0.1
	}
	return o
}

// Assessor turns classifier results plus session history into assessments.
type Assessor struct {
	opts   Options
	clock  Clock
	logger *slog.Logger
}

// NewAssessor creates an Assessor. If clock is nil, wall-clock time is used.
func NewAssessor(opts Options, logger *slog.Logger, clock Clock) *Assessor {
	if clock == nil {
		clock = wallClock{}
	}
	return &Assessor{opts: opts.withDefaults(), clock: clock, logger: logger}
}

// Assess converts a classifier result and the session's prior assessments
// into an immutable Assessment.
//
// Rule order: emergency triggers, severe triggers, moderate triggers, then
// the numeric score thresholds. A recent high-risk episode in history raises
// the reported level one step without altering the underlying score.
func (a *Assessor) Assess(res *signal.Result, history []Assessment) Assessment {
	if res == nil {
		return a.Degraded("nil classifier result")
	}

	now := a.clock.Now()
	score := detectionScore(res)
	level := LevelFromScore(score)
	confidence := scoreConfidence(res)

	// Trigger labels override the numeric score. The highest triggered
	// level wins; its confidence comes from the signal itself.
	for _, f := range res.RiskFactors {
		if tl, ok := TriggerLevel(f.Type); ok && tl > level {
			level = tl
			if f.Confidence > 0 {
				confidence = f.Confidence
			}
		}
	}
	for _, e := range res.Emotions {
		if tl, ok := TriggerLevel(e.Type); ok && tl > level {
			level = tl
			if e.Confidence > 0 {
				confidence = e.Confidence
			}
		}
	}

	assessment := Assessment{
		Level:            level,
		Score:            score,
		Confidence:       confidence,
		PrimaryFactors:   primaryFactors(res),
		Recommendations:  recommendations(level),
		TimeToEscalation: timeToEscalation(level),
		Timestamp:        now,
	}

	if a.recentHighRisk(history, now) {
		assessment.SecondaryFactors = append(assessment.SecondaryFactors, Factor{
			Label:  "recent-high-risk-episodes",
			Weight: 1.0,
		})
		assessment.Level = assessment.Level.Elevated()
	}

	return assessment
}

// Degraded returns the fail-safe assessment used when the classifier is
// unavailable or returned malformed data. Lowest level, low confidence, no
// factors. The degraded event is logged at error level; it is never silent.
func (a *Assessor) Degraded(reason string) Assessment {
	if a.logger != nil {
		a.logger.Error("risk assessment degraded, failing safe to minimal",
			slog.String("reason", reason),
		)
	}
	return Assessment{
		Level:            LevelMinimal,
		Confidence:       a.opts.DegradedConfidence,
		Recommendations:  recommendations(LevelMinimal),
		TimeToEscalation: timeToEscalation(LevelMinimal),
		Degraded:         true,
		Timestamp:        a.clock.Now(),
	}
}

// recentHighRisk reports whether history holds a severe-or-worse assessment
// within the elevation window, inspecting at most ElevationDepth entries from
// the tail.
func (a *Assessor) recentHighRisk(history []Assessment, now time.Time) bool {
	cutoff := now.Add(-a.opts.ElevationWindow)
	start := len(history) - a.opts.ElevationDepth
	if start < 0 {
		start = 0
	}
	for _, h := range history[start:] {
		if h.HighRisk() && h.Timestamp.After(cutoff) {
			return true
		}
	}
	return false
}

// detectionScore collapses the classifier result to a single [0,1] score:
// the strongest risk-factor severity, or the strongest negative-emotion
// intensity when no factors were flagged.
func detectionScore(res *signal.Result) float64 {
	var score float64
	for _, f := range res.RiskFactors {
		if f.Severity > score {
			score = f.Severity
		}
	}
	if score == 0 {
		for _, e := range res.Emotions {
			if e.Intensity > score {
				score = e.Intensity
			}
		}
		// Dampen pure-emotion scores; emotions alone are weaker evidence
		// than flagged risk factors.
		score *= 0.6
	}
	if score > 1 {
		score = 1
	}
	return score
}

func scoreConfidence(res *signal.Result) float64 {
	var sum float64
	var n int
	for _, f := range res.RiskFactors {
		sum += f.Confidence
		n++
	}
	for _, e := range res.Emotions {
		sum += e.Confidence
		n++
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

func primaryFactors(res *signal.Result) []Factor {
	factors := make([]Factor, 0, len(res.RiskFactors)+len(res.Emotions))
	for _, f := range res.RiskFactors {
		factors = append(factors, Factor{Label: normalizeLabel(f.Type), Weight: f.Severity})
	}
	for _, e := range res.Emotions {
		factors = append(factors, Factor{Label: normalizeLabel(e.Type), Weight: e.Intensity * 0.6})
	}
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].Weight > factors[j].Weight })
	if len(factors) > 5 {
		factors = factors[:5]
	}
	return factors
}

func recommendations(level Level) []string {
	switch level {
	case LevelEmergency:
		return []string{"immediate-crisis-response", "notify-on-call-clinician"}
	case LevelSevere:
		return []string{"clinician-review", "safety-check"}
	case LevelModerate:
		return []string{"preventive"}
	default:
		return nil
	}
}

// timeToEscalation estimates how long an unaddressed case at this level has
// before auto-escalation would be warranted.
func timeToEscalation(level Level) time.Duration {
	switch level {
	case LevelEmergency:
		return 0
	case LevelSevere:
		return 5 * time.Minute
	case LevelModerate:
		return 30 * time.Minute
	default:
		return 24 * time.Hour
	}
}
