package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mindwell-health/sentinel/pkg/intervention"
	"github.com/mindwell-health/sentinel/pkg/observability"
	"github.com/mindwell-health/sentinel/pkg/risk"
	"github.com/mindwell-health/sentinel/pkg/signal"
)

var (
	// ErrSessionNotFound is returned for operations against an unknown or
	// already-ended session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInterventionNotFound is returned when an effectiveness update names
	// an intervention the session never recorded.
	ErrInterventionNotFound = errors.New("intervention not found")
)

// CrisisOutcome is what the escalation protocol reports back to the session
// layer after a threshold breach.
type CrisisOutcome struct {
	CaseID              string `json:"case_id"`
	AlertLevel          string `json:"alert_level"`
	Message             string `json:"message"`
	StaffNotified       int    `json:"staff_notified"`
	SessionContinuation bool   `json:"session_continuation"`
}

// Escalator is the crisis protocol as seen from the session layer. The
// implementation never returns an error for expected conditions; its own
// emergency fallback guarantees a usable outcome.
type Escalator interface {
	Escalate(ctx context.Context, patientID, sessionID, textSample string, score float64, risks []string) (*CrisisOutcome, error)
}

// Clock provides the coordinator's time source; injectable for tests.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Phrasing that forces the crisis phase regardless of classifier output.
var crisisPhrases = []string{
	"kill myself",
	"end my life",
	"hurt myself",
	"no point in living",
	"want to die",
	"suicide",
}

func containsCrisisPhrase(input string) bool {
	lower := strings.ToLower(input)
	for _, p := range crisisPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Options tunes the coordinator.
type Options struct {
	// MaxDuration forces a session into closing once exceeded. Default 120m.
	MaxDuration time.Duration
	// OpeningWindow keeps a quiet session in the opening phase. Default 10m.
	OpeningWindow time.Duration
	// MaxInterventions caps recorded interventions per session. Default 10.
	MaxInterventions int
	// Metrics receives degraded-assessment counts. May be nil.
	Metrics *observability.Provider
}

func (o Options) withDefaults() Options {
	if o.MaxDuration <= 0 {
		o.MaxDuration = 120 * time.Minute
	}
	if o.OpeningWindow <= 0 {
		o.OpeningWindow = 10 * time.Minute
	}
	if o.MaxInterventions <= 0 {
		o.MaxInterventions = intervention.DefaultMaxPerSession
	}
	return o
}

// entry pairs a session with its serialization lock. The lock is the
// single-writer guarantee: concurrent ProcessInput calls against one session
// queue on it, so risk-history order is the lock-acquisition order.
type entry struct {
	mu sync.Mutex
	s  *Session
}

// Coordinator owns all live sessions. Operations against different sessions
// run fully in parallel; operations against one session are serialized.
type Coordinator struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	classifier signal.Client
	assessor   *risk.Assessor
	selector   *intervention.Selector
	escalator  Escalator
	opts       Options
	clock      Clock
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator. escalator may be nil, in which case
// threshold breaches update the phase but open no case (used in tests).
// If clock is nil, wall-clock time is used.
func NewCoordinator(classifier signal.Client, assessor *risk.Assessor, selector *intervention.Selector, escalator Escalator, opts Options, logger *slog.Logger, clock Clock) *Coordinator {
	if clock == nil {
		clock = wallClock{}
	}
	return &Coordinator{
		sessions:   make(map[string]*entry),
		classifier: classifier,
		assessor:   assessor,
		selector:   selector,
		escalator:  escalator,
		opts:       opts.withDefaults(),
		clock:      clock,
		logger:     logger,
	}
}

// Initialize registers a new session and returns a snapshot of it.
func (c *Coordinator) Initialize(sessionID, clientID, therapistID string, factors map[string]string) *Session {
	now := c.clock.Now()
	s := &Session{
		ID:          sessionID,
		ClientID:    clientID,
		TherapistID: therapistID,
		Phase:       PhaseOpening,
		Factors:     factors,
		StartedAt:   now,
		LastInputAt: now,
	}

	c.mu.Lock()
	c.sessions[sessionID] = &entry{s: s}
	c.mu.Unlock()

	c.logger.Info("session initialized",
		slog.String("session_id", sessionID),
	)
	return snapshot(s)
}

// ProcessResult is the outcome of one input event.
type ProcessResult struct {
	Assessment    risk.Assessment              `json:"assessment"`
	Interventions []intervention.Intervention  `json:"interventions"`
	UpdatedPhase  Phase                        `json:"updated_phase"`
	Crisis        *CrisisOutcome               `json:"crisis,omitempty"`
}

// ProcessInput classifies one input fragment, appends the resulting
// assessment, advances the phase machine, escalates on threshold breach, and
// records at most one intervention. Classifier failure degrades to the
// minimal-level assessment; it never surfaces as an error.
func (c *Coordinator) ProcessInput(ctx context.Context, sessionID, input string) (*ProcessResult, error) {
	e, err := c.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res, clsErr := c.classifier.Classify(ctx, input)

	var assessment risk.Assessment
	if clsErr != nil {
		assessment = c.assessor.Degraded(clsErr.Error())
		c.opts.Metrics.DegradedAssessment(ctx)
	} else {
		assessment = c.assessor.Assess(res, e.s.RiskHistory)
	}

	now := c.clock.Now()
	e.s.RiskHistory = append(e.s.RiskHistory, assessment)
	e.s.LastInputAt = now
	e.s.Metrics.MessageCount++
	e.s.Metrics.TotalChars += len(input)
	e.s.Metrics.MeanMessageLen = float64(e.s.Metrics.TotalChars) / float64(e.s.Metrics.MessageCount)
	e.s.Metrics.SessionDuration = now.Sub(e.s.StartedAt)

	c.advancePhase(e.s, assessment, input, now)

	result := &ProcessResult{
		Assessment:   assessment,
		UpdatedPhase: e.s.Phase,
	}

	if assessment.HighRisk() && c.escalator != nil {
		result.Crisis = c.escalate(ctx, e.s, input, assessment)
	}

	if iv := c.selector.Select(assessment.Level, len(e.s.Interventions), now); iv != nil {
		e.s.Interventions = append(e.s.Interventions, *iv)
		result.Interventions = append(result.Interventions, *iv)
	}

	return result, nil
}

// escalate hands a threshold breach to the crisis protocol. The protocol's
// own fallback makes this effectively infallible; a returned error means the
// request was rejected before any side effect and is logged, not propagated.
func (c *Coordinator) escalate(ctx context.Context, s *Session, input string, a risk.Assessment) *CrisisOutcome {
	risks := make([]string, 0, len(a.PrimaryFactors))
	for _, f := range a.PrimaryFactors {
		risks = append(risks, f.Label)
	}

	outcome, err := c.escalator.Escalate(ctx, s.ClientID, s.ID, input, a.Score, risks)
	if err != nil {
		c.logger.Error("escalation rejected",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return outcome
}

// advancePhase applies the two phase-driving signals: crisis language and
// elapsed duration. Crisis dominates; transitions are otherwise
// one-directional.
func (c *Coordinator) advancePhase(s *Session, a risk.Assessment, input string, now time.Time) {
	if a.HighRisk() || containsCrisisPhrase(input) {
		s.Phase = PhaseCrisis
		return
	}
	if s.Phase == PhaseCrisis {
		return // only ResolveCrisis reverts out of crisis
	}

	elapsed := now.Sub(s.StartedAt)
	switch {
	case elapsed > c.opts.MaxDuration:
		s.Phase = PhaseClosing
	case elapsed <= c.opts.OpeningWindow && s.Phase == PhaseOpening:
		// stay in opening
	case s.Phase != PhaseClosing:
		s.Phase = PhaseWorking
	}
}

// ResolveCrisis is the explicit resolution signal reverting a session from
// crisis back to working. A no-op for sessions not in crisis.
func (c *Coordinator) ResolveCrisis(sessionID string) error {
	e, err := c.entry(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Phase == PhaseCrisis {
		e.s.Phase = PhaseWorking
		c.logger.Info("session crisis resolved",
			slog.String("session_id", sessionID),
		)
	}
	return nil
}

// RecordEffectiveness attaches a follow-up effectiveness score to a recorded
// intervention.
func (c *Coordinator) RecordEffectiveness(sessionID, interventionID string, score float64) error {
	e, err := c.entry(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.s.Interventions {
		if e.s.Interventions[i].ID == interventionID {
			s := score
			e.s.Interventions[i].Effectiveness = &s
			return nil
		}
	}
	return ErrInterventionNotFound
}

// Status returns a point-in-time snapshot of the session.
func (c *Coordinator) Status(sessionID string) (*Session, error) {
	e, err := c.entry(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.s), nil
}

// EndSession produces the terminal summary and evicts the session. Open
// crisis cases outlive the session; only the in-memory conversational state
// is destroyed.
func (c *Coordinator) EndSession(sessionID string) (*Summary, error) {
	c.mu.Lock()
	e, ok := c.sessions[sessionID]
	if ok {
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := c.clock.Now()
	summary := &Summary{
		SessionID:         e.s.ID,
		PeakRiskLevel:     e.s.PeakRiskLevel(),
		AssessmentCount:   len(e.s.RiskHistory),
		InterventionCount: len(e.s.Interventions),
		FinalPhase:        e.s.Phase,
		Metrics:           e.s.Metrics,
		EndedAt:           now,
	}
	summary.Metrics.SessionDuration = now.Sub(e.s.StartedAt)

	c.logger.Info("session ended",
		slog.String("session_id", sessionID),
		slog.String("peak_risk", summary.PeakRiskLevel.String()),
		slog.Int("assessments", summary.AssessmentCount),
	)
	return summary, nil
}

func (c *Coordinator) entry(sessionID string) (*entry, error) {
	c.mu.RLock()
	e, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// snapshot deep-copies the slices so callers cannot mutate coordinator-owned
// state.
func snapshot(s *Session) *Session {
	cp := *s
	cp.RiskHistory = append([]risk.Assessment(nil), s.RiskHistory...)
	cp.Interventions = append([]intervention.Intervention(nil), s.Interventions...)
	if s.Factors != nil {
		cp.Factors = make(map[string]string, len(s.Factors))
		for k, v := range s.Factors {
			cp.Factors[k] = v
		}
	}
	return &cp
}
