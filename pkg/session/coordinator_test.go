package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwell-health/sentinel/pkg/intervention"
	"github.com/mindwell-health/sentinel/pkg/risk"
	"github.com/mindwell-health/sentinel/pkg/signal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeClassifier returns a canned result per call, or an error.
type fakeClassifier struct {
	mu      sync.Mutex
	results []*signal.Result
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (*signal.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return calmResult(), nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r, nil
}

func calmResult() *signal.Result {
	return &signal.Result{
		Emotions:         []signal.Emotion{{Type: "neutral", Intensity: 0.2, Confidence: 0.9}},
		OverallSentiment: 0.1,
	}
}

func riskyResult(severity float64, riskType string) *signal.Result {
	return &signal.Result{
		Emotions: []signal.Emotion{{Type: "despair", Intensity: 0.9, Confidence: 0.9}},
		RiskFactors: []signal.RiskFactor{
			{Type: riskType, Severity: severity, Confidence: 0.9},
		},
		RequiresAttention: true,
	}
}

type fakeEscalator struct {
	mu       sync.Mutex
	calls    int
	lastRisk []string
	outcome  *CrisisOutcome
	err      error
}

func (f *fakeEscalator) Escalate(_ context.Context, patientID, sessionID, textSample string, score float64, risks []string) (*CrisisOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastRisk = append([]string{}, risks...)
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &CrisisOutcome{
		CaseID:              "case-1",
		AlertLevel:          "severe",
		Message:             "a clinician has been alerted",
		StaffNotified:       2,
		SessionContinuation: false,
	}, nil
}

func newTestCoordinator(cls signal.Client, esc Escalator, clock Clock) *Coordinator {
	logger := slog.New(slog.DiscardHandler)
	assessor := risk.NewAssessor(risk.Options{}, logger, clock)
	selector := intervention.NewSelector(0)
	return NewCoordinator(cls, assessor, selector, esc, Options{}, logger, clock)
}

func TestInitializeAndStatus(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	c := newTestCoordinator(&fakeClassifier{}, nil, clock)

	s := c.Initialize("sess-1", "patient-001", "therapist-9", map[string]string{"intake": "routine"})
	assert.Equal(t, PhaseOpening, s.Phase)
	assert.Equal(t, "patient-001", s.ClientID)

	got, err := c.Status("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)

	_, err = c.Status("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProcessInputLowRisk(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	esc := &fakeEscalator{}
	c := newTestCoordinator(&fakeClassifier{}, esc, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)

	res, err := c.ProcessInput(context.Background(), "sess-1", "the week went okay")
	require.NoError(t, err)
	assert.Equal(t, risk.LevelMinimal, res.Assessment.Level)
	assert.Nil(t, res.Crisis)
	assert.Empty(t, res.Interventions, "minimal level selects no intervention")
	assert.Equal(t, 0, esc.calls)
	assert.Equal(t, PhaseOpening, res.UpdatedPhase)
}

func TestProcessInputHighRiskEscalates(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	esc := &fakeEscalator{}
	cls := &fakeClassifier{results: []*signal.Result{riskyResult(0.8, "self_harm")}}
	c := newTestCoordinator(cls, esc, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)

	res, err := c.ProcessInput(context.Background(), "sess-1", "I keep thinking about hurting")
	require.NoError(t, err)

	assert.True(t, res.Assessment.HighRisk())
	assert.Equal(t, PhaseCrisis, res.UpdatedPhase)
	require.NotNil(t, res.Crisis)
	assert.Equal(t, "case-1", res.Crisis.CaseID)
	assert.Equal(t, 1, esc.calls)
	assert.Contains(t, esc.lastRisk, "self-harm", "factor labels are normalized before escalation")
	require.Len(t, res.Interventions, 1)
}

func TestProcessInputCrisisPhraseForcesCrisisPhase(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	c := newTestCoordinator(&fakeClassifier{}, nil, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)

	res, err := c.ProcessInput(context.Background(), "sess-1", "sometimes I want to die")
	require.NoError(t, err)
	assert.Equal(t, PhaseCrisis, res.UpdatedPhase)

	// Calm input does not leave crisis; only explicit resolution does.
	res, err = c.ProcessInput(context.Background(), "sess-1", "anyway, work is fine")
	require.NoError(t, err)
	assert.Equal(t, PhaseCrisis, res.UpdatedPhase)

	require.NoError(t, c.ResolveCrisis("sess-1"))
	res, err = c.ProcessInput(context.Background(), "sess-1", "feeling a bit better")
	require.NoError(t, err)
	assert.Equal(t, PhaseWorking, res.UpdatedPhase)
}

func TestProcessInputClassifierFailureDegrades(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	esc := &fakeEscalator{}
	cls := &fakeClassifier{err: errors.New("classifier unavailable")}
	c := newTestCoordinator(cls, esc, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)

	res, err := c.ProcessInput(context.Background(), "sess-1", "hello")
	require.NoError(t, err, "classifier failure must not surface as an error")

	assert.Equal(t, risk.LevelMinimal, res.Assessment.Level)
	assert.InDelta(t, 0.1, res.Assessment.Confidence, 1e-9)
	assert.True(t, res.Assessment.Degraded)
	assert.Empty(t, res.Assessment.PrimaryFactors)
	assert.Nil(t, res.Crisis)
	assert.Equal(t, 0, esc.calls)
}

func TestProcessInputEscalatorRejectionLoggedNotPropagated(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	esc := &fakeEscalator{err: errors.New("invalid patient_id")}
	cls := &fakeClassifier{results: []*signal.Result{riskyResult(0.95, "suicidal_ideation")}}
	c := newTestCoordinator(cls, esc, clock)
	c.Initialize("sess-1", "bad id", "t1", nil)

	res, err := c.ProcessInput(context.Background(), "sess-1", "input")
	require.NoError(t, err)
	assert.Nil(t, res.Crisis)
	assert.Equal(t, PhaseCrisis, res.UpdatedPhase, "phase still reflects the risk")
}

func TestPhaseAdvancesWithDuration(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	c := newTestCoordinator(&fakeClassifier{}, nil, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)

	res, err := c.ProcessInput(context.Background(), "sess-1", "hi")
	require.NoError(t, err)
	assert.Equal(t, PhaseOpening, res.UpdatedPhase)

	clock.advance(15 * time.Minute)
	res, err = c.ProcessInput(context.Background(), "sess-1", "more")
	require.NoError(t, err)
	assert.Equal(t, PhaseWorking, res.UpdatedPhase)

	clock.advance(3 * time.Hour)
	res, err = c.ProcessInput(context.Background(), "sess-1", "late")
	require.NoError(t, err)
	assert.Equal(t, PhaseClosing, res.UpdatedPhase)
}

func TestRecordEffectiveness(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	cls := &fakeClassifier{results: []*signal.Result{riskyResult(0.6, "hopelessness")}}
	c := newTestCoordinator(cls, nil, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)

	res, err := c.ProcessInput(context.Background(), "sess-1", "everything feels pointless")
	require.NoError(t, err)
	require.Len(t, res.Interventions, 1)

	id := res.Interventions[0].ID
	require.NoError(t, c.RecordEffectiveness("sess-1", id, 0.8))

	s, err := c.Status("sess-1")
	require.NoError(t, err)
	require.Len(t, s.Interventions, 1)
	require.NotNil(t, s.Interventions[0].Effectiveness)
	assert.InDelta(t, 0.8, *s.Interventions[0].Effectiveness, 1e-9)

	assert.ErrorIs(t, c.RecordEffectiveness("sess-1", "missing", 0.5), ErrInterventionNotFound)
	assert.ErrorIs(t, c.RecordEffectiveness("nope", id, 0.5), ErrSessionNotFound)
}

func TestEndSessionSummaryAndEviction(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	cls := &fakeClassifier{results: []*signal.Result{
		calmResult(),
		riskyResult(0.8, "self_harm"),
	}}
	c := newTestCoordinator(cls, &fakeEscalator{}, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)

	_, err := c.ProcessInput(context.Background(), "sess-1", "okay day")
	require.NoError(t, err)
	clock.advance(5 * time.Minute)
	_, err = c.ProcessInput(context.Background(), "sess-1", "it got worse")
	require.NoError(t, err)

	sum, err := c.EndSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, risk.LevelSevere, sum.PeakRiskLevel)
	assert.Equal(t, 2, sum.AssessmentCount)
	assert.Equal(t, PhaseCrisis, sum.FinalPhase)
	assert.Equal(t, 5*time.Minute, sum.Metrics.SessionDuration)

	_, err = c.Status("sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = c.EndSession("sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInterventionCapPerSession(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	cls := &fakeClassifier{results: []*signal.Result{riskyResult(0.6, "hopelessness")}}
	c := newTestCoordinator(cls, nil, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)

	total := 0
	for i := 0; i < 15; i++ {
		res, err := c.ProcessInput(context.Background(), "sess-1", "still feels pointless")
		require.NoError(t, err)
		total += len(res.Interventions)
	}
	assert.Equal(t, intervention.DefaultMaxPerSession, total)
}

func TestConcurrentInputsSerializePerSession(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	c := newTestCoordinator(&fakeClassifier{}, nil, clock)
	c.Initialize("sess-1", "patient-001", "t1", nil)
	c.Initialize("sess-2", "patient-002", "t1", nil)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := c.ProcessInput(context.Background(), "sess-1", fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := c.ProcessInput(context.Background(), "sess-2", fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, id := range []string{"sess-1", "sess-2"} {
		s, err := c.Status(id)
		require.NoError(t, err)
		assert.Len(t, s.RiskHistory, n, "every input must land exactly once")
		assert.Equal(t, n, s.Metrics.MessageCount)
	}
}
