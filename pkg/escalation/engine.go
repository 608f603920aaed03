// Package escalation runs the crisis escalation protocol: it opens a
// durable case for every confirmed crisis, alerts staff channels, arms
// an acknowledgment timer, and raises the alert level one step each
// time the timer expires unacknowledged. If any step of the protocol
// fails, the engine serves an emergency fallback response rather than
// an error, so the session layer always has a safe answer.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mindwell-health/sentinel/pkg/audit"
	"github.com/mindwell-health/sentinel/pkg/casestore"
	"github.com/mindwell-health/sentinel/pkg/notify"
	"github.com/mindwell-health/sentinel/pkg/observability"
)

// DefaultAckTimeout is how long a case may sit unacknowledged before
// its alert level is raised automatically.
const DefaultAckTimeout = 5 * time.Minute

// timeoutRisk is the synthetic risk label attached to timer-driven
// escalations so downstream consumers can tell them from fresh signals.
const timeoutRisk = "escalated_due_to_timeout"

// Notifier delivers a crisis alert to the staff channels configured for
// the given level. *notify.Dispatcher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, level, caseID, maskedPatientID, sessionID, textSample string, risks []string) (*notify.Result, error)
}

// Auditor records protocol actions on the tamper-evident audit trail.
// *audit.Recorder satisfies it.
type Auditor interface {
	Record(action, subject string, metadata map[string]string) error
}

// Flagger marks a session for priority human review when a crisis case
// opens against it. Flagging is best effort; a failure never blocks the
// protocol.
type Flagger interface {
	Flag(ctx context.Context, sessionID, caseID, level string) error
}

// Clock is the engine's time source; injectable for tests.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Response is the outcome of a crisis escalation, returned to the
// session layer. It is always populated, even when the protocol had to
// fall back.
type Response struct {
	CaseID              string     `json:"case_id"`
	AlertLevel          string     `json:"alert_level"`
	Actions             []string   `json:"actions"`
	StaffNotified       int        `json:"staff_notified"`
	Message             string     `json:"message"`
	ImmediateAction     bool       `json:"immediate_action"`
	SessionContinuation bool       `json:"session_continuation"`
	NextEscalationAt    *time.Time `json:"next_escalation_at,omitempty"`
}

// Deps carries the engine's collaborators. Store, Notify and Sched are
// required; the rest may be nil and are skipped.
type Deps struct {
	Store   casestore.Store
	Notify  Notifier
	Sched   Scheduler
	Auditor Auditor
	Flagger Flagger
	Crypt   *Encryptor
	Metrics *observability.Provider
	Clock   Clock
	Logger  *slog.Logger

	// AckTimeout overrides DefaultAckTimeout when positive.
	AckTimeout time.Duration
}

// Engine executes the escalation protocol.
type Engine struct {
	store   casestore.Store
	notify  Notifier
	sched   Scheduler
	auditor Auditor
	flagger Flagger
	crypt   *Encryptor
	metrics *observability.Provider
	clock   Clock
	logger  *slog.Logger
	timeout time.Duration
}

// NewEngine builds an engine from deps, filling in defaults for the
// optional fields.
func NewEngine(d Deps) *Engine {
	clock := d.Clock
	if clock == nil {
		clock = wallClock{}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := d.AckTimeout
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	return &Engine{
		store:   d.Store,
		notify:  d.Notify,
		sched:   d.Sched,
		auditor: d.Auditor,
		flagger: d.Flagger,
		crypt:   d.Crypt,
		metrics: d.Metrics,
		clock:   clock,
		logger:  logger.With("component", "escalation"),
		timeout: timeout,
	}
}

// HandleCrisis runs the full protocol for a confirmed crisis signal.
// Patient identity is validated first; a malformed id returns a
// *ValidationError and nothing else happens. After validation the case
// is persisted before any side effect, so a crash between steps never
// loses the case. Any failure past validation degrades to the
// emergency fallback response instead of an error.
func (e *Engine) HandleCrisis(ctx context.Context, patientID, sessionID, textSample string, score float64, risks []string) (*Response, error) {
	if err := validatePatientID(patientID); err != nil {
		return nil, err
	}

	resp, err := e.runProtocol(ctx, patientID, sessionID, textSample, score, risks)
	if err != nil {
		e.logger.Error("escalation protocol failed, serving fallback",
			"session_id", sessionID, "error", err)
		e.metrics.FallbackActivated(ctx)
		return e.fallback(), nil
	}
	return resp, nil
}

func (e *Engine) runProtocol(ctx context.Context, patientID, sessionID, textSample string, score float64, risks []string) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("protocol panic: %v", r)
		}
	}()

	level := alertFromSignal(score, risks)
	now := e.clock.Now()
	mask := audit.Mask(patientID)

	patientRef := patientID
	if e.crypt != nil {
		patientRef = e.crypt.Encrypt(patientID)
	}

	c := &casestore.Case{
		CaseID:      uuid.NewString(),
		PatientRef:  patientRef,
		PatientMask: mask,
		SessionID:   sessionID,
		AlertLevel:  level.String(),
		LevelRank:   int(level),
		Score:       score,
		Risks:       risks,
		CreatedAt:   now,
	}
	if err := e.store.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("persist case: %w", err)
	}
	e.metrics.CaseOpened(ctx, level.String())

	actions := []string{"case-opened"}
	e.recordAudit("crisis_case_opened", mask, map[string]string{
		"case_id":     c.CaseID,
		"session_id":  sessionID,
		"alert_level": level.String(),
		"score":       fmt.Sprintf("%.2f", score),
	})

	result, err := e.notify.Notify(ctx, level.String(), c.CaseID, mask, sessionID, textSample, risks)
	if err != nil {
		return nil, fmt.Errorf("notify staff: %w", err)
	}
	e.recordDeliveries(ctx, result)
	actions = append(actions, "staff-notified")

	if e.flagger != nil {
		if err := e.flagger.Flag(ctx, sessionID, c.CaseID, level.String()); err != nil {
			e.logger.Error("session review flag failed",
				"case_id", c.CaseID, "session_id", sessionID, "error", err)
		} else {
			actions = append(actions, "session-flagged-for-review")
		}
	}

	var nextAt *time.Time
	if !level.Terminal() {
		at := now.Add(e.timeout)
		nextAt = &at
		caseID := c.CaseID
		e.sched.Schedule(caseID, e.timeout, func() {
			e.escalateCase(caseID)
		})
		actions = append(actions, "escalation-timer-armed")
	}

	e.logger.Info("crisis case opened",
		"case_id", c.CaseID,
		"patient", mask,
		"session_id", sessionID,
		"alert_level", level.String(),
		"staff_notified", result.Notified,
	)

	return &Response{
		CaseID:              c.CaseID,
		AlertLevel:          level.String(),
		Actions:             actions,
		StaffNotified:       result.Notified,
		Message:             levelMessage(level),
		ImmediateAction:     level >= AlertSevere,
		SessionContinuation: level < AlertSevere,
		NextEscalationAt:    nextAt,
	}, nil
}

// escalateCase fires when a case's acknowledgment timer expires. A case
// resolved between arming and firing is a silent no-op. Otherwise the
// alert level is raised one step, staff are re-notified at the new
// level, and the timer is re-armed unless the new level is terminal.
func (e *Engine) escalateCase(caseID string) {
	ctx := context.Background()

	c, err := e.store.Get(ctx, caseID)
	if err != nil {
		e.logger.Error("escalation timer fired for unknown case",
			"case_id", caseID, "error", err)
		return
	}
	if c.Resolved {
		e.logger.Debug("escalation timer fired after resolution, ignoring",
			"case_id", caseID)
		return
	}

	next := AlertLevel(c.LevelRank).Next()
	if err := e.store.UpdateLevel(ctx, caseID, next.String(), int(next)); err != nil {
		e.logger.Error("escalation level update failed",
			"case_id", caseID, "error", err)
		return
	}
	e.metrics.CaseEscalated(ctx, next.String())

	e.recordAudit("crisis_case_escalated", c.PatientMask, map[string]string{
		"case_id":     caseID,
		"alert_level": next.String(),
		"reason":      timeoutRisk,
	})

	risks := append(append([]string{}, c.Risks...), timeoutRisk)
	sample := "case unacknowledged after acknowledgment window"
	result, err := e.notify.Notify(ctx, next.String(), caseID, c.PatientMask, c.SessionID, sample, risks)
	if err != nil {
		e.logger.Error("escalation re-notification failed",
			"case_id", caseID, "alert_level", next.String(), "error", err)
	} else {
		e.recordDeliveries(ctx, result)
	}

	e.logger.Warn("case escalated on timeout",
		"case_id", caseID, "alert_level", next.String())

	if !next.Terminal() {
		e.sched.Schedule(caseID, e.timeout, func() {
			e.escalateCase(caseID)
		})
	}
}

// ResolveCase acknowledges a case, cancels its pending escalation timer
// and marks it resolved in the store. Resolving an already resolved
// case is a no-op.
func (e *Engine) ResolveCase(ctx context.Context, caseID string) error {
	c, err := e.store.Get(ctx, caseID)
	if err != nil {
		return err
	}
	if err := e.store.MarkResolved(ctx, caseID, e.clock.Now()); err != nil {
		return err
	}
	e.sched.Cancel(caseID)

	e.recordAudit("crisis_case_resolved", c.PatientMask, map[string]string{
		"case_id":     caseID,
		"alert_level": c.AlertLevel,
	})
	e.logger.Info("crisis case resolved", "case_id", caseID)
	return nil
}

// fallback is the emergency response served when the protocol cannot
// complete. It assumes the worst and directs the session to stop.
func (e *Engine) fallback() *Response {
	return &Response{
		CaseID:              "",
		AlertLevel:          AlertEmergency.String(),
		Actions:             []string{"fallback-activated"},
		StaffNotified:       0,
		Message:             "Automatic escalation failed. Contact the on-call clinician directly and do not leave the patient unattended.",
		ImmediateAction:     true,
		SessionContinuation: false,
	}
}

func (e *Engine) recordDeliveries(ctx context.Context, result *notify.Result) {
	for _, rec := range result.Records {
		if rec.Success {
			e.metrics.NotificationSent(ctx, rec.Channel)
		} else {
			e.metrics.NotificationFailed(ctx, rec.Channel)
		}
	}
}

func (e *Engine) recordAudit(action, subject string, metadata map[string]string) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Record(action, subject, metadata); err != nil {
		e.logger.Error("audit record failed", "action", action, "error", err)
	}
}

func levelMessage(l AlertLevel) string {
	switch l {
	case AlertEmergency:
		return "Emergency protocol engaged. On-call staff have been alerted and will reach out immediately."
	case AlertSevere:
		return "A clinician has been alerted and will review this session shortly."
	case AlertModerate:
		return "The care team has been notified and will check in soon."
	default:
		return "The care team has been made aware of this session."
	}
}
