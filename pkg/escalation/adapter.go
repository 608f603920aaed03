package escalation

import (
	"context"

	"github.com/mindwell-health/sentinel/pkg/session"
)

// SessionAdapter exposes the engine to the session layer through its
// Escalator interface, translating the full protocol response into the
// slimmer outcome sessions carry.
type SessionAdapter struct {
	Engine *Engine
}

var _ session.Escalator = (*SessionAdapter)(nil)

func (a *SessionAdapter) Escalate(ctx context.Context, patientID, sessionID, textSample string, score float64, risks []string) (*session.CrisisOutcome, error) {
	resp, err := a.Engine.HandleCrisis(ctx, patientID, sessionID, textSample, score, risks)
	if err != nil {
		return nil, err
	}
	return &session.CrisisOutcome{
		CaseID:              resp.CaseID,
		AlertLevel:          resp.AlertLevel,
		Message:             resp.Message,
		StaffNotified:       resp.StaffNotified,
		SessionContinuation: resp.SessionContinuation,
	}, nil
}
