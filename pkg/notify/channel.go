// Package notify delivers structured crisis alerts to the channels
// configured per alert level. Channel deliveries are independent and
// idempotent per case+channel; payloads carry masked identifiers only.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is the single structured alert built per dispatch. The patient
// identifier is always the masked form; the raw id never enters this
// package.
type Message struct {
	AlertLevel      string    `json:"alert_level"`
	Severity        string    `json:"severity"` // marker like [!], [!!], [!!!], [SOS]
	CaseID          string    `json:"case_id"`
	SessionID       string    `json:"session_id"`
	MaskedPatientID string    `json:"masked_patient_id"`
	DetectedRisks   []string  `json:"detected_risks,omitempty"`
	Excerpt         string    `json:"excerpt"`
	Timestamp       time.Time `json:"timestamp"`
}

// excerptLimit bounds the raw-text sample embedded in alerts.
const excerptLimit = 160

// severityMarker is the emoji-equivalent header marker per alert level.
func severityMarker(level string) string {
	switch level {
	case "emergency":
		return "[SOS]"
	case "severe":
		return "[!!!]"
	case "moderate":
		return "[!!]"
	default:
		return "[!]"
	}
}

// NewMessage builds the alert message for one case at one level.
func NewMessage(level, caseID, maskedPatientID, sessionID, textSample string, risks []string, at time.Time) Message {
	excerpt := textSample
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit] + "..."
	}
	return Message{
		AlertLevel:      level,
		Severity:        severityMarker(level),
		CaseID:          caseID,
		SessionID:       sessionID,
		MaskedPatientID: maskedPatientID,
		DetectedRisks:   risks,
		Excerpt:         excerpt,
		Timestamp:       at.UTC(),
	}
}

// Render produces the human-facing text body: a header with the severity
// marker, key/value fields, and the truncated excerpt.
func (m Message) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s CRISIS ALERT: %s\n", m.Severity, strings.ToUpper(m.AlertLevel))
	fmt.Fprintf(&b, "Case: %s\n", m.CaseID)
	fmt.Fprintf(&b, "Session: %s\n", m.SessionID)
	fmt.Fprintf(&b, "Patient: %s\n", m.MaskedPatientID)
	if len(m.DetectedRisks) > 0 {
		fmt.Fprintf(&b, "Risks: %s\n", strings.Join(m.DetectedRisks, ", "))
	}
	fmt.Fprintf(&b, "Sample: %q\n", m.Excerpt)
	fmt.Fprintf(&b, "Time: %s", m.Timestamp.Format(time.RFC3339))
	return b.String()
}

// Channel is one delivery capability (webhook, email gateway, SMS gateway).
type Channel interface {
	// Name identifies the channel for dedup keys and records.
	Name() string
	// Send delivers the message. Implementations must respect ctx.
	Send(ctx context.Context, m Message) error
}

// Record is one delivery attempt against one channel. Never mutated after
// creation; used to compute notified-staff counts.
type Record struct {
	Channel     string    `json:"channel"`
	AttemptedAt time.Time `json:"attempted_at"`
	Success     bool      `json:"success"`
	Skipped     bool      `json:"skipped,omitempty"` // duplicate suppressed by dedup
	Detail      string    `json:"detail,omitempty"`
}
