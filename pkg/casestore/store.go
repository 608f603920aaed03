// Package casestore is the durable keyed store of crisis cases. Cases are
// never deleted, only marked resolved; escalation timers consult the store
// before acting, so implementations must give read-your-writes consistency
// per case id.
package casestore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCaseNotFound is returned for lookups against an unknown case id.
	ErrCaseNotFound = errors.New("case not found")
	// ErrLevelRegression is returned when an update would lower a case's
	// alert level. Alert levels are monotonically non-decreasing.
	ErrLevelRegression = errors.New("alert level may not decrease")
)

// Case is one crisis-escalation lifecycle. PatientRef holds only the one-way
// encrypted form of the patient identifier; the raw id never reaches storage.
type Case struct {
	CaseID      string     `json:"case_id"`
	PatientRef  string     `json:"patient_ref"`
	PatientMask string     `json:"patient_mask"`
	SessionID   string     `json:"session_id"`
	AlertLevel  string     `json:"alert_level"`
	LevelRank   int        `json:"level_rank"`
	Score       float64    `json:"score"`
	Risks       []string   `json:"risks,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Store is the case persistence contract. Put is idempotent per case id;
// UpdateLevel enforces monotonicity; MarkResolved is terminal and idempotent.
type Store interface {
	Put(ctx context.Context, c *Case) error
	Get(ctx context.Context, caseID string) (*Case, error)
	UpdateLevel(ctx context.Context, caseID, level string, rank int) error
	MarkResolved(ctx context.Context, caseID string, at time.Time) error
}
