package casestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is the durable Store backed by Postgres.
//
// Expected schema:
//
//	CREATE TABLE crisis_cases (
//	    case_id     TEXT PRIMARY KEY,
//	    patient_ref TEXT NOT NULL,
//	    patient_mask TEXT NOT NULL,
//	    session_id  TEXT NOT NULL,
//	    alert_level TEXT NOT NULL,
//	    level_rank  INT NOT NULL,
//	    score       DOUBLE PRECISION NOT NULL,
//	    risks       TEXT[] NOT NULL DEFAULT '{}',
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    resolved    BOOLEAN NOT NULL DEFAULT FALSE,
//	    resolved_at TIMESTAMPTZ
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore over an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put inserts the case. The insert is idempotent per case id; re-inserting
// an existing case is a no-op, never an overwrite.
func (s *PostgresStore) Put(ctx context.Context, c *Case) error {
	query := `
		INSERT INTO crisis_cases (case_id, patient_ref, patient_mask, session_id, alert_level, level_rank, score, risks, created_at, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
		ON CONFLICT (case_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		c.CaseID, c.PatientRef, c.PatientMask, c.SessionID, c.AlertLevel, c.LevelRank, c.Score, pq.Array(c.Risks), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert case %s: %w", c.CaseID, err)
	}
	return nil
}

// Get loads one case by id.
func (s *PostgresStore) Get(ctx context.Context, caseID string) (*Case, error) {
	query := `
		SELECT case_id, patient_ref, patient_mask, session_id, alert_level, level_rank, score, risks, created_at, resolved, resolved_at
		FROM crisis_cases
		WHERE case_id = $1
	`
	var c Case
	var resolvedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, caseID).Scan(
		&c.CaseID, &c.PatientRef, &c.PatientMask, &c.SessionID, &c.AlertLevel, &c.LevelRank, &c.Score,
		pq.Array(&c.Risks), &c.CreatedAt, &c.Resolved, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query case %s: %w", caseID, err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}

// UpdateLevel raises the case's alert level. The WHERE clause enforces
// monotonicity inside the database, so concurrent timers cannot regress a
// level no matter how they interleave.
func (s *PostgresStore) UpdateLevel(ctx context.Context, caseID, level string, rank int) error {
	query := `
		UPDATE crisis_cases
		SET alert_level = $2, level_rank = $3
		WHERE case_id = $1 AND level_rank <= $3
	`
	res, err := s.db.ExecContext(ctx, query, caseID, level, rank)
	if err != nil {
		return fmt.Errorf("failed to update level for case %s: %w", caseID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the case is unknown or the update would regress the level.
		if _, getErr := s.Get(ctx, caseID); getErr != nil {
			return getErr
		}
		return ErrLevelRegression
	}
	return nil
}

// MarkResolved flips the case to resolved; idempotent.
func (s *PostgresStore) MarkResolved(ctx context.Context, caseID string, at time.Time) error {
	query := `
		UPDATE crisis_cases
		SET resolved = TRUE, resolved_at = COALESCE(resolved_at, $2)
		WHERE case_id = $1
	`
	res, err := s.db.ExecContext(ctx, query, caseID, at)
	if err != nil {
		return fmt.Errorf("failed to resolve case %s: %w", caseID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCaseNotFound
	}
	return nil
}
