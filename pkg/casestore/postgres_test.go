package casestore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresStore(db)
}

func TestPostgresStore_Put(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	c := testCase("c1")
	mock.ExpectExec(`INSERT INTO crisis_cases`).
		WithArgs(c.CaseID, c.PatientRef, c.PatientMask, c.SessionID, c.AlertLevel, c.LevelRank, c.Score, pq.Array(c.Risks), c.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Put(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"case_id", "patient_ref", "patient_mask", "session_id", "alert_level", "level_rank",
		"score", "risks", "created_at", "resolved", "resolved_at",
	}).AddRow(
		"c1", "enc:v1$abc", "pa***", "sess-1", "severe", 2,
		0.8, pq.Array([]string{"suicidal-ideation"}), created, false, nil,
	)

	mock.ExpectQuery(`SELECT`).WithArgs("c1").WillReturnRows(rows)

	got, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CaseID)
	assert.Equal(t, "severe", got.AlertLevel)
	assert.Equal(t, []string{"suicidal-ideation"}, got.Risks)
	assert.Nil(t, got.ResolvedAt)
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestPostgresStore_UpdateLevel(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	t.Run("raise succeeds", func(t *testing.T) {
		mock.ExpectExec(`UPDATE crisis_cases`).
			WithArgs("c1", "emergency", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, store.UpdateLevel(context.Background(), "c1", "emergency", 3))
	})

	t.Run("regression rejected", func(t *testing.T) {
		mock.ExpectExec(`UPDATE crisis_cases`).
			WithArgs("c1", "concern", 0).
			WillReturnResult(sqlmock.NewResult(0, 0))
		created := time.Now().UTC()
		rows := sqlmock.NewRows([]string{
			"case_id", "patient_ref", "patient_mask", "session_id", "alert_level", "level_rank",
			"score", "risks", "created_at", "resolved", "resolved_at",
		}).AddRow("c1", "enc:v1$abc", "pa***", "sess-1", "emergency", 3, 0.95, pq.Array([]string{}), created, false, nil)
		mock.ExpectQuery(`SELECT`).WithArgs("c1").WillReturnRows(rows)

		err := store.UpdateLevel(context.Background(), "c1", "concern", 0)
		assert.ErrorIs(t, err, ErrLevelRegression)
	})
}

func TestPostgresStore_MarkResolved(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE crisis_cases`).
		WithArgs("c1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkResolved(context.Background(), "c1", at))

	mock.ExpectExec(`UPDATE crisis_cases`).
		WithArgs("ghost", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.MarkResolved(context.Background(), "ghost", at), ErrCaseNotFound)
}
