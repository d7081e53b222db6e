package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRunID = "5f0c6f5e-8d0a-4d55-9a57-1c2f0d3b9e11"

func TestRunLog_Start(t *testing.T) {
	_, mock := newMockPostgresLoader(t)
	rl := NewRunLog(mock)

	mock.ExpectExec(`INSERT INTO ingest_runs`).
		WithArgs(testRunID, "incremental", RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, rl.Start(context.Background(), testRunID, "incremental"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_Complete(t *testing.T) {
	_, mock := newMockPostgresLoader(t)
	rl := NewRunLog(mock)

	summary := map[string]int{"files_processed": 2}
	data, err := json.Marshal(summary)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE ingest_runs SET status`).
		WithArgs(RunComplete, data, testRunID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, rl.Complete(context.Background(), testRunID, summary))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_Fail(t *testing.T) {
	_, mock := newMockPostgresLoader(t)
	rl := NewRunLog(mock)

	mock.ExpectExec(`UPDATE ingest_runs SET status`).
		WithArgs(RunFailed, "conn closed", testRunID).
		WillReturnError(errors.New("closed pool"))

	err := rl.Fail(context.Background(), testRunID, "conn closed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runlog: fail")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_Recent(t *testing.T) {
	_, mock := newMockPostgresLoader(t)
	rl := NewRunLog(mock)

	started := time.Date(2024, 9, 20, 6, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Minute)
	msg := "ingest: load x: conn closed"

	mock.ExpectQuery(`SELECT run_id::text, kind, status`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "kind", "status", "started_at", "completed_at", "summary", "error"}).
			AddRow(testRunID, "incremental", RunComplete, started, &completed, json.RawMessage(`{"files_processed":2}`), (*string)(nil)).
			AddRow("b1", "backfill", RunFailed, started.Add(-time.Hour), &completed, json.RawMessage(nil), &msg))

	entries, err := rl.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, testRunID, entries[0].RunID)
	assert.Equal(t, RunComplete, entries[0].Status)
	assert.JSONEq(t, `{"files_processed":2}`, string(entries[0].Summary))
	assert.Empty(t, entries[0].Error)

	assert.Equal(t, "backfill", entries[1].Kind)
	assert.Equal(t, msg, entries[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}
