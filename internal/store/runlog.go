package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-index/internal/db"
)

// Run statuses recorded in ingest_runs.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// RunEntry is a row of ingest_runs.
type RunEntry struct {
	RunID       string          `json:"run_id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Summary     json.RawMessage `json:"summary,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// RunLog records ingestion runs in Postgres.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog on pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a run.
func (r *RunLog) Start(ctx context.Context, runID, kind string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ingest_runs (run_id, kind, status, started_at) VALUES ($1, $2, $3, now())`,
		runID, kind, RunRunning,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: start %s", runID)
	}
	return nil
}

// Complete marks a run finished and stores its summary as JSON.
func (r *RunLog) Complete(ctx context.Context, runID string, summary any) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "runlog: marshal summary")
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, completed_at = now(), summary = $2 WHERE run_id = $3`,
		RunComplete, data, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete %s", runID)
	}
	return nil
}

// Fail marks a run halted with errMsg.
func (r *RunLog) Fail(ctx context.Context, runID, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, completed_at = now(), error = $2 WHERE run_id = $3`,
		RunFailed, errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail %s", runID)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (r *RunLog) Recent(ctx context.Context, limit int) ([]RunEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT run_id::text, kind, status, started_at, completed_at, summary, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var errStr *string
		if err := rows.Scan(&e.RunID, &e.Kind, &e.Status, &e.StartedAt, &e.CompletedAt, &e.Summary, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
