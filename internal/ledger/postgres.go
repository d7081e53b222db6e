package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-index/internal/db"
	"github.com/sells-group/edgar-index/internal/model"
)

// markerName is the ingest_markers row holding the incremental last date.
const markerName = "last_date"

// PostgresBackend stores the ledger in the ingest_processed_files and
// ingest_markers tables created by the store migrations.
type PostgresBackend struct {
	pool db.Pool
}

// NewPostgresBackend returns a backend on pool. The caller owns the pool.
func NewPostgresBackend(pool db.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (p *PostgresBackend) Contains(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingest_processed_files WHERE filename = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "ledger: query processed file")
	}
	return exists, nil
}

func (p *PostgresBackend) Append(ctx context.Context, name string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO ingest_processed_files (filename, processed_at) VALUES ($1, now())
		ON CONFLICT (filename) DO NOTHING`, name,
	)
	if err != nil {
		return eris.Wrap(err, "ledger: insert processed file")
	}
	return nil
}

func (p *PostgresBackend) Marker(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM ingest_markers WHERE name = $1`, markerName,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "ledger: query marker")
	}
	return model.Day(t), true, nil
}

func (p *PostgresBackend) SetMarker(ctx context.Context, t time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO ingest_markers (name, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		markerName, model.Day(t),
	)
	if err != nil {
		return eris.Wrap(err, "ledger: upsert marker")
	}
	return nil
}

func (p *PostgresBackend) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM ingest_processed_files`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "ledger: count processed files")
	}
	return n, nil
}
