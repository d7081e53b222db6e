package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-index/internal/db"
	"github.com/sells-group/edgar-index/internal/model"
)

const (
	pgUpsertCompany = `INSERT INTO companies (cik, company_name) VALUES ($1, $2)
		ON CONFLICT (cik) DO UPDATE SET company_name = EXCLUDED.company_name`

	pgInsertFiling = `INSERT INTO filings (cik, form_type, date_filed, filename, url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cik, form_type, date_filed, filename) DO NOTHING`

	pgCounts = `SELECT (SELECT count(*) FROM companies), (SELECT count(*) FROM filings)`
)

// PostgresLoader implements Loader on a pgx pool.
type PostgresLoader struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgresLoader wraps an existing pool. The caller owns the pool.
func NewPostgresLoader(pool db.Pool) *PostgresLoader {
	return &PostgresLoader{pool: pool}
}

// OpenPostgres connects to dsn and returns a loader that closes the pool on Close.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresLoader, error) {
	pool, err := db.Connect(ctx, dsn, maxConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresLoader{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying pool so other subsystems (the ledger) can
// share the connection.
func (l *PostgresLoader) Pool() db.Pool {
	return l.pool
}

func (l *PostgresLoader) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, l.pool)
}

func (l *PostgresLoader) Close() error {
	if l.closeFn != nil {
		l.closeFn()
	}
	return nil
}

func (l *PostgresLoader) UpsertCompany(ctx context.Context, c model.Company) error {
	if _, err := l.pool.Exec(ctx, pgUpsertCompany, c.CIK, c.Name); err != nil {
		return pgError("upsert company", c.CIK, "", err)
	}
	return nil
}

func (l *PostgresLoader) InsertFiling(ctx context.Context, f model.Filing) (InsertResult, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, pgError("begin filing tx", f.CIK, f.Filename, err)
	}

	tag, err := tx.Exec(ctx, pgInsertFiling, f.CIK, f.FormType, f.DateFiled, f.Filename, f.URL)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			zap.L().Warn("postgres: rollback filing insert", zap.String("filename", f.Filename), zap.Error(rbErr))
		}
		return 0, pgError("insert filing", f.CIK, f.Filename, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, pgError("commit filing", f.CIK, f.Filename, err)
	}

	if tag.RowsAffected() == 0 {
		zap.L().Info("duplicate filing skipped", zap.String("cik", f.CIK), zap.String("filing", f.Key()))
		return DuplicateSkipped, nil
	}
	return Inserted, nil
}

func (l *PostgresLoader) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := l.pool.QueryRow(ctx, pgCounts).Scan(&c.Companies, &c.Filings); err != nil {
		return Counts{}, pgError("count rows", "", "", err)
	}
	return c, nil
}

func pgError(op, cik, filename string, err error) *Error {
	return &Error{
		Op:             op,
		CIK:            cik,
		Filename:       filename,
		Fatal:          db.IsConnectionLoss(err),
		MissingCompany: db.IsForeignKeyViolation(err),
		Err:            err,
	}
}
