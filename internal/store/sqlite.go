package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/edgar-index/internal/model"
	"github.com/sells-group/edgar-index/internal/resilience"
)

// SQLiteLoader implements Loader using modernc.org/sqlite.
type SQLiteLoader struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path with WAL mode and
// foreign keys enforced.
func NewSQLite(dsn string) (*SQLiteLoader, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLoader{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	cik          TEXT PRIMARY KEY,
	company_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS filings (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	cik        TEXT NOT NULL REFERENCES companies(cik),
	form_type  TEXT NOT NULL,
	date_filed TEXT NOT NULL,
	filename   TEXT NOT NULL,
	url        TEXT NOT NULL,
	UNIQUE (cik, form_type, date_filed, filename)
);

CREATE INDEX IF NOT EXISTS idx_filings_date_filed ON filings(date_filed);
CREATE INDEX IF NOT EXISTS idx_filings_form_type ON filings(form_type);
`

func (l *SQLiteLoader) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (l *SQLiteLoader) Close() error {
	return l.db.Close()
}

func (l *SQLiteLoader) UpsertCompany(ctx context.Context, c model.Company) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO companies (cik, company_name) VALUES (?, ?)
		 ON CONFLICT (cik) DO UPDATE SET company_name = excluded.company_name`,
		c.CIK, c.Name,
	)
	if err != nil {
		return sqliteError("upsert company", c.CIK, "", err)
	}
	return nil
}

func (l *SQLiteLoader) InsertFiling(ctx context.Context, f model.Filing) (InsertResult, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, sqliteError("begin filing tx", f.CIK, f.Filename, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO filings (cik, form_type, date_filed, filename, url) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (cik, form_type, date_filed, filename) DO NOTHING`,
		f.CIK, f.FormType, f.DateFiled.Format(model.DateLayout), f.Filename, f.URL,
	)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.L().Warn("sqlite: rollback filing insert", zap.String("filename", f.Filename), zap.Error(rbErr))
		}
		return 0, sqliteError("insert filing", f.CIK, f.Filename, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, sqliteError("rows affected", f.CIK, f.Filename, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, sqliteError("commit filing", f.CIK, f.Filename, err)
	}

	if n == 0 {
		zap.L().Info("duplicate filing skipped", zap.String("cik", f.CIK), zap.String("filing", f.Key()))
		return DuplicateSkipped, nil
	}
	return Inserted, nil
}

func (l *SQLiteLoader) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := l.db.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM companies), (SELECT count(*) FROM filings)`,
	).Scan(&c.Companies, &c.Filings)
	if err != nil {
		return Counts{}, sqliteError("count rows", "", "", err)
	}
	return c, nil
}

func sqliteError(op, cik, filename string, err error) *Error {
	return &Error{
		Op:             op,
		CIK:            cik,
		Filename:       filename,
		Fatal:          resilience.IsConnectionLoss(err),
		MissingCompany: strings.Contains(err.Error(), "FOREIGN KEY constraint failed"),
		Err:            err,
	}
}
