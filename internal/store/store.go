// Package store loads parsed filings into a relational database. Every write
// is idempotent: companies are upserted and filings are insert-or-skip on
// (cik, form_type, date_filed, filename).
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/sells-group/edgar-index/internal/model"
)

// InsertResult is the data outcome of InsertFiling when no error occurred.
type InsertResult int

const (
	Inserted InsertResult = iota + 1
	DuplicateSkipped
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case DuplicateSkipped:
		return "duplicate_skipped"
	default:
		return "unknown"
	}
}

// Counts holds table row counts.
type Counts struct {
	Companies int64 `json:"companies"`
	Filings   int64 `json:"filings"`
}

// Loader persists companies and filings.
type Loader interface {
	// UpsertCompany writes the company or updates its name (last write wins).
	UpsertCompany(ctx context.Context, c model.Company) error

	// InsertFiling inserts the filing, or reports DuplicateSkipped when the
	// uniqueness constraint already holds an identical tuple. A failed insert
	// is rolled back and returned as *Error.
	InsertFiling(ctx context.Context, f model.Filing) (InsertResult, error)

	// Counts returns the number of stored companies and filings.
	Counts(ctx context.Context) (Counts, error)

	// Migrate creates the companies and filings tables if they are missing.
	Migrate(ctx context.Context) error

	Close() error
}

// Error is a failed store operation. Fatal errors mean the connection is
// gone and the run must stop; all others are scoped to the one write.
type Error struct {
	Op             string
	CIK            string
	Filename       string
	Fatal          bool
	MissingCompany bool
	Err            error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("store: ")
	b.WriteString(e.Op)
	if e.CIK != "" {
		b.WriteString(" cik=")
		b.WriteString(e.CIK)
	}
	if e.Filename != "" {
		b.WriteString(" filename=")
		b.WriteString(e.Filename)
	}
	if e.MissingCompany {
		b.WriteString(": company does not exist")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a store error that must halt the run.
func IsFatal(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Fatal
}
