// Package ledger records which index files have been fully ingested and the
// last date the incremental run completed. A Ledger wraps a Backend and
// serializes writes so concurrent workers may share one instance.
package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-index/internal/model"
)

// Backend is the persistence capability behind a Ledger.
type Backend interface {
	// Contains reports whether name has been appended.
	Contains(ctx context.Context, name string) (bool, error)
	// Append durably records name. Appending a name twice is harmless.
	Append(ctx context.Context, name string) error
	// Marker returns the stored last date, or ok=false when none is stored.
	Marker(ctx context.Context) (t time.Time, ok bool, err error)
	// SetMarker durably stores the last date.
	SetMarker(ctx context.Context, t time.Time) error
	// Len returns the number of recorded names.
	Len(ctx context.Context) (int, error)
}

// Ledger is the processed-file set plus the last-date marker.
type Ledger struct {
	backend Backend
	epoch   time.Time

	mu sync.Mutex
}

// New creates a Ledger. epoch is returned by LastDate when no marker exists.
func New(backend Backend, epoch time.Time) *Ledger {
	return &Ledger{backend: backend, epoch: model.Day(epoch)}
}

// Key is the ledger key for an index file path: its base name.
func Key(path string) string {
	return filepath.Base(path)
}

// IsProcessed reports whether the file at path is already recorded.
func (l *Ledger) IsProcessed(ctx context.Context, path string) (bool, error) {
	ok, err := l.backend.Contains(ctx, Key(path))
	if err != nil {
		return false, eris.Wrapf(err, "ledger: check %s", Key(path))
	}
	return ok, nil
}

// MarkProcessed records the file at path. Safe for concurrent use.
func (l *Ledger) MarkProcessed(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.backend.Append(ctx, Key(path)); err != nil {
		return eris.Wrapf(err, "ledger: mark %s", Key(path))
	}
	return nil
}

// LastDate returns the stored marker, or the epoch when none exists.
func (l *Ledger) LastDate(ctx context.Context) (time.Time, error) {
	t, ok, err := l.backend.Marker(ctx)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "ledger: read last date")
	}
	if !ok {
		return l.epoch, nil
	}
	return model.Day(t), nil
}

// SetLastDate stores d as the marker. A date earlier than the stored marker
// is ignored and reported with moved=false.
func (l *Ledger) SetLastDate(ctx context.Context, d time.Time) (moved bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d = model.Day(d)
	cur, ok, err := l.backend.Marker(ctx)
	if err != nil {
		return false, eris.Wrap(err, "ledger: read last date")
	}
	if ok && d.Before(model.Day(cur)) {
		zap.L().Warn("ledger: refusing to move last date backwards",
			zap.String("current", cur.Format(model.DateLayout)),
			zap.String("requested", d.Format(model.DateLayout)),
		)
		return false, nil
	}
	if err := l.backend.SetMarker(ctx, d); err != nil {
		return false, eris.Wrap(err, "ledger: write last date")
	}
	return true, nil
}

// Len returns the number of processed files.
func (l *Ledger) Len(ctx context.Context) (int, error) {
	n, err := l.backend.Len(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: count processed files")
	}
	return n, nil
}
