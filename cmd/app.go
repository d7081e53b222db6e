package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-index/internal/config"
	"github.com/sells-group/edgar-index/internal/edgar"
	"github.com/sells-group/edgar-index/internal/fetcher"
	"github.com/sells-group/edgar-index/internal/indexfile"
	"github.com/sells-group/edgar-index/internal/ingest"
	"github.com/sells-group/edgar-index/internal/ledger"
	"github.com/sells-group/edgar-index/internal/metrics"
	"github.com/sells-group/edgar-index/internal/model"
	"github.com/sells-group/edgar-index/internal/store"
)

// app holds the collaborators for one command invocation.
type app struct {
	loader  store.Loader
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	driver  *ingest.Driver
	cfg     *config.Config
}

func (a *app) Close() {
	if err := a.loader.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// writeMetrics exports the run counters when ingest.metrics_file is set.
func (a *app) writeMetrics() {
	if err := a.metrics.WriteTextfile(a.cfg.Ingest.MetricsFile); err != nil {
		zap.L().Warn("metrics export failed", zap.Error(err))
	}
}

// openApp connects the store, applies migrations and wires the driver.
func openApp(ctx context.Context, c *config.Config) (*app, error) {
	loader, err := openLoader(ctx, c.Store)
	if err != nil {
		return nil, err
	}

	if err := loader.Migrate(ctx); err != nil {
		_ = loader.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	led, err := openLedger(c, loader)
	if err != nil {
		_ = loader.Close()
		return nil, err
	}

	parser, err := newParser(c)
	if err != nil {
		_ = loader.Close()
		return nil, err
	}

	m := metrics.New()
	sched := newScheduler(c, m)

	opts := ingest.Options{
		IndexDir:   c.Index.Dir,
		SortedWalk: c.Ingest.SortedWalk,
		Workers:    c.Ingest.Workers,
		FilePause:  c.Ingest.FilePause,
		SkipFetch:  c.Ingest.SkipFetch,
	}
	if rl := runLog(loader); rl != nil {
		opts.Runs = rl
	}
	d := ingest.New(loader, led, parser, sched, m, opts)

	return &app{loader: loader, ledger: led, metrics: m, driver: d, cfg: c}, nil
}

// runLog returns the run history table for the postgres store, nil otherwise.
func runLog(loader store.Loader) *store.RunLog {
	if pg, ok := loader.(*store.PostgresLoader); ok {
		return store.NewRunLog(pg.Pool())
	}
	return nil
}

// openLoader opens the configured store backend.
func openLoader(ctx context.Context, sc config.StoreConfig) (store.Loader, error) {
	switch sc.Driver {
	case "postgres":
		l, err := store.OpenPostgres(ctx, sc.DatabaseURL, sc.MaxConns)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "sqlite":
		l, err := store.NewSQLite(sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", sc.Driver)
	}
}

// openLedger builds the ledger on the configured backend. The postgres
// backend shares the store's pool.
func openLedger(c *config.Config, loader store.Loader) (*ledger.Ledger, error) {
	epoch, err := epochDate(c.Ingest.EpochDate)
	if err != nil {
		return nil, err
	}

	var backend ledger.Backend
	switch c.Ledger.Driver {
	case "file":
		fb, err := ledger.OpenFileBackend(c.Ledger.ProcessedFile, c.Ledger.LastDateFile)
		if err != nil {
			return nil, err
		}
		backend = fb
	case "postgres":
		pg, ok := loader.(*store.PostgresLoader)
		if !ok {
			return nil, eris.New("ledger driver postgres requires the postgres store")
		}
		backend = ledger.NewPostgresBackend(pg.Pool())
	case "memory":
		backend = ledger.NewMemoryBackend()
	default:
		return nil, eris.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}
	return ledger.New(backend, epoch), nil
}

func epochDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, eris.New("ingest.epoch_date is required")
	}
	t, err := model.ParseDay(s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse ingest.epoch_date %q", s)
	}
	return t, nil
}

func newParser(c *config.Config) (*indexfile.Parser, error) {
	cols, err := indexfile.ColumnsFromStarts(c.Index.ColumnStarts)
	if err != nil {
		return nil, err
	}
	return indexfile.NewParser(indexfile.Options{
		Columns:     cols,
		FormTypes:   c.Index.FormTypes,
		MinDashes:   c.Index.MinDashes,
		CIKWidth:    c.Index.CIKWidth,
		ArchivesURL: c.EDGAR.ArchivesURL,
	}), nil
}

func newScheduler(c *config.Config, m *metrics.Metrics) *edgar.Scheduler {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.EDGAR.UserAgent,
		Timeout:   c.EDGAR.Timeout,
	})
	return edgar.NewScheduler(f, edgar.SchedulerOptions{
		ArchivesURL: c.EDGAR.ArchivesURL,
		Dir:         c.Index.Dir,
		Delay:       c.EDGAR.RequestDelay,
		Metrics:     m,
	})
}
