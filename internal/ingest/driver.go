// Package ingest runs the incremental EDGAR index pipeline: fetch the daily
// indexes published since the last run, parse every unprocessed local index
// file, load its filings, and advance the last-date marker.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/edgar-index/internal/edgar"
	"github.com/sells-group/edgar-index/internal/indexfile"
	"github.com/sells-group/edgar-index/internal/ledger"
	"github.com/sells-group/edgar-index/internal/metrics"
	"github.com/sells-group/edgar-index/internal/model"
	"github.com/sells-group/edgar-index/internal/store"
)

// State is a step of a run, logged on entry.
type State string

const (
	StateInit           State = "INIT"
	StateFetching       State = "FETCHING"
	StateWalking        State = "WALKING"
	StateParsingFile    State = "PARSING_FILE"
	StateLoadingRecords State = "LOADING_RECORDS"
	StateDone           State = "DONE"
	StateAdvanceDate    State = "ADVANCE_DATE"
	StateTerminal       State = "TERMINAL"
)

// Options configures a Driver.
type Options struct {
	IndexDir string
	// SortedWalk visits files in base-name order, which is chronological for
	// daily index files. Otherwise files are visited in directory walk order.
	SortedWalk bool
	// Workers > 1 processes files concurrently.
	Workers int
	// FilePause is slept after each file.
	FilePause time.Duration
	// SkipFetch walks the existing local tree without downloading. The
	// last-date marker is left unchanged.
	SkipFetch bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Runs records run history. Optional.
	Runs RunRecorder
}

// RunRecorder persists the start and outcome of each run. Recording
// failures are logged and never stop a run.
type RunRecorder interface {
	Start(ctx context.Context, runID, kind string) error
	Complete(ctx context.Context, runID string, summary any) error
	Fail(ctx context.Context, runID, errMsg string) error
}

// Driver sequences the fetch, parse, load and ledger steps.
type Driver struct {
	loader    store.Loader
	ledger    *ledger.Ledger
	parser    *indexfile.Parser
	scheduler *edgar.Scheduler
	metrics   *metrics.Metrics
	opts      Options
}

// New creates a Driver. scheduler may be nil when opts.SkipFetch is set.
// m may be nil.
func New(loader store.Loader, led *ledger.Ledger, parser *indexfile.Parser, scheduler *edgar.Scheduler, m *metrics.Metrics, opts Options) *Driver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Driver{
		loader:    loader,
		ledger:    led,
		parser:    parser,
		scheduler: scheduler,
		metrics:   m,
		opts:      opts,
	}
}

// Summary reports what a run did.
type Summary struct {
	RunID           string        `json:"run_id"`
	Fetch           edgar.Summary `json:"fetch"`
	FilesProcessed  int           `json:"files_processed"`
	FilesSkipped    int           `json:"files_skipped"`
	FilesFailed     int           `json:"files_failed"`
	RecordsInserted int           `json:"records_inserted"`
	Duplicates      int           `json:"duplicates"`
	StoreErrors     int           `json:"store_errors"`
	RowsSkipped     int           `json:"rows_skipped"`
	LastDate        time.Time     `json:"last_date"`
	DateAdvanced    bool          `json:"date_advanced"`
}

// tally accumulates per-file results from concurrent workers.
type tally struct {
	mu  sync.Mutex
	sum *Summary
}

func (t *tally) add(fn func(s *Summary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.sum)
}

// Run performs one incremental cycle. A non-nil error means the run halted
// on a fatal condition (store connection loss, ledger write failure, or
// cancellation) and the last-date marker was not advanced.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	log := zap.L().With(zap.String("component", "ingest.driver"), zap.String("run_id", sum.RunID))

	enter(log, StateInit)
	d.recordStart(ctx, log, sum.RunID, "incremental")
	last, err := d.ledger.LastDate(ctx)
	if err != nil {
		return d.finish(ctx, log, start, sum, eris.Wrap(err, "ingest: read last date"))
	}
	today := model.Day(d.opts.Now())
	sum.LastDate = last
	log.Info("run window",
		zap.String("last_date", last.Format(model.DateLayout)),
		zap.String("today", today.Format(model.DateLayout)),
	)

	fetched := !d.opts.SkipFetch && d.scheduler != nil
	if fetched {
		enter(log, StateFetching)
		rs := edgar.DailyRange(last.AddDate(0, 0, 1), today)
		sum.Fetch, err = d.scheduler.FetchAll(ctx, rs)
		if err != nil {
			return d.finish(ctx, log, start, sum, err)
		}
	}

	if err := d.walk(ctx, log, &sum); err != nil {
		return d.finish(ctx, log, start, sum, err)
	}

	enter(log, StateAdvanceDate)
	// The marker names the newest fetched day, so a walk-only run leaves it.
	if !fetched {
		log.Info("fetch skipped, last date unchanged", zap.String("last_date", last.Format(model.DateLayout)))
		d.metrics.SetLastDate(sum.LastDate)
		return d.finish(ctx, log, start, sum, nil)
	}
	moved, err := d.ledger.SetLastDate(ctx, today)
	if err != nil {
		return d.finish(ctx, log, start, sum, eris.Wrap(err, "ingest: advance last date"))
	}
	if moved {
		sum.LastDate = today
		sum.DateAdvanced = true
	}
	d.metrics.SetLastDate(sum.LastDate)

	return d.finish(ctx, log, start, sum, nil)
}

func (d *Driver) recordStart(ctx context.Context, log *zap.Logger, runID, kind string) {
	if d.opts.Runs == nil {
		return
	}
	if err := d.opts.Runs.Start(ctx, runID, kind); err != nil {
		log.Warn("record run start failed", zap.Error(err))
	}
}

func (d *Driver) recordEnd(ctx context.Context, log *zap.Logger, sum Summary, runErr error) {
	if d.opts.Runs == nil {
		return
	}
	// The run context may already be cancelled.
	ctx = context.WithoutCancel(ctx)
	var err error
	if runErr != nil {
		err = d.opts.Runs.Fail(ctx, sum.RunID, runErr.Error())
	} else {
		err = d.opts.Runs.Complete(ctx, sum.RunID, sum)
	}
	if err != nil {
		log.Warn("record run outcome failed", zap.Error(err))
	}
}

// Backfill fetches the quarterly full indexes for fromYear through toYear
// and ingests every unprocessed local file. It never moves the last-date
// marker.
func (d *Driver) Backfill(ctx context.Context, fromYear, toYear int) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	log := zap.L().With(zap.String("component", "ingest.backfill"), zap.String("run_id", sum.RunID))

	if fromYear > toYear {
		return sum, eris.Errorf("ingest: backfill range %d-%d is empty", fromYear, toYear)
	}

	enter(log, StateInit)
	d.recordStart(ctx, log, sum.RunID, "backfill")
	if last, err := d.ledger.LastDate(ctx); err != nil {
		log.Warn("read last date failed", zap.Error(err))
	} else {
		sum.LastDate = last
	}

	if !d.opts.SkipFetch && d.scheduler != nil {
		enter(log, StateFetching)
		var err error
		sum.Fetch, err = d.scheduler.FetchAll(ctx, edgar.QuarterlyRange(fromYear, toYear, d.opts.Now()))
		if err != nil {
			return d.finish(ctx, log, start, sum, err)
		}
	}

	err := d.walk(ctx, log, &sum)
	return d.finish(ctx, log, start, sum, err)
}

func (d *Driver) finish(ctx context.Context, log *zap.Logger, start time.Time, sum Summary, err error) (Summary, error) {
	enter(log, StateTerminal)
	d.metrics.RecordRun(time.Since(start), err == nil)
	d.recordEnd(ctx, log, sum, err)

	fields := []zap.Field{
		zap.Int("files_processed", sum.FilesProcessed),
		zap.Int("files_skipped", sum.FilesSkipped),
		zap.Int("files_failed", sum.FilesFailed),
		zap.Int("records_inserted", sum.RecordsInserted),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("store_errors", sum.StoreErrors),
		zap.Int("rows_skipped", sum.RowsSkipped),
		zap.Bool("date_advanced", sum.DateAdvanced),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		log.Error("run halted", append(fields, zap.Error(err))...)
		return sum, err
	}
	log.Info("run complete", fields...)
	return sum, nil
}

// walk processes every .idx file under the index directory. It stops at the
// first fatal error.
func (d *Driver) walk(ctx context.Context, log *zap.Logger, sum *Summary) error {
	enter(log, StateWalking)
	files, err := d.indexFiles()
	if err != nil {
		return err
	}
	log.Info("index files found", zap.Int("count", len(files)), zap.String("dir", d.opts.IndexDir))

	t := &tally{sum: sum}

	if d.opts.Workers == 1 {
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "ingest: walk interrupted")
			}
			if err := d.handleFile(ctx, log, path, t); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return d.handleFile(gctx, log, path, t)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "ingest: walk interrupted")
	}
	return nil
}

// handleFile processes one file and sleeps the configured pause.
func (d *Driver) handleFile(ctx context.Context, log *zap.Logger, path string, t *tally) error {
	processed, err := d.processFile(ctx, log.With(zap.String("file", path)), path, t)
	if err != nil || !processed {
		return err
	}
	return pause(ctx, d.opts.FilePause)
}

// processFile handles one index file. It returns processed=false when the
// file was skipped or could not be parsed, and a non-nil error only for
// fatal conditions.
func (d *Driver) processFile(ctx context.Context, log *zap.Logger, path string, t *tally) (bool, error) {
	done, err := d.ledger.IsProcessed(ctx, path)
	if err != nil {
		return false, eris.Wrapf(err, "ingest: check ledger for %s", path)
	}
	if done {
		log.Info("skipping already processed file")
		t.add(func(s *Summary) { s.FilesSkipped++ })
		d.metrics.RecordFile("skipped")
		return false, nil
	}

	enter(log, StateParsingFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error("read index file failed", zap.Error(err))
		t.add(func(s *Summary) { s.FilesFailed++ })
		d.metrics.RecordFile("parse_failed")
		return false, nil
	}
	doc, err := d.parser.Parse(raw)
	if err != nil {
		log.Error("parse index file failed", zap.Error(err))
		t.add(func(s *Summary) { s.FilesFailed++ })
		d.metrics.RecordFile("parse_failed")
		return false, nil
	}

	enter(log, StateLoadingRecords)
	var inserted, duplicates, storeErrs int
	for f := range doc.Records() {
		if err := ctx.Err(); err != nil {
			return false, eris.Wrapf(err, "ingest: loading %s interrupted", path)
		}

		res, err := d.load(ctx, f)
		switch {
		case err != nil && store.IsFatal(err):
			log.Error("store connection lost", zap.String("cik", f.CIK), zap.String("filename", f.Filename), zap.Error(err))
			return false, eris.Wrapf(err, "ingest: load %s", path)
		case err != nil:
			log.Error("record not loaded", zap.String("cik", f.CIK), zap.String("filename", f.Filename), zap.Error(err))
			storeErrs++
			d.metrics.RecordRecord("store_error")
		case res == store.DuplicateSkipped:
			duplicates++
			d.metrics.RecordRecord("duplicate")
		default:
			inserted++
			d.metrics.RecordRecord("inserted")
		}
	}

	// Everything was attempted; a cancelled run must not mark the file.
	if err := ctx.Err(); err != nil {
		return false, eris.Wrapf(err, "ingest: loading %s interrupted", path)
	}

	if err := d.ledger.MarkProcessed(ctx, path); err != nil {
		return false, eris.Wrapf(err, "ingest: mark %s processed", path)
	}

	st := doc.Stats()
	d.recordSkipped(st)
	t.add(func(s *Summary) {
		s.FilesProcessed++
		s.RecordsInserted += inserted
		s.Duplicates += duplicates
		s.StoreErrors += storeErrs
		s.RowsSkipped += st.Rows - st.Records
	})
	d.metrics.RecordFile("processed")

	enter(log, StateDone)
	log.Info("processed file",
		zap.Int("rows", st.Rows),
		zap.Int("records", st.Records),
		zap.Int("inserted", inserted),
		zap.Int("duplicates", duplicates),
		zap.Int("store_errors", storeErrs),
		zap.Int("skipped_form", st.SkippedForm),
		zap.Int("skipped_malformed", st.Malformed()),
	)
	return true, nil
}

// load upserts the parent company then inserts the filing.
func (d *Driver) load(ctx context.Context, f model.Filing) (store.InsertResult, error) {
	if err := d.loader.UpsertCompany(ctx, f.Company()); err != nil {
		return 0, err
	}
	return d.loader.InsertFiling(ctx, f)
}

func (d *Driver) recordSkipped(st indexfile.Stats) {
	d.metrics.RecordRowsSkipped("form", st.SkippedForm)
	d.metrics.RecordRowsSkipped("missing_field", st.SkippedMissing)
	d.metrics.RecordRowsSkipped("cik", st.SkippedCIK)
	d.metrics.RecordRowsSkipped("date", st.SkippedDate)
}

// indexFiles lists .idx files under the index directory. A missing directory
// yields no files.
func (d *Driver) indexFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(d.opts.IndexDir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == d.opts.IndexDir {
				return filepath.SkipAll
			}
			return err
		}
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".idx") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: walk %s", d.opts.IndexDir)
	}

	if d.opts.SortedWalk {
		sort.SliceStable(files, func(i, j int) bool {
			return filepath.Base(files[i]) < filepath.Base(files[j])
		})
	}
	return files, nil
}

func enter(log *zap.Logger, s State) {
	switch s {
	case StateParsingFile, StateLoadingRecords, StateDone:
		log.Debug("state", zap.String("state", string(s)))
	default:
		log.Info("state", zap.String("state", string(s)))
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "ingest: pause interrupted")
	case <-t.C:
		return nil
	}
}
