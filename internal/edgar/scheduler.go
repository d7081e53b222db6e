package edgar

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/edgar-index/internal/fetcher"
	"github.com/sells-group/edgar-index/internal/metrics"
	"github.com/sells-group/edgar-index/internal/resilience"
)

// Outcome is the result of fetching one resource.
type Outcome int

const (
	Fetched Outcome = iota + 1
	NotFound
	TransportFailed
)

func (o Outcome) String() string {
	switch o {
	case Fetched:
		return "fetched"
	case NotFound:
		return "not_found"
	case TransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	ArchivesURL string
	Dir         string
	// Delay is the minimum gap between consecutive requests.
	Delay   time.Duration
	Metrics *metrics.Metrics
}

// Scheduler downloads index resources into a local directory tree.
type Scheduler struct {
	fetcher fetcher.Fetcher
	opts    SchedulerOptions
	pacer   *rate.Limiter
	log     *zap.Logger
}

// NewScheduler creates a Scheduler that downloads through f.
func NewScheduler(f fetcher.Fetcher, opts SchedulerOptions) *Scheduler {
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &Scheduler{
		fetcher: f,
		opts:    opts,
		pacer:   rate.NewLimiter(limit, 1),
		log:     zap.L().With(zap.String("component", "edgar.scheduler")),
	}
}

// Fetch downloads one resource and overwrites its local copy. A missing
// remote resource is NotFound with a nil error; every other failure is
// TransportFailed with the cause. Fetch makes a single attempt.
func (s *Scheduler) Fetch(ctx context.Context, r Resource) (Outcome, error) {
	url := r.URL(s.opts.ArchivesURL)
	path := r.LocalPath(s.opts.Dir)
	log := s.log.With(zap.String("resource", r.String()), zap.String("url", url))

	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		if fetcher.IsNotFound(err) {
			log.Warn("index not published")
			s.opts.Metrics.RecordFetch(r.Kind.String(), NotFound.String())
			return NotFound, nil
		}
		log.Error("index download failed", zap.Bool("transient", resilience.IsTransient(err)), zap.Error(err))
		s.opts.Metrics.RecordFetch(r.Kind.String(), TransportFailed.String())
		return TransportFailed, err
	}

	if err := writeFile(path, body); err != nil {
		log.Error("index write failed", zap.String("path", path), zap.Error(err))
		s.opts.Metrics.RecordFetch(r.Kind.String(), TransportFailed.String())
		return TransportFailed, err
	}

	log.Info("index downloaded", zap.String("path", path), zap.Int("bytes", len(body)))
	s.opts.Metrics.RecordFetch(r.Kind.String(), Fetched.String())
	return Fetched, nil
}

// Summary tallies a FetchAll batch. Transient counts the transport
// failures (network errors, 429, 5xx) that a later run may not see again.
type Summary struct {
	Fetched         int `json:"fetched"`
	NotFound        int `json:"not_found"`
	TransportFailed int `json:"transport_failed"`
	Transient       int `json:"transient"`
}

func (s *Summary) add(o Outcome) {
	switch o {
	case Fetched:
		s.Fetched++
	case NotFound:
		s.NotFound++
	case TransportFailed:
		s.TransportFailed++
	}
}

// FetchAll fetches each resource in order, pacing requests by the configured
// delay. A failed resource never stops the batch; only context cancellation
// does, in which case the partial summary and the context error are returned.
func (s *Scheduler) FetchAll(ctx context.Context, rs []Resource) (Summary, error) {
	var sum Summary
	for _, r := range rs {
		if err := s.pacer.Wait(ctx); err != nil {
			return sum, eris.Wrap(err, "edgar: fetch batch interrupted")
		}
		o, err := s.Fetch(ctx, r)
		sum.add(o)
		if o == TransportFailed && resilience.IsTransient(err) {
			sum.Transient++
		}
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "edgar: fetch batch interrupted")
		}
	}

	s.log.Info("fetch batch complete",
		zap.Int("requested", len(rs)),
		zap.Int("fetched", sum.Fetched),
		zap.Int("not_found", sum.NotFound),
		zap.Int("transport_failed", sum.TransportFailed),
		zap.Int("transient", sum.Transient),
	)
	return sum, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "edgar: create dir for %s", path)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return eris.Wrapf(err, "edgar: write %s", path)
	}
	return nil
}
