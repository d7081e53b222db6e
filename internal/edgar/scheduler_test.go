package edgar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-index/internal/fetcher"
	"github.com/sells-group/edgar-index/internal/metrics"
	"github.com/sells-group/edgar-index/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// stubFetcher serves bodies by URL suffix and records requested URLs.
type stubFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	errs    map[string]error
	urls    []string
	onFetch func()
}

func (s *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	s.urls = append(s.urls, url)
	s.mu.Unlock()
	if s.onFetch != nil {
		s.onFetch()
	}
	for suffix, err := range s.errs {
		if strings.HasSuffix(url, suffix) {
			return nil, err
		}
	}
	for suffix, body := range s.bodies {
		if strings.HasSuffix(url, suffix) {
			return []byte(body), nil
		}
	}
	return nil, &fetcher.StatusError{Code: http.StatusNotFound, URL: url}
}

func TestScheduler_WeekendNotFoundDoesNotStopBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Archives/edgar/daily-index/2024/QTR3/company.20240920.idx",
			"/Archives/edgar/daily-index/2024/QTR3/company.20240923.idx":
			w.Write([]byte("index body " + r.URL.Path)) //nolint:errcheck
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := metrics.New()
	s := NewScheduler(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: "test"}), SchedulerOptions{
		ArchivesURL: srv.URL + "/Archives",
		Dir:         dir,
		Metrics:     m,
	})

	sum, err := s.FetchAll(context.Background(), DailyRange(date(2024, 9, 20), date(2024, 9, 23)))
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 2, NotFound: 2}, sum)

	assert.FileExists(t, filepath.Join(dir, "2024", "company_20240920.idx"))
	assert.FileExists(t, filepath.Join(dir, "2024", "company_20240923.idx"))
	assert.NoFileExists(t, filepath.Join(dir, "2024", "company_20240921.idx"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.FetchOutcomes.WithLabelValues("daily", "not_found")), 0)
}

func TestScheduler_TransportFailureContinues(t *testing.T) {
	f := &stubFetcher{
		bodies: map[string]string{"company.20240920.idx": "a", "company.20240922.idx": "c"},
		errs:   map[string]error{"company.20240921.idx": errors.New("connection reset by peer")},
	}
	s := NewScheduler(f, SchedulerOptions{ArchivesURL: "https://example.test/Archives", Dir: t.TempDir()})

	sum, err := s.FetchAll(context.Background(), DailyRange(date(2024, 9, 20), date(2024, 9, 22)))
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 2, TransportFailed: 1, Transient: 1}, sum)
	assert.Len(t, f.urls, 3)
}

func TestScheduler_CountsTransientFailures(t *testing.T) {
	unavailable := &fetcher.StatusError{Code: http.StatusServiceUnavailable, URL: "x"}
	f := &stubFetcher{errs: map[string]error{
		"company.20240920.idx": resilience.NewTransientError(unavailable, http.StatusServiceUnavailable),
		"company.20240921.idx": &fetcher.StatusError{Code: http.StatusForbidden, URL: "y"},
	}}
	s := NewScheduler(f, SchedulerOptions{ArchivesURL: "https://example.test/Archives", Dir: t.TempDir()})

	sum, err := s.FetchAll(context.Background(), DailyRange(date(2024, 9, 20), date(2024, 9, 22)))
	require.NoError(t, err)
	assert.Equal(t, Summary{NotFound: 1, TransportFailed: 2, Transient: 1}, sum)
}

func TestScheduler_FetchOutcomes(t *testing.T) {
	boom := errors.New("i/o timeout")
	f := &stubFetcher{
		bodies: map[string]string{"full-index/2023/QTR1/company.idx": "q1"},
		errs:   map[string]error{"full-index/2023/QTR2/company.idx": boom},
	}
	dir := t.TempDir()
	s := NewScheduler(f, SchedulerOptions{ArchivesURL: "https://example.test/Archives", Dir: dir})
	ctx := context.Background()

	o, err := s.Fetch(ctx, QuarterlyResource(2023, 1))
	require.NoError(t, err)
	assert.Equal(t, Fetched, o)
	data, err := os.ReadFile(filepath.Join(dir, "2023", "company_2023_QTR1.idx"))
	require.NoError(t, err)
	assert.Equal(t, "q1", string(data))

	o, err = s.Fetch(ctx, QuarterlyResource(2023, 2))
	assert.Equal(t, TransportFailed, o)
	assert.ErrorIs(t, err, boom)

	o, err = s.Fetch(ctx, QuarterlyResource(2023, 3))
	require.NoError(t, err)
	assert.Equal(t, NotFound, o)
}

func TestScheduler_RefetchOverwrites(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{"company.20240919.idx": "first"}}
	dir := t.TempDir()
	s := NewScheduler(f, SchedulerOptions{ArchivesURL: "https://example.test/Archives", Dir: dir})
	ctx := context.Background()
	r := DailyResource(date(2024, 9, 19))

	_, err := s.Fetch(ctx, r)
	require.NoError(t, err)

	f.bodies["company.20240919.idx"] = "second"
	_, err = s.Fetch(ctx, r)
	require.NoError(t, err)

	data, err := os.ReadFile(r.LocalPath(dir))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestScheduler_WriteFailureIsTransportFailed(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the year directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024"), []byte("x"), 0o644))

	f := &stubFetcher{bodies: map[string]string{"company.20240919.idx": "body"}}
	s := NewScheduler(f, SchedulerOptions{ArchivesURL: "https://example.test/Archives", Dir: dir})

	o, err := s.Fetch(context.Background(), DailyResource(date(2024, 9, 19)))
	require.Error(t, err)
	assert.Equal(t, TransportFailed, o)
}

func TestScheduler_DelayBetweenRequests(t *testing.T) {
	var times []time.Time
	f := &stubFetcher{onFetch: func() { times = append(times, time.Now()) }}
	s := NewScheduler(f, SchedulerOptions{
		ArchivesURL: "https://example.test/Archives",
		Dir:         t.TempDir(),
		Delay:       50 * time.Millisecond,
	})

	_, err := s.FetchAll(context.Background(), DailyRange(date(2024, 9, 20), date(2024, 9, 22)))
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.GreaterOrEqual(t, times[2].Sub(times[0]), 90*time.Millisecond)
}

func TestScheduler_CancelStopsBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &stubFetcher{onFetch: cancel}
	s := NewScheduler(f, SchedulerOptions{ArchivesURL: "https://example.test/Archives", Dir: t.TempDir()})

	sum, err := s.FetchAll(ctx, DailyRange(date(2024, 9, 20), date(2024, 9, 25)))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.urls, 1)
	assert.Equal(t, 1, sum.NotFound)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "fetched", Fetched.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "transport_failed", TransportFailed.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
