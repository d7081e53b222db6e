// Package metrics exposes ingestion counters as Prometheus metrics. Runs are
// short-lived, so the registry is written to a node_exporter textfile at the
// end of a run instead of being scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "edgar_index"

// Metrics holds the ingestion counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	FetchOutcomes  *prometheus.CounterVec
	Files          *prometheus.CounterVec
	Records        *prometheus.CounterVec
	RowsSkipped    *prometheus.CounterVec
	LastDate       prometheus.Gauge
	RunDuration    prometheus.Gauge
	LastRunSuccess prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.FetchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Index resources fetched by outcome",
		},
		[]string{"kind", "outcome"}, // daily|quarterly, fetched|not_found|transport_failed
	)

	m.Files = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Index files seen by the walker by result",
		},
		[]string{"result"}, // processed, skipped, parse_failed
	)

	m.Records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Filing records loaded by result",
		},
		[]string{"result"}, // inserted, duplicate, store_error
	)

	m.RowsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Index rows dropped by the parser by reason",
		},
		[]string{"reason"},
	)

	m.LastDate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_date_timestamp_seconds",
		Help:      "Incremental last-date marker as a unix timestamp",
	})

	m.RunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the most recent run",
	})

	m.LastRunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_success",
		Help:      "1 if the most recent run finished without a fatal error",
	})

	m.registry.MustRegister(
		m.FetchOutcomes,
		m.Files,
		m.Records,
		m.RowsSkipped,
		m.LastDate,
		m.RunDuration,
		m.LastRunSuccess,
	)

	return m
}

// RecordFetch counts one fetch outcome.
func (m *Metrics) RecordFetch(kind, outcome string) {
	if m == nil {
		return
	}
	m.FetchOutcomes.WithLabelValues(kind, outcome).Inc()
}

// RecordFile counts one walked file.
func (m *Metrics) RecordFile(result string) {
	if m == nil {
		return
	}
	m.Files.WithLabelValues(result).Inc()
}

// RecordRecord counts one loaded filing.
func (m *Metrics) RecordRecord(result string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(result).Inc()
}

// RecordRowsSkipped adds n dropped rows for reason. Zero is ignored.
func (m *Metrics) RecordRowsSkipped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsSkipped.WithLabelValues(reason).Add(float64(n))
}

// SetLastDate records the marker date.
func (m *Metrics) SetLastDate(t time.Time) {
	if m == nil {
		return
	}
	m.LastDate.Set(float64(t.Unix()))
}

// RecordRun records the duration and outcome of a run.
func (m *Metrics) RecordRun(d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.RunDuration.Set(d.Seconds())
	if success {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
