// Package metrics defines the Prometheus collectors for the lake engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lake"

// Metric names.
const (
	MetricIngestJobs      = "ingest_jobs_total"
	MetricIngestRows      = "ingest_rows_total"
	MetricStorageBytes    = "storage_bytes_total"
	MetricStorageParts    = "storage_parts_total"
	MetricCatalogueTables = "catalogue_tables"
)

// Ingest job outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	IngestJobs      *prometheus.CounterVec
	IngestRows      prometheus.Counter
	StorageBytes    *prometheus.CounterVec
	StorageParts    *prometheus.CounterVec
	CatalogueTables prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricIngestJobs,
				Help:      "Ingestion jobs by outcome.",
			},
			[]string{"status"},
		),
		IngestRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricIngestRows,
				Help:      "Rows written by successful ingestion jobs.",
			},
		),
		StorageBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricStorageBytes,
				Help:      "Bytes written to storage backends.",
			},
			[]string{"backend"},
		),
		StorageParts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricStorageParts,
				Help:      "Chunks uploaded to storage backends.",
			},
			[]string{"backend"},
		),
		CatalogueTables: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      MetricCatalogueTables,
				Help:      "Tables currently registered in the catalogue.",
			},
		),
	}
	reg.MustRegister(m.IngestJobs, m.IngestRows, m.StorageBytes, m.StorageParts, m.CatalogueTables)
	return m
}

// ObserveIngest records the outcome of one ingestion job.
func (m *Metrics) ObserveIngest(status string, rows int64) {
	if m == nil {
		return
	}
	m.IngestJobs.WithLabelValues(status).Inc()
	if status == StatusSucceeded && rows > 0 {
		m.IngestRows.Add(float64(rows))
	}
}

// AddStorageBytes records bytes written to a backend.
func (m *Metrics) AddStorageBytes(backend string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StorageBytes.WithLabelValues(backend).Add(float64(n))
}

// IncStorageParts records one uploaded chunk.
func (m *Metrics) IncStorageParts(backend string) {
	if m == nil {
		return
	}
	m.StorageParts.WithLabelValues(backend).Inc()
}

// SetCatalogueTables sets the registered table count.
func (m *Metrics) SetCatalogueTables(n int) {
	if m == nil {
		return
	}
	m.CatalogueTables.Set(float64(n))
}
