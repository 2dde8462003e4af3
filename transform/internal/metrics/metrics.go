package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every sheetflow metric. It is kept apart from the default
// registry so that a push carries only pipeline series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Run status label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var (
	// Run metrics
	RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetflow_runs_total",
			Help: "Total number of transform runs",
		},
		[]string{"source", "status"},
	)

	LastRunErrorRate = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sheetflow_last_run_error_rate",
			Help: "Normalization error rate of the last run",
		},
		[]string{"source"},
	)

	LastSuccessTimestamp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sheetflow_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
		[]string{"source"},
	)

	// Record metrics
	RecordsFound = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetflow_records_found_total",
			Help: "Total number of raw records selected for normalization",
		},
		[]string{"source"},
	)

	RecordsNormalized = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetflow_records_normalized_total",
			Help: "Total number of records normalized",
		},
		[]string{"source"},
	)

	NormalizationErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetflow_normalization_errors_total",
			Help: "Total number of records that failed normalization",
		},
		[]string{"source"},
	)

	RecordsUpserted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetflow_records_upserted_total",
			Help: "Total number of staging records written",
		},
		[]string{"source"},
	)

	RecordsFailed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetflow_records_failed_total",
			Help: "Total number of staging records that could not be written",
		},
		[]string{"source"},
	)

	PayloadBytes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetflow_payload_bytes_total",
			Help: "Total bytes of raw payload processed",
		},
		[]string{"source"},
	)

	FingerprintsRepaired = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetflow_fingerprints_repaired_total",
			Help: "Total number of missing raw fingerprints recomputed",
		},
		[]string{"source"},
	)

	// Phase metrics
	PhaseDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sheetflow_phase_duration_seconds",
			Help:    "Duration of run phases in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
)
