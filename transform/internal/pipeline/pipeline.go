// Package pipeline runs one incremental raw to staging transform: select the
// change-set, normalize it on a worker pool, then upsert the results.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/common/runstats"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/changeset"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/dlq"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/events"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/loader"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/metrics"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/normalizer"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/repository"
)

// Defaults for Config fields left at zero.
const (
	DefaultTestLimit          = 100
	DefaultMaxWorkers         = 4
	DefaultErrorRateThreshold = 0.1
	DefaultSampleSize         = 3

	// alertSampleSize bounds the raw ids carried by an error-rate alert.
	alertSampleSize = 10
)

// Config tunes a Runner.
type Config struct {
	BatchSize          int
	TestLimit          int
	MaxWorkers         int
	ErrorRateThreshold float64
	SampleSize         int
	MetricsPushURL     string
	MetricsJob         string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = loader.DefaultBatchSize
	}
	if c.TestLimit <= 0 {
		c.TestLimit = DefaultTestLimit
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = DefaultErrorRateThreshold
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	return c
}

// Options select what one run processes.
type Options struct {
	TestMode   bool
	Source     string
	SourceType string
}

// Durations are the wall-clock times of each phase.
type Durations struct {
	Query     time.Duration `json:"query" yaml:"query"`
	Normalize time.Duration `json:"normalize" yaml:"normalize"`
	Upsert    time.Duration `json:"upsert" yaml:"upsert"`
	Total     time.Duration `json:"total" yaml:"total"`
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID                string                  `json:"run_id" yaml:"run_id"`
	Source               string                  `json:"source" yaml:"source"`
	SourceType           string                  `json:"source_type" yaml:"source_type"`
	TestMode             bool                    `json:"test_mode" yaml:"test_mode"`
	StartedAt            time.Time               `json:"started_at" yaml:"started_at"`
	RecordsFound         int                     `json:"records_found" yaml:"records_found"`
	RecordsNormalized    int                     `json:"records_normalized" yaml:"records_normalized"`
	NormalizationErrors  int                     `json:"normalization_errors" yaml:"normalization_errors"`
	RecordsUpserted      int                     `json:"records_upserted" yaml:"records_upserted"`
	RecordsFailed        int                     `json:"records_failed" yaml:"records_failed"`
	FingerprintsRepaired int                     `json:"fingerprints_repaired" yaml:"fingerprints_repaired"`
	Bytes                int64                   `json:"bytes" yaml:"bytes"`
	ErrorRate            float64                 `json:"error_rate" yaml:"error_rate"`
	Alert                bool                    `json:"alert" yaml:"alert"`
	FailedRawIDs         []string                `json:"failed_raw_ids,omitempty" yaml:"failed_raw_ids,omitempty"`
	Durations            Durations               `json:"durations" yaml:"durations"`
	Samples              []*models.StagingRecord `json:"samples,omitempty" yaml:"-"`
}

// DeadLetter receives rows that failed normalization.
type DeadLetter interface {
	Write(ctx context.Context, rec dlq.FailedRecord) error
}

// EventPublisher announces finished runs and error-rate alerts.
type EventPublisher interface {
	RunCompleted(ctx context.Context, ev events.RunCompleted) error
	ErrorRateExceeded(ctx context.Context, ev events.ErrorRateAlert) error
}

// StatsRecorder keeps run history.
type StatsRecorder interface {
	Record(ctx context.Context, run runstats.Run) error
}

// Runner executes transform runs.
type Runner struct {
	selector   *changeset.Selector
	normalizer *normalizer.Normalizer
	upserter   *loader.Upserter
	cfg        Config
	logger     *logging.Logger

	deadLetter DeadLetter
	events     EventPublisher
	stats      StatsRecorder
}

// New creates a runner reading raw rows from raw and writing to staging.
func New(raw repository.RawStore, staging repository.StagingStore, norm *normalizer.Normalizer, cfg Config, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		selector:   changeset.New(raw, logger),
		normalizer: norm,
		upserter:   loader.New(staging, logger),
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// WithDeadLetter stores failed rows in q.
func (r *Runner) WithDeadLetter(q DeadLetter) *Runner {
	r.deadLetter = q
	return r
}

// WithEvents publishes run events through p.
func (r *Runner) WithEvents(p EventPublisher) *Runner {
	r.events = p
	return r
}

// WithStats records finished runs in s.
func (r *Runner) WithStats(s StatsRecorder) *Runner {
	r.stats = s
	return r
}

// Run performs one transform. Per-record failures are counted in the
// summary; the error is non-nil only when storage is unavailable or ctx
// ends, in which case the summary holds the progress made so far.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	runUUID, _ := uuid.NewV7()
	s := &Summary{
		RunID:      runUUID.String(),
		Source:     opts.Source,
		SourceType: opts.SourceType,
		TestMode:   opts.TestMode,
		StartedAt:  time.Now().UTC(),
	}
	if s.Source == "" {
		s.Source = models.DefaultSource
	}
	if s.SourceType == "" {
		s.SourceType = models.DefaultSourceType
	}

	ctx = logging.ContextWithRunID(ctx, s.RunID)
	log := r.logger.With(logging.Source(s.Source))

	limit := 0
	if opts.TestMode {
		limit = r.cfg.TestLimit
	}
	log.InfoContext(ctx, "starting transform run",
		"test_mode", opts.TestMode,
		logging.Batch(r.cfg.BatchSize),
		"limit", limit,
	)

	// Query
	began := time.Now()
	views, err := r.selector.SelectChanged(ctx, s.Source, limit)
	s.Durations.Query = r.phase("query", began)
	if err != nil {
		return r.fail(ctx, log, s, fmt.Errorf("failed to select changed records: %w", err))
	}

	s.RecordsFound = len(views)
	for _, v := range views {
		s.Bytes += int64(v.Size)
		if v.Repaired {
			s.FingerprintsRepaired++
		}
	}
	if len(views) == 0 {
		log.InfoContext(ctx, "no changed records found")
		r.finish(ctx, log, s)
		return s, nil
	}
	log.InfoContext(ctx, "found changed records",
		logging.Count(s.RecordsFound),
		logging.Duration(s.Durations.Query),
	)

	// Normalize
	began = time.Now()
	records, failed := r.normalize(ctx, log, s, views)
	s.Durations.Normalize = r.phase("normalize", began)
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, log, s, fmt.Errorf("normalization interrupted: %w", err))
	}
	r.checkErrorRate(ctx, log, s, failed)

	if opts.TestMode {
		s.Samples = records[:min(r.cfg.SampleSize, len(records))]
	}

	// Upsert
	began = time.Now()
	if len(records) > 0 {
		res, err := r.upserter.UpsertBatch(ctx, records, r.cfg.BatchSize)
		s.RecordsUpserted = res.Succeeded
		s.RecordsFailed = res.Failed
		s.FailedRawIDs = res.FailedIDs
		s.Durations.Upsert = r.phase("upsert", began)
		if err != nil {
			return r.fail(ctx, log, s, fmt.Errorf("failed to upsert staging records: %w", err))
		}
	} else {
		log.WarnContext(ctx, "no records to upsert, all failed normalization")
	}

	r.finish(ctx, log, s)
	return s, nil
}

func (r *Runner) normalize(ctx context.Context, log *logging.Logger, s *Summary, views []models.RawRecordView) ([]*models.StagingRecord, []string) {
	inputs := make([]normalizer.Input, len(views))
	for i, v := range views {
		inputs[i] = normalizer.Input{
			RawID:          v.RawID,
			SheetRowNumber: v.SheetRowNumber,
			ReceivedAt:     v.ReceivedAt,
			Payload:        v.Payload,
			SourceType:     s.SourceType,
			Fingerprint:    v.Fingerprint,
		}
	}

	results := r.normalizer.NormalizeAll(ctx, inputs, r.cfg.MaxWorkers)
	records := make([]*models.StagingRecord, 0, len(results))
	var failed []string
	for i, res := range results {
		if res.Err == nil {
			records = append(records, res.Record)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		s.NormalizationErrors++
		failed = append(failed, res.Input.RawID)
		log.ErrorContext(ctx, "failed to normalize record",
			logging.RawID(res.Input.RawID),
			"index", i+1,
			logging.Count(len(results)),
			logging.Error(res.Err),
		)
		if r.deadLetter != nil {
			err := r.deadLetter.Write(ctx, dlq.FailedRecord{
				RunID:      s.RunID,
				Source:     s.Source,
				RawID:      res.Input.RawID,
				ReceivedAt: res.Input.ReceivedAt,
				Payload:    res.Input.Payload,
				Error:      res.Err.Error(),
				Reason:     "normalization",
			})
			if err != nil {
				log.WarnContext(ctx, "failed to write dead letter", logging.RawID(res.Input.RawID), logging.Error(err))
			}
		}
	}
	s.RecordsNormalized = len(records)

	log.InfoContext(ctx, "normalized records",
		logging.Count(s.RecordsNormalized),
		"errors", s.NormalizationErrors,
	)
	return records, failed
}

// checkErrorRate raises an alert when the share of failed rows is above the
// threshold. The run continues either way.
func (r *Runner) checkErrorRate(ctx context.Context, log *logging.Logger, s *Summary, failed []string) {
	if s.RecordsFound == 0 || s.NormalizationErrors == 0 {
		return
	}
	s.ErrorRate = float64(s.NormalizationErrors) / float64(s.RecordsFound)

	if s.ErrorRate <= r.cfg.ErrorRateThreshold {
		log.WarnContext(ctx, "normalization completed with errors",
			"errors", s.NormalizationErrors,
			"error_rate", s.ErrorRate,
		)
		return
	}

	s.Alert = true
	log.ErrorContext(ctx, "ALERT: high normalization error rate",
		"errors", s.NormalizationErrors,
		logging.Count(s.RecordsFound),
		"error_rate", s.ErrorRate,
		"threshold", r.cfg.ErrorRateThreshold,
	)
	if r.events == nil {
		return
	}
	err := r.events.ErrorRateExceeded(ctx, events.ErrorRateAlert{
		RunID:               s.RunID,
		Source:              s.Source,
		RecordsFound:        s.RecordsFound,
		NormalizationErrors: s.NormalizationErrors,
		ErrorRate:           s.ErrorRate,
		Threshold:           r.cfg.ErrorRateThreshold,
		SampleRawIDs:        failed[:min(alertSampleSize, len(failed))],
		Timestamp:           time.Now().UTC(),
	})
	if err != nil {
		log.WarnContext(ctx, "failed to publish error rate alert", logging.Error(err))
	}
}

func (r *Runner) phase(name string, began time.Time) time.Duration {
	d := time.Since(began)
	metrics.PhaseDuration.WithLabelValues(name).Observe(d.Seconds())
	return d
}

func (r *Runner) fail(ctx context.Context, log *logging.Logger, s *Summary, err error) (*Summary, error) {
	s.Durations.Total = time.Since(s.StartedAt)
	metrics.RunsTotal.WithLabelValues(s.Source, metrics.StatusFailed).Inc()
	log.ErrorContext(ctx, "transform run failed",
		logging.Duration(s.Durations.Total),
		logging.Error(err),
	)
	r.push(ctx, log)
	return s, err
}

// finish records a completed run in metrics, run stats and on the bus.
// Failures of these side channels are logged only.
func (r *Runner) finish(ctx context.Context, log *logging.Logger, s *Summary) {
	s.Durations.Total = time.Since(s.StartedAt)

	metrics.RunsTotal.WithLabelValues(s.Source, metrics.StatusSuccess).Inc()
	metrics.RecordsFound.WithLabelValues(s.Source).Add(float64(s.RecordsFound))
	metrics.RecordsNormalized.WithLabelValues(s.Source).Add(float64(s.RecordsNormalized))
	metrics.NormalizationErrors.WithLabelValues(s.Source).Add(float64(s.NormalizationErrors))
	metrics.RecordsUpserted.WithLabelValues(s.Source).Add(float64(s.RecordsUpserted))
	metrics.RecordsFailed.WithLabelValues(s.Source).Add(float64(s.RecordsFailed))
	metrics.PayloadBytes.WithLabelValues(s.Source).Add(float64(s.Bytes))
	metrics.FingerprintsRepaired.WithLabelValues(s.Source).Add(float64(s.FingerprintsRepaired))
	metrics.LastRunErrorRate.WithLabelValues(s.Source).Set(s.ErrorRate)
	metrics.LastSuccessTimestamp.WithLabelValues(s.Source).SetToCurrentTime()

	if r.stats != nil {
		if err := r.stats.Record(ctx, s.run()); err != nil {
			log.WarnContext(ctx, "failed to record run stats", logging.Error(err))
		}
	}
	if r.events != nil {
		if err := r.events.RunCompleted(ctx, s.event()); err != nil {
			log.WarnContext(ctx, "failed to publish run summary", logging.Error(err))
		}
	}
	r.push(ctx, log)

	log.InfoContext(ctx, "transform run completed",
		logging.Duration(s.Durations.Total),
		"bytes", s.Bytes,
		"records_found", s.RecordsFound,
		"records_normalized", s.RecordsNormalized,
		"normalization_errors", s.NormalizationErrors,
		"records_upserted", s.RecordsUpserted,
		"records_failed", s.RecordsFailed,
		"query_ms", s.Durations.Query.Milliseconds(),
		"normalize_ms", s.Durations.Normalize.Milliseconds(),
		"upsert_ms", s.Durations.Upsert.Milliseconds(),
	)
}

func (r *Runner) push(ctx context.Context, log *logging.Logger) {
	if err := metrics.Push(ctx, r.cfg.MetricsPushURL, r.cfg.MetricsJob); err != nil {
		log.WarnContext(ctx, "failed to push metrics", logging.Error(err))
	}
}

func (s *Summary) run() runstats.Run {
	return runstats.Run{
		RunID:               s.RunID,
		Source:              s.Source,
		StartedAt:           s.StartedAt,
		TestMode:            s.TestMode,
		RecordsFound:        int64(s.RecordsFound),
		RecordsNormalized:   int64(s.RecordsNormalized),
		NormalizationErrors: int64(s.NormalizationErrors),
		RecordsUpserted:     int64(s.RecordsUpserted),
		RecordsFailed:       int64(s.RecordsFailed),
		Bytes:               s.Bytes,
		DurationMS:          s.Durations.Total.Milliseconds(),
		ErrorRate:           s.ErrorRate,
	}
}

func (s *Summary) event() events.RunCompleted {
	return events.RunCompleted{
		RunID:               s.RunID,
		Source:              s.Source,
		SourceType:          s.SourceType,
		TestMode:            s.TestMode,
		StartedAt:           s.StartedAt,
		FinishedAt:          s.StartedAt.Add(s.Durations.Total),
		RecordsFound:        s.RecordsFound,
		RecordsNormalized:   s.RecordsNormalized,
		NormalizationErrors: s.NormalizationErrors,
		RecordsUpserted:     s.RecordsUpserted,
		RecordsFailed:       s.RecordsFailed,
		Bytes:               s.Bytes,
		DurationMS:          s.Durations.Total.Milliseconds(),
		ErrorRate:           s.ErrorRate,
	}
}
