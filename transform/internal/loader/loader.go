// Package loader writes normalized records to the staging layer in chunks.
package loader

import (
	"context"
	"errors"
	"time"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/repository"
)

// DefaultBatchSize is the chunk size used when none is given.
const DefaultBatchSize = 2000

// Result counts the outcome of one UpsertBatch call.
type Result struct {
	Succeeded int
	Failed    int
	FailedIDs []string
}

// Upserter writes staging records.
type Upserter struct {
	store  repository.StagingStore
	logger *logging.Logger
}

// New creates an upserter over store.
func New(store repository.StagingStore, logger *logging.Logger) *Upserter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Upserter{store: store, logger: logger}
}

// UpsertBatch writes records in sequential chunks of batchSize. Each chunk is
// one transaction; a failed chunk is retried one record per transaction so
// that a bad record only costs itself. The returned error is non-nil only
// when the store is unavailable or ctx is done; Result then holds the
// progress made so far.
func (u *Upserter) UpsertBatch(ctx context.Context, records []*models.StagingRecord, batchSize int) (Result, error) {
	var res Result
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+batchSize, len(records))
		chunk := records[start:end]
		batch := start/batchSize + 1

		began := time.Now()
		err := u.store.UpsertAll(ctx, chunk)
		if err == nil {
			res.Succeeded += len(chunk)
			u.logger.DebugContext(ctx, "upserted chunk",
				logging.Batch(batch),
				logging.Count(len(chunk)),
				logging.Duration(time.Since(began)),
			)
			continue
		}
		if fatal(ctx, err) {
			return res, err
		}

		u.logger.WarnContext(ctx, "chunk upsert failed, retrying row by row",
			logging.Batch(batch),
			logging.Count(len(chunk)),
			logging.Error(err),
		)
		if err := u.upsertRows(ctx, chunk, &res); err != nil {
			return res, err
		}
	}

	return res, nil
}

func (u *Upserter) upsertRows(ctx context.Context, chunk []*models.StagingRecord, res *Result) error {
	for _, rec := range chunk {
		err := u.store.UpsertOne(ctx, rec)
		if err == nil {
			res.Succeeded++
			continue
		}
		if fatal(ctx, err) {
			return err
		}
		res.Failed++
		res.FailedIDs = append(res.FailedIDs, rec.RawID)
		u.logger.ErrorContext(ctx, "failed to upsert record",
			logging.RawID(rec.RawID),
			logging.Error(err),
		)
	}
	return nil
}

func fatal(ctx context.Context, err error) bool {
	if errors.Is(err, repository.ErrUnavailable) {
		return true
	}
	return ctx.Err() != nil
}
