package changeset

import (
	"context"
	"fmt"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fingerprint"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// DefaultBackfillBatch is the number of rows fingerprinted per round trip.
const DefaultBackfillBatch = 1000

// BackfillResult reports a fingerprint backfill.
type BackfillResult struct {
	Updated int `json:"updated" yaml:"updated"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// Backfill computes and stores the fingerprint of every raw row of source
// that has none, batchSize rows at a time. Rows with undecodable JSON are
// skipped and stay unfingerprinted; they are over-fetched past on later
// batches so they never hide the rows behind them.
func (s *Selector) Backfill(ctx context.Context, source string, batchSize int) (BackfillResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatch
	}

	var res BackfillResult
	skipped := make(map[string]bool)
	for {
		// Skipped rows still lack a fingerprint and come back first.
		limit := batchSize + len(skipped)
		rows, err := s.store.MissingFingerprints(ctx, source, limit)
		if err != nil {
			return res, fmt.Errorf("failed to list rows without fingerprint: %w", err)
		}

		fps := make(map[string]string, len(rows))
		for _, row := range rows {
			if skipped[row.ID] {
				continue
			}
			doc, err := payload.ParseDocument(row.Payload)
			if err != nil {
				skipped[row.ID] = true
				s.logger.WarnContext(ctx, "cannot fingerprint undecodable payload",
					logging.Source(source),
					logging.RawID(row.ID),
					logging.Error(err),
				)
				continue
			}
			fps[row.ID] = fingerprint.ComputeValue(doc)
		}

		if len(fps) > 0 {
			n, err := s.store.SetFingerprints(ctx, fps)
			if err != nil {
				return res, fmt.Errorf("failed to store fingerprints: %w", err)
			}
			res.Updated += n
			s.logger.DebugContext(ctx, "stored fingerprint batch",
				logging.Source(source),
				logging.Count(n),
			)
			if n == 0 {
				break
			}
		}
		if len(rows) < limit {
			break
		}
	}

	res.Skipped = len(skipped)
	s.logger.InfoContext(ctx, "fingerprint backfill finished",
		logging.Source(source),
		"updated", res.Updated,
		"skipped", res.Skipped,
	)
	return res, nil
}
