// Package changeset selects raw rows that have not been normalized yet.
//
// A raw row is pending when no staging record carries its fingerprint.
// Legacy rows stored without a fingerprint are fingerprinted here and the
// result is written back, so repeated runs converge.
package changeset

import (
	"context"
	"errors"
	"fmt"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fingerprint"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/repository"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// Selector computes change-sets over a raw store.
type Selector struct {
	store  repository.RawStore
	logger *logging.Logger
}

// New creates a selector.
func New(store repository.RawStore, logger *logging.Logger) *Selector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Selector{store: store, logger: logger}
}

// SelectChanged returns the pending rows of source ordered by received time
// then id. limit <= 0 means no limit. Rows whose stored JSON cannot be
// decoded are logged and skipped.
func (s *Selector) SelectChanged(ctx context.Context, source string, limit int) ([]models.RawRecordView, error) {
	rows, err := s.store.FetchPending(ctx, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending rows: %w", err)
	}

	views := make([]models.RawRecordView, 0, len(rows))
	repaired := make(map[string]string)
	for _, row := range rows {
		doc, err := payload.ParseDocument(row.Payload)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping raw row with undecodable payload",
				logging.Source(source),
				logging.RawID(row.ID),
				logging.Error(err),
			)
			continue
		}

		view := models.RawRecordView{
			RawID:          row.ID,
			SheetRowNumber: models.SheetRowFromID(row.ID),
			ReceivedAt:     row.ReceivedAt,
			Payload:        doc,
			Fingerprint:    row.Fingerprint,
			Size:           len(row.Payload),
		}
		if view.Fingerprint == "" {
			view.Fingerprint = fingerprint.ComputeValue(doc)
			view.Repaired = true
			repaired[row.ID] = view.Fingerprint
		}
		views = append(views, view)
	}

	if len(repaired) > 0 {
		if err := s.writeBack(ctx, source, repaired); err != nil {
			return nil, err
		}
	}

	return views, nil
}

// writeBack stores repaired fingerprints. Only an unavailable store fails
// the selection; the rows are still returned with their repaired values.
func (s *Selector) writeBack(ctx context.Context, source string, repaired map[string]string) error {
	n, err := s.store.SetFingerprints(ctx, repaired)
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			return fmt.Errorf("failed to store repaired fingerprints: %w", err)
		}
		s.logger.WarnContext(ctx, "failed to store repaired fingerprints",
			logging.Source(source),
			logging.Count(len(repaired)),
			logging.Error(err),
		)
		return nil
	}
	s.logger.InfoContext(ctx, "repaired missing fingerprints",
		logging.Source(source),
		logging.Count(n),
	)
	return nil
}
