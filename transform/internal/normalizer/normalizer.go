// Package normalizer maps loosely typed raw rows onto the typed staging schema.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/coerce"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fields"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fingerprint"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

var (
	// ErrNotObject is returned for a payload whose top level is not an object.
	ErrNotObject = errors.New("payload is not an object")

	// ErrNestedValue is returned when a canonical scalar field holds an
	// object or array.
	ErrNestedValue = errors.New("nested value in scalar field")
)

// financialTypes are the `type` values that must carry a ruble total.
var financialTypes = []string{"Доход", "Расход", "Income", "Expense"}

// Input is one raw row to normalize.
type Input struct {
	RawID          string
	SheetRowNumber *int64
	ReceivedAt     time.Time
	Payload        payload.Value
	SourceType     string
	// Fingerprint is the stored raw fingerprint. It is computed from
	// Payload when empty.
	Fingerprint string
}

// Normalizer converts raw rows into staging records.
type Normalizer struct {
	policy coerce.Policy
	logger *logging.Logger
}

// New creates a normalizer with the given numeric coercion policy.
func New(policy coerce.Policy, logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Normalizer{policy: policy, logger: logger}
}

// Normalize maps one row. Unparseable scalars become absent fields; only an
// unexpected payload shape is an error.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (*models.StagingRecord, error) {
	row, ok := in.Payload.Object()
	if !ok {
		return nil, fmt.Errorf("raw_id %s: %w (got %s)", in.RawID, ErrNotObject, in.Payload.Kind())
	}

	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = models.DefaultSourceType
	}
	fp := in.Fingerprint
	if fp == "" {
		fp = fingerprint.Compute(row)
	}

	rec := &models.StagingRecord{
		RawID:          in.RawID,
		SheetRowNumber: in.SheetRowNumber,
		ReceivedAt:     coerce.UTC(in.ReceivedAt),
		SourceType:     sourceType,
		Fingerprint:    fp,
		RawPayload:     row,
	}

	ix := fields.NewIndex(row)
	for _, f := range fields.Canonical {
		v, found := ix.Resolve(f.Aliases)
		if !found || v.IsNull() {
			continue
		}
		if !v.IsScalar() {
			return nil, fmt.Errorf("raw_id %s field %s: %w (got %s)", in.RawID, f.Column, ErrNestedValue, v.Kind())
		}
		n.assign(ctx, rec, f, v)
	}

	n.checkQuality(ctx, rec)
	return rec, nil
}

func (n *Normalizer) assign(ctx context.Context, rec *models.StagingRecord, f fields.FieldInfo, v payload.Value) {
	switch f.Kind {
	case fields.KindText:
		s, _ := v.Text()
		*rec.TextField(f.Column) = &s
	case fields.KindTimestamp:
		if t, ok := coerce.Timestamp(v); ok {
			*rec.TimestampField(f.Column) = &t
			return
		}
		n.unparsed(ctx, rec, f, v)
	case fields.KindInteger:
		if i, ok := n.policy.Integer(v); ok {
			*rec.IntegerField(f.Column) = &i
			return
		}
		n.unparsed(ctx, rec, f, v)
	case fields.KindDecimal:
		if d, ok := n.policy.Decimal(v); ok {
			*rec.DecimalField(f.Column) = &d
			return
		}
		n.unparsed(ctx, rec, f, v)
	}
}

func (n *Normalizer) unparsed(ctx context.Context, rec *models.StagingRecord, f fields.FieldInfo, v payload.Value) {
	text, _ := v.Text()
	if strings.TrimSpace(text) == "" {
		return
	}
	n.logger.DebugContext(ctx, "could not coerce value",
		logging.RawID(rec.RawID),
		logging.Field(f.Column),
		logging.Value(text),
		"kind", f.Kind.String(),
	)
}

func (n *Normalizer) checkQuality(ctx context.Context, rec *models.StagingRecord) {
	if rec.Type != nil && rec.TotalRub == nil && isFinancial(*rec.Type) {
		attrs := []any{logging.RawID(rec.RawID), "type", *rec.Type}
		if rec.SheetRowNumber != nil {
			attrs = append(attrs, logging.RowNumber(*rec.SheetRowNumber))
		}
		n.logger.WarnContext(ctx, "financial record has no total_rub", attrs...)
	}
	if rec.Date == nil && rec.PaymentDate == nil {
		n.logger.DebugContext(ctx, "record has neither date nor payment_date", logging.RawID(rec.RawID))
	}
}

func isFinancial(recordType string) bool {
	recordType = strings.TrimSpace(recordType)
	for _, t := range financialTypes {
		if strings.EqualFold(recordType, t) {
			return true
		}
	}
	return false
}
