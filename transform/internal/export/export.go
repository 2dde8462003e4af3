// Package export writes staging records as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// TimeLayout formats timestamp cells.
const TimeLayout = time.RFC3339

// WriteCSV writes a header row of models.StagingColumns followed by one row
// per record. Absent values are empty cells.
func WriteCSV(w io.Writer, records []*models.StagingRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.StagingColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(models.StagingColumns))
	for _, rec := range records {
		for i, v := range rec.Values() {
			row[i] = cell(v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", rec.RawID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case *int64:
		if x == nil {
			return ""
		}
		return strconv.FormatInt(*x, 10)
	case time.Time:
		return x.UTC().Format(TimeLayout)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.UTC().Format(TimeLayout)
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.String()
	case payload.Object:
		return string(payload.CanonicalJSON(x))
	default:
		return ""
	}
}
