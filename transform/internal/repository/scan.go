package repository

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// sqliteTimeLayout is fixed width so that text comparison orders timestamps.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

type decimalScanner struct{ dst **decimal.Decimal }

func (s decimalScanner) Scan(src any) error {
	var nd decimal.NullDecimal
	if err := nd.Scan(src); err != nil {
		return err
	}
	if !nd.Valid {
		*s.dst = nil
		return nil
	}
	d := nd.Decimal
	*s.dst = &d
	return nil
}

type timeScanner struct{ dst *time.Time }

func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.dst = v.UTC()
		return nil
	case string:
		t, err := parseSQLiteTime(v)
		if err != nil {
			return err
		}
		*s.dst = t
		return nil
	case []byte:
		return s.Scan(string(v))
	case nil:
		*s.dst = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

type nullTimeScanner struct{ dst **time.Time }

func (s nullTimeScanner) Scan(src any) error {
	if src == nil {
		*s.dst = nil
		return nil
	}
	var t time.Time
	if err := (timeScanner{dst: &t}).Scan(src); err != nil {
		return err
	}
	*s.dst = &t
	return nil
}

type payloadScanner struct{ dst *payload.Object }

func (s payloadScanner) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*s.dst = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into payload", src)
	}
	obj, err := payload.ParseObject(data)
	if err != nil {
		return err
	}
	*s.dst = obj
	return nil
}

// scanTargets returns Scan destinations for a staging row in
// models.StagingColumns order. Decimal and payload columns are read as text;
// with textTimes set timestamps are too.
func scanTargets(rec *models.StagingRecord, textTimes bool) []any {
	ptrs := rec.Pointers()
	targets := make([]any, len(ptrs))
	for i, p := range ptrs {
		switch x := p.(type) {
		case **decimal.Decimal:
			targets[i] = decimalScanner{dst: x}
		case *payload.Object:
			targets[i] = payloadScanner{dst: x}
		case *time.Time:
			if textTimes {
				targets[i] = timeScanner{dst: x}
			} else {
				targets[i] = x
			}
		case **time.Time:
			if textTimes {
				targets[i] = nullTimeScanner{dst: x}
			} else {
				targets[i] = x
			}
		default:
			targets[i] = p
		}
	}
	return targets
}

// postgresArgs converts a staging record into pgx arguments.
func postgresArgs(rec *models.StagingRecord) []any {
	values := rec.Values()
	for i, v := range values {
		switch x := v.(type) {
		case *decimal.Decimal:
			if x == nil {
				values[i] = nil
			} else {
				values[i] = pgtype.Numeric{Int: x.Coefficient(), Exp: x.Exponent(), Valid: true}
			}
		case payload.Object:
			values[i] = payload.CanonicalJSON(x)
		case time.Time:
			values[i] = x.UTC()
		}
	}
	return values
}

// sqliteArgs converts a staging record into database/sql arguments.
func sqliteArgs(rec *models.StagingRecord) []any {
	values := rec.Values()
	for i, v := range values {
		switch x := v.(type) {
		case *string:
			values[i] = nullable(x)
		case *int64:
			values[i] = nullable(x)
		case *decimal.Decimal:
			if x == nil {
				values[i] = nil
			} else {
				values[i] = x.String()
			}
		case time.Time:
			values[i] = formatSQLiteTime(x)
		case *time.Time:
			if x == nil {
				values[i] = nil
			} else {
				values[i] = formatSQLiteTime(*x)
			}
		case payload.Object:
			values[i] = string(payload.CanonicalJSON(x))
		}
	}
	return values
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
