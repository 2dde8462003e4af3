package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across commands.
const (
	FieldService   = "service"
	FieldRunID     = "run_id"
	FieldSource    = "source"
	FieldRawID     = "raw_id"
	FieldRowNumber = "sheet_row_number"
	FieldBatch     = "batch"
	FieldCount     = "count"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldField     = "field"
	FieldValue     = "value"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RunID returns a slog attribute for the pipeline run ID.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// Source returns a slog attribute for the raw source name.
func Source(name string) slog.Attr {
	return slog.String(FieldSource, name)
}

// RawID returns a slog attribute for a raw record ID.
func RawID(id string) slog.Attr {
	return slog.String(FieldRawID, id)
}

// RowNumber returns a slog attribute for the spreadsheet row number.
func RowNumber(n int64) slog.Attr {
	return slog.Int64(FieldRowNumber, n)
}

// Batch returns a slog attribute for a 1-based batch index.
func Batch(n int) slog.Attr {
	return slog.Int(FieldBatch, n)
}

// Count returns a slog attribute for a record count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Field returns a slog attribute naming a canonical staging field.
func Field(name string) slog.Attr {
	return slog.String(FieldField, name)
}

// Value returns a slog attribute for an offending input value.
func Value(v string) slog.Attr {
	return slog.String(FieldValue, v)
}
