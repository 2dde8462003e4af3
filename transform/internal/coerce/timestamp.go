// Package coerce turns loosely typed cell values into typed staging values.
//
// Every function is total: malformed input yields ok == false ("absent"),
// never an error or panic. Callers decide whether absence is worth logging.
package coerce

import (
	"strings"
	"time"

	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// isoLayouts cover the ISO-8601 shapes seen in exports, with and without an
// offset. Layouts without a zone parse as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102T150405Z0700",
	"20060102T150405",
	"20060102",
	"2006-01",
}

// localLayouts are tried after ISO-8601, in order. Month-first US dates are
// preferred over day-first when both readings are valid.
var localLayouts = []string{
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
	"2006-01-02",
	"1/2/2006",
	"2/1/2006",
}

// Timestamp parses a cell into a UTC instant. Numbers are read by their
// literal text, so a compact date such as 20230716 stored as a number parses.
func Timestamp(v payload.Value) (time.Time, bool) {
	switch v.Kind() {
	case payload.KindString:
		s, _ := v.Str()
		return ParseTimestamp(s)
	case payload.KindNumber:
		lit, _ := v.Literal()
		return ParseTimestamp(lit)
	case payload.KindNull, payload.KindBool, payload.KindObject, payload.KindArray:
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// ParseTimestamp parses text into a UTC instant.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// UTC normalizes an already typed instant. A zero time stays zero.
func UTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
