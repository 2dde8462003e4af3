// Package rawload turns exported spreadsheet rows into raw records.
package rawload

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fingerprint"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// FirstDataRow is the sheet row of the first record; row 1 holds headers.
const FirstDataRow = 2

// idKeys are the payload keys that carry an explicit record id.
var idKeys = []string{"id", "ID", "PK"}

// ErrEmpty is returned when the input holds no rows.
var ErrEmpty = errors.New("no rows in input")

// Options control how rows become raw records.
type Options struct {
	Source     string
	ReceivedAt time.Time
	// FirstRow is the sheet row number of the first input row.
	FirstRow int64
}

// RowID returns the id of a row without an explicit id: its sheet row
// number plus a digest of its content.
func RowID(rowNumber int64, row payload.Object) string {
	sum := sha256.Sum256(payload.CanonicalJSON(row))
	return models.SheetRowID(rowNumber, hex.EncodeToString(sum[:])[:12])
}

// Read parses a JSON array of row objects, or one object per line, into raw
// records ready for insertion.
func Read(r io.Reader, opts Options) ([]models.RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	var rows []payload.Object
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, ErrEmpty
	case trimmed[0] == '[':
		rows, err = parseArray(trimmed)
	default:
		rows, err = parseLines(trimmed)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return Records(rows, opts), nil
}

// Records builds raw records from decoded rows.
func Records(rows []payload.Object, opts Options) []models.RawRecord {
	if opts.Source == "" {
		opts.Source = models.DefaultSource
	}
	if opts.ReceivedAt.IsZero() {
		opts.ReceivedAt = time.Now().UTC()
	}
	if opts.FirstRow <= 0 {
		opts.FirstRow = FirstDataRow
	}

	records := make([]models.RawRecord, len(rows))
	for i, row := range rows {
		id, ok := explicitID(row)
		if !ok {
			id = RowID(opts.FirstRow+int64(i), row)
		}
		records[i] = models.RawRecord{
			ID:          id,
			Source:      opts.Source,
			Payload:     row,
			Fingerprint: fingerprint.Compute(row),
			ReceivedAt:  opts.ReceivedAt,
		}
	}
	return records
}

func explicitID(row payload.Object) (string, bool) {
	for _, key := range idKeys {
		v, ok := row[key]
		if !ok || !v.IsScalar() {
			continue
		}
		if s, ok := v.Text(); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

func parseArray(data []byte) ([]payload.Object, error) {
	doc, err := payload.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rows: %w", err)
	}
	items, _ := doc.Items()
	rows := make([]payload.Object, 0, len(items))
	for i, item := range items {
		obj, ok := item.Object()
		if !ok {
			return nil, fmt.Errorf("row %d: %w: got %s", i+1, payload.ErrNotObject, item.Kind())
		}
		rows = append(rows, obj)
	}
	return rows, nil
}

func parseLines(data []byte) ([]payload.Object, error) {
	var rows []payload.Object
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		obj, err := payload.ParseObject(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	return rows, nil
}
