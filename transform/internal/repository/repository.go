// Package repository persists raw and staging records in PostgreSQL or SQLite.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
)

// ErrUnavailable marks connection-level failures: the pool is closed, a
// connection could not be acquired in time, or the context ended. Every
// other write error belongs to the records being written.
var ErrUnavailable = errors.New("database unavailable")

// Database types.
const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// RawStore reads and writes the raw layer.
type RawStore interface {
	// FetchPending returns rows of source whose fingerprint has no staging
	// record, ordered by received time then id. limit <= 0 means no limit.
	FetchPending(ctx context.Context, source string, limit int) ([]models.RawRow, error)
	// InsertRaw inserts records, skipping IDs that already exist, and
	// returns the number of rows inserted.
	InsertRaw(ctx context.Context, records []models.RawRecord) (int, error)
	// MissingFingerprints returns rows of source stored without a fingerprint.
	MissingFingerprints(ctx context.Context, source string, limit int) ([]models.RawRow, error)
	// SetFingerprints fills in missing fingerprints keyed by raw id. Rows that
	// already carry one are left alone.
	SetFingerprints(ctx context.Context, fingerprints map[string]string) (int, error)
	FingerprintStats(ctx context.Context, source string) (*models.FingerprintStats, error)
}

// StagingStore writes the staging layer.
type StagingStore interface {
	// UpsertAll writes records in one transaction: all of them or none.
	UpsertAll(ctx context.Context, records []*models.StagingRecord) error
	// UpsertOne writes a single record in its own transaction.
	UpsertOne(ctx context.Context, record *models.StagingRecord) error
	// ListStaging returns staging records ordered by payment date, newest
	// first with missing dates last. limit <= 0 means no limit.
	ListStaging(ctx context.Context, limit int) ([]*models.StagingRecord, error)
}

// Store is a complete storage backend.
type Store interface {
	RawStore
	StagingStore
	Ping(ctx context.Context) error
	Close()
}

// Options selects and sizes a storage backend.
type Options struct {
	Type           string
	URL            string // postgres connection string
	Path           string // sqlite database file
	MinConns       int32
	MaxConns       int32
	AcquireTimeout time.Duration
}

// Open connects to the backend named by opts.Type.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Type) {
	case TypePostgres, "postgresql", "":
		return NewPostgres(ctx, opts)
	case TypeSQLite:
		return NewSQLite(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported database type %q", opts.Type)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// upsertSQL builds the staging upsert statement. Every column except the
// primary key is overwritten on conflict.
func upsertSQL(table string, placeholder func(int) string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(models.StagingColumns, ", "))
	b.WriteString(") VALUES (")
	for i := range models.StagingColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholder(i + 1))
	}
	b.WriteString(") ON CONFLICT (")
	b.WriteString(models.ColRawID)
	b.WriteString(") DO UPDATE SET ")
	first := true
	for _, col := range models.StagingColumns {
		if col == models.ColRawID {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(col)
		b.WriteString(" = excluded.")
		b.WriteString(col)
	}
	return b.String()
}

func selectStagingSQL(table string) string {
	return "SELECT " + strings.Join(models.StagingColumns, ", ") + " FROM " + table
}
