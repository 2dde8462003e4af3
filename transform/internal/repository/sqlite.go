package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"

	"github.com/riliasov/chilekids-etl-pipeline/common/database"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

const sqliteStagingTable = "staging_records"

// SQLite stores both layers in a single SQLite file. It mirrors Postgres
// with raw.data as raw_data and staging.records as staging_records.
type SQLite struct {
	db             *sql.DB
	acquireTimeout time.Duration
	upsertSQL      string
	selectSQL      string
}

// NewSQLite opens the database file named by opts.Path.
func NewSQLite(ctx context.Context, opts Options) (*SQLite, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite database path is required")
	}
	db, err := database.OpenSQLite(ctx, opts.Path, int(opts.MaxConns))
	if err != nil {
		return nil, err
	}
	return NewSQLiteWithDB(db, opts.AcquireTimeout), nil
}

// NewSQLiteWithDB wraps an open handle. The store takes ownership of it.
func NewSQLiteWithDB(db *sql.DB, acquireTimeout time.Duration) *SQLite {
	if acquireTimeout <= 0 {
		acquireTimeout = database.DefaultAcquireTimeout
	}
	return &SQLite{
		db:             db,
		acquireTimeout: acquireTimeout,
		upsertSQL:      upsertSQL(sqliteStagingTable, func(int) string { return "?" }),
		selectSQL:      selectStagingSQL(sqliteStagingTable),
	}
}

func (r *SQLite) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("failed to ping database", err)
	}
	return nil
}

func (r *SQLite) Close() {
	_ = r.db.Close()
}

func (r *SQLite) conn(ctx context.Context) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()
	conn, err := r.db.Conn(actx)
	if err != nil {
		return nil, unavailable("failed to acquire connection", err)
	}
	return conn, nil
}

// classifySQLite keeps engine errors as record errors.
func classifySQLite(ctx context.Context, op string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (r *SQLite) FetchPending(ctx context.Context, source string, limit int) ([]models.RawRow, error) {
	query := `
		SELECT r.id, r.extracted_at, r.payload, COALESCE(r.payload_hash, '')
		FROM raw_data r
		LEFT JOIN staging_records s ON s.payload_hash = r.payload_hash
		WHERE r.source = ? AND s.payload_hash IS NULL
		ORDER BY r.extracted_at, r.id
		LIMIT ?
	`
	return r.queryRaw(ctx, query, source, sqliteLimit(limit))
}

func (r *SQLite) MissingFingerprints(ctx context.Context, source string, limit int) ([]models.RawRow, error) {
	query := `
		SELECT id, extracted_at, payload, ''
		FROM raw_data
		WHERE source = ? AND (payload_hash IS NULL OR payload_hash = '')
		ORDER BY extracted_at, id
		LIMIT ?
	`
	return r.queryRaw(ctx, query, source, sqliteLimit(limit))
}

func (r *SQLite) queryRaw(ctx context.Context, query string, args ...any) ([]models.RawRow, error) {
	ctx, cancel := database.ScanContext(ctx)
	defer cancel()

	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLite(ctx, "failed to query raw rows", err)
	}
	defer rows.Close()

	var out []models.RawRow
	for rows.Next() {
		var row models.RawRow
		var data string
		if err := rows.Scan(&row.ID, timeScanner{dst: &row.ReceivedAt}, &data, &row.Fingerprint); err != nil {
			return nil, fmt.Errorf("failed to scan raw row: %w", err)
		}
		row.Payload = []byte(data)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite(ctx, "failed to iterate raw rows", err)
	}
	return out, nil
}

func (r *SQLite) InsertRaw(ctx context.Context, records []models.RawRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO raw_data (id, source, payload, payload_hash, extracted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	inserted := 0
	err := r.inTx(ctx, database.BulkContext, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return classifySQLite(ctx, "failed to prepare raw insert", err)
		}
		defer stmt.Close()

		for _, rec := range prepareRaw(records) {
			res, err := stmt.ExecContext(ctx, rec.ID, rec.Source, string(payload.CanonicalJSON(rec.Payload)),
				rec.Fingerprint, formatSQLiteTime(rec.ReceivedAt))
			if err != nil {
				return classifySQLite(ctx, "failed to insert raw row "+rec.ID, err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *SQLite) SetFingerprints(ctx context.Context, fingerprints map[string]string) (int, error) {
	if len(fingerprints) == 0 {
		return 0, nil
	}
	query := `UPDATE raw_data SET payload_hash = ? WHERE id = ? AND (payload_hash IS NULL OR payload_hash = '')`

	updated := 0
	err := r.inTx(ctx, database.BulkContext, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return classifySQLite(ctx, "failed to prepare fingerprint update", err)
		}
		defer stmt.Close()

		for id, fp := range fingerprints {
			res, err := stmt.ExecContext(ctx, fp, id)
			if err != nil {
				return classifySQLite(ctx, "failed to update fingerprint of "+id, err)
			}
			n, _ := res.RowsAffected()
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (r *SQLite) FingerprintStats(ctx context.Context, source string) (*models.FingerprintStats, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN payload_hash IS NOT NULL AND payload_hash <> '' THEN 1 ELSE 0 END), 0)
		FROM raw_data
		WHERE source = ?
	`
	stats := &models.FingerprintStats{Source: source}
	if err := conn.QueryRowContext(ctx, query, source).Scan(&stats.Total, &stats.Filled); err != nil {
		return nil, classifySQLite(ctx, "failed to count fingerprints", err)
	}
	stats.Missing = stats.Total - stats.Filled
	return stats, nil
}

func (r *SQLite) UpsertAll(ctx context.Context, records []*models.StagingRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.upsert(ctx, database.BulkContext, records)
}

func (r *SQLite) UpsertOne(ctx context.Context, record *models.StagingRecord) error {
	return r.upsert(ctx, database.WriteContext, []*models.StagingRecord{record})
}

func (r *SQLite) upsert(ctx context.Context, timeout timeoutFunc, records []*models.StagingRecord) error {
	return r.inTx(ctx, timeout, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.upsertSQL)
		if err != nil {
			return classifySQLite(ctx, "failed to prepare staging upsert", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, sqliteArgs(rec)...); err != nil {
				return classifySQLite(ctx, "failed to upsert raw_id "+rec.RawID, err)
			}
		}
		return nil
	})
}

func (r *SQLite) ListStaging(ctx context.Context, limit int) ([]*models.StagingRecord, error) {
	ctx, cancel := database.ScanContext(ctx)
	defer cancel()

	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := r.selectSQL + " ORDER BY payment_date DESC NULLS LAST, raw_id LIMIT ?"
	rows, err := conn.QueryContext(ctx, query, sqliteLimit(limit))
	if err != nil {
		return nil, classifySQLite(ctx, "failed to query staging records", err)
	}
	defer rows.Close()

	var out []*models.StagingRecord
	for rows.Next() {
		rec := &models.StagingRecord{}
		if err := rows.Scan(scanTargets(rec, true)...); err != nil {
			return nil, fmt.Errorf("failed to scan staging record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite(ctx, "failed to iterate staging records", err)
	}
	return out, nil
}

type timeoutFunc func(context.Context) (context.Context, context.CancelFunc)

// inTx runs fn in a transaction on a dedicated connection and commits when
// fn succeeds.
func (r *SQLite) inTx(ctx context.Context, timeout timeoutFunc, fn func(context.Context, *sql.Tx) error) error {
	ctx, cancel := timeout(ctx)
	defer cancel()

	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classifySQLite(ctx, "failed to commit transaction", err)
	}
	return nil
}
