package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riliasov/chilekids-etl-pipeline/common/database"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fields"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fingerprint"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

const (
	postgresStagingTable = "staging.records"

	// insertChunkSize bounds the statements queued in one pgx batch.
	insertChunkSize = 1000
)

// Postgres stores both layers in PostgreSQL through a pgx pool.
type Postgres struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	upsertSQL      string
	selectSQL      string
}

// NewPostgres creates the pool described by opts.
func NewPostgres(ctx context.Context, opts Options) (*Postgres, error) {
	pool, err := database.NewPostgresPool(ctx, database.PoolConfig{
		URL:            opts.URL,
		MinConns:       opts.MinConns,
		MaxConns:       opts.MaxConns,
		AcquireTimeout: opts.AcquireTimeout,
	})
	if err != nil {
		return nil, err
	}
	return NewPostgresWithPool(pool, opts.AcquireTimeout), nil
}

// NewPostgresWithPool wraps an existing pool. The store takes ownership of it.
func NewPostgresWithPool(pool *pgxpool.Pool, acquireTimeout time.Duration) *Postgres {
	if acquireTimeout <= 0 {
		acquireTimeout = database.DefaultAcquireTimeout
	}
	return &Postgres{
		pool:           pool,
		acquireTimeout: acquireTimeout,
		upsertSQL: upsertSQL(postgresStagingTable, func(i int) string {
			return "$" + strconv.Itoa(i)
		}),
		selectSQL: postgresSelectStaging(),
	}
}

// postgresSelectStaging reads numeric and JSONB columns as text so that
// decimals keep their exact digits.
func postgresSelectStaging() string {
	cols := make([]string, len(models.StagingColumns))
	for i, col := range models.StagingColumns {
		cols[i] = col
		if col == models.ColRawPayload {
			cols[i] = col + "::text"
		} else if f, ok := fields.Lookup(col); ok && f.Kind == fields.KindDecimal {
			cols[i] = col + "::text"
		}
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + postgresStagingTable
}

func (r *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return unavailable("failed to ping database", err)
	}
	return nil
}

func (r *Postgres) Close() {
	r.pool.Close()
}

func (r *Postgres) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()
	conn, err := r.pool.Acquire(actx)
	if err != nil {
		return nil, unavailable("failed to acquire connection", err)
	}
	return conn, nil
}

// classify keeps server-side errors as record errors and marks everything
// that left the connection unusable as ErrUnavailable.
func classify(ctx context.Context, conn *pgxpool.Conn, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ctx.Err() != nil || conn.Conn().IsClosed() || pgconn.Timeout(err) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return int64(limit)
}

// FetchPending returns rows of source whose fingerprint has no staging record.
func (r *Postgres) FetchPending(ctx context.Context, source string, limit int) ([]models.RawRow, error) {
	query := `
		SELECT r.id, r.extracted_at, r.payload::text, COALESCE(r.payload_hash, '')
		FROM raw.data r
		LEFT JOIN staging.records s ON s.payload_hash = r.payload_hash
		WHERE r.source = $1 AND s.payload_hash IS NULL
		ORDER BY r.extracted_at, r.id
		LIMIT $2
	`
	return r.queryRaw(ctx, query, source, limitArg(limit))
}

// MissingFingerprints returns rows of source stored without a fingerprint.
func (r *Postgres) MissingFingerprints(ctx context.Context, source string, limit int) ([]models.RawRow, error) {
	query := `
		SELECT id, extracted_at, payload::text, ''
		FROM raw.data
		WHERE source = $1 AND (payload_hash IS NULL OR payload_hash = '')
		ORDER BY extracted_at, id
		LIMIT $2
	`
	return r.queryRaw(ctx, query, source, limitArg(limit))
}

func (r *Postgres) queryRaw(ctx context.Context, query string, args ...any) ([]models.RawRow, error) {
	ctx, cancel := database.ScanContext(ctx)
	defer cancel()

	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(ctx, conn, "failed to query raw rows", err)
	}
	defer rows.Close()

	var out []models.RawRow
	for rows.Next() {
		var row models.RawRow
		if err := rows.Scan(&row.ID, &row.ReceivedAt, &row.Payload, &row.Fingerprint); err != nil {
			return nil, fmt.Errorf("failed to scan raw row: %w", err)
		}
		row.ReceivedAt = row.ReceivedAt.UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, conn, "failed to iterate raw rows", err)
	}
	return out, nil
}

// InsertRaw inserts records, skipping IDs that already exist.
func (r *Postgres) InsertRaw(ctx context.Context, records []models.RawRecord) (int, error) {
	query := `
		INSERT INTO raw.data (id, source, payload, payload_hash, extracted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	inserted := 0
	for start := 0; start < len(records); start += insertChunkSize {
		end := min(start+insertChunkSize, len(records))
		n, err := r.insertChunk(ctx, query, records[start:end])
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (r *Postgres) insertChunk(ctx context.Context, query string, records []models.RawRecord) (int, error) {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	conn, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, unavailable("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range prepareRaw(records) {
		batch.Queue(query, rec.ID, rec.Source, payload.CanonicalJSON(rec.Payload), rec.Fingerprint, rec.ReceivedAt)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for _, rec := range records {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, classify(ctx, conn, "failed to insert raw row "+rec.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, classify(ctx, conn, "failed to insert raw rows", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classify(ctx, conn, "failed to commit raw rows", err)
	}
	return inserted, nil
}

// prepareRaw fills in defaults: source, fingerprint and receive time.
func prepareRaw(records []models.RawRecord) []models.RawRecord {
	now := time.Now().UTC()
	out := make([]models.RawRecord, len(records))
	for i, rec := range records {
		if rec.Source == "" {
			rec.Source = models.DefaultSource
		}
		if rec.Fingerprint == "" {
			rec.Fingerprint = fingerprint.Compute(rec.Payload)
		}
		if rec.ReceivedAt.IsZero() {
			rec.ReceivedAt = now
		}
		rec.ReceivedAt = rec.ReceivedAt.UTC()
		out[i] = rec
	}
	return out
}

// SetFingerprints fills in missing fingerprints keyed by raw id.
func (r *Postgres) SetFingerprints(ctx context.Context, fingerprints map[string]string) (int, error) {
	if len(fingerprints) == 0 {
		return 0, nil
	}
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	conn, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, unavailable("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `UPDATE raw.data SET payload_hash = $2 WHERE id = $1 AND (payload_hash IS NULL OR payload_hash = '')`
	batch := &pgx.Batch{}
	for id, fp := range fingerprints {
		batch.Queue(query, id, fp)
	}

	results := tx.SendBatch(ctx, batch)
	updated := 0
	for range fingerprints {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, classify(ctx, conn, "failed to update fingerprint", err)
		}
		updated += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, classify(ctx, conn, "failed to update fingerprints", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classify(ctx, conn, "failed to commit fingerprints", err)
	}
	return updated, nil
}

// FingerprintStats counts rows of source with and without a fingerprint.
func (r *Postgres) FingerprintStats(ctx context.Context, source string) (*models.FingerprintStats, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE payload_hash IS NOT NULL AND payload_hash <> '')
		FROM raw.data
		WHERE source = $1
	`
	stats := &models.FingerprintStats{Source: source}
	if err := conn.QueryRow(ctx, query, source).Scan(&stats.Total, &stats.Filled); err != nil {
		return nil, classify(ctx, conn, "failed to count fingerprints", err)
	}
	stats.Missing = stats.Total - stats.Filled
	return stats, nil
}

// UpsertAll writes records in one transaction.
func (r *Postgres) UpsertAll(ctx context.Context, records []*models.StagingRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()
	return r.upsert(ctx, records)
}

// UpsertOne writes a single record in its own transaction.
func (r *Postgres) UpsertOne(ctx context.Context, record *models.StagingRecord) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	return r.upsert(ctx, []*models.StagingRecord{record})
}

func (r *Postgres) upsert(ctx context.Context, records []*models.StagingRecord) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(r.upsertSQL, postgresArgs(rec)...)
	}

	results := tx.SendBatch(ctx, batch)
	for _, rec := range records {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return classify(ctx, conn, "failed to upsert raw_id "+rec.RawID, err)
		}
	}
	if err := results.Close(); err != nil {
		return classify(ctx, conn, "failed to upsert staging records", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(ctx, conn, "failed to commit staging records", err)
	}
	return nil
}

// ListStaging returns staging records, latest payment date first.
func (r *Postgres) ListStaging(ctx context.Context, limit int) ([]*models.StagingRecord, error) {
	ctx, cancel := database.ScanContext(ctx)
	defer cancel()

	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := r.selectSQL + " ORDER BY payment_date DESC NULLS LAST, raw_id LIMIT $1"
	rows, err := conn.Query(ctx, query, limitArg(limit))
	if err != nil {
		return nil, classify(ctx, conn, "failed to query staging records", err)
	}
	defer rows.Close()

	var out []*models.StagingRecord
	for rows.Next() {
		rec := &models.StagingRecord{}
		if err := rows.Scan(scanTargets(rec, false)...); err != nil {
			return nil, fmt.Errorf("failed to scan staging record: %w", err)
		}
		toUTC(rec)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, conn, "failed to iterate staging records", err)
	}
	return out, nil
}

func toUTC(rec *models.StagingRecord) {
	rec.ReceivedAt = rec.ReceivedAt.UTC()
	for _, col := range fields.Columns(fields.KindTimestamp) {
		slot := rec.TimestampField(col)
		if *slot != nil {
			t := (*slot).UTC()
			*slot = &t
		}
	}
}
