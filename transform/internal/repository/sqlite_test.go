package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riliasov/chilekids-etl-pipeline/common/database"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fingerprint"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/repository"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// setupSQLite migrates a fresh database file and returns a store on it
// together with a second handle for direct inspection.
func setupSQLite(t *testing.T) (*repository.SQLite, *sql.DB) {
	t.Helper()

	opts := repository.Options{
		Type: repository.TypeSQLite,
		Path: filepath.Join(t.TempDir(), "sheetflow.db"),
	}
	require.NoError(t, repository.Migrate(opts, repository.MigrateUp))

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, opts.Path, 2)
	require.NoError(t, err)
	store := repository.NewSQLiteWithDB(db, time.Second)
	t.Cleanup(store.Close)

	inspect, err := database.OpenSQLite(ctx, opts.Path, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inspect.Close() })

	return store, inspect
}

func rawRecord(id string, at time.Time, row payload.Object) models.RawRecord {
	return models.RawRecord{ID: id, Source: models.DefaultSource, Payload: row, ReceivedAt: at}
}

func stagingRecord(id string, row payload.Object) *models.StagingRecord {
	total := decimal.RequireFromString("1234.56")
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	client := "ООО Ромашка"
	year := int64(2024)
	return &models.StagingRecord{
		RawID:       id,
		ReceivedAt:  time.Date(2024, 3, 16, 8, 30, 0, 123456789, time.UTC),
		SourceType:  models.DefaultSourceType,
		Date:        &date,
		Client:      &client,
		Year:        &year,
		TotalRub:    &total,
		Fingerprint: fingerprint.Compute(row),
		RawPayload:  row,
	}
}

func TestSQLite_InsertRawSkipsExistingIDs(t *testing.T) {
	store, _ := setupSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := store.InsertRaw(ctx, []models.RawRecord{
		rawRecord("a", at, payload.Object{"x": payload.Int(1)}),
		rawRecord("b", at, payload.Object{"x": payload.Int(2)}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.InsertRaw(ctx, []models.RawRecord{
		rawRecord("b", at, payload.Object{"x": payload.Int(99)}),
		rawRecord("c", at, payload.Object{"x": payload.Int(3)}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := store.FetchPending(ctx, models.DefaultSource, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.JSONEq(t, `{"x":2}`, string(rows[1].Payload))
	assert.Equal(t, fingerprint.Compute(payload.Object{"x": payload.Int(2)}), rows[1].Fingerprint)
}

func TestSQLite_FetchPendingOrderAndLimit(t *testing.T) {
	store, _ := setupSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertRaw(ctx, []models.RawRecord{
		rawRecord("r3", base.Add(2*time.Hour), payload.Object{"n": payload.Int(3)}),
		rawRecord("r2", base, payload.Object{"n": payload.Int(2)}),
		rawRecord("r1", base, payload.Object{"n": payload.Int(1)}),
		{ID: "other", Source: "bitrix24", Payload: payload.Object{"n": payload.Int(4)}, ReceivedAt: base},
	})
	require.NoError(t, err)

	testCases := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "no limit", limit: 0, want: []string{"r1", "r2", "r3"}},
		{name: "negative limit", limit: -5, want: []string{"r1", "r2", "r3"}},
		{name: "limit after ordering", limit: 2, want: []string{"r1", "r2"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := store.FetchPending(ctx, models.DefaultSource, tc.limit)
			require.NoError(t, err)
			ids := make([]string, len(rows))
			for i, r := range rows {
				ids[i] = r.ID
			}
			assert.Equal(t, tc.want, ids)
		})
	}

	rows, err := store.FetchPending(ctx, models.DefaultSource, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, base.Equal(rows[0].ReceivedAt))
}

func TestSQLite_FetchPendingExcludesStagedFingerprints(t *testing.T) {
	store, _ := setupSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	staged := payload.Object{"a": payload.Int(1)}
	duplicate := payload.Object{"a": payload.Int(1)}
	pending := payload.Object{"a": payload.Int(2)}

	_, err := store.InsertRaw(ctx, []models.RawRecord{
		rawRecord("staged", at, staged),
		rawRecord("copy", at, duplicate),
		rawRecord("pending", at, pending),
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertOne(ctx, stagingRecord("staged", staged)))

	rows, err := store.FetchPending(ctx, models.DefaultSource, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "pending", rows[0].ID)

	empty, err := store.FetchPending(ctx, "unknown_source", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_UpsertIsIdempotent(t *testing.T) {
	store, inspect := setupSQLite(t)
	ctx := context.Background()

	row := payload.Object{"Клиент": payload.String("ООО Ромашка"), "Total RUB": payload.String("1 234,56")}
	rec := stagingRecord("raw-1", row)

	require.NoError(t, store.UpsertAll(ctx, []*models.StagingRecord{rec}))
	first, err := store.ListStaging(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, store.UpsertAll(ctx, []*models.StagingRecord{rec}))
	second, err := store.ListStaging(ctx, 0)
	require.NoError(t, err)

	var count int
	require.NoError(t, inspect.QueryRow("SELECT COUNT(*) FROM staging_records").Scan(&count))
	assert.Equal(t, 1, count)
	assert.Equal(t, first, second)

	require.Len(t, second, 1)
	got := second[0]
	assert.Equal(t, "raw-1", got.RawID)
	assert.Nil(t, got.SheetRowNumber)
	assert.True(t, rec.ReceivedAt.Equal(got.ReceivedAt))
	require.NotNil(t, got.Date)
	assert.True(t, rec.Date.Equal(*got.Date))
	assert.Equal(t, "ООО Ромашка", *got.Client)
	assert.Equal(t, int64(2024), *got.Year)
	assert.Equal(t, "1234.56", got.TotalRub.String())
	assert.Nil(t, got.TotalUsd)
	assert.Nil(t, got.PaymentDate)
	assert.Equal(t, rec.Fingerprint, got.Fingerprint)
	assert.True(t, row.Equal(got.RawPayload))
}

func TestSQLite_UpsertOverwritesChangedFields(t *testing.T) {
	store, _ := setupSQLite(t)
	ctx := context.Background()

	rec := stagingRecord("raw-1", payload.Object{"v": payload.Int(1)})
	require.NoError(t, store.UpsertOne(ctx, rec))

	updated := stagingRecord("raw-1", payload.Object{"v": payload.Int(2)})
	updated.Client = nil
	require.NoError(t, store.UpsertOne(ctx, updated))

	got, err := store.ListStaging(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Client)
	assert.Equal(t, updated.Fingerprint, got[0].Fingerprint)
}

func TestSQLite_UpsertAllIsAtomic(t *testing.T) {
	store, inspect := setupSQLite(t)
	ctx := context.Background()

	_, err := inspect.Exec("CREATE UNIQUE INDEX test_unique_row ON staging_records (sheet_row_number)")
	require.NoError(t, err)

	row := int64(7)
	a := stagingRecord("a", payload.Object{"v": payload.Int(1)})
	a.SheetRowNumber = &row
	b := stagingRecord("b", payload.Object{"v": payload.Int(2)})
	b.SheetRowNumber = &row

	err = store.UpsertAll(ctx, []*models.StagingRecord{a, b})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrUnavailable)
	assert.Contains(t, err.Error(), "raw_id b")

	var count int
	require.NoError(t, inspect.QueryRow("SELECT COUNT(*) FROM staging_records").Scan(&count))
	assert.Equal(t, 0, count)

	require.NoError(t, store.UpsertOne(ctx, a))
	err = store.UpsertOne(ctx, b)
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrUnavailable)
}

func TestSQLite_ListStagingOrder(t *testing.T) {
	store, _ := setupSQLite(t)
	ctx := context.Background()

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	noDate := stagingRecord("no-date", payload.Object{"v": payload.Int(1)})
	first := stagingRecord("early", payload.Object{"v": payload.Int(2)})
	first.PaymentDate = &early
	second := stagingRecord("late", payload.Object{"v": payload.Int(3)})
	second.PaymentDate = &late

	require.NoError(t, store.UpsertAll(ctx, []*models.StagingRecord{noDate, first, second}))

	got, err := store.ListStaging(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.RawID
	}
	assert.Equal(t, []string{"late", "early", "no-date"}, ids)

	limited, err := store.ListStaging(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "late", limited[0].RawID)
}

func TestSQLite_FingerprintBackfill(t *testing.T) {
	store, inspect := setupSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertRaw(ctx, []models.RawRecord{
		rawRecord("legacy-1", at, payload.Object{"a": payload.Int(1)}),
		rawRecord("legacy-2", at, payload.Object{"a": payload.Int(2)}),
		rawRecord("modern", at, payload.Object{"a": payload.Int(3)}),
	})
	require.NoError(t, err)
	_, err = inspect.Exec("UPDATE raw_data SET payload_hash = NULL WHERE id = 'legacy-1'")
	require.NoError(t, err)
	_, err = inspect.Exec("UPDATE raw_data SET payload_hash = '' WHERE id = 'legacy-2'")
	require.NoError(t, err)

	stats, err := store.FingerprintStats(ctx, models.DefaultSource)
	require.NoError(t, err)
	assert.Equal(t, &models.FingerprintStats{Source: models.DefaultSource, Total: 3, Filled: 1, Missing: 2}, stats)

	missing, err := store.MissingFingerprints(ctx, models.DefaultSource, 0)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, "legacy-1", missing[0].ID)
	assert.Empty(t, missing[0].Fingerprint)

	fps := make(map[string]string)
	for _, row := range missing {
		fp, err := fingerprint.ComputeJSON(row.Payload)
		require.NoError(t, err)
		fps[row.ID] = fp
	}
	fps["modern"] = "ffffffffffffffffffffffffffffffff"

	updated, err := store.SetFingerprints(ctx, fps)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	stats, err = store.FingerprintStats(ctx, models.DefaultSource)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Missing)

	var modern string
	require.NoError(t, inspect.QueryRow("SELECT payload_hash FROM raw_data WHERE id = 'modern'").Scan(&modern))
	assert.Equal(t, fingerprint.Compute(payload.Object{"a": payload.Int(3)}), modern)
}

func TestSQLite_FingerprintStatsEmptySource(t *testing.T) {
	store, _ := setupSQLite(t)

	stats, err := store.FingerprintStats(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
	assert.Equal(t, int64(0), stats.Missing)
}

func TestSQLite_ClosedStoreIsUnavailable(t *testing.T) {
	store, _ := setupSQLite(t)
	store.Close()

	ctx := context.Background()
	err := store.UpsertOne(ctx, stagingRecord("a", payload.Object{}))
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	_, err = store.FetchPending(ctx, models.DefaultSource, 0)
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	assert.ErrorIs(t, store.Ping(ctx), repository.ErrUnavailable)
}

func TestSQLite_CancelledContextIsUnavailable(t *testing.T) {
	store, _ := setupSQLite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.UpsertAll(ctx, []*models.StagingRecord{stagingRecord("a", payload.Object{})})
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}

func TestMigrate_InvalidDirection(t *testing.T) {
	opts := repository.Options{Type: repository.TypeSQLite, Path: filepath.Join(t.TempDir(), "x.db")}
	for _, direction := range []string{"", "UP", "sideways"} {
		t.Run(direction, func(t *testing.T) {
			assert.Error(t, repository.Migrate(opts, direction))
		})
	}
}

func TestMigrate_UpDownUp(t *testing.T) {
	opts := repository.Options{Type: repository.TypeSQLite, Path: filepath.Join(t.TempDir(), "x.db")}

	require.NoError(t, repository.Migrate(opts, repository.MigrateUp))
	require.NoError(t, repository.Migrate(opts, repository.MigrateUp))
	require.NoError(t, repository.Migrate(opts, repository.MigrateDown))
	require.NoError(t, repository.Migrate(opts, repository.MigrateUp))
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := repository.Open(context.Background(), repository.Options{Type: "oracle"})
	assert.Error(t, err)
}

func TestOpen_SQLiteRequiresPath(t *testing.T) {
	_, err := repository.Open(context.Background(), repository.Options{Type: repository.TypeSQLite})
	assert.Error(t, err)
}
