package models_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fields"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

func TestStagingColumns_CoverEveryCanonicalField(t *testing.T) {
	index := make(map[string]int, len(models.StagingColumns))
	for i, col := range models.StagingColumns {
		_, dup := index[col]
		assert.False(t, dup, "duplicate column %s", col)
		index[col] = i
	}

	for _, f := range fields.Canonical {
		_, ok := index[f.Column]
		assert.True(t, ok, "column %s missing from StagingColumns", f.Column)
	}
	assert.Len(t, models.StagingColumns, len(fields.Canonical)+6)
}

func TestPointersAndValues_Aligned(t *testing.T) {
	var r models.StagingRecord
	assert.Len(t, r.Pointers(), len(models.StagingColumns))
	assert.Len(t, r.Values(), len(models.StagingColumns))
}

func TestFieldSlots_CoverTable(t *testing.T) {
	var r models.StagingRecord

	for _, f := range fields.Canonical {
		t.Run(f.Column, func(t *testing.T) {
			switch f.Kind {
			case fields.KindText:
				assert.NotNil(t, r.TextField(f.Column))
			case fields.KindTimestamp:
				assert.NotNil(t, r.TimestampField(f.Column))
			case fields.KindInteger:
				assert.NotNil(t, r.IntegerField(f.Column))
			case fields.KindDecimal:
				assert.NotNil(t, r.DecimalField(f.Column))
			default:
				t.Fatalf("unhandled kind %s", f.Kind)
			}
		})
	}

	assert.Nil(t, r.TextField("nope"))
	assert.Nil(t, r.TimestampField(fields.Task))
	assert.Nil(t, r.IntegerField(fields.Hours))
	assert.Nil(t, r.DecimalField(fields.Year))
}

func TestValues_FollowColumns(t *testing.T) {
	total := decimal.RequireFromString("1234.56")
	year := int64(2023)
	client := "Иванов"
	received := time.Date(2023, 7, 20, 0, 0, 0, 0, time.UTC)

	r := models.StagingRecord{
		RawID:       "gsheet_2_abc",
		ReceivedAt:  received,
		SourceType:  models.DefaultSourceType,
		Client:      &client,
		Year:        &year,
		TotalRub:    &total,
		Fingerprint: "608de49a4600dbb5b173492759792e4a",
		RawPayload:  payload.Object{"Client": payload.String(client)},
	}

	byColumn := make(map[string]any)
	for i, v := range r.Values() {
		byColumn[models.StagingColumns[i]] = v
	}

	assert.Equal(t, "gsheet_2_abc", byColumn[models.ColRawID])
	assert.Equal(t, received, byColumn[models.ColReceivedAt])
	assert.Equal(t, &client, byColumn[fields.Client])
	assert.Equal(t, &year, byColumn[fields.Year])
	assert.Equal(t, &total, byColumn[fields.TotalRub])
	assert.Equal(t, "608de49a4600dbb5b173492759792e4a", byColumn[models.ColFingerprint])

	raw, ok := byColumn[models.ColRawPayload].(payload.Object)
	require.True(t, ok)
	assert.True(t, r.RawPayload.Equal(raw))

	absent, ok := byColumn[fields.TotalUsd].(*decimal.Decimal)
	require.True(t, ok)
	assert.Nil(t, absent)
}

func TestSheetRowID(t *testing.T) {
	id := models.SheetRowID(42, "a1b2c3d4e5f6")
	assert.Equal(t, "gsheet_42_a1b2c3d4e5f6", id)

	row := models.SheetRowFromID(id)
	require.NotNil(t, row)
	assert.Equal(t, int64(42), *row)

	for _, id := range []string{"42", "gsheet_", "gsheet_x_abc", "gsheet_-1_abc", "gsheet_7", "pk-100"} {
		assert.Nil(t, models.SheetRowFromID(id), id)
	}
}
