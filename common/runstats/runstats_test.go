package runstats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func sampleRun(id string, startedAt time.Time) Run {
	return Run{
		RunID:               id,
		Source:              "google_sheets",
		StartedAt:           startedAt,
		RecordsFound:        100,
		RecordsNormalized:   99,
		NormalizationErrors: 1,
		RecordsUpserted:     98,
		RecordsFailed:       1,
		Bytes:               20480,
		DurationMS:          1234,
		ErrorRate:           0.01,
	}
}

func TestRecordAndLatest(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	stats := NewClientFromRedis(client)
	ctx := context.Background()
	started := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, stats.Record(ctx, sampleRun("run-1", started)))
	second := sampleRun("run-2", started.Add(time.Hour))
	second.TestMode = true
	second.RecordsFound = 3
	require.NoError(t, stats.Record(ctx, second))

	latest, err := stats.Latest(ctx, "google_sheets")
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
	assert.True(t, latest.TestMode)
	assert.Equal(t, int64(3), latest.RecordsFound)
	assert.Equal(t, int64(98), latest.RecordsUpserted)
	assert.Equal(t, int64(20480), latest.Bytes)
	assert.InDelta(t, 0.01, latest.ErrorRate, 1e-9)
	assert.True(t, started.Add(time.Hour).Equal(latest.StartedAt))
}

func TestLatest_NoRuns(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	_, err := NewClientFromRedis(client).Latest(context.Background(), "vk_ads")
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestRecord_RequiresSource(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	err := NewClientFromRedis(client).Record(context.Background(), Run{RunID: "x"})
	assert.Error(t, err)
}

func TestHistory_NewestFirstAndCapped(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	stats := NewClientFromRedis(client)
	stats.historySize = 3
	ctx := context.Background()
	started := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, stats.Record(ctx, sampleRun(id, started)))
	}

	runs, err := stats.History(ctx, "google_sheets", 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "d", runs[0].RunID)
	assert.Equal(t, "b", runs[2].RunID)

	runs, err = stats.History(ctx, "google_sheets", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "d", runs[0].RunID)
}

func TestDaily(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	stats := NewClientFromRedis(client)
	ctx := context.Background()
	day := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

	require.NoError(t, stats.Record(ctx, sampleRun("run-1", day)))
	require.NoError(t, stats.Record(ctx, sampleRun("run-2", day.Add(2*time.Hour))))

	totals, err := stats.Daily(ctx, "google_sheets", day)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", totals.Day)
	assert.Equal(t, int64(2), totals.Runs)
	assert.Equal(t, int64(200), totals.RecordsFound)
	assert.Equal(t, int64(196), totals.RecordsUpserted)
	assert.Equal(t, int64(4), totals.Errors)

	ttl := mr.TTL(dailyKey("google_sheets", day))
	assert.Equal(t, dailyTTL, ttl)

	empty, err := stats.Daily(ctx, "google_sheets", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, empty.Runs)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("not-a-redis-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestNewClient_FromURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	stats, err := NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	defer stats.Close()

	require.NoError(t, stats.Record(context.Background(), sampleRun("run-1", time.Now())))
}
