package loader_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/loader"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/repository"
)

var errConstraint = errors.New("violates check constraint")

// fakeStagingStore rejects any transaction that contains a record listed in
// bad, all or nothing, like a real database.
type fakeStagingStore struct {
	mu          sync.Mutex
	bad         map[string]error
	rows        map[string]*models.StagingRecord
	allCalls    int
	oneCalls    int
	unavailable bool
}

func newFakeStore(bad ...string) *fakeStagingStore {
	s := &fakeStagingStore{bad: make(map[string]error), rows: make(map[string]*models.StagingRecord)}
	for _, id := range bad {
		s.bad[id] = errConstraint
	}
	return s
}

func (s *fakeStagingStore) write(records []*models.StagingRecord) error {
	if s.unavailable {
		return fmt.Errorf("failed to acquire connection: %w", repository.ErrUnavailable)
	}
	for _, rec := range records {
		if err := s.bad[rec.RawID]; err != nil {
			return fmt.Errorf("failed to upsert raw_id %s: %w", rec.RawID, err)
		}
	}
	for _, rec := range records {
		s.rows[rec.RawID] = rec
	}
	return nil
}

func (s *fakeStagingStore) UpsertAll(_ context.Context, records []*models.StagingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allCalls++
	return s.write(records)
}

func (s *fakeStagingStore) UpsertOne(_ context.Context, record *models.StagingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oneCalls++
	return s.write([]*models.StagingRecord{record})
}

func (s *fakeStagingStore) ListStaging(context.Context, int) ([]*models.StagingRecord, error) {
	return nil, nil
}

func records(n int) []*models.StagingRecord {
	out := make([]*models.StagingRecord, n)
	for i := range out {
		out[i] = &models.StagingRecord{RawID: fmt.Sprintf("raw-%02d", i+1), SourceType: models.DefaultSourceType}
	}
	return out
}

func TestUpsertBatch_AllSucceed(t *testing.T) {
	store := newFakeStore()
	res, err := loader.New(store, logging.Discard()).UpsertBatch(context.Background(), records(25), 10)
	require.NoError(t, err)

	assert.Equal(t, loader.Result{Succeeded: 25}, res)
	assert.Equal(t, 3, store.allCalls)
	assert.Equal(t, 0, store.oneCalls)
	assert.Len(t, store.rows, 25)
}

// A chunk of ten with one bad record falls back to row-by-row writes: nine
// records land and the bad one is reported.
func TestUpsertBatch_FallbackIsolatesBadRecord(t *testing.T) {
	var buf bytes.Buffer
	store := newFakeStore("raw-04")

	res, err := loader.New(store, logging.NewWithWriter(&buf, slog.LevelDebug, "json")).
		UpsertBatch(context.Background(), records(10), 10)
	require.NoError(t, err)

	assert.Equal(t, 9, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"raw-04"}, res.FailedIDs)
	assert.Equal(t, 1, store.allCalls)
	assert.Equal(t, 10, store.oneCalls)
	assert.Len(t, store.rows, 9)
	assert.NotContains(t, store.rows, "raw-04")

	assert.Contains(t, buf.String(), "chunk upsert failed, retrying row by row")
	assert.Contains(t, buf.String(), `"raw_id":"raw-04"`)
}

func TestUpsertBatch_FallbackOnlyForFailedChunk(t *testing.T) {
	store := newFakeStore("raw-15")

	res, err := loader.New(store, logging.Discard()).UpsertBatch(context.Background(), records(30), 10)
	require.NoError(t, err)

	assert.Equal(t, 29, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, store.allCalls)
	assert.Equal(t, 10, store.oneCalls)
}

func TestUpsertBatch_BatchSizes(t *testing.T) {
	testCases := []struct {
		name      string
		count     int
		batchSize int
		wantCalls int
	}{
		{name: "empty input", count: 0, batchSize: 10, wantCalls: 0},
		{name: "exact multiple", count: 20, batchSize: 10, wantCalls: 2},
		{name: "one per chunk", count: 3, batchSize: 1, wantCalls: 3},
		{name: "default size", count: 5, batchSize: 0, wantCalls: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			res, err := loader.New(store, logging.Discard()).UpsertBatch(context.Background(), records(tc.count), tc.batchSize)
			require.NoError(t, err)
			assert.Equal(t, tc.count, res.Succeeded)
			assert.Equal(t, tc.wantCalls, store.allCalls)
		})
	}
}

func TestUpsertBatch_UnavailablePropagates(t *testing.T) {
	store := newFakeStore()
	store.unavailable = true

	res, err := loader.New(store, logging.Discard()).UpsertBatch(context.Background(), records(5), 2)
	assert.ErrorIs(t, err, repository.ErrUnavailable)
	assert.Equal(t, 0, res.Succeeded)
	assert.Equal(t, 0, store.oneCalls)
}

func TestUpsertBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeStore()
	_, err := loader.New(store, logging.Discard()).UpsertBatch(ctx, records(5), 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.allCalls)
}

func TestUpsertBatch_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	up := loader.New(store, logging.Discard())
	recs := records(7)

	_, err := up.UpsertBatch(context.Background(), recs, 3)
	require.NoError(t, err)
	res, err := up.UpsertBatch(context.Background(), recs, 3)
	require.NoError(t, err)

	assert.Equal(t, 7, res.Succeeded)
	assert.Len(t, store.rows, 7)
}
