// Package dlq keeps rows that failed normalization as JSON files for later
// inspection and replay.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// ErrDisabled is returned by read operations on a nil queue.
var ErrDisabled = errors.New("dlq not enabled")

// ErrNotFound is returned by Delete when no entry matches.
var ErrNotFound = errors.New("dlq entry not found")

// DefaultBasePath is used when no directory is configured.
const DefaultBasePath = "/var/lib/sheetflow/dlq"

// FailedRecord captures a normalization failure.
type FailedRecord struct {
	File        string        `json:"-"`
	Timestamp   time.Time     `json:"timestamp"`
	RunID       string        `json:"run_id,omitempty"`
	Source      string        `json:"source,omitempty"`
	RawID       string        `json:"raw_id"`
	ReceivedAt  time.Time     `json:"received_at"`
	Payload     payload.Value `json:"payload"`
	Error       string        `json:"error"`
	Reason      string        `json:"reason"`
	Attempts    int           `json:"attempts"`
	LastAttempt time.Time     `json:"last_attempt"`
}

// Stats describes the queue directory.
type Stats struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Written      uint64 `json:"written" yaml:"written"`
	PendingFiles int    `json:"pending_files" yaml:"pending_files"`
	BasePath     string `json:"base_path,omitempty" yaml:"base_path,omitempty"`
}

// Queue writes failed records to a directory. A nil *Queue is a disabled
// queue: Write is a no-op.
type Queue struct {
	basePath string
	logger   *logging.Logger
	mu       sync.Mutex
	written  uint64
}

// NewQueue creates a queue that writes to basePath.
func NewQueue(basePath string, logger *logging.Logger) (*Queue, error) {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if logger == nil {
		logger = logging.Default()
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}

	return &Queue{basePath: basePath, logger: logger}, nil
}

// Write records a failed row.
func (q *Queue) Write(ctx context.Context, rec FailedRecord) error {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	rec.Timestamp = now
	rec.LastAttempt = now
	if rec.Attempts == 0 {
		rec.Attempts = 1
	}

	filename := fmt.Sprintf("failed_%d_%06d.json", now.UnixNano(), q.written)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0644); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written++
	q.logger.DebugContext(ctx, "wrote failed record to dlq",
		logging.RawID(rec.RawID),
		"file", filename,
		"reason", rec.Reason,
	)
	return nil
}

// Stats returns queue counters.
func (q *Queue) Stats() Stats {
	if q == nil {
		return Stats{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Enabled:      true,
		Written:      q.written,
		PendingFiles: len(q.entryNames()),
		BasePath:     q.basePath,
	}
}

// List returns up to limit entries, oldest first. limit <= 0 lists all.
func (q *Queue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	if q == nil {
		return nil, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := os.Stat(q.basePath); err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}

	var records []FailedRecord
	for _, name := range q.entryNames() {
		if limit > 0 && len(records) >= limit {
			break
		}

		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			q.logger.WarnContext(ctx, "failed to read dlq file", "file", name, logging.Error(err))
			continue
		}

		var rec FailedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			q.logger.WarnContext(ctx, "failed to parse dlq file", "file", name, logging.Error(err))
			continue
		}
		rec.File = name
		records = append(records, rec)
	}

	return records, nil
}

// Delete removes the entries of one raw row.
func (q *Queue) Delete(ctx context.Context, rawID string) (int, error) {
	if q == nil {
		return 0, ErrDisabled
	}

	entries, err := q.List(ctx, 0)
	if err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	deleted := 0
	for _, e := range entries {
		if e.RawID != rawID {
			continue
		}
		if err := os.Remove(filepath.Join(q.basePath, e.File)); err != nil {
			return deleted, fmt.Errorf("delete dlq file: %w", err)
		}
		deleted++
	}
	if deleted == 0 {
		return 0, ErrNotFound
	}
	return deleted, nil
}

// Purge removes every entry and returns how many were removed.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	deleted := 0
	for _, name := range q.entryNames() {
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
			q.logger.WarnContext(ctx, "failed to delete dlq file", "file", name, logging.Error(err))
			continue
		}
		deleted++
	}

	q.logger.InfoContext(ctx, "purged dlq", logging.Count(deleted))
	return deleted, nil
}

// entryNames lists entry files in write order. Callers hold q.mu.
func (q *Queue) entryNames() []string {
	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil
	}
	var names []string
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), "failed_") || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names
}

