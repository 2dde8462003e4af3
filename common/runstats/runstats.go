// Package runstats provides Redis-backed statistics of transform runs.
//
// Any number of transform runs (cron jobs, manual CLI invocations) may write
// concurrently; readers such as `sheetflow stats` see the latest run and a
// bounded history per source.
//
// Redis Key Structure:
//
//	elt:runs:{source}                  - Hash with the latest run summary
//	elt:runs:{source}:history          - List of JSON run summaries, newest first (capped)
//	elt:runs:{source}:daily:{YYYYMMDD} - Hash of per-day counters (expires 30d)
package runstats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultHistorySize is the number of runs kept per source.
const DefaultHistorySize = 50

const dailyTTL = 30 * 24 * time.Hour

// ErrNoRuns is returned when no run has been recorded for a source.
var ErrNoRuns = errors.New("no runs recorded")

// Run is the persisted view of one transform run.
type Run struct {
	RunID               string    `json:"run_id"`
	Source              string    `json:"source"`
	StartedAt           time.Time `json:"started_at"`
	TestMode            bool      `json:"test_mode"`
	RecordsFound        int64     `json:"records_found"`
	RecordsNormalized   int64     `json:"records_normalized"`
	NormalizationErrors int64     `json:"normalization_errors"`
	RecordsUpserted     int64     `json:"records_upserted"`
	RecordsFailed       int64     `json:"records_failed"`
	Bytes               int64     `json:"bytes"`
	DurationMS          int64     `json:"duration_ms"`
	ErrorRate           float64   `json:"error_rate"`
}

// DailyTotals aggregates all runs of one source on one UTC day.
type DailyTotals struct {
	Source          string `json:"source"`
	Day             string `json:"day"`
	Runs            int64  `json:"runs"`
	RecordsFound    int64  `json:"records_found"`
	RecordsUpserted int64  `json:"records_upserted"`
	Errors          int64  `json:"errors"`
}

// Client records and retrieves run statistics.
type Client struct {
	redis       *redis.Client
	historySize int64
}

// NewClient creates a new run stats client from a redis:// URL.
func NewClient(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client), nil
}

// NewClientFromRedis creates a client from an existing Redis connection.
func NewClientFromRedis(client *redis.Client) *Client {
	return &Client{
		redis:       client,
		historySize: DefaultHistorySize,
	}
}

func latestKey(source string) string {
	return fmt.Sprintf("elt:runs:%s", source)
}

func historyKey(source string) string {
	return fmt.Sprintf("elt:runs:%s:history", source)
}

func dailyKey(source string, day time.Time) string {
	return fmt.Sprintf("elt:runs:%s:daily:%s", source, day.UTC().Format("20060102"))
}

// Record stores run as the latest run of its source, prepends it to the
// history and adds it to the day's counters.
func (c *Client) Record(ctx context.Context, run Run) error {
	if run.Source == "" {
		return errors.New("run source is required")
	}

	encoded, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	pipe := c.redis.TxPipeline()

	pipe.HSet(ctx, latestKey(run.Source), map[string]interface{}{
		"run_id":               run.RunID,
		"started_at":           strconv.FormatInt(run.StartedAt.UnixMilli(), 10),
		"test_mode":            strconv.FormatBool(run.TestMode),
		"records_found":        run.RecordsFound,
		"records_normalized":   run.RecordsNormalized,
		"normalization_errors": run.NormalizationErrors,
		"records_upserted":     run.RecordsUpserted,
		"records_failed":       run.RecordsFailed,
		"bytes":                run.Bytes,
		"duration_ms":          run.DurationMS,
		"error_rate":           strconv.FormatFloat(run.ErrorRate, 'f', -1, 64),
	})

	pipe.LPush(ctx, historyKey(run.Source), encoded)
	pipe.LTrim(ctx, historyKey(run.Source), 0, c.historySize-1)

	day := dailyKey(run.Source, run.StartedAt)
	pipe.HIncrBy(ctx, day, "runs", 1)
	pipe.HIncrBy(ctx, day, "records_found", run.RecordsFound)
	pipe.HIncrBy(ctx, day, "records_upserted", run.RecordsUpserted)
	pipe.HIncrBy(ctx, day, "errors", run.NormalizationErrors+run.RecordsFailed)
	pipe.Expire(ctx, day, dailyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Latest returns the most recent run of source.
func (c *Client) Latest(ctx context.Context, source string) (*Run, error) {
	fields, err := c.redis.HGetAll(ctx, latestKey(source)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNoRuns
	}

	run := &Run{
		RunID:  fields["run_id"],
		Source: source,
	}
	if ms, err := strconv.ParseInt(fields["started_at"], 10, 64); err == nil {
		run.StartedAt = time.UnixMilli(ms).UTC()
	}
	run.TestMode, _ = strconv.ParseBool(fields["test_mode"])
	run.RecordsFound = parseInt(fields["records_found"])
	run.RecordsNormalized = parseInt(fields["records_normalized"])
	run.NormalizationErrors = parseInt(fields["normalization_errors"])
	run.RecordsUpserted = parseInt(fields["records_upserted"])
	run.RecordsFailed = parseInt(fields["records_failed"])
	run.Bytes = parseInt(fields["bytes"])
	run.DurationMS = parseInt(fields["duration_ms"])
	run.ErrorRate, _ = strconv.ParseFloat(fields["error_rate"], 64)

	return run, nil
}

// History returns up to limit recorded runs of source, newest first.
func (c *Client) History(ctx context.Context, source string, limit int64) ([]Run, error) {
	if limit <= 0 || limit > c.historySize {
		limit = c.historySize
	}

	items, err := c.redis.LRange(ctx, historyKey(source), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}

	runs := make([]Run, 0, len(items))
	for _, item := range items {
		var run Run
		if err := json.Unmarshal([]byte(item), &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Daily returns the counters of source for the UTC day containing day.
func (c *Client) Daily(ctx context.Context, source string, day time.Time) (*DailyTotals, error) {
	fields, err := c.redis.HGetAll(ctx, dailyKey(source, day)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get daily totals: %w", err)
	}

	return &DailyTotals{
		Source:          source,
		Day:             day.UTC().Format("2006-01-02"),
		Runs:            parseInt(fields["runs"]),
		RecordsFound:    parseInt(fields["records_found"]),
		RecordsUpserted: parseInt(fields["records_upserted"]),
		Errors:          parseInt(fields["errors"]),
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
