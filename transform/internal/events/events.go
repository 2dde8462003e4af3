// Package events publishes run notifications on the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riliasov/chilekids-etl-pipeline/common/messaging"
)

// RunCompleted is published on messaging.SubjectRunsCompleted after every
// run that reached the upsert phase.
type RunCompleted struct {
	RunID               string    `json:"run_id"`
	Source              string    `json:"source"`
	SourceType          string    `json:"source_type"`
	TestMode            bool      `json:"test_mode"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	RecordsFound        int       `json:"records_found"`
	RecordsNormalized   int       `json:"records_normalized"`
	NormalizationErrors int       `json:"normalization_errors"`
	RecordsUpserted     int       `json:"records_upserted"`
	RecordsFailed       int       `json:"records_failed"`
	Bytes               int64     `json:"bytes"`
	DurationMS          int64     `json:"duration_ms"`
	ErrorRate           float64   `json:"error_rate"`
}

// ErrorRateAlert is published on messaging.SubjectAlertsErrorRate when the
// share of rows failing normalization exceeds the configured threshold.
type ErrorRateAlert struct {
	RunID               string    `json:"run_id"`
	Source              string    `json:"source"`
	RecordsFound        int       `json:"records_found"`
	NormalizationErrors int       `json:"normalization_errors"`
	ErrorRate           float64   `json:"error_rate"`
	Threshold           float64   `json:"threshold"`
	SampleRawIDs        []string  `json:"sample_raw_ids,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// Publisher sends run events. A nil *Publisher drops them.
type Publisher struct {
	pub messaging.Publisher
}

// NewPublisher wraps a message bus publisher.
func NewPublisher(pub messaging.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// RunCompleted publishes a run summary.
func (p *Publisher) RunCompleted(ctx context.Context, ev RunCompleted) error {
	return p.publish(ctx, messaging.SubjectRunsCompleted, ev.RunID, ev.Source, ev)
}

// ErrorRateExceeded publishes an error-rate alert.
func (p *Publisher) ErrorRateExceeded(ctx context.Context, ev ErrorRateAlert) error {
	return p.publish(ctx, messaging.SubjectAlertsErrorRate, ev.RunID, ev.Source, ev)
}

func (p *Publisher) publish(ctx context.Context, subject, runID, source string, v any) error {
	if p == nil || p.pub == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	msg := &messaging.Message{
		Subject: subject,
		Data:    data,
		Metadata: map[string]string{
			messaging.HeaderRunID:  runID,
			messaging.HeaderSource: source,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := p.pub.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}
