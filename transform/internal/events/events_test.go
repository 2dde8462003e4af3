package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riliasov/chilekids-etl-pipeline/common/messaging"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/events"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
	err  error
}

func (r *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return r.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (r *recordingPublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestRunCompleted(t *testing.T) {
	rec := &recordingPublisher{}
	pub := events.NewPublisher(rec)

	ev := events.RunCompleted{
		RunID:           "run-1",
		Source:          "google_sheets",
		RecordsFound:    10,
		RecordsUpserted: 9,
		StartedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.RunCompleted(context.Background(), ev))

	require.Len(t, rec.msgs, 1)
	msg := rec.msgs[0]
	assert.Equal(t, messaging.SubjectRunsCompleted, msg.Subject)
	assert.Equal(t, "run-1", msg.Metadata[messaging.HeaderRunID])
	assert.Equal(t, "google_sheets", msg.Metadata[messaging.HeaderSource])

	var decoded events.RunCompleted
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, ev, decoded)
}

func TestErrorRateExceeded(t *testing.T) {
	rec := &recordingPublisher{}
	pub := events.NewPublisher(rec)

	require.NoError(t, pub.ErrorRateExceeded(context.Background(), events.ErrorRateAlert{
		RunID:               "run-2",
		Source:              "google_sheets",
		RecordsFound:        10,
		NormalizationErrors: 2,
		ErrorRate:           0.2,
		Threshold:           0.1,
	}))

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, messaging.SubjectAlertsErrorRate, rec.msgs[0].Subject)
	assert.Contains(t, string(rec.msgs[0].Data), `"error_rate":0.2`)
}

func TestPublishError(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("connection closed")}
	err := events.NewPublisher(rec).RunCompleted(context.Background(), events.RunCompleted{RunID: "x"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), messaging.SubjectRunsCompleted)
}

func TestNilPublisher(t *testing.T) {
	var pub *events.Publisher
	assert.NoError(t, pub.RunCompleted(context.Background(), events.RunCompleted{}))
	assert.NoError(t, events.NewPublisher(nil).ErrorRateExceeded(context.Background(), events.ErrorRateAlert{}))
}
