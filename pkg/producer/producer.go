// Package producer implements the enqueue path: validate a sample,
// normalize its timestamp to UTC epoch ms, serialize the canonical record
// and append it to the tail of the main queue list.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"heartbeat/pkg/logger"
	"heartbeat/pkg/models"
	"heartbeat/pkg/queue"
	"heartbeat/pkg/telemetry"
	"heartbeat/pkg/timeutil"
)

// ErrInvalidSample marks enqueue failures caused by the sample itself
// rather than by the queue store. Callers map it to a 4xx response.
var ErrInvalidSample = errors.New("invalid sample")

// Producer appends serialized samples to the main queue list.
type Producer struct {
	q   queue.Queue
	key string
}

// New returns a Producer appending to the given list.
func New(q queue.Queue, queueKey string) *Producer {
	return &Producer{q: q, key: queueKey}
}

// Enqueue validates s, converts its timestamp to UTC epoch milliseconds
// (naive timestamps are interpreted as UTC) and pushes the canonical JSON
// record. Validation failures wrap ErrInvalidSample; any other error means
// the queue store rejected the append and nothing was enqueued.
func (p *Producer) Enqueue(ctx context.Context, s models.Sample) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSample, err)
	}
	ts, err := timeutil.ParseISO(s.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSample, err)
	}

	rec := models.Record{
		DeviceID:    s.DeviceID,
		UserID:      s.UserID,
		TimestampMS: timeutil.ToEpochMS(ts),
		HeartRate:   s.HeartRate,
		EnqueuedAt:  timeutil.ToEpochMS(time.Now()),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := p.q.Push(ctx, p.key, payload); err != nil {
		telemetry.EnqueueFailures.Inc()
		return err
	}
	telemetry.SamplesEnqueued.Inc()
	logger.Debug("sample_enqueued", "user_id", rec.UserID, "device_id", rec.DeviceID, "timestamp_ms", rec.TimestampMS)
	return nil
}
