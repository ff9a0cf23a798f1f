// Package consumer implements the batching drainer: a single long-running
// loop that moves items from the main queue list to the in-flight list,
// accumulates a batch bounded by size and time, writes one part file per
// (user, day) group and acknowledges items only after their group is
// durably on disk.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"heartbeat/pkg/logger"
	"heartbeat/pkg/models"
	"heartbeat/pkg/queue"
	"heartbeat/pkg/schema"
	"heartbeat/pkg/storage"
	"heartbeat/pkg/telemetry"
	"heartbeat/pkg/timeutil"
)

// Options configure a Consumer. Zero fields fall back to the documented
// defaults.
type Options struct {
	QueueKey      string
	ProcessingKey string
	DataDir       string
	MaxBatch      int           // flush when the batch reaches this size
	MaxBatchTime  time.Duration // flush at least this often
	PollTimeout   time.Duration // bounded blocking wait on the queue
}

// item pairs the raw queue payload (needed for the ack) with its decoded
// record.
type item struct {
	raw []byte
	rec models.Record
}

// Consumer drains the queue into part files. It is not safe for concurrent
// use: one loop owns the batch buffer exclusively.
type Consumer struct {
	q    queue.Queue
	opts Options

	batch     []item
	lastFlush time.Time
}

// New returns a Consumer draining q.
func New(q queue.Queue, opts Options) *Consumer {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 400
	}
	if opts.MaxBatchTime <= 0 {
		opts.MaxBatchTime = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	return &Consumer{q: q, opts: opts}
}

// Run executes the drain loop until ctx is cancelled, then attempts one
// final flush. Items whose flush fails stay in the in-flight list for
// recovery.
//
// Before draining starts, anything found in the in-flight list is replayed
// to the main queue: with a single consumer, in-flight items at startup can
// only be strandings from a previous crash.
func (c *Consumer) Run(ctx context.Context) error {
	requeued, err := c.q.Requeue(ctx, c.opts.ProcessingKey, c.opts.QueueKey)
	if err != nil {
		return err
	}
	if requeued > 0 {
		telemetry.ItemsRequeued.Add(float64(requeued))
		logger.Warn("stranded_items_requeued", "count", requeued)
	}

	logger.Info("consumer_started", "queue_key", c.opts.QueueKey, "max_batch", c.opts.MaxBatch)
	c.lastFlush = time.Now()

	for {
		select {
		case <-ctx.Done():
			c.finalFlush()
			return nil
		default:
		}

		raw, err := c.q.Move(ctx, c.opts.QueueKey, c.opts.ProcessingKey, c.opts.PollTimeout)
		switch {
		case errors.Is(err, queue.ErrNoItem):
			// timeout; fall through to the flush check
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.finalFlush()
			return nil
		case err != nil:
			logger.Error("queue_move_failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		default:
			c.accumulate(ctx, raw)
		}

		if len(c.batch) > 0 &&
			(len(c.batch) >= c.opts.MaxBatch || time.Since(c.lastFlush) >= c.opts.MaxBatchTime) {
			c.flush(context.WithoutCancel(ctx))
			c.lastFlush = time.Now()
		}
	}
}

// accumulate decodes one transferred item. Undecodable payloads cannot be
// recovered, so they are removed from the in-flight list immediately.
func (c *Consumer) accumulate(ctx context.Context, raw []byte) {
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		telemetry.CorruptItems.Inc()
		logger.Warn("corrupt_item_dropped", "error", err)
		if _, rerr := c.q.Remove(ctx, c.opts.ProcessingKey, raw); rerr != nil {
			logger.Error("corrupt_item_remove_failed", "error", rerr)
		}
		return
	}
	c.batch = append(c.batch, item{raw: raw, rec: rec})
}

// flush groups the batch by (user, UTC day), writes one part file per group
// and acknowledges every item once all groups are on disk. On any write
// failure nothing is acknowledged: the whole batch stays in the in-flight
// list and the in-memory copy is dropped.
func (c *Consumer) flush(ctx context.Context) {
	if len(c.batch) == 0 {
		return
	}
	start := time.Now()
	batch := c.batch
	c.batch = nil

	type groupKey struct {
		userID string
		date   string
	}
	groups := make(map[groupKey][]schema.Row)
	for _, it := range batch {
		ms := it.rec.TimestampMS
		if ms == 0 {
			ms = it.rec.EnqueuedAt
		}
		if ms == 0 {
			ms = timeutil.ToEpochMS(time.Now())
		}
		k := groupKey{userID: it.rec.UserID, date: timeutil.DateString(ms)}
		groups[k] = append(groups[k], schema.Row{
			TimestampMS: it.rec.TimestampMS,
			HeartRate:   it.rec.HeartRate,
			DeviceID:    it.rec.DeviceID,
			UserID:      it.rec.UserID,
		})
	}

	for k, rows := range groups {
		path, err := storage.WritePart(c.opts.DataDir, k.date, k.userID, rows)
		if err != nil {
			telemetry.FlushFailures.Inc()
			logger.Error("part_write_failed",
				"user_id", k.userID, "date", k.date, "rows", len(rows), "error", err)
			return
		}
		telemetry.PartsWritten.Inc()
		telemetry.RowsWritten.Add(float64(len(rows)))
		logger.Info("part_written", "path", path, "rows", len(rows), "user_id", k.userID)
	}

	for _, it := range batch {
		if _, err := c.q.Remove(ctx, c.opts.ProcessingKey, it.raw); err != nil {
			logger.Error("ack_failed", "error", err)
		}
	}
	telemetry.BatchesFlushed.Inc()
	telemetry.FlushDuration.Observe(time.Since(start).Seconds())
}

func (c *Consumer) finalFlush() {
	if len(c.batch) == 0 {
		logger.Info("consumer_stopped")
		return
	}
	logger.Info("consumer_draining", "batch", len(c.batch))
	c.flush(context.Background())
	logger.Info("consumer_stopped")
}
