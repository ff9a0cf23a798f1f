// Package compactor periodically merges the part files of each (user, day)
// partition into a single canonical compacted.parquet, resolving
// same-timestamp conflicts by device priority, and archives the parts it
// consumed.
package compactor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/adhocore/gronx"

	"heartbeat/pkg/logger"
	"heartbeat/pkg/models"
	"heartbeat/pkg/schema"
	"heartbeat/pkg/storage"
	"heartbeat/pkg/telemetry"
)

// Options configure a Compactor.
type Options struct {
	DataDir    string
	ArchiveDir string
	MinParts   int           // skip partitions with fewer parts
	Interval   time.Duration // cycle period when Cron is unset
	Cron       string        // optional cron expression overriding Interval
}

// Compactor merges part files. Single-threaded: one pass runs at a time.
type Compactor struct {
	opts Options
}

// New returns a Compactor. Zero MinParts and Interval fall back to the
// documented defaults.
func New(opts Options) *Compactor {
	if opts.MinParts <= 0 {
		opts.MinParts = 5
	}
	if opts.Interval <= 0 {
		opts.Interval = 300 * time.Second
	}
	return &Compactor{opts: opts}
}

// Run executes compaction passes until ctx is cancelled. When a cron
// expression is configured the passes follow it; otherwise they run every
// Interval.
func (c *Compactor) Run(ctx context.Context) error {
	if c.opts.Cron != "" && !gronx.IsValid(c.opts.Cron) {
		return fmt.Errorf("compactor: invalid cron expression: %s", c.opts.Cron)
	}
	logger.Info("compactor_started", "data_dir", c.opts.DataDir, "min_parts", c.opts.MinParts)

	for {
		if err := c.RunOnce(ctx); err != nil {
			logger.Error("compaction_pass_failed", "error", err)
		}
		wait := c.opts.Interval
		if c.opts.Cron != "" {
			next, err := gronx.NextTickAfter(c.opts.Cron, time.Now().UTC(), false)
			if err != nil {
				logger.Error("compactor_nexttick_failed", "cron", c.opts.Cron, "error", err)
			} else {
				wait = time.Until(next)
			}
		}
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			logger.Info("compactor_stopped")
			return nil
		}
	}
}

// RunOnce scans DATA_DIR and compacts every partition at or above the part
// threshold. Partition failures are logged and do not abort the pass.
func (c *Compactor) RunOnce(ctx context.Context) error {
	partitions, err := storage.ScanUserDays(c.opts.DataDir)
	if err != nil {
		return err
	}
	for _, p := range partitions {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := storage.UserDayDir(c.opts.DataDir, p.Date, p.UserID)
		parts, err := storage.ListParts(dir)
		if err != nil {
			logger.Warn("part_listing_failed", "dir", dir, "error", err)
			continue
		}
		if len(parts) < c.opts.MinParts {
			continue
		}
		if err := c.compact(p.UserID, p.Date, parts); err != nil {
			telemetry.CompactionFailures.Inc()
			logger.Error("compaction_failed", "user_id", p.UserID, "date", p.Date, "error", err)
		}
	}
	return nil
}

// compact merges the snapshot of parts with the existing compacted file.
// The parts slice is fixed before any read, so parts created mid-compaction
// are left for the next pass. Only parts that were actually read are
// archived, and only after the compacted file has been replaced atomically.
func (c *Compactor) compact(userID, date string, parts []string) error {
	start := time.Now()
	compactedPath := storage.CompactedPath(c.opts.DataDir, date, userID)

	var rows []schema.Row
	if existing, err := schema.Read(compactedPath); err == nil {
		rows = append(rows, existing...)
	} else {
		// a missing compacted file is the common case for a fresh partition
		logger.Debug("compacted_not_read", "path", compactedPath, "error", err)
	}

	var readable []string
	for _, p := range parts {
		pr, err := schema.Read(p)
		if err != nil {
			telemetry.UnreadableFiles.Inc()
			logger.Warn("unreadable_part_skipped", "path", p, "error", err)
			continue
		}
		rows = append(rows, pr...)
		readable = append(readable, p)
	}
	if len(rows) == 0 && len(readable) == 0 {
		return nil
	}

	merged := Merge(rows)
	if err := storage.WriteRows(compactedPath, merged); err != nil {
		return err
	}

	for _, p := range readable {
		if _, err := storage.ArchivePart(p, c.opts.DataDir, c.opts.ArchiveDir); err != nil {
			logger.Error("archive_failed", "path", p, "error", err)
			continue
		}
		telemetry.PartsArchived.Inc()
	}

	telemetry.Compactions.Inc()
	telemetry.CompactionDuration.Observe(time.Since(start).Seconds())
	logger.Info("partition_compacted",
		"user_id", userID, "date", date, "parts", len(readable), "rows", len(merged))
	return nil
}

// Merge collapses rows to at most one row per timestamp_ms, the
// highest-priority device (lowest number) winning. Order among equal keys
// is arrival order, so re-delivered duplicates resolve deterministically.
// The result is sorted by timestamp_ms ascending.
func Merge(rows []schema.Row) []schema.Row {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TimestampMS != rows[j].TimestampMS {
			return rows[i].TimestampMS < rows[j].TimestampMS
		}
		return models.PriorityFor(rows[i].DeviceID) < models.PriorityFor(rows[j].DeviceID)
	})
	out := rows[:0]
	var prev int64
	for i, r := range rows {
		if i > 0 && r.TimestampMS == prev {
			continue
		}
		out = append(out, r)
		prev = r.TimestampMS
	}
	return out
}
