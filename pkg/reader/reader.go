// Package reader serves aggregated time-range queries over the union of
// compacted and still-uncompacted part files.
//
// Pipeline: scan files per UTC day → normalize → range filter → same-device
// dedup (mean) → device filter or priority tie-break → per-minute mean →
// integer cast → sort.
package reader

import (
	"math"
	"sort"
	"time"

	"heartbeat/pkg/logger"
	"heartbeat/pkg/models"
	"heartbeat/pkg/schema"
	"heartbeat/pkg/storage"
	"heartbeat/pkg/telemetry"
	"heartbeat/pkg/timeutil"
)

// Point is one aggregated result row.
type Point struct {
	Timestamp string `json:"timestamp"`
	HeartRate int64  `json:"heart_rate"`
	DeviceID  string `json:"device_id"`
}

// Reader answers queries against the data directory.
type Reader struct {
	dataDir string
}

// New returns a Reader over dataDir.
func New(dataDir string) *Reader {
	return &Reader{dataDir: dataDir}
}

// Query returns the per-minute aggregated heart rates for userID in
// [start, end] (inclusive, UTC), optionally restricted to one device. An
// empty result is a valid, non-error outcome. Unreadable files are skipped
// with a warning; the range is scanned as it exists at call time, so
// queries tolerate a concurrent compactor mid-cycle.
func (r *Reader) Query(userID string, start, end time.Time, deviceID string) ([]Point, error) {
	telemetry.Queries.Inc()

	rows := r.scan(userID, start, end)
	rows = filterRange(rows, timeutil.ToEpochMS(start), timeutil.ToEpochMS(end))
	if len(rows) == 0 {
		return []Point{}, nil
	}

	deduped := dedupSameDevice(rows)
	if deviceID != "" {
		deduped = filterDevice(deduped, deviceID)
	} else {
		deduped = resolvePriority(deduped)
	}
	if len(deduped) == 0 {
		return []Point{}, nil
	}
	return aggregateByMinute(deduped), nil
}

// scan reads every file of every (user, day) directory the range touches.
func (r *Reader) scan(userID string, start, end time.Time) []schema.Row {
	var rows []schema.Row
	day := start.UTC().Truncate(24 * time.Hour)
	last := end.UTC().Truncate(24 * time.Hour)
	for !day.After(last) {
		date := day.Format("2006-01-02")
		dir := storage.UserDayDir(r.dataDir, date, userID)

		files, err := storage.ListParts(dir)
		if err != nil {
			logger.Warn("part_listing_failed", "dir", dir, "error", err)
		}
		compacted := storage.CompactedPath(r.dataDir, date, userID)
		files = append([]string{compacted}, files...)

		for _, f := range files {
			fr, err := schema.Read(f)
			if err != nil {
				if f != compacted {
					telemetry.UnreadableFiles.Inc()
					logger.Warn("unreadable_file_skipped", "path", f, "error", err)
				}
				continue
			}
			rows = append(rows, fr...)
		}
		day = day.Add(24 * time.Hour)
	}
	return rows
}

func filterRange(rows []schema.Row, startMS, endMS int64) []schema.Row {
	out := rows[:0]
	for _, r := range rows {
		if r.TimestampMS >= startMS && r.TimestampMS <= endMS {
			out = append(out, r)
		}
	}
	return out
}

// sample is a row after same-device dedup; heart rate becomes fractional.
type sample struct {
	ts       int64
	deviceID string
	hr       float64
}

// dedupSameDevice collapses rows sharing (timestamp_ms, device_id) into one
// sample carrying their arithmetic mean. Output order follows first
// occurrence so later tie-breaks stay deterministic.
func dedupSameDevice(rows []schema.Row) []sample {
	type key struct {
		ts  int64
		dev string
	}
	type agg struct {
		sum float64
		n   int
		idx int
	}
	accs := make(map[key]*agg, len(rows))
	order := make([]key, 0, len(rows))
	for _, r := range rows {
		k := key{ts: r.TimestampMS, dev: r.DeviceID}
		a, ok := accs[k]
		if !ok {
			a = &agg{idx: len(order)}
			accs[k] = a
			order = append(order, k)
		}
		a.sum += float64(r.HeartRate)
		a.n++
	}
	out := make([]sample, len(order))
	for _, k := range order {
		a := accs[k]
		out[a.idx] = sample{ts: k.ts, deviceID: k.dev, hr: a.sum / float64(a.n)}
	}
	return out
}

func filterDevice(samples []sample, deviceID string) []sample {
	out := samples[:0]
	for _, s := range samples {
		if s.deviceID == deviceID {
			out = append(out, s)
		}
	}
	return out
}

// resolvePriority keeps, for each exact timestamp, the sample from the
// highest-priority device. Strictly-lower priority wins; the first
// occurrence wins among equals.
func resolvePriority(samples []sample) []sample {
	best := make(map[int64]int, len(samples))
	order := make([]int64, 0, len(samples))
	for i, s := range samples {
		j, ok := best[s.ts]
		if !ok {
			best[s.ts] = i
			order = append(order, s.ts)
			continue
		}
		if models.PriorityFor(s.deviceID) < models.PriorityFor(samples[j].deviceID) {
			best[s.ts] = i
		}
	}
	out := make([]sample, 0, len(order))
	for _, ts := range order {
		out = append(out, samples[best[ts]])
	}
	return out
}

// aggregateByMinute buckets samples into UTC minutes per device, averages
// them, truncates the mean toward zero and renders the final rows ordered
// by (timestamp, device_id).
func aggregateByMinute(samples []sample) []Point {
	type key struct {
		minute int64
		dev    string
	}
	type agg struct {
		sum float64
		n   int
	}
	accs := make(map[key]*agg)
	for _, s := range samples {
		k := key{minute: timeutil.TruncateMinuteMS(s.ts), dev: s.deviceID}
		a, ok := accs[k]
		if !ok {
			a = &agg{}
			accs[k] = a
		}
		a.sum += s.hr
		a.n++
	}

	out := make([]Point, 0, len(accs))
	for k, a := range accs {
		mean := a.sum / float64(a.n)
		out = append(out, Point{
			Timestamp: timeutil.FormatISO(timeutil.FromEpochMS(k.minute)),
			HeartRate: int64(math.Trunc(mean)),
			DeviceID:  k.dev,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}
