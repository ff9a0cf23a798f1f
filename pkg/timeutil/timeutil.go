// Package timeutil holds the UTC epoch-millisecond conversions shared by
// every component. Downstream code works only in epoch ms; ISO-8601 string
// handling is confined to ParseISO at the HTTP edge.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// ToEpochMS converts t to milliseconds since the Unix epoch in UTC.
func ToEpochMS(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromEpochMS converts milliseconds since the Unix epoch to a UTC time.
func FromEpochMS(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// DateString returns the UTC calendar date (YYYY-MM-DD) of an epoch-ms value.
func DateString(ms int64) string {
	return FromEpochMS(ms).Format("2006-01-02")
}

// TruncateMinuteMS truncates an epoch-ms value to the start of its UTC minute.
func TruncateMinuteMS(ms int64) int64 {
	const minute = int64(60 * 1000)
	return ms - (ms % minute)
}

// FormatISO renders t as the canonical response form: YYYY-MM-DDTHH:MM:SSZ.
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// ParseISO parses an ISO-8601 timestamp. Producers in the wild send a few
// malformed variants that we normalize here rather than reject:
//   - "2025-01-15T10:00:00+00:00Z" (offset and Z)
//   - "2025-01-15T10:00:00" (no timezone; interpreted as UTC)
//   - fractional seconds with or without timezone
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if strings.HasSuffix(s, "+00:00Z") {
		s = strings.TrimSuffix(s, "Z")
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp: %q", s)
}
