// Package models defines the ingest types and the device priority table.
package models

import (
	"fmt"
)

// Heart-rate bounds accepted at the edge. Values outside this window are
// rejected before anything is enqueued.
const (
	MinHeartRate = 30
	MaxHeartRate = 220
)

// UnknownDevicePriority is the sentinel priority for devices that are not
// in the priority table. Lower numbers win.
const UnknownDevicePriority = 999

// DevicePriority maps device ids to a tie-break priority used when several
// devices report at the same timestamp. Smaller is stronger.
var DevicePriority = map[string]int{
	"device_a": 1, // medical grade
	"device_b": 2, // consumer wearable
}

// PriorityFor returns the priority for a device id, or the sentinel value
// for unknown devices.
func PriorityFor(deviceID string) int {
	if p, ok := DevicePriority[deviceID]; ok {
		return p
	}
	return UnknownDevicePriority
}

// Sample is one heart-rate measurement as posted to the ingest endpoint.
// Timestamp is the raw ISO-8601 string; parsing happens at the HTTP edge.
type Sample struct {
	DeviceID  string `json:"device_id"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
	HeartRate int64  `json:"heart_rate"`
}

// Validate checks the parts of a Sample that do not involve time parsing.
func (s Sample) Validate() error {
	if s.DeviceID == "" {
		return fmt.Errorf("device_id must not be empty")
	}
	if s.UserID == "" {
		return fmt.Errorf("user_id must not be empty")
	}
	if s.HeartRate < MinHeartRate || s.HeartRate > MaxHeartRate {
		return fmt.Errorf("heart_rate %d out of range [%d, %d]", s.HeartRate, MinHeartRate, MaxHeartRate)
	}
	return nil
}

// Record is the queue wire format: a normalized Sample plus the enqueue
// time. Field names are stable; consumers tolerate additional keys.
type Record struct {
	DeviceID    string `json:"device_id"`
	UserID      string `json:"user_id"`
	TimestampMS int64  `json:"timestamp_ms"`
	HeartRate   int64  `json:"heart_rate"`
	EnqueuedAt  int64  `json:"enqueued_at,omitempty"`
}
