// Package queue provides the durable FIFO shared by producers and the
// consumer. Items are opaque byte payloads addressed by named lists on the
// same store; the reliable-transfer protocol moves an item from the head of
// the main list to the tail of the in-flight list in one atomic step, and
// removes it only after the item has been durably persisted downstream.
//
// Two drivers implement the protocol: a Redis-backed one for multi-process
// deployments and an embedded pebble-backed one for single-node use and
// tests. Open picks the driver from the URL scheme.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoItem is returned by Move when no item became available within the
// timeout.
var ErrNoItem = errors.New("queue: no item available")

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue: closed")

// Queue is the durable list store. Implementations must make Move atomic:
// after a crash an item is observable in src or in dst, never in both and
// never in neither.
type Queue interface {
	// Push appends payload to the tail of list.
	Push(ctx context.Context, list string, payload []byte) error

	// Move transfers one item from the head of src to the tail of dst,
	// blocking up to timeout. Returns ErrNoItem on timeout.
	Move(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error)

	// Remove deletes one byte-identical occurrence of payload from list.
	// Reports whether an occurrence was found.
	Remove(ctx context.Context, list string, payload []byte) (bool, error)

	// Len returns the number of items in list.
	Len(ctx context.Context, list string) (int64, error)

	// Requeue drains every item of src back to the tail of dst, preserving
	// order, and returns the number of items moved. Used to recover items
	// stranded in the in-flight list by a crashed consumer.
	Requeue(ctx context.Context, src, dst string) (int, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Open connects to the queue store named by url. "redis://" and "rediss://"
// select the Redis driver; "pebble://<path>" or a bare filesystem path
// select the embedded driver.
func Open(url string) (Queue, error) {
	switch {
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return OpenRedis(url)
	case strings.HasPrefix(url, "pebble://"):
		return OpenPebble(strings.TrimPrefix(url, "pebble://"))
	case url == "":
		return nil, fmt.Errorf("queue: empty URL")
	default:
		return OpenPebble(url)
	}
}
