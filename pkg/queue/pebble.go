package queue

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// Pebble implements Queue on an embedded pebble store. Each list is a key
// range "<list>/<seq>" with a zero-padded monotonic sequence, so iteration
// order is FIFO order. Move deletes the head of src and appends to dst in a
// single synced batch, which makes the transfer atomic across crashes.
//
// The driver is single-process; it serves single-node deployments where the
// API server, consumer and compactor run in the same binary.
type Pebble struct {
	db *pebble.DB

	mu     sync.Mutex
	seq    map[string]uint64 // next sequence per list
	notify chan struct{}     // closed and replaced on every Push
	closed bool
}

// OpenPebble opens (or creates) the embedded store at path.
func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("queue: open pebble at %s: %w", path, err)
	}
	return &Pebble{
		db:     db,
		seq:    make(map[string]uint64),
		notify: make(chan struct{}),
	}, nil
}

func listKey(list string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/%020d", list, seq))
}

func listBounds(list string) (lower, upper []byte) {
	lower = []byte(list + "/")
	upper = append(append([]byte{}, lower...), 0xff)
	return lower, upper
}

// nextSeqLocked returns the next sequence for list, scanning the existing
// tail on first use after open.
func (p *Pebble) nextSeqLocked(list string) (uint64, error) {
	if s, ok := p.seq[list]; ok {
		return s, nil
	}
	lower, upper := listBounds(list)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, fmt.Errorf("queue: iter %s: %w", list, err)
	}
	defer iter.Close()
	var next uint64
	if iter.Last() && iter.Valid() {
		var last uint64
		if _, err := fmt.Sscanf(string(iter.Key()[len(lower):]), "%d", &last); err == nil {
			next = last + 1
		}
	}
	p.seq[list] = next
	return next, nil
}

func (p *Pebble) Push(ctx context.Context, list string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	s, err := p.nextSeqLocked(list)
	if err != nil {
		return err
	}
	if err := p.db.Set(listKey(list, s), payload, pebble.Sync); err != nil {
		return fmt.Errorf("queue: push %s: %w", list, err)
	}
	p.seq[list] = s + 1
	close(p.notify)
	p.notify = make(chan struct{})
	return nil
}

// headLocked returns the key and a copy of the value at the head of list.
func (p *Pebble) headLocked(list string) ([]byte, []byte, bool, error) {
	lower, upper := listBounds(list)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, nil, false, fmt.Errorf("queue: iter %s: %w", list, err)
	}
	defer iter.Close()
	if !iter.First() || !iter.Valid() {
		return nil, nil, false, nil
	}
	key := append([]byte(nil), iter.Key()...)
	val := append([]byte(nil), iter.Value()...)
	return key, val, true, nil
}

// moveOneLocked transfers the head of src to the tail of dst in one synced
// batch. Reports whether an item was present.
func (p *Pebble) moveOneLocked(src, dst string) ([]byte, bool, error) {
	key, val, ok, err := p.headLocked(src)
	if err != nil || !ok {
		return nil, false, err
	}
	s, err := p.nextSeqLocked(dst)
	if err != nil {
		return nil, false, err
	}
	b := p.db.NewBatch()
	if err := b.Delete(key, nil); err != nil {
		b.Close()
		return nil, false, fmt.Errorf("queue: move delete: %w", err)
	}
	if err := b.Set(listKey(dst, s), val, nil); err != nil {
		b.Close()
		return nil, false, fmt.Errorf("queue: move set: %w", err)
	}
	if err := p.db.Apply(b, pebble.Sync); err != nil {
		b.Close()
		return nil, false, fmt.Errorf("queue: move %s -> %s: %w", src, dst, err)
	}
	b.Close()
	p.seq[dst] = s + 1
	return val, true, nil
}

func (p *Pebble) Move(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		val, ok, err := p.moveOneLocked(src, dst)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		if ok {
			p.mu.Unlock()
			return val, nil
		}
		ready := p.notify
		p.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, ErrNoItem
		}
		timer := time.NewTimer(wait)
		select {
		case <-ready:
			timer.Stop()
		case <-timer.C:
			return nil, ErrNoItem
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (p *Pebble) Remove(ctx context.Context, list string, payload []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrClosed
	}
	lower, upper := listBounds(list)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return false, fmt.Errorf("queue: iter %s: %w", list, err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if bytes.Equal(iter.Value(), payload) {
			key := append([]byte(nil), iter.Key()...)
			if err := p.db.Delete(key, pebble.Sync); err != nil {
				return false, fmt.Errorf("queue: remove from %s: %w", list, err)
			}
			return true, nil
		}
	}
	return false, nil
}

func (p *Pebble) Len(ctx context.Context, list string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	lower, upper := listBounds(list)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, fmt.Errorf("queue: iter %s: %w", list, err)
	}
	defer iter.Close()
	var n int64
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, nil
}

func (p *Pebble) Requeue(ctx context.Context, src, dst string) (int, error) {
	moved := 0
	for {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return moved, ErrClosed
		}
		_, ok, err := p.moveOneLocked(src, dst)
		p.mu.Unlock()
		if err != nil {
			return moved, err
		}
		if !ok {
			return moved, nil
		}
		moved++
	}
}

func (p *Pebble) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.db == nil {
		return ErrClosed
	}
	return nil
}

func (p *Pebble) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.notify)
	return p.db.Close()
}
