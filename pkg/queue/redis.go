package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Queue on a Redis server. Push is RPUSH, Move is BLMOVE
// LEFT RIGHT (head of src to tail of dst, atomic on the server), Remove is
// LREM count=1.
type Redis struct {
	c *redis.Client
}

// OpenRedis connects to the Redis server named by url
// (redis://host:port/db).
func OpenRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	return &Redis{c: redis.NewClient(opts)}, nil
}

func (r *Redis) Push(ctx context.Context, list string, payload []byte) error {
	if err := r.c.RPush(ctx, list, payload).Err(); err != nil {
		return fmt.Errorf("queue: rpush %s: %w", list, err)
	}
	return nil
}

func (r *Redis) Move(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error) {
	res, err := r.c.BLMove(ctx, src, dst, "LEFT", "RIGHT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoItem
		}
		return nil, fmt.Errorf("queue: blmove %s -> %s: %w", src, dst, err)
	}
	return []byte(res), nil
}

func (r *Redis) Remove(ctx context.Context, list string, payload []byte) (bool, error) {
	n, err := r.c.LRem(ctx, list, 1, payload).Result()
	if err != nil {
		return false, fmt.Errorf("queue: lrem %s: %w", list, err)
	}
	return n > 0, nil
}

func (r *Redis) Len(ctx context.Context, list string) (int64, error) {
	n, err := r.c.LLen(ctx, list).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: llen %s: %w", list, err)
	}
	return n, nil
}

func (r *Redis) Requeue(ctx context.Context, src, dst string) (int, error) {
	moved := 0
	for {
		_, err := r.c.LMove(ctx, src, dst, "LEFT", "RIGHT").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return moved, nil
			}
			return moved, fmt.Errorf("queue: lmove %s -> %s: %w", src, dst, err)
		}
		moved++
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: ping: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.c.Close()
}
