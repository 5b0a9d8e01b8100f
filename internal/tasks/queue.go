// Package tasks decouples job submission from execution. The API enqueues a
// job ID; a background worker pops IDs and drives the orchestrator. Backed
// by a Redis list in production so queued work survives a restart, or by a
// channel in dev mode.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const queueKey = "scrape:queue"

// popTimeout bounds each BRPOP so the worker can notice a cancelled context.
const popTimeout = 2 * time.Second

// ErrEmpty is returned by Dequeue when no job arrived within the poll window.
var ErrEmpty = errors.New("queue empty")

// Queue hands scrape job IDs from producers to the worker.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	// Dequeue blocks briefly for the next job ID, returning ErrEmpty on a
	// quiet queue so the caller can re-check its context.
	Dequeue(ctx context.Context) (string, error)
}

// RedisQueue is the production queue, a Redis list.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.rdb.LPush(ctx, queueKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	vals, err := q.rdb.BRPop(ctx, popTimeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("dequeue: %w", err)
	}
	// BRPOP returns [key, value].
	return vals[1], nil
}

// MemoryQueue is the dev-mode queue, a buffered channel.
type MemoryQueue struct {
	ch chan string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{ch: make(chan string, 256)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	default:
		return fmt.Errorf("enqueue job %s: queue full", jobID)
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	timer := time.NewTimer(popTimeout)
	defer timer.Stop()
	select {
	case id := <-q.ch:
		return id, nil
	case <-timer.C:
		return "", ErrEmpty
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
