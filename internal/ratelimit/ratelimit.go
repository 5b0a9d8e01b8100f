// Package ratelimit gates provider calls to a minimum interval.
//
// The gate is process-wide, keyed by provider ID and shared by every
// concurrent job: the upstream services impose global limits, not
// per-caller ones, so a per-job limiter would still get the service blocked.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces calls per provider. The zero interval means no gating for
// that provider. Initialized once at process start; never reset per job.
type Limiter struct {
	mu              sync.Mutex
	defaultInterval time.Duration
	intervals       map[string]time.Duration
	nextFree        map[string]time.Time
}

// New creates a Limiter with the given default minimum interval between
// calls to the same provider.
func New(defaultInterval time.Duration) *Limiter {
	return &Limiter{
		defaultInterval: defaultInterval,
		intervals:       make(map[string]time.Duration),
		nextFree:        make(map[string]time.Time),
	}
}

// SetInterval overrides the minimum interval for one provider.
func (l *Limiter) SetInterval(providerID string, interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.intervals[providerID] = interval
}

// Acquire blocks until the provider's gate opens, then claims the next slot.
// It never fails on its own; the only error is the context expiring while
// waiting. The internal lock covers only the slot reservation — the wait
// itself happens outside it, so concurrent callers for other providers are
// never held up.
func (l *Limiter) Acquire(ctx context.Context, providerID string) error {
	l.mu.Lock()
	interval, ok := l.intervals[providerID]
	if !ok {
		interval = l.defaultInterval
	}

	now := time.Now()
	turn := l.nextFree[providerID]
	if turn.Before(now) {
		turn = now
	}
	l.nextFree[providerID] = turn.Add(interval)
	l.mu.Unlock()

	if !turn.After(now) {
		return ctx.Err()
	}
	return sleepUntil(ctx, turn)
}

func sleepUntil(ctx context.Context, t time.Time) error {
	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
