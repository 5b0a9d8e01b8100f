package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/ratelimit"
)

func TestAcquire_FirstCallDoesNotBlock(t *testing.T) {
	l := ratelimit.New(time.Second)
	start := time.Now()
	if err := l.Acquire(context.Background(), "flipp_api"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first Acquire blocked for %v, want immediate", elapsed)
	}
}

func TestAcquire_EnforcesMinimumInterval(t *testing.T) {
	const interval = 30 * time.Millisecond
	l := ratelimit.New(interval)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "flipp_api"); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Errorf("3 Acquires took %v, want ≥ %v", elapsed, 2*interval)
	}
}

func TestAcquire_ProvidersAreIndependent(t *testing.T) {
	l := ratelimit.New(time.Second)
	ctx := context.Background()

	if err := l.Acquire(ctx, "flipp_api"); err != nil {
		t.Fatalf("Acquire flipp_api: %v", err)
	}
	start := time.Now()
	if err := l.Acquire(ctx, "browser"); err != nil {
		t.Fatalf("Acquire browser: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("different provider blocked for %v, want immediate", elapsed)
	}
}

func TestSetInterval_OverridesDefault(t *testing.T) {
	l := ratelimit.New(time.Second)
	l.SetInterval("flipp_api", 10*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx, "flipp_api"); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("override ignored: 2 Acquires took %v", elapsed)
	}
}

func TestAcquire_ContextCancelledWhileWaiting(t *testing.T) {
	l := ratelimit.New(time.Minute)
	if err := l.Acquire(context.Background(), "flipp_api"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "flipp_api")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire during wait: err = %v, want DeadlineExceeded", err)
	}
}

// Concurrent Acquires for the same provider must serialize without lost
// updates: n callers take at least (n-1) × interval in total.
func TestAcquire_ConcurrentCallersSerialize(t *testing.T) {
	const (
		n        = 5
		interval = 15 * time.Millisecond
	)
	l := ratelimit.New(interval)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx, "flipp_api"); err != nil {
				t.Errorf("Acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < (n-1)*interval {
		t.Errorf("%d concurrent Acquires finished in %v, want ≥ %v", n, elapsed, (n-1)*interval)
	}
}
