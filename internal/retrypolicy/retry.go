// Package retrypolicy wraps a single provider call with classified retries.
//
// This is deliberately distinct from the orchestrator's provider-to-provider
// fallback: retries absorb transient failure of one method, fallback handles
// a method being unsuitable or unavailable.
package retrypolicy

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
	"github.com/divaadaan/grocery-ai-planner/internal/provider"
)

// Defaults match what the upstream flyer services tolerate.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Policy retries transient errors with exponential backoff and jitter.
// Terminal errors abort immediately without consuming remaining attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Classify labels an error; defaults to provider.Classify.
	Classify func(error) string
}

// Default returns a Policy with package defaults.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// ExhaustedError wraps the last error after all attempts failed transiently.
// The orchestrator treats it like a terminal provider error and advances.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Execute runs fn until it succeeds, fails terminally, exhausts MaxAttempts,
// or ctx expires. Backoff grows as BaseDelay × 2^attempt with ±50% jitter to
// avoid hammering the same upstream in lockstep with other workers.
func (p Policy) Execute(ctx context.Context, fn func(context.Context) (model.ResultSet, error)) (model.ResultSet, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	classify := p.Classify
	if classify == nil {
		classify = provider.Classify
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithJitter(ctx, base<<(attempt-1)); err != nil {
				return model.ResultSet{}, err
			}
		}

		set, err := fn(ctx)
		if err == nil {
			return set, nil
		}
		if kind := classify(err); kind != provider.KindTransient {
			return model.ResultSet{}, err
		}
		lastErr = err
	}

	return model.ResultSet{}, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// sleepWithJitter sleeps for delay scaled by a random factor in [0.5, 1.5),
// returning early if ctx expires first.
func sleepWithJitter(ctx context.Context, delay time.Duration) error {
	jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()))
	timer := time.NewTimer(jittered)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
