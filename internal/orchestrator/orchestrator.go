// Package orchestrator walks the provider fallback hierarchy for one scrape
// job: rate-limits and retries each provider, folds results incrementally,
// keeps the job record current, and stops on sufficiency, exhaustion,
// deadline or cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/merge"
	"github.com/divaadaan/grocery-ai-planner/internal/model"
	"github.com/divaadaan/grocery-ai-planner/internal/provider"
	"github.com/divaadaan/grocery-ai-planner/internal/ratelimit"
	"github.com/divaadaan/grocery-ai-planner/internal/retrypolicy"
	"github.com/divaadaan/grocery-ai-planner/internal/scrapejob"
)

// Options tune one orchestration run.
type Options struct {
	// MinStores/MinOffers define the sufficiency threshold: once the
	// accumulated set reaches both, no lower-priority provider is invoked.
	// Values <= 0 fall back to the defaults below for both fields.
	MinStores int
	MinOffers int
	// Deadline bounds the whole job. Zero means DefaultDeadline.
	Deadline time.Duration
}

// Defaults. The original behavior stopped at "anything found"; requiring a
// handful of offers avoids declaring victory on a store list with no prices.
const (
	DefaultMinStores = 1
	DefaultMinOffers = 5
	DefaultDeadline  = 10 * time.Minute
)

func (o Options) withDefaults() Options {
	if o.MinStores <= 0 {
		o.MinStores = DefaultMinStores
	}
	if o.MinOffers <= 0 {
		o.MinOffers = DefaultMinOffers
	}
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	return o
}

func (o Options) sufficient(s scrapejob.Summary) bool {
	return s.Stores >= o.MinStores && s.Offers >= o.MinOffers
}

// Orchestrator coordinates providers for scrape jobs. The provider list is
// order-significant: it is the fallback hierarchy, tried strictly in order,
// never in parallel — deciding whether to invoke provider N+1 requires the
// outcome of provider N.
type Orchestrator struct {
	tracker   *scrapejob.Tracker
	limiter   *ratelimit.Limiter
	retry     retrypolicy.Policy
	providers []provider.Provider
	opts      Options
}

// New returns an Orchestrator. providers must be non-empty and ordered by
// priority (primary first).
func New(tracker *scrapejob.Tracker, limiter *ratelimit.Limiter, retry retrypolicy.Policy, providers []provider.Provider, opts Options) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("orchestrator needs at least one provider")
	}
	return &Orchestrator{
		tracker:   tracker,
		limiter:   limiter,
		retry:     retry,
		providers: providers,
		opts:      opts.withDefaults(),
	}, nil
}

// RunJob executes the job to a terminal status. The returned error reports
// infrastructure trouble (store unreachable, unknown job); scraping outcomes
// — including total failure of every provider — land in the job record, not
// in the error.
func (o *Orchestrator) RunJob(ctx context.Context, jobID string) (scrapejob.Job, error) {
	// Bookkeeping writes are detached from the caller's cancellation: a
	// shutdown mid-run aborts the provider call (via runCtx below) but must
	// not stop the job record from reaching a terminal status — a stuck
	// non-terminal job locks its area out of new scrapes.
	bookCtx := context.WithoutCancel(ctx)

	job, err := o.tracker.Get(bookCtx, jobID)
	if err != nil {
		return scrapejob.Job{}, err
	}
	if job.Terminal() {
		return job, nil
	}
	area := job.PostalCode

	if job.Status == scrapejob.StatusPending {
		if job.CancelRequested {
			return o.tracker.Finish(bookCtx, jobID, scrapejob.StatusCancelled, "cancelled before start", provider.KindCancelled)
		}
		if job, err = o.tracker.Begin(bookCtx, jobID); err != nil {
			return scrapejob.Job{}, fmt.Errorf("begin job %s: %w", jobID, err)
		}
	}

	// The job deadline binds provider calls and backoff sleeps, but not the
	// bookkeeping writes below — the job record must reach a terminal state
	// even after the deadline has passed.
	runCtx, cancel := context.WithTimeout(ctx, o.opts.Deadline)
	defer cancel()

	var (
		accumulated model.ResultSet
		lastErr     string
		lastKind    string
	)

	for rank, p := range o.providers {
		// Safe checkpoint: cancellation and deadline are observed between
		// provider attempts, never mid-call.
		if cancelled, err := o.tracker.CancelRequested(bookCtx, jobID); err != nil {
			return scrapejob.Job{}, err
		} else if cancelled {
			log.Printf("[orchestrator] Job %s cancelled before %s", jobID, p.ID())
			return o.tracker.Finish(bookCtx, jobID, scrapejob.StatusCancelled, "cancelled by request", provider.KindCancelled)
		}
		if runCtx.Err() != nil {
			return o.finishDeadline(bookCtx, jobID, accumulated)
		}

		if !p.Available() {
			log.Printf("[orchestrator] Job %s: skipping unavailable provider %s", jobID, p.ID())
			continue
		}

		log.Printf("[orchestrator] Job %s: attempting %s for area %s", jobID, p.ID(), area)
		started := time.Now().UTC()

		if err := o.limiter.Acquire(runCtx, p.ID()); err != nil {
			// Only the run deadline (or process shutdown) interrupts Acquire.
			return o.finishDeadline(bookCtx, jobID, accumulated)
		}

		set, fetchErr := o.retry.Execute(runCtx, func(callCtx context.Context) (model.ResultSet, error) {
			return p.Fetch(callCtx, area)
		})
		finished := time.Now().UTC()

		if fetchErr != nil {
			kind := attemptKind(fetchErr)
			att := scrapejob.Attempt{
				Provider:   p.ID(),
				StartedAt:  started,
				FinishedAt: finished,
				Outcome:    scrapejob.OutcomeFailure,
				ErrorKind:  kind,
				Error:      fetchErr.Error(),
			}
			if job, err = o.tracker.RecordAttempt(bookCtx, jobID, att, job.Summary); err != nil {
				return scrapejob.Job{}, err
			}

			switch kind {
			case provider.KindCancelled:
				return o.tracker.Finish(bookCtx, jobID, scrapejob.StatusCancelled, fetchErr.Error(), provider.KindCancelled)
			case provider.KindTimeout:
				return o.finishDeadline(bookCtx, jobID, accumulated)
			default:
				// terminal-provider or exhausted: advance to the next method.
				log.Printf("[orchestrator] Job %s: %s failed (%s) — falling back", jobID, p.ID(), kind)
				lastErr, lastKind = fetchErr.Error(), kind
				continue
			}
		}

		stamp(&set, p.ID(), rank, area, finished)
		accumulated = merge.Fold(accumulated, set)
		summary := scrapejob.Summary{Stores: len(accumulated.Stores), Offers: len(accumulated.Offers)}

		// Persist incrementally so partial data survives a later failure.
		// An all-empty set is not written: a refresh must not wipe previous
		// results before it has anything to replace them with.
		if !accumulated.Empty() {
			if err := o.tracker.SaveResults(bookCtx, area, accumulated); err != nil {
				return scrapejob.Job{}, fmt.Errorf("save results: %w", err)
			}
		}

		outcome := scrapejob.OutcomePartial
		switch {
		case o.opts.sufficient(summary):
			outcome = scrapejob.OutcomeSuccess
		case set.Empty():
			outcome = scrapejob.OutcomeFailure
		}
		att := scrapejob.Attempt{
			Provider:   p.ID(),
			StartedAt:  started,
			FinishedAt: finished,
			Outcome:    outcome,
			Stores:     len(set.Stores),
			Offers:     len(set.Offers),
		}
		if job, err = o.tracker.RecordAttempt(bookCtx, jobID, att, summary); err != nil {
			return scrapejob.Job{}, err
		}

		if outcome == scrapejob.OutcomeSuccess {
			log.Printf("[orchestrator] Job %s: %s sufficient (%d stores, %d offers)",
				jobID, p.ID(), summary.Stores, summary.Offers)
			return o.tracker.Finish(bookCtx, jobID, scrapejob.StatusCompleted, "", "")
		}
		if set.Empty() {
			lastErr, lastKind = "no data returned", provider.KindTerminalProvider
		}
		log.Printf("[orchestrator] Job %s: %s below threshold (%d stores, %d offers) — falling back",
			jobID, p.ID(), summary.Stores, summary.Offers)
	}

	// Provider list exhausted. Anything accumulated still counts as a
	// (partial) completion; zero usable data fails the job.
	if !accumulated.Empty() {
		return o.tracker.Finish(bookCtx, jobID, scrapejob.StatusCompleted, "", "")
	}
	if lastErr == "" {
		lastErr, lastKind = "no providers available", "terminal-job"
	}
	return o.tracker.Finish(bookCtx, jobID, scrapejob.StatusFailed, lastErr, lastKind)
}

// finishDeadline fails the job with the timeout classification, keeping
// whatever partial results were already persisted.
func (o *Orchestrator) finishDeadline(ctx context.Context, jobID string, accumulated model.ResultSet) (scrapejob.Job, error) {
	msg := fmt.Sprintf("deadline exceeded with %d stores, %d offers accumulated",
		len(accumulated.Stores), len(accumulated.Offers))
	return o.tracker.Finish(ctx, jobID, scrapejob.StatusFailed, msg, provider.KindTimeout)
}

// attemptKind maps a provider-call failure to the kind recorded on the
// attempt. Retry exhaustion is its own label so the audit trail shows the
// difference between "method refused" and "method kept timing out".
func attemptKind(err error) string {
	var exhausted *retrypolicy.ExhaustedError
	if errors.As(err, &exhausted) {
		return "exhausted"
	}
	return provider.Classify(err)
}

// stamp fills provenance fields the provider left blank and applies the
// default validity window (flyers are weekly) to undated offers.
func stamp(set *model.ResultSet, providerID string, rank int, area model.Area, scrapedAt time.Time) {
	for i := range set.Stores {
		s := &set.Stores[i]
		if s.Source == "" {
			s.Source = providerID
		}
		s.SourceRank = rank
		if s.PostalCode == "" {
			s.PostalCode = area
		}
	}
	today := time.Date(scrapedAt.Year(), scrapedAt.Month(), scrapedAt.Day(), 0, 0, 0, 0, time.UTC)
	for i := range set.Offers {
		o := &set.Offers[i]
		if o.Source == "" {
			o.Source = providerID
		}
		if o.PostalCode == "" {
			o.PostalCode = area
		}
		if o.ScrapedAt.IsZero() {
			o.ScrapedAt = scrapedAt
		}
		if o.StartDate.IsZero() && o.EndDate.IsZero() {
			o.StartDate = today
			o.EndDate = today.AddDate(0, 0, 6)
		}
	}
}
