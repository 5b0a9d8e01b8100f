package scrapejob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = fmt.Errorf("scrape job not found")

// ErrTerminal is returned when an operation targets a job that has already
// reached a final status.
var ErrTerminal = fmt.Errorf("scrape job already terminal")

// ─── Store interfaces ────────────────────────────────────────────────────────

// JobStore persists scrape jobs. CreateIfNoneActive must be atomic: two
// concurrent calls for the same area must agree on a single winner even
// across multiple service instances.
type JobStore interface {
	// CreateIfNoneActive inserts job unless a non-terminal job already exists
	// for the same area. It returns the stored job and whether the insert won.
	CreateIfNoneActive(ctx context.Context, job Job) (Job, bool, error)
	Get(ctx context.Context, id string) (Job, error)
	// Transition moves the job to status, recording the timestamps that go
	// with it. It fails when the state machine forbids the move.
	Transition(ctx context.Context, id string, to Status, lastError, errorKind string) (Job, error)
	// AppendAttempt appends one attempt record and updates the running summary.
	AppendAttempt(ctx context.Context, id string, att Attempt, summary Summary) (Job, error)
	RequestCancel(ctx context.Context, id string) (Job, error)
	CancelRequested(ctx context.Context, id string) (bool, error)
	// LatestCompleted returns the most recent completed job for an area, or
	// ErrNotFound when the area has never completed a run.
	LatestCompleted(ctx context.Context, area model.Area) (Job, error)
	// StaleActive lists non-terminal jobs with no update since cutoff —
	// typically jobs orphaned by a crash or kill mid-run.
	StaleActive(ctx context.Context, cutoff time.Time) ([]Job, error)
}

// ResultStore persists merged store/offer sets keyed by area.
type ResultStore interface {
	// ReplaceResults atomically swaps the stored candidate set for an area.
	ReplaceResults(ctx context.Context, area model.Area, set model.ResultSet) error
	Results(ctx context.Context, area model.Area) (model.ResultSet, error)
}

// ─── Tracker ─────────────────────────────────────────────────────────────────

// Tracker encapsulates job lifecycle logic on top of a JobStore.
// It is transport-agnostic: used by the HTTP handlers, the orchestrator and
// the background worker alike. Progress events are published to Redis so the
// gateway can forward them as SSE; publishing is best-effort and never fails
// an operation.
type Tracker struct {
	jobs      JobStore
	results   ResultStore
	rdb       *redis.Client
	staleness time.Duration
}

// NewTracker returns a configured Tracker. rdb may be nil, in which case no
// events are published. staleness controls how old a completed run may be
// before Start schedules a fresh one.
func NewTracker(jobs JobStore, results ResultStore, rdb *redis.Client, staleness time.Duration) *Tracker {
	return &Tracker{jobs: jobs, results: results, rdb: rdb, staleness: staleness}
}

// Start creates a new pending job for the area, unless one of the following
// short-circuits apply:
//
//   - a non-terminal job already exists for the area → that job is returned
//     (idempotent "already in progress" contract),
//   - force is false and a completed run exists within the staleness window
//     → that run is returned and nothing is scheduled.
//
// The second return value reports whether a new job was actually created.
func (t *Tracker) Start(ctx context.Context, area model.Area, force bool) (Job, bool, error) {
	if !force {
		last, err := t.jobs.LatestCompleted(ctx, area)
		if err == nil && time.Since(last.CompletedAt) < t.staleness {
			return last, false, nil
		}
		if err != nil && err != ErrNotFound {
			return Job{}, false, fmt.Errorf("latest completed lookup: %w", err)
		}
	}

	now := time.Now().UTC()
	job := Job{
		ID:         uuid.NewString(),
		PostalCode: area,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	stored, created, err := t.jobs.CreateIfNoneActive(ctx, job)
	if err != nil {
		return Job{}, false, fmt.Errorf("create job: %w", err)
	}
	if created {
		t.publish(ctx, "EVENT_JOB_CREATED", stored)
	}
	return stored, created, nil
}

// Get returns the job by ID.
func (t *Tracker) Get(ctx context.Context, id string) (Job, error) {
	return t.jobs.Get(ctx, id)
}

// Begin transitions a pending job to running.
func (t *Tracker) Begin(ctx context.Context, id string) (Job, error) {
	job, err := t.jobs.Transition(ctx, id, StatusRunning, "", "")
	if err != nil {
		return Job{}, err
	}
	t.publish(ctx, "EVENT_JOB_STARTED", job)
	return job, nil
}

// RecordAttempt appends one provider attempt and the accumulated summary,
// making mid-run progress visible to pollers immediately.
func (t *Tracker) RecordAttempt(ctx context.Context, id string, att Attempt, summary Summary) (Job, error) {
	job, err := t.jobs.AppendAttempt(ctx, id, att, summary)
	if err != nil {
		return Job{}, err
	}
	t.publish(ctx, "EVENT_JOB_PROGRESS", job)
	return job, nil
}

// Finish moves the job to a terminal status.
func (t *Tracker) Finish(ctx context.Context, id string, to Status, lastError, errorKind string) (Job, error) {
	if !IsTerminal(to) {
		return Job{}, fmt.Errorf("finish with non-terminal status %q", to)
	}
	job, err := t.jobs.Transition(ctx, id, to, lastError, errorKind)
	if err != nil {
		return Job{}, err
	}
	t.publish(ctx, "EVENT_JOB_FINISHED", job)
	return job, nil
}

// RequestCancel flags the job for cooperative cancellation. The orchestrator
// observes the flag between provider attempts; an in-flight provider call is
// allowed to finish first. Pending jobs are cancelled outright since no
// attempt is running.
func (t *Tracker) RequestCancel(ctx context.Context, id string) (Job, error) {
	job, err := t.jobs.RequestCancel(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Status == StatusPending {
		return t.Finish(ctx, id, StatusCancelled, "cancelled before start", "cancelled")
	}
	return job, nil
}

// RecoverStale fails every non-terminal job that has seen no update for
// olderThan. A worker that dies mid-run leaves its job active with the queue
// entry already consumed; until the job reaches a terminal status its area
// cannot be scraped again. Returns the number of jobs recovered.
func (t *Tracker) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	stale, err := t.jobs.StaleActive(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	recovered := 0
	for _, job := range stale {
		// The state machine allows running→failed but only pending→cancelled.
		to := StatusFailed
		if job.Status == StatusPending {
			to = StatusCancelled
		}
		msg := fmt.Sprintf("abandoned: no progress since %s", job.UpdatedAt.Format(time.RFC3339))
		if _, err := t.Finish(ctx, job.ID, to, msg, "timeout"); err != nil {
			// Lost a race with a live worker or another sweeper; skip.
			slog.Warn("recover stale job failed", "jobId", job.ID, "err", err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

// CancelRequested reports whether cancellation has been requested for the job.
func (t *Tracker) CancelRequested(ctx context.Context, id string) (bool, error) {
	return t.jobs.CancelRequested(ctx, id)
}

// SaveResults persists the accumulated candidate set for the job's area.
// Called after every provider fold so partial data survives a later failure.
func (t *Tracker) SaveResults(ctx context.Context, area model.Area, set model.ResultSet) error {
	return t.results.ReplaceResults(ctx, area, set)
}

// Results returns the stored candidate set for an area.
func (t *Tracker) Results(ctx context.Context, area model.Area) (model.ResultSet, error) {
	return t.results.Results(ctx, area)
}

// publish emits a job event to Redis (non-fatal).
func (t *Tracker) publish(ctx context.Context, event string, job Job) {
	if t.rdb == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"type":       event,
		"jobId":      job.ID,
		"postalCode": job.PostalCode,
		"status":     job.Status,
		"summary":    job.Summary,
	})
	if err := t.rdb.Publish(ctx, "scrape:events", payload).Err(); err != nil {
		slog.Warn("publish job event failed", "event", event, "jobId", job.ID, "err", err)
	}
}
