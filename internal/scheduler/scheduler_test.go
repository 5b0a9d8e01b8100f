package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
	"github.com/divaadaan/grocery-ai-planner/internal/scrapejob"
	"github.com/divaadaan/grocery-ai-planner/internal/tasks"
)

func drain(t *testing.T, q tasks.Queue) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var ids []string
	for {
		id, err := q.Dequeue(ctx)
		if err != nil {
			return ids
		}
		ids = append(ids, id)
	}
}

func TestSweepEnqueuesStaleAreasOnly(t *testing.T) {
	store := scrapejob.NewMemoryStore()
	tracker := scrapejob.NewTracker(store, store, nil, time.Hour)
	queue := tasks.NewMemoryQueue()
	ctx := context.Background()

	// Zero staleness makes every completed run count as stale.
	staleTracker := scrapejob.NewTracker(store, store, nil, 0)

	staleArea, _ := model.NewArea("M5V3A8")
	job, created, err := tracker.Start(ctx, staleArea, false)
	if err != nil || !created {
		t.Fatalf("seed Start: created=%v err=%v", created, err)
	}
	if _, err := tracker.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tracker.Finish(ctx, job.ID, scrapejob.StatusCompleted, "", ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	s := New(store, staleTracker, queue, time.Hour, time.Hour)
	s.sweep(ctx)

	ids := drain(t, queue)
	if len(ids) != 1 {
		t.Fatalf("enqueued %d job(s), want 1", len(ids))
	}
	got, err := tracker.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get enqueued job: %v", err)
	}
	if got.PostalCode != staleArea || got.Status != scrapejob.StatusPending {
		t.Errorf("enqueued job = %+v", got)
	}
}

func TestSweepSkipsFreshAndInFlightAreas(t *testing.T) {
	store := scrapejob.NewMemoryStore()
	tracker := scrapejob.NewTracker(store, store, nil, time.Hour)
	queue := tasks.NewMemoryQueue()
	ctx := context.Background()

	// Fresh area: completed just now, well within the staleness window.
	fresh, _ := model.NewArea("K1A0B1")
	job, _, err := tracker.Start(ctx, fresh, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := tracker.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tracker.Finish(ctx, job.ID, scrapejob.StatusCompleted, "", ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// In-flight area: pending job already exists.
	inflight, _ := model.NewArea("H0H0H0")
	if _, _, err := tracker.Start(ctx, inflight, false); err != nil {
		t.Fatalf("Start inflight: %v", err)
	}

	s := New(store, tracker, queue, time.Hour, time.Hour)
	s.sweep(ctx)

	if ids := drain(t, queue); len(ids) != 0 {
		t.Errorf("enqueued %v, want nothing", ids)
	}
}

func TestSweepRecoversAbandonedJobAndReschedulesArea(t *testing.T) {
	store := scrapejob.NewMemoryStore()
	// Zero staleness: any completed run counts as stale for rescheduling.
	tracker := scrapejob.NewTracker(store, store, nil, 0)
	queue := tasks.NewMemoryQueue()
	ctx := context.Background()

	// A worker picked this job up and died: running, queue entry consumed.
	area, _ := model.NewArea("M5V3A8")
	job, _, err := tracker.Start(ctx, area, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := tracker.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Zero TTL treats any idle active job as abandoned.
	s := New(store, tracker, queue, time.Hour, 0)
	s.sweep(ctx)

	got, err := tracker.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != scrapejob.StatusFailed {
		t.Fatalf("abandoned job status = %s, want failed", got.Status)
	}
	if got.ErrorKind != "timeout" {
		t.Errorf("ErrorKind = %q, want timeout", got.ErrorKind)
	}

	// The area's active slot is free again and a replacement was enqueued.
	ids := drain(t, queue)
	if len(ids) != 1 {
		t.Fatalf("enqueued %d job(s), want 1 replacement", len(ids))
	}
	if ids[0] == job.ID {
		t.Error("replacement must be a new job, not the abandoned one")
	}
	replacement, err := tracker.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get replacement: %v", err)
	}
	if replacement.PostalCode != area || replacement.Status != scrapejob.StatusPending {
		t.Errorf("replacement = %+v", replacement)
	}
}
