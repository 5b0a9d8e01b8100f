// Package scheduler wires up the cron job that re-scrapes areas once their
// stored results go stale.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
	"github.com/divaadaan/grocery-ai-planner/internal/scrapejob"
	"github.com/divaadaan/grocery-ai-planner/internal/tasks"
)

// AreaSource enumerates the areas worth keeping fresh.
type AreaSource interface {
	TrackedAreas(ctx context.Context) ([]model.Area, error)
}

// Scheduler wraps robfig/cron and manages the refresh loop.
type Scheduler struct {
	cron    *cron.Cron
	areas   AreaSource
	tracker *scrapejob.Tracker
	queue   tasks.Queue
	jobTTL  time.Duration // active jobs idle longer than this are abandoned
	spec    string        // cron spec, e.g. "@every 1h"
}

// New creates a Scheduler that sweeps on every tick: first it fails jobs
// orphaned by a crashed worker (active but idle beyond jobTTL), then it
// re-enqueues areas whose results went stale. Sweeping more often than the
// staleness window is harmless: job creation short-circuits for areas with a
// fresh completed run.
func New(areas AreaSource, tracker *scrapejob.Tracker, queue tasks.Queue, every, jobTTL time.Duration) *Scheduler {
	if every < time.Minute {
		every = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cron.DefaultLogger)),
		areas:   areas,
		tracker: tracker,
		queue:   queue,
		jobTTL:  jobTTL,
		spec:    fmt.Sprintf("@every %s", every),
	}
}

// Start registers the job and starts the scheduler. Also runs one sweep
// immediately so a restart does not delay overdue refreshes by a full tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)

	go s.sweep(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

// sweep enqueues a refresh job for every tracked area whose results are
// stale. Fresh areas and areas with a run already in flight are skipped by
// Tracker.Start.
func (s *Scheduler) sweep(ctx context.Context) {
	log.Println("[scheduler] Refresh sweep started")

	// Jobs orphaned by a crash hold their area's active-job slot forever;
	// failing them first lets the refresh below schedule a replacement.
	if recovered, err := s.tracker.RecoverStale(ctx, s.jobTTL); err != nil {
		log.Printf("[scheduler] RecoverStale error: %v", err)
	} else if recovered > 0 {
		log.Printf("[scheduler] Recovered %d abandoned job(s)", recovered)
	}

	areas, err := s.areas.TrackedAreas(ctx)
	if err != nil {
		log.Printf("[scheduler] TrackedAreas error: %v", err)
		return
	}
	if len(areas) == 0 {
		log.Println("[scheduler] No tracked areas — nothing to refresh")
		return
	}

	enqueued := 0
	for _, area := range areas {
		job, created, err := s.tracker.Start(ctx, area, false)
		if err != nil {
			log.Printf("[scheduler] Start error for area %s: %v", area, err)
			continue
		}
		if !created {
			continue // fresh results or a run already in flight
		}
		if err := s.queue.Enqueue(ctx, job.ID); err != nil {
			log.Printf("[scheduler] Enqueue error for job %s: %v", job.ID, err)
			continue
		}
		enqueued++
	}

	log.Printf("[scheduler] Refresh sweep complete — %d of %d area(s) enqueued", enqueued, len(areas))
}
