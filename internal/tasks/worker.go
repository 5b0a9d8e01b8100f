package tasks

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/divaadaan/grocery-ai-planner/internal/orchestrator"
	"github.com/divaadaan/grocery-ai-planner/internal/scrapejob"
)

// Worker pops job IDs off the queue and runs them through the orchestrator.
// Jobs run one at a time per worker; concurrency comes from running several
// workers, and per-area exclusivity is enforced at job creation, not here.
type Worker struct {
	queue Queue
	orch  *orchestrator.Orchestrator
}

func NewWorker(queue Queue, orch *orchestrator.Orchestrator) *Worker {
	return &Worker{queue: queue, orch: orch}
}

// Start launches n worker goroutines that drain the queue until ctx is
// cancelled. The returned WaitGroup is done once all workers have exited.
func (w *Worker) Start(ctx context.Context, n int) *sync.WaitGroup {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	log.Printf("[worker] %d scrape worker(s) started", n)
	return &wg
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			log.Printf("[worker] worker %d stopping", id)
			return
		}

		jobID, err := w.queue.Dequeue(ctx)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[worker] worker %d stopping", id)
				return
			}
			log.Printf("[worker] dequeue error: %v", err)
			continue
		}

		w.runOne(ctx, id, jobID)
	}
}

func (w *Worker) runOne(ctx context.Context, workerID int, jobID string) {
	log.Printf("[worker] worker %d picked up job %s", workerID, jobID)

	job, err := w.orch.RunJob(ctx, jobID)
	if errors.Is(err, scrapejob.ErrNotFound) {
		log.Printf("[worker] job %s vanished before it could run", jobID)
		return
	}
	if err != nil {
		log.Printf("[worker] job %s error: %v", jobID, err)
		return
	}

	log.Printf("[worker] job %s finished — status=%s stores=%d offers=%d attempts=%d",
		job.ID, job.Status, job.Summary.Stores, job.Summary.Offers, len(job.Attempts))
}
