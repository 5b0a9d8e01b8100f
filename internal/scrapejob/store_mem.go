package scrapejob

import (
	"context"
	"sync"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

// MemoryStore is an in-process JobStore + ResultStore. It backs tests and
// single-node development runs; production deployments use PgStore so the
// one-active-job-per-area guarantee holds across instances.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]Job
	results map[model.Area]model.ResultSet
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]Job),
		results: make(map[model.Area]model.ResultSet),
	}
}

// CreateIfNoneActive implements the atomic check-and-create under one mutex:
// concurrent callers for the same area serialize here, so exactly one insert
// wins and the loser gets the winner's job back.
func (m *MemoryStore) CreateIfNoneActive(_ context.Context, job Job) (Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.jobs {
		if existing.PostalCode == job.PostalCode && !IsTerminal(existing.Status) {
			return existing, false, nil
		}
	}
	m.jobs[job.ID] = job
	return job, true, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, to Status, lastError, errorKind string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if IsTerminal(job.Status) {
		return Job{}, ErrTerminal
	}
	if !IsTransitionAllowed(job.Status, to) {
		return Job{}, &TransitionError{From: job.Status, To: to}
	}

	now := time.Now().UTC()
	job.Status = to
	job.UpdatedAt = now
	switch {
	case to == StatusRunning:
		job.StartedAt = now
	case IsTerminal(to):
		job.CompletedAt = now
		job.LastError = lastError
		job.ErrorKind = errorKind
	}
	m.jobs[id] = job
	return job, nil
}

func (m *MemoryStore) AppendAttempt(_ context.Context, id string, att Attempt, summary Summary) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if IsTerminal(job.Status) {
		return Job{}, ErrTerminal
	}

	job.Attempts = append(job.Attempts, att)
	job.Summary = summary
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return job, nil
}

func (m *MemoryStore) RequestCancel(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if IsTerminal(job.Status) {
		return Job{}, ErrTerminal
	}
	job.CancelRequested = true
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return job, nil
}

func (m *MemoryStore) CancelRequested(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	return job.CancelRequested, nil
}

func (m *MemoryStore) LatestCompleted(_ context.Context, area model.Area) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest Job
	found := false
	for _, job := range m.jobs {
		if job.PostalCode != area || job.Status != StatusCompleted {
			continue
		}
		if !found || job.CompletedAt.After(latest.CompletedAt) {
			latest = job
			found = true
		}
	}
	if !found {
		return Job{}, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) StaleActive(_ context.Context, cutoff time.Time) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []Job
	for _, job := range m.jobs {
		if !IsTerminal(job.Status) && !job.UpdatedAt.After(cutoff) {
			stale = append(stale, job)
		}
	}
	return stale, nil
}

// TrackedAreas lists every area a scrape has ever been requested for.
func (m *MemoryStore) TrackedAreas(_ context.Context) ([]model.Area, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[model.Area]bool)
	var areas []model.Area
	for _, job := range m.jobs {
		if !seen[job.PostalCode] {
			seen[job.PostalCode] = true
			areas = append(areas, job.PostalCode)
		}
	}
	return areas, nil
}

func (m *MemoryStore) ReplaceResults(_ context.Context, area model.Area, set model.ResultSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[area] = set
	return nil
}

// Results returns the stored set with expired offers filtered out, matching
// what the SQL store serves (end_date IS NULL OR end_date >= CURRENT_DATE).
func (m *MemoryStore) Results(_ context.Context, area model.Area) (model.ResultSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.results[area]
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	current := make([]model.OfferCandidate, 0, len(set.Offers))
	for _, o := range set.Offers {
		if o.Expired(today) {
			continue
		}
		current = append(current, o)
	}
	set.Offers = current
	return set, nil
}
