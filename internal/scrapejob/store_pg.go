package scrapejob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

// PgStore persists jobs and results in PostgreSQL. The one-active-job-per-
// area invariant is enforced by a partial unique index rather than in-process
// locking, so it holds across horizontally scaled service instances.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a store backed by pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema creates the tables and indexes the store needs.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS scrape_jobs (
			id               UUID PRIMARY KEY,
			postal_code      TEXT NOT NULL,
			status           TEXT NOT NULL,
			attempts         JSONB NOT NULL DEFAULT '[]'::jsonb,
			stores_found     INT NOT NULL DEFAULT 0,
			offers_found     INT NOT NULL DEFAULT 0,
			last_error       TEXT NOT NULL DEFAULT '',
			error_kind       TEXT NOT NULL DEFAULT '',
			cancel_requested BOOLEAN NOT NULL DEFAULT false,
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			started_at       TIMESTAMPTZ,
			completed_at     TIMESTAMPTZ
		)`,
	// The arena-style uniqueness constraint: at most one non-terminal job
	// per postal code, enforced by the database.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_scrape_jobs_active_area
			ON scrape_jobs (postal_code)
			WHERE status IN ('pending', 'running')`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_jobs_area_completed
			ON scrape_jobs (postal_code, completed_at DESC)
			WHERE status = 'completed'`,
	// Store identity during merging is (name, address); the row key must
	// carry both or two branches of one chain collapse on persist.
	`CREATE TABLE IF NOT EXISTS stores (
			postal_code TEXT NOT NULL,
			name        TEXT NOT NULL,
			address     TEXT NOT NULL DEFAULT '',
			data        JSONB NOT NULL,
			PRIMARY KEY (postal_code, name, address)
		)`,
	`CREATE TABLE IF NOT EXISTS current_offers (
			postal_code  TEXT NOT NULL,
			store_name   TEXT NOT NULL,
			product_name TEXT NOT NULL,
			end_date     DATE,
			data         JSONB NOT NULL
		)`,
	`CREATE INDEX IF NOT EXISTS idx_current_offers_area
			ON current_offers (postal_code)`,
}

// ─── JobStore ────────────────────────────────────────────────────────────────

func (s *PgStore) CreateIfNoneActive(ctx context.Context, job Job) (Job, bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (id, postal_code, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (postal_code) WHERE status IN ('pending', 'running') DO NOTHING`,
		job.ID, job.PostalCode.String(), string(job.Status), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return Job{}, false, fmt.Errorf("insert scrape job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return job, true, nil
	}

	// Lost the race (or a run was already active) — return the winner.
	existing, err := s.activeForArea(ctx, job.PostalCode)
	if err != nil {
		return Job{}, false, err
	}
	return existing, false, nil
}

func (s *PgStore) activeForArea(ctx context.Context, area model.Area) (Job, error) {
	row := s.pool.QueryRow(ctx,
		selectJob+` WHERE postal_code = $1 AND status IN ('pending', 'running')`,
		area.String(),
	)
	return scanJob(row)
}

func (s *PgStore) Get(ctx context.Context, id string) (Job, error) {
	row := s.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, id)
	return scanJob(row)
}

func (s *PgStore) Transition(ctx context.Context, id string, to Status, lastError, errorKind string) (Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if IsTerminal(job.Status) {
		return Job{}, ErrTerminal
	}
	if !IsTransitionAllowed(job.Status, to) {
		return Job{}, &TransitionError{From: job.Status, To: to}
	}

	now := time.Now().UTC()
	var row pgx.Row
	switch {
	case to == StatusRunning:
		row = s.pool.QueryRow(ctx,
			`UPDATE scrape_jobs
			 SET status = $1, started_at = $2, updated_at = $2
			 WHERE id = $3 AND status = $4
			 RETURNING `+jobColumns,
			string(to), now, id, string(job.Status),
		)
	default: // terminal
		row = s.pool.QueryRow(ctx,
			`UPDATE scrape_jobs
			 SET status = $1, completed_at = $2, updated_at = $2,
			     last_error = $3, error_kind = $4
			 WHERE id = $5 AND status = $6
			 RETURNING `+jobColumns,
			string(to), now, lastError, errorKind, id, string(job.Status),
		)
	}

	updated, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		// Job moved under us between read and update.
		return Job{}, ErrTerminal
	}
	return updated, err
}

func (s *PgStore) AppendAttempt(ctx context.Context, id string, att Attempt, summary Summary) (Job, error) {
	entry, err := json.Marshal(att)
	if err != nil {
		return Job{}, fmt.Errorf("marshal attempt: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE scrape_jobs
		 SET attempts     = attempts || $1::jsonb,
		     stores_found = $2,
		     offers_found = $3,
		     updated_at   = NOW()
		 WHERE id = $4 AND status IN ('pending', 'running')
		 RETURNING `+jobColumns,
		fmt.Sprintf("[%s]", entry), summary.Stores, summary.Offers, id,
	)
	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return Job{}, ErrTerminal
		}
		return Job{}, ErrNotFound
	}
	return job, err
}

func (s *PgStore) RequestCancel(ctx context.Context, id string) (Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE scrape_jobs
		 SET cancel_requested = true, updated_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'running')
		 RETURNING `+jobColumns,
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return Job{}, ErrTerminal
		}
		return Job{}, ErrNotFound
	}
	return job, err
}

func (s *PgStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM scrape_jobs WHERE id = $1`, id,
	).Scan(&requested)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	return requested, err
}

func (s *PgStore) LatestCompleted(ctx context.Context, area model.Area) (Job, error) {
	row := s.pool.QueryRow(ctx,
		selectJob+` WHERE postal_code = $1 AND status = 'completed'
		 ORDER BY completed_at DESC LIMIT 1`,
		area.String(),
	)
	return scanJob(row)
}

func (s *PgStore) StaleActive(ctx context.Context, cutoff time.Time) ([]Job, error) {
	rows, err := s.pool.Query(ctx,
		selectJob+` WHERE status IN ('pending', 'running') AND updated_at <= $1`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale jobs: %w", err)
	}
	defer rows.Close()

	var stale []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, job)
	}
	return stale, rows.Err()
}

// TrackedAreas lists every area a scrape has ever been requested for. The
// staleness refresher enumerates these; freshness filtering happens at job
// creation.
func (s *PgStore) TrackedAreas(ctx context.Context) ([]model.Area, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT postal_code FROM scrape_jobs ORDER BY postal_code`)
	if err != nil {
		return nil, fmt.Errorf("query tracked areas: %w", err)
	}
	defer rows.Close()

	var areas []model.Area
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan area: %w", err)
		}
		areas = append(areas, model.Area(code))
	}
	return areas, rows.Err()
}

// ─── ResultStore ─────────────────────────────────────────────────────────────

// ReplaceResults swaps the stored candidate set for the area in one
// transaction, so readers never observe a half-written refresh.
func (s *PgStore) ReplaceResults(ctx context.Context, area model.Area, set model.ResultSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM stores WHERE postal_code = $1`, area.String()); err != nil {
		return fmt.Errorf("clear stores: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM current_offers WHERE postal_code = $1`, area.String()); err != nil {
		return fmt.Errorf("clear offers: %w", err)
	}

	for _, store := range set.Stores {
		data, err := json.Marshal(store)
		if err != nil {
			return fmt.Errorf("marshal store: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO stores (postal_code, name, address, data) VALUES ($1, $2, $3, $4::jsonb)
			 ON CONFLICT (postal_code, name, address) DO UPDATE SET data = EXCLUDED.data`,
			area.String(), store.Name, store.Address, string(data),
		); err != nil {
			return fmt.Errorf("insert store: %w", err)
		}
	}
	for _, offer := range set.Offers {
		data, err := json.Marshal(offer)
		if err != nil {
			return fmt.Errorf("marshal offer: %w", err)
		}
		var endDate any
		if !offer.EndDate.IsZero() {
			endDate = offer.EndDate
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO current_offers (postal_code, store_name, product_name, end_date, data)
			 VALUES ($1, $2, $3, $4, $5::jsonb)`,
			area.String(), offer.StoreName, offer.ProductName, endDate, string(data),
		); err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Results returns the stored set for an area, excluding expired offers.
func (s *PgStore) Results(ctx context.Context, area model.Area) (model.ResultSet, error) {
	var set model.ResultSet

	rows, err := s.pool.Query(ctx,
		`SELECT data FROM stores WHERE postal_code = $1 ORDER BY name`, area.String())
	if err != nil {
		return set, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return set, fmt.Errorf("scan store: %w", err)
		}
		var store model.StoreCandidate
		if err := json.Unmarshal(data, &store); err != nil {
			return set, fmt.Errorf("unmarshal store: %w", err)
		}
		set.Stores = append(set.Stores, store)
	}
	if err := rows.Err(); err != nil {
		return set, err
	}

	offerRows, err := s.pool.Query(ctx,
		`SELECT data FROM current_offers
		 WHERE postal_code = $1 AND (end_date IS NULL OR end_date >= CURRENT_DATE)
		 ORDER BY store_name, product_name`,
		area.String())
	if err != nil {
		return set, fmt.Errorf("query offers: %w", err)
	}
	defer offerRows.Close()
	for offerRows.Next() {
		var data []byte
		if err := offerRows.Scan(&data); err != nil {
			return set, fmt.Errorf("scan offer: %w", err)
		}
		var offer model.OfferCandidate
		if err := json.Unmarshal(data, &offer); err != nil {
			return set, fmt.Errorf("unmarshal offer: %w", err)
		}
		set.Offers = append(set.Offers, offer)
	}
	return set, offerRows.Err()
}

// ─── Row helpers ─────────────────────────────────────────────────────────────

const jobColumns = `id, postal_code, status, attempts, stores_found, offers_found,
	last_error, error_kind, cancel_requested, created_at, updated_at, started_at, completed_at`

const selectJob = `SELECT ` + jobColumns + ` FROM scrape_jobs`

func scanJob(row pgx.Row) (Job, error) {
	var (
		job        Job
		postalCode string
		status     string
		attempts   []byte
		startedAt  *time.Time
		completed  *time.Time
	)
	err := row.Scan(
		&job.ID, &postalCode, &status, &attempts,
		&job.Summary.Stores, &job.Summary.Offers,
		&job.LastError, &job.ErrorKind, &job.CancelRequested,
		&job.CreatedAt, &job.UpdatedAt, &startedAt, &completed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scan scrape job: %w", err)
	}

	job.PostalCode = model.Area(postalCode)
	job.Status = Status(status)
	if err := json.Unmarshal(attempts, &job.Attempts); err != nil {
		return Job{}, fmt.Errorf("unmarshal attempts: %w", err)
	}
	if startedAt != nil {
		job.StartedAt = *startedAt
	}
	if completed != nil {
		job.CompletedAt = *completed
	}
	return job, nil
}
