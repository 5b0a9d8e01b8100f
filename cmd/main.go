// grocery-scraper-service
//
// Orchestrates grocery store and flyer-offer scraping per postal code.
// Exposes a REST API used by the planner to implement:
//   - startScrape(postalCode, forceRefresh) — create or reuse a scrape job
//   - scrapeStatus(jobId)                   — poll attempts and summary
//   - cancelScrape(jobId)                   — cooperative cancellation
//   - areaResults(postalCode)               — merged stores and offers
//
// Providers are tried in strict priority order with per-provider retry;
// results fold incrementally so partial data survives later failures.
// Publishes job events to Redis for SSE forwarding.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/api"
	"github.com/divaadaan/grocery-ai-planner/internal/config"
	"github.com/divaadaan/grocery-ai-planner/internal/db"
	"github.com/divaadaan/grocery-ai-planner/internal/orchestrator"
	"github.com/divaadaan/grocery-ai-planner/internal/provider"
	"github.com/divaadaan/grocery-ai-planner/internal/ratelimit"
	"github.com/divaadaan/grocery-ai-planner/internal/retrypolicy"
	"github.com/divaadaan/grocery-ai-planner/internal/scheduler"
	"github.com/divaadaan/grocery-ai-planner/internal/scrapejob"
	"github.com/divaadaan/grocery-ai-planner/internal/tasks"

	"github.com/redis/go-redis/v9"
)

const version = "1.0.0"

const scrapeWorkers = 2

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[scraper-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		jobs    scrapejob.JobStore
		results scrapejob.ResultStore
		areas   scheduler.AreaSource
		rdb     *redis.Client
		queue   tasks.Queue
	)

	if cfg.DevMode {
		log.Println("[scraper-service] DEV_MODE — in-memory storage and queue")
		mem := scrapejob.NewMemoryStore()
		jobs, results, areas = mem, mem, mem
		queue = tasks.NewMemoryQueue()
	} else {
		log.Println("[scraper-service] Connecting to PostgreSQL…")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[scraper-service] PostgreSQL: %v", err)
		}
		defer pool.Close()
		log.Println("[scraper-service] PostgreSQL connected ✓")

		pg := scrapejob.NewPgStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("[scraper-service] Schema: %v", err)
		}
		jobs, results, areas = pg, pg, pg

		log.Println("[scraper-service] Connecting to Redis…")
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[scraper-service] Redis: %v", err)
		}
		defer rdb.Close()
		log.Println("[scraper-service] Redis connected ✓")

		queue = tasks.NewRedisQueue(rdb)
	}

	tracker := scrapejob.NewTracker(jobs, results, rdb, cfg.StalenessAfter)

	// ── Providers, in strict priority order ──────────────────────────────────
	providers := []provider.Provider{
		provider.NewFlipp(""),
		provider.NewFlyerWeb(""),
		provider.NewBrowser(cfg.BrowserEnabled, ""),
		provider.NewPDFOCR(cfg.OCREndpoint, ""),
		provider.NewVision(cfg.VisionEndpoint, cfg.VisionAPIKey, cfg.VisionModel, ""),
	}
	for _, p := range providers {
		log.Printf("[scraper-service] provider %-10s available=%v", p.ID(), p.Available())
	}

	limiter := ratelimit.New(cfg.ProviderInterval)
	limiter.SetInterval(provider.IDBrowser, cfg.BrowserInterval)

	orch, err := orchestrator.New(tracker, limiter, retrypolicy.Default(), providers, orchestrator.Options{
		MinStores: cfg.MinStores,
		MinOffers: cfg.MinOffers,
		Deadline:  cfg.JobDeadline,
	})
	if err != nil {
		log.Fatalf("[scraper-service] Orchestrator: %v", err)
	}

	// ── Workers + staleness refresh ──────────────────────────────────────────
	wg := tasks.NewWorker(queue, orch).Start(ctx, scrapeWorkers)

	sched := scheduler.New(areas, tracker, queue, cfg.StalenessAfter/4, 2*cfg.JobDeadline)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[scraper-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	api.NewHandler(tracker, queue, providers).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[scraper-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[scraper-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[scraper-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[scraper-service] Shutdown error: %v", err)
	}

	cancel()
	wg.Wait()
	log.Println("[scraper-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "scraper-service",
		"version": version,
	})
}
