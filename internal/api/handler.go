// Package api implements the HTTP handlers for the scraping service.
//
// Routes:
//
//	POST /scrape/jobs               → start (or reuse) a scrape job for a postal code
//	GET  /scrape/jobs/{id}          → poll job status, attempts and summary
//	POST /scrape/jobs/{id}/cancel   → request cooperative cancellation
//	GET  /scrape/results            → merged stores/offers for a postal code
//	GET  /scrape/methods            → acquisition method availability
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
	"github.com/divaadaan/grocery-ai-planner/internal/provider"
	"github.com/divaadaan/grocery-ai-planner/internal/scrapejob"
	"github.com/divaadaan/grocery-ai-planner/internal/tasks"
)

// Handler holds shared dependencies.
type Handler struct {
	tracker   *scrapejob.Tracker
	queue     tasks.Queue
	providers []provider.Provider
}

// NewHandler returns a configured Handler.
func NewHandler(tracker *scrapejob.Tracker, queue tasks.Queue, providers []provider.Provider) *Handler {
	return &Handler{tracker: tracker, queue: queue, providers: providers}
}

// RegisterRoutes mounts all scraping-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/scrape/jobs", h.handleJobs)
	mux.HandleFunc("/scrape/jobs/", h.handleJobAction)
	mux.HandleFunc("/scrape/results", h.handleResults)
	mux.HandleFunc("/scrape/methods", h.handleMethods)
}

// ─── Route dispatch ───────────────────────────────────────────────────────────

// handleJobs handles POST /scrape/jobs
func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.startJob(w, r)
}

// handleJobAction handles GET /scrape/jobs/{id} and POST /scrape/jobs/{id}/cancel
func (h *Handler) handleJobAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		h.getJob(w, r, parts[2])
	case len(parts) == 4 && parts[3] == "cancel" && r.Method == http.MethodPost:
		h.cancelJob(w, r, parts[2])
	default:
		jsonError(w, "not found", http.StatusNotFound)
	}
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) startJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PostalCode   string `json:"postalCode"`
		ForceRefresh bool   `json:"forceRefresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PostalCode == "" {
		jsonError(w, "body must contain postalCode", http.StatusBadRequest)
		return
	}

	area, err := model.NewArea(body.PostalCode)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, created, err := h.tracker.Start(r.Context(), area, body.ForceRefresh)
	if err != nil {
		log.Printf("[api] startJob error for area %s: %v", area, err)
		jsonError(w, "could not create scrape job", http.StatusInternalServerError)
		return
	}

	if created {
		if err := h.queue.Enqueue(r.Context(), job.ID); err != nil {
			log.Printf("[api] enqueue error for job %s: %v", job.ID, err)
			jsonError(w, "could not enqueue scrape job", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(jobView(job))
		return
	}

	// An existing run (in flight, or fresh results) satisfies the request.
	jsonOK(w, jobView(job))
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.tracker.Get(r.Context(), id)
	if errors.Is(err, scrapejob.ErrNotFound) {
		jsonError(w, "scrape job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[api] getJob error for %s: %v", id, err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, jobView(job))
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.tracker.RequestCancel(r.Context(), id)
	switch {
	case errors.Is(err, scrapejob.ErrNotFound):
		jsonError(w, "scrape job not found", http.StatusNotFound)
		return
	case errors.Is(err, scrapejob.ErrTerminal):
		// Cancelling a finished job is a no-op, not an error.
		job, err = h.tracker.Get(r.Context(), id)
		if err != nil {
			jsonError(w, "scrape job not found", http.StatusNotFound)
			return
		}
	case err != nil:
		log.Printf("[api] cancelJob error for %s: %v", id, err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, jobView(job))
}

// handleResults handles GET /scrape/results?postalCode=M5V3A8
func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	area, err := model.NewArea(r.URL.Query().Get("postalCode"))
	if err != nil {
		jsonError(w, "postalCode query parameter is required", http.StatusBadRequest)
		return
	}

	set, err := h.tracker.Results(r.Context(), area)
	if err != nil {
		log.Printf("[api] results error for area %s: %v", area, err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, map[string]any{
		"postalCode": area,
		"stores":     orEmptyStores(set.Stores),
		"offers":     orEmptyOffers(set.Offers),
	})
}

// handleMethods handles GET /scrape/methods
func (h *Handler) handleMethods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type method struct {
		ID        string `json:"id"`
		Rank      int    `json:"rank"`
		Available bool   `json:"available"`
	}
	methods := make([]method, 0, len(h.providers))
	for i, p := range h.providers {
		methods = append(methods, method{ID: p.ID(), Rank: i, Available: p.Available()})
	}
	jsonOK(w, methods)
}

// ─── Response shaping ────────────────────────────────────────────────────────

// jobResponse is the JSON shape returned for a scrape job.
type jobResponse struct {
	ID              string              `json:"id"`
	PostalCode      model.Area          `json:"postalCode"`
	Status          scrapejob.Status    `json:"status"`
	Attempts        []scrapejob.Attempt `json:"attempts"`
	Summary         scrapejob.Summary   `json:"summary"`
	LastError       string              `json:"lastError,omitempty"`
	ErrorKind       string              `json:"errorKind,omitempty"`
	CancelRequested bool                `json:"cancelRequested"`
	CreatedAt       string              `json:"createdAt"`
	StartedAt       string              `json:"startedAt,omitempty"`
	CompletedAt     string              `json:"completedAt,omitempty"`
}

func jobView(job scrapejob.Job) jobResponse {
	resp := jobResponse{
		ID:              job.ID,
		PostalCode:      job.PostalCode,
		Status:          job.Status,
		Attempts:        job.Attempts,
		Summary:         job.Summary,
		LastError:       job.LastError,
		ErrorKind:       job.ErrorKind,
		CancelRequested: job.CancelRequested,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
	}
	if resp.Attempts == nil {
		resp.Attempts = []scrapejob.Attempt{}
	}
	if !job.StartedAt.IsZero() {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if !job.CompletedAt.IsZero() {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func orEmptyStores(s []model.StoreCandidate) []model.StoreCandidate {
	if s == nil {
		return []model.StoreCandidate{}
	}
	return s
}

func orEmptyOffers(o []model.OfferCandidate) []model.OfferCandidate {
	if o == nil {
		return []model.OfferCandidate{}
	}
	return o
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
