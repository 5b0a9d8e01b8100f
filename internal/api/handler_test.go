package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/api"
	"github.com/divaadaan/grocery-ai-planner/internal/model"
	"github.com/divaadaan/grocery-ai-planner/internal/provider"
	"github.com/divaadaan/grocery-ai-planner/internal/scrapejob"
	"github.com/divaadaan/grocery-ai-planner/internal/tasks"
)

type stubProvider struct {
	id        string
	available bool
}

func (p stubProvider) ID() string      { return p.id }
func (p stubProvider) Available() bool { return p.available }
func (p stubProvider) Fetch(context.Context, model.Area) (model.ResultSet, error) {
	return model.ResultSet{}, nil
}

type fixture struct {
	mux     *http.ServeMux
	tracker *scrapejob.Tracker
	queue   *tasks.MemoryQueue
	store   *scrapejob.MemoryStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := scrapejob.NewMemoryStore()
	tracker := scrapejob.NewTracker(store, store, nil, time.Hour)
	queue := tasks.NewMemoryQueue()
	providers := []provider.Provider{
		stubProvider{id: provider.IDFlippAPI, available: true},
		stubProvider{id: provider.IDBrowser, available: false},
	}

	mux := http.NewServeMux()
	api.NewHandler(tracker, queue, providers).RegisterRoutes(mux)
	return &fixture{mux: mux, tracker: tracker, queue: queue, store: store}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStartJobCreatesAndEnqueues(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/scrape/jobs", `{"postalCode":"m5v 3a8"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body)
	}

	resp := decode[map[string]any](t, rec)
	if resp["postalCode"] != "M5V3A8" {
		t.Errorf("postalCode = %v, want canonical M5V3A8", resp["postalCode"])
	}
	if resp["status"] != "pending" {
		t.Errorf("status = %v, want pending", resp["status"])
	}

	id, _ := f.queue.Dequeue(context.Background())
	if id != resp["id"] {
		t.Errorf("enqueued %q, want %q", id, resp["id"])
	}
}

func TestStartJobIdempotentPerArea(t *testing.T) {
	f := setup(t)

	first := decode[map[string]any](t, f.do(t, http.MethodPost, "/scrape/jobs", `{"postalCode":"M5V3A8"}`))

	rec := f.do(t, http.MethodPost, "/scrape/jobs", `{"postalCode":"M5V 3A8"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("second request status = %d, want 200 (existing job)", rec.Code)
	}
	second := decode[map[string]any](t, rec)
	if second["id"] != first["id"] {
		t.Errorf("second request returned job %v, want existing %v", second["id"], first["id"])
	}
}

func TestStartJobRejectsBadPostalCode(t *testing.T) {
	f := setup(t)

	if rec := f.do(t, http.MethodPost, "/scrape/jobs", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: status = %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/scrape/jobs", `{"postalCode":"   "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank postal code: status = %d, want 400", rec.Code)
	}
}

func TestGetJob(t *testing.T) {
	f := setup(t)

	created := decode[map[string]any](t, f.do(t, http.MethodPost, "/scrape/jobs", `{"postalCode":"M5V3A8"}`))
	id := created["id"].(string)

	rec := f.do(t, http.MethodGet, "/scrape/jobs/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["id"] != id {
		t.Errorf("id = %v, want %v", got["id"], id)
	}
	if _, ok := got["attempts"].([]any); !ok {
		t.Errorf("attempts should serialize as an array, got %T", got["attempts"])
	}

	if rec := f.do(t, http.MethodGet, "/scrape/jobs/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown job: status = %d, want 404", rec.Code)
	}
}

func TestCancelJob(t *testing.T) {
	f := setup(t)

	created := decode[map[string]any](t, f.do(t, http.MethodPost, "/scrape/jobs", `{"postalCode":"M5V3A8"}`))
	id := created["id"].(string)

	rec := f.do(t, http.MethodPost, "/scrape/jobs/"+id+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "cancelled" {
		t.Errorf("status = %v, want cancelled (pending jobs cancel immediately)", got["status"])
	}

	// Cancelling again is a no-op that returns the terminal job.
	rec = f.do(t, http.MethodPost, "/scrape/jobs/"+id+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat cancel status = %d, want 200", rec.Code)
	}
}

func TestResults(t *testing.T) {
	f := setup(t)
	area, _ := model.NewArea("M5V3A8")

	set := model.ResultSet{
		Stores: []model.StoreCandidate{{Name: "No Frills", PostalCode: area, Source: provider.IDFlippAPI}},
		Offers: []model.OfferCandidate{{StoreName: "No Frills", ProductName: "Bananas", Price: 0.69, PostalCode: area, Source: provider.IDFlippAPI}},
	}
	if err := f.tracker.SaveResults(context.Background(), area, set); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/scrape/results?postalCode=M5V+3A8", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if len(got["stores"].([]any)) != 1 || len(got["offers"].([]any)) != 1 {
		t.Errorf("results = %v", got)
	}

	// Unknown area returns empty arrays, not null.
	rec = f.do(t, http.MethodGet, "/scrape/results?postalCode=K1A0B1", "")
	got = decode[map[string]any](t, rec)
	if got["stores"] == nil || got["offers"] == nil {
		t.Errorf("empty results should be arrays, got %v", got)
	}

	if rec := f.do(t, http.MethodGet, "/scrape/results", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing postalCode: status = %d, want 400", rec.Code)
	}
}

func TestMethods(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/scrape/methods", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	methods := decode[[]map[string]any](t, rec)
	if len(methods) != 2 {
		t.Fatalf("methods = %d, want 2", len(methods))
	}
	if methods[0]["id"] != provider.IDFlippAPI || methods[0]["available"] != true {
		t.Errorf("methods[0] = %v", methods[0])
	}
	if methods[1]["id"] != provider.IDBrowser || methods[1]["available"] != false {
		t.Errorf("methods[1] = %v", methods[1])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := setup(t)

	if rec := f.do(t, http.MethodGet, "/scrape/jobs", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /scrape/jobs: status = %d, want 405", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/scrape/results", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /scrape/results: status = %d, want 405", rec.Code)
	}
}
