package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawler/internal/orchestrator"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
)

type fakeProcessor struct {
	mu    sync.Mutex
	seen  []string
	fails map[string]error
}

func (f *fakeProcessor) ProcessSeed(_ context.Context, id string) (orchestrator.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, id)
	f.mu.Unlock()
	if err := f.fails[id]; err != nil {
		return orchestrator.Result{SeedID: id, Outcome: orchestrator.OutcomeRequeued, State: orchestrator.StateFailed, Attempts: 2}, err
	}
	return orchestrator.Result{SeedID: id, Outcome: orchestrator.OutcomeCompleted, State: orchestrator.StateCompleted, Attempts: 1, Tracks: 3}, nil
}

type fakeIDGen struct{ id string }

func (f fakeIDGen) NewID() (string, error) { return f.id, nil }

type failingQueue struct {
	catalog.TaskQueue
	err error
}

func (q failingQueue) Enqueue(context.Context, []string) (catalog.EnqueueResult, error) {
	return catalog.EnqueueResult{}, q.err
}

func newTestServer(t *testing.T, opts Options) (*Server, *fakeProcessor, *memory.TaskQueue) {
	t.Helper()
	proc := &fakeProcessor{fails: map[string]error{}}
	q := memory.NewTaskQueue()
	srv := NewServer(proc, dispatcher.New(q, nil), fakeIDGen{id: "sub-1"}, opts, zap.NewNop())
	return srv, proc, q
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ProcessSeeds(t *testing.T) {
	t.Parallel()

	srv, proc, _ := newTestServer(t, Options{})
	proc.fails["b"] = errors.New("upstream unavailable")

	rec := do(t, srv, http.MethodPost, "/v1/seeds", `{"ids":["a","b","a",""]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp struct {
		SubmissionID string `json:"submission_id"`
		Results      []struct {
			ID      string `json:"id"`
			Outcome string `json:"outcome"`
			Tracks  int    `json:"tracks"`
			Error   string `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "sub-1", resp.SubmissionID)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "a", resp.Results[0].ID)
	require.Equal(t, "completed", resp.Results[0].Outcome)
	require.Equal(t, 3, resp.Results[0].Tracks)
	require.Empty(t, resp.Results[0].Error)
	require.Equal(t, "b", resp.Results[1].ID)
	require.Equal(t, "requeued", resp.Results[1].Outcome)
	require.Equal(t, "upstream unavailable", resp.Results[1].Error)
	require.ElementsMatch(t, []string{"a", "b"}, proc.seen)
}

func TestServer_ProcessSeeds_BadRequests(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, Options{})

	rec := do(t, srv, http.MethodPost, "/v1/seeds", "{invalid")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/seeds", `{"ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "ids required")

	ids := make([]string, maxSeedsPerRequest+1)
	for i := range ids {
		ids[i] = strings.Repeat("x", i+1)
	}
	body, err := json.Marshal(seedsRequest{IDs: ids})
	require.NoError(t, err)
	rec = do(t, srv, http.MethodPost, "/v1/seeds", string(body))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_EnqueueSeeds(t *testing.T) {
	t.Parallel()

	srv, _, q := newTestServer(t, Options{})
	_, err := q.Enqueue(context.Background(), []string{"b"})
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPost, "/v1/seeds/enqueue", `{"ids":["a","b"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"a"}, resp.Inserted)
	require.Equal(t, []string{"b"}, resp.Existing)

	status, ok := q.Status("a")
	require.True(t, ok)
	require.Equal(t, catalog.TaskStatusPending, status)
}

func TestServer_EnqueueSeeds_QueueFailure(t *testing.T) {
	t.Parallel()

	q := failingQueue{TaskQueue: memory.NewTaskQueue(), err: errors.New("store down")}
	srv := NewServer(&fakeProcessor{}, dispatcher.New(q, nil), fakeIDGen{id: "x"}, Options{}, nil)

	rec := do(t, srv, http.MethodPost, "/v1/seeds/enqueue", `{"ids":["a"]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "store down")
}

func TestServer_QueueStats(t *testing.T) {
	t.Parallel()

	srv, _, q := newTestServer(t, Options{})
	_, err := q.Enqueue(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	task, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)

	rec := do(t, srv, http.MethodGet, "/v1/queue/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats catalog.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, catalog.QueueStats{Pending: 2, Processing: 1}, stats)
}

func TestServer_QueueStats_Unsupported(t *testing.T) {
	t.Parallel()

	q := failingQueue{TaskQueue: memory.NewTaskQueue()}
	srv := NewServer(&fakeProcessor{}, dispatcher.New(q, nil), fakeIDGen{id: "x"}, Options{}, nil)

	rec := do(t, srv, http.MethodGet, "/v1/queue/stats", "")
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_HealthChecks(t *testing.T) {
	t.Parallel()

	healthy, _, _ := newTestServer(t, Options{})
	require.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/readyz", "").Code)

	broken, _, _ := newTestServer(t, Options{Checks: map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec := do(t, broken, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, Options{})
	do(t, srv, http.MethodGet, "/healthz", "")
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")

	off, _, _ := newTestServer(t, Options{DisableMetrics: true})
	require.Equal(t, http.StatusNotFound, do(t, off, http.MethodGet, "/metrics", "").Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, Options{APIKey: "secret"})

	rec := do(t, srv, http.MethodGet, "/v1/queue/stats", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/queue/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "given")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "given", seen)
	require.Equal(t, "given", rec.Header().Get("X-Request-ID"))
}
