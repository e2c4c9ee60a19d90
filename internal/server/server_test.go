package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewevviai/diala-sub005/internal/cache"
	"github.com/mathewevviai/diala-sub005/internal/export"
	"github.com/mathewevviai/diala-sub005/internal/intake"
	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/ratelimit"
	"github.com/mathewevviai/diala-sub005/internal/types"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []*jobs.Job
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job *jobs.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

type testServer struct {
	server     *Server
	handler    http.Handler
	dispatcher *recordingDispatcher
	wfStore    *workflow.MemStore
	userID     uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	userID := uuid.New()
	jobStore := jobs.NewMemStore()
	registry := jobs.NewRegistry(jobStore)
	wfStore := workflow.NewMemStore()
	tiers := workflow.StaticTiers{userID: workflow.TierPremium}
	dispatcher := &recordingDispatcher{}
	engine := workflow.NewEngine(wfStore, registry, dispatcher, tiers)
	entities := cache.New(cache.NewMemStore(), nil)

	s := &Server{
		registry:      registry,
		limiter:       ratelimit.NewLimiter(jobStore, nil),
		entities:      entities,
		engine:        engine,
		exporter:      export.NewExporter(registry, engine, tiers, dispatcher),
		intake:        intake.New(registry, engine, entities),
		webhookSecret: "hook-secret",
	}
	return &testServer{
		server:     s,
		handler:    s.routes(),
		dispatcher: dispatcher,
		wfStore:    wfStore,
		userID:     userID,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer hook-secret")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleCreateJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{
		JobID:  "job-1",
		UserID: ts.userID,
		Kind:   "channel-fetch",
		Params: json.RawMessage(`{"platform":"youtube","handle":"@acme"}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[types.JobResponse](t, rec)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))

	// Same ID, same owner: idempotent.
	rec = ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{
		JobID:  "job-1",
		UserID: ts.userID,
		Kind:   "channel-fetch",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Same ID, different owner: conflict.
	rec = ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{
		JobID:  "job-1",
		UserID: uuid.New(),
		Kind:   "channel-fetch",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleCreateJob_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{UserID: ts.userID, Kind: "channel-fetch"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{JobID: "j", UserID: ts.userID, Kind: "mine-bitcoin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateJob_RateLimited(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 5; i++ {
		rec := ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{
			JobID:  fmt.Sprintf("vc-%d", i),
			UserID: ts.userID,
			Kind:   "voice-clone",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{
		JobID:  "vc-overflow",
		UserID: ts.userID,
		Kind:   "voice-clone",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// The denied attempt consumed nothing: the probe still reports 5 used.
	probe := ts.do(t, http.MethodGet, "/users/"+ts.userID.String()+"/limits/voice-clone", nil)
	require.Equal(t, http.StatusOK, probe.Code)
	info := decodeBody[ratelimit.Info](t, probe)
	assert.Equal(t, 5, info.Used)
	assert.False(t, info.Allowed)
}

func TestHandleGetJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/jobs/job-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{JobID: "job-2", UserID: ts.userID, Kind: "download"})
	rec = ts.do(t, http.MethodGet, "/jobs/job-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[types.JobResponse](t, rec)
	assert.Equal(t, "download", resp.Kind)
}

func TestHandleDeleteUserJobs(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{JobID: "a", UserID: ts.userID, Kind: "download"})
	ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{JobID: "b", UserID: ts.userID, Kind: "download"})

	rec := ts.do(t, http.MethodDelete, "/users/"+ts.userID.String()+"/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[map[string]int](t, rec)["deleted"])

	rec = ts.do(t, http.MethodGet, "/jobs/a", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWebhook_Auth(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/completions", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleWebhook_CompletionAndProgress(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/jobs", types.CreateJobRequest{JobID: "job-3", UserID: ts.userID, Kind: "voice-clone"})

	progress := 40
	rec := ts.do(t, http.MethodPost, "/webhooks/completions", types.WebhookRequest{
		JobID: "job-3", Status: "processing", Progress: &progress,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result, _ := json.Marshal(jobs.VoiceCloneResult{VoiceID: "voice-9"})
	rec = ts.do(t, http.MethodPost, "/webhooks/completions", types.WebhookRequest{
		JobID: "job-3", Status: "completed", Result: result,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	get := ts.do(t, http.MethodGet, "/jobs/job-3", nil)
	resp := decodeBody[types.JobResponse](t, get)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 100, resp.Progress)

	// Unknown jobs are acknowledged so the worker stops retrying.
	rec = ts.do(t, http.MethodPost, "/webhooks/completions", types.WebhookRequest{
		JobID: "job-ghost", Status: "completed", Result: json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetCachedEntity(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/cache/channel/youtube:@acme", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/cache/playlist/whatever", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, ts.server.entities.Upsert(context.Background(), cache.EntityChannel,
		"youtube:@acme", json.RawMessage(`{"name":"Acme"}`)))
	rec = ts.do(t, http.MethodGet, "/cache/channel/youtube:@acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[cache.Result](t, rec)
	assert.False(t, result.IsStale)
	assert.Equal(t, "youtube:@acme", result.Entity.NaturalKey)
}

func TestWorkflowEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/workflows", types.CreateWorkflowRequest{
		UserID:    ts.userID,
		Name:      "site docs",
		ChunkSize: 500,
		Overlap:   50,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[workflow.Workflow](t, rec)
	assert.Equal(t, workflow.StatusPending, created.Status)
	base := "/workflows/" + created.ID.String()

	rec = ts.do(t, http.MethodPost, base+"/sources", types.AddSourceRequest{
		SourceType: "document",
		Value:      "chapter one text",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Export before completion is a not-found per the lifecycle contract.
	rec = ts.do(t, http.MethodPost, base+"/export", types.ExportRequest{UserID: ts.userID, Format: "json"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/process", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := decodeBody[workflow.Workflow](t, rec)
	assert.Equal(t, workflow.StatusProcessing, started.Status)
	assert.Len(t, ts.dispatcher.jobs, 1)

	// Second process call hits the status precondition.
	rec = ts.do(t, http.MethodPost, base+"/process", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, base+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[workflow.Stats](t, rec)
	assert.Equal(t, 1, stats.TotalSources)

	rec = ts.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowCreate_QuotaExceeded(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/workflows", types.CreateWorkflowRequest{
		UserID:        ts.userID,
		Name:          "too big",
		ChunkSize:     500,
		Overlap:       50,
		EstimatedSize: workflow.TierLimits[workflow.TierPremium].MaxBytes + 1,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleCheckQuota(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/users/"+ts.userID.String()+"/quota?additional=1024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[workflow.QuotaInfo](t, rec)
	assert.True(t, info.Allowed)
	assert.Equal(t, workflow.TierPremium, info.UserTier)

	rec = ts.do(t, http.MethodGet, "/users/"+ts.userID.String()+"/quota?additional=-5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])
}
