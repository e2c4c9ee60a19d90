package server

import (
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewevviai/diala-sub005/internal/cache"
	"github.com/mathewevviai/diala-sub005/internal/embedding"
	"github.com/mathewevviai/diala-sub005/internal/export"
	"github.com/mathewevviai/diala-sub005/internal/intake"
	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/ratelimit"
	"github.com/mathewevviai/diala-sub005/internal/types"
	"github.com/mathewevviai/diala-sub005/internal/worker"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// newInlineServer wires the full loop in-process: engine -> inline worker ->
// intake -> engine, with the mock embedder standing in for the embedding
// service.
func newInlineServer(t *testing.T) (*testServer, *worker.InlineWorker) {
	t.Helper()
	userID := uuid.New()
	jobStore := jobs.NewMemStore()
	registry := jobs.NewRegistry(jobStore)
	wfStore := workflow.NewMemStore()
	tiers := workflow.StaticTiers{userID: workflow.TierPremium}

	inline, err := worker.NewInlineWorker(&embedding.MockEmbedder{}, wfStore, worker.InlineConfig{
		ExportDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(inline.Close)

	engine := workflow.NewEngine(wfStore, registry, inline, tiers)
	entities := cache.New(cache.NewMemStore(), nil)

	s := &Server{
		registry: registry,
		limiter:  ratelimit.NewLimiter(jobStore, nil),
		entities: entities,
		engine:   engine,
		exporter: export.NewExporter(registry, engine, tiers, inline),
		intake:   intake.New(registry, engine, entities),
	}
	inline.SetSink(s.intake)

	return &testServer{
		server:  s,
		handler: s.routes(),
		wfStore: wfStore,
		userID:  userID,
	}, inline
}

func TestFullIngestionLifecycle(t *testing.T) {
	ts, inline := newInlineServer(t)

	document := strings.Repeat(
		"Retrieval augmented generation pairs a vector index with a language model. "+
			"Documents are chunked, embedded, and stored so relevant passages can be recalled at answer time.\n\n", 6)

	rec := ts.do(t, http.MethodPost, "/workflows", types.CreateWorkflowRequest{
		UserID:    ts.userID,
		Name:      "kb ingest",
		ChunkSize: 500,
		Overlap:   50,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[workflow.Workflow](t, rec)
	base := "/workflows/" + created.ID.String()

	rec = ts.do(t, http.MethodPost, base+"/sources", types.AddSourceRequest{
		SourceType: "document",
		Value:      document,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/process", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The inline worker chains ingest -> embed before going idle.
	inline.Wait()

	rec = ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decodeBody[workflow.Workflow](t, rec)
	assert.Equal(t, workflow.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.False(t, done.PartialSuccess)
	assert.Equal(t, int64(len(document)), done.TotalFileSize)
	assert.GreaterOrEqual(t, done.TotalEmbeddings, 2)

	rec = ts.do(t, http.MethodGet, base+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[workflow.Stats](t, rec)
	assert.Equal(t, 1, stats.TotalSources)
	assert.Equal(t, 1, stats.ProcessedSources)
	assert.Equal(t, 0, stats.FailedSources)
	assert.Equal(t, done.TotalEmbeddings, stats.TotalEmbeddings)
	assert.Positive(t, stats.TotalTokens)

	rec = ts.do(t, http.MethodPost, base+"/export", types.ExportRequest{
		UserID: ts.userID,
		Format: "jsonl",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	exportJob := decodeBody[types.JobResponse](t, rec)

	inline.Wait()

	rec = ts.do(t, http.MethodGet, "/jobs/"+exportJob.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	finished := decodeBody[types.JobResponse](t, rec)
	require.Equal(t, "completed", finished.Status)

	result, err := jobs.DecodeResult(jobs.KindExport, finished.Result)
	require.NoError(t, err)
	exportResult := result.(*jobs.ExportResult)
	assert.Equal(t, done.TotalEmbeddings, exportResult.RecordCount)

	data, err := os.ReadFile(exportResult.Location)
	require.NoError(t, err)
	assert.Equal(t, done.TotalEmbeddings, strings.Count(string(data), "\n"))
}

func TestFullLifecycle_PartialFailure(t *testing.T) {
	ts, inline := newInlineServer(t)

	rec := ts.do(t, http.MethodPost, "/workflows", types.CreateWorkflowRequest{
		UserID:    ts.userID,
		Name:      "mixed sources",
		ChunkSize: 500,
		Overlap:   50,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[workflow.Workflow](t, rec)
	base := "/workflows/" + created.ID.String()

	good := strings.Repeat("A paragraph of real content for the knowledge base. ", 12)
	rec = ts.do(t, http.MethodPost, base+"/sources", types.AddSourceRequest{SourceType: "document", Value: good})
	require.Equal(t, http.StatusCreated, rec.Code)
	// Video sources need the external worker, so inline execution fails them.
	rec = ts.do(t, http.MethodPost, base+"/sources", types.AddSourceRequest{SourceType: "video", Value: "https://example.com/watch?v=1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/process", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	inline.Wait()

	rec = ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decodeBody[workflow.Workflow](t, rec)
	assert.Equal(t, workflow.StatusCompleted, done.Status)
	assert.True(t, done.PartialSuccess)
	assert.Positive(t, done.TotalEmbeddings)

	rec = ts.do(t, http.MethodGet, base+"/stats", nil)
	stats := decodeBody[workflow.Stats](t, rec)
	assert.Equal(t, 2, stats.TotalSources)
	assert.Equal(t, 1, stats.FailedSources)
}
