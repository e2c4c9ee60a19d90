package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// recordingDispatcher captures dispatched jobs without executing them.
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

type exportFixture struct {
	exporter   *Exporter
	store      *workflow.MemStore
	dispatcher *recordingDispatcher
	userID     uuid.UUID
	workflowID uuid.UUID
}

func newExportFixture(t *testing.T, tier workflow.Tier, status workflow.Status) *exportFixture {
	t.Helper()
	userID := uuid.New()
	store := workflow.NewMemStore()
	registry := jobs.NewRegistry(jobs.NewMemStore())
	tiers := workflow.StaticTiers{userID: tier}
	dispatcher := &recordingDispatcher{}
	engine := workflow.NewEngine(store, registry, dispatcher, tiers)

	w := &workflow.Workflow{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "fixture",
		ChunkSize: 500,
		Overlap:   50,
		Status:    status,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().AddDate(0, 0, 7),
	}
	require.NoError(t, store.InsertWorkflow(context.Background(), w))

	return &exportFixture{
		exporter:   NewExporter(registry, engine, tiers, dispatcher),
		store:      store,
		dispatcher: dispatcher,
		userID:     userID,
		workflowID: w.ID,
	}
}

// TestStartExport_CreatesAndDispatchesJob tests the happy path
func TestStartExport_CreatesAndDispatchesJob(t *testing.T) {
	f := newExportFixture(t, workflow.TierPremium, workflow.StatusCompleted)

	job, err := f.exporter.StartExport(context.Background(), f.workflowID, f.userID, "jsonl")
	require.NoError(t, err)
	assert.Equal(t, jobs.KindExport, job.Kind)
	assert.Equal(t, jobs.StatusPending, job.Status)

	var params jobs.ExportParams
	require.NoError(t, json.Unmarshal(job.Params, &params))
	assert.Equal(t, f.workflowID, params.WorkflowID)
	assert.Equal(t, "jsonl", params.Format)

	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, job.ID, f.dispatcher.jobs[0].ID)
}

// TestStartExport_RerunsProduceFreshJobs tests that exports are never
// deduplicated
func TestStartExport_RerunsProduceFreshJobs(t *testing.T) {
	f := newExportFixture(t, workflow.TierPremium, workflow.StatusCompleted)

	first, err := f.exporter.StartExport(context.Background(), f.workflowID, f.userID, "json")
	require.NoError(t, err)
	second, err := f.exporter.StartExport(context.Background(), f.workflowID, f.userID, "json")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, f.dispatcher.jobs, 2)
}

// TestStartExport_TierGating tests per-tier format restrictions
func TestStartExport_TierGating(t *testing.T) {
	f := newExportFixture(t, workflow.TierFree, workflow.StatusCompleted)

	_, err := f.exporter.StartExport(context.Background(), f.workflowID, f.userID, "parquet")
	var unsupported *ErrUnsupportedFormat
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, workflow.TierFree, unsupported.Tier)

	_, err = f.exporter.StartExport(context.Background(), f.workflowID, f.userID, "csv")
	require.NoError(t, err)
}

// TestStartExport_UnknownFormat tests format parsing
func TestStartExport_UnknownFormat(t *testing.T) {
	f := newExportFixture(t, workflow.TierEnterprise, workflow.StatusCompleted)

	_, err := f.exporter.StartExport(context.Background(), f.workflowID, f.userID, "xml")
	var unsupported *ErrUnsupportedFormat
	require.ErrorAs(t, err, &unsupported)
	assert.Empty(t, f.dispatcher.jobs)
}

// TestStartExport_RequiresCompletedWorkflow tests the status precondition
func TestStartExport_RequiresCompletedWorkflow(t *testing.T) {
	f := newExportFixture(t, workflow.TierPremium, workflow.StatusProcessing)

	_, err := f.exporter.StartExport(context.Background(), f.workflowID, f.userID, "json")
	var notExportable *ErrNotExportable
	require.ErrorAs(t, err, &notExportable)
	assert.Equal(t, workflow.StatusProcessing, notExportable.Status)
}

// TestStartExport_RejectsPastRetentionDeadline tests that a completed
// workflow the sweeper has not reached yet is still unexportable once its
// retention deadline passes, matching the add-source and process guards.
func TestStartExport_RejectsPastRetentionDeadline(t *testing.T) {
	f := newExportFixture(t, workflow.TierPremium, workflow.StatusCompleted)

	w, err := f.store.GetWorkflow(context.Background(), f.workflowID)
	require.NoError(t, err)
	w.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.store.UpdateWorkflow(context.Background(), w))

	_, err = f.exporter.StartExport(context.Background(), f.workflowID, f.userID, "json")
	var expired *workflow.ErrExpiredResource
	require.ErrorAs(t, err, &expired)
	assert.Empty(t, f.dispatcher.jobs)
}

// TestStartExport_OwnershipAndMissing tests not-found behavior
func TestStartExport_OwnershipAndMissing(t *testing.T) {
	f := newExportFixture(t, workflow.TierPremium, workflow.StatusCompleted)

	var notFound *workflow.ErrWorkflowNotFound
	_, err := f.exporter.StartExport(context.Background(), uuid.New(), f.userID, "json")
	require.ErrorAs(t, err, &notFound)

	// Another user's workflow looks like it does not exist.
	_, err = f.exporter.StartExport(context.Background(), f.workflowID, uuid.New(), "json")
	require.ErrorAs(t, err, &notFound)
}

func sampleChunks(workflowID uuid.UUID) []*workflow.EmbeddingChunk {
	sourceID := uuid.New()
	return []*workflow.EmbeddingChunk{
		{
			ID:          uuid.New(),
			WorkflowID:  workflowID,
			SourceID:    sourceID,
			EmbeddingID: "emb-0",
			ChunkText:   "first chunk, with a comma",
			ChunkTokens: 6,
			Dimensions:  3,
			Vector:      []float32{0.1, 0.2, 0.3},
		},
		{
			ID:          uuid.New(),
			WorkflowID:  workflowID,
			SourceID:    sourceID,
			EmbeddingID: "emb-1",
			ChunkText:   "second chunk",
			ChunkTokens: 2,
			Dimensions:  3,
			Vector:      []float32{0.4, 0.5, 0.6},
		},
	}
}

// TestEncode_JSON tests the json encoder output shape
func TestEncode_JSON(t *testing.T) {
	chunks := sampleChunks(uuid.New())

	data, err := Encode(FormatJSON, chunks)
	require.NoError(t, err)

	var records []record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "emb-0", records[0].EmbeddingID)
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, records[1].Vector)
}

// TestEncode_JSONL tests one object per line
func TestEncode_JSONL(t *testing.T) {
	chunks := sampleChunks(uuid.New())

	data, err := Encode(FormatJSONL, chunks)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	for i, line := range lines {
		var rec record
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line %d", i)
	}
}

// TestEncode_CSV tests the csv encoder, including comma-bearing text
func TestEncode_CSV(t *testing.T) {
	chunks := sampleChunks(uuid.New())

	data, err := Encode(FormatCSV, chunks)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"embedding_id", "source_id", "chunk_text", "chunk_tokens", "dimensions", "vector"}, rows[0])
	assert.Equal(t, "first chunk, with a comma", rows[1][2])
	assert.Equal(t, "0.4 0.5 0.6", rows[2][5])
}

// TestEncode_WorkerOnlyFormats tests that binary formats are refused in-process
func TestEncode_WorkerOnlyFormats(t *testing.T) {
	for _, format := range []Format{FormatParquet, FormatPinecone, FormatWeaviate} {
		_, err := Encode(format, nil)
		assert.Error(t, err, string(format))
	}
}
