package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/mathewevviai/diala-sub005/internal/embedding"
	"github.com/mathewevviai/diala-sub005/internal/export"
	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// CompletionSink receives job outcomes. In production this is the webhook
// intake, so inline execution exercises the same completion path as the
// external worker.
type CompletionSink interface {
	HandleCompletion(ctx context.Context, jobID string, status jobs.Status, payload []byte, errMsg string) error
}

// ChunkLister reads a workflow's stored embeddings for export.
type ChunkLister interface {
	ListChunks(ctx context.Context, workflowID uuid.UUID) ([]*workflow.EmbeddingChunk, error)
}

// InlineWorker executes dispatched jobs in-process on a bounded goroutine
// pool. It covers document and url ingestion, chunking and embedding, and the
// text export formats; everything else (video download, voice cloning,
// parquet and vector-db exports) needs the external worker and fails fast
// with a clear error.
type InlineWorker struct {
	chunker   *Chunker
	embedder  embedding.Embedder
	chunks    ChunkLister
	exportDir string
	pool      *ants.Pool
	logger    *slog.Logger

	mu   sync.Mutex
	sink CompletionSink

	wg sync.WaitGroup
}

// InlineConfig configures the inline worker.
type InlineConfig struct {
	// PoolSize bounds concurrent job execution. Zero means 8.
	PoolSize int
	// ExportDir is where export artifacts are written. Zero value means the
	// OS temp directory.
	ExportDir string
}

// NewInlineWorker creates an inline worker. The completion sink is attached
// afterward with SetSink, because the sink (the webhook intake) is itself
// built on top of the engine this worker serves.
func NewInlineWorker(embedder embedding.Embedder, chunks ChunkLister, cfg InlineConfig) (*InlineWorker, error) {
	chunker, err := NewChunker()
	if err != nil {
		return nil, err
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = 8
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	dir := cfg.ExportDir
	if dir == "" {
		dir = os.TempDir()
	}

	return &InlineWorker{
		chunker:   chunker,
		embedder:  embedder,
		chunks:    chunks,
		exportDir: dir,
		pool:      pool,
		logger:    slog.Default().With("component", "inline-worker"),
	}, nil
}

// SetSink attaches the completion sink. Must be called before Dispatch.
func (w *InlineWorker) SetSink(sink CompletionSink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = sink
}

// Dispatch schedules the job on the pool and returns once it is enqueued.
// The outcome is reported asynchronously through the completion sink.
func (w *InlineWorker) Dispatch(_ context.Context, job *jobs.Job) error {
	w.mu.Lock()
	sink := w.sink
	w.mu.Unlock()
	if sink == nil {
		return fmt.Errorf("inline worker has no completion sink")
	}

	jobID := job.ID
	kind := job.Kind
	params := make(json.RawMessage, len(job.Params))
	copy(params, job.Params)

	w.wg.Add(1)
	err := w.pool.Submit(func() {
		defer w.wg.Done()
		// Detached from the dispatch request: the caller's HTTP context ends
		// long before the job does.
		ctx := context.Background()
		result, runErr := w.run(ctx, kind, params)
		if runErr != nil {
			w.logger.Warn("job failed", "job_id", jobID, "kind", kind, "error", runErr)
			if err := sink.HandleCompletion(ctx, jobID, jobs.StatusFailed, nil, runErr.Error()); err != nil {
				w.logger.Error("failed to report job failure", "job_id", jobID, "error", err)
			}
			return
		}
		if err := sink.HandleCompletion(ctx, jobID, jobs.StatusCompleted, result, ""); err != nil {
			w.logger.Error("failed to report job completion", "job_id", jobID, "error", err)
		}
	})
	if err != nil {
		w.wg.Done()
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Wait blocks until every dispatched job has reported its outcome.
func (w *InlineWorker) Wait() {
	w.wg.Wait()
}

// Close drains the pool. Jobs already enqueued still run.
func (w *InlineWorker) Close() {
	w.wg.Wait()
	w.pool.Release()
}

func (w *InlineWorker) run(ctx context.Context, kind jobs.Kind, params json.RawMessage) (json.RawMessage, error) {
	switch kind {
	case jobs.KindSourceIngest:
		return w.runSourceIngest(ctx, params)
	case jobs.KindWorkflowEmbed:
		return w.runWorkflowEmbed(ctx, params)
	case jobs.KindExport:
		return w.runExport(ctx, params)
	}
	return nil, fmt.Errorf("job kind %s requires an external worker", kind)
}

func (w *InlineWorker) runSourceIngest(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p jobs.SourceIngestParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid source-ingest params: %w", err)
	}

	var text string
	switch p.SourceType {
	case "document":
		// Document sources carry their content directly.
		text = p.Value
	case "url":
		html, err := fetchURL(ctx, p.Value)
		if err != nil {
			return nil, err
		}
		text, err = extractText(html)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("source type %q requires an external worker", p.SourceType)
	}

	if text == "" {
		return nil, fmt.Errorf("no text extracted from source %s", p.SourceID)
	}
	return json.Marshal(jobs.SourceIngestResult{
		WorkflowID: p.WorkflowID,
		SourceID:   p.SourceID,
		Text:       text,
		SizeBytes:  int64(len(text)),
	})
}

func (w *InlineWorker) runWorkflowEmbed(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p jobs.WorkflowEmbedParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid workflow-embed params: %w", err)
	}

	chunks, err := w.chunker.Split(p.Text, p.ChunkSize, p.Overlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("source %s produced no chunks", p.SourceID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := w.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed for source %s: %w", p.SourceID, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	payloads := make([]jobs.ChunkPayload, len(chunks))
	for i, c := range chunks {
		payloads[i] = jobs.ChunkPayload{
			EmbeddingID: fmt.Sprintf("%s-chunk-%d", p.SourceID, i),
			Text:        c.Text,
			Tokens:      c.Tokens,
			Dimensions:  len(vectors[i]),
			Vector:      vectors[i],
		}
	}
	return json.Marshal(jobs.WorkflowEmbedResult{
		WorkflowID: p.WorkflowID,
		SourceID:   p.SourceID,
		Chunks:     payloads,
	})
}

func (w *InlineWorker) runExport(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p jobs.ExportParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid export params: %w", err)
	}
	format, err := export.ParseFormat(p.Format)
	if err != nil {
		return nil, err
	}

	chunks, err := w.chunks.ListChunks(ctx, p.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings for %s: %w", p.WorkflowID, err)
	}

	data, err := export.Encode(format, chunks)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("export-%s-%d.%s", p.WorkflowID, time.Now().UTC().Unix(), format)
	location := filepath.Join(w.exportDir, name)
	if err := os.WriteFile(location, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export artifact: %w", err)
	}

	return json.Marshal(jobs.ExportResult{
		Format:      string(format),
		Location:    location,
		SizeBytes:   int64(len(data)),
		RecordCount: len(chunks),
	})
}
