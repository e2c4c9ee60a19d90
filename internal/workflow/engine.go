package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
)

// Dispatcher hands a created job to the worker. Dispatch is fire-and-forget:
// the worker reports back through the webhook intake, never synchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *jobs.Job) error
}

// Engine orchestrates multi-source RAG ingestion on top of the job registry
// and the workflow store.
type Engine struct {
	store      Store
	registry   *jobs.Registry
	dispatcher Dispatcher
	tiers      TierResolver
	now        func() time.Time

	// locks serializes workflow-record writes per workflow id so progress is
	// never observed to decrease.
	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewEngine creates a workflow engine.
func NewEngine(store Store, registry *jobs.Registry, dispatcher Dispatcher, tiers TierResolver) *Engine {
	return &Engine{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		tiers:      tiers,
		now:        time.Now,
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockWorkflow acquires the single-writer lock for a workflow id.
func (e *Engine) lockWorkflow(id uuid.UUID) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[id] = mu
	}
	e.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// QuotaInfo is the outcome of a size-quota check. MaxSize of 0 means the tier
// is unbounded.
type QuotaInfo struct {
	Allowed       bool  `json:"allowed"`
	CurrentSize   int64 `json:"current_size"`
	MaxSize       int64 `json:"max_size"`
	RemainingSize int64 `json:"remaining_size"`
	UserTier      Tier  `json:"user_tier"`
}

// CheckSizeQuota sums total file size across the user's workflows and reports
// whether adding additionalSize stays within the tier byte ceiling. A total
// exactly equal to the ceiling is allowed.
func (e *Engine) CheckSizeQuota(ctx context.Context, userID uuid.UUID, additionalSize int64) (QuotaInfo, error) {
	tier, err := e.tiers.TierFor(ctx, userID)
	if err != nil {
		return QuotaInfo{}, fmt.Errorf("failed to resolve tier: %w", err)
	}
	limits := LimitsFor(tier)

	existing, err := e.store.ListWorkflowsByUser(ctx, userID)
	if err != nil {
		return QuotaInfo{}, fmt.Errorf("failed to list workflows: %w", err)
	}
	var current int64
	for _, w := range existing {
		current += w.TotalFileSize
	}

	info := QuotaInfo{
		CurrentSize: current,
		MaxSize:     limits.MaxBytes,
		UserTier:    tier,
	}
	if limits.MaxBytes == 0 {
		info.Allowed = true
		return info, nil
	}

	info.Allowed = current+additionalSize <= limits.MaxBytes
	info.RemainingSize = limits.MaxBytes - current
	if info.RemainingSize < 0 {
		info.RemainingSize = 0
	}
	return info, nil
}

// CreateWorkflowParams describes a workflow to create.
type CreateWorkflowParams struct {
	UserID        uuid.UUID
	Name          string
	SourceType    string
	ChunkSize     int
	Overlap       int
	EstimatedSize int64
}

// CreateWorkflow validates the request, enforces the size quota, and stores a
// pending workflow stamped with the tier's retention deadline.
func (e *Engine) CreateWorkflow(ctx context.Context, p CreateWorkflowParams) (*Workflow, error) {
	if p.UserID == uuid.Nil {
		return nil, &ErrValidation{Field: "user_id", Message: "must not be empty"}
	}
	if p.Name == "" {
		return nil, &ErrValidation{Field: "name", Message: "must not be empty"}
	}
	if p.ChunkSize <= 0 {
		return nil, &ErrValidation{Field: "chunk_size", Message: "must be positive"}
	}
	if p.Overlap < 0 || p.Overlap >= p.ChunkSize {
		return nil, &ErrValidation{Field: "overlap", Message: "must be non-negative and smaller than chunk_size"}
	}

	quota, err := e.CheckSizeQuota(ctx, p.UserID, p.EstimatedSize)
	if err != nil {
		return nil, err
	}
	if !quota.Allowed {
		return nil, &ErrQuotaExceeded{
			Tier:        quota.UserTier,
			CurrentSize: quota.CurrentSize,
			MaxSize:     quota.MaxSize,
			Requested:   p.EstimatedSize,
		}
	}

	now := e.now().UTC()
	limits := LimitsFor(quota.UserTier)
	w := &Workflow{
		ID:         uuid.New(),
		UserID:     p.UserID,
		Name:       p.Name,
		SourceType: p.SourceType,
		ChunkSize:  p.ChunkSize,
		Overlap:    p.Overlap,
		Status:     StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.AddDate(0, 0, limits.RetentionDays),
	}
	if err := e.store.InsertWorkflow(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to insert workflow: %w", err)
	}
	return w.Clone(), nil
}

// Get retrieves a workflow by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	if w == nil {
		return nil, &ErrWorkflowNotFound{WorkflowID: id}
	}
	return w, nil
}

// guardLive returns ErrExpiredResource if the workflow's retention deadline
// has passed.
func (e *Engine) guardLive(w *Workflow) error {
	if w.Expired(e.now().UTC()) {
		return &ErrExpiredResource{WorkflowID: w.ID}
	}
	return nil
}

// AddSource appends a pending source to a workflow. The workflow status does
// not change; sources may only be added before processing starts.
func (e *Engine) AddSource(ctx context.Context, workflowID uuid.UUID, sourceType, value string) (*Source, error) {
	if value == "" {
		return nil, &ErrValidation{Field: "value", Message: "must not be empty"}
	}

	w, err := e.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := e.guardLive(w); err != nil {
		return nil, err
	}
	if w.Status != StatusPending {
		return nil, &ErrInvalidState{WorkflowID: workflowID, Status: w.Status, Operation: "add source to"}
	}

	s := &Source{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Type:       sourceType,
		Value:      value,
		Status:     SourcePending,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.store.InsertSource(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}
	return s.Clone(), nil
}

// ingestJobID derives the deterministic job id for a source's ingest job, so
// re-dispatching after a partial failure stays idempotent.
func ingestJobID(sourceID uuid.UUID) string {
	return "src-ingest:" + sourceID.String()
}

// embedJobID derives the deterministic job id for a source's embed job.
func embedJobID(sourceID uuid.UUID) string {
	return "wf-embed:" + sourceID.String()
}

// Process transitions the workflow to processing and dispatches a
// fetch/extract job for every registered source. Sources run in parallel with
// no ordering guarantee between them.
func (e *Engine) Process(ctx context.Context, workflowID uuid.UUID) (*Workflow, error) {
	w, err := e.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := e.guardLive(w); err != nil {
		return nil, err
	}
	if w.Status != StatusPending {
		return nil, &ErrInvalidState{WorkflowID: workflowID, Status: w.Status, Operation: "process"}
	}

	sources, err := e.store.ListSources(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, &ErrValidation{Field: "sources", Message: "workflow has no sources"}
	}

	unlock := e.lockWorkflow(workflowID)
	w.Status = StatusProcessing
	w.CurrentStage = "fetch"
	if err := e.store.UpdateWorkflow(ctx, w); err != nil {
		unlock()
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	unlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			return e.dispatchIngest(gCtx, w, src)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := e.refreshProgress(ctx, workflowID); err != nil {
		return nil, err
	}
	// Sources that failed at dispatch never produce a webhook, so the
	// workflow must be re-evaluated here in case nothing is left in flight.
	if err := e.maybeStartEmbedding(ctx, workflowID); err != nil {
		return nil, err
	}
	return e.Get(ctx, workflowID)
}

// dispatchIngest creates and dispatches the fetch/extract job for one source.
func (e *Engine) dispatchIngest(ctx context.Context, w *Workflow, src *Source) error {
	params, err := json.Marshal(jobs.SourceIngestParams{
		WorkflowID: w.ID,
		SourceID:   src.ID,
		SourceType: src.Type,
		Value:      src.Value,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ingest params: %w", err)
	}

	job, err := e.registry.Create(ctx, jobs.CreateParams{
		JobID:  ingestJobID(src.ID),
		UserID: w.UserID,
		Kind:   jobs.KindSourceIngest,
		Params: params,
	})
	if err != nil {
		return fmt.Errorf("failed to create ingest job: %w", err)
	}

	src.Status = SourceIngesting
	if err := e.store.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	if err := e.dispatcher.Dispatch(ctx, job); err != nil {
		// Dispatch failure is recorded on the source, not returned to the
		// caller of the original start call.
		log.Printf("[workflow] dispatch failed for source %s: %v", src.ID, err)
		src.Status = SourceFailed
		src.Error = err.Error()
		if updateErr := e.store.UpdateSource(ctx, src); updateErr != nil {
			return fmt.Errorf("failed to record dispatch failure: %w", updateErr)
		}
	}
	return nil
}

// HandleSourceIngested applies a fetch/extract outcome reported through the
// webhook intake. When the last source settles, the workflow moves to the
// embedding stage and chunk+embed work is dispatched.
func (e *Engine) HandleSourceIngested(ctx context.Context, result jobs.SourceIngestResult, jobErr string) error {
	src, err := e.store.GetSource(ctx, result.SourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}
	if src == nil {
		log.Printf("[workflow] ingest completion for unknown source %s, ignoring", result.SourceID)
		return nil
	}
	if src.Status != SourceIngesting && src.Status != SourcePending {
		// Duplicate delivery after the source already advanced.
		return nil
	}

	w, err := e.Get(ctx, src.WorkflowID)
	if err != nil {
		return err
	}

	if jobErr != "" {
		src.Status = SourceFailed
		src.Error = jobErr
	} else {
		src.Status = SourceExtracted
		src.SizeBytes = result.SizeBytes

		unlock := e.lockWorkflow(w.ID)
		w.TotalFileSize += result.SizeBytes
		if err := e.store.UpdateWorkflow(ctx, w); err != nil {
			unlock()
			return fmt.Errorf("failed to update workflow size: %w", err)
		}
		unlock()

		// Stage the embed job now while the extracted text is at hand; it is
		// dispatched once every source has settled.
		params, err := json.Marshal(jobs.WorkflowEmbedParams{
			WorkflowID: w.ID,
			SourceID:   src.ID,
			Text:       result.Text,
			ChunkSize:  w.ChunkSize,
			Overlap:    w.Overlap,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal embed params: %w", err)
		}
		if _, err := e.registry.Create(ctx, jobs.CreateParams{
			JobID:  embedJobID(src.ID),
			UserID: w.UserID,
			Kind:   jobs.KindWorkflowEmbed,
			Params: params,
		}); err != nil {
			return fmt.Errorf("failed to create embed job: %w", err)
		}
	}

	if err := e.store.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	if err := e.refreshProgress(ctx, w.ID); err != nil {
		return err
	}
	return e.maybeStartEmbedding(ctx, w.ID)
}

// maybeStartEmbedding transitions the workflow to embedding once every source
// has either been extracted or failed, then dispatches the staged embed jobs.
// If every source failed, the workflow fails instead.
func (e *Engine) maybeStartEmbedding(ctx context.Context, workflowID uuid.UUID) error {
	sources, err := e.store.ListSources(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	extracted := make([]*Source, 0, len(sources))
	failed := 0
	for _, src := range sources {
		switch src.Status {
		case SourceExtracted:
			extracted = append(extracted, src)
		case SourceFailed:
			failed++
		default:
			return nil // at least one source still fetching
		}
	}

	if len(extracted) == 0 {
		return e.finishWorkflow(ctx, workflowID, failed, len(sources))
	}

	unlock := e.lockWorkflow(workflowID)
	w, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil || w == nil {
		unlock()
		return fmt.Errorf("failed to reload workflow: %w", err)
	}
	if w.Status != StatusProcessing {
		unlock()
		return nil // another delivery already advanced the workflow
	}
	w.Status = StatusEmbedding
	w.CurrentStage = "embed"
	if err := e.store.UpdateWorkflow(ctx, w); err != nil {
		unlock()
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	unlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, src := range extracted {
		g.Go(func() error {
			job, err := e.registry.Get(gCtx, embedJobID(src.ID))
			if err != nil {
				return fmt.Errorf("staged embed job missing for source %s: %w", src.ID, err)
			}
			src.Status = SourceEmbedding
			if err := e.store.UpdateSource(gCtx, src); err != nil {
				return fmt.Errorf("failed to update source: %w", err)
			}
			if err := e.dispatcher.Dispatch(gCtx, job); err != nil {
				log.Printf("[workflow] embed dispatch failed for source %s: %v", src.ID, err)
				src.Status = SourceFailed
				src.Error = err.Error()
				return e.store.UpdateSource(gCtx, src)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := e.refreshProgress(ctx, workflowID); err != nil {
		return err
	}
	// Embed jobs that failed at dispatch never produce a webhook either.
	return e.maybeFinish(ctx, workflowID)
}

// HandleSourceEmbedded applies a chunk+embed outcome reported through the
// webhook intake. The chunks are persisted and, when the last source settles,
// the workflow reaches its terminal status.
func (e *Engine) HandleSourceEmbedded(ctx context.Context, result jobs.WorkflowEmbedResult, jobErr string) error {
	src, err := e.store.GetSource(ctx, result.SourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}
	if src == nil {
		log.Printf("[workflow] embed completion for unknown source %s, ignoring", result.SourceID)
		return nil
	}
	if src.Status != SourceEmbedding {
		// Duplicate delivery; chunks were already recorded.
		return nil
	}

	if jobErr != "" {
		src.Status = SourceFailed
		src.Error = jobErr
	} else {
		now := e.now().UTC()
		chunks := make([]*EmbeddingChunk, len(result.Chunks))
		for i, c := range result.Chunks {
			chunks[i] = &EmbeddingChunk{
				ID:          uuid.New(),
				WorkflowID:  src.WorkflowID,
				SourceID:    src.ID,
				EmbeddingID: c.EmbeddingID,
				ChunkText:   c.Text,
				ChunkTokens: c.Tokens,
				Dimensions:  c.Dimensions,
				Vector:      c.Vector,
				CreatedAt:   now,
			}
		}
		if err := e.store.InsertChunks(ctx, chunks); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		src.Status = SourceCompleted

		unlock := e.lockWorkflow(src.WorkflowID)
		w, err := e.store.GetWorkflow(ctx, src.WorkflowID)
		if err != nil || w == nil {
			unlock()
			return fmt.Errorf("failed to reload workflow: %w", err)
		}
		w.TotalEmbeddings += len(chunks)
		if err := e.store.UpdateWorkflow(ctx, w); err != nil {
			unlock()
			return fmt.Errorf("failed to update workflow: %w", err)
		}
		unlock()
	}

	if err := e.store.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	if err := e.refreshProgress(ctx, src.WorkflowID); err != nil {
		return err
	}
	return e.maybeFinish(ctx, src.WorkflowID)
}

// maybeFinish completes the workflow once every source is terminal.
func (e *Engine) maybeFinish(ctx context.Context, workflowID uuid.UUID) error {
	sources, err := e.store.ListSources(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	failed := 0
	for _, src := range sources {
		if !src.Status.Terminal() {
			return nil
		}
		if src.Status == SourceFailed {
			failed++
		}
	}
	return e.finishWorkflow(ctx, workflowID, failed, len(sources))
}

// finishWorkflow records the workflow's terminal status. The workflow fails
// only when every source failed; otherwise it completes, with partial success
// flagged when some sources failed.
func (e *Engine) finishWorkflow(ctx context.Context, workflowID uuid.UUID, failed, total int) error {
	unlock := e.lockWorkflow(workflowID)
	defer unlock()

	w, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil || w == nil {
		return fmt.Errorf("failed to reload workflow: %w", err)
	}
	if w.Status.Terminal() {
		return nil
	}

	if failed == total {
		w.Status = StatusFailed
		w.Error = "all sources failed"
	} else {
		if !w.Status.CanTransition(StatusCompleted) {
			// Every source failed during fetch; the workflow never reached
			// embedding and fails from processing directly.
			w.Status = StatusFailed
			w.Error = "all sources failed"
		} else {
			w.Status = StatusCompleted
			w.PartialSuccess = failed > 0
		}
	}
	w.CurrentStage = "index"
	w.Progress = 100
	if err := e.store.UpdateWorkflow(ctx, w); err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	log.Printf("[workflow] %s finished: status=%s failed_sources=%d/%d", workflowID, w.Status, failed, total)
	return nil
}

// refreshProgress recomputes stage-weighted progress from source statuses.
// Writes are serialized per workflow and clamped so progress never decreases.
func (e *Engine) refreshProgress(ctx context.Context, workflowID uuid.UUID) error {
	sources, err := e.store.ListSources(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sources) == 0 {
		return nil
	}

	sum := 0
	for _, src := range sources {
		sum += src.Status.progressWeight()
	}
	progress := sum / len(sources)

	unlock := e.lockWorkflow(workflowID)
	defer unlock()

	w, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil || w == nil {
		return fmt.Errorf("failed to reload workflow: %w", err)
	}
	if w.Status.Terminal() || progress <= w.Progress {
		return nil
	}
	w.Progress = progress
	if err := e.store.UpdateWorkflow(ctx, w); err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return nil
}

// Stats aggregates the workflow's sources and chunks.
func (e *Engine) Stats(ctx context.Context, workflowID uuid.UUID) (*Stats, error) {
	if _, err := e.Get(ctx, workflowID); err != nil {
		return nil, err
	}

	sources, err := e.store.ListSources(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	chunks, err := e.store.ListChunks(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	stats := &Stats{TotalSources: len(sources)}
	for _, src := range sources {
		if src.Status.Terminal() {
			stats.ProcessedSources++
		}
		if src.Status == SourceFailed {
			stats.FailedSources++
		}
	}
	for _, c := range chunks {
		stats.TotalChunks++
		stats.TotalEmbeddings++
		stats.TotalTokens += c.ChunkTokens
		stats.IndexSizeBytes += int64(len(c.ChunkText)) + int64(4*len(c.Vector))
	}
	return stats, nil
}

// Delete removes a workflow and cascades to its sources and chunks.
func (e *Engine) Delete(ctx context.Context, workflowID uuid.UUID) error {
	if _, err := e.Get(ctx, workflowID); err != nil {
		return err
	}
	if err := e.store.DeleteWorkflow(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}

// SweepExpired deletes terminal workflows whose retention deadline has
// passed, cascading to sources and chunks. Returns how many were removed.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := e.store.ListExpiredWorkflows(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired workflows: %w", err)
	}

	swept := 0
	for _, w := range expired {
		if err := e.store.DeleteWorkflow(ctx, w.ID); err != nil {
			log.Printf("[sweep] failed to delete workflow %s: %v", w.ID, err)
			continue
		}
		log.Printf("[sweep] removed expired workflow %s (expired %s)", w.ID, w.ExpiresAt.Format(time.RFC3339))
		swept++

		e.locksMu.Lock()
		delete(e.locks, w.ID)
		e.locksMu.Unlock()
	}
	return swept, nil
}
