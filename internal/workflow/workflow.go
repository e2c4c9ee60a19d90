// Package workflow provides the RAG ingestion workflow engine: source
// registration, staged processing over the job registry, tiered size quotas,
// progress tracking, and expiry sweeping.
package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a workflow.
type Status string

// Workflow statuses. The machine is pending -> processing -> embedding ->
// completed, with failed reachable from processing or embedding and expired
// reachable only from a terminal state after the expiry deadline.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusEmbedding  Status = "embedding"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// transitions is the exhaustive state machine for workflow statuses.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusEmbedding, StatusFailed},
	StatusEmbedding:  {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusExpired},
	StatusFailed:     {StatusExpired},
	StatusExpired:    {},
}

// Terminal reports whether s is a final processing status. Expired counts as
// terminal since it is only reachable from one.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// CanTransition reports whether a workflow may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Workflow is a named RAG ingestion run owned by a user.
type Workflow struct {
	ID              uuid.UUID `json:"workflow_id"`
	UserID          uuid.UUID `json:"user_id"`
	Name            string    `json:"name"`
	SourceType      string    `json:"source_type"`
	ChunkSize       int       `json:"chunk_size"`
	Overlap         int       `json:"overlap"`
	Status          Status    `json:"status"`
	Progress        int       `json:"progress"`
	CurrentStage    string    `json:"current_stage,omitempty"`
	TotalFileSize   int64     `json:"total_file_size"`
	TotalEmbeddings int       `json:"total_embeddings"`
	PartialSuccess  bool      `json:"partial_success"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Clone returns a copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	c := *w
	return &c
}

// Expired reports whether the workflow's retention deadline has passed. Only
// terminal workflows expire; the sweeper removes them on its next pass.
func (w *Workflow) Expired(now time.Time) bool {
	return w.Status == StatusExpired || (w.Status.Terminal() && w.ExpiresAt.Before(now))
}

// SourceStatus is the lifecycle state of one registered input. It is
// independent of the workflow status: a workflow may complete with some
// sources failed.
type SourceStatus string

// Source statuses.
const (
	SourcePending   SourceStatus = "pending"
	SourceIngesting SourceStatus = "ingesting"
	SourceExtracted SourceStatus = "extracted"
	SourceEmbedding SourceStatus = "embedding"
	SourceCompleted SourceStatus = "completed"
	SourceFailed    SourceStatus = "failed"
)

// Terminal reports whether the source has finished, successfully or not.
func (s SourceStatus) Terminal() bool {
	return s == SourceCompleted || s == SourceFailed
}

// progressWeight maps a source status to its contribution to workflow
// progress. Stage boundaries: fetch 0-40, extract 40-60, embed 60-80,
// index 80-100. Failed sources count as done so they cannot stall progress.
func (s SourceStatus) progressWeight() int {
	switch s {
	case SourcePending:
		return 0
	case SourceIngesting:
		return 20
	case SourceExtracted:
		return 60
	case SourceEmbedding:
		return 80
	case SourceCompleted, SourceFailed:
		return 100
	}
	return 0
}

// Source is one input unit registered to a workflow.
type Source struct {
	ID         uuid.UUID    `json:"source_id"`
	WorkflowID uuid.UUID    `json:"workflow_id"`
	Type       string       `json:"type"`
	Value      string       `json:"value"`
	Status     SourceStatus `json:"status"`
	SizeBytes  int64        `json:"size_bytes"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Clone returns a copy of the source.
func (s *Source) Clone() *Source {
	c := *s
	return &c
}

// EmbeddingChunk is one unit of vectorized text. Chunks are immutable once
// written and deleted only with their owning workflow.
type EmbeddingChunk struct {
	ID          uuid.UUID `json:"id"`
	WorkflowID  uuid.UUID `json:"workflow_id"`
	SourceID    uuid.UUID `json:"source_id"`
	EmbeddingID string    `json:"embedding_id"`
	ChunkText   string    `json:"chunk_text"`
	ChunkTokens int       `json:"chunk_tokens"`
	Dimensions  int       `json:"dimensions"`
	Vector      []float32 `json:"vector,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats aggregates a workflow's ingestion results.
type Stats struct {
	TotalSources     int   `json:"total_sources"`
	ProcessedSources int   `json:"processed_sources"`
	FailedSources    int   `json:"failed_sources"`
	TotalChunks      int   `json:"total_chunks"`
	TotalEmbeddings  int   `json:"total_embeddings"`
	TotalTokens      int   `json:"total_tokens"`
	IndexSizeBytes   int64 `json:"index_size_bytes"`
}
