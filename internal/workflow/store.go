package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary for workflows, their sources, and their
// embedding chunks. Lookups that match nothing return (nil, nil). Deleting a
// workflow cascades to its sources and chunks.
type Store interface {
	InsertWorkflow(ctx context.Context, w *Workflow) error
	GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, w *Workflow) error
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error

	// ListWorkflowsByUser returns every workflow owned by the user.
	ListWorkflowsByUser(ctx context.Context, userID uuid.UUID) ([]*Workflow, error)

	// ListExpiredWorkflows returns workflows in a terminal status whose
	// expiry deadline has passed.
	ListExpiredWorkflows(ctx context.Context, now time.Time) ([]*Workflow, error)

	InsertSource(ctx context.Context, s *Source) error
	GetSource(ctx context.Context, id uuid.UUID) (*Source, error)
	UpdateSource(ctx context.Context, s *Source) error
	ListSources(ctx context.Context, workflowID uuid.UUID) ([]*Source, error)

	// InsertChunks appends embedding chunks. Chunks are immutable once
	// written.
	InsertChunks(ctx context.Context, chunks []*EmbeddingChunk) error
	ListChunks(ctx context.Context, workflowID uuid.UUID) ([]*EmbeddingChunk, error)
}
