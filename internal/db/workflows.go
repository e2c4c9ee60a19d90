package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

const workflowColumns = `id, user_id, name, source_type, chunk_size, overlap, status, progress,
	current_stage, total_file_size, total_embeddings, partial_success, error, created_at, expires_at`

var _ workflow.Store = (*DB)(nil)

func scanWorkflow(row pgx.Row) (*workflow.Workflow, error) {
	var w workflow.Workflow
	err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.SourceType, &w.ChunkSize, &w.Overlap,
		&w.Status, &w.Progress, &w.CurrentStage, &w.TotalFileSize, &w.TotalEmbeddings,
		&w.PartialSuccess, &w.Error, &w.CreatedAt, &w.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// InsertWorkflow stores a new workflow record
func (db *DB) InsertWorkflow(ctx context.Context, w *workflow.Workflow) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO workflows (id, user_id, name, source_type, chunk_size, overlap, status, progress,
		   current_stage, total_file_size, total_embeddings, partial_success, error, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		w.ID, w.UserID, w.Name, w.SourceType, w.ChunkSize, w.Overlap, w.Status, w.Progress,
		w.CurrentStage, w.TotalFileSize, w.TotalEmbeddings, w.PartialSuccess, w.Error, w.CreatedAt, w.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by id, or (nil, nil) if absent
func (db *DB) GetWorkflow(ctx context.Context, id uuid.UUID) (*workflow.Workflow, error) {
	w, err := scanWorkflow(db.pool.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return w, nil
}

// UpdateWorkflow overwrites a workflow record keyed by id
func (db *DB) UpdateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE workflows SET status = $2, progress = $3, current_stage = $4, total_file_size = $5,
		   total_embeddings = $6, partial_success = $7, error = $8, expires_at = $9
		 WHERE id = $1`,
		w.ID, w.Status, w.Progress, w.CurrentStage, w.TotalFileSize,
		w.TotalEmbeddings, w.PartialSuccess, w.Error, w.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow not found for update: %s", w.ID)
	}
	return nil
}

// DeleteWorkflow removes a workflow; sources and chunks cascade
func (db *DB) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}

// ListWorkflowsByUser returns every workflow owned by the user
func (db *DB) ListWorkflowsByUser(ctx context.Context, userID uuid.UUID) ([]*workflow.Workflow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE user_id = $1 ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListExpiredWorkflows returns terminal workflows whose expiry deadline has
// passed
func (db *DB) ListExpiredWorkflows(ctx context.Context, now time.Time) ([]*workflow.Workflow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE status IN ('completed', 'failed', 'expired') AND expires_at < $1
		 ORDER BY created_at ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired workflows: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// InsertSource stores a new source record
func (db *DB) InsertSource(ctx context.Context, s *workflow.Source) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO workflow_sources (id, workflow_id, source_type, value, status, size_bytes, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.WorkflowID, s.Type, s.Value, s.Status, s.SizeBytes, s.Error, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

// GetSource retrieves a source by id, or (nil, nil) if absent
func (db *DB) GetSource(ctx context.Context, id uuid.UUID) (*workflow.Source, error) {
	var s workflow.Source
	err := db.pool.QueryRow(ctx,
		`SELECT id, workflow_id, source_type, value, status, size_bytes, error, created_at
		 FROM workflow_sources WHERE id = $1`, id,
	).Scan(&s.ID, &s.WorkflowID, &s.Type, &s.Value, &s.Status, &s.SizeBytes, &s.Error, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &s, nil
}

// UpdateSource overwrites a source record keyed by id
func (db *DB) UpdateSource(ctx context.Context, s *workflow.Source) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE workflow_sources SET status = $2, size_bytes = $3, error = $4 WHERE id = $1`,
		s.ID, s.Status, s.SizeBytes, s.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source not found for update: %s", s.ID)
	}
	return nil
}

// ListSources returns a workflow's sources in creation order
func (db *DB) ListSources(ctx context.Context, workflowID uuid.UUID) ([]*workflow.Source, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, workflow_id, source_type, value, status, size_bytes, error, created_at
		 FROM workflow_sources WHERE workflow_id = $1 ORDER BY created_at ASC`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Source
	for rows.Next() {
		var s workflow.Source
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.Type, &s.Value, &s.Status,
			&s.SizeBytes, &s.Error, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// InsertChunks appends embedding chunks in one batch
func (db *DB) InsertChunks(ctx context.Context, chunks []*workflow.EmbeddingChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO workflow_embeddings (id, workflow_id, source_id, embedding_id, chunk_text, chunk_tokens, dimensions, vector, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, c.WorkflowID, c.SourceID, c.EmbeddingID, c.ChunkText, c.ChunkTokens, c.Dimensions, c.Vector, c.CreatedAt,
		)
	}
	if err := db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// ListChunks returns a workflow's embedding chunks in creation order
func (db *DB) ListChunks(ctx context.Context, workflowID uuid.UUID) ([]*workflow.EmbeddingChunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, workflow_id, source_id, embedding_id, chunk_text, chunk_tokens, dimensions, vector, created_at
		 FROM workflow_embeddings WHERE workflow_id = $1 ORDER BY created_at ASC, embedding_id ASC`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var out []*workflow.EmbeddingChunk
	for rows.Next() {
		var c workflow.EmbeddingChunk
		if err := rows.Scan(&c.ID, &c.WorkflowID, &c.SourceID, &c.EmbeddingID, &c.ChunkText,
			&c.ChunkTokens, &c.Dimensions, &c.Vector, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
