package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store implementation.
type MemStore struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]*Workflow
	sources   map[uuid.UUID]*Source
	chunks    map[uuid.UUID][]*EmbeddingChunk // keyed by workflow id
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory workflow store.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows: make(map[uuid.UUID]*Workflow),
		sources:   make(map[uuid.UUID]*Source),
		chunks:    make(map[uuid.UUID][]*EmbeddingChunk),
	}
}

// InsertWorkflow stores a new workflow.
func (m *MemStore) InsertWorkflow(_ context.Context, w *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[w.ID] = w.Clone()
	return nil
}

// GetWorkflow retrieves a workflow by id, or (nil, nil).
func (m *MemStore) GetWorkflow(_ context.Context, id uuid.UUID) (*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workflows[id]
	if !ok {
		return nil, nil
	}
	return w.Clone(), nil
}

// UpdateWorkflow overwrites an existing workflow.
func (m *MemStore) UpdateWorkflow(_ context.Context, w *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[w.ID] = w.Clone()
	return nil
}

// DeleteWorkflow removes a workflow and cascades to its sources and chunks.
func (m *MemStore) DeleteWorkflow(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workflows, id)
	for sid, s := range m.sources {
		if s.WorkflowID == id {
			delete(m.sources, sid)
		}
	}
	delete(m.chunks, id)
	return nil
}

// ListWorkflowsByUser returns every workflow owned by the user.
func (m *MemStore) ListWorkflowsByUser(_ context.Context, userID uuid.UUID) ([]*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Workflow
	for _, w := range m.workflows {
		if w.UserID == userID {
			out = append(out, w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListExpiredWorkflows returns terminal workflows past their expiry deadline.
func (m *MemStore) ListExpiredWorkflows(_ context.Context, now time.Time) ([]*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Workflow
	for _, w := range m.workflows {
		if w.Status.Terminal() && w.ExpiresAt.Before(now) {
			out = append(out, w.Clone())
		}
	}
	return out, nil
}

// InsertSource stores a new source.
func (m *MemStore) InsertSource(_ context.Context, s *Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.ID] = s.Clone()
	return nil
}

// GetSource retrieves a source by id, or (nil, nil).
func (m *MemStore) GetSource(_ context.Context, id uuid.UUID) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// UpdateSource overwrites an existing source.
func (m *MemStore) UpdateSource(_ context.Context, s *Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.ID] = s.Clone()
	return nil
}

// ListSources returns the workflow's sources in registration order.
func (m *MemStore) ListSources(_ context.Context, workflowID uuid.UUID) ([]*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Source
	for _, s := range m.sources {
		if s.WorkflowID == workflowID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// InsertChunks appends embedding chunks.
func (m *MemStore) InsertChunks(_ context.Context, chunks []*EmbeddingChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		copied := *c
		copied.Vector = append([]float32(nil), c.Vector...)
		m.chunks[c.WorkflowID] = append(m.chunks[c.WorkflowID], &copied)
	}
	return nil
}

// ListChunks returns the workflow's chunks in insertion order.
func (m *MemStore) ListChunks(_ context.Context, workflowID uuid.UUID) ([]*EmbeddingChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := m.chunks[workflowID]
	out := make([]*EmbeddingChunk, 0, len(chunks))
	for _, c := range chunks {
		copied := *c
		copied.Vector = append([]float32(nil), c.Vector...)
		out = append(out, &copied)
	}
	return out, nil
}
