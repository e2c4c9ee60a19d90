package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store implementation. It backs unit tests and
// single-process deployments without a database.
type MemStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory job store.
func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]*Job)}
}

// InsertJob stores a new job record.
func (m *MemStore) InsertJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob retrieves a job by id, or (nil, nil) if absent.
func (m *MemStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return job.Clone(), nil
}

// UpdateJob overwrites an existing job record.
func (m *MemStore) UpdateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

// CountJobsSince counts jobs of the given kind created by the user at or
// after the cutoff.
func (m *MemStore) CountJobsSince(_ context.Context, userID uuid.UUID, kind Kind, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, job := range m.jobs {
		if job.UserID == userID && job.Kind == kind && !job.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// OldestJobSince returns the oldest matching job created at or after the
// cutoff, or (nil, nil) if none exist.
func (m *MemStore) OldestJobSince(_ context.Context, userID uuid.UUID, kind Kind, since time.Time) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var oldest *Job
	for _, job := range m.jobs {
		if job.UserID != userID || job.Kind != kind || job.CreatedAt.Before(since) {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return oldest.Clone(), nil
}

// DeleteJobsByUser removes all jobs owned by the user.
func (m *MemStore) DeleteJobsByUser(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, job := range m.jobs {
		if job.UserID == userID {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}
