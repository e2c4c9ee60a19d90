package jobs

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Registry coordinates job creation and completion on top of a Store.
// It owns the status state machine; it performs no downstream side effects.
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store: store,
		now:   time.Now,
	}
}

// CreateParams describes a job to create. The job id is client-generated so
// clients can retry the start call safely.
type CreateParams struct {
	JobID  string
	UserID uuid.UUID
	Kind   Kind
	Params []byte
}

// Create registers a new pending job. Creation is idempotent: calling it
// twice with the same id and owner returns the existing job unchanged. Reusing
// an id under a different owner fails with ErrDuplicateJob.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*Job, error) {
	if p.JobID == "" {
		return nil, &ErrInvalidJob{Field: "job_id", Message: "must not be empty"}
	}
	if p.UserID == uuid.Nil {
		return nil, &ErrInvalidJob{Field: "user_id", Message: "must not be empty"}
	}
	if !p.Kind.Valid() {
		return nil, &ErrInvalidJob{Field: "kind", Message: fmt.Sprintf("unknown kind %q", p.Kind)}
	}

	existing, err := r.store.GetJob(ctx, p.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up job: %w", err)
	}
	if existing != nil {
		if existing.UserID != p.UserID {
			return nil, &ErrDuplicateJob{JobID: p.JobID}
		}
		return existing, nil
	}

	job := &Job{
		ID:        p.JobID,
		UserID:    p.UserID,
		Kind:      p.Kind,
		Status:    StatusPending,
		Params:    p.Params,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return job.Clone(), nil
}

// Get retrieves a job by id. Returns ErrJobNotFound if absent.
func (r *Registry) Get(ctx context.Context, jobID string) (*Job, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, &ErrJobNotFound{JobID: jobID}
	}
	return job, nil
}

// Completion carries the outcome reported for a job. Result and Error are
// mutually exclusive; Progress, when non-nil, updates the job's progress.
type Completion struct {
	Status   Status
	Result   []byte
	Error    string
	Progress *int
}

// ApplyCompletion applies a reported outcome to the job. It is idempotent:
// re-applying the same terminal completion leaves the job unchanged and is not
// an error. A terminal completion that conflicts with an earlier one is logged
// and discarded; the first terminal state wins.
func (r *Registry) ApplyCompletion(ctx context.Context, jobID string, c Completion) (*Job, error) {
	if !c.Status.Valid() || c.Status == StatusPending {
		return nil, &ErrInvalidJob{Field: "status", Message: fmt.Sprintf("cannot apply status %q", c.Status)}
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, &ErrJobNotFound{JobID: jobID}
	}

	if job.Status.Terminal() {
		if !c.Status.Terminal() {
			// Late progress update after completion. Delivery order is not
			// guaranteed, so drop it silently.
			return job, nil
		}
		if job.Status == c.Status && bytes.Equal(job.Result, c.Result) && job.Error == c.Error {
			return job, nil
		}
		log.Printf("[jobs] completion conflict for %s: already %s, ignoring %s", jobID, job.Status, c.Status)
		return job, nil
	}

	if c.Status == StatusProcessing && job.Status == StatusProcessing {
		// Progress-only update; the status itself does not move.
		if c.Progress != nil && *c.Progress > job.Progress {
			job.Progress = *c.Progress
			if err := r.store.UpdateJob(ctx, job); err != nil {
				return nil, fmt.Errorf("failed to update job: %w", err)
			}
		}
		return job, nil
	}

	if !job.Status.CanTransition(c.Status) {
		return nil, &ErrInvalidJob{Field: "status", Message: fmt.Sprintf("cannot transition %s from %s to %s", jobID, job.Status, c.Status)}
	}

	job.Status = c.Status
	if c.Progress != nil && *c.Progress > job.Progress {
		job.Progress = *c.Progress
	}
	switch c.Status {
	case StatusCompleted:
		job.Result = c.Result
		job.Progress = 100
		t := r.now().UTC()
		job.CompletedAt = &t
	case StatusFailed:
		job.Error = c.Error
		t := r.now().UTC()
		job.CompletedAt = &t
	}

	if err := r.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return job.Clone(), nil
}

// DeleteForUser removes every job owned by the user. This is the explicit
// user-initiated cleanup sweep; jobs are never deleted otherwise.
func (r *Registry) DeleteForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	deleted, err := r.store.DeleteJobsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	return deleted, nil
}
