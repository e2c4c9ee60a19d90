package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary for job records. Implementations return
// (nil, nil) for lookups that match nothing, following the db package
// convention, and must perform Insert and Update atomically per job id.
type Store interface {
	// InsertJob stores a new job record.
	InsertJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by id, or (nil, nil) if absent.
	GetJob(ctx context.Context, id string) (*Job, error)

	// UpdateJob overwrites an existing job record keyed by id.
	UpdateJob(ctx context.Context, job *Job) error

	// CountJobsSince counts jobs of the given kind created by the user at or
	// after the cutoff.
	CountJobsSince(ctx context.Context, userID uuid.UUID, kind Kind, since time.Time) (int, error)

	// OldestJobSince returns the oldest matching job created at or after the
	// cutoff, or (nil, nil) if none exist.
	OldestJobSince(ctx context.Context, userID uuid.UUID, kind Kind, since time.Time) (*Job, error)

	// DeleteJobsByUser removes all jobs owned by the user and returns how many
	// were deleted.
	DeleteJobsByUser(ctx context.Context, userID uuid.UUID) (int, error)
}
