package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
)

const jobColumns = `id, user_id, kind, status, progress, params, result, error, created_at, completed_at`

var _ jobs.Store = (*DB)(nil)

func scanJob(row pgx.Row) (*jobs.Job, error) {
	var j jobs.Job
	err := row.Scan(&j.ID, &j.UserID, &j.Kind, &j.Status, &j.Progress,
		&j.Params, &j.Result, &j.Error, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// InsertJob stores a new job record
func (db *DB) InsertJob(ctx context.Context, job *jobs.Job) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, kind, status, progress, params, result, error, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.UserID, job.Kind, job.Status, job.Progress,
		job.Params, job.Result, job.Error, job.CreatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id, or (nil, nil) if absent
func (db *DB) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// UpdateJob overwrites an existing job record keyed by id
func (db *DB) UpdateJob(ctx context.Context, job *jobs.Job) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, progress = $3, result = $4, error = $5, completed_at = $6
		 WHERE id = $1`,
		job.ID, job.Status, job.Progress, job.Result, job.Error, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job not found for update: %s", job.ID)
	}
	return nil
}

// CountJobsSince counts jobs of the given kind created by the user at or
// after the cutoff
func (db *DB) CountJobsSince(ctx context.Context, userID uuid.UUID, kind jobs.Kind, since time.Time) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND kind = $2 AND created_at >= $3`,
		userID, kind, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// OldestJobSince returns the oldest matching job created at or after the
// cutoff, or (nil, nil) if none exist
func (db *DB) OldestJobSince(ctx context.Context, userID uuid.UUID, kind jobs.Kind, since time.Time) (*jobs.Job, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE user_id = $1 AND kind = $2 AND created_at >= $3
		 ORDER BY created_at ASC LIMIT 1`,
		userID, kind, since))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get oldest job: %w", err)
	}
	return j, nil
}

// DeleteJobsByUser removes all jobs owned by the user
func (db *DB) DeleteJobsByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM jobs WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
