package jobs

import "fmt"

// ErrDuplicateJob indicates a job id is already registered to another user.
type ErrDuplicateJob struct {
	JobID string
}

func (e *ErrDuplicateJob) Error() string {
	return fmt.Sprintf("job id already in use: %s", e.JobID)
}

// ErrJobNotFound indicates no job exists with the given id.
type ErrJobNotFound struct {
	JobID string
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

// ErrInvalidJob indicates a job record failed validation before any state change.
type ErrInvalidJob struct {
	Field   string
	Message string
}

func (e *ErrInvalidJob) Error() string {
	return fmt.Sprintf("invalid job: %s - %s", e.Field, e.Message)
}
