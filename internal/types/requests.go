// Package types provides the request and response shapes of the ingestion
// engine's REST API.
package types

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CreateJobRequest represents the request to register an asynchronous job.
// The job ID is chosen by the client so that retries of the same submission
// land on the same job.
type CreateJobRequest struct {
	JobID  string          `json:"job_id" validate:"required,min=1"`
	UserID uuid.UUID       `json:"user_id" validate:"required"`
	Kind   string          `json:"kind" validate:"required"`
	Params json.RawMessage `json:"params,omitempty"`
}

// WebhookRequest represents a worker status report posted to the completion
// webhook. Progress is only meaningful for processing reports.
type WebhookRequest struct {
	JobID    string          `json:"job_id" validate:"required,min=1"`
	Status   string          `json:"status" validate:"required,oneof=processing completed failed"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Progress *int            `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
}

// CreateWorkflowRequest represents the request to create a RAG ingestion
// workflow.
type CreateWorkflowRequest struct {
	UserID        uuid.UUID `json:"user_id" validate:"required"`
	Name          string    `json:"name" validate:"required,min=1"`
	SourceType    string    `json:"source_type,omitempty"`
	ChunkSize     int       `json:"chunk_size" validate:"required,gt=0"`
	Overlap       int       `json:"overlap" validate:"min=0"`
	EstimatedSize int64     `json:"estimated_size,omitempty" validate:"min=0"`
}

// AddSourceRequest represents the request to attach one source to a pending
// workflow.
type AddSourceRequest struct {
	SourceType string `json:"source_type" validate:"required,oneof=document url video"`
	Value      string `json:"value" validate:"required,min=1"`
}

// ExportRequest represents the request to export a completed workflow's
// embeddings.
type ExportRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Format string    `json:"format" validate:"required"`
}

// JobResponse represents a job for API responses.
type JobResponse struct {
	JobID       string          `json:"job_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Validate validates the CreateJobRequest using the validator.
func (r *CreateJobRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the WebhookRequest using the validator.
func (r *WebhookRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the CreateWorkflowRequest using the validator.
func (r *CreateWorkflowRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the AddSourceRequest using the validator.
func (r *AddSourceRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the ExportRequest using the validator.
func (r *ExportRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
