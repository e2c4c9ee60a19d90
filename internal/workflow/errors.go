package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrWorkflowNotFound indicates no workflow exists with the given id.
type ErrWorkflowNotFound struct {
	WorkflowID uuid.UUID
}

func (e *ErrWorkflowNotFound) Error() string {
	return fmt.Sprintf("workflow not found: %s", e.WorkflowID)
}

// ErrQuotaExceeded indicates the user's cumulative workflow size would exceed
// the tier byte ceiling.
type ErrQuotaExceeded struct {
	Tier        Tier
	CurrentSize int64
	MaxSize     int64
	Requested   int64
}

func (e *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("size quota exceeded for tier %s: %d + %d > %d bytes",
		e.Tier, e.CurrentSize, e.Requested, e.MaxSize)
}

// ErrInvalidState indicates an operation was attempted in a workflow status
// that does not permit it.
type ErrInvalidState struct {
	WorkflowID uuid.UUID
	Status     Status
	Operation  string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s workflow %s in status %s", e.Operation, e.WorkflowID, e.Status)
}

// ErrExpiredResource indicates an operation was attempted on an expired
// workflow.
type ErrExpiredResource struct {
	WorkflowID uuid.UUID
}

func (e *ErrExpiredResource) Error() string {
	return fmt.Sprintf("workflow expired: %s", e.WorkflowID)
}

// ErrValidation indicates malformed workflow input, rejected before any state
// change.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}
