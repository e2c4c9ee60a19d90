// Package export serializes a completed workflow's embeddings into external
// formats. Each export runs as its own job: json, jsonl, and csv are encoded
// by the engine-side encoders in this package, while parquet, pinecone, and
// weaviate serialization is performed by the worker.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// Format is a supported export serialization.
type Format string

// Export formats.
const (
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatCSV      Format = "csv"
	FormatParquet  Format = "parquet"
	FormatPinecone Format = "pinecone"
	FormatWeaviate Format = "weaviate"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatJSONL, FormatCSV, FormatParquet, FormatPinecone, FormatWeaviate:
		return Format(s), nil
	}
	return "", &ErrUnsupportedFormat{Format: s}
}

// ErrUnsupportedFormat indicates the format is unknown or not allowed for the
// caller's tier.
type ErrUnsupportedFormat struct {
	Format string
	Tier   workflow.Tier
}

func (e *ErrUnsupportedFormat) Error() string {
	if e.Tier != "" {
		return fmt.Sprintf("format %q not available on tier %s", e.Format, e.Tier)
	}
	return fmt.Sprintf("unsupported export format: %q", e.Format)
}

// ErrNotExportable indicates the workflow has not completed, so there is
// nothing to export yet.
type ErrNotExportable struct {
	WorkflowID uuid.UUID
	Status     workflow.Status
}

func (e *ErrNotExportable) Error() string {
	return fmt.Sprintf("workflow %s is not exportable in status %s", e.WorkflowID, e.Status)
}

// Dispatcher hands an export job to the worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *jobs.Job) error
}

// Exporter starts export jobs for completed workflows.
type Exporter struct {
	registry   *jobs.Registry
	workflows  *workflow.Engine
	tiers      workflow.TierResolver
	dispatcher Dispatcher
}

// NewExporter creates an exporter.
func NewExporter(registry *jobs.Registry, workflows *workflow.Engine, tiers workflow.TierResolver, dispatcher Dispatcher) *Exporter {
	return &Exporter{
		registry:   registry,
		workflows:  workflows,
		tiers:      tiers,
		dispatcher: dispatcher,
	}
}

// StartExport creates and dispatches an export job for the workflow.
// Re-running the same workflow+format combination is allowed; each export is
// a fresh point-in-time snapshot with its own job.
func (e *Exporter) StartExport(ctx context.Context, workflowID, userID uuid.UUID, formatStr string) (*jobs.Job, error) {
	format, err := ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	w, err := e.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		// Entities are never shared across users; an outsider sees not-found.
		return nil, &workflow.ErrWorkflowNotFound{WorkflowID: workflowID}
	}
	if w.Expired(time.Now().UTC()) {
		return nil, &workflow.ErrExpiredResource{WorkflowID: workflowID}
	}
	if w.Status != workflow.StatusCompleted {
		return nil, &ErrNotExportable{WorkflowID: workflowID, Status: w.Status}
	}

	tier, err := e.tiers.TierFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tier: %w", err)
	}
	if !tier.AllowsFormat(string(format)) {
		return nil, &ErrUnsupportedFormat{Format: string(format), Tier: tier}
	}

	params, err := json.Marshal(jobs.ExportParams{
		WorkflowID: workflowID,
		Format:     string(format),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export params: %w", err)
	}

	job, err := e.registry.Create(ctx, jobs.CreateParams{
		JobID:  "export:" + uuid.NewString(),
		UserID: userID,
		Kind:   jobs.KindExport,
		Params: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create export job: %w", err)
	}

	if err := e.dispatcher.Dispatch(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to dispatch export: %w", err)
	}
	return job, nil
}
