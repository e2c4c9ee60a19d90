// Package intake receives worker completion reports and fans them out: every
// report updates the job registry, and reports for platform fetches and
// workflow stages additionally materialize cache entries or advance the
// owning workflow.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mathewevviai/diala-sub005/internal/cache"
	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// Intake routes completion reports from the worker.
type Intake struct {
	registry *jobs.Registry
	engine   *workflow.Engine
	cache    *cache.Cache
}

// New creates an intake over the registry, workflow engine, and entity cache.
func New(registry *jobs.Registry, engine *workflow.Engine, entities *cache.Cache) *Intake {
	return &Intake{
		registry: registry,
		engine:   engine,
		cache:    entities,
	}
}

// HandleCompletion applies a terminal worker report. A report for an unknown
// job is logged and dropped without error, so the worker never retries a
// completion the engine cannot use.
func (i *Intake) HandleCompletion(ctx context.Context, jobID string, status jobs.Status, payload []byte, errMsg string) error {
	if status != jobs.StatusCompleted && status != jobs.StatusFailed {
		return &jobs.ErrInvalidJob{Field: "status", Message: fmt.Sprintf("completion status must be terminal, got %q", status)}
	}

	job, err := i.registry.Get(ctx, jobID)
	if err != nil {
		var notFound *jobs.ErrJobNotFound
		if errors.As(err, &notFound) {
			log.Printf("[intake] dropping completion for unknown job %s", jobID)
			return nil
		}
		return err
	}

	if _, err := i.registry.ApplyCompletion(ctx, jobID, jobs.Completion{
		Status: status,
		Result: payload,
		Error:  errMsg,
	}); err != nil {
		return err
	}

	if job.Status.Terminal() {
		// Duplicate delivery; the first terminal state won and its downstream
		// effects have already run. Re-routing would refresh cache timestamps
		// from a stale redelivered payload.
		return nil
	}

	if status == jobs.StatusCompleted {
		return i.routeCompleted(ctx, job, payload)
	}
	return i.routeFailed(ctx, job, errMsg)
}

// HandleProgress applies an in-flight progress report.
func (i *Intake) HandleProgress(ctx context.Context, jobID string, progress int) error {
	_, err := i.registry.ApplyCompletion(ctx, jobID, jobs.Completion{
		Status:   jobs.StatusProcessing,
		Progress: &progress,
	})
	var notFound *jobs.ErrJobNotFound
	if errors.As(err, &notFound) {
		log.Printf("[intake] dropping progress for unknown job %s", jobID)
		return nil
	}
	return err
}

func (i *Intake) routeCompleted(ctx context.Context, job *jobs.Job, payload []byte) error {
	switch job.Kind {
	case jobs.KindChannelFetch:
		var result jobs.ChannelResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return fmt.Errorf("invalid channel result for %s: %w", job.ID, err)
		}
		return i.cache.Upsert(ctx, cache.EntityChannel, result.Platform+":"+result.Handle, payload)

	case jobs.KindVideoFetch:
		var result jobs.VideoResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return fmt.Errorf("invalid video result for %s: %w", job.ID, err)
		}
		return i.cache.Upsert(ctx, cache.EntityVideo, result.Platform+":"+result.VideoID, payload)

	case jobs.KindUserFetch:
		var result jobs.UserProfileResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return fmt.Errorf("invalid user-fetch result for %s: %w", job.ID, err)
		}
		return i.cache.Upsert(ctx, cache.EntityUserProfile, result.Platform+":"+result.Username, payload)

	case jobs.KindSourceIngest:
		var result jobs.SourceIngestResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return fmt.Errorf("invalid source-ingest result for %s: %w", job.ID, err)
		}
		return i.engine.HandleSourceIngested(ctx, result, "")

	case jobs.KindWorkflowEmbed:
		var result jobs.WorkflowEmbedResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return fmt.Errorf("invalid workflow-embed result for %s: %w", job.ID, err)
		}
		return i.engine.HandleSourceEmbedded(ctx, result, "")
	}

	// Download, voice-clone, and export results live on the job record.
	return nil
}

// routeFailed advances workflow state for failed stage jobs. The failed
// source is identified from the job's own params since a failure report
// carries no payload.
func (i *Intake) routeFailed(ctx context.Context, job *jobs.Job, errMsg string) error {
	switch job.Kind {
	case jobs.KindSourceIngest:
		var params jobs.SourceIngestParams
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return fmt.Errorf("invalid source-ingest params for %s: %w", job.ID, err)
		}
		return i.engine.HandleSourceIngested(ctx, jobs.SourceIngestResult{
			WorkflowID: params.WorkflowID,
			SourceID:   params.SourceID,
		}, errMsg)

	case jobs.KindWorkflowEmbed:
		var params jobs.WorkflowEmbedParams
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return fmt.Errorf("invalid workflow-embed params for %s: %w", job.ID, err)
		}
		return i.engine.HandleSourceEmbedded(ctx, jobs.WorkflowEmbedResult{
			WorkflowID: params.WorkflowID,
			SourceID:   params.SourceID,
		}, errMsg)
	}
	return nil
}
