package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/ratelimit"
	"github.com/mathewevviai/diala-sub005/internal/types"
)

func jobResponse(job *jobs.Job) types.JobResponse {
	return types.JobResponse{
		JobID:       job.ID,
		UserID:      job.UserID,
		Kind:        string(job.Kind),
		Status:      string(job.Status),
		Progress:    job.Progress,
		Result:      job.Result,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}

// handleCreateJob registers an asynchronous job. Creation is idempotent on
// the client-chosen job ID and subject to per-kind rate limits.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req types.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := jobs.Kind(req.Kind)
	info, err := s.limiter.Enforce(r.Context(), req.UserID, kind)
	s.setRateLimitHeaders(w, info)
	if err != nil {
		s.domainError(w, err)
		return
	}

	job, err := s.registry.Create(r.Context(), jobs.CreateParams{
		JobID:  req.JobID,
		UserID: req.UserID,
		Kind:   kind,
		Params: req.Params,
	})
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, jobResponse(job))
}

// handleGetJob returns a job's current status and result
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := s.registry.Get(r.Context(), jobID)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, jobResponse(job))
}

// handleDeleteUserJobs removes every job belonging to a user
func (s *Server) handleDeleteUserJobs(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid user ID format")
		return
	}

	deleted, err := s.registry.DeleteForUser(r.Context(), userID)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// handleCheckLimit probes a user's remaining quota for one job kind without
// consuming anything
func (s *Server) handleCheckLimit(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid user ID format")
		return
	}

	info, err := s.limiter.Check(r.Context(), userID, jobs.Kind(r.PathValue("kind")))
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, info)
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetAt.Unix()))
	}
}
