package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/types"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// handleCreateWorkflow creates a RAG ingestion workflow, enforcing the
// owner's tier size quota up front
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req types.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.engine.CreateWorkflow(r.Context(), workflow.CreateWorkflowParams{
		UserID:        req.UserID,
		Name:          req.Name,
		SourceType:    req.SourceType,
		ChunkSize:     req.ChunkSize,
		Overlap:       req.Overlap,
		EstimatedSize: req.EstimatedSize,
	})
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, created)
}

func (s *Server) workflowID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid workflow ID format")
		return uuid.Nil, false
	}
	return id, true
}

// handleGetWorkflow returns a workflow's current state
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	found, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, found)
}

// handleDeleteWorkflow removes a workflow with its sources and embeddings
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Delete(r.Context(), id); err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleAddSource attaches one source to a pending workflow
func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}

	var req types.AddSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	src, err := s.engine.AddSource(r.Context(), id, req.SourceType, req.Value)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, src)
}

// handleProcessWorkflow starts ingestion: one fetch/extract job per source
func (s *Server) handleProcessWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	started, err := s.engine.Process(r.Context(), id)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, started)
}

// handleWorkflowStats returns aggregate ingestion results
func (s *Server) handleWorkflowStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	stats, err := s.engine.Stats(r.Context(), id)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

// handleExportWorkflow starts an export job for a completed workflow
func (s *Server) handleExportWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}

	var req types.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.limiter.Enforce(r.Context(), req.UserID, jobs.KindExport)
	s.setRateLimitHeaders(w, info)
	if err != nil {
		s.domainError(w, err)
		return
	}

	job, err := s.exporter.StartExport(r.Context(), id, req.UserID, req.Format)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, jobResponse(job))
}

// handleCheckQuota probes a user's size quota. The optional "additional"
// query parameter asks whether that many more bytes would still fit.
func (s *Server) handleCheckQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid user ID format")
		return
	}

	var additional int64
	if raw := r.URL.Query().Get("additional"); raw != "" {
		additional, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || additional < 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid 'additional' parameter")
			return
		}
	}

	info, err := s.engine.CheckSizeQuota(r.Context(), userID, additional)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, info)
}
