package server

import (
	"net/http"

	"github.com/mathewevviai/diala-sub005/internal/cache"
)

// handleGetCachedEntity returns a materialized entity with its staleness
// flag. Callers decide whether a stale hit warrants a refresh job.
func (s *Server) handleGetCachedEntity(w http.ResponseWriter, r *http.Request) {
	entityType := cache.EntityType(r.PathValue("type"))
	key := r.PathValue("key")
	if key == "" {
		s.errorResponse(w, http.StatusBadRequest, "Cache key is required")
		return
	}
	if !entityType.Valid() {
		s.errorResponse(w, http.StatusBadRequest, "Unknown entity type: "+string(entityType))
		return
	}

	result, err := s.entities.Get(r.Context(), entityType, key)
	if err != nil {
		s.domainError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}
