package server

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/types"
)

// handleWebhook receives worker status reports. The worker treats any 2xx as
// delivered, so routing problems are logged rather than surfaced: returning
// 5xx would only make the worker redeliver a report we already cannot use.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeWebhook(r) {
		s.errorResponse(w, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	var req types.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch jobs.Status(req.Status) {
	case jobs.StatusProcessing:
		progress := 0
		if req.Progress != nil {
			progress = *req.Progress
		}
		err = s.intake.HandleProgress(r.Context(), req.JobID, progress)
	default:
		err = s.intake.HandleCompletion(r.Context(), req.JobID, jobs.Status(req.Status), req.Result, req.Error)
	}
	if err != nil {
		log.Printf("[webhook] routing failed for job %s: %v", req.JobID, err)
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "received"})
}

// authorizeWebhook checks the shared-secret bearer token. An empty configured
// secret disables the check.
func (s *Server) authorizeWebhook(r *http.Request) bool {
	if s.webhookSecret == "" {
		return true
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookSecret)) == 1
}
