// Package server provides the HTTP REST API for the content ingestion engine.
package server

import (
	"net/http"

	"github.com/mathewevviai/diala-sub005/internal/cache"
	"github.com/mathewevviai/diala-sub005/internal/export"
	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/ratelimit"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch err.(type) {
	case *jobs.ErrDuplicateJob:
		return http.StatusConflict
	case *jobs.ErrJobNotFound, *cache.ErrEntityNotFound, *workflow.ErrWorkflowNotFound, *export.ErrNotExportable:
		return http.StatusNotFound
	case *jobs.ErrInvalidJob, *workflow.ErrValidation, *export.ErrUnsupportedFormat:
		return http.StatusBadRequest
	case *ratelimit.ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case *workflow.ErrQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case *workflow.ErrInvalidState:
		return http.StatusConflict
	case *workflow.ErrExpiredResource:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
