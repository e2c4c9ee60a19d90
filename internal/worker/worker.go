// Package worker provides the dispatch boundary to the ingestion worker.
//
// The engine never blocks on worker execution: Dispatch hands a job off and
// returns, and the worker reports its outcome asynchronously through the
// webhook intake. HTTPDispatcher targets the external worker service; the
// InlineWorker runs the work in-process for development and tests.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
)

// DefaultTimeout is the HTTP timeout for dispatch calls. Dispatch only
// enqueues work on the worker, so the call itself is short.
const DefaultTimeout = 30 * time.Second

// DispatchRequest is the wire shape posted to the worker service.
type DispatchRequest struct {
	JobID  string          `json:"job_id"`
	Kind   jobs.Kind       `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// HTTPDispatcher posts jobs to the external worker service.
type HTTPDispatcher struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewHTTPDispatcher creates a dispatcher targeting the worker at baseURL.
// The secret, when set, is sent as a bearer token so the worker can reject
// dispatches from anyone but the engine.
func NewHTTPDispatcher(baseURL, secret string) *HTTPDispatcher {
	return &HTTPDispatcher{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// Dispatch enqueues the job on the worker. The worker's response only
// acknowledges receipt; results arrive later via webhook.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, job *jobs.Job) error {
	body, err := json.Marshal(DispatchRequest{
		JobID:  job.ID,
		Kind:   job.Kind,
		Params: job.Params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	url := d.baseURL + "/tasks/" + string(job.Kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("Authorization", "Bearer "+d.secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch failed for %s: %w", job.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("worker rejected dispatch for %s: HTTP %d", job.ID, resp.StatusCode)
	}
	return nil
}
