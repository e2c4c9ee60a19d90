// Package jobs provides the registry for asynchronous ingestion jobs.
//
// A Job is a unit of work executed by the external worker. The registry is a
// pure state store: it records creation and completion, enforces the status
// state machine, and leaves all downstream effects (cache population, workflow
// bookkeeping) to the webhook intake that calls it.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of work a job performs.
type Kind string

// Supported job kinds.
const (
	KindChannelFetch  Kind = "channel-fetch"
	KindVideoFetch    Kind = "video-fetch"
	KindUserFetch     Kind = "user-fetch"
	KindDownload      Kind = "download"
	KindVoiceClone    Kind = "voice-clone"
	KindSourceIngest  Kind = "source-ingest"
	KindWorkflowEmbed Kind = "workflow-embed"
	KindExport        Kind = "export"
)

// Valid reports whether k is a known job kind.
func (k Kind) Valid() bool {
	switch k {
	case KindChannelFetch, KindVideoFetch, KindUserFetch, KindDownload,
		KindVoiceClone, KindSourceIngest, KindWorkflowEmbed, KindExport:
		return true
	}
	return false
}

// Status is the lifecycle state of a job.
type Status string

// Job statuses. Transitions are monotonic: pending -> processing ->
// {completed, failed}. A job never re-enters pending.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions is the exhaustive state machine for job statuses.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a job may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job is one tracked unit of asynchronous work.
type Job struct {
	ID          string          `json:"job_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Kind        Kind            `json:"kind"`
	Status      Status          `json:"status"`
	Progress    int             `json:"progress"`
	Params      json.RawMessage `json:"params,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job. Stores hand out clones so callers
// cannot mutate shared state.
func (j *Job) Clone() *Job {
	c := *j
	if j.Params != nil {
		c.Params = append(json.RawMessage(nil), j.Params...)
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ChannelFetchParams are the parameters for a channel-fetch job.
type ChannelFetchParams struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

// VideoFetchParams are the parameters for a video-fetch job.
type VideoFetchParams struct {
	Platform string `json:"platform"`
	VideoID  string `json:"video_id"`
}

// UserFetchParams are the parameters for a user-fetch job.
type UserFetchParams struct {
	Platform string `json:"platform"`
	Username string `json:"username"`
}

// DownloadParams are the parameters for a download job.
type DownloadParams struct {
	URL string `json:"url"`
}

// VoiceCloneParams are the parameters for a voice-clone job.
type VoiceCloneParams struct {
	VoiceName string `json:"voice_name"`
	SampleURL string `json:"sample_url"`
}

// SourceIngestParams are the parameters for fetching and extracting one
// workflow source.
type SourceIngestParams struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	SourceID   uuid.UUID `json:"source_id"`
	SourceType string    `json:"source_type"`
	Value      string    `json:"value"`
}

// WorkflowEmbedParams are the parameters for chunking and embedding one
// extracted workflow source.
type WorkflowEmbedParams struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	SourceID   uuid.UUID `json:"source_id"`
	Text       string    `json:"text"`
	ChunkSize  int       `json:"chunk_size"`
	Overlap    int       `json:"overlap"`
}

// ExportParams are the parameters for serializing a workflow's embeddings.
type ExportParams struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	Format     string    `json:"format"`
}

// ChannelResult is the completion payload for a channel-fetch job.
type ChannelResult struct {
	Platform    string `json:"platform"`
	Handle      string `json:"handle"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Subscribers int64  `json:"subscribers"`
	VideoCount  int    `json:"video_count"`
}

// VideoResult is the completion payload for a video-fetch job.
type VideoResult struct {
	Platform     string `json:"platform"`
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	DurationSecs int    `json:"duration_secs"`
	Views        int64  `json:"views"`
}

// UserProfileResult is the completion payload for a user-fetch job.
type UserProfileResult struct {
	Platform    string `json:"platform"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Followers   int64  `json:"followers"`
}

// DownloadResult is the completion payload for a download job.
type DownloadResult struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// VoiceCloneResult is the completion payload for a voice-clone job.
type VoiceCloneResult struct {
	VoiceID   string `json:"voice_id"`
	SampleURL string `json:"sample_url,omitempty"`
}

// SourceIngestResult is the completion payload for a source-ingest job.
type SourceIngestResult struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	SourceID   uuid.UUID `json:"source_id"`
	Text       string    `json:"text"`
	SizeBytes  int64     `json:"size_bytes"`
}

// ChunkPayload is one embedded chunk reported by the worker.
type ChunkPayload struct {
	EmbeddingID string    `json:"embedding_id"`
	Text        string    `json:"text"`
	Tokens      int       `json:"tokens"`
	Dimensions  int       `json:"dimensions"`
	Vector      []float32 `json:"vector,omitempty"`
}

// WorkflowEmbedResult is the completion payload for a workflow-embed job.
type WorkflowEmbedResult struct {
	WorkflowID uuid.UUID      `json:"workflow_id"`
	SourceID   uuid.UUID      `json:"source_id"`
	Chunks     []ChunkPayload `json:"chunks"`
}

// ExportResult is the completion payload for an export job.
type ExportResult struct {
	Format      string `json:"format"`
	Location    string `json:"location"`
	SizeBytes   int64  `json:"size_bytes"`
	RecordCount int    `json:"record_count"`
}

// DecodeResult decodes a raw completion payload into the typed result for the
// given kind.
func DecodeResult(kind Kind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty result payload for kind %s", kind)
	}

	var (
		out any
		err error
	)
	switch kind {
	case KindChannelFetch:
		v := &ChannelResult{}
		err = json.Unmarshal(raw, v)
		out = v
	case KindVideoFetch:
		v := &VideoResult{}
		err = json.Unmarshal(raw, v)
		out = v
	case KindUserFetch:
		v := &UserProfileResult{}
		err = json.Unmarshal(raw, v)
		out = v
	case KindDownload:
		v := &DownloadResult{}
		err = json.Unmarshal(raw, v)
		out = v
	case KindVoiceClone:
		v := &VoiceCloneResult{}
		err = json.Unmarshal(raw, v)
		out = v
	case KindSourceIngest:
		v := &SourceIngestResult{}
		err = json.Unmarshal(raw, v)
		out = v
	case KindWorkflowEmbed:
		v := &WorkflowEmbedResult{}
		err = json.Unmarshal(raw, v)
		out = v
	case KindExport:
		v := &ExportResult{}
		err = json.Unmarshal(raw, v)
		out = v
	default:
		return nil, fmt.Errorf("unknown job kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", kind, err)
	}
	return out, nil
}
