package model

import "time"

// JobParams is the snapshot of inputs a job was created with.
type JobParams struct {
	StyleID  string `json:"styleId"`
	Audience string `json:"audience"`
	Script   string `json:"script"`
}

// Job represents one rendering attempt
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Provider    Provider   `json:"provider"`
	Prompt      string     `json:"prompt,omitempty"`
	Artifact    string     `json:"artifact,omitempty"`
	URL         string     `json:"url,omitempty"`
	MirrorURL   string     `json:"mirrorUrl,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Used        JobParams  `json:"used"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RenderTaskPayload is the queued unit of work for a render job.
type RenderTaskPayload struct {
	JobID    string   `json:"jobId"`
	Provider Provider `json:"provider"`
}
