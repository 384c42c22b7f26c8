// Package events defines the job-state notification schema and the publish
// capability the core depends on. The realtime transport (websocket, home
// automation bus) lives outside the core and subscribes as a handler.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scan2target/scan2target/internal/domain"
)

// JobMetadata carries the capture details attached to a success event.
type JobMetadata struct {
	Pages     int    `json:"pages,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	Format    string `json:"format,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// JobEvent is a job-state-change notification. Publishing is best-effort;
// a lost event never affects job correctness.
type JobEvent struct {
	JobID     uuid.UUID        `json:"job_id"`
	Status    domain.JobStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Error     string           `json:"error,omitempty"`
	Metadata  *JobMetadata     `json:"metadata,omitempty"`
}

// NewJobEvent creates an event for the job's current status.
func NewJobEvent(job *domain.Job) JobEvent {
	event := JobEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Timestamp: time.Now().UTC(),
	}
	if job.Status == domain.JobStatusFailed {
		event.Error = job.Message
	}
	return event
}

// Handler processes published job events.
type Handler interface {
	HandleEvent(ctx context.Context, event JobEvent) error
}

// Publisher is the capability the core components depend on to announce
// job-state changes.
type Publisher interface {
	Publish(ctx context.Context, event JobEvent) error
}
