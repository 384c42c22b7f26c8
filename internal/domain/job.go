package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job-specific validation errors
var (
	// ErrJobIDEmpty is returned when a job ID is empty or nil.
	ErrJobIDEmpty = errors.New("job ID cannot be empty")

	// ErrJobKindInvalid is returned when a job kind is not a known value.
	ErrJobKindInvalid = errors.New("job kind must be capture or print")

	// ErrJobDeviceEmpty is returned when a job has no source device.
	ErrJobDeviceEmpty = errors.New("job device cannot be empty")

	// ErrInvalidTransition is returned when a status change does not follow
	// the job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

// Possible job status values.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// canTransition encodes the state machine:
//
//	queued → running → {completed, failed, cancelled}
//	queued → cancelled
//
// Terminal states never transition. A completed job may still have its
// message updated (capture succeeded, delivery did not) but that is a field
// mutation, not a status transition.
func (s JobStatus) canTransition(to JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return to == JobStatusRunning || to == JobStatusCancelled
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	}
	return false
}

// JobKind distinguishes capture jobs from print jobs.
type JobKind string

// Known job kinds.
const (
	JobKindCapture JobKind = "capture"
	JobKindPrint   JobKind = "print"
)

// Job is one capture-and-deliver (or print) work item tracked through the
// status state machine. All persisted mutation goes through the job service's
// single update entry point; components never write the store directly.
type Job struct {
	ID            uuid.UUID `json:"id"`
	Kind          JobKind   `json:"job_type"`
	DeviceID      string    `json:"device_id"`
	TargetID      string    `json:"target_id,omitempty"`
	Status        JobStatus `json:"status"`
	FilePath      string    `json:"file_path,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewJob creates a queued Job for the given kind, device and target.
// It generates the job ID and sets both timestamps.
// Returns an error if validation fails.
func NewJob(kind JobKind, deviceID, targetID string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Kind:      kind,
		DeviceID:  deviceID,
		TargetID:  targetID,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks that the job satisfies all domain invariants.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrJobIDEmpty
	}
	if j.Kind != JobKindCapture && j.Kind != JobKindPrint {
		return ErrJobKindInvalid
	}
	if j.DeviceID == "" {
		return ErrJobDeviceEmpty
	}
	return nil
}

// TransitionTo moves the job to the requested status, enforcing the state
// machine. Any disallowed transition (including cancelling a finished job)
// is rejected with ErrInvalidTransition, never silently ignored.
func (j *Job) TransitionTo(status JobStatus) error {
	if !j.Status.canTransition(status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, j.Status, status)
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return nil
}
