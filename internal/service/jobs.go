// Package service composes the core subsystems behind the API surface: job
// lifecycle, scan/print submission and cancellation.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/events"
	"github.com/scan2target/scan2target/internal/store"
)

// JobService is the single write path for job records: every mutation goes
// through it so persistence and the state-change event stay paired.
type JobService struct {
	jobs      store.JobStore
	publisher events.Publisher
	logger    *slog.Logger

	// metadata holds capture details recorded mid-pipeline until the job's
	// terminal event publishes them.
	mu       sync.Mutex
	metadata map[uuid.UUID]*events.JobMetadata
}

// NewJobService creates a JobService.
func NewJobService(jobs store.JobStore, publisher events.Publisher, logger *slog.Logger) *JobService {
	return &JobService{
		jobs:      jobs,
		publisher: publisher,
		logger:    logger.With("component", "job_service"),
		metadata:  make(map[uuid.UUID]*events.JobMetadata),
	}
}

// Create validates and persists a new queued job and announces it.
func (s *JobService) Create(ctx context.Context, kind domain.JobKind, deviceID, targetID string) (*domain.Job, error) {
	job, err := domain.NewJob(kind, deviceID, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	s.publish(ctx, job)
	s.logger.Info("job created", "job_id", job.ID, "kind", job.Kind, "device", job.DeviceID)
	return job, nil
}

// GetJob retrieves a job by id.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

// ListJobs returns jobs newest first.
func (s *JobService) ListJobs(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	return s.jobs.ListJobs(ctx, filter)
}

// DeleteJob removes a job record.
func (s *JobService) DeleteJob(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	delete(s.metadata, id)
	s.mu.Unlock()
	return s.jobs.DeleteJob(ctx, id)
}

// RecordJobMetadata stashes capture details for a running job so the
// completed event carries them. The entry is dropped once the job reaches
// any terminal status, which keeps the map bounded.
func (s *JobService) RecordJobMetadata(id uuid.UUID, meta *events.JobMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[id] = meta
}

// UpdateJob persists the job's mutable fields and publishes the change.
// Event delivery is best-effort and never fails the update.
func (s *JobService) UpdateJob(ctx context.Context, job *domain.Job) error {
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}
	s.publish(ctx, job)
	return nil
}

func (s *JobService) publish(ctx context.Context, job *domain.Job) {
	if s.publisher == nil {
		return
	}
	event := events.NewJobEvent(job)
	if job.Status.Terminal() {
		s.mu.Lock()
		meta := s.metadata[job.ID]
		delete(s.metadata, job.ID)
		s.mu.Unlock()
		if job.Status == domain.JobStatusCompleted {
			event.Metadata = meta
		}
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish job event", "job_id", job.ID, "error", err)
	}
}
