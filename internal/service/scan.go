package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/scan2target/scan2target/internal/capture"
	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/printing"
	"github.com/scan2target/scan2target/internal/worker"
)

// ErrJobFinished is returned when cancelling a job that already reached a
// terminal status.
var ErrJobFinished = errors.New("job already finished")

// ScanRequest carries the user-facing scan submission parameters.
type ScanRequest struct {
	DeviceID       string `json:"device_id"`
	TargetID       string `json:"target_id"`
	ProfileID      string `json:"profile_id,omitempty"`
	FilenamePrefix string `json:"filename_prefix,omitempty"`
}

// PrintRequest carries the user-facing print submission parameters.
type PrintRequest struct {
	DeviceID string `json:"device_id"`
	FilePath string `json:"file_path"`
	Copies   int    `json:"copies,omitempty"`
	Duplex   bool   `json:"duplex,omitempty"`
}

// ScanService accepts scan and print submissions, pairing a persisted job
// with a unit of work on the background worker.
type ScanService struct {
	jobs     *JobService
	worker   *worker.Worker
	pipeline *capture.Pipeline
	printer  printing.Printer
	logger   *slog.Logger
}

// NewScanService creates a ScanService.
func NewScanService(jobs *JobService, w *worker.Worker, pipeline *capture.Pipeline, printer printing.Printer, logger *slog.Logger) *ScanService {
	return &ScanService{
		jobs:     jobs,
		worker:   w,
		pipeline: pipeline,
		printer:  printer,
		logger:   logger.With("component", "scan_service"),
	}
}

// StartScan creates a capture job and schedules its pipeline run. The job
// id returns immediately; misconfigured targets surface later as a failed
// job, not a rejected submission.
func (s *ScanService) StartScan(ctx context.Context, req ScanRequest) (*domain.Job, error) {
	job, err := s.jobs.Create(ctx, domain.JobKindCapture, req.DeviceID, req.TargetID)
	if err != nil {
		return nil, err
	}

	captureReq := capture.Request{
		ProfileID:      req.ProfileID,
		FilenamePrefix: req.FilenamePrefix,
	}
	if err := s.worker.Submit(job.ID, func(ctx context.Context) error {
		// Reload so the pipeline works on the running-state record the
		// worker persisted, not the queued snapshot from submission.
		fresh, err := s.jobs.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}
		return s.pipeline.Run(ctx, fresh, captureReq)
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}
	return job, nil
}

// StartPrint creates a print job and schedules the queue submission.
func (s *ScanService) StartPrint(ctx context.Context, req PrintRequest) (*domain.Job, error) {
	if req.FilePath == "" {
		return nil, errors.New("print request is missing file_path")
	}
	job, err := s.jobs.Create(ctx, domain.JobKindPrint, req.DeviceID, "")
	if err != nil {
		return nil, err
	}

	opts := printing.Options{Copies: req.Copies, Duplex: req.Duplex}
	if err := s.worker.Submit(job.ID, func(ctx context.Context) error {
		return s.printer.Print(ctx, req.DeviceID, req.FilePath, opts)
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}
	return job, nil
}

// Cancel requests cancellation of a job. In-flight work is cancelled
// cooperatively through the worker; a job the worker no longer tracks (or
// never started) is flipped to cancelled directly. Terminal jobs are
// rejected with ErrJobFinished.
func (s *ScanService) Cancel(ctx context.Context, id uuid.UUID) error {
	if s.worker.Cancel(id) {
		return nil
	}

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, id, job.Status)
	}
	if err := job.TransitionTo(domain.JobStatusCancelled); err != nil {
		return err
	}
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}
	s.logger.Info("job cancelled outside the worker", "job_id", id)
	return nil
}
