// Package worker implements the background scheduler that runs units of work
// for jobs without blocking the caller. It is a single-assignment scheduler:
// at most one unit of work exists per job id, tracked in a handle arena so
// in-flight work can be cancelled cooperatively.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/scan2target/scan2target/internal/domain"
)

// Worker errors.
var (
	// ErrDuplicateJob is returned when a unit of work is submitted for a job
	// id that already has a live handle. Duplicate submission is a caller
	// contract violation, rejected rather than silently replaced.
	ErrDuplicateJob = errors.New("unit of work already submitted for job")
)

// Status reports the worker's internal bookkeeping for a job. It is distinct
// from the persisted job status and is used for introspection only: finished
// handles are removed promptly, after which the answer is StatusNotFound and
// callers should consult the job store.
type Status string

// Possible bookkeeping states.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusNotFound  Status = "not_found"
)

// UnitOfWork is one job's worth of capture/delivery work. It must honor ctx
// cancellation at its suspension points; in-flight external processes are
// killed best-effort and their results discarded.
type UnitOfWork func(ctx context.Context) error

// JobTracker is the persistence capability the worker needs: read a job and
// write it back through the single update entry point (which also publishes
// the state-change event).
type JobTracker interface {
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateJob(ctx context.Context, job *domain.Job) error
}

type handle struct {
	cancel context.CancelFunc
	status Status
}

// Worker schedules units of work and guarantees every submitted unit
// resolves to a terminal persisted job status. No error from a unit of work
// ever escapes to the caller of Submit.
type Worker struct {
	tracker JobTracker
	logger  *slog.Logger

	// sem bounds how many units execute concurrently; the analogue of the
	// bounded pool that keeps blocking device calls off the request path.
	sem *semaphore.Weighted

	mu      sync.Mutex
	handles map[uuid.UUID]*handle
	wg      sync.WaitGroup
}

// New creates a Worker allowing up to maxConcurrent units in flight.
func New(tracker JobTracker, maxConcurrent int, logger *slog.Logger) *Worker {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Worker{
		tracker: tracker,
		logger:  logger.With("component", "worker"),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		handles: make(map[uuid.UUID]*handle),
	}
}

// Submit schedules the unit of work for asynchronous execution and returns
// immediately. The job is flipped to running once a concurrency slot is
// acquired. Submitting a second unit for a live job id returns
// ErrDuplicateJob.
func (w *Worker) Submit(jobID uuid.UUID, unit UnitOfWork) error {
	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	if _, exists := w.handles[jobID]; exists {
		w.mu.Unlock()
		cancel()
		return ErrDuplicateJob
	}
	w.handles[jobID] = &handle{cancel: cancel, status: StatusRunning}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.execute(ctx, jobID, unit)
	}()
	return nil
}

// Cancel requests cooperative cancellation of a pending or in-flight unit.
// It reports whether a cancellation was actually issued.
func (w *Worker) Cancel(jobID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.handles[jobID]
	if !ok || h.status != StatusRunning {
		return false
	}
	h.cancel()
	return true
}

// Status reports the bookkeeping state for a job id.
func (w *Worker) Status(jobID uuid.UUID) Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h, ok := w.handles[jobID]; ok {
		return h.status
	}
	return StatusNotFound
}

// Stop cancels all in-flight units and waits for them to settle.
func (w *Worker) Stop() {
	w.mu.Lock()
	for _, h := range w.handles {
		h.cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// execute runs one unit of work end to end. It is the single backstop of the
// error-propagation policy: success, failure and cancellation all resolve to
// a terminal persisted status, and panics or errors never escape.
func (w *Worker) execute(ctx context.Context, jobID uuid.UUID, unit UnitOfWork) {
	logger := w.logger.With("job_id", jobID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("unit of work panicked", "panic", r)
			w.finish(jobID, StatusFailed)
			w.resolve(jobID, domain.JobStatusFailed, fmt.Sprintf("internal error: %v", r))
		}
		w.remove(jobID)
	}()

	if err := w.sem.Acquire(ctx, 1); err != nil {
		// Cancelled while waiting for a slot; the unit never started.
		logger.Info("job cancelled before execution")
		w.finish(jobID, StatusFailed)
		w.resolve(jobID, domain.JobStatusCancelled, "")
		return
	}
	defer w.sem.Release(1)

	if err := w.transition(ctx, jobID, domain.JobStatusRunning, ""); err != nil {
		// Most likely cancelled between submit and slot acquisition.
		logger.Warn("job not runnable, dropping unit of work", "error", err)
		w.finish(jobID, StatusFailed)
		return
	}

	logger.Info("executing unit of work")
	err := unit(ctx)

	switch {
	case err == nil:
		logger.Info("unit of work completed")
		w.finish(jobID, StatusCompleted)
		w.resolve(jobID, domain.JobStatusCompleted, "")
	case errors.Is(err, context.Canceled):
		logger.Info("unit of work cancelled")
		w.finish(jobID, StatusFailed)
		w.resolve(jobID, domain.JobStatusCancelled, "")
	default:
		logger.Error("unit of work failed", "error", err)
		w.finish(jobID, StatusFailed)
		w.resolve(jobID, domain.JobStatusFailed, err.Error())
	}
}

// finish records the terminal bookkeeping state while the handle still exists.
func (w *Worker) finish(jobID uuid.UUID, status Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h, ok := w.handles[jobID]; ok {
		h.status = status
	}
}

// remove drops the handle; required to keep the arena bounded over the
// process lifetime.
func (w *Worker) remove(jobID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.handles, jobID)
}

// resolve persists a terminal status, tolerating jobs that already reached a
// terminal state through another path (e.g. cancelled by the service).
func (w *Worker) resolve(jobID uuid.UUID, status domain.JobStatus, message string) {
	// Persisting the outcome must not be cut short by the unit's cancelled
	// context, so use a fresh one.
	if err := w.transition(context.Background(), jobID, status, message); err != nil {
		w.logger.Error("failed to persist terminal job status",
			"job_id", jobID, "status", status, "error", err)
	}
}

func (w *Worker) transition(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, message string) error {
	job, err := w.tracker.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status == status {
		return nil
	}
	if err := job.TransitionTo(status); err != nil {
		return err
	}
	if message != "" {
		job.Message = message
	}
	if err := w.tracker.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}
