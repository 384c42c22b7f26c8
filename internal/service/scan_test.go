package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/scan2target/scan2target/internal/capture"
	"github.com/scan2target/scan2target/internal/deliver"
	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/events"
	"github.com/scan2target/scan2target/internal/printing"
	"github.com/scan2target/scan2target/internal/store"
	"github.com/scan2target/scan2target/internal/worker"
)

// memJobStore is an in-memory store.JobStore.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (m *memJobStore) CreateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memJobStore) GetJob(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memJobStore) UpdateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return store.ErrJobNotFound
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memJobStore) ListJobs(_ context.Context, _ store.JobFilter) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Job
	for _, job := range m.jobs {
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memJobStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *memJobStore) PurgeFinished(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// scriptedDevice produces a fixed number of pages per capture.
type scriptedDevice struct {
	pages int
}

func (d *scriptedDevice) CapturePage(_ context.Context, _ string, _ domain.CaptureProfile, destDir string, page int) (string, error) {
	if page > d.pages {
		return "", &capture.FeederEmptyError{Reason: "out of documents"}
	}
	path := filepath.Join(destDir, fmt.Sprintf("page-%03d.png", page))
	return path, os.WriteFile(path, []byte("raster"), 0o644)
}

func (d *scriptedDevice) CaptureBatch(context.Context, string, domain.CaptureProfile, string) ([]string, error) {
	return nil, capture.ErrBatchUnsupported
}

func (d *scriptedDevice) ListReachable(context.Context) ([]string, error) { return nil, nil }

type stubConverter struct{}

func (stubConverter) Combine(_ context.Context, _ []string, _ string, dest string) error {
	return os.WriteFile(dest, []byte("artifact"), 0o644)
}

func (stubConverter) Thumbnail(_ context.Context, _ string, dest string) error {
	return os.WriteFile(dest, []byte("thumb"), 0o644)
}

type stubDeliverer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (d *stubDeliverer) Deliver(context.Context, string, string, deliver.Metadata) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.err
}

type stubPrinter struct {
	mu     sync.Mutex
	queues []string
	err    error
}

func (p *stubPrinter) Print(_ context.Context, queue string, _ string, _ printing.Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues = append(p.queues, queue)
	return p.err
}

type recordingHandler struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (h *recordingHandler) HandleEvent(_ context.Context, event events.JobEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) statuses() []domain.JobStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.JobStatus
	for _, e := range h.events {
		out = append(out, e.Status)
	}
	return out
}

type harness struct {
	scan      *ScanService
	jobs      *JobService
	store     *memJobStore
	deliverer *stubDeliverer
	printer   *stubPrinter
	handler   *recordingHandler
	worker    *worker.Worker
}

func newHarness(t *testing.T, deliverer *stubDeliverer) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jobStore := newMemJobStore()
	publisher := events.NewInMemoryPublisher(logger)
	handler := &recordingHandler{}
	publisher.RegisterHandler(handler)

	jobs := NewJobService(jobStore, publisher, logger)
	w := worker.New(jobs, 2, logger)
	t.Cleanup(w.Stop)

	pipeline := capture.NewPipeline(
		&scriptedDevice{pages: 1},
		stubConverter{},
		capture.NewStaticProfiles(),
		jobs,
		deliverer,
		t.TempDir(),
		100,
		logger,
	)
	printer := &stubPrinter{}
	scan := NewScanService(jobs, w, pipeline, printer, logger)

	return &harness{
		scan:      scan,
		jobs:      jobs,
		store:     jobStore,
		deliverer: deliverer,
		printer:   printer,
		handler:   handler,
		worker:    w,
	}
}

func waitTerminal(t *testing.T, h *harness, id uuid.UUID) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		j, err := h.jobs.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestScanCompletesAndDelivers(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{})
	job, err := h.scan.StartScan(context.Background(), ScanRequest{
		DeviceID: "airscan:e0:Office",
		TargetID: "tgt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)

	final := waitTerminal(t, h, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Empty(t, final.FilePath, "a delivered artifact leaves no local path")
	assert.Empty(t, final.Message)
	assert.Equal(t, 1, h.deliverer.calls)

	statuses := h.handler.statuses()
	assert.Contains(t, statuses, domain.JobStatusQueued)
	assert.Contains(t, statuses, domain.JobStatusRunning)
	assert.Contains(t, statuses, domain.JobStatusCompleted)
}

func TestCompletedEventCarriesCaptureMetadata(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{})
	job, err := h.scan.StartScan(context.Background(), ScanRequest{
		DeviceID: "airscan:e0:Office",
		TargetID: "tgt-1",
	})
	require.NoError(t, err)
	waitTerminal(t, h, job.ID)

	var completed events.JobEvent
	require.Eventually(t, func() bool {
		h.handler.mu.Lock()
		defer h.handler.mu.Unlock()
		for _, e := range h.handler.events {
			if e.Status == domain.JobStatusCompleted {
				completed = e
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NotNil(t, completed.Metadata, "subscribers pair the terminal status with the capture details")
	assert.Equal(t, 1, completed.Metadata.Pages)
	assert.Equal(t, "pdf", completed.Metadata.Format)
	assert.Equal(t, domain.DefaultProfile().ID, completed.Metadata.Profile)
	assert.NotZero(t, completed.Metadata.FileSize)
	assert.NotEmpty(t, completed.Metadata.Thumbnail)

	h.handler.mu.Lock()
	defer h.handler.mu.Unlock()
	for _, e := range h.handler.events {
		if e.Status != domain.JobStatusCompleted {
			assert.Nil(t, e.Metadata, "only the terminal event carries metadata")
		}
	}
}

func TestScanCompletesWithMessageWhenDeliveryExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{
		err: errors.New(`delivery to target "nas" failed after 3 attempts: connection refused`),
	})
	job, err := h.scan.StartScan(context.Background(), ScanRequest{
		DeviceID: "airscan:e0:Office",
		TargetID: "tgt-1",
	})
	require.NoError(t, err)

	final := waitTerminal(t, h, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, final.Status,
		"capture succeeded, so delivery exhaustion never fails the job")
	assert.Contains(t, final.Message, "failed after 3 attempts")
	assert.NotEmpty(t, final.FilePath, "the artifact is retained for manual download")
	_, statErr := os.Stat(final.FilePath)
	assert.NoError(t, statErr)
}

func TestScanFailsOnConfigurationError(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{
		err: fmt.Errorf("%w: %q", deliver.ErrTargetDisabled, "nas"),
	})
	job, err := h.scan.StartScan(context.Background(), ScanRequest{
		DeviceID: "airscan:e0:Office",
		TargetID: "tgt-1",
	})
	require.NoError(t, err)

	final := waitTerminal(t, h, job.ID)
	assert.Equal(t, domain.JobStatusFailed, final.Status)
	assert.Contains(t, final.Message, "disabled")
}

func TestCancelQueuedJobWithoutWorkerHandle(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{})

	// A job that exists in the store but was never scheduled, as after a
	// process restart.
	job, err := h.jobs.Create(context.Background(), domain.JobKindCapture, "dev", "tgt")
	require.NoError(t, err)

	require.NoError(t, h.scan.Cancel(context.Background(), job.ID))
	got, err := h.jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
}

func TestCancelTerminalJobRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{})
	job, err := h.scan.StartScan(context.Background(), ScanRequest{
		DeviceID: "airscan:e0:Office",
		TargetID: "tgt-1",
	})
	require.NoError(t, err)
	waitTerminal(t, h, job.ID)

	// The handle may linger briefly after the terminal status lands.
	require.Eventually(t, func() bool {
		err := h.scan.Cancel(context.Background(), job.ID)
		return errors.Is(err, ErrJobFinished)
	}, time.Second, 5*time.Millisecond)
}

func TestCancelUnknownJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{})
	err := h.scan.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStartPrint(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{})
	job, err := h.scan.StartPrint(context.Background(), PrintRequest{
		DeviceID: "office-laser",
		FilePath: "/var/lib/scan2target/scans/doc.pdf",
		Copies:   2,
	})
	require.NoError(t, err)

	final := waitTerminal(t, h, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Equal(t, domain.JobKindPrint, final.Kind)

	h.printer.mu.Lock()
	defer h.printer.mu.Unlock()
	assert.Equal(t, []string{"office-laser"}, h.printer.queues)
}

func TestStartPrintRequiresFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, &stubDeliverer{})
	_, err := h.scan.StartPrint(context.Background(), PrintRequest{DeviceID: "office-laser"})
	assert.Error(t, err)
}
