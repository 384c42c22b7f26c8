package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan2target/scan2target/internal/deliver"
	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/events"
)

// fakeDevice simulates a feeder holding a fixed number of pages.
type fakeDevice struct {
	feederPages  int
	batchErr     error
	pageErr      error
	captured     int
	emptySuccess bool // emit a zero-byte file instead of a feeder-empty error
}

func (d *fakeDevice) CapturePage(_ context.Context, _ string, _ domain.CaptureProfile, destDir string, page int) (string, error) {
	if d.pageErr != nil {
		return "", d.pageErr
	}
	path := filepath.Join(destDir, fmt.Sprintf("page-%03d.png", page))
	if page > d.feederPages {
		if d.emptySuccess {
			if err := os.WriteFile(path, nil, 0o644); err != nil {
				return "", err
			}
			return path, nil
		}
		return "", &FeederEmptyError{Reason: "Document feeder out of documents"}
	}
	d.captured++
	if err := os.WriteFile(path, []byte("raster"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (d *fakeDevice) CaptureBatch(_ context.Context, _ string, _ domain.CaptureProfile, destDir string) ([]string, error) {
	if d.batchErr != nil {
		return nil, d.batchErr
	}
	var pages []string
	for i := 1; i <= d.feederPages; i++ {
		path := filepath.Join(destDir, fmt.Sprintf("page-%03d.png", i))
		if err := os.WriteFile(path, []byte("raster"), 0o644); err != nil {
			return nil, err
		}
		pages = append(pages, path)
	}
	d.captured = d.feederPages
	return pages, nil
}

func (d *fakeDevice) ListReachable(context.Context) ([]string, error) { return nil, nil }

type fakeConverter struct {
	combineErr   error
	thumbnailErr error
	combined     [][]string
}

func (c *fakeConverter) Combine(_ context.Context, pages []string, _ string, dest string) error {
	if c.combineErr != nil {
		return c.combineErr
	}
	c.combined = append(c.combined, pages)
	return os.WriteFile(dest, []byte("artifact"), 0o644)
}

func (c *fakeConverter) Thumbnail(_ context.Context, _ string, dest string) error {
	if c.thumbnailErr != nil {
		return c.thumbnailErr
	}
	return os.WriteFile(dest, []byte("thumb"), 0o644)
}

type fakeDeliverer struct {
	err     error
	calls   int
	lastTgt string
	lastMD  deliver.Metadata
}

func (d *fakeDeliverer) Deliver(_ context.Context, targetID string, _ string, meta deliver.Metadata) error {
	d.calls++
	d.lastTgt = targetID
	d.lastMD = meta
	return d.err
}

type fakeUpdater struct {
	updates int
	meta    *events.JobMetadata
}

func (u *fakeUpdater) UpdateJob(_ context.Context, _ *domain.Job) error {
	u.updates++
	return nil
}

func (u *fakeUpdater) RecordJobMetadata(_ uuid.UUID, meta *events.JobMetadata) {
	u.meta = meta
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feederProfile(batch bool) domain.CaptureProfile {
	p := domain.DefaultProfile()
	p.ID = "feeder_pdf"
	p.Source = domain.SourceFeeder
	p.BatchScan = batch
	return p
}

func newTestPipeline(t *testing.T, dev Device, conv Converter, del Deliverer, profiles ...domain.CaptureProfile) (*Pipeline, *fakeUpdater, string) {
	t.Helper()
	workDir := t.TempDir()
	updater := &fakeUpdater{}
	p := NewPipeline(dev, conv, NewStaticProfiles(profiles...), updater, del, workDir, 100, discardLogger())
	return p, updater, workDir
}

func newCaptureJob(t *testing.T) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(domain.JobKindCapture, "airscan:e0:Brother", "tgt-1")
	require.NoError(t, err)
	return job
}

func TestPipelineManualLoopStopsOnFeederEmpty(t *testing.T) {
	dev := &fakeDevice{feederPages: 4, batchErr: ErrBatchUnsupported}
	conv := &fakeConverter{}
	del := &fakeDeliverer{}
	p, _, _ := newTestPipeline(t, dev, conv, del, feederProfile(true))

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{ProfileID: "feeder_pdf"}))

	assert.Equal(t, 4, dev.captured, "exactly the pages on the feeder are captured")
	require.Len(t, conv.combined, 1)
	assert.Len(t, conv.combined[0], 4)
	assert.Equal(t, 1, del.calls)
}

func TestPipelineNonBatchFeederCapturesOnePage(t *testing.T) {
	dev := &fakeDevice{feederPages: 4}
	conv := &fakeConverter{}
	del := &fakeDeliverer{}
	p, _, _ := newTestPipeline(t, dev, conv, del, feederProfile(false))

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{ProfileID: "feeder_pdf"}))

	assert.Equal(t, 1, dev.captured, "without batch mode one page is captured even if the feeder holds more")
	require.Len(t, conv.combined, 1)
	assert.Len(t, conv.combined[0], 1)
	assert.Equal(t, 1, del.calls)
}

func TestPipelineEmptySuccessPageEndsBatch(t *testing.T) {
	dev := &fakeDevice{feederPages: 2, emptySuccess: true, batchErr: ErrBatchUnsupported}
	conv := &fakeConverter{}
	del := &fakeDeliverer{}
	p, _, _ := newTestPipeline(t, dev, conv, del, feederProfile(true))

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{ProfileID: "feeder_pdf"}))
	require.Len(t, conv.combined, 1)
	assert.Len(t, conv.combined[0], 2, "the zero-byte trailing page is discarded")
}

func TestPipelineEmptyFeederOnFirstPageFails(t *testing.T) {
	dev := &fakeDevice{feederPages: 0}
	p, _, _ := newTestPipeline(t, dev, &fakeConverter{}, &fakeDeliverer{}, feederProfile(false))

	job := newCaptureJob(t)
	err := p.Run(context.Background(), job, Request{ProfileID: "feeder_pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pages captured")
}

func TestPipelineNativeBatch(t *testing.T) {
	dev := &fakeDevice{feederPages: 3}
	conv := &fakeConverter{}
	del := &fakeDeliverer{}
	p, updater, _ := newTestPipeline(t, dev, conv, del, feederProfile(true))

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{ProfileID: "feeder_pdf"}))
	require.Len(t, conv.combined, 1)
	assert.Len(t, conv.combined[0], 3)
	assert.Equal(t, "3", del.lastMD["pages"])
	assert.Equal(t, job.ID.String(), del.lastMD["job_id"])

	require.NotNil(t, updater.meta, "capture details are recorded for the terminal event")
	assert.Equal(t, 3, updater.meta.Pages)
	assert.Equal(t, "pdf", updater.meta.Format)
	assert.NotZero(t, updater.meta.FileSize)
}

func TestPipelineBatchUnsupportedFallsBackToLoop(t *testing.T) {
	dev := &fakeDevice{feederPages: 2, batchErr: ErrBatchUnsupported}
	conv := &fakeConverter{}
	p, _, _ := newTestPipeline(t, dev, conv, &fakeDeliverer{}, feederProfile(true))

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{ProfileID: "feeder_pdf"}))
	require.Len(t, conv.combined, 1)
	assert.Len(t, conv.combined[0], 2)
}

func TestPipelinePageCeiling(t *testing.T) {
	dev := &fakeDevice{feederPages: 1000, batchErr: ErrBatchUnsupported}
	conv := &fakeConverter{}
	p, _, _ := newTestPipeline(t, dev, conv, &fakeDeliverer{}, feederProfile(true))

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{ProfileID: "feeder_pdf"}))
	assert.Equal(t, 100, dev.captured, "the page loop must stop at the ceiling")
}

func TestPipelineUnknownProfileFallsBackToDefault(t *testing.T) {
	dev := &fakeDevice{feederPages: 1}
	conv := &fakeConverter{}
	del := &fakeDeliverer{}
	p, _, _ := newTestPipeline(t, dev, conv, del)

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{ProfileID: "does-not-exist"}))
	assert.Equal(t, domain.DefaultProfile().ID, del.lastMD["profile"])
}

func TestPipelineThumbnailFailureIsNotFatal(t *testing.T) {
	dev := &fakeDevice{feederPages: 1}
	conv := &fakeConverter{thumbnailErr: errors.New("imagemagick missing")}
	p, _, _ := newTestPipeline(t, dev, conv, &fakeDeliverer{})

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{}))
	assert.Empty(t, job.ThumbnailPath)
}

func TestPipelineConversionFailureDegradesToRawPage(t *testing.T) {
	dev := &fakeDevice{feederPages: 1}
	conv := &fakeConverter{combineErr: errors.New("img2pdf crashed")}
	del := &fakeDeliverer{err: errors.New("unreachable")}
	p, _, _ := newTestPipeline(t, dev, conv, del)

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{}))

	// The delivery failed so the degraded artifact must survive on disk.
	require.NotEmpty(t, job.FilePath)
	assert.Equal(t, ".png", filepath.Ext(job.FilePath))
	_, err := os.Stat(job.FilePath)
	assert.NoError(t, err)
}

func TestPipelineDeliverySuccessRemovesArtifact(t *testing.T) {
	dev := &fakeDevice{feederPages: 1}
	conv := &fakeConverter{}
	del := &fakeDeliverer{}
	p, _, _ := newTestPipeline(t, dev, conv, del)

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{}))

	assert.Empty(t, job.FilePath, "delivered artifacts leave no local path behind")
	assert.Equal(t, "tgt-1", del.lastTgt)
}

func TestPipelineDeliveryExhaustionRetainsArtifact(t *testing.T) {
	dev := &fakeDevice{feederPages: 1}
	conv := &fakeConverter{}
	del := &fakeDeliverer{err: errors.New(`delivery to target "nas" failed after 3 attempts: connection refused`)}
	p, _, _ := newTestPipeline(t, dev, conv, del)

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{}), "an undelivered capture still completes")

	require.NotEmpty(t, job.FilePath)
	_, err := os.Stat(job.FilePath)
	assert.NoError(t, err, "the artifact stays on disk for manual download")
	assert.Contains(t, job.Message, "failed after 3 attempts")
}

func TestPipelineConfigurationErrorFailsJob(t *testing.T) {
	dev := &fakeDevice{feederPages: 1}
	del := &fakeDeliverer{err: fmt.Errorf("%w: %q", deliver.ErrTargetDisabled, "nas")}
	p, _, _ := newTestPipeline(t, dev, &fakeConverter{}, del)

	job := newCaptureJob(t)
	err := p.Run(context.Background(), job, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, deliver.ErrConfiguration)
}

func TestPipelineSinglePageFormatWarning(t *testing.T) {
	profile := feederProfile(true)
	profile.ID = "feeder_jpg"
	profile.Format = "jpg"

	dev := &fakeDevice{feederPages: 3, batchErr: ErrBatchUnsupported}
	conv := &fakeConverter{}
	p, _, _ := newTestPipeline(t, dev, conv, &fakeDeliverer{}, profile)

	job := newCaptureJob(t)
	require.NoError(t, p.Run(context.Background(), job, Request{ProfileID: "feeder_jpg"}))
	assert.Contains(t, job.Message, "keeps only the first page")
}
