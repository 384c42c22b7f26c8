package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/scan2target/scan2target/internal/deliver"
	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/events"
)

// Deliverer is the capability the pipeline consumes from the delivery
// layer.
type Deliverer interface {
	Deliver(ctx context.Context, targetID string, filePath string, meta deliver.Metadata) error
}

// JobUpdater persists job field changes made mid-pipeline (thumbnail,
// artifact path, message) and holds the capture metadata so the job's
// terminal event carries it. Status transitions stay with the worker.
type JobUpdater interface {
	UpdateJob(ctx context.Context, job *domain.Job) error
	RecordJobMetadata(id uuid.UUID, meta *events.JobMetadata)
}

// Request carries the per-invocation capture options.
type Request struct {
	ProfileID      string
	FilenamePrefix string
}

// Pipeline runs the capture sequence for one job: profile resolution, the
// page loop, thumbnail, format conversion and the delivery handoff.
type Pipeline struct {
	device    Device
	converter Converter
	profiles  ProfileSource
	jobs      JobUpdater
	deliverer Deliverer
	workDir   string
	maxPages  int
	logger    *slog.Logger
}

// NewPipeline wires a Pipeline. maxPages caps the manual page loop
// (default 100).
func NewPipeline(
	device Device,
	converter Converter,
	profiles ProfileSource,
	jobs JobUpdater,
	deliverer Deliverer,
	workDir string,
	maxPages int,
	logger *slog.Logger,
) *Pipeline {
	if maxPages <= 0 {
		maxPages = 100
	}
	return &Pipeline{
		device:    device,
		converter: converter,
		profiles:  profiles,
		jobs:      jobs,
		deliverer: deliverer,
		workDir:   workDir,
		maxPages:  maxPages,
		logger:    logger.With("component", "capture"),
	}
}

// Run executes the capture sequence for job. A nil return means the job
// completed, possibly with a degraded artifact or an undelivered one whose
// explanation is recorded in job.Message. A non-nil return fails the job.
func (p *Pipeline) Run(ctx context.Context, job *domain.Job, req Request) error {
	logger := p.logger.With("job_id", job.ID)

	profile := p.resolveProfile(ctx, req.ProfileID, logger)

	destDir := filepath.Join(p.workDir, job.ID.String())
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	pages, err := p.capturePages(ctx, job.DeviceID, profile, destDir, logger)
	if err != nil {
		return err
	}
	logger.Info("capture finished", "pages", len(pages), "profile", profile.ID)

	// Thumbnail before conversion so the UI has a preview even if
	// conversion later fails.
	thumbPath := filepath.Join(destDir, "thumbnail.jpg")
	if err := p.converter.Thumbnail(ctx, pages[0], thumbPath); err != nil {
		logger.Warn("thumbnail generation failed", "error", err)
	} else {
		job.ThumbnailPath = thumbPath
		if err := p.jobs.UpdateJob(ctx, job); err != nil {
			logger.Warn("failed to record thumbnail path", "error", err)
		}
	}

	artifact, convErr := p.convert(ctx, job, pages, profile, req.FilenamePrefix, destDir, logger)
	if convErr != nil {
		return convErr
	}

	job.FilePath = artifact
	if err := p.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to record artifact path: %w", err)
	}

	p.recordMetadata(job, pages, profile, artifact)

	return p.deliver(ctx, job, artifact, pages, profile, logger)
}

// resolveProfile falls back to the baseline profile on an unknown or empty
// id so a stale client reference cannot fail a job.
func (p *Pipeline) resolveProfile(ctx context.Context, id string, logger *slog.Logger) domain.CaptureProfile {
	if id == "" {
		return domain.DefaultProfile()
	}
	profile, err := p.profiles.GetProfile(ctx, id)
	if err != nil {
		logger.Warn("unknown capture profile, using default", "profile", id, "error", err)
		return domain.DefaultProfile()
	}
	return profile
}

func (p *Pipeline) capturePages(ctx context.Context, deviceURI string, profile domain.CaptureProfile, destDir string, logger *slog.Logger) ([]string, error) {
	if profile.Source == domain.SourceFeeder && profile.BatchScan {
		pages, err := p.device.CaptureBatch(ctx, deviceURI, profile, destDir)
		switch {
		case err == nil:
			if len(pages) == 0 {
				return nil, errors.New("document feeder is empty: no pages captured")
			}
			return pages, nil
		case errors.Is(err, ErrBatchUnsupported):
			logger.Info("native batch unsupported, falling back to page loop")
		default:
			return nil, err
		}
	}

	if profile.Source != domain.SourceFeeder {
		page, err := p.device.CapturePage(ctx, deviceURI, profile, destDir, 1)
		if err != nil {
			return nil, err
		}
		return []string{page}, nil
	}

	var pages []string
	for page := 1; page <= p.maxPages; page++ {
		path, err := p.device.CapturePage(ctx, deviceURI, profile, destDir, page)
		if err != nil {
			if IsFeederEmpty(err) {
				if len(pages) == 0 {
					return nil, errors.New("document feeder is empty: no pages captured")
				}
				// Normal end of batch.
				return pages, nil
			}
			return nil, err
		}

		// Some backends report success for a drained feeder and emit an
		// empty file instead of an error.
		if info, statErr := os.Stat(path); statErr == nil && info.Size() == 0 {
			_ = os.Remove(path)
			if len(pages) == 0 {
				return nil, errors.New("document feeder is empty: no pages captured")
			}
			return pages, nil
		}

		pages = append(pages, path)
		if !profile.BatchScan {
			// Single capture requested; the feeder may hold more pages
			// but only batch mode loops for them.
			return pages, nil
		}
	}
	logger.Warn("page ceiling reached, stopping batch", "pages", len(pages))
	return pages, nil
}

// convert assembles the raw pages into the profile's output format. A
// conversion failure degrades to the raw first page rather than discarding
// an otherwise successful capture.
func (p *Pipeline) convert(ctx context.Context, job *domain.Job, pages []string, profile domain.CaptureProfile, prefix string, destDir string, logger *slog.Logger) (string, error) {
	if prefix == "" {
		prefix = "scan"
	}
	name := fmt.Sprintf("%s-%s.%s", prefix, time.Now().UTC().Format("20060102-150405"), profile.Format)
	artifact := filepath.Join(destDir, name)

	if len(pages) > 1 && !domain.MultiPageFormat(profile.Format) {
		msg := fmt.Sprintf("captured %d pages but format %q keeps only the first page", len(pages), profile.Format)
		logger.Warn("profile format mismatch", "pages", len(pages), "format", profile.Format)
		job.Message = msg
		if err := p.jobs.UpdateJob(ctx, job); err != nil {
			logger.Warn("failed to record format warning", "error", err)
		}
	}

	if err := p.converter.Combine(ctx, pages, profile.Format, artifact); err != nil {
		logger.Warn("conversion failed, keeping raw first page", "error", err)
		raw := filepath.Join(destDir, prefix+"-raw"+filepath.Ext(pages[0]))
		if copyErr := copyFile(pages[0], raw); copyErr != nil {
			return "", fmt.Errorf("conversion failed and raw page could not be kept: %w", copyErr)
		}
		job.Message = fmt.Sprintf("conversion to %s failed, delivering raw page: %v", profile.Format, err)
		return raw, nil
	}

	for _, page := range pages {
		_ = os.Remove(page)
	}
	return artifact, nil
}

// deliver hands the artifact off, distinguishing configuration errors
// (which fail the job) from transient exhaustion (job completes with the
// artifact retained on disk and the reason recorded).
func (p *Pipeline) deliver(ctx context.Context, job *domain.Job, artifact string, pages []string, profile domain.CaptureProfile, logger *slog.Logger) error {
	meta := deliver.Metadata{
		"job_id":  job.ID.String(),
		"pages":   strconv.Itoa(len(pages)),
		"format":  profile.Format,
		"profile": profile.ID,
	}

	err := p.deliverer.Deliver(ctx, job.TargetID, artifact, meta)
	if err == nil {
		// The artifact has a home now; the local copy is garbage.
		_ = os.Remove(artifact)
		job.FilePath = ""
		if updErr := p.jobs.UpdateJob(ctx, job); updErr != nil {
			logger.Warn("failed to clear delivered artifact path", "error", updErr)
		}
		return nil
	}

	if errors.Is(err, deliver.ErrConfiguration) {
		return err
	}

	// Transient failure after retries: keep the artifact for manual
	// download and let the job complete.
	logger.Warn("delivery failed, retaining artifact", "error", err)
	job.Message = err.Error()
	if updErr := p.jobs.UpdateJob(ctx, job); updErr != nil {
		logger.Warn("failed to record delivery failure", "error", updErr)
	}
	return nil
}

// recordMetadata stashes the capture details with the job service. The file
// size must be read here, before delivery removes the artifact.
func (p *Pipeline) recordMetadata(job *domain.Job, pages []string, profile domain.CaptureProfile, artifact string) {
	meta := &events.JobMetadata{
		Pages:     len(pages),
		Format:    profile.Format,
		Profile:   profile.ID,
		Thumbnail: job.ThumbnailPath,
	}
	if info, err := os.Stat(artifact); err == nil {
		meta.FileSize = info.Size()
	}
	p.jobs.RecordJobMetadata(job.ID, meta)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
