// Package cleanup reclaims disk and database space: retained artifacts past
// the retention window or count cap are deleted, and finished job records
// past the window are purged.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/scan2target/scan2target/internal/store"
)

// ValidateSchedule rejects malformed cron expressions up front so a bad
// schedule fails at startup instead of silently never firing. Macros like
// @hourly are handled by ParseStandard alongside plain 5-field specs.
func ValidateSchedule(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return fmt.Errorf("empty cron expression")
	}
	if _, err := cron.ParseStandard(e); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Policy bounds what the sweeper keeps.
type Policy struct {
	// MaxAge is how long finished jobs and their artifacts are retained.
	MaxAge time.Duration

	// MaxArtifacts caps the number of retained artifact directories; the
	// oldest beyond the cap are removed regardless of age.
	MaxArtifacts int
}

// Sweeper deletes expired artifact directories and purges finished job
// records.
type Sweeper struct {
	jobs    store.JobStore
	workDir string
	policy  Policy
	logger  *slog.Logger
}

// NewSweeper creates a Sweeper over the capture work directory.
func NewSweeper(jobs store.JobStore, workDir string, policy Policy, logger *slog.Logger) *Sweeper {
	if policy.MaxAge <= 0 {
		policy.MaxAge = 168 * time.Hour
	}
	if policy.MaxArtifacts <= 0 {
		policy.MaxArtifacts = 50
	}
	return &Sweeper{
		jobs:    jobs,
		workDir: workDir,
		policy:  policy,
		logger:  logger.With("component", "cleanup"),
	}
}

type artifactDir struct {
	path    string
	jobID   uuid.UUID
	modTime time.Time
}

// Sweep performs one cleanup pass. Partial failure is tolerated: every
// candidate is attempted and the errors are joined.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.policy.MaxAge)

	var errs []error

	purged, err := s.jobs.PurgeFinished(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("purging finished jobs: %w", err))
	} else if purged > 0 {
		s.logger.Info("purged finished jobs", "count", purged)
	}

	dirs, err := s.artifactDirs()
	if err != nil {
		errs = append(errs, err)
		return errors.Join(errs...)
	}

	// Oldest first, so the count cap removes the least recent extras.
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].modTime.Before(dirs[j].modTime) })

	removed := 0
	for i, dir := range dirs {
		overCap := len(dirs)-i > s.policy.MaxArtifacts
		if !overCap && !dir.modTime.Before(cutoff) {
			continue
		}
		if err := s.removeArtifact(ctx, dir); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("removed expired artifacts", "count", removed)
	}
	return errors.Join(errs...)
}

func (s *Sweeper) artifactDirs() ([]artifactDir, error) {
	entries, err := os.ReadDir(s.workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading work directory: %w", err)
	}

	var dirs []artifactDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// Only job directories are swept; anything else in the work
		// directory is not ours to delete.
		jobID, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, artifactDir{
			path:    filepath.Join(s.workDir, entry.Name()),
			jobID:   jobID,
			modTime: info.ModTime(),
		})
	}
	return dirs, nil
}

func (s *Sweeper) removeArtifact(ctx context.Context, dir artifactDir) error {
	if err := os.RemoveAll(dir.path); err != nil {
		return fmt.Errorf("removing %s: %w", dir.path, err)
	}

	// The job record may already be purged; only surviving records need
	// their paths cleared.
	job, err := s.jobs.GetJob(ctx, dir.jobID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("looking up job %s: %w", dir.jobID, err)
	}
	if job.FilePath == "" && job.ThumbnailPath == "" {
		return nil
	}
	job.FilePath = ""
	job.ThumbnailPath = ""
	if err := s.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("clearing paths for job %s: %w", dir.jobID, err)
	}
	return nil
}

// Scheduler runs the sweeper on a cron schedule.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler validates the cron expression and wires the sweep job. The
// scheduler is created stopped; call Start.
func NewScheduler(schedule string, sweeper *Sweeper, logger *slog.Logger) (*Scheduler, error) {
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing cleanup scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			if err := sweeper.Sweep(context.Background()); err != nil {
				logger.Error("cleanup sweep finished with errors", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing cleanup job: %w", err)
	}
	return &Scheduler{scheduler: scheduler, logger: logger.With("component", "cleanup")}, nil
}

// Start begins executing the schedule.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("cleanup scheduler started")
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
