// Package store defines the persistence interfaces consumed by the core and
// the error taxonomy shared by all implementations.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/scan2target/scan2target/internal/domain"
)

// DBTX abstracts the database access layer. It is implemented by both
// *sql.DB and *sql.Tx, so store code works with a connection or a
// transaction alike.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// JobFilter narrows ListJobs results. Zero values mean "no filter".
type JobFilter struct {
	Kind  domain.JobKind
	Limit int
}

// JobStore persists job records. Pure data access; the state machine is
// enforced above it by the job service.
type JobStore interface {
	// CreateJob inserts a new job record.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by ID. Returns ErrJobNotFound if absent.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// UpdateJob writes the mutable job fields (status, file_path, message,
	// thumbnail_path, updated_at). Returns ErrJobNotFound if absent.
	UpdateJob(ctx context.Context, job *domain.Job) error

	// ListJobs returns jobs ordered newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error)

	// DeleteJob removes a job record. Returns ErrJobNotFound if absent.
	DeleteJob(ctx context.Context, id uuid.UUID) error

	// PurgeFinished deletes completed/failed/cancelled jobs last updated
	// before the cutoff and returns how many rows went away.
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// TargetStore reads delivery target configuration. Target CRUD is owned by
// the configuration layer; the core only consumes it.
type TargetStore interface {
	// GetTarget retrieves a target by ID. Returns ErrTargetNotFound if absent.
	GetTarget(ctx context.Context, id string) (*domain.Target, error)

	// ListTargets returns all configured targets.
	ListTargets(ctx context.Context) ([]*domain.Target, error)
}

// DeviceStore reads the device registry and records reachability sightings.
type DeviceStore interface {
	// ListDevices returns active devices of the given type ("scanner",
	// "printer"), or all active devices when deviceType is empty.
	ListDevices(ctx context.Context, deviceType string) ([]*domain.Device, error)

	// UpdateLastSeen stamps the device's last_seen with the current time.
	UpdateLastSeen(ctx context.Context, deviceID string) error
}
