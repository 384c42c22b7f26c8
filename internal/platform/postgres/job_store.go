// Package postgres provides PostgreSQL-backed implementations of the store
// interfaces, built on database/sql over the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/store"
)

// JobStore implements store.JobStore using PostgreSQL.
type JobStore struct {
	db store.DBTX
}

// NewJobStore creates a JobStore backed by the given connection or transaction.
func NewJobStore(db store.DBTX) *JobStore {
	return &JobStore{db: db}
}

// CreateJob inserts a new job record.
func (s *JobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	query := `
		INSERT INTO jobs (id, job_type, device_id, target_id, status,
		                  file_path, message, thumbnail_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		string(job.Kind),
		job.DeviceID,
		nullString(job.TargetID),
		string(job.Status),
		nullString(job.FilePath),
		nullString(job.Message),
		nullString(job.ThumbnailPath),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, job_type, device_id, target_id, status,
		       file_path, message, thumbnail_path, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob writes the mutable job fields.
func (s *JobStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $1, file_path = $2, message = $3, thumbnail_path = $4, updated_at = $5
		WHERE id = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		string(job.Status),
		nullString(job.FilePath),
		nullString(job.Message),
		nullString(job.ThumbnailPath),
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// ListJobs returns jobs ordered newest first.
func (s *JobStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	query := `
		SELECT id, job_type, device_id, target_id, status,
		       file_path, message, thumbnail_path, created_at, updated_at
		FROM jobs
	`
	args := []any{}
	if filter.Kind != "" {
		query += ` WHERE job_type = $1`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job record.
func (s *JobStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// PurgeFinished deletes terminal jobs last updated before the cutoff.
func (s *JobStore) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < $1
	`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge finished jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job       domain.Job
		kind      string
		status    string
		targetID  sql.NullString
		filePath  sql.NullString
		message   sql.NullString
		thumbnail sql.NullString
	)
	err := row.Scan(
		&job.ID,
		&kind,
		&job.DeviceID,
		&targetID,
		&status,
		&filePath,
		&message,
		&thumbnail,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.TargetID = targetID.String
	job.FilePath = filePath.String
	job.Message = message.String
	job.ThumbnailPath = thumbnail.String
	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
