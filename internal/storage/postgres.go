package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// Schema creates the jobs table if it does not exist
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	description  TEXT NOT NULL,
	status       TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`

var _ JobStore = (*PostgresStore)(nil)

// PostgresStore keeps jobs in the PostgreSQL jobs table
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the jobs table when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}
	return nil
}

// Create inserts a new job row
func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, description, status, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Description,
		job.Status,
		job.SubmittedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDuplicateID
		}
		return domain.NewRetryableError(fmt.Errorf("failed to create job: %w", err))
	}

	s.logger.Debug("Job row inserted",
		slog.String("job_id", job.ID),
	)

	return nil
}

// Get retrieves a job by its ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `
		SELECT id, description, status, submitted_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, domain.NewRetryableError(fmt.Errorf("failed to get job: %w", err))
	}

	return &job, nil
}

// Update overwrites status and updated_at of an existing job
func (s *PostgresStore) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, job.Status, job.UpdatedAt, job.ID)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to update job status: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	s.logger.Debug("Job status updated",
		slog.String("job_id", job.ID),
		slog.String("status", job.Status.String()),
	)

	return nil
}

// List returns all jobs ordered by submission time
func (s *PostgresStore) List(ctx context.Context) ([]domain.Job, error) {
	query := `
		SELECT id, description, status, submitted_at, updated_at
		FROM jobs
		ORDER BY submitted_at ASC, id ASC
	`

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
