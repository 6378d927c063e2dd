package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresStore(sqlx.NewDb(db, "postgres"), logger), mock
}

var jobColumns = []string{"id", "description", "status", "submitted_at", "updated_at"}

func TestPostgresStore_Create(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := domain.NewJob("job-1", "build-report", now)
	insert := regexp.QuoteMeta("INSERT INTO jobs (id, description, status, submitted_at, updated_at)")

	tests := []struct {
		name      string
		setup     func(mock sqlmock.Sqlmock)
		wantErr   error
		retryable bool
	}{
		{
			name: "inserted",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(insert).
					WithArgs(job.ID, job.Description, job.Status, job.SubmittedAt, job.UpdatedAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "duplicate id",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(insert).
					WillReturnError(&pq.Error{Code: uniqueViolation})
			},
			wantErr: domain.ErrDuplicateID,
		},
		{
			name: "connection failure is retryable",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(insert).
					WillReturnError(errors.New("connection reset by peer"))
			},
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockPostgresStore(t)
			tt.setup(mock)

			err := store.Create(context.Background(), job)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.retryable:
				assert.True(t, domain.IsRetryable(err))
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_Get(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("SELECT id, description, status, submitted_at, updated_at")

	t.Run("found", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectQuery(query).WithArgs("job-1").
			WillReturnRows(sqlmock.NewRows(jobColumns).
				AddRow("job-1", "build-report", "IN_PROGRESS", now, now.Add(time.Second)))

		job, err := store.Get(context.Background(), "job-1")

		require.NoError(t, err)
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, "build-report", job.Description)
		assert.Equal(t, domain.JobStatusInProgress, job.Status)
		assert.Equal(t, now.Add(time.Second), job.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectQuery(query).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := store.Get(context.Background(), "nope")

		assert.ErrorIs(t, err, domain.ErrJobNotFound)
		assert.False(t, domain.IsRetryable(err))
	})

	t.Run("backend failure is retryable", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectQuery(query).WithArgs("job-1").WillReturnError(errors.New("timeout"))

		_, err := store.Get(context.Background(), "job-1")

		assert.True(t, domain.IsRetryable(err))
	})
}

func TestPostgresStore_Update(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := domain.NewJob("job-1", "desc", now)
	require.NoError(t, job.Transition(domain.JobStatusInProgress, now.Add(time.Second)))
	update := regexp.QuoteMeta("UPDATE jobs")

	t.Run("updated", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectExec(update).
			WithArgs(job.Status, job.UpdatedAt, job.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Update(context.Background(), job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows means not found", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Update(context.Background(), job), domain.ErrJobNotFound)
	})

	t.Run("exec failure is retryable", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectExec(update).WillReturnError(errors.New("broken pipe"))

		assert.True(t, domain.IsRetryable(store.Update(context.Background(), job)))
	})
}

func TestPostgresStore_List(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY submitted_at ASC, id ASC")).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("a", "first", "COMPLETED", now, now.Add(2*time.Second)).
			AddRow("b", "second", "SUBMITTED", now.Add(time.Second), now.Add(time.Second)))

	jobs, err := store.List(context.Background())

	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, domain.JobStatusCompleted, jobs[0].Status)
	assert.Equal(t, "b", jobs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS jobs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
