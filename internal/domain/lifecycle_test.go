package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "submitted to in progress", from: JobStatusSubmitted, to: JobStatusInProgress, want: true},
		{name: "submitted to failed", from: JobStatusSubmitted, to: JobStatusFailed, want: true},
		{name: "submitted to completed", from: JobStatusSubmitted, to: JobStatusCompleted, want: false},
		{name: "submitted to submitted", from: JobStatusSubmitted, to: JobStatusSubmitted, want: false},
		{name: "in progress re-applied", from: JobStatusInProgress, to: JobStatusInProgress, want: true},
		{name: "in progress to completed", from: JobStatusInProgress, to: JobStatusCompleted, want: true},
		{name: "in progress to failed", from: JobStatusInProgress, to: JobStatusFailed, want: true},
		{name: "in progress back to submitted", from: JobStatusInProgress, to: JobStatusSubmitted, want: false},
		{name: "completed to failed", from: JobStatusCompleted, to: JobStatusFailed, want: false},
		{name: "completed to in progress", from: JobStatusCompleted, to: JobStatusInProgress, want: false},
		{name: "failed to in progress", from: JobStatusFailed, to: JobStatusInProgress, want: false},
		{name: "failed to completed", from: JobStatusFailed, to: JobStatusCompleted, want: false},
		{name: "unknown status", from: Status("PAUSED"), to: JobStatusInProgress, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusSubmitted.IsTerminal())
	assert.False(t, JobStatusInProgress.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{JobStatusSubmitted, JobStatusInProgress, JobStatusCompleted, JobStatusFailed} {
		assert.True(t, s.IsValid(), "status %s should be valid", s)
	}
	assert.False(t, Status("COMPLETE").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestNewJob(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 678901234, time.FixedZone("X", 3600))

	job := NewJob("job-1", "build-report", now)

	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "build-report", job.Description)
	assert.Equal(t, JobStatusSubmitted, job.Status)
	assert.Equal(t, time.UTC, job.SubmittedAt.Location())
	assert.Equal(t, 678901000, job.SubmittedAt.Nanosecond())
	assert.True(t, job.SubmittedAt.Equal(job.UpdatedAt))
}

func TestJob_Transition(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("full successful path", func(t *testing.T) {
		job := NewJob("job-1", "desc", start)

		require.NoError(t, job.Transition(JobStatusInProgress, start.Add(time.Second)))
		assert.Equal(t, JobStatusInProgress, job.Status)
		assert.Equal(t, start.Add(time.Second), job.UpdatedAt)

		require.NoError(t, job.Transition(JobStatusCompleted, start.Add(2*time.Second)))
		assert.Equal(t, JobStatusCompleted, job.Status)
		assert.Equal(t, start.Add(2*time.Second), job.UpdatedAt)
	})

	t.Run("updatedAt strictly increases when clock stands still", func(t *testing.T) {
		job := NewJob("job-1", "desc", start)

		require.NoError(t, job.Transition(JobStatusInProgress, start))
		assert.Equal(t, start.Add(time.Microsecond), job.UpdatedAt)

		require.NoError(t, job.Transition(JobStatusFailed, start.Add(-time.Hour)))
		assert.Equal(t, start.Add(2*time.Microsecond), job.UpdatedAt)
	})

	t.Run("terminal status rejects further transitions", func(t *testing.T) {
		job := NewJob("job-1", "desc", start)
		require.NoError(t, job.Transition(JobStatusInProgress, start.Add(time.Second)))
		require.NoError(t, job.Transition(JobStatusFailed, start.Add(2*time.Second)))
		before := *job

		err := job.Transition(JobStatusInProgress, start.Add(3*time.Second))

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Contains(t, err.Error(), "FAILED -> IN_PROGRESS")
		assert.Equal(t, before, *job)
	})
}

func TestRetryableError(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("failed to update job: %w", NewRetryableError(base))

	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, base))
	assert.Contains(t, err.Error(), "retryable error: connection refused")
	assert.False(t, IsRetryable(base))
}

func TestRemoteControlPlaneError(t *testing.T) {
	base := errors.New("AccessDeniedException: not authorized")
	err := &RemoteControlPlaneError{ResourceID: "service/c/s", Message: base.Error(), Err: base}

	assert.Equal(t, "control plane error for service/c/s: AccessDeniedException: not authorized", err.Error())
	assert.True(t, errors.Is(err, base))
}
