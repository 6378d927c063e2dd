package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cuongbtq/job-pipeline/internal/domain"
)

// DefaultWorkDuration is how long SimulatedWork takes
const DefaultWorkDuration = 10 * time.Second

// WorkFunc performs the unit of work for a job. It must return promptly
// when ctx is cancelled, wrapping domain.ErrProcessingInterrupted.
type WorkFunc func(ctx context.Context, job domain.Job) error

// OutcomeFunc picks the terminal status after work completes normally
type OutcomeFunc func(job domain.Job) domain.Status

// SimulatedWork waits d, or until ctx is cancelled
func SimulatedWork(d time.Duration) WorkFunc {
	if d <= 0 {
		d = DefaultWorkDuration
	}

	return func(ctx context.Context, _ domain.Job) error {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrProcessingInterrupted, ctx.Err())
		}
	}
}

// RandomOutcome completes or fails with equal probability
func RandomOutcome(domain.Job) domain.Status {
	if rand.IntN(2) == 0 {
		return domain.JobStatusCompleted
	}
	return domain.JobStatusFailed
}

// FixedOutcome always returns status
func FixedOutcome(status domain.Status) OutcomeFunc {
	return func(domain.Job) domain.Status { return status }
}
