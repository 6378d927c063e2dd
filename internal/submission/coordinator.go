// Package submission accepts new jobs: it persists the job record first and
// only then publishes the queue message, so a worker can never dequeue an ID
// the store does not know.
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/cuongbtq/job-pipeline/internal/storage"
	"github.com/google/uuid"
)

// DefaultPublishTimeout bounds the publish step of a submission
const DefaultPublishTimeout = 10 * time.Second

// JobPublisher enqueues a job payload tagged with its ID
type JobPublisher interface {
	Publish(ctx context.Context, jobID string, payload []byte) error
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithIDGenerator overrides UUID generation
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// WithClock overrides time.Now
func WithClock(fn func() time.Time) Option {
	return func(c *Coordinator) { c.now = fn }
}

// WithPublishTimeout overrides DefaultPublishTimeout
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

// Coordinator runs the persist-then-publish submission protocol
type Coordinator struct {
	store          storage.JobStore
	publisher      JobPublisher
	logger         *slog.Logger
	newID          func() string
	now            func() time.Time
	publishTimeout time.Duration
}

// NewCoordinator creates a Coordinator
func NewCoordinator(store storage.JobStore, publisher JobPublisher, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:          store,
		publisher:      publisher,
		logger:         logger,
		newID:          uuid.NewString,
		now:            time.Now,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates a SUBMITTED job and enqueues it. If the store write fails
// nothing is published. If publishing fails the record stays SUBMITTED and
// the error is returned. Once the record is stored, publishing no longer
// follows cancellation of ctx so a dropped client cannot strand the job.
func (c *Coordinator) Submit(ctx context.Context, description string) (*domain.Job, error) {
	job := domain.NewJob(c.newID(), description, c.now())

	if err := c.store.Create(ctx, job); err != nil {
		c.logger.Error("Failed to persist job",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	defer cancel()

	if err := c.publisher.Publish(publishCtx, job.ID, []byte(job.Description)); err != nil {
		c.logger.Error("Job persisted but not published, resubmit required",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to publish job: %w", err)
	}

	c.logger.Info("Job submitted",
		slog.String("job_id", job.ID),
		slog.String("status", job.Status.String()),
	)

	return job, nil
}

// List returns every job in store order
func (c *Coordinator) List(ctx context.Context) ([]domain.Job, error) {
	jobs, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Get returns a single job
func (c *Coordinator) Get(ctx context.Context, id string) (*domain.Job, error) {
	return c.store.Get(ctx, id)
}
