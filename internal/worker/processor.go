package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/cuongbtq/job-pipeline/internal/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is how a delivery was settled
type Outcome int

const (
	// OutcomeAcked means the job reached a terminal status and the message was acknowledged
	OutcomeAcked Outcome = iota + 1
	// OutcomeDiscarded means the message was acknowledged without processing
	OutcomeDiscarded
	// OutcomeRequeued means the message was returned for redelivery
	OutcomeRequeued
	// OutcomeDeadLettered means the message was rejected without requeue
	OutcomeDeadLettered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcked:
		return "acked"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeRequeued:
		return "requeued"
	case OutcomeDeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

var (
	// errAlreadyTerminal marks a redelivery for a job that already finished
	errAlreadyTerminal = errors.New("job already in terminal status")

	// errUnreadableJob marks a load failure that redelivery cannot fix
	errUnreadableJob = errors.New("job record cannot be loaded")
)

// HandleDelivery processes one message and settles it with the queue
func (w *Worker) HandleDelivery(ctx context.Context, d queue.Delivery) Outcome {
	start := time.Now()
	jobID := d.Metadata(queue.MetadataJobID)

	ctx, span := w.telemetry.tracer.Start(ctx, "worker.handle_message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("messaging.message.id", d.ID()),
			attribute.Int("messaging.delivery.attempt", d.Attempt()),
		),
	)
	defer span.End()

	err := w.processJob(ctx, jobID)
	outcome := w.settle(ctx, d, jobID, err)

	span.SetAttributes(attribute.String("worker.outcome", outcome.String()))
	if err != nil && outcome != OutcomeDiscarded {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	w.telemetry.record(ctx, outcome, time.Since(start))
	return outcome
}

// processJob runs one delivery through the lifecycle. A nil return means
// the terminal status is durably stored and the message may be acked.
func (w *Worker) processJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		w.logger.Error("Message has no job-id metadata, dead-lettering")
		return domain.ErrMissingJobID
	}

	getCtx, cancel := w.storeContext(ctx, false)
	job, err := w.store.Get(getCtx, jobID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			w.logger.Warn("Job not found, discarding message",
				slog.String("job_id", jobID),
			)
			return err
		}
		w.logger.Error("Failed to load job",
			slog.String("job_id", jobID),
			slog.Bool("retryable", domain.IsRetryable(err)),
			slog.Any("error", err),
		)
		if !domain.IsRetryable(err) {
			return fmt.Errorf("%w: %w", errUnreadableJob, err)
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	if job.Status.IsTerminal() {
		w.logger.Info("Job already finished, skipping redelivery",
			slog.String("job_id", jobID),
			slog.String("status", job.Status.String()),
		)
		return errAlreadyTerminal
	}

	if err := w.transition(ctx, job, domain.JobStatusInProgress, false); err != nil {
		return err
	}

	w.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.String("worker_id", w.workerID),
	)

	workErr := w.work(ctx, *job)

	if workErr != nil && (errors.Is(workErr, domain.ErrProcessingInterrupted) || ctx.Err() != nil) {
		w.logger.Warn("Job interrupted, marking failed",
			slog.String("job_id", job.ID),
			slog.Any("error", workErr),
		)
		if err := w.transition(ctx, job, domain.JobStatusFailed, true); err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s", domain.ErrProcessingInterrupted, job.ID)
	}

	target := domain.JobStatusFailed
	if workErr != nil {
		w.logger.Error("Job execution failed",
			slog.String("job_id", job.ID),
			slog.Any("error", workErr),
		)
	} else {
		target = w.outcome(*job)
		if !target.IsTerminal() {
			w.logger.Warn("Outcome function returned non-terminal status, using FAILED",
				slog.String("job_id", job.ID),
				slog.String("status", target.String()),
			)
			target = domain.JobStatusFailed
		}
	}

	if err := w.transition(ctx, job, target, true); err != nil {
		return err
	}

	w.logger.Info("Job finished",
		slog.String("job_id", job.ID),
		slog.String("status", job.Status.String()),
	)
	return nil
}

// transition applies a lifecycle edge and persists it
func (w *Worker) transition(ctx context.Context, job *domain.Job, to domain.Status, detach bool) error {
	if err := job.Transition(to, w.now()); err != nil {
		w.logger.Error("Invalid job transition",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return err
	}

	updateCtx, cancel := w.storeContext(ctx, detach)
	defer cancel()

	if err := w.store.Update(updateCtx, job); err != nil {
		w.logger.Error("Failed to persist job status",
			slog.String("job_id", job.ID),
			slog.String("status", to.String()),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to persist %s: %w", to, err)
	}

	return nil
}
