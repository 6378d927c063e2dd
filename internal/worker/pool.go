package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/cuongbtq/job-pipeline/internal/queue"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop handles deliveries until jobsChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for delivery := range w.jobsChan {
		outcome := w.HandleDelivery(ctx, delivery)

		w.logger.Debug("Worker finished message",
			slog.String("worker_name", workerName),
			slog.String("message_id", delivery.ID()),
			slog.String("outcome", outcome.String()),
		)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// settle acknowledges or rejects the delivery according to err
func (w *Worker) settle(ctx context.Context, d queue.Delivery, jobID string, err error) Outcome {
	settleCtx, cancel := w.storeContext(ctx, true)
	defer cancel()

	switch {
	case err == nil:
		if ackErr := d.Ack(settleCtx); ackErr != nil {
			w.logSettleError("Failed to ACK message", d, jobID, ackErr)
		}
		return OutcomeAcked

	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, errAlreadyTerminal):
		if ackErr := d.Ack(settleCtx); ackErr != nil {
			w.logSettleError("Failed to ACK discarded message", d, jobID, ackErr)
		}
		return OutcomeDiscarded
	}

	requeue := w.shouldRequeue(d, err)
	if nackErr := d.Nack(settleCtx, requeue); nackErr != nil {
		w.logSettleError("Failed to NACK message", d, jobID, nackErr)
	} else {
		w.logger.Warn("Message NACKed",
			slog.String("job_id", jobID),
			slog.String("message_id", d.ID()),
			slog.Int("attempt", d.Attempt()),
			slog.Bool("requeue", requeue),
			slog.Any("error", err),
		)
	}

	if requeue {
		return OutcomeRequeued
	}
	return OutcomeDeadLettered
}

// shouldRequeue decides between redelivery and dead-lettering
func (w *Worker) shouldRequeue(d queue.Delivery, err error) bool {
	// Protocol violations never get better on retry
	if errors.Is(err, domain.ErrMissingJobID) {
		return false
	}

	// Stored status is outside the lifecycle graph
	if errors.Is(err, domain.ErrInvalidTransition) {
		return false
	}

	// The store answered but the record is unusable
	if errors.Is(err, errUnreadableJob) {
		return false
	}

	if w.maxDeliveries > 0 && d.Attempt() >= w.maxDeliveries {
		return false
	}

	return true
}

func (w *Worker) logSettleError(msg string, d queue.Delivery, jobID string, err error) {
	w.logger.Error(msg,
		slog.String("job_id", jobID),
		slog.String("message_id", d.ID()),
		slog.Any("error", err),
	)
}
