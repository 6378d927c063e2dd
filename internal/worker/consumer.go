package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/job-pipeline/internal/queue"
)

// errConsumerClosed is returned by Start when the queue closes its delivery
// channel while the worker is still running, e.g. a dropped broker channel
var errConsumerClosed = errors.New("queue delivery channel closed unexpectedly")

// setupConsumer starts the queue consumer and returns its delivery channel
func (w *Worker) setupConsumer(ctx context.Context) (<-chan queue.Delivery, error) {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Queue consumer started",
		slog.String("worker_id", w.workerID),
	)

	return deliveries, nil
}

// startMessageDispatcher hands deliveries to the worker pool until ctx is
// done or the queue closes the channel. A close while ctx is live returns
// errConsumerClosed.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan queue.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					w.logger.Info("Queue delivery channel closed on shutdown")
					return nil
				}
				w.logger.Error("Queue delivery channel closed while worker is running",
					slog.String("worker_id", w.workerID),
				)
				return errConsumerClosed
			}

			select {
			case w.jobsChan <- delivery:
				w.logger.Debug("Message dispatched to worker pool",
					slog.String("message_id", delivery.ID()),
					slog.String("job_id", delivery.Metadata(queue.MetadataJobID)),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching message")
				// return it untouched so another worker can pick it up
				nackCtx, cancel := w.storeContext(ctx, true)
				if err := delivery.Nack(nackCtx, true); err != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("message_id", delivery.ID()),
						slog.Any("error", err),
					)
				}
				cancel()
				return nil
			}
		}
	}
}
