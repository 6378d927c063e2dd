// Package dispatcher turns a job ID and payload into a queue message.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/cuongbtq/job-pipeline/internal/queue"
)

// Dispatcher publishes jobs to the work queue
type Dispatcher struct {
	publisher queue.Publisher
	logger    *slog.Logger
}

// New creates a Dispatcher over publisher
func New(publisher queue.Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
	}
}

// Publish enqueues payload tagged with jobID. It returns once the queue
// has accepted the message.
func (d *Dispatcher) Publish(ctx context.Context, jobID string, payload []byte) error {
	if jobID == "" {
		return domain.ErrMissingJobID
	}

	msg := queue.Message{
		Body:     payload,
		Metadata: map[string]string{queue.MetadataJobID: jobID},
	}

	if err := d.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("dispatcher: publish job %s: %w", jobID, err)
	}

	d.logger.Info("Job dispatched",
		slog.String("job_id", jobID),
		slog.Int("payload_size", len(payload)),
	)

	return nil
}
