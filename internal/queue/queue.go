// Package queue abstracts the durable message queue between the API and the
// workers. Delivery is at-least-once: a message stays owned by the queue
// until a consumer acknowledges it.
package queue

import (
	"context"
	"errors"
)

// MetadataJobID is the metadata key carrying the job ID
const MetadataJobID = "job-id"

// ErrAlreadySettled is returned when a delivery is acked or nacked twice
var ErrAlreadySettled = errors.New("delivery already settled")

// Message is what producers hand to the queue
type Message struct {
	Body     []byte
	Metadata map[string]string
}

// Publisher enqueues messages. Publish returns only once the queue has
// durably accepted the message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Delivery is a received message owned by one consumer until settled
type Delivery interface {
	ID() string
	Body() []byte
	// Metadata returns the value for key, or "" when absent
	Metadata(key string) string
	// Attempt is 1 on first delivery and grows with each redelivery
	Attempt() int
	Ack(ctx context.Context) error
	// Nack with requeue=false dead-letters the message
	Nack(ctx context.Context, requeue bool) error
}

// Consumer streams deliveries until ctx is cancelled, then closes the channel
type Consumer interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
}
