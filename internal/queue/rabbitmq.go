package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpClient is the subset of shared/rabbitmq.Client the queue needs
type amqpClient interface {
	PublishWithRetry(ctx context.Context, msg amqp.Publishing) error
	Consume(ctx context.Context, consumerTag string) (<-chan amqp.Delivery, error)
}

var (
	_ Publisher = (*RabbitMQQueue)(nil)
	_ Consumer  = (*RabbitMQQueue)(nil)
)

// RabbitMQQueue carries metadata as AMQP headers and the body as text/plain
type RabbitMQQueue struct {
	client      amqpClient
	consumerTag string
	logger      *slog.Logger
}

// NewRabbitMQQueue creates a queue over a connected RabbitMQ client
func NewRabbitMQQueue(client amqpClient, consumerTag string, logger *slog.Logger) *RabbitMQQueue {
	return &RabbitMQQueue{
		client:      client,
		consumerTag: consumerTag,
		logger:      logger,
	}
}

// Publish sends msg as a persistent message and waits for the broker confirm
func (q *RabbitMQQueue) Publish(ctx context.Context, msg Message) error {
	headers := amqp.Table{}
	for k, v := range msg.Metadata {
		headers[k] = v
	}

	return q.client.PublishWithRetry(ctx, amqp.Publishing{
		Headers:      headers,
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Body:         msg.Body,
	})
}

// Consume starts a broker consumer and adapts its deliveries
func (q *RabbitMQQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := q.client.Consume(ctx, q.consumerTag)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					q.logger.Warn("RabbitMQ delivery channel closed")
					return
				}

				select {
				case out <- &rabbitDelivery{msg: msg}:
				case <-ctx.Done():
					// unacked deliveries return to the queue when the channel closes
					return
				}
			}
		}
	}()

	return out, nil
}

type rabbitDelivery struct {
	msg amqp.Delivery
}

func (d *rabbitDelivery) ID() string {
	if d.msg.MessageId != "" {
		return d.msg.MessageId
	}
	return strconv.FormatUint(d.msg.DeliveryTag, 10)
}

func (d *rabbitDelivery) Body() []byte { return d.msg.Body }

func (d *rabbitDelivery) Metadata(key string) string {
	switch v := d.msg.Headers[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Attempt prefers the quorum queue x-delivery-count header, which counts
// previous deliveries, and falls back to the redelivered flag.
func (d *rabbitDelivery) Attempt() int {
	switch n := d.msg.Headers["x-delivery-count"].(type) {
	case int64:
		return int(n) + 1
	case int32:
		return int(n) + 1
	case int:
		return n + 1
	}

	if d.msg.Redelivered {
		return 2
	}
	return 1
}

func (d *rabbitDelivery) Ack(_ context.Context) error {
	if err := d.msg.Ack(false); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

func (d *rabbitDelivery) Nack(_ context.Context, requeue bool) error {
	if err := d.msg.Nack(false, requeue); err != nil {
		return fmt.Errorf("failed to nack message: %w", err)
	}
	return nil
}
