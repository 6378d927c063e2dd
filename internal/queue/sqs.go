package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of *sqs.Client the queue uses
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSConfig holds SQS queue settings
type SQSConfig struct {
	QueueURL           string
	DeadLetterQueueURL string // empty leaves dead-lettering to the redrive policy
	WaitTimeSeconds    int32
	MaxMessages        int32
	VisibilityTimeout  int32 // 0 keeps the queue default
	PollBackoff        time.Duration
}

var (
	_ Publisher = (*SQSQueue)(nil)
	_ Consumer  = (*SQSQueue)(nil)
)

// SQSQueue carries metadata as String message attributes
type SQSQueue struct {
	client SQSAPI
	config SQSConfig
	logger *slog.Logger
}

// NewSQSQueue creates an SQS-backed queue, filling config defaults
func NewSQSQueue(client SQSAPI, config SQSConfig, logger *slog.Logger) *SQSQueue {
	if config.WaitTimeSeconds <= 0 {
		config.WaitTimeSeconds = 20
	}
	if config.MaxMessages <= 0 {
		config.MaxMessages = 1
	}
	if config.PollBackoff <= 0 {
		config.PollBackoff = 10 * time.Second
	}

	return &SQSQueue{
		client: client,
		config: config,
		logger: logger,
	}
}

func toAttributes(metadata map[string]string) map[string]types.MessageAttributeValue {
	if len(metadata) == 0 {
		return nil
	}

	attrs := make(map[string]types.MessageAttributeValue, len(metadata))
	for k, v := range metadata {
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return attrs
}

// Publish sends msg to the work queue
func (q *SQSQueue) Publish(ctx context.Context, msg Message) error {
	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(q.config.QueueURL),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: toAttributes(msg.Metadata),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	q.logger.Debug("Message sent to SQS",
		slog.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// Consume long-polls the queue until ctx is cancelled
func (q *SQSQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)

		for ctx.Err() == nil {
			input := &sqs.ReceiveMessageInput{
				QueueUrl:              aws.String(q.config.QueueURL),
				MaxNumberOfMessages:   q.config.MaxMessages,
				WaitTimeSeconds:       q.config.WaitTimeSeconds,
				MessageAttributeNames: []string{"All"},
				MessageSystemAttributeNames: []types.MessageSystemAttributeName{
					types.MessageSystemAttributeNameApproximateReceiveCount,
				},
			}
			if q.config.VisibilityTimeout > 0 {
				input.VisibilityTimeout = q.config.VisibilityTimeout
			}

			resp, err := q.client.ReceiveMessage(ctx, input)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}

				q.logger.Error("Failed to receive messages from SQS",
					slog.Any("error", err),
					slog.Duration("retry_after", q.config.PollBackoff),
				)

				select {
				case <-ctx.Done():
					return
				case <-time.After(q.config.PollBackoff):
				}
				continue
			}

			for _, m := range resp.Messages {
				select {
				case out <- &sqsDelivery{queue: q, msg: m}:
				case <-ctx.Done():
					// visibility timeout returns it to the queue
					return
				}
			}
		}
	}()

	return out, nil
}

type sqsDelivery struct {
	queue *SQSQueue
	msg   types.Message
}

func (d *sqsDelivery) ID() string   { return aws.ToString(d.msg.MessageId) }
func (d *sqsDelivery) Body() []byte { return []byte(aws.ToString(d.msg.Body)) }

func (d *sqsDelivery) Metadata(key string) string {
	attr, ok := d.msg.MessageAttributes[key]
	if !ok {
		return ""
	}
	return aws.ToString(attr.StringValue)
}

func (d *sqsDelivery) Attempt() int {
	n, err := strconv.Atoi(d.msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (d *sqsDelivery) Ack(ctx context.Context) error {
	_, err := d.queue.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(d.queue.config.QueueURL),
		ReceiptHandle: d.msg.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (d *sqsDelivery) Nack(ctx context.Context, requeue bool) error {
	if requeue {
		_, err := d.queue.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(d.queue.config.QueueURL),
			ReceiptHandle:     d.msg.ReceiptHandle,
			VisibilityTimeout: 0,
		})
		if err != nil {
			return fmt.Errorf("failed to reset message visibility: %w", err)
		}
		return nil
	}

	if d.queue.config.DeadLetterQueueURL == "" {
		d.queue.logger.Warn("No dead-letter queue configured, leaving message for redrive policy",
			slog.String("message_id", d.ID()),
		)
		return nil
	}

	_, err := d.queue.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(d.queue.config.DeadLetterQueueURL),
		MessageBody:       d.msg.Body,
		MessageAttributes: d.msg.MessageAttributes,
	})
	if err != nil {
		return fmt.Errorf("failed to forward message to dead-letter queue: %w", err)
	}

	return d.Ack(ctx)
}
