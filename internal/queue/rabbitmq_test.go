package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAMQPClient struct {
	mu         sync.Mutex
	published  []amqp.Publishing
	publishErr error
	deliveries chan amqp.Delivery
}

func (f *fakeAMQPClient) PublishWithRetry(_ context.Context, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeAMQPClient) Consume(_ context.Context, _ string) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

type ackCall struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	calls []ackCall
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.calls = append(f.calls, ackCall{tag: tag, ack: true})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.calls = append(f.calls, ackCall{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func TestRabbitMQQueue_Publish(t *testing.T) {
	client := &fakeAMQPClient{}
	q := NewRabbitMQQueue(client, "worker-1", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := q.Publish(context.Background(), Message{
		Body:     []byte("build-report"),
		Metadata: map[string]string{MetadataJobID: "job-1"},
	})
	require.NoError(t, err)

	require.Len(t, client.published, 1)
	pub := client.published[0]
	assert.Equal(t, "build-report", string(pub.Body))
	assert.Equal(t, "text/plain", pub.ContentType)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "job-1", pub.Headers[MetadataJobID])
	assert.NotEmpty(t, pub.MessageId)
}

func TestRabbitMQQueue_PublishError(t *testing.T) {
	client := &fakeAMQPClient{publishErr: errors.New("channel closed")}
	q := NewRabbitMQQueue(client, "worker-1", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := q.Publish(context.Background(), Message{Body: []byte("x")})
	assert.EqualError(t, err, "channel closed")
}

func TestRabbitMQQueue_Consume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acker := &fakeAcknowledger{}
	client := &fakeAMQPClient{deliveries: make(chan amqp.Delivery, 3)}
	q := NewRabbitMQQueue(client, "worker-1", slog.New(slog.NewTextHandler(io.Discard, nil)))

	client.deliveries <- amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  1,
		MessageId:    "m-1",
		Headers:      amqp.Table{MetadataJobID: "job-1"},
		Body:         []byte("build-report"),
	}
	client.deliveries <- amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  2,
		Headers:      amqp.Table{MetadataJobID: []byte("job-2"), "x-delivery-count": int64(2)},
	}
	client.deliveries <- amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  3,
		Redelivered:  true,
	}

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	first := receive(t, ch)
	assert.Equal(t, "m-1", first.ID())
	assert.Equal(t, "job-1", first.Metadata(MetadataJobID))
	assert.Equal(t, "build-report", string(first.Body()))
	assert.Equal(t, 1, first.Attempt())
	require.NoError(t, first.Ack(ctx))

	second := receive(t, ch)
	assert.Equal(t, "2", second.ID())
	assert.Equal(t, "job-2", second.Metadata(MetadataJobID))
	assert.Equal(t, 3, second.Attempt())
	require.NoError(t, second.Nack(ctx, true))

	third := receive(t, ch)
	assert.Equal(t, "", third.Metadata(MetadataJobID))
	assert.Equal(t, 2, third.Attempt())
	require.NoError(t, third.Nack(ctx, false))

	assert.Equal(t, []ackCall{
		{tag: 1, ack: true},
		{tag: 2, requeue: true},
		{tag: 3, requeue: false},
	}, acker.calls)
}

func TestRabbitMQQueue_ConsumeStopsWhenSourceCloses(t *testing.T) {
	client := &fakeAMQPClient{deliveries: make(chan amqp.Delivery)}
	q := NewRabbitMQQueue(client, "worker-1", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ch, err := q.Consume(context.Background())
	require.NoError(t, err)
	close(client.deliveries)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}
