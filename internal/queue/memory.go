package queue

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
)

var (
	_ Publisher = (*MemoryQueue)(nil)
	_ Consumer  = (*MemoryQueue)(nil)
)

// MemoryQueue is an in-process queue with redelivery and a dead-letter list
type MemoryQueue struct {
	mu          sync.Mutex
	pending     []*memoryDelivery
	deadLetters []Message
	acked       int
	published   int
	notify      chan struct{}
}

// NewMemoryQueue creates an empty MemoryQueue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		notify: make(chan struct{}, 1),
	}
}

// Publish appends the message to the queue
func (q *MemoryQueue) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := &memoryDelivery{
		queue:   q,
		id:      uuid.NewString(),
		msg:     Message{Body: append([]byte(nil), msg.Body...), Metadata: maps.Clone(msg.Metadata)},
		attempt: 1,
	}

	q.mu.Lock()
	q.published++
	q.mu.Unlock()

	q.push(d)
	return nil
}

// Consume streams pending messages until ctx is done
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			d := q.pop()
			if d == nil {
				select {
				case <-ctx.Done():
					return
				case <-q.notify:
					continue
				}
			}

			select {
			case out <- d:
			case <-ctx.Done():
				q.pushFront(d)
				return
			}
		}
	}()

	return out, nil
}

// Pending returns the number of messages waiting for a consumer
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Published returns how many messages were ever published
func (q *MemoryQueue) Published() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.published
}

// Acked returns how many deliveries were acknowledged
func (q *MemoryQueue) Acked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

// DeadLetters returns the dead-lettered messages
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.deadLetters...)
}

// Peek returns the pending messages without consuming them
func (q *MemoryQueue) Peek() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := make([]Message, 0, len(q.pending))
	for _, d := range q.pending {
		msgs = append(msgs, d.msg)
	}
	return msgs
}

func (q *MemoryQueue) push(d *memoryDelivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
	q.wake()
}

func (q *MemoryQueue) pushFront(d *memoryDelivery) {
	q.mu.Lock()
	q.pending = append([]*memoryDelivery{d}, q.pending...)
	q.mu.Unlock()
	q.wake()
}

func (q *MemoryQueue) pop() *memoryDelivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	d := q.pending[0]
	q.pending = q.pending[1:]
	return d
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type memoryDelivery struct {
	queue   *MemoryQueue
	id      string
	msg     Message
	attempt int

	mu      sync.Mutex
	settled bool
}

func (d *memoryDelivery) ID() string   { return d.id }
func (d *memoryDelivery) Body() []byte { return d.msg.Body }
func (d *memoryDelivery) Attempt() int { return d.attempt }

func (d *memoryDelivery) Metadata(key string) string {
	return d.msg.Metadata[key]
}

func (d *memoryDelivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settled {
		return ErrAlreadySettled
	}
	d.settled = true
	return nil
}

func (d *memoryDelivery) Ack(_ context.Context) error {
	if err := d.settle(); err != nil {
		return err
	}

	d.queue.mu.Lock()
	d.queue.acked++
	d.queue.mu.Unlock()
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, requeue bool) error {
	if err := d.settle(); err != nil {
		return err
	}

	if !requeue {
		d.queue.mu.Lock()
		d.queue.deadLetters = append(d.queue.deadLetters, d.msg)
		d.queue.mu.Unlock()
		return nil
	}

	d.queue.push(&memoryDelivery{
		queue:   d.queue,
		id:      d.id,
		msg:     d.msg,
		attempt: d.attempt + 1,
	})
	return nil
}
