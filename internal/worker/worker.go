// Package worker consumes job messages and drives each job through its
// lifecycle. Delivery is at-least-once: a message is acknowledged only after
// the job's terminal status is durably stored.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/job-pipeline/internal/queue"
	"github.com/cuongbtq/job-pipeline/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStoreTimeout bounds each store call made by the worker
const DefaultStoreTimeout = 5 * time.Second

// Config holds worker configuration
type Config struct {
	Logger   *slog.Logger
	Store    storage.JobStore
	Consumer queue.Consumer

	WorkerID      string
	Concurrency   int
	MaxDeliveries int // 0 disables the worker-side delivery limit
	StoreTimeout  time.Duration

	Work    WorkFunc
	Outcome OutcomeFunc
	Clock   func() time.Time

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	store         storage.JobStore
	consumer      queue.Consumer
	workerID      string
	concurrency   int
	maxDeliveries int
	storeTimeout  time.Duration
	work          WorkFunc
	outcome       OutcomeFunc
	now           func() time.Time
	telemetry     *instruments

	jobsChan chan queue.Delivery
	wg       sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a new worker instance, filling defaults
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, errors.New("worker: store is required")
	}
	if cfg.Consumer == nil {
		return nil, errors.New("worker: consumer is required")
	}

	telemetry, err := newInstruments(cfg.TracerProvider, cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker instruments: %w", err)
	}

	w := &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		consumer:      cfg.Consumer,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		maxDeliveries: cfg.MaxDeliveries,
		storeTimeout:  cfg.StoreTimeout,
		work:          cfg.Work,
		outcome:       cfg.Outcome,
		now:           cfg.Clock,
		telemetry:     telemetry,
		jobsChan:      make(chan queue.Delivery),
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.workerID == "" {
		w.workerID = "worker-" + uuid.NewString()[:8]
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	if w.storeTimeout <= 0 {
		w.storeTimeout = DefaultStoreTimeout
	}
	if w.work == nil {
		w.work = SimulatedWork(DefaultWorkDuration)
	}
	if w.outcome == nil {
		w.outcome = RandomOutcome
	}
	if w.now == nil {
		w.now = time.Now
	}

	return w, nil
}

// ID returns the worker identifier used in logs
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes messages until ctx is cancelled or Stop is called, then
// waits for in-flight messages to settle. It returns an error if the queue
// stops delivering while ctx is still live.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		cancel()
		return errors.New("worker already started")
	}
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	defer close(w.done)
	defer cancel()

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("max_deliveries", w.maxDeliveries),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	dispatchErr := w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()

	if dispatchErr != nil {
		return dispatchErr
	}

	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
	return nil
}

// Stop cancels consumption and waits for Start to return
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}

	w.logger.Info("Stopping worker...")
	cancel()
	<-done
}

// storeContext bounds a store call. With detach set the call survives
// cancellation of ctx, so shutdown can still record FAILED.
func (w *Worker) storeContext(ctx context.Context, detach bool) (context.Context, context.CancelFunc) {
	if detach {
		ctx = context.WithoutCancel(ctx)
	}
	return context.WithTimeout(ctx, w.storeTimeout)
}
