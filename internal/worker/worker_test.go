package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/job-pipeline/internal/dispatcher"
	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/cuongbtq/job-pipeline/internal/queue"
	"github.com/cuongbtq/job-pipeline/internal/storage"
	"github.com/cuongbtq/job-pipeline/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock advances one second per call
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingStore records every status written through Update
type recordingStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	updates   []domain.Status
	updateErr func(job *domain.Job) error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *recordingStore) Update(ctx context.Context, job *domain.Job) error {
	if s.updateErr != nil {
		if err := s.updateErr(job); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.updates = append(s.updates, job.Status)
	s.mu.Unlock()
	return s.MemoryStore.Update(ctx, job)
}

func (s *recordingStore) statuses() []domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Status(nil), s.updates...)
}

type harness struct {
	store  *recordingStore
	queue  *queue.MemoryQueue
	submit *submission.Coordinator
	clock  *testClock
}

func newHarness() *harness {
	store := newRecordingStore()
	q := queue.NewMemoryQueue()
	clock := &testClock{now: baseTime}

	return &harness{
		store: store,
		queue: q,
		clock: clock,
		submit: submission.NewCoordinator(store, dispatcher.New(q, testLogger()), testLogger(),
			submission.WithClock(func() time.Time { return baseTime }),
		),
	}
}

func (h *harness) newWorker(t *testing.T, cfg Config) *Worker {
	t.Helper()

	cfg.Logger = testLogger()
	cfg.Store = h.store
	cfg.Consumer = h.queue
	if cfg.Clock == nil {
		cfg.Clock = h.clock.Now
	}
	if cfg.Work == nil {
		cfg.Work = func(context.Context, domain.Job) error { return nil }
	}

	w, err := NewWorker(&cfg)
	require.NoError(t, err)
	return w
}

// next pulls one delivery from the memory queue
func (h *harness) next(t *testing.T) queue.Delivery {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := h.queue.Consume(ctx)
	require.NoError(t, err)

	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery available")
		return nil
	}
}

func TestNewWorker_Defaults(t *testing.T) {
	w, err := NewWorker(&Config{Store: storage.NewMemoryStore(), Consumer: queue.NewMemoryQueue()})
	require.NoError(t, err)

	assert.Equal(t, 1, w.concurrency)
	assert.Equal(t, DefaultStoreTimeout, w.storeTimeout)
	assert.Contains(t, w.ID(), "worker-")
	assert.NotNil(t, w.work)
	assert.NotNil(t, w.outcome)

	_, err = NewWorker(&Config{Consumer: queue.NewMemoryQueue()})
	assert.Error(t, err)
	_, err = NewWorker(&Config{Store: storage.NewMemoryStore()})
	assert.Error(t, err)
}

func TestHandleDelivery_Outcomes(t *testing.T) {
	for _, status := range []domain.Status{domain.JobStatusCompleted, domain.JobStatusFailed} {
		t.Run(status.String(), func(t *testing.T) {
			h := newHarness()
			w := h.newWorker(t, Config{Outcome: FixedOutcome(status)})

			job, err := h.submit.Submit(context.Background(), "build-report")
			require.NoError(t, err)

			outcome := w.HandleDelivery(context.Background(), h.next(t))

			assert.Equal(t, OutcomeAcked, outcome)
			stored, err := h.store.Get(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
			assert.True(t, stored.UpdatedAt.After(stored.SubmittedAt))
			assert.Equal(t, []domain.Status{domain.JobStatusInProgress, status}, h.store.statuses())
			assert.Equal(t, 1, h.queue.Acked())
			assert.Equal(t, 0, h.queue.Pending())
		})
	}
}

func TestHandleDelivery_MissingJobID(t *testing.T) {
	h := newHarness()
	w := h.newWorker(t, Config{})

	require.NoError(t, h.queue.Publish(context.Background(), queue.Message{Body: []byte("orphan")}))

	outcome := w.HandleDelivery(context.Background(), h.next(t))

	assert.Equal(t, OutcomeDeadLettered, outcome)
	require.Len(t, h.queue.DeadLetters(), 1)
	assert.Equal(t, 0, h.queue.Pending())
	assert.Empty(t, h.store.statuses())
}

func TestHandleDelivery_NotFoundIsDiscarded(t *testing.T) {
	h := newHarness()
	w := h.newWorker(t, Config{})

	d := dispatcher.New(h.queue, testLogger())
	require.NoError(t, d.Publish(context.Background(), "X", []byte("ghost")))

	outcome := w.HandleDelivery(context.Background(), h.next(t))

	assert.Equal(t, OutcomeDiscarded, outcome)
	assert.Equal(t, 1, h.queue.Acked())
	assert.Equal(t, 0, h.queue.Pending())
	assert.Empty(t, h.queue.DeadLetters())

	jobs, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestHandleDelivery_Interrupted(t *testing.T) {
	h := newHarness()

	started := make(chan struct{})
	w := h.newWorker(t, Config{
		Work: func(ctx context.Context, job domain.Job) error {
			close(started)
			return SimulatedWork(time.Hour)(ctx, job)
		},
		Outcome: FixedOutcome(domain.JobStatusCompleted),
	})

	job, err := h.submit.Submit(context.Background(), "long-running")
	require.NoError(t, err)

	d := h.next(t)
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan Outcome, 1)
	go func() { result <- w.HandleDelivery(ctx, d) }()

	<-started
	cancel()

	select {
	case outcome := <-result:
		assert.Equal(t, OutcomeRequeued, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not react to interruption")
	}

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	// clock ticks once for IN_PROGRESS and once at interruption
	assert.Equal(t, baseTime.Add(2*time.Second), stored.UpdatedAt)
	assert.Equal(t, 0, h.queue.Acked())
	assert.Equal(t, 1, h.queue.Pending())
}

func TestHandleDelivery_RedeliveryAfterTerminal(t *testing.T) {
	h := newHarness()
	w := h.newWorker(t, Config{Outcome: FixedOutcome(domain.JobStatusCompleted)})

	job, err := h.submit.Submit(context.Background(), "build-report")
	require.NoError(t, err)
	require.Equal(t, OutcomeAcked, w.HandleDelivery(context.Background(), h.next(t)))

	before, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)

	// same message delivered again
	require.NoError(t, dispatcher.New(h.queue, testLogger()).Publish(context.Background(), job.ID, []byte(job.Description)))
	outcome := w.HandleDelivery(context.Background(), h.next(t))

	assert.Equal(t, OutcomeDiscarded, outcome)
	after, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, *before, *after)
	assert.Equal(t, []domain.Status{domain.JobStatusInProgress, domain.JobStatusCompleted}, h.store.statuses())
}

func TestHandleDelivery_RedeliveryWhileInProgress(t *testing.T) {
	h := newHarness()
	w := h.newWorker(t, Config{Outcome: FixedOutcome(domain.JobStatusCompleted)})

	job, err := h.submit.Submit(context.Background(), "crashed-midway")
	require.NoError(t, err)

	// a previous worker died after writing IN_PROGRESS
	stale, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.NoError(t, stale.Transition(domain.JobStatusInProgress, baseTime.Add(time.Millisecond)))
	require.NoError(t, h.store.MemoryStore.Update(context.Background(), stale))

	outcome := w.HandleDelivery(context.Background(), h.next(t))

	assert.Equal(t, OutcomeAcked, outcome)
	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
}

func TestHandleDelivery_TransientStoreFailure(t *testing.T) {
	tests := []struct {
		name       string
		failOn     domain.Status
		wantStatus domain.Status
	}{
		{name: "in progress write fails", failOn: domain.JobStatusInProgress, wantStatus: domain.JobStatusSubmitted},
		{name: "terminal write fails", failOn: domain.JobStatusCompleted, wantStatus: domain.JobStatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.store.updateErr = func(job *domain.Job) error {
				if job.Status == tt.failOn {
					return domain.NewRetryableError(errors.New("connection reset"))
				}
				return nil
			}
			w := h.newWorker(t, Config{Outcome: FixedOutcome(domain.JobStatusCompleted)})

			job, err := h.submit.Submit(context.Background(), "build-report")
			require.NoError(t, err)

			outcome := w.HandleDelivery(context.Background(), h.next(t))

			assert.Equal(t, OutcomeRequeued, outcome)
			assert.Equal(t, 0, h.queue.Acked())
			assert.Equal(t, 1, h.queue.Pending())

			stored, err := h.store.Get(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
		})
	}
}

func TestHandleDelivery_MaxDeliveries(t *testing.T) {
	h := newHarness()
	h.store.updateErr = func(*domain.Job) error {
		return domain.NewRetryableError(errors.New("db down"))
	}
	w := h.newWorker(t, Config{MaxDeliveries: 2})

	_, err := h.submit.Submit(context.Background(), "flaky")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRequeued, w.HandleDelivery(context.Background(), h.next(t)))
	assert.Equal(t, OutcomeDeadLettered, w.HandleDelivery(context.Background(), h.next(t)))
	assert.Len(t, h.queue.DeadLetters(), 1)
	assert.Equal(t, 0, h.queue.Pending())
}

func TestHandleDelivery_WorkErrorFailsJob(t *testing.T) {
	h := newHarness()
	w := h.newWorker(t, Config{
		Work:    func(context.Context, domain.Job) error { return errors.New("report template missing") },
		Outcome: FixedOutcome(domain.JobStatusCompleted),
	})

	job, err := h.submit.Submit(context.Background(), "build-report")
	require.NoError(t, err)

	assert.Equal(t, OutcomeAcked, w.HandleDelivery(context.Background(), h.next(t)))

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
}

func TestHandleDelivery_CorruptStatusIsDeadLettered(t *testing.T) {
	h := newHarness()
	w := h.newWorker(t, Config{})

	corrupt := domain.NewJob("job-x", "desc", baseTime)
	corrupt.Status = domain.Status("PAUSED")
	require.NoError(t, h.store.Create(context.Background(), corrupt))
	require.NoError(t, dispatcher.New(h.queue, testLogger()).Publish(context.Background(), "job-x", nil))

	assert.Equal(t, OutcomeDeadLettered, w.HandleDelivery(context.Background(), h.next(t)))
}

// loadErrStore fails every Get with err
type loadErrStore struct {
	*storage.MemoryStore
	err error
}

func (s *loadErrStore) Get(context.Context, string) (*domain.Job, error) {
	return nil, s.err
}

func TestHandleDelivery_LoadFailure(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantOutcome Outcome
		wantDead    int
		wantPending int
	}{
		{
			name:        "store unavailable is requeued",
			err:         domain.NewRetryableError(errors.New("connection refused")),
			wantOutcome: OutcomeRequeued,
			wantPending: 1,
		},
		{
			name:        "unreadable record is dead-lettered",
			err:         errors.New(`unknown status "PAUSED" for job job-1`),
			wantOutcome: OutcomeDeadLettered,
			wantDead:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			w, err := NewWorker(&Config{
				Logger:   testLogger(),
				Store:    &loadErrStore{MemoryStore: storage.NewMemoryStore(), err: tt.err},
				Consumer: h.queue,
			})
			require.NoError(t, err)

			require.NoError(t, dispatcher.New(h.queue, testLogger()).Publish(context.Background(), "job-1", nil))

			assert.Equal(t, tt.wantOutcome, w.HandleDelivery(context.Background(), h.next(t)))
			assert.Len(t, h.queue.DeadLetters(), tt.wantDead)
			assert.Equal(t, tt.wantPending, h.queue.Pending())
			assert.Equal(t, 0, h.queue.Acked())
		})
	}
}

// closedConsumer hands out a delivery channel that is already closed
type closedConsumer struct{}

func (closedConsumer) Consume(context.Context) (<-chan queue.Delivery, error) {
	ch := make(chan queue.Delivery)
	close(ch)
	return ch, nil
}

func TestWorker_StartFailsWhenQueueStopsDelivering(t *testing.T) {
	w, err := NewWorker(&Config{
		Logger:      testLogger(),
		Store:       storage.NewMemoryStore(),
		Consumer:    closedConsumer{},
		Concurrency: 2,
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background()) }()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, errConsumerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after the delivery channel closed")
	}
}

func TestWorker_StartProcessesAllJobs(t *testing.T) {
	h := newHarness()
	w := h.newWorker(t, Config{
		Concurrency: 3,
		Clock:       time.Now,
		Outcome:     RandomOutcome,
		Work:        SimulatedWork(5 * time.Millisecond),
	})

	var ids []string
	for i := 0; i < 10; i++ {
		job, err := h.submit.Submit(context.Background(), "batch")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background()) }()

	assert.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := h.store.Get(context.Background(), id)
			if err != nil || !job.Status.IsTerminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	require.NoError(t, <-errCh)

	assert.Equal(t, 10, h.queue.Acked())
	assert.Equal(t, 0, h.queue.Pending())
	assert.Error(t, w.Start(context.Background()), "a stopped worker cannot be restarted")
}

func TestWorker_ShutdownInterruptsInFlightJob(t *testing.T) {
	h := newHarness()

	started := make(chan struct{})
	var once sync.Once
	w := h.newWorker(t, Config{
		Work: func(ctx context.Context, job domain.Job) error {
			once.Do(func() { close(started) })
			return SimulatedWork(time.Hour)(ctx, job)
		},
	})

	job, err := h.submit.Submit(context.Background(), "never-finishes")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-errCh)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, 0, h.queue.Acked())
	assert.Equal(t, 1, h.queue.Pending())
}

func TestSimulatedWork(t *testing.T) {
	job := domain.Job{ID: "job-1"}

	require.NoError(t, SimulatedWork(time.Millisecond)(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SimulatedWork(time.Hour)(ctx, job)
	assert.ErrorIs(t, err, domain.ErrProcessingInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRandomOutcome(t *testing.T) {
	seen := map[domain.Status]bool{}
	for i := 0; i < 200; i++ {
		seen[RandomOutcome(domain.Job{})] = true
	}
	assert.Equal(t, map[domain.Status]bool{
		domain.JobStatusCompleted: true,
		domain.JobStatusFailed:    true,
	}, seen)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "acked", OutcomeAcked.String())
	assert.Equal(t, "discarded", OutcomeDiscarded.String())
	assert.Equal(t, "requeued", OutcomeRequeued.String())
	assert.Equal(t, "dead_lettered", OutcomeDeadLettered.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
