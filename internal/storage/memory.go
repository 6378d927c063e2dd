package storage

import (
	"context"
	"sync"

	"github.com/cuongbtq/job-pipeline/internal/domain"
)

var _ JobStore = (*MemoryStore)(nil)

// MemoryStore is an in-process JobStore. Safe for concurrent use.
// Listing follows insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.Job
	order []string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.Job),
	}
}

// Create stores a copy of job
func (m *MemoryStore) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return domain.ErrDuplicateID
	}

	cp := *job
	m.jobs[job.ID] = &cp
	m.order = append(m.order, job.ID)
	return nil
}

// Get returns a copy of the stored job
func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	cp := *job
	return &cp, nil
}

// Update overwrites status and updatedAt of an existing job
func (m *MemoryStore) Update(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}

	stored.Status = job.Status
	stored.UpdatedAt = job.UpdatedAt
	return nil
}

// List returns copies of all jobs in insertion order
func (m *MemoryStore) List(_ context.Context) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]domain.Job, 0, len(m.order))
	for _, id := range m.order {
		jobs = append(jobs, *m.jobs[id])
	}
	return jobs, nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(_ context.Context) error { return nil }
