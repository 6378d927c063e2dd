// Package storage holds the durable job record. Every implementation makes
// Create and Update durable before returning.
package storage

import (
	"context"

	"github.com/cuongbtq/job-pipeline/internal/domain"
)

// JobStore is the key-value record of jobs keyed by job ID.
// Callers read-modify-write whole records; there are no partial updates.
type JobStore interface {
	// Create fails with domain.ErrDuplicateID if the ID already exists
	Create(ctx context.Context, job *domain.Job) error
	// Get fails with domain.ErrJobNotFound if the ID is absent
	Get(ctx context.Context, id string) (*domain.Job, error)
	// Update overwrites status and updatedAt, failing with domain.ErrJobNotFound if absent
	Update(ctx context.Context, job *domain.Job) error
	// List returns every job in store iteration order
	List(ctx context.Context) ([]domain.Job, error)
	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
}
